package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

const defaultGoogleVoice = "en-GB-Chirp3-HD-Umbriel"

// GoogleClassicTTSEngine synthesises each utterance with Google Cloud
// Text-to-Speech, caches the MP3 on disk and plays it through the speaker.
type GoogleClassicTTSEngine struct {
	client       *texttospeech.Client
	ctx          context.Context
	cancel       context.CancelFunc
	config       Config
	cacheRootDir string
	utt          *utterances
	log          *logrus.Entry

	mu         sync.Mutex
	ctrl       *beep.Ctrl
	streamer   beep.StreamSeekCloser
	sampleRate beep.SampleRate
	// paused also covers the synthesis window, before ctrl exists.
	paused bool
}

func newGoogleClassicTTSEngine(config Config) (*GoogleClassicTTSEngine, error) {
	ctx, cancel := context.WithCancel(context.Background())
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to create TTS client: %v", ErrEngineUnavailable, err)
	}

	if err := os.MkdirAll(config.CachePath, 0755); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	if config.Voice == "" || config.Voice == "default" {
		config.Voice = defaultGoogleVoice
	}

	return &GoogleClassicTTSEngine{
		client:       client,
		ctx:          ctx,
		cancel:       cancel,
		config:       config,
		cacheRootDir: config.CachePath,
		utt:          newUtterances(),
		log:          logrus.WithField("engine", EngineTypeGoogleClassic.String()),
	}, nil
}

// Speak synthesises in the background; failures are reported as EventError.
func (g *GoogleClassicTTSEngine) Speak(req SpeakRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}

	g.stopPlayback()
	g.utt.begin(req.ID)
	go g.speak(req)
	return nil
}

func (g *GoogleClassicTTSEngine) speak(req SpeakRequest) {
	path, err := g.audioFor(req)
	if err != nil {
		g.utt.finish(req.ID, err)
		return
	}
	if !g.utt.active(req.ID) {
		return
	}
	if err := g.play(req.ID, path); err != nil {
		g.utt.finish(req.ID, err)
	}
}

// audioFor returns the cached MP3 for req, synthesising it on a miss.
func (g *GoogleClassicTTSEngine) audioFor(req SpeakRequest) (string, error) {
	voice := resolveVoice(req, g.config)
	if voice == "" {
		voice = defaultGoogleVoice
	}
	audioCfg := g.audioConfig(voice, req)

	key := fmt.Sprintf("%s|%s|%.2f|%.2f|%.2f", req.Text, voice, audioCfg.SpeakingRate, audioCfg.Pitch, audioCfg.VolumeGainDb)
	cacheDir := filepath.Join(g.cacheRootDir, "google_classic", voice)
	path := filepath.Join(cacheDir, md5Sum(key)+".mp3")

	if _, err := os.Stat(path); err == nil {
		g.log.WithField("file", path).Debug("Using cached audio")
		return path, nil
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}

	resp, err := g.client.SynthesizeSpeech(g.ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageFor(voice, req.Language),
			Name:         voice,
		},
		AudioConfig: audioCfg,
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize: %w", err)
	}

	if err := os.WriteFile(path, resp.AudioContent, 0644); err != nil {
		return "", fmt.Errorf("failed to write MP3 to %s: %w", path, err)
	}
	g.log.WithFields(logrus.Fields{"file": path, "bytes": len(resp.AudioContent)}).Debug("Cached synthesized audio")
	return path, nil
}

func (g *GoogleClassicTTSEngine) audioConfig(voice string, req SpeakRequest) *texttospeechpb.AudioConfig {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}

	// Chirp voices don't support speakingRate/pitch
	if !strings.Contains(strings.ToLower(voice), "chirp") {
		audioCfg.SpeakingRate = clamp(orDefault(req.Rate, 1), 0.25, 4.0)
		audioCfg.Pitch = clamp((orDefault(req.Pitch, 1)-1)*20, -20, 20)
	}
	audioCfg.VolumeGainDb = volumeGainDb(req.Volume)
	return audioCfg
}

func (g *GoogleClassicTTSEngine) play(id uint64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cached MP3 %s: %w", path, err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode MP3 %s: %w", path, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.utt.active(id) {
		streamer.Close()
		return nil
	}

	if g.sampleRate == 0 {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return fmt.Errorf("failed to open speaker: %w", err)
		}
		g.sampleRate = format.SampleRate
	}

	var source beep.Streamer = streamer
	if format.SampleRate != g.sampleRate {
		source = beep.Resample(4, format.SampleRate, g.sampleRate, streamer)
	}

	g.streamer = streamer
	g.ctrl = g.newCtrlLocked(source)
	g.utt.start(id)
	speaker.Play(beep.Seq(g.ctrl, beep.Callback(func() {
		go g.utt.finish(id, nil)
	})))
	return nil
}

func (g *GoogleClassicTTSEngine) Pause() error {
	g.setPaused(true)
	return nil
}

func (g *GoogleClassicTTSEngine) Resume() error {
	g.setPaused(false)
	return nil
}

// newCtrlLocked wraps source in a ctrl that honours a pause requested
// before playback started.
func (g *GoogleClassicTTSEngine) newCtrlLocked(source beep.Streamer) *beep.Ctrl {
	return &beep.Ctrl{Streamer: source, Paused: g.paused}
}

func (g *GoogleClassicTTSEngine) setPaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = paused
	if g.ctrl != nil {
		speaker.Lock()
		g.ctrl.Paused = paused
		speaker.Unlock()
	}
}

func (g *GoogleClassicTTSEngine) CancelAll() error {
	g.stopPlayback()
	return nil
}

// stopPlayback retires the current utterance and silences the speaker.
func (g *GoogleClassicTTSEngine) stopPlayback() {
	g.utt.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sampleRate != 0 {
		speaker.Clear()
	}
	if g.streamer != nil {
		g.streamer.Close()
		g.streamer = nil
	}
	g.ctrl = nil
	g.paused = false
}

// IsPaused reports whether playback is held.
func (g *GoogleClassicTTSEngine) IsPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *GoogleClassicTTSEngine) Voices(ctx context.Context) ([]VoiceInfo, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	voices := make([]VoiceInfo, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		lower := strings.ToLower(v.Name)
		voices = append(voices, VoiceInfo{
			ID:       v.Name,
			Name:     v.Name,
			Language: lang,
			Gender:   strings.ToLower(v.SsmlGender.String()),
			Natural:  strings.Contains(lower, "neural") || strings.Contains(lower, "wavenet") || strings.Contains(lower, "chirp"),
		})
	}
	return voices, nil
}

func (g *GoogleClassicTTSEngine) Events() <-chan Event {
	return g.utt.events
}

func (g *GoogleClassicTTSEngine) Close() error {
	g.stopPlayback()
	g.cancel()
	return g.client.Close()
}

// CacheStats returns cache statistics for the engine
func (g *GoogleClassicTTSEngine) CacheStats() (map[string]interface{}, error) {
	return cacheStats(g.cacheRootDir)
}

// ClearCache removes all cached files
func (g *GoogleClassicTTSEngine) ClearCache() error {
	return os.RemoveAll(g.cacheRootDir)
}

func cacheStats(root string) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalFiles int64
	var totalSize int64

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Continue walking despite errors
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".mp3") {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats["cache_directory"] = root
	stats["cached_files"] = totalFiles
	stats["total_size_mb"] = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// languageFor derives the language code from a voice name such as
// "en-GB-Chirp3-HD-Umbriel" unless a hint is given.
func languageFor(voice, hint string) string {
	if hint != "" {
		return hint
	}
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

// volumeGainDb maps a 0..1 volume onto Google's -96..16 dB gain.
func volumeGainDb(volume float64) float64 {
	if volume <= 0 {
		return -96
	}
	return clamp(20*math.Log10(volume), -96, 16)
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

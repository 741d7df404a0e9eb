package tts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUtterances(t *testing.T) {
	t.Run("start is reported once", func(t *testing.T) {
		u := newUtterances()
		u.begin(1)
		u.start(1)
		u.start(1)
		u.finish(1, nil)

		assert.Equal(t, Event{Utterance: 1, Kind: EventStart}, nextEvent(t, u.events))
		assert.Equal(t, Event{Utterance: 1, Kind: EventEnd}, nextEvent(t, u.events))
		assertNoEvent(t, u.events)
	})

	t.Run("superseded utterance is dropped", func(t *testing.T) {
		u := newUtterances()
		u.begin(1)
		u.begin(2)
		u.finish(1, nil)
		u.start(1)
		assertNoEvent(t, u.events)
		assert.False(t, u.active(1))
		assert.True(t, u.active(2))
	})

	t.Run("cancel retires the current utterance", func(t *testing.T) {
		u := newUtterances()
		u.begin(3)
		u.cancel()
		u.finish(3, errors.New("late"))
		assertNoEvent(t, u.events)
	})

	t.Run("finish with error", func(t *testing.T) {
		u := newUtterances()
		boom := errors.New("boom")
		u.begin(4)
		u.finish(4, boom)
		ev := nextEvent(t, u.events)
		assert.Equal(t, EventError, ev.Kind)
		assert.ErrorIs(t, ev.Err, boom)

		u.finish(4, nil)
		assertNoEvent(t, u.events)
	})
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "start", EventStart.String())
	assert.Equal(t, "end", EventEnd.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}

func TestMockTTSEngine_Manual(t *testing.T) {
	m := NewMockTTSEngine()

	require.ErrorIs(t, m.Speak(SpeakRequest{ID: 1, Text: "   "}), ErrEmptyText)

	require.NoError(t, m.Speak(SpeakRequest{ID: 1, Text: "hello"}))
	assert.Equal(t, Event{Utterance: 1, Kind: EventStart}, nextEvent(t, m.Events()))
	assert.Equal(t, uint64(1), m.Current())

	m.Complete()
	assert.Equal(t, Event{Utterance: 1, Kind: EventEnd}, nextEvent(t, m.Events()))

	require.NoError(t, m.Speak(SpeakRequest{ID: 2, Text: "world"}))
	nextEvent(t, m.Events())
	require.NoError(t, m.CancelAll())
	m.Complete()
	assertNoEvent(t, m.Events())

	require.NoError(t, m.Pause())
	assert.True(t, m.IsPaused())
	require.NoError(t, m.Resume())
	assert.False(t, m.IsPaused())

	cancels, pauses, resumes := m.Counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
	assert.Equal(t, []string{"hello", "world"}, m.Spoken())
}

func TestMockTTSEngine_Auto(t *testing.T) {
	boom := errors.New("synthesis failed")
	m := NewMockTTSEngine(WithAutoComplete(6000), WithFailure("bad line", boom))

	require.NoError(t, m.Speak(SpeakRequest{ID: 1, Text: "one two", Rate: 1}))
	assert.Equal(t, EventStart, nextEvent(t, m.Events()).Kind)
	assert.Equal(t, Event{Utterance: 1, Kind: EventEnd}, nextEvent(t, m.Events()))

	require.NoError(t, m.Speak(SpeakRequest{ID: 2, Text: "bad line", Rate: 1}))
	assert.Equal(t, EventStart, nextEvent(t, m.Events()).Kind)
	ev := nextEvent(t, m.Events())
	assert.Equal(t, EventError, ev.Kind)
	assert.ErrorIs(t, ev.Err, boom)
}

func TestMockTTSEngine_AutoHoldsWhilePaused(t *testing.T) {
	m := NewMockTTSEngine(WithAutoComplete(600))
	require.NoError(t, m.Speak(SpeakRequest{ID: 1, Text: "one two", Rate: 1}))
	nextEvent(t, m.Events())
	require.NoError(t, m.Pause())

	assertNoEvent(t, m.Events())
	time.Sleep(100 * time.Millisecond)
	assertNoEvent(t, m.Events())

	require.NoError(t, m.Resume())
	assert.Equal(t, EventEnd, nextEvent(t, m.Events()).Kind)
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(Config{Type: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockTTSEngine{}, engine)
	require.NoError(t, engine.Close())

	_, err = NewEngine(Config{Type: "telepathy"})
	assert.ErrorContains(t, err, "unsupported TTS engine type")

	assert.Contains(t, GetAvailableEngines(), EngineTypeMock)
	assert.Contains(t, GetAvailableEngines(), EngineTypeESpeak)
}

func TestESpeakArgs(t *testing.T) {
	s := &espeakSpeaker{path: "espeak-ng", config: Config{Voice: "default"}}

	args := s.args(SpeakRequest{Text: "hi", Rate: 1, Volume: 1, Pitch: 1, Language: "en-US"})
	assert.Equal(t, []string{"-v", "en-us", "-s", "175", "-a", "100", "-p", "50", "--stdin"}, args)

	args = s.args(SpeakRequest{Text: "hi", Rate: 3, Volume: 0.5, Pitch: 2, VoiceID: "zh"})
	assert.Equal(t, []string{"-v", "zh", "-s", "500", "-a", "50", "-p", "99", "--stdin"}, args)

	s.config.Voice = "en-gb"
	args = s.args(SpeakRequest{Text: "hi", Rate: 1, Volume: 1, Pitch: 1})
	assert.Equal(t, "en-gb", args[1])
}

func TestParseESpeakVoices(t *testing.T) {
	output := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  cmn             --/M      Chinese_(Mandarin) sit/cmn              (zh-cmn 5)(zh 5)

 5  en-us           --/F      English_(America)  gmw/en-US            (en 3)
`
	voices := parseESpeakVoices(output)
	require.Len(t, voices, 3)
	assert.Equal(t, VoiceInfo{ID: "af", Name: "Afrikaans", Language: "af", Gender: "M"}, voices[0])
	assert.Equal(t, "Chinese_(Mandarin)", voices[1].Name)
	assert.Equal(t, "F", voices[2].Gender)
}

func TestSayArgs(t *testing.T) {
	s := &saySpeaker{config: Config{Voice: "Alex"}}
	assert.Equal(t, []string{"-v", "Alex", "-r", "350", "-f", "-"}, s.args(SpeakRequest{Text: "hi", Rate: 2}))

	s.config.Voice = "default"
	assert.Equal(t, []string{"-r", "175", "-f", "-"}, s.args(SpeakRequest{Text: "hi"}))
}

func TestParseSayVoices(t *testing.T) {
	output := "Alex                en_US    # Most people recognize me by my voice.\n" +
		"Eddy (Chinese (China mainland)) zh_CN    # 你好！我叫Eddy。\n" +
		"not a voice line\n" +
		"Ava (Premium)       en_US    # Hello! My name is Ava.\n"

	voices := parseSayVoices(output)
	require.Len(t, voices, 3)
	assert.Equal(t, VoiceInfo{ID: "Alex", Name: "Alex", Language: "en-US"}, voices[0])
	assert.Equal(t, "Eddy (Chinese (China mainland))", voices[1].Name)
	assert.Equal(t, "zh-CN", voices[1].Language)
	assert.True(t, voices[2].Natural)
}

func TestSAPIScript(t *testing.T) {
	s := &sapiSpeaker{config: Config{Voice: "Microsoft Zira Desktop"}}
	script := s.script(SpeakRequest{Text: "it's late", Rate: 1.5, Volume: 0.8})

	assert.Contains(t, script, "$synth.SelectVoice('Microsoft Zira Desktop'); ")
	assert.Contains(t, script, "$synth.Rate = 5; ")
	assert.Contains(t, script, "$synth.Volume = 80; ")
	assert.Contains(t, script, "$synth.Speak('it''s late')")
}

func TestParseSAPIVoices(t *testing.T) {
	output := "Microsoft David Desktop|en-US|Male\r\nMicrosoft Huihui Desktop|zh-CN|Female\r\n\r\ngarbage\r\n"
	voices := parseSAPIVoices(output)
	require.Len(t, voices, 2)
	assert.Equal(t, VoiceInfo{ID: "Microsoft Huihui Desktop", Name: "Microsoft Huihui Desktop", Language: "zh-CN", Gender: "Female"}, voices[1])
}

func TestGoogleAudioConfig(t *testing.T) {
	g := &GoogleClassicTTSEngine{}

	cfg := g.audioConfig("en-US-Wavenet-D", SpeakRequest{Rate: 2, Pitch: 1.5, Volume: 1})
	assert.InDelta(t, 2.0, cfg.SpeakingRate, 1e-9)
	assert.InDelta(t, 10.0, cfg.Pitch, 1e-9)
	assert.InDelta(t, 0.0, cfg.VolumeGainDb, 1e-9)

	cfg = g.audioConfig("en-GB-Chirp3-HD-Umbriel", SpeakRequest{Rate: 2, Pitch: 1.5, Volume: 0.5})
	assert.Zero(t, cfg.SpeakingRate)
	assert.Zero(t, cfg.Pitch)
	assert.InDelta(t, -6.02, cfg.VolumeGainDb, 0.01)

	cfg = g.audioConfig("en-US-Standard-A", SpeakRequest{Rate: 9, Pitch: 0})
	assert.InDelta(t, 4.0, cfg.SpeakingRate, 1e-9)
	assert.InDelta(t, 0.0, cfg.Pitch, 1e-9)
	assert.InDelta(t, -96.0, cfg.VolumeGainDb, 1e-9)
}

func TestGooglePauseDuringSynthesis(t *testing.T) {
	g := &GoogleClassicTTSEngine{utt: newUtterances()}

	// no audio yet, as while the MP3 is synthesised or looked up
	require.NoError(t, g.Pause())
	assert.True(t, g.IsPaused())
	assert.True(t, g.newCtrlLocked(beep.Silence(10)).Paused, "playback starts held")

	require.NoError(t, g.Resume())
	assert.False(t, g.newCtrlLocked(beep.Silence(10)).Paused)

	require.NoError(t, g.Pause())
	require.NoError(t, g.CancelAll())
	assert.False(t, g.IsPaused(), "cancel clears a pending pause")
	assert.False(t, g.newCtrlLocked(beep.Silence(10)).Paused)
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "en-GB", languageFor("en-GB-Chirp3-HD-Umbriel", ""))
	assert.Equal(t, "cmn-CN", languageFor("cmn-CN-Wavenet-A", ""))
	assert.Equal(t, "zh-TW", languageFor("cmn-CN-Wavenet-A", "zh-TW"))
	assert.Equal(t, "en-US", languageFor("robot", ""))
}

func TestCacheStats(t *testing.T) {
	dir := t.TempDir()
	voiceDir := filepath.Join(dir, "google_classic", "en-GB-Chirp3-HD-Umbriel")
	require.NoError(t, os.MkdirAll(voiceDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(voiceDir, md5Sum("a")+".mp3"), make([]byte, 1024), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(voiceDir, "notes.txt"), []byte("x"), 0644))

	stats, err := cacheStats(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["cached_files"])
	assert.Equal(t, dir, stats["cache_directory"])
	assert.InDelta(t, 1024.0/(1024*1024), stats["total_size_mb"], 1e-12)
}

func TestRankVoices(t *testing.T) {
	voices := []VoiceInfo{
		{ID: "alex", Name: "Alex", Language: "en-US"},
		{ID: "meijia", Name: "Mei-Jia", Language: "zh-TW"},
		{ID: "tingting", Name: "Tingting", Language: "zh-CN"},
		{ID: "daniel", Name: "Daniel", Language: "en-GB"},
	}

	ranked := RankVoices(voices, "")
	assert.Equal(t, []string{"tingting", "meijia", "alex", "daniel"}, ids(ranked))

	ranked = RankVoices(voices, "en-US")
	assert.Equal(t, []string{"alex", "tingting", "daniel", "meijia"}, ids(ranked))

	// input is left untouched
	assert.Equal(t, "alex", voices[0].ID)

	assert.Equal(t, 8, ScoreVoice(VoiceInfo{Name: "Samantha (Enhanced)", Language: "fr-FR"}, ""))
	assert.Equal(t, 40+55+25, ScoreVoice(VoiceInfo{Name: "Mandarin", Language: "zh-cmn"}, ""))

	v, ok := FindVoice(voices, "daniel")
	assert.True(t, ok)
	assert.Equal(t, "en-GB", v.Language)
	_, ok = FindVoice(voices, "nobody")
	assert.False(t, ok)
}

func ids(voices []VoiceInfo) []string {
	out := make([]string, 0, len(voices))
	for _, v := range voices {
		out = append(out, v.ID)
	}
	return out
}

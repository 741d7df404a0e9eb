// Cross-platform eSpeak implementation
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// espeakSpeaker drives eSpeak/eSpeak-NG. Text is fed on stdin so it is never
// parsed as a flag.
type espeakSpeaker struct {
	path   string
	config Config
}

// newESpeakEngine creates a new eSpeak TTS engine
func newESpeakEngine(config Config) (*ProcessEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	if err := exec.Command(espeakPath, "--version").Run(); err != nil {
		return nil, fmt.Errorf("%w: eSpeak test failed: %v", ErrEngineUnavailable, err)
	}

	return newProcessEngine(&espeakSpeaker{path: espeakPath, config: config}), nil
}

func findESpeakExecutable() (string, error) {
	// Try different possible eSpeak executables
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

func (s *espeakSpeaker) name() string {
	return "espeak"
}

func (s *espeakSpeaker) command(req SpeakRequest) *exec.Cmd {
	cmd := exec.Command(s.path, s.args(req)...)
	cmd.Stdin = strings.NewReader(req.Text)
	return cmd
}

func (s *espeakSpeaker) args(req SpeakRequest) []string {
	args := []string{}

	voice := resolveVoice(req, s.config)
	if voice == "" {
		voice = strings.ToLower(req.Language)
	}
	if voice != "" {
		args = append(args, "-v", voice)
	}

	// words per minute, default is 175
	speed := int(175 * orDefault(req.Rate, 1))
	args = append(args, "-s", strconv.Itoa(int(clamp(float64(speed), 80, 500))))

	// amplitude 0-200, default is 100
	args = append(args, "-a", strconv.Itoa(int(clamp(req.Volume, 0, 1)*100)))

	// pitch 0-99, default is 50
	pitch := 50 * orDefault(req.Pitch, 1)
	args = append(args, "-p", strconv.Itoa(int(clamp(pitch, 0, 99))))

	return append(args, "--stdin")
}

func (s *espeakSpeaker) voices(ctx context.Context) ([]VoiceInfo, error) {
	output, err := exec.CommandContext(ctx, s.path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list eSpeak voices: %w", err)
	}
	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []VoiceInfo {
	lines := strings.Split(output, "\n")
	voices := make([]VoiceInfo, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Pty Language Age/Gender VoiceName File Other Languages
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		gender := ""
		if parts := strings.Split(fields[2], "/"); len(parts) == 2 {
			gender = parts[1]
		}
		voices = append(voices, VoiceInfo{
			ID:       fields[1],
			Name:     fields[3],
			Language: fields[1],
			Gender:   gender,
		})
	}

	return voices
}

package tts

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// saySpeaker uses macOS's built-in `say` command, which fronts AVFoundation.
type saySpeaker struct {
	config Config
}

func newAVFoundationEngine(config Config) (*ProcessEngine, error) {
	if _, err := exec.LookPath("say"); err != nil {
		return nil, fmt.Errorf("%w: say not found: %v", ErrEngineUnavailable, err)
	}
	return newProcessEngine(&saySpeaker{config: config}), nil
}

func (s *saySpeaker) name() string {
	return "avfoundation"
}

func (s *saySpeaker) command(req SpeakRequest) *exec.Cmd {
	cmd := exec.Command("say", s.args(req)...)
	cmd.Stdin = strings.NewReader(req.Text)
	return cmd
}

func (s *saySpeaker) args(req SpeakRequest) []string {
	args := []string{}

	if voice := resolveVoice(req, s.config); voice != "" {
		args = append(args, "-v", voice)
	}

	// words per minute, default is ~175
	rate := 175 * orDefault(req.Rate, 1)
	args = append(args, "-r", strconv.FormatFloat(rate, 'f', 0, 64))

	// read the message from stdin
	return append(args, "-f", "-")
}

// "Alex                en_US    # Most people recognize me by my voice."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

func (s *saySpeaker) voices(ctx context.Context) ([]VoiceInfo, error) {
	output, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list say voices: %w", err)
	}
	return parseSayVoices(string(output)), nil
}

func parseSayVoices(output string) []VoiceInfo {
	voices := make([]VoiceInfo, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := sayVoiceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, VoiceInfo{
			ID:       name,
			Name:     name,
			Language: strings.ReplaceAll(m[2], "_", "-"),
			Natural:  strings.Contains(strings.ToLower(name), "premium") || strings.Contains(strings.ToLower(name), "enhanced"),
		})
	}
	return voices
}

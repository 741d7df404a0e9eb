package tts

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// sapiSpeaker drives Windows SAPI through PowerShell's System.Speech.
type sapiSpeaker struct {
	config Config
}

func newSAPIEngine(config Config) (*ProcessEngine, error) {
	if _, err := exec.LookPath("powershell"); err != nil {
		return nil, fmt.Errorf("%w: powershell not found: %v", ErrEngineUnavailable, err)
	}
	return newProcessEngine(&sapiSpeaker{config: config}), nil
}

func (s *sapiSpeaker) name() string {
	return "sapi"
}

func (s *sapiSpeaker) command(req SpeakRequest) *exec.Cmd {
	return exec.Command("powershell", "-NoProfile", "-Command", s.script(req))
}

func (s *sapiSpeaker) script(req SpeakRequest) string {
	var b strings.Builder
	b.WriteString("Add-Type -AssemblyName System.Speech; ")
	b.WriteString("$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
	if voice := resolveVoice(req, s.config); voice != "" {
		fmt.Fprintf(&b, "$synth.SelectVoice('%s'); ", psQuote(voice))
	}
	// SAPI rate is -10..10, volume 0..100
	fmt.Fprintf(&b, "$synth.Rate = %d; ", int(clamp(orDefault(req.Rate, 1)*10-10, -10, 10)))
	fmt.Fprintf(&b, "$synth.Volume = %d; ", int(clamp(req.Volume, 0, 1)*100))
	fmt.Fprintf(&b, "$synth.Speak('%s')", psQuote(req.Text))
	return b.String()
}

func (s *sapiSpeaker) voices(ctx context.Context) ([]VoiceInfo, error) {
	script := "Add-Type -AssemblyName System.Speech; " +
		"(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | " +
		"ForEach-Object { $_.VoiceInfo.Name + '|' + $_.VoiceInfo.Culture.Name + '|' + $_.VoiceInfo.Gender }"
	output, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list SAPI voices: %w", err)
	}
	return parseSAPIVoices(string(output)), nil
}

func parseSAPIVoices(output string) []VoiceInfo {
	voices := make([]VoiceInfo, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "|")
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		voices = append(voices, VoiceInfo{ID: parts[0], Name: parts[0], Language: parts[1], Gender: parts[2]})
	}
	return voices
}

// psQuote escapes s for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

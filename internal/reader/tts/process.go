package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// commandSpeaker builds the command line for a platform speech tool.
type commandSpeaker interface {
	name() string
	command(req SpeakRequest) *exec.Cmd
	voices(ctx context.Context) ([]VoiceInfo, error)
}

// ProcessEngine speaks each utterance with its own subprocess of a local
// speech tool (eSpeak, say, PowerShell System.Speech).
type ProcessEngine struct {
	speaker commandSpeaker
	utt     *utterances
	log     *logrus.Entry

	mu     sync.Mutex
	cmd    *exec.Cmd
	paused bool
}

func newProcessEngine(s commandSpeaker) *ProcessEngine {
	return &ProcessEngine{
		speaker: s,
		utt:     newUtterances(),
		log:     logrus.WithField("engine", s.name()),
	}
}

func (e *ProcessEngine) Speak(req SpeakRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.killLocked()

	cmd := e.speaker.command(req)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.speaker.name(), err)
	}
	e.cmd = cmd
	e.paused = false

	e.utt.begin(req.ID)
	e.utt.start(req.ID)
	go e.wait(req.ID, cmd)

	return nil
}

func (e *ProcessEngine) wait(id uint64, cmd *exec.Cmd) {
	err := cmd.Wait()

	e.mu.Lock()
	if e.cmd == cmd {
		e.cmd = nil
		e.paused = false
	}
	e.mu.Unlock()

	if err != nil {
		if !e.utt.active(id) {
			// killed by CancelAll or a newer Speak
			return
		}
		e.log.WithError(err).WithField("utterance", id).Debug("Speech process failed")
		e.utt.finish(id, fmt.Errorf("%s exited: %w", e.speaker.name(), err))
		return
	}
	e.utt.finish(id, nil)
}

func (e *ProcessEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.cmd.Process == nil || e.paused {
		return nil
	}
	if err := suspendProcess(e.cmd.Process); err != nil {
		return err
	}
	e.paused = true
	return nil
}

func (e *ProcessEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.cmd.Process == nil || !e.paused {
		return nil
	}
	if err := resumeProcess(e.cmd.Process); err != nil {
		return err
	}
	e.paused = false
	return nil
}

func (e *ProcessEngine) CancelAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killLocked()
	return nil
}

// IsPaused reports whether the current process is suspended.
func (e *ProcessEngine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *ProcessEngine) Voices(ctx context.Context) ([]VoiceInfo, error) {
	return e.speaker.voices(ctx)
}

func (e *ProcessEngine) Events() <-chan Event {
	return e.utt.events
}

func (e *ProcessEngine) Close() error {
	return e.CancelAll()
}

// killLocked retires the current utterance before killing its process so the
// exit is never reported.
func (e *ProcessEngine) killLocked() {
	e.utt.cancel()
	if e.cmd == nil || e.cmd.Process == nil {
		return
	}
	if err := e.cmd.Process.Kill(); err != nil {
		e.log.WithError(err).Debug("Failed to kill speech process")
	}
	e.cmd = nil
	e.paused = false
}

// resolveVoice picks the request's voice, falling back to the configured one.
// "default" means let the tool decide.
func resolveVoice(req SpeakRequest, cfg Config) string {
	v := req.VoiceID
	if v == "" {
		v = cfg.Voice
	}
	if v == "default" {
		return ""
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

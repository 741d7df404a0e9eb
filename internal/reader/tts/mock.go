package tts

import (
	"context"
	"strings"
	"sync"
	"time"

	"readaloud/internal/cli/scheme/colours"
)

// MockTTSEngine is an engine without audio. In manual mode the caller drives
// each utterance with Complete or Fail; in auto mode utterances finish after a
// reading time estimated from their word count.
type MockTTSEngine struct {
	utt *utterances

	mu       sync.Mutex
	requests []SpeakRequest
	current  uint64
	paused   bool
	cancels  int
	pauses   int
	resumes  int

	auto    bool
	wpm     float64
	tick    time.Duration
	verbose bool
	failOn  map[string]error
}

// MockOption configures a MockTTSEngine.
type MockOption func(*MockTTSEngine)

// WithAutoComplete finishes each utterance after its simulated reading time
// at wordsPerMinute.
func WithAutoComplete(wordsPerMinute float64) MockOption {
	return func(m *MockTTSEngine) {
		m.auto = true
		if wordsPerMinute > 0 {
			m.wpm = wordsPerMinute
		}
	}
}

// WithEcho prints every utterance to the terminal.
func WithEcho() MockOption {
	return func(m *MockTTSEngine) {
		m.verbose = true
	}
}

// WithFailure makes auto mode fail any utterance whose text equals text.
func WithFailure(text string, err error) MockOption {
	return func(m *MockTTSEngine) {
		m.failOn[text] = err
	}
}

func NewMockTTSEngine(opts ...MockOption) *MockTTSEngine {
	m := &MockTTSEngine{
		utt:    newUtterances(),
		wpm:    150,
		tick:   20 * time.Millisecond,
		failOn: make(map[string]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockTTSEngine) Speak(req SpeakRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.current = req.ID
	m.paused = false
	m.mu.Unlock()

	if m.verbose {
		colours.Speech.Printf("🔊 %s\n", req.Text)
	}

	m.utt.begin(req.ID)
	m.utt.start(req.ID)

	if m.auto {
		go m.play(req)
	}
	return nil
}

// play simulates reading time, which only elapses while not paused.
func (m *MockTTSEngine) play(req SpeakRequest) {
	words := len(strings.Fields(req.Text))
	rate := orDefault(req.Rate, 1)
	remaining := time.Duration(float64(words) / (m.wpm * rate) * float64(time.Minute))

	for remaining > 0 {
		time.Sleep(m.tick)
		if !m.utt.active(req.ID) {
			return
		}
		if !m.IsPaused() {
			remaining -= m.tick
		}
	}

	m.utt.finish(req.ID, m.failOn[req.Text])
}

// Complete finishes the current utterance successfully.
func (m *MockTTSEngine) Complete() {
	m.utt.finish(m.Current(), nil)
}

// Fail finishes the current utterance with err.
func (m *MockTTSEngine) Fail(err error) {
	m.utt.finish(m.Current(), err)
}

// Current returns the ID of the most recent utterance.
func (m *MockTTSEngine) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Requests returns every request spoken so far.
func (m *MockTTSEngine) Requests() []SpeakRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SpeakRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Spoken returns the text of every request spoken so far.
func (m *MockTTSEngine) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r.Text)
	}
	return out
}

// Counts returns how often CancelAll, Pause and Resume were called.
func (m *MockTTSEngine) Counts() (cancels, pauses, resumes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels, m.pauses, m.resumes
}

func (m *MockTTSEngine) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *MockTTSEngine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	m.paused = true
	return nil
}

func (m *MockTTSEngine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	m.paused = false
	return nil
}

func (m *MockTTSEngine) CancelAll() error {
	m.utt.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	m.paused = false
	return nil
}

func (m *MockTTSEngine) Voices(ctx context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{
		{ID: "mock-voice", Name: "Mock Voice", Language: "en-US"},
		{ID: "mock-cmn", Name: "Mock Mandarin", Language: "zh-CN"},
	}, nil
}

func (m *MockTTSEngine) Events() <-chan Event {
	return m.utt.events
}

func (m *MockTTSEngine) Close() error {
	return m.CancelAll()
}

// Package player drives a speech engine through a chapter one segment at a
// time and keeps the listener's place.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"readaloud/internal/domain/segment"
	"readaloud/internal/progress"
	"readaloud/internal/reader/tts"
)

var (
	// ErrNothingToRead is returned when the text has no readable segments.
	ErrNothingToRead = errors.New("nothing to read")

	// ErrUtteranceTimeout is reported when the watchdog gives up on an utterance.
	ErrUtteranceTimeout = errors.New("utterance timed out")
)

const saveTimeout = 5 * time.Second

// utteranceIDs numbers utterances across controllers, which may share an
// engine and its event channel.
var utteranceIDs atomic.Uint64

type Option func(*Controller)

// WithStore persists the cursor of bookID/chapterID into store.
func WithStore(store progress.Store, bookID, chapterID string) Option {
	return func(c *Controller) {
		c.store = store
		c.bookID = bookID
		c.chapterID = chapterID
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithWatchdog fails any utterance that has not finished after d.
func WithWatchdog(d time.Duration) Option {
	return func(c *Controller) {
		c.watchdog = d
	}
}

func WithVoice(v Voice) Option {
	return func(c *Controller) {
		c.voice = v
	}
}

func WithSegmenter(s *segment.Segmenter) Option {
	return func(c *Controller) {
		c.segmenter = s
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// Controller is the playback state machine for one chapter.
//
// Public methods and engine events are serialised by mu. Engine events must
// be fed in through Run.
type Controller struct {
	engine    tts.Engine
	segmenter *segment.Segmenter
	store     progress.Store
	observers []Observer
	watchdog  time.Duration
	log       *logrus.Entry

	mu        sync.Mutex
	bookID    string
	chapterID string
	text      string
	segments  []segment.Segment
	cursor    int
	phase     Phase
	voice     Voice

	// utterance is the ID of the in-flight utterance, 0 when none.
	utterance uint64
	// advance is set when the current utterance ended while paused.
	advance bool
	timer   *time.Timer
	pending []Event
}

// New returns an idle controller driving engine.
func New(engine tts.Engine, opts ...Option) (*Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", tts.ErrEngineUnavailable)
	}

	c := &Controller{
		engine:    engine,
		segmenter: segment.New(),
		voice:     DefaultVoice(),
		log:       logrus.WithField("component", "player"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run feeds engine events into the controller until ctx is done or the
// engine's event channel is closed.
func (c *Controller) Run(ctx context.Context) error {
	events := c.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handle(ev)
		}
	}
}

// SetText replaces the text, stopping playback and rewinding to the start.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	defer c.unlock()

	c.setTextLocked(text)
}

// OpenChapter switches to another chapter's text and progress key.
func (c *Controller) OpenChapter(bookID, chapterID, text string) {
	c.mu.Lock()
	defer c.unlock()

	c.setTextLocked(text)
	c.bookID = bookID
	c.chapterID = chapterID
}

func (c *Controller) setTextLocked(text string) {
	c.cancelLocked()
	c.setPhaseLocked(Idle)
	c.text = text
	c.segments = nil
	c.cursor = 0
}

// Restore moves the cursor to the saved progress of the current chapter.
// It reports whether a record was found.
func (c *Controller) Restore(ctx context.Context) (int, bool) {
	c.mu.Lock()
	defer c.unlock()

	if c.store == nil || c.bookID == "" || c.chapterID == "" {
		return 0, false
	}

	rec, err := c.store.Load(ctx, c.bookID, c.chapterID)
	if err != nil {
		if !errors.Is(err, progress.ErrNotFound) {
			c.log.WithError(err).Warn("Failed to load progress")
		}
		return 0, false
	}

	c.ensureSegmentsLocked()
	if len(c.segments) == 0 {
		return 0, false
	}
	c.cursor = min(max(rec.Index, 0), len(c.segments)-1)
	return c.cursor, true
}

// PlayFrom starts reading at segment index, cancelling whatever is playing.
func (c *Controller) PlayFrom(index int) error {
	c.mu.Lock()
	defer c.unlock()

	return c.playFromLocked(index)
}

// PlayFromOffset starts reading at the segment containing a rune offset of
// the normalized text.
func (c *Controller) PlayFromOffset(offset int) error {
	c.mu.Lock()
	defer c.unlock()

	c.ensureSegmentsLocked()
	if len(c.segments) == 0 {
		return ErrNothingToRead
	}
	return c.playFromLocked(segment.Locate(c.segments, offset))
}

func (c *Controller) playFromLocked(index int) error {
	c.ensureSegmentsLocked()
	if len(c.segments) == 0 {
		return ErrNothingToRead
	}

	c.cancelLocked()
	c.cursor = min(max(index, 0), len(c.segments)-1)
	c.setPhaseLocked(Playing)
	c.speakLocked()
	return nil
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.unlock()

	c.pauseLocked()
}

func (c *Controller) pauseLocked() {
	if c.phase != Playing {
		return
	}
	if err := c.engine.Pause(); err != nil {
		c.log.WithError(err).Warn("Engine could not pause")
	}
	c.stopWatchdogLocked()
	c.setPhaseLocked(Paused)
	c.persistLocked()
}

func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.unlock()

	c.resumeLocked()
}

func (c *Controller) resumeLocked() {
	if c.phase != Paused {
		return
	}
	c.setPhaseLocked(Playing)

	if c.advance {
		c.advance = false
		c.cursor++
		c.speakLocked()
		return
	}

	if err := c.engine.Resume(); err != nil {
		c.log.WithError(err).Warn("Engine could not resume")
	}
	c.armWatchdogLocked(c.utterance)
	c.persistLocked()
}

// Stop cancels playback and keeps the cursor.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()

	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.cancelLocked()
	c.setPhaseLocked(Idle)
	c.persistLocked()
}

// RestartFromHead stops and rewinds to the first segment without playing.
func (c *Controller) RestartFromHead() {
	c.mu.Lock()
	defer c.unlock()

	c.stopLocked()
	c.cursor = 0
	c.persistLocked()
}

// Toggle plays when idle, pauses when playing and resumes when paused.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	defer c.unlock()

	switch c.phase {
	case Playing:
		c.pauseLocked()
	case Paused:
		c.resumeLocked()
	default:
		c.ensureSegmentsLocked()
		from := c.cursor
		if from >= len(c.segments) {
			from = 0
		}
		return c.playFromLocked(from)
	}
	return nil
}

// Skip moves by delta segments. While playing the new segment starts at once.
func (c *Controller) Skip(delta int) error {
	c.mu.Lock()
	defer c.unlock()

	c.ensureSegmentsLocked()
	if len(c.segments) == 0 {
		return ErrNothingToRead
	}
	target := min(max(c.cursor+delta, 0), len(c.segments)-1)
	if c.phase == Idle {
		c.cursor = target
		c.persistLocked()
		return nil
	}
	return c.playFromLocked(target)
}

// SetVoice applies v from the next utterance on.
func (c *Controller) SetVoice(v Voice) {
	c.mu.Lock()
	defer c.unlock()

	c.voice = v
}

func (c *Controller) Voice() Voice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Phase: c.phase, Cursor: c.cursor, Total: len(c.segments)}
	if c.cursor < len(c.segments) {
		seg := c.segments[c.cursor]
		st.Current = &seg
	}
	return st
}

// Segments returns the current segmentation, computing it if needed.
func (c *Controller) Segments() []segment.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureSegmentsLocked()
	out := make([]segment.Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// Close stops playback and releases the engine.
func (c *Controller) Close() error {
	c.Stop()
	return c.engine.Close()
}

// handle applies one engine event.
func (c *Controller) handle(ev tts.Event) {
	c.mu.Lock()
	defer c.unlock()

	if ev.Utterance == 0 || ev.Utterance != c.utterance {
		c.log.WithFields(logrus.Fields{
			"utterance": ev.Utterance,
			"kind":      ev.Kind.String(),
		}).Debug("Ignoring stale engine event")
		return
	}

	switch ev.Kind {
	case tts.EventStart:
		return
	case tts.EventError:
		if errors.Is(ev.Err, ErrUtteranceTimeout) {
			// the watchdog is re-armed on Resume
			if c.phase != Playing {
				return
			}
			if err := c.engine.CancelAll(); err != nil {
				c.log.WithError(err).Warn("Engine could not cancel")
			}
		}
		c.reportFailureLocked(ev.Err)
	}

	c.utterance = 0
	c.stopWatchdogLocked()

	switch c.phase {
	case Playing:
		c.cursor++
		c.speakLocked()
	case Paused:
		c.advance = true
	}
}

// speakLocked is the speak loop: it hands segments[cursor] to the engine, or
// finishes when the cursor has run off the end. Utterances that fail to start
// are skipped.
func (c *Controller) speakLocked() {
	for c.phase == Playing {
		if c.cursor >= len(c.segments) {
			c.cursor = 0
			c.setPhaseLocked(Idle)
			c.persistLocked()
			c.emit(Event{Kind: Finished, Phase: Idle, Total: len(c.segments)})
			return
		}

		c.persistLocked()
		seg := c.segments[c.cursor]
		c.emit(Event{Kind: SegmentStarted, Phase: c.phase, Index: c.cursor, Total: len(c.segments), Segment: seg})

		id := utteranceIDs.Add(1)
		c.utterance = id
		err := c.engine.Speak(tts.SpeakRequest{
			ID:       id,
			Text:     seg.Text,
			Rate:     c.voice.Rate,
			Volume:   c.voice.Volume,
			Pitch:    c.voice.Pitch,
			Language: c.voice.Language,
			VoiceID:  c.voice.ID,
		})
		if err == nil {
			c.armWatchdogLocked(id)
			return
		}

		c.utterance = 0
		c.reportFailureLocked(err)
		c.cursor++
	}
}

// cancelLocked drops the in-flight utterance so its events are ignored.
func (c *Controller) cancelLocked() {
	c.utterance = 0
	c.advance = false
	c.stopWatchdogLocked()
	if err := c.engine.CancelAll(); err != nil {
		c.log.WithError(err).Warn("Engine could not cancel")
	}
}

func (c *Controller) reportFailureLocked(err error) {
	seg := segment.Segment{}
	if c.cursor < len(c.segments) {
		seg = c.segments[c.cursor]
	}
	c.log.WithError(err).WithFields(logrus.Fields{
		"index": c.cursor,
		"total": len(c.segments),
	}).Warn("Utterance failed, skipping segment")
	c.emit(Event{Kind: Diagnostic, Phase: c.phase, Index: c.cursor, Total: len(c.segments), Segment: seg, Err: err})
}

func (c *Controller) ensureSegmentsLocked() {
	if len(c.segments) == 0 {
		c.segments = c.segmenter.Split(c.text)
	}
}

func (c *Controller) setPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.phase = p
	c.emit(Event{Kind: PhaseChanged, Phase: p, Index: c.cursor, Total: len(c.segments)})
}

// persistLocked saves the cursor. Nothing is written without segments or a
// chapter to attach the cursor to, and store errors never reach the caller.
func (c *Controller) persistLocked() {
	if c.store == nil || len(c.segments) == 0 || c.bookID == "" || c.chapterID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	rec := progress.Record{
		BookID:    c.bookID,
		ChapterID: c.chapterID,
		Index:     min(max(c.cursor, 0), len(c.segments)),
	}
	if err := c.store.Save(ctx, rec); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"book":    c.bookID,
			"chapter": c.chapterID,
		}).Warn("Failed to save progress")
	}
}

func (c *Controller) armWatchdogLocked(id uint64) {
	c.stopWatchdogLocked()
	if c.watchdog <= 0 || id == 0 {
		return
	}
	c.timer = time.AfterFunc(c.watchdog, func() {
		c.handle(tts.Event{Utterance: id, Kind: tts.EventError, Err: ErrUtteranceTimeout})
	})
}

func (c *Controller) stopWatchdogLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) emit(ev Event) {
	c.pending = append(c.pending, ev)
}

// unlock releases mu and then delivers queued events to observers.
func (c *Controller) unlock() {
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range events {
		for _, o := range c.observers {
			o(ev)
		}
	}
}

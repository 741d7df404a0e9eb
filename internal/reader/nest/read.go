package nest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/progress"
	"readaloud/internal/reader/player"
)

// startAt says where a session begins. Negative fields are unset; with both
// unset the saved progress of the chapter is used.
type startAt struct {
	index  int
	offset int
}

func restoreStart() startAt {
	return startAt{index: -1, offset: -1}
}

// Read listens to a chapter, asking for the book or chapter when not given.
func (ra *ReadAloud) Read(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(ra.in)

	var bookID, chapterID string
	if len(args) > 0 {
		bookID = args[0]
	}
	if len(args) > 1 {
		chapterID = args[1]
	}

	sel, err := ra.resolve(reader, bookID, chapterID)
	if errors.Is(err, errCancelled) {
		colours.Warning.Fprintln(ra.out, "👋 Maybe next time!")
		return nil
	}
	if err != nil {
		return err
	}

	start := restoreStart()
	if cmd.Flags().Changed("from") {
		start.index, _ = cmd.Flags().GetInt("from")
	}
	if cmd.Flags().Changed("offset") {
		start.offset, _ = cmd.Flags().GetInt("offset")
	}
	follow, _ := cmd.Flags().GetBool("continue")

	prefs, err := ra.preferences(cmd)
	if err != nil {
		return err
	}
	return ra.listen(reader, sel, start, prefs, follow)
}

// Resume continues the most recently heard chapter, of one book if given.
func (ra *ReadAloud) Resume(cmd *cobra.Command, args []string) error {
	store, err := ra.Store()
	if err != nil {
		return err
	}

	var rec *progress.Record
	if len(args) > 0 {
		rec, err = store.Load(ra.ctx, args[0], "")
	} else {
		rec, err = store.Last(ra.ctx)
	}
	if errors.Is(err, progress.ErrNotFound) {
		colours.Warning.Fprintln(ra.out, "🔍 No saved progress yet. Start with 'readaloud read'.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	reader := bufio.NewReader(ra.in)
	sel, err := ra.resolve(reader, rec.BookID, rec.ChapterID)
	if err != nil {
		return err
	}

	prefs, err := ra.preferences(cmd)
	if err != nil {
		return err
	}
	follow, _ := cmd.Flags().GetBool("continue")

	colours.Success.Fprintf(ra.out, "⏯️  Resuming from segment %d\n", rec.Index+1)
	return ra.listen(reader, sel, startAt{index: rec.Index, offset: -1}, prefs, follow)
}

// listen runs one playback session until the listener stops, the chapter
// (or with follow, the book) ends, the sleep timer fires or ra.ctx is done.
func (ra *ReadAloud) listen(reader *bufio.Reader, sel *selection, start startAt, prefs progress.Preferences, follow bool) error {
	engine, err := ra.Engine()
	if err != nil {
		return err
	}
	store, err := ra.Store()
	if err != nil {
		return err
	}
	catalog, err := ra.Catalog()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ra.ctx)
	defer cancel()

	finished := make(chan struct{}, 1)
	ctrl, err := player.New(engine,
		player.WithStore(store, sel.book.ID, sel.chapter.ID),
		player.WithVoice(voiceOf(prefs)),
		player.WithWatchdog(ra.cfg.TTS.Watchdog),
		player.WithObserver(ra.printEvent),
		player.WithObserver(func(ev player.Event) {
			if ev.Kind == player.Finished {
				select {
				case finished <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	go ctrl.Run(ctx)
	defer ctrl.Stop()

	text, err := catalog.Text(ctx, sel.chapter)
	if err != nil {
		return err
	}
	ctrl.OpenChapter(sel.book.ID, sel.chapter.ID, text)
	ra.printNowReading(sel)

	switch {
	case start.offset >= 0:
		err = ctrl.PlayFromOffset(start.offset)
	case start.index >= 0:
		err = ctrl.PlayFrom(start.index)
	default:
		index, restored := ctrl.Restore(ctx)
		if restored {
			colours.Success.Fprintf(ra.out, "⏯️  Restored progress at segment %d\n", index+1)
		}
		err = ctrl.PlayFrom(index)
	}
	if errors.Is(err, player.ErrNothingToRead) {
		colours.Warning.Fprintln(ra.out, "📭 Nothing to read in this chapter.")
		return nil
	}
	if err != nil {
		return err
	}

	slept := make(chan struct{})
	if prefs.SleepMinutes > 0 {
		d := time.Duration(prefs.SleepMinutes) * time.Minute
		timer := time.AfterFunc(d, func() {
			ctrl.Stop()
			close(slept)
		})
		defer timer.Stop()
		colours.Info.Fprintf(ra.out, "😴 Sleep timer set for %d minutes\n", prefs.SleepMinutes)
	}

	fmt.Fprintln(ra.out, "💡 Keys: 'p' pause/resume, 's' stop, 'r' restart, 'n'/'b' next/back, 'q' quit")
	lines := readLines(ctx, reader)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-slept:
			colours.Prompt.Fprintln(ra.out, "😴 Sleep timer ended playback. Sleep tight! 🌙")
			return nil

		case <-finished:
			if follow && ra.advance(ctx, ctrl, sel) {
				continue
			}
			colours.Success.Fprintln(ra.out, "✅ Finished! 🌟")
			return nil

		case line, ok := <-lines:
			if !ok {
				// no more input, keep listening
				lines = nil
				continue
			}
			if ra.handleKey(ctrl, line) {
				return nil
			}
		}
	}
}

// advance opens the next readable chapter of the book and starts it.
func (ra *ReadAloud) advance(ctx context.Context, ctrl *player.Controller, sel *selection) bool {
	catalog, err := ra.Catalog()
	if err != nil {
		return false
	}

	for {
		next, ok := sel.manifest.Next(sel.chapter.ID)
		if !ok {
			return false
		}
		sel.chapter = next

		text, err := catalog.Text(ctx, next)
		if err != nil {
			ra.log.WithError(err).WithField("chapter", next.ID).Warn("Failed to load chapter, skipping")
			continue
		}
		ctrl.OpenChapter(sel.book.ID, next.ID, text)
		if err := ctrl.PlayFrom(0); err != nil {
			continue
		}
		ra.printNowReading(sel)
		return true
	}
}

// handleKey applies one line of keyboard input. It reports whether the
// session should end.
func (ra *ReadAloud) handleKey(ctrl *player.Controller, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "p", "pause":
		if err := ctrl.Toggle(); err != nil {
			colours.Error.Fprintf(ra.out, "❌ %v\n", err)
			return false
		}
		if ctrl.Status().Phase == player.Paused {
			colours.Warning.Fprintln(ra.out, "⏸️  Paused")
		} else {
			colours.Success.Fprintln(ra.out, "▶️  Playing")
		}
	case "s", "stop":
		ctrl.Stop()
		colours.Warning.Fprintln(ra.out, "⏹️  Stopped, progress saved")
		return true
	case "r", "restart":
		ctrl.RestartFromHead()
		colours.Info.Fprintln(ra.out, "⏮️  Back at the start, press 'p' to play")
	case "n", "next":
		if err := ctrl.Skip(1); err != nil {
			colours.Error.Fprintf(ra.out, "❌ %v\n", err)
		}
	case "b", "back":
		if err := ctrl.Skip(-1); err != nil {
			colours.Error.Fprintf(ra.out, "❌ %v\n", err)
		}
	case "q", "quit":
		ctrl.Stop()
		return true
	case "":
	default:
		colours.Info.Fprintln(ra.out, "ℹ️  Use 'p' to pause/resume, 's' to stop, 'r' to restart, 'n'/'b' to skip")
	}
	return false
}

func (ra *ReadAloud) printNowReading(sel *selection) {
	fmt.Fprintln(ra.out)
	colours.Title.Fprintf(ra.out, "📖 %s / %s\n", sel.manifest.Title, sel.chapter.DisplayTitle())
	fmt.Fprintln(ra.out)
}

func (ra *ReadAloud) printEvent(ev player.Event) {
	switch ev.Kind {
	case player.SegmentStarted:
		colours.Info.Fprintf(ra.out, "[%d/%d] ", ev.Index+1, ev.Total)
		fmt.Fprintln(ra.out, ev.Segment.Text)
	case player.Diagnostic:
		colours.Warning.Fprintf(ra.out, "⚠️  Skipped segment %d: %v\n", ev.Index+1, ev.Err)
	}
}

// readLines delivers input lines until EOF or ctx is done.
func readLines(ctx context.Context, reader *bufio.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if line != "" || err == nil {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

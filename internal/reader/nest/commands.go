package nest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/domain/segment"
	"readaloud/internal/progress"
	"readaloud/internal/reader/tts"
)

// Segment prints how a text file (or stdin) is split into utterances.
func (ra *ReadAloud) Segment(cmd *cobra.Command, args []string) error {
	maxLength, _ := cmd.Flags().GetInt("max")
	minChunk, _ := cmd.Flags().GetInt("min")
	asJSON, _ := cmd.Flags().GetBool("json")

	var (
		body []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		body, err = io.ReadAll(ra.in)
	} else {
		body, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}

	segs := segment.New(segment.WithMaxLength(maxLength), segment.WithMinSoftChunk(minChunk)).Split(string(body))

	if asJSON {
		encoder := json.NewEncoder(ra.out)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		if segs == nil {
			segs = []segment.Segment{}
		}
		return encoder.Encode(segs)
	}

	if len(segs) == 0 {
		colours.Warning.Fprintln(ra.out, "📭 Nothing to read.")
		return nil
	}
	for i, s := range segs {
		colours.Muted.Fprintf(ra.out, "%4d [%d,%d) ", i+1, s.Start, s.End)
		fmt.Fprintln(ra.out, s.Text)
	}
	colours.Success.Fprintf(ra.out, "✨ %d segments\n", len(segs))
	return nil
}

// Voices lists the speech engine's voices, best match for the language first.
func (ra *ReadAloud) Voices(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	prefs, err := ra.preferences(cmd)
	if err != nil {
		return err
	}
	engine, err := ra.Engine()
	if err != nil {
		return err
	}

	voices, err := engine.Voices(ra.ctx)
	if err != nil {
		return err
	}
	ranked := tts.RankVoices(voices, prefs.Language)

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "🎤 Available Voices 🎤")
	fmt.Fprintln(ra.out)

	for i, v := range ranked {
		if limit > 0 && i >= limit {
			colours.Info.Fprintf(ra.out, "  … and %d more (use --limit 0 to show all)\n", len(ranked)-limit)
			break
		}
		marker := "  "
		if v.ID == prefs.VoiceID {
			marker = "★ "
		}
		fmt.Fprintf(ra.out, "%s", marker)
		colours.Author.Fprintf(ra.out, "%s", v.Name)
		fmt.Fprintf(ra.out, " (%s)", v.Language)
		colours.Info.Fprintf(ra.out, "  ID: %s\n", v.ID)
	}

	if len(ranked) == 0 {
		colours.Warning.Fprintln(ra.out, "🔍 The engine reported no voices.")
	}
	return nil
}

// Progress shows the last saved position, overall or for one book.
func (ra *ReadAloud) Progress(cmd *cobra.Command, args []string) error {
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
		colours.Warning.Fprintln(ra.out, "🔍 No saved progress yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load progress: %w", err)
	}

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "📊 Reading Progress")
	fmt.Fprintf(ra.out, "  • Book: %s\n", rec.BookID)
	fmt.Fprintf(ra.out, "  • Chapter: %s\n", rec.ChapterID)
	fmt.Fprintf(ra.out, "  • Segment: %d\n", rec.Index+1)
	fmt.Fprintf(ra.out, "  • Saved: %s\n", rec.SavedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// ShowCacheStatus displays the library and synthesized audio caches.
func (ra *ReadAloud) ShowCacheStatus(cmd *cobra.Command, args []string) error {
	colours.Title.Fprintln(ra.out, "📊 Cache Status")

	catalog, err := ra.Catalog()
	if err != nil {
		return err
	}
	info := catalog.CacheInfo()
	if exists, _ := info["exists"].(bool); exists {
		colours.Success.Fprintln(ra.out, "✅ Library cache exists")
		colours.Info.Fprintf(ra.out, "📏 Size: %d bytes\n", info["size"].(int64))
		colours.Info.Fprintf(ra.out, "🕐 Last modified: %s\n", info["last_modified"].(time.Time).Format("2006-01-02 15:04:05"))
		if info["is_fresh"].(bool) {
			colours.Success.Fprintln(ra.out, "🔄 Cache is fresh")
		} else {
			colours.Warning.Fprintln(ra.out, "⏰ Cache is stale")
		}
	} else {
		colours.Info.Fprintln(ra.out, "📁 No library cache")
	}

	engine, err := ra.Engine()
	if err != nil {
		ra.log.WithError(err).Debug("No engine for cache status")
		return nil
	}
	cacheable, ok := engine.(tts.CacheableEngine)
	if !ok {
		colours.Info.Fprintln(ra.out, "🔈 The speech engine keeps no audio cache")
		return nil
	}
	stats, err := cacheable.CacheStats()
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}
	colours.Info.Fprintf(ra.out, "🔈 Audio cache: %v files, %.2f MB in %v\n",
		stats["cached_files"], stats["total_size_mb"], stats["cache_directory"])
	return nil
}

// ClearCache removes the library and synthesized audio caches.
func (ra *ReadAloud) ClearCache(cmd *cobra.Command, args []string) error {
	catalog, err := ra.Catalog()
	if err != nil {
		return err
	}
	if err := catalog.ClearCache(); err != nil {
		return err
	}

	if engine, err := ra.Engine(); err == nil {
		if cacheable, ok := engine.(tts.CacheableEngine); ok {
			if err := cacheable.ClearCache(); err != nil {
				return fmt.Errorf("failed to clear audio cache: %w", err)
			}
		}
	}

	colours.Success.Fprintln(ra.out, "✅ Caches cleared")
	return nil
}

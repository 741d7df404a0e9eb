// Package nest is the readaloud application: it wires the library catalog,
// the progress store and a speech engine behind the CLI commands.
package nest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/config"
	"readaloud/internal/domain/library"
	"readaloud/internal/progress"
	"readaloud/internal/reader/tts"
)

// EngineFactory builds the speech engine for a session.
type EngineFactory func(tts.Config) (tts.Engine, error)

type Option func(*ReadAloud)

// WithEngineFactory replaces tts.NewEngine.
func WithEngineFactory(f EngineFactory) Option {
	return func(ra *ReadAloud) {
		ra.newEngine = f
	}
}

// WithStore uses store instead of the configured progress backend.
func WithStore(store progress.Store) Option {
	return func(ra *ReadAloud) {
		ra.store = store
	}
}

// WithIO redirects keyboard input and terminal output.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(ra *ReadAloud) {
		ra.in = in
		ra.out = &syncWriter{w: out}
	}
}

// ReadAloud main application structure
type ReadAloud struct {
	cfg       *config.Config
	ctx       context.Context
	newEngine EngineFactory
	in        io.Reader
	out       io.Writer
	log       *logrus.Entry

	mu      sync.Mutex
	catalog *library.Catalog
	store   progress.Store
	engine  tts.Engine
}

// New creates the application. Resources are opened on first use, so commands
// that need no speech engine or store never touch them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) *ReadAloud {
	ra := &ReadAloud{
		cfg:       cfg,
		ctx:       ctx,
		newEngine: tts.NewEngine,
		in:        os.Stdin,
		out:       &syncWriter{w: os.Stdout},
		log:       logrus.WithField("component", "nest"),
	}
	for _, opt := range opts {
		opt(ra)
	}
	return ra
}

func (ra *ReadAloud) Catalog() (*library.Catalog, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.catalog != nil {
		return ra.catalog, nil
	}

	opts := []library.Option{library.WithTimeout(ra.cfg.Library.Timeout)}
	if ra.cfg.Library.CacheMaxAge > 0 {
		opts = append(opts, library.WithCache(filepath.Join(config.DataDir(), "library"), ra.cfg.Library.CacheMaxAge))
	}
	catalog, err := library.NewCatalog(ra.cfg.Library.Location, opts...)
	if err != nil {
		return nil, err
	}
	ra.catalog = catalog
	return catalog, nil
}

func (ra *ReadAloud) Store() (progress.Store, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.store != nil {
		return ra.store, nil
	}
	store, err := progress.NewStore(ra.ctx, ra.cfg.Progress)
	if err != nil {
		return nil, err
	}
	ra.store = store
	return store, nil
}

func (ra *ReadAloud) Engine() (tts.Engine, error) {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	if ra.engine != nil {
		return ra.engine, nil
	}
	engine, err := ra.newEngine(tts.Config{
		Type:      ra.cfg.TTS.Type,
		Voice:     ra.cfg.TTS.Voice,
		Speed:     ra.cfg.TTS.Speed,
		Volume:    ra.cfg.TTS.Volume,
		Pitch:     ra.cfg.TTS.Pitch,
		Language:  ra.cfg.TTS.Language,
		CachePath: ra.cfg.TTS.CachePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tts engine: %w", err)
	}
	ra.engine = engine
	return engine, nil
}

// Close releases the engine and the store.
func (ra *ReadAloud) Close() error {
	ra.mu.Lock()
	defer ra.mu.Unlock()

	var errs []error
	if ra.engine != nil {
		errs = append(errs, ra.engine.Close())
		ra.engine = nil
	}
	if ra.store != nil {
		errs = append(errs, ra.store.Close())
		ra.store = nil
	}
	return errors.Join(errs...)
}

func (ra *ReadAloud) ShowWelcome() {
	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "📖 Welcome to ReadAloud! 📖")
	fmt.Fprintln(ra.out)
	colours.Info.Fprintln(ra.out, "📚 Available commands:")
	fmt.Fprintln(ra.out, "  • readaloud list [book]           - Browse books and chapters")
	fmt.Fprintln(ra.out, "  • readaloud read [book] [chapter] - Listen to a chapter")
	fmt.Fprintln(ra.out, "  • readaloud resume [book]         - Continue where you stopped")
	fmt.Fprintln(ra.out, "  • readaloud segment [file]        - Show how text is split for speech")
	fmt.Fprintln(ra.out, "  • readaloud voices                - List voices of the speech engine")
	fmt.Fprintln(ra.out, "  • readaloud progress [book]       - Show saved progress")
	fmt.Fprintln(ra.out, "  • readaloud settings              - Show or change voice settings")
	fmt.Fprintln(ra.out)
}

// syncWriter serialises writes from the playback observer and the key loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

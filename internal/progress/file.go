package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileStore keeps every record in a single JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Last        *Record           `json:"lastProgress,omitempty"`
	Records     map[string]Record `json:"records"`
	Preferences *Preferences      `json:"ttsSettings,omitempty"`
}

// NewFileStore creates a store backed by progress.json inside dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory: %w", err)
	}

	return &FileStore{
		path: filepath.Join(dir, "progress.json"),
	}, nil
}

// Path returns the location of the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Save(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = stamp(r)

	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return err
	}
	state.Records[chapterKey(r.BookID, r.ChapterID)] = r
	state.Last = &r
	return f.write(state)
}

func (f *FileStore) Load(ctx context.Context, bookID, chapterID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return nil, err
	}

	if chapterID != "" {
		r, ok := state.Records[chapterKey(bookID, chapterID)]
		if !ok {
			return nil, ErrNotFound
		}
		return &r, nil
	}

	var newest *Record
	for _, r := range state.Records {
		if r.BookID == bookID && (newest == nil || r.SavedAt.After(newest.SavedAt)) {
			r := r
			newest = &r
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest, nil
}

func (f *FileStore) Last(ctx context.Context) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return nil, err
	}
	if state.Last == nil {
		return nil, ErrNotFound
	}
	return state.Last, nil
}

func (f *FileStore) SavePreferences(ctx context.Context, p Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return err
	}
	state.Preferences = &p
	return f.write(state)
}

func (f *FileStore) LoadPreferences(ctx context.Context) (*Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return nil, err
	}
	if state.Preferences == nil {
		return nil, ErrNotFound
	}
	return state.Preferences, nil
}

func (f *FileStore) Close() error {
	return nil
}

// read loads the document, treating a missing or corrupt file as empty.
func (f *FileStore) read() (*fileState, error) {
	state := &fileState{Records: make(map[string]Record)}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	if err := json.Unmarshal(data, state); err != nil {
		logrus.WithError(err).WithField("file", f.path).Warn("Discarding unreadable progress file")
		return &fileState{Records: make(map[string]Record)}, nil
	}
	if state.Records == nil {
		state.Records = make(map[string]Record)
	}
	return state, nil
}

// write replaces the document via a temp file so readers never see a partial write.
func (f *FileStore) write(state *fileState) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("failed to create progress file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}

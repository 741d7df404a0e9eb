// Package progress persists how far each chapter has been heard, together
// with the listener's speech preferences.
package progress

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record or preferences are stored.
	ErrNotFound = errors.New("progress not found")

	// ErrInvalidRecord is returned when a record lacks a book or chapter.
	ErrInvalidRecord = errors.New("progress record requires book and chapter")
)

// Record is a snapshot of the playback cursor for one chapter.
type Record struct {
	BookID    string    `json:"bookId"`
	ChapterID string    `json:"chId"`
	Index     int       `json:"index"`
	SavedAt   time.Time `json:"at"`
}

// Validate reports whether the record identifies a chapter.
func (r Record) Validate() error {
	if r.BookID == "" || r.ChapterID == "" || r.Index < 0 {
		return ErrInvalidRecord
	}
	return nil
}

// Preferences are the listener's speech settings.
type Preferences struct {
	VoiceID      string  `json:"voiceURI"`
	Rate         float64 `json:"rate"`
	Volume       float64 `json:"vol"`
	Pitch        float64 `json:"pitch"`
	Language     string  `json:"langHint"`
	SleepMinutes int     `json:"sleep"`
}

// Store is a key-value sink for progress records and preferences.
type Store interface {
	// Save stores r as the record for its chapter and as the most recent record.
	Save(ctx context.Context, r Record) error

	// Load returns the record for a chapter. An empty chapterID selects the
	// most recently saved record of the book.
	Load(ctx context.Context, bookID, chapterID string) (*Record, error)

	// Last returns the most recently saved record across all books.
	Last(ctx context.Context) (*Record, error)

	SavePreferences(ctx context.Context, p Preferences) error
	LoadPreferences(ctx context.Context) (*Preferences, error)

	// Close releases any resources held by the store.
	Close() error
}

func stamp(r Record) Record {
	if r.SavedAt.IsZero() {
		r.SavedAt = time.Now()
	}
	return r
}

func chapterKey(bookID, chapterID string) string {
	return bookID + "/" + chapterID
}

package library

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrBookNotFound is returned when no book matches an ID.
	ErrBookNotFound = errors.New("book not found")

	// ErrChapterNotFound is returned when no chapter matches an ID.
	ErrChapterNotFound = errors.New("chapter not found")
)

// Index is the content of library.json.
type Index struct {
	Books []Book `json:"books"`
}

// Book is a library entry pointing at its manifest.
type Book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Manifest string `json:"manifest"`
}

func (b Book) DisplayTitle() string {
	if b.Title != "" {
		return b.Title
	}
	return b.ID
}

// Manifest lists the chapters of a book.
type Manifest struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter points at a plain-text file.
type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	File  string `json:"file"`
	Order int    `json:"order"`
}

func (c Chapter) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}

// Book returns the book with the given ID.
func (idx *Index) Book(id string) (Book, error) {
	for _, b := range idx.Books {
		if b.ID == id {
			return b, nil
		}
	}
	return Book{}, ErrBookNotFound
}

// Search returns the books whose title or ID contains query, ignoring case.
// An empty query matches everything.
func (idx *Index) Search(query string) []Book {
	var out []Book
	for _, b := range idx.Books {
		if matches(query, b.Title, b.ID) {
			out = append(out, b)
		}
	}
	return out
}

// Sort orders chapters by their Order field, keeping file order for ties.
func (m *Manifest) Sort() {
	sort.SliceStable(m.Chapters, func(i, j int) bool {
		return m.Chapters[i].Order < m.Chapters[j].Order
	})
}

// Chapter returns the chapter with the given ID and its position.
func (m *Manifest) Chapter(id string) (Chapter, int, error) {
	for i, ch := range m.Chapters {
		if ch.ID == id {
			return ch, i, nil
		}
	}
	return Chapter{}, -1, ErrChapterNotFound
}

// Next returns the chapter after id, if any.
func (m *Manifest) Next(id string) (Chapter, bool) {
	_, i, err := m.Chapter(id)
	if err != nil || i+1 >= len(m.Chapters) {
		return Chapter{}, false
	}
	return m.Chapters[i+1], true
}

// Search returns the chapters whose title or ID contains query, ignoring case.
func (m *Manifest) Search(query string) []Chapter {
	var out []Chapter
	for _, ch := range m.Chapters {
		if matches(query, ch.Title, ch.ID) {
			out = append(out, ch)
		}
	}
	return out
}

func matches(query string, fields ...string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(strings.Join(fields, " ")), q)
}

package nest

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"readaloud/internal/cli/scheme/colours"
	"readaloud/internal/domain/library"
)

// ListBooks prints the books of the library, or the chapters of one book.
func (ra *ReadAloud) ListBooks(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("search")

	catalog, err := ra.Catalog()
	if err != nil {
		return err
	}
	idx, err := catalog.Index(ra.ctx)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	if len(args) > 0 {
		book, err := idx.Book(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", err, args[0])
		}
		manifest, err := catalog.Manifest(ra.ctx, book)
		if err != nil {
			return err
		}
		ra.printChapters(manifest, manifest.Search(query))
		return nil
	}

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "📚 Available Books 📚")
	fmt.Fprintln(ra.out)

	books := idx.Search(query)
	for i, b := range books {
		fmt.Fprintf(ra.out, "  %d. ", i+1)
		colours.Title.Fprintf(ra.out, "%s", b.DisplayTitle())
		fmt.Fprintln(ra.out)
		colours.Info.Fprintf(ra.out, "     ID: %s\n", b.ID)
	}
	fmt.Fprintln(ra.out)

	if len(books) == 0 {
		colours.Warning.Fprintln(ra.out, "🔍 No books found matching your criteria.")
	} else {
		colours.Success.Fprintf(ra.out, "✨ Found %d books ✨\n", len(books))
	}
	return nil
}

func (ra *ReadAloud) printChapters(manifest *library.Manifest, chapters []library.Chapter) {
	fmt.Fprintln(ra.out)
	colours.Title.Fprintf(ra.out, "📖 %s\n", manifest.Title)
	fmt.Fprintln(ra.out)

	for i, ch := range chapters {
		fmt.Fprintf(ra.out, "  %d. ", i+1)
		colours.Author.Fprintf(ra.out, "%s", ch.DisplayTitle())
		colours.Info.Fprintf(ra.out, "  (ID: %s)\n", ch.ID)
	}
	if len(chapters) == 0 {
		colours.Warning.Fprintln(ra.out, "🔍 No chapters found matching your criteria.")
	}
}

// selection is a resolved book and chapter.
type selection struct {
	book     library.Book
	manifest *library.Manifest
	chapter  library.Chapter
}

// resolve finds the book and chapter named by args, asking on the terminal
// for whatever is missing.
func (ra *ReadAloud) resolve(reader *bufio.Reader, bookID, chapterID string) (*selection, error) {
	catalog, err := ra.Catalog()
	if err != nil {
		return nil, err
	}
	idx, err := catalog.Index(ra.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	var book library.Book
	if bookID == "" {
		choice, err := ra.choose(reader, "📚 Choose a book", len(idx.Books), func(i int) string {
			return idx.Books[i].DisplayTitle()
		})
		if err != nil {
			return nil, err
		}
		book = idx.Books[choice]
	} else if book, err = idx.Book(bookID); err != nil {
		return nil, fmt.Errorf("%w: %s", err, bookID)
	}

	manifest, err := catalog.Manifest(ra.ctx, book)
	if err != nil {
		return nil, err
	}

	var chapter library.Chapter
	if chapterID == "" {
		choice, err := ra.choose(reader, "📖 Choose a chapter", len(manifest.Chapters), func(i int) string {
			return manifest.Chapters[i].DisplayTitle()
		})
		if err != nil {
			return nil, err
		}
		chapter = manifest.Chapters[choice]
	} else if chapter, _, err = manifest.Chapter(chapterID); err != nil {
		return nil, fmt.Errorf("%w: %s", err, chapterID)
	}

	return &selection{book: book, manifest: manifest, chapter: chapter}, nil
}

var errCancelled = errors.New("selection cancelled")

func (ra *ReadAloud) choose(reader *bufio.Reader, title string, n int, label func(int) string) (int, error) {
	if n == 0 {
		return 0, fmt.Errorf("nothing to choose from")
	}

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, title)
	fmt.Fprintln(ra.out)
	for i := 0; i < n; i++ {
		fmt.Fprintf(ra.out, "%d. ", i+1)
		colours.Title.Fprintln(ra.out, label(i))
	}

	fmt.Fprintln(ra.out)
	colours.Prompt.Fprint(ra.out, "🌟 Enter a number (or 'q' to quit): ")

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "q" || input == "quit" {
		return 0, errCancelled
	}

	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > n {
		return 0, fmt.Errorf("invalid selection %q", input)
	}
	return choice - 1, nil
}

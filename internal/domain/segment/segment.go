package segment

import (
	"strings"
	"unicode"
)

const (
	// MaxLength is the longest unit, in runes, handed to a speech engine.
	MaxLength = 220
	// MinSoftChunk is the shortest chunk a soft split will commit.
	MinSoftChunk = 80
)

// Segment is one speakable unit of text. Start and End are rune offsets into
// the normalized source text and describe the range the unit was cut from,
// so pieces of a subdivided range share the same offsets.
type Segment struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// sentence terminators, CJK and ASCII
var enders = map[rune]bool{
	'。': true, '！': true, '？': true,
	'!': true, '?': true,
	'；': true, ';': true,
	'…': true, '.': true,
}

// Segmenter splits text into bounded speakable units.
type Segmenter struct {
	maxLen  int
	minSoft int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithMaxLength overrides MaxLength.
func WithMaxLength(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithMinSoftChunk overrides MinSoftChunk.
func WithMinSoftChunk(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.minSoft = n
		}
	}
}

// New creates a Segmenter using the default bounds unless overridden.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		maxLen:  MaxLength,
		minSoft: MinSoftChunk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSegmenter = New()

// Split segments text with the default bounds.
func Split(text string) []Segment {
	return defaultSegmenter.Split(text)
}

// Normalize converts CRLF line endings to LF.
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// Split normalizes text and cuts it into segments in document order.
func (s *Segmenter) Split(text string) []Segment {
	runes := []rune(Normalize(text))
	out := make([]Segment, 0)

	start := 0
	for i, r := range runes {
		switch {
		case r == '\n':
			// the newline belongs to neither neighbouring range
			out = s.appendRange(out, runes, start, i)
			start = i + 1
		case enders[r]:
			out = s.appendRange(out, runes, start, i+1)
			start = i + 1
		}
	}
	return s.appendRange(out, runes, start, len(runes))
}

func (s *Segmenter) appendRange(out []Segment, runes []rune, start, end int) []Segment {
	t := trimRunes(runes[start:end])
	if len(t) == 0 {
		return out
	}

	if len(t) <= s.maxLen {
		return append(out, Segment{Text: string(t), Start: start, End: end})
	}

	for _, piece := range s.softSplit(t) {
		piece = trimRunes(piece)
		for len(piece) > 0 {
			n := min(len(piece), s.maxLen)
			if chunk := piece[:n]; !isBlank(chunk) {
				out = append(out, Segment{Text: string(chunk), Start: start, End: end})
			}
			piece = piece[n:]
		}
	}
	return out
}

// softSplit cuts t after runs of commas or whitespace once the chunk since the
// previous cut reaches minSoft runes. The tail after the last cut is kept.
func (s *Segmenter) softSplit(t []rune) [][]rune {
	var parts [][]rune
	last := 0
	for i := 0; i < len(t); {
		if !isSoftBreak(t[i]) {
			i++
			continue
		}
		j := i
		for j < len(t) && isSoftBreak(t[j]) {
			j++
		}
		if j-last >= s.minSoft {
			parts = append(parts, t[last:j])
			last = j
		}
		i = j
	}
	return append(parts, t[last:])
}

// Locate maps a rune offset in the source text to a segment index. It prefers
// the first segment whose range contains offset and otherwise falls back to the
// last segment ending before it.
func Locate(segments []Segment, offset int) int {
	idx := 0
	for i, sg := range segments {
		if offset >= sg.Start && offset <= sg.End {
			return i
		}
		if offset > sg.End {
			idx = i
		}
	}
	return idx
}

func isSoftBreak(r rune) bool {
	return r == '，' || r == ',' || r == '、' || unicode.IsSpace(r)
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func trimRunes(r []rune) []rune {
	start, end := 0, len(r)
	for start < end && isTrimmable(r[start]) {
		start++
	}
	for end > start && isTrimmable(r[end-1]) {
		end--
	}
	return r[start:end]
}

func isBlank(r []rune) bool {
	return len(trimRunes(r)) == 0
}

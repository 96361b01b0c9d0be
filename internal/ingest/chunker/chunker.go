// Package chunker implements C1: a pure, boundary-aware text splitter.
//
// It generalizes the teacher's line-oriented scan-and-flush splitter
// (documents.Splitter.Stream, rag/chunker.markdownChunk) to the spec's
// character-based target-size/overlap contract while keeping the same
// "prefer a structural boundary, fall back to a hard cut" shape.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Options configures chunking. Zero values map to the spec defaults.
type Options struct {
	TargetSize int // characters; default 1000
	Overlap    int // characters; default 100
}

func (o Options) normalized() Options {
	if o.TargetSize <= 0 {
		o.TargetSize = 1000
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.TargetSize {
		o.Overlap = o.TargetSize / 2
	}
	return o
}

// BoundaryType records why a chunk ended where it did.
type BoundaryType string

const (
	BoundaryParagraph  BoundaryType = "paragraph"
	BoundarySentence   BoundaryType = "sentence"
	BoundaryWhitespace BoundaryType = "whitespace"
	BoundaryHard       BoundaryType = "hard"
	BoundaryEnd        BoundaryType = "end"
)

// Draft is one produced chunk, ordered by Index, before enrichment.
type Draft struct {
	Index        int
	Text         string
	SectionTitle string
	SectionLevel int
	Boundary     BoundaryType
}

var headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// searchWindow bounds how far back from the target end we'll look for a
// structural boundary, so a pathological document can't make the search
// itself O(n) per chunk.
const maxSearchWindow = 240

// Chunk splits text into overlapping, boundary-aware drafts. It is a pure
// function: no I/O, no failures, and an empty input yields an empty
// sequence.
//
// Invariants held regardless of input: concatenating the non-overlapping
// prefix of each chunk (i.e. up to where the next chunk starts)
// reconstructs text exactly, and any two adjacent chunks share at most
// opt.Overlap runes.
func Chunk(text, sourceURL string, opt Options) []Draft {
	if text == "" {
		return nil
	}
	opt = opt.normalized()
	runes := []rune(text)
	n := len(runes)

	var out []Draft
	start := 0
	idx := 0
	currentTitle := ""
	currentLevel := 0

	for start < n {
		end := start + opt.TargetSize
		boundary := BoundaryEnd
		if end >= n {
			end = n
		} else {
			var found int
			found, boundary = findBoundary(runes, start, end)
			end = found
			if end > n {
				end = n
			}
		}
		if end <= start {
			end = start + opt.TargetSize
			if end > n {
				end = n
			}
			boundary = BoundaryHard
		}

		chunkText := string(runes[start:end])
		if title, level, ok := firstHeading(chunkText); ok {
			currentTitle, currentLevel = title, level
		}
		out = append(out, Draft{
			Index:        idx,
			Text:         chunkText,
			SectionTitle: currentTitle,
			SectionLevel: currentLevel,
			Boundary:     boundary,
		})
		idx++

		if end >= n {
			break
		}
		next := end - opt.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// findBoundary looks backward from end (within maxSearchWindow) for a
// paragraph break, then a sentence end, then whitespace. It returns the
// boundary position (exclusive) and what kind of boundary was used. If
// nothing suitable is found, it returns end unchanged with BoundaryHard.
func findBoundary(runes []rune, start, end int) (int, BoundaryType) {
	lo := end - maxSearchWindow
	if lo < start {
		lo = start
	}
	window := string(runes[lo:end])

	// window's indices are byte offsets into its UTF-8 encoding, not rune
	// offsets into runes[lo:end] — runeAt converts before adding to lo, so
	// non-ASCII text (where a rune can be >1 byte) still lands on the
	// correct rune boundary instead of overshooting it.
	runeAt := func(byteIdx int) int { return lo + utf8.RuneCountInString(window[:byteIdx]) }

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return runeAt(i) + 2, BoundaryParagraph
	}
	if i := lastSentenceEnd(window); i >= 0 {
		return runeAt(i), BoundarySentence
	}
	if i := strings.LastIndexAny(window, " \t\n"); i >= 0 {
		return runeAt(i) + 1, BoundaryWhitespace
	}
	return end, BoundaryHard
}

func lastSentenceEnd(s string) int {
	best := -1
	for _, term := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(s, term); i > best {
			best = i + 2
		}
	}
	return best
}

func firstHeading(s string) (title string, level int, ok bool) {
	m := headingRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	return strings.TrimSpace(m[2]), len(m[1]), true
}

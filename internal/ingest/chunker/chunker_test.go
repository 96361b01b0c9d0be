package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunk_Empty(t *testing.T) {
	require.Empty(t, Chunk("", "file://x", Options{}))
}

func TestChunk_CoversInputAndRespectsOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	text := b.String()

	drafts := Chunk(text, "file://doc.txt", Options{TargetSize: 200, Overlap: 40})
	require.NotEmpty(t, drafts)

	// Reconstruct from non-overlapping prefixes and confirm full coverage.
	var rebuilt strings.Builder
	runes := []rune(text)
	pos := 0
	for i, d := range drafts {
		dr := []rune(d.Text)
		require.Equal(t, i, d.Index)
		if i == len(drafts)-1 {
			rebuilt.WriteString(d.Text)
			pos += len(dr)
			continue
		}
		// non-overlapping prefix length = len(chunk) - overlap with next
		next := drafts[i+1]
		overlap := overlapAt(runes, pos+len(dr), next.Text)
		require.GreaterOrEqual(t, overlap, 0)
		require.LessOrEqual(t, overlap, 40)
		prefixLen := len(dr) - overlap
		require.GreaterOrEqual(t, prefixLen, 0)
		rebuilt.WriteString(string(dr[:prefixLen]))
		pos += prefixLen
	}
	require.Equal(t, string(runes), rebuilt.String())
}

func TestChunk_NonASCIIParagraphBreakDoesNotOvershoot(t *testing.T) {
	// A paragraph break placed after a run of multi-byte runes: the "\n\n"
	// byte offset found inside the search window is well past n in byte
	// terms once CJK characters (3 bytes each in UTF-8) are involved, so a
	// boundary conversion bug that treats it as a rune offset would slice
	// runes out of range.
	var b strings.Builder
	b.WriteString(strings.Repeat("日本語のテキストです。", 20))
	b.WriteString("\n\n")
	b.WriteString(strings.Repeat("café résumé naïve ", 10))
	text := b.String()
	runes := []rune(text)

	require.NotPanics(t, func() {
		drafts := Chunk(text, "file://doc.txt", Options{TargetSize: len(runes) - 5, Overlap: 10})
		require.NotEmpty(t, drafts)
		for _, d := range drafts {
			require.LessOrEqual(t, len([]rune(d.Text)), len(runes))
		}
	})
}

func TestChunk_SingleSmallChunk(t *testing.T) {
	drafts := Chunk("hello world", "file://x", Options{TargetSize: 1000, Overlap: 100})
	require.Len(t, drafts, 1)
	require.Equal(t, "hello world", drafts[0].Text)
}

func TestChunk_HeadingHint(t *testing.T) {
	text := "# Introduction\nSome body text that continues on.\n\n## Details\nMore body text here as well."
	drafts := Chunk(text, "file://x", Options{TargetSize: 40, Overlap: 5})
	require.NotEmpty(t, drafts)
	found := false
	for _, d := range drafts {
		if d.SectionTitle != "" {
			found = true
		}
	}
	require.True(t, found)
}

// overlapAt returns the smallest l such that next appears in runes starting
// l runes before end, i.e. how far the next chunk reaches back into the
// chunk ending at end; -1 if next does not line up with runes at all. A
// plain suffix/prefix text match would overstate the overlap on repetitive
// input, where the same text recurs every sentence.
func overlapAt(runes []rune, end int, next string) int {
	nr := []rune(next)
	for l := 0; l <= end; l++ {
		s := end - l
		if s+len(nr) <= len(runes) && string(runes[s:s+len(nr)]) == next {
			return l
		}
	}
	return -1
}

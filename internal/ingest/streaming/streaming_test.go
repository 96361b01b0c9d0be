package streaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

func TestShouldSplit_RejectsNonStructuredKind(t *testing.T) {
	parsed := types.ParsedContent{Kind: "text", Content: strings.Repeat("a", 60000)}
	_, ok := ShouldSplit(600*1024, parsed, Thresholds{})
	require.False(t, ok)
}

func TestShouldSplit_RejectsBelowSizeThreshold(t *testing.T) {
	parsed := types.ParsedContent{Kind: "pdf", Content: strings.Repeat("a", 60000)}
	_, ok := ShouldSplit(100*1024, parsed, Thresholds{})
	require.False(t, ok)
}

func TestShouldSplit_RejectsBelowTextLenThreshold(t *testing.T) {
	parsed := types.ParsedContent{Kind: "pdf", Content: strings.Repeat("a", 1000)}
	_, ok := ShouldSplit(600*1024, parsed, Thresholds{})
	require.False(t, ok)
}

func TestShouldSplit_AcceptsLargePDFWithMultipleWindows(t *testing.T) {
	parsed := types.ParsedContent{Kind: "pdf", Content: strings.Repeat("a", 60000)}
	sections, ok := ShouldSplit(600*1024, parsed, Thresholds{})
	require.True(t, ok)
	require.GreaterOrEqual(t, len(sections), 2)
	require.Equal(t, "Section 1", sections[0].Title)
}

func TestShouldSplit_EPUBDropsShortChapters(t *testing.T) {
	parsed := types.ParsedContent{
		Kind:    "epub",
		Content: strings.Repeat("a", 60000),
		Chapters: []types.Chapter{
			{Title: "Preface", Content: strings.Repeat("x", 200)},
			{Title: "Chapter One", Content: strings.Repeat("x", 5000)},
			{Title: "Chapter Two", Content: strings.Repeat("x", 6000)},
		},
	}
	sections, ok := ShouldSplit(600*1024, parsed, Thresholds{})
	require.True(t, ok)
	require.Len(t, sections, 2)
	require.Equal(t, "Chapter One", sections[0].Title)
}

func TestPriorityAndStagger(t *testing.T) {
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, Priority(i))
		immediate, delay := Stagger(i)
		require.True(t, immediate)
		require.Equal(t, 0, delay)
	}
	require.Equal(t, 2, Priority(3))
	immediate, delay := Stagger(5)
	require.False(t, immediate)
	require.Equal(t, 10, delay)
}

func TestSynthesizedURL(t *testing.T) {
	require.Equal(t, "file://book.epub#epub-1", SynthesizedURL("book.epub", "epub", 0))
}

// Package contextengine implements C2: producing a short, AI-generated
// summary that situates a chunk within its document. Unlike every other
// AI-backed step in the pipeline, failures here never propagate — the
// caller always gets back "no context available" instead of an error, so
// the pipeline can fall back to a non-contextual embedding.
//
// This component has no direct teacher analogue; it is built in the
// teacher's idiom: an LRU document-analysis cache shaped like
// internal/llm.TokenCache, and a retry/backoff loop shaped like
// internal/orchestrator/kafka.go's worker retry loop.
package contextengine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// MaxSampleWindow bounds how much of the full document is sent to the AI
// client per contextualization request.
const MaxSampleWindow = 12000

// Options configure a single Contextualize call.
type Options struct {
	ChunkIndex  int
	TotalChunks int
	// NoRetry disables the retry loop when true (a single attempt); the
	// zero value (false) keeps the default policy of up to 3 attempts.
	NoRetry bool
}

// Stats snapshots the engine's running counters.
type Stats struct {
	TotalRequests int64
	Successes     int64
	AverageLatency time.Duration
	CacheHits     int64
}

// Engine is the context engine. Safe for concurrent use.
type Engine struct {
	ai    types.AIClient
	cache *analysisCache

	mu            sync.Mutex
	totalRequests int64
	successes     int64
	totalLatency  time.Duration

	maxTokens   int
	temperature float64

	// clock/backoff are overridable for tests.
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	baseWait time.Duration
}

// New constructs an Engine backed by ai, with a document-analysis cache
// bounded at cacheSize entries (0 => DefaultCacheSize).
func New(ai types.AIClient, cacheSize int, maxTokens int, temperature float64) *Engine {
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &Engine{
		ai:          ai,
		cache:       newAnalysisCache(cacheSize),
		maxTokens:   maxTokens,
		temperature: temperature,
		now:         time.Now,
		sleep:       ctxSleep,
		baseWait:    time.Second,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Contextualize produces a 2-3 sentence summary situating chunkText within
// fullDocument. It returns ("", false) whenever context generation did not
// succeed, for any reason — the error is never propagated.
func (e *Engine) Contextualize(ctx context.Context, fullDocument, chunkText string, opt Options) (string, bool) {
	start := e.now()
	e.mu.Lock()
	e.totalRequests++
	e.mu.Unlock()

	analysis := e.documentAnalysis(fullDocument)
	window := sampleWindow(fullDocument, chunkText, opt.ChunkIndex, opt.TotalChunks, MaxSampleWindow)
	prompt := buildPrompt(analysis, window, chunkText, opt.ChunkIndex, opt.TotalChunks)

	maxAttempts := 3
	if opt.NoRetry {
		maxAttempts = 1
	}

	var summary string
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		summary, err = e.ai.Complete(ctx, prompt, types.CompleteOptions{MaxTokens: e.maxTokens, Temperature: e.temperature})
		if err == nil {
			break
		}
		if !types.Retryable(err) {
			return "", false
		}
		if attempt == maxAttempts {
			return "", false
		}
		backoff := e.baseWait * time.Duration(1<<uint(attempt-1))
		if sleepErr := e.sleep(ctx, backoff); sleepErr != nil {
			return "", false
		}
	}
	if err != nil || strings.TrimSpace(summary) == "" {
		return "", false
	}

	e.mu.Lock()
	e.successes++
	e.totalLatency += e.now().Sub(start)
	e.mu.Unlock()
	return strings.TrimSpace(summary), true
}

// Stats returns a snapshot of running counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	var avg time.Duration
	if e.successes > 0 {
		avg = e.totalLatency / time.Duration(e.successes)
	}
	hits, _ := e.cache.stats()
	return Stats{
		TotalRequests:  e.totalRequests,
		Successes:      e.successes,
		AverageLatency: avg,
		CacheHits:      hits,
	}
}

func (e *Engine) documentAnalysis(fullDocument string) DocumentAnalysis {
	if a, ok := e.cache.get(fullDocument); ok {
		return a
	}
	a := deriveDocumentAnalysis(fullDocument)
	e.cache.set(fullDocument, a)
	return a
}

var headingLine = regexp.MustCompile(`(?m)^#{1,6}\s+.+$`)
var codeMarkers = regexp.MustCompile(`(?m)^\s*(func |class |def |import |package )`)

func deriveDocumentAnalysis(doc string) DocumentAnalysis {
	headings := headingLine.FindAllString(doc, -1)
	docType := "prose"
	switch {
	case codeMarkers.MatchString(doc):
		docType = "code"
	case len(headings) >= 2:
		docType = "markdown"
	}
	layout := "flat"
	if len(headings) >= 2 {
		layout = "sectioned"
	}
	sectionIndex := make(map[string]int, len(headings))
	for i, h := range headings {
		sectionIndex[strings.TrimSpace(strings.TrimLeft(h, "# \t"))] = i
	}
	return DocumentAnalysis{
		DocumentType:     docType,
		StructuralLayout: layout,
		TopKeywords:      topKeywords(doc, 8),
		SectionIndex:     sectionIndex,
	}
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true, "this": true,
	"from": true, "are": true, "was": true, "were": true, "have": true, "has": true,
	"not": true, "but": true, "you": true, "your": true, "can": true, "will": true,
	"into": true, "its": true, "their": true, "they": true, "which": true, "when": true,
}

func topKeywords(doc string, n int) []string {
	freq := make(map[string]int)
	var word strings.Builder
	flush := func() {
		w := strings.ToLower(word.String())
		word.Reset()
		if len(w) < 4 || stopwords[w] {
			return
		}
		freq[w]++
	}
	for _, r := range doc {
		if unicode.IsLetter(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	type kv struct {
		word  string
		count int
	}
	kvs := make([]kv, 0, len(freq))
	for w, c := range freq {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, k := range kvs {
		out[i] = k.word
	}
	return out
}

// sampleWindow returns up to maxWindow runes of fullDocument centered on
// chunkText's position within it (or, when chunkText can't be located
// verbatim, on the position implied by chunkIndex/totalChunks).
func sampleWindow(fullDocument, chunkText string, chunkIndex, totalChunks, maxWindow int) string {
	runes := []rune(fullDocument)
	n := len(runes)
	if n <= maxWindow {
		return fullDocument
	}

	center := -1
	if idx := strings.Index(fullDocument, chunkText); idx >= 0 {
		center = len([]rune(fullDocument[:idx])) + len([]rune(chunkText))/2
	} else {
		if totalChunks <= 0 {
			totalChunks = 1
		}
		frac := float64(chunkIndex+1) / float64(totalChunks)
		center = int(frac * float64(n))
	}

	half := maxWindow / 2
	start := center - half
	if start < 0 {
		start = 0
	}
	end := start + maxWindow
	if end > n {
		end = n
		start = end - maxWindow
		if start < 0 {
			start = 0
		}
	}
	return string(runes[start:end])
}

func buildPrompt(a DocumentAnalysis, window, chunkText string, chunkIndex, totalChunks int) string {
	return fmt.Sprintf(
		"Document type: %s (%s layout). Keywords: %s.\n\n"+
			"Document excerpt (for context):\n%s\n\n"+
			"Chunk %d of %d:\n%s\n\n"+
			"In 2-3 sentences, situate this chunk within the document.",
		a.DocumentType, a.StructuralLayout, strings.Join(a.TopKeywords, ", "),
		window, chunkIndex+1, totalChunks, chunkText,
	)
}

// Package parse implements a concrete types.Parser. §1 explicitly puts
// "the format-specific parsers (PDF, DOCX, EPUB, CSV, HTML, plain text,
// URL fetch)" out of the core's scope — it only consumes them through
// the Parser capability. This adapter covers the kinds this module's own
// dependency set can honestly handle (plain text, markdown, HTML, CSV)
// and reports the structured binary formats as unsupported rather than
// pulling in parsing libraries the spec never asked this engine to own.
package parse

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// Parser implements types.Parser for the plain-text family of mime types.
type Parser struct{}

// New constructs a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse implements types.Parser (§4.10). Structured binary kinds
// (epub/pdf/docx) are reported as types.ErrInvalidInput-wrapped
// "unsupported_mime" failures, per the Non-goal above — a real deployment
// wires an external Parser implementation for those; this one only
// proves out the Parser contract end to end for the kinds it can do
// honestly.
func (p *Parser) Parse(_ context.Context, data []byte, mimeType, originalName string) (types.ParsedContent, error) {
	if len(data) == 0 {
		return types.ParsedContent{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("empty payload"))
	}

	kind := classify(mimeType, originalName)
	switch kind {
	case "html":
		return parseHTML(data)
	case "csv":
		return types.ParsedContent{Content: string(data), Kind: "csv"}, nil
	case "text":
		return types.ParsedContent{Content: string(data), Kind: "text"}, nil
	default:
		return types.ParsedContent{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("unsupported_mime: %s", mimeType))
	}
}

func classify(mimeType, originalName string) string {
	m := strings.ToLower(mimeType)
	name := strings.ToLower(originalName)
	switch {
	case strings.Contains(m, "html"):
		return "html"
	case strings.Contains(m, "csv"), strings.HasSuffix(name, ".csv"):
		return "csv"
	case strings.Contains(m, "text/plain"), strings.Contains(m, "markdown"),
		strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".txt"), m == "":
		return "text"
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		return "html"
	default:
		return "unsupported"
	}
}

func parseHTML(data []byte) (types.ParsedContent, error) {
	html := string(data)
	article := html
	title := ""
	if art, err := readability.FromReader(strings.NewReader(html), nil); err == nil && strings.TrimSpace(art.Content) != "" {
		article = art.Content
		title = strings.TrimSpace(art.Title)
	}
	md, err := htmltomarkdown.ConvertString(article)
	if err != nil {
		md = article
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return types.ParsedContent{Content: md, Kind: "html", Metadata: map[string]any{"title": title}}, nil
}

// Package fetch implements a concrete types.URLFetcher. The core only
// depends on the URLFetcher capability (§4.10); this adapter is an
// external collaborator, grounded on internal/tools/web.Fetcher's
// hardened http.Client (redirect cap, browser UA, readability+markdown
// extraction for HTML) but reworked around the spec's own retry/backoff
// and redirect-limit defaults instead of the teacher's tool-specific ones.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

const defaultMaxBytes = 20 * 1000 * 1000

// Fetcher implements types.URLFetcher over net/http.
type Fetcher struct {
	userAgent string
}

// New constructs a Fetcher.
func New() *Fetcher {
	return &Fetcher{userAgent: "autollama-ingestd/1.0"}
}

// Fetch implements types.URLFetcher (§4.10): only http/https, up to
// max_redirects (default 5), timeout default 30s, retries default 3 with
// linear backoff retry_delay * attempt (default retry_delay 1s, matching
// the teacher's own linear-backoff idiom elsewhere in this module).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opt types.FetchOptions) (types.FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return types.FetchResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("parse url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.FetchResult{}, types.Wrap(types.ErrInvalidInput, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	maxRedirects := opt.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	timeout := time.Duration(opt.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := opt.Retries
	if retries <= 0 {
		retries = 3
	}
	retryDelay := time.Duration(opt.RetryDelayMS) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	client := f.client(maxRedirects, timeout)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		result, err := f.do(ctx, client, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return types.FetchResult{}, types.Wrap(types.ErrTimeout, ctx.Err())
		case <-time.After(retryDelay * time.Duration(attempt)):
		}
	}
	return types.FetchResult{}, types.Wrap(types.ErrSourceAcquisition, lastErr)
}

func (f *Fetcher) client(maxRedirects int, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

func (f *Fetcher) do(ctx context.Context, client *http.Client, rawURL string) (types.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.FetchResult{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain,text/csv,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return types.FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return types.FetchResult{}, fmt.Errorf("fetch %s: server error %d", rawURL, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return types.FetchResult{}, fmt.Errorf("fetch %s: client error %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBytes+1))
	if err != nil {
		return types.FetchResult{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > defaultMaxBytes {
		return types.FetchResult{}, fmt.Errorf("response exceeds max bytes (%d)", defaultMaxBytes)
	}

	contentType, cs := parseContentType(resp.Header.Get("Content-Type"))
	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return types.FetchResult{}, fmt.Errorf("charset decode: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	content, kind := f.render(utf8Body, contentType, finalURL)
	return types.FetchResult{
		Content: content,
		Kind:    kind,
		Metadata: map[string]any{
			"final_url":   finalURL,
			"status_code": resp.StatusCode,
		},
	}, nil
}

func (f *Fetcher) render(body []byte, contentType, finalURL string) (string, string) {
	switch {
	case strings.Contains(contentType, "html"):
		html := string(body)
		base, _ := url.Parse(finalURL)
		article := html
		title := ""
		if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
			article = art.Content
			title = strings.TrimSpace(art.Title)
		}
		md, err := htmltomarkdown.ConvertString(article, converter.WithDomain(baseOrigin(finalURL)))
		if err != nil {
			md = article
		}
		md = strings.TrimSpace(md)
		if title != "" && !strings.HasPrefix(md, "# ") {
			md = "# " + title + "\n\n" + md
		}
		return md, "html"
	case strings.Contains(contentType, "csv"):
		return string(body), "csv"
	default:
		return string(body), "text"
	}
}

func parseContentType(header string) (string, string) {
	ct, params, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(header), "utf-8"
	}
	cs := params["charset"]
	if cs == "" {
		cs = "utf-8"
	}
	return strings.ToLower(ct), strings.ToLower(cs)
}

func toUTF8(body []byte, cs string) ([]byte, error) {
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return body, nil
	}
	r, err := charset.NewReaderLabel(cs, strings.NewReader(string(body)))
	if err != nil {
		return body, nil
	}
	return io.ReadAll(r)
}

func baseOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

package describe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultFetchTimeout bounds one page fetch.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultMaxChars caps the extracted text, in characters.
	DefaultMaxChars = 3000
	// DefaultMaxBodyBytes caps how much of a page is read and parsed.
	DefaultMaxBodyBytes = 4 << 20
)

// boilerplate lists elements removed before text extraction.
const boilerplate = "script, style, nav, footer, header, noscript"

// URLExtractor fetches a web page and returns its main readable text.
type URLExtractor struct {
	client   *http.Client
	maxChars int
	maxBody  int64
}

// NewURLExtractor returns an extractor. Zero values select
// DefaultFetchTimeout and DefaultMaxChars.
func NewURLExtractor(timeout time.Duration, maxChars int) *URLExtractor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &URLExtractor{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
		maxBody:  DefaultMaxBodyBytes,
	}
}

// Extract fetches url, strips boilerplate elements, and returns the text of
// <main> (or <body> when there is none), one text block per line, truncated
// to the configured length. At most DefaultMaxBodyBytes of the page are read.
// Every failure wraps ErrBadInput.
func (x *URLExtractor) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadInput, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tdsqa)")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %w", ErrBadInput, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: fetch %s: HTTP %d", ErrBadInput, url, resp.StatusCode)
	}

	// Anything past maxBody is dropped; the parser copes with the cut.
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, x.maxBody))
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %w", ErrBadInput, url, err)
	}
	doc.Find(boilerplate).Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		return "", fmt.Errorf("%w: %s has no main content", ErrBadInput, url)
	}

	text := truncateRunes(TextLines(root), x.maxChars)
	if text == "" {
		return "", fmt.Errorf("%w: %s has no text", ErrBadInput, url)
	}
	return text, nil
}

// TextLines returns the trimmed, non-empty text nodes under sel joined by
// newlines.
func TextLines(sel *goquery.Selection) string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					lines = append(lines, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

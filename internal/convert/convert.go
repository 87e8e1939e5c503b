// Package convert renders scraped forum posts as markdown documents ready for
// the index builder.
package convert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/54b3r/tdsqa-go/internal/discourse"
	"github.com/54b3r/tdsqa-go/internal/ingestion"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

// Converter turns posts into documents.
type Converter struct {
	md  *md.Converter
	log *slog.Logger
}

// New returns a Converter. The host of baseURL resolves relative links and
// image sources in post HTML; baseURL may be empty.
func New(baseURL string, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	domain := ""
	if u, err := url.Parse(baseURL); err == nil {
		domain = u.Host
	}
	return &Converter{md: md.NewConverter(domain, true, nil), log: log}
}

// Posts converts posts to text documents of the discourse collection, in
// input order. The document ID is "{topic_id}_{post_id}". Posts without
// content are skipped.
func (c *Converter) Posts(posts []discourse.Post) []rag.Document {
	docs := make([]rag.Document, 0, len(posts))
	for _, p := range posts {
		body := c.body(p)
		if body == "" {
			c.log.Warn("convert: skipping post with no content", slog.Int("post_id", p.PostID))
			continue
		}
		id := DocumentID(p.TopicID, p.PostID)
		docs = append(docs, rag.Document{
			ID:         id,
			Kind:       rag.KindText,
			Collection: ingestion.CollectionDiscourse,
			Text:       Header(p) + body,
			File:       id + ".md",
			URL:        p.URL,
		})
	}
	return docs
}

// body prefers the markdown rendering of the cooked HTML so image references
// survive, falling back to the plain content.
func (c *Converter) body(p discourse.Post) string {
	plain := strings.TrimSpace(p.Content)
	if plain == "" {
		return ""
	}
	if strings.TrimSpace(p.Cooked) == "" {
		return plain
	}
	out, err := c.md.ConvertString(p.Cooked)
	if err != nil {
		c.log.Warn("convert: markdown conversion failed, using plain text",
			slog.Int("post_id", p.PostID),
			slog.String("error", err.Error()),
		)
		return plain
	}
	if out = strings.TrimSpace(out); out == "" {
		return plain
	}
	return out
}

// DocumentID returns the identifier of a post document.
func DocumentID(topicID, postID int) string {
	return strconv.Itoa(topicID) + "_" + strconv.Itoa(postID)
}

// Header renders the title and attribution block that precedes a post body.
func Header(p discourse.Post) string {
	title := orDefault(p.TopicTitle, "Untitled Topic")
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Author:** %s  \n", orDefault(p.Author, "Unknown"))
	fmt.Fprintf(&b, "**Date:** %s  \n", orDefault(p.CreatedAt, "Unknown Date"))
	if p.URL != "" {
		fmt.Fprintf(&b, "**URL:** %s  \n", p.URL)
	}
	b.WriteString("\n")
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// WriteMarkdown writes each document to dir/{File}, creating dir. It returns
// the number of files written.
func WriteMarkdown(dir string, docs []rag.Document) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("convert: %w", err)
	}
	for i, d := range docs {
		name := d.File
		if name == "" {
			name = d.ID + ".md"
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(d.Text), 0o644); err != nil {
			return i, fmt.Errorf("convert: writing %s: %w", name, err)
		}
	}
	return len(docs), nil
}

// ReadPosts loads a posts JSON file written by discourse.WritePosts.
func ReadPosts(path string) ([]discourse.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("convert: reading %s: %w", path, err)
	}
	var posts []discourse.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("convert: decoding %s: %w", path, err)
	}
	return posts, nil
}

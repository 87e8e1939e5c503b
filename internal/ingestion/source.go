package ingestion

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/54b3r/tdsqa-go/internal/rag"
)

// urlPrefix marks the source link line written into converted posts.
const urlPrefix = "**URL:**"

// LoadMarkdownDir reads every .md file directly under dir, in name order, as
// text documents of the given collection. An empty collection is inferred per
// file with InferSource. Unreadable files are logged and skipped.
func LoadMarkdownDir(dir, collection string, log *slog.Logger) ([]rag.Document, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]rag.Document, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("ingestion: skipping unreadable file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		text := string(raw)
		url := HeaderURL(text)
		coll := collection
		if coll == "" {
			coll = InferSource(path).Collection
			if url != "" {
				coll = InferSource(url).Collection
			}
		}
		docs = append(docs, rag.Document{
			ID:         strings.TrimSuffix(name, filepath.Ext(name)),
			Kind:       rag.KindText,
			Collection: coll,
			Text:       text,
			File:       name,
			SourceDir:  dir,
			URL:        url,
		})
	}
	return docs, nil
}

// HeaderURL returns the link from the first "**URL:** <url>" line of a
// markdown document, or "" when there is none.
func HeaderURL(text string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, urlPrefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

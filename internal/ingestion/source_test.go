package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMarkdownDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.md", "# B\n\nSecond.")
	writeFile(t, dir, "155939_7.md", "# GA5\n**Author:** ta\n**URL:** https://forum.example.org/t/ga5/155939/3\n\nBody.")
	writeFile(t, dir, "a.md", "# A\n\nFirst.")
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.md"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadMarkdownDir(dir, "", logging.Discard())
	if err != nil {
		t.Fatalf("LoadMarkdownDir: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 documents, got %d", len(docs))
	}

	wantIDs := []string{"155939_7", "a", "b"}
	for i, d := range docs {
		if d.ID != wantIDs[i] {
			t.Errorf("doc %d: ID %q, want %q", i, d.ID, wantIDs[i])
		}
		if d.Kind != rag.KindText || d.SourceDir != dir || d.File != d.ID+".md" {
			t.Errorf("doc %d: %+v", i, d)
		}
	}

	post := docs[0]
	if post.URL != "https://forum.example.org/t/ga5/155939/3" || post.Collection != CollectionDiscourse {
		t.Errorf("post: url=%q collection=%q", post.URL, post.Collection)
	}
	if docs[1].URL != "" || docs[1].Collection != CollectionCourse {
		t.Errorf("course doc: url=%q collection=%q", docs[1].URL, docs[1].Collection)
	}
}

func TestLoadMarkdownDir_ExplicitCollection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "1_2.md", "text")

	docs, err := LoadMarkdownDir(dir, "archive", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Collection != "archive" {
		t.Errorf("got %+v", docs)
	}
}

func TestLoadMarkdownDir_MissingDir(t *testing.T) {
	t.Parallel()
	if _, err := LoadMarkdownDir(filepath.Join(t.TempDir(), "nope"), "", nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestHeaderURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"present", "# T\n**URL:** https://x.org/t/a/1/2\n", "https://x.org/t/a/1/2"},
		{"indented", "  **URL:**   https://x.org  \n", "https://x.org"},
		{"first wins", "**URL:** one\n**URL:** two", "one"},
		{"absent", "# Title\nbody", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HeaderURL(tc.text); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

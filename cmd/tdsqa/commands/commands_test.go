package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	want := []string{"fetch", "convert", "build", "search", "ask", "serve", "history", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}

func TestImageRef(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	png := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := imageRef(png)
	if err != nil {
		t.Fatalf("imageRef(file): %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("file not converted to data URL: %q", got)
	}

	for _, ref := range []string{"https://example.org/a.png", "iVBORw0KGgo="} {
		got, err := imageRef(ref)
		if err != nil || got != ref {
			t.Errorf("imageRef(%q) = %q, %v; want passthrough", ref, got, err)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\nline\ttext", 20, "multi line text"},
		{"abcdefghij", 4, "abcd..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tc := range cases {
		if got := preview(tc.in, tc.n); got != tc.want {
			t.Errorf("preview(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

package describe

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

// fakeChat records the last request and returns a fixed reply.
type fakeChat struct {
	reply string
	err   error
	last  []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestVisionDescriber_SendsImagePart(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "  A terminal showing a ModuleNotFoundError for pandas.  "}
	d := NewVisionDescriber(chat, "")

	b64 := base64.StdEncoding.EncodeToString(pngHeader)
	got, err := d.Describe(context.Background(), b64)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got != "A terminal showing a ModuleNotFoundError for pandas." {
		t.Errorf("caption: %q", got)
	}

	if len(chat.last) != 1 || len(chat.last[0].MultiContent) != 2 {
		t.Fatalf("unexpected request shape: %+v", chat.last)
	}
	parts := chat.last[0].MultiContent
	if parts[0].Text != DefaultPrompt {
		t.Errorf("prompt part: %q", parts[0].Text)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,"+b64 {
		t.Errorf("image part: %+v", parts[1].ImageURL)
	}
}

func TestVisionDescriber_BadInputSkipsModel(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "never"}
	d := NewVisionDescriber(chat, "")

	for _, ref := range []string{"", "not base64 !!", base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))} {
		if _, err := d.Describe(context.Background(), ref); !errors.Is(err, ErrBadInput) {
			t.Errorf("Describe(%q): expected ErrBadInput, got %v", ref, err)
		}
	}
	if chat.last != nil {
		t.Error("model must not be called for bad input")
	}
}

func TestVisionDescriber_ModelFailure(t *testing.T) {
	t.Parallel()

	d := NewVisionDescriber(&fakeChat{err: errors.New("rate limited")}, "")
	_, err := d.Describe(context.Background(), "https://example.org/shot.png")
	if err == nil || errors.Is(err, ErrBadInput) {
		t.Fatalf("expected a non-input error, got %v", err)
	}

	d = NewVisionDescriber(&fakeChat{reply: "   "}, "")
	if _, err := d.Describe(context.Background(), "https://example.org/shot.png"); err == nil {
		t.Error("expected error for empty caption")
	}
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	b64 := base64.StdEncoding.EncodeToString(pngHeader)
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{"https passthrough", "https://cdn.example.org/a.png", "https://cdn.example.org/a.png", false},
		{"data url passthrough", "data:image/png;base64," + b64, "data:image/png;base64," + b64, false},
		{"raw base64", b64, "data:image/png;base64," + b64, false},
		{"unpadded base64", strings.TrimRight(b64, "="), "data:image/png;base64," + b64, false},
		{"data url without base64", "data:image/png,abc", "", true},
		{"garbage", "%%%", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ImageURL(tc.ref)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFileDataURL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FileDataURL(path)
	if err != nil {
		t.Fatalf("FileDataURL: %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("got %q", got)
	}
	if _, err := FileDataURL(path + ".missing"); !errors.Is(err, ErrBadInput) {
		t.Errorf("missing file: expected ErrBadInput, got %v", err)
	}
}

const page = `<!doctype html><html><head><title>t</title><style>.x{}</style></head>
<body>
<header>Site header</header>
<nav><a href="/">Home</a></nav>
<main>
  <h1>Project 1</h1>
  <p>Submit by <b>Friday</b>.</p>
  <script>track()</script>
  <noscript>enable js</noscript>
</main>
<footer>© course</footer>
</body></html>`

func TestURLExtractor_MainContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			_, _ = w.Write([]byte(page))
		case "/nomain":
			_, _ = w.Write([]byte(`<html><body><nav>menu</nav><div>Body text only</div></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	x := NewURLExtractor(0, 0)
	got, err := x.Extract(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := "Project 1\nSubmit by\nFriday\n."; got != want {
		t.Errorf("main text:\n got  %q\n want %q", got, want)
	}
	for _, junk := range []string{"Site header", "Home", "track()", "enable js", "© course"} {
		if strings.Contains(got, junk) {
			t.Errorf("boilerplate %q leaked into %q", junk, got)
		}
	}

	got, err = x.Extract(context.Background(), srv.URL+"/nomain")
	if err != nil {
		t.Fatalf("Extract body fallback: %v", err)
	}
	if got != "Body text only" {
		t.Errorf("body fallback: %q", got)
	}

	if _, err := x.Extract(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrBadInput) {
		t.Errorf("404: expected ErrBadInput, got %v", err)
	}
	if _, err := x.Extract(context.Background(), "://bad"); !errors.Is(err, ErrBadInput) {
		t.Errorf("bad url: expected ErrBadInput, got %v", err)
	}
}

func TestURLExtractor_Truncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><main><p>" + long + "</p></main></body></html>"))
	}))
	t.Cleanup(srv.Close)

	got, err := NewURLExtractor(0, 10).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(got); n != 10 {
		t.Errorf("got %d characters, want 10", n)
	}
}

func TestURLExtractor_CapsBodySize(t *testing.T) {
	t.Parallel()

	head := "<html><body><main><p>kept</p>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(head + "<!--" + strings.Repeat("x", 4096) + "--><p>dropped</p></main></body></html>"))
	}))
	t.Cleanup(srv.Close)

	x := NewURLExtractor(0, 0)
	x.maxBody = int64(len(head) + 16)
	got, err := x.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "kept" {
		t.Errorf("got %q, want only the text before the cap", got)
	}
	if NewURLExtractor(0, 0).maxBody != DefaultMaxBodyBytes {
		t.Error("default body cap not applied")
	}
}

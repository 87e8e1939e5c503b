package discourse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"

	"github.com/54b3r/tdsqa-go/internal/logging"
)

// forum is a minimal Discourse API fake.
type forum struct {
	mu      sync.Mutex
	queries []string
	cookies []string
}

func (f *forum) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"topics":[{"id":300},{"id":100},{"id":300},{"id":404}]}`))
	})
	mux.HandleFunc("GET /t/100.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 100, "title": "GA5 Q8 clarification", "slug": "ga5-q8",
			"post_stream": {"posts": [
				{"id": 11, "post_number": 1, "username": "student", "created_at": "2025-03-01T10:00:00Z", "cooked": "<p>Which model?</p>"},
				{"id": 12, "post_number": 2, "username": "ta", "created_at": "2025-03-01T11:00:00Z", "cooked": "<p>Use <code>gpt-4o-mini</code>.</p>"}
			]}}`))
	})
	mux.HandleFunc("GET /t/300.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 300, "title": "Docker", "slug": "docker",
			"post_stream": {"posts": [{"id": 31, "post_number": 1, "username": "x", "created_at": "2025-02-01", "cooked": "<p>podman works</p>"}]}}`))
	})
	mux.HandleFunc("GET /t/404.json", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, base string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = base
	cfg.Rate = 1000
	c, err := NewClient(&cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestFetchPosts(t *testing.T) {
	t.Parallel()

	f := &forum{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL+"/", Config{
		Cookie:   "_t=abc; _forum_session=xyz",
		Category: "courses:tds-kb",
		DateFrom: "2025-01-01",
		DateTo:   "2025-04-14",
	})

	posts, err := c.FetchPosts(context.Background(), "gpt model")
	if err != nil {
		t.Fatalf("FetchPosts: %v", err)
	}

	if len(f.queries) != 1 || f.queries[0] != "gpt model after:2025-01-01 before:2025-04-14 #courses:tds-kb" {
		t.Errorf("search query: %q", f.queries)
	}
	if f.cookies[0] != "_t=abc; _forum_session=xyz" {
		t.Errorf("cookie header: %q", f.cookies[0])
	}

	if len(posts) != 3 {
		t.Fatalf("want 3 posts (topic 404 skipped), got %d", len(posts))
	}
	gotIDs := []int{posts[0].PostID, posts[1].PostID, posts[2].PostID}
	if !reflect.DeepEqual(gotIDs, []int{11, 12, 31}) {
		t.Errorf("post order: %v", gotIDs)
	}

	p := posts[1]
	if p.TopicID != 100 || p.TopicTitle != "GA5 Q8 clarification" || p.Author != "ta" || p.PostNumber != 2 {
		t.Errorf("post fields: %+v", p)
	}
	if p.Content != "Use gpt-4o-mini." {
		t.Errorf("content: %q", p.Content)
	}
	if p.Cooked == "" {
		t.Error("cooked HTML must be retained")
	}
	if want := srv.URL + "/t/ga5-q8/100/2"; p.URL != want {
		t.Errorf("url: got %q, want %q", p.URL, want)
	}
}

func TestSearchTopics_MaxTopics(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&forum{}).handler(t))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, Config{MaxTopics: 2})
	ids, err := c.SearchTopics(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{100, 300}) {
		t.Errorf("ids: %v", ids)
	}
}

func TestFetchPosts_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, Config{})
	if _, err := c.FetchPosts(context.Background(), "q"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSearchQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no filters", Config{}, "docker"},
		{"dates only", Config{DateFrom: "2025-01-01", DateTo: "2025-04-14"}, "docker after:2025-01-01 before:2025-04-14"},
		{"category only", Config{Category: "courses:tds-kb"}, "docker #courses:tds-kb"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, "https://forum.example.org", tc.cfg)
			if got := c.SearchQuery("  docker "); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(&Config{}, nil); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := NewClient(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestSetSession(t *testing.T) {
	t.Parallel()

	var gotCookie, gotCSRF string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie, gotCSRF = r.Header.Get("Cookie"), r.Header.Get("X-CSRF-Token")
		_, _ = w.Write([]byte(`{"topics":[]}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, Config{})
	c.SetSession(&Session{Cookie: "_t=1", CSRFToken: "tok"})
	if _, err := c.SearchTopics(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if gotCookie != "_t=1" || gotCSRF != "tok" {
		t.Errorf("headers: cookie=%q csrf=%q", gotCookie, gotCSRF)
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	got := PlainText(`<p>Run <code>uv run app.py</code></p><aside>tip</aside>`)
	if got != "Run uv run app.pytip" {
		t.Errorf("got %q", got)
	}
}

func TestCookieHeader(t *testing.T) {
	t.Parallel()
	got := CookieHeader([]*network.Cookie{{Name: "_t", Value: "a"}, {Name: "_forum_session", Value: "b"}})
	if got != "_t=a; _forum_session=b" {
		t.Errorf("got %q", got)
	}
}

func TestWritePosts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "posts.json")
	in := []Post{{TopicID: 1, PostID: 2, Content: "hi", URL: "https://x/t/s/1/1"}}
	if err := WritePosts(path, in); err != nil {
		t.Fatalf("WritePosts: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out []Post
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("got %+v", out)
	}
}

func TestLoginWithBrowser_RequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := LoginWithBrowser(context.Background(), &Config{BaseURL: "https://forum.example.org"}); err == nil {
		t.Error("expected error without credentials")
	}
}

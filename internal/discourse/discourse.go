// Package discourse fetches forum posts from a Discourse instance through its
// JSON API: a filtered search for matching topics followed by one request per
// topic for the full post stream.
package discourse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the API request rate when Config.Rate is zero.
	DefaultRate = 2.0

	// DefaultTimeout bounds one API request.
	DefaultTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (compatible; tdsqa)"
)

// ErrUnauthorized is returned when the forum rejects the session.
var ErrUnauthorized = errors.New("discourse: not authorized")

// Config holds the forum connection and search filter settings.
type Config struct {
	// BaseURL is the forum root, e.g. "https://discourse.onlinedegree.iitm.ac.in".
	BaseURL string

	// Username and Password are used by LoginWithBrowser.
	Username string
	Password string

	// Cookie is a pre-authenticated Cookie header value. When set, no browser
	// login is needed.
	Cookie string

	// CSRFToken is sent as X-CSRF-Token when set.
	CSRFToken string

	// Category restricts search to a category slug, e.g. "courses:tds-kb".
	Category string

	// DateFrom and DateTo bound post dates (YYYY-MM-DD). Empty disables the bound.
	DateFrom string
	DateTo   string

	// Rate is the maximum number of API requests per second.
	Rate float64

	// MaxTopics caps the topics fetched per query. Zero means no cap.
	MaxTopics int

	// Timeout bounds each API request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Post is one forum post as stored in the posts JSON file.
type Post struct {
	TopicID    int    `json:"topic_id"`
	TopicTitle string `json:"topic_title"`
	PostID     int    `json:"post_id"`
	PostNumber int    `json:"post_number"`
	Author     string `json:"author"`
	CreatedAt  string `json:"created_at"`
	// Content is the plain text of the post.
	Content string `json:"content"`
	// Cooked is the rendered HTML of the post.
	Cooked string `json:"cooked,omitempty"`
	URL    string `json:"url"`
}

// Client talks to the Discourse JSON API.
type Client struct {
	cfg     Config
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient constructs a Client. BaseURL is required.
func NewClient(cfg *Config, log *slog.Logger) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("discourse: base URL is required (set DISCOURSE_BASE_URL)")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{cfg: *cfg, base: strings.TrimRight(cfg.BaseURL, "/"), log: log}
	if c.cfg.Rate <= 0 {
		c.cfg.Rate = DefaultRate
	}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = DefaultTimeout
	}
	c.http = &http.Client{Timeout: c.cfg.Timeout}
	c.limiter = rate.NewLimiter(rate.Limit(c.cfg.Rate), 1)
	return c, nil
}

// SetSession replaces the authentication headers, e.g. after LoginWithBrowser.
func (c *Client) SetSession(s *Session) {
	if s == nil {
		return
	}
	c.cfg.Cookie = s.Cookie
	c.cfg.CSRFToken = s.CSRFToken
}

// SearchQuery renders the full search expression with the configured date
// and category filters.
func (c *Client) SearchQuery(query string) string {
	parts := []string{strings.TrimSpace(query)}
	if c.cfg.DateFrom != "" {
		parts = append(parts, "after:"+c.cfg.DateFrom)
	}
	if c.cfg.DateTo != "" {
		parts = append(parts, "before:"+c.cfg.DateTo)
	}
	if c.cfg.Category != "" {
		parts = append(parts, "#"+c.cfg.Category)
	}
	return strings.Join(parts, " ")
}

type searchResponse struct {
	Topics []struct {
		ID int `json:"id"`
	} `json:"topics"`
}

type topicResponse struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	PostStream struct {
		Posts []struct {
			ID         int    `json:"id"`
			PostNumber int    `json:"post_number"`
			Username   string `json:"username"`
			CreatedAt  string `json:"created_at"`
			Cooked     string `json:"cooked"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// FetchPosts searches for topics matching query and returns every post of
// each matching topic, topics in ascending ID order. A topic that fails to
// load is logged and skipped.
func (c *Client) FetchPosts(ctx context.Context, query string) ([]Post, error) {
	ids, err := c.SearchTopics(ctx, query)
	if err != nil {
		return nil, err
	}
	c.log.Info("discourse: search complete", slog.String("query", query), slog.Int("topics", len(ids)))

	var posts []Post
	for _, id := range ids {
		topic, err := c.Topic(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("discourse: %w", ctx.Err())
			}
			c.log.Warn("discourse: skipping topic", slog.Int("topic_id", id), slog.String("error", err.Error()))
			continue
		}
		posts = append(posts, topic...)
	}
	return posts, nil
}

// SearchTopics returns the distinct topic IDs matching query, ascending.
func (c *Client) SearchTopics(ctx context.Context, query string) ([]int, error) {
	params := url.Values{"q": {c.SearchQuery(query)}}
	var resp searchResponse
	if err := c.get(ctx, "/search.json?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("discourse: search: %w", err)
	}

	seen := make(map[int]bool, len(resp.Topics))
	ids := make([]int, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	sort.Ints(ids)
	if c.cfg.MaxTopics > 0 && len(ids) > c.cfg.MaxTopics {
		ids = ids[:c.cfg.MaxTopics]
	}
	return ids, nil
}

// Topic returns every post of one topic in post-stream order.
func (c *Client) Topic(ctx context.Context, id int) ([]Post, error) {
	var t topicResponse
	if err := c.get(ctx, "/t/"+strconv.Itoa(id)+".json", &t); err != nil {
		return nil, fmt.Errorf("discourse: topic %d: %w", id, err)
	}

	out := make([]Post, 0, len(t.PostStream.Posts))
	for _, p := range t.PostStream.Posts {
		out = append(out, Post{
			TopicID:    t.ID,
			TopicTitle: t.Title,
			PostID:     p.ID,
			PostNumber: p.PostNumber,
			Author:     p.Username,
			CreatedAt:  p.CreatedAt,
			Content:    PlainText(p.Cooked),
			Cooked:     p.Cooked,
			URL:        c.PostURL(t.Slug, t.ID, p.PostNumber),
		})
	}
	return out, nil
}

// PostURL returns the canonical link to a post.
func (c *Client) PostURL(slug string, topicID, postNumber int) string {
	return fmt.Sprintf("%s/t/%s/%d/%d", c.base, slug, topicID, postNumber)
}

// get issues a paced, authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}
	if c.cfg.CSRFToken != "" {
		req.Header.Set("X-CSRF-Token", c.cfg.CSRFToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// PlainText returns the text content of rendered post HTML.
func PlainText(cooked string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cooked))
	if err != nil {
		return strings.TrimSpace(cooked)
	}
	return strings.TrimSpace(doc.Text())
}

// WritePosts stores posts as indented JSON at path, creating parent
// directories.
func WritePosts(path string, posts []Post) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("discourse: %w", err)
	}
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("discourse: encoding posts: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("discourse: writing %s: %w", path, err)
	}
	return nil
}

package discourse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DefaultLoginTimeout bounds the whole browser login.
const DefaultLoginTimeout = 90 * time.Second

// Login form selectors of the stock Discourse UI.
const (
	selUsername    = "#login-account-name"
	selPassword    = "#login-account-password"
	selSubmit      = "#login-button"
	selCurrentUser = "#current-user"
	csrfScript     = `(document.querySelector('meta[name="csrf-token"]') || {}).content || ""`
)

// Session holds the authentication state captured after a browser login.
type Session struct {
	// Cookie is a Cookie header value with every forum cookie.
	Cookie string
	// CSRFToken is the page's CSRF token, possibly empty.
	CSRFToken string
}

// LoginWithBrowser signs in through a headless Chrome and returns the session
// cookies and CSRF token for API use. It needs Username and Password.
func LoginWithBrowser(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("discourse: base URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("discourse: DISCOURSE_USERNAME and DISCOURSE_PASSWORD are required for browser login")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithTimeout(ctx, DefaultLoginTimeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var (
		cookies []*network.Cookie
		csrf    string
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(base+"/login"),
		chromedp.WaitVisible(selUsername, chromedp.ByQuery),
		chromedp.SendKeys(selUsername, cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(selPassword, cfg.Password, chromedp.ByQuery),
		chromedp.Click(selSubmit, chromedp.ByQuery),
		chromedp.WaitVisible(selCurrentUser, chromedp.ByQuery),
		chromedp.Evaluate(csrfScript, &csrf),
		chromedp.ActionFunc(func(ctx context.Context) error {
			c, err := network.GetCookies().WithURLs([]string{base}).Do(ctx)
			if err != nil {
				return err
			}
			cookies = c
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("discourse: browser login: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: login produced no cookies", ErrUnauthorized)
	}
	return &Session{Cookie: CookieHeader(cookies), CSRFToken: csrf}, nil
}

// CookieHeader renders cookies as a Cookie header value.
func CookieHeader(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

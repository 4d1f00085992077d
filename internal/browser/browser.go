// Package browser drives a headless Chrome session whose traffic is
// forced through a SOCKS5 proxy. Every page the crawler sees comes
// through here.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/config"
)

var (
	// ErrNavigationTimeout means the page did not become ready in time.
	ErrNavigationTimeout = errors.New("browser: navigation timed out")
	// ErrNavigation covers every other navigation failure.
	ErrNavigation = errors.New("browser: navigation failed")
)

// blockMarkers are phrases that show up in interstitial and rejection
// pages. Matching is case-insensitive on the page body text.
var blockMarkers = []string{
	"captcha",
	"access denied",
	"too many requests",
	"shield",
	"rate limit",
}

// Session is one headless browser bound to one proxy endpoint. It is
// not safe for concurrent use; the orchestrator serializes all calls.
type Session interface {
	Goto(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	IsBlocked(ctx context.Context) (bool, error)
	Close()
}

// Factory creates sessions. The orchestrator uses it to rebuild the
// browser after an identity rotation.
type Factory func(socksAddr string) (Session, error)

// ChromeSession implements Session on chromedp.
type ChromeSession struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	browserCtx context.Context
	cancelFns  []context.CancelFunc
	closeOnce  sync.Once
}

// Open starts a headless Chrome whose requests all go through the given
// SOCKS5 address. It navigates nowhere until Goto is called.
func Open(cfg config.BrowserConfig, socksAddr string, logger *zap.Logger) (*ChromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("proxy-server", "socks5://"+socksAddr),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.DisableWebGL {
		opts = append(opts, chromedp.Flag("disable-webgl", true))
	}
	if cfg.PrivateBrowser {
		opts = append(opts, chromedp.Flag("incognito", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	logger.Debug("browser session opened", zap.String("proxy", socksAddr))
	return &ChromeSession{
		cfg:        cfg,
		logger:     logger,
		browserCtx: browserCtx,
		cancelFns:  []context.CancelFunc{browserCancel, allocCancel},
	}, nil
}

// Goto navigates to the URL and waits for the document body to be ready.
func (s *ChromeSession) Goto(ctx context.Context, url string) error {
	navCtx, cancel := s.navContext(ctx)
	defer cancel()

	err := chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "hr-HR,hr;q=0.9"}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// HTML returns the rendered document markup of the current page.
func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	navCtx, cancel := s.navContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// IsBlocked reports whether the current page looks like an anti-bot
// interstitial rather than real content.
func (s *ChromeSession) IsBlocked(ctx context.Context) (bool, error) {
	navCtx, cancel := s.navContext(ctx)
	defer cancel()

	var body string
	if err := chromedp.Run(navCtx, chromedp.Text("body", &body, chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("read page text: %w", err)
	}
	return Blocked(body), nil
}

// Close tears down the browser. Repeated calls are no-ops.
func (s *ChromeSession) Close() {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancelFns {
			cancel()
		}
		s.logger.Debug("browser session closed")
	})
}

func (s *ChromeSession) navContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancelMerged := mergeCancel(s.browserCtx, ctx)
	timed, cancelTimed := context.WithTimeout(merged, s.cfg.NavTimeout())
	return timed, func() {
		cancelTimed()
		cancelMerged()
	}
}

// mergeCancel derives a context from the browser context that is also
// cancelled when the caller's context is done. chromedp actions must run
// on the browser context to reach the right target.
func mergeCancel(browserCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(browserCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// Blocked reports whether the page body text carries a block marker.
func Blocked(bodyText string) bool {
	lowered := strings.ToLower(bodyText)
	for _, marker := range blockMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// NewFactory returns a Factory that opens ChromeSessions with the given
// configuration.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) Factory {
	return func(socksAddr string) (Session, error) {
		return Open(cfg, socksAddr, logger)
	}
}

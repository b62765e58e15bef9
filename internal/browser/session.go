// Package browser drives a headless Chrome tab via chromedp and exposes the
// DOM snapshot, scrolling, and input-inspection primitives the discovery loop
// needs.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the Chrome allocator and navigation behavior.
type Config struct {
	// Proxy is an optional proxy server URL passed to Chrome.
	Proxy string
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// Headless toggles the headless flag; interactive mode helps debugging.
	Headless bool
	// CookiesPath points at an exported cookies.json; empty skips injection.
	CookiesPath string
	// NavigationTimeout caps a single Navigate call.
	NavigationTimeout time.Duration
	// WindowWidth and WindowHeight size the viewport.
	WindowWidth  int
	WindowHeight int
}

const defaultNavigationTimeout = 60 * time.Second

// Session owns one browser tab for the lifetime of a scrape run. It
// implements the page-session interface consumed by the discovery loop.
type Session struct {
	cfg             Config
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
}

// New launches Chrome and warms up a tab. Callers must Close the session.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		cfg:             cfg,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}, nil
}

// Close tears down the tab and the Chrome process.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.browserCancel()
	s.allocatorCancel()
}

// Navigate loads rawURL, injecting cookies first when configured, and waits
// for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	actions := []chromedp.Action{}
	if s.cfg.CookiesPath != "" {
		cookies, err := LoadCookies(s.cfg.CookiesPath)
		if err != nil {
			// A broken cookie file degrades to an anonymous session.
			s.logger.Warn("cookie injection skipped",
				zap.String("path", s.cfg.CookiesPath),
				zap.Error(err),
			)
		} else if len(cookies) > 0 {
			actions = append(actions, setCookiesAction(cookies))
			s.logger.Info("cookies injected", zap.Int("count", len(cookies)))
		}
	}
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// HTML returns the full serialized DOM of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("dom snapshot: %w", err)
	}
	return html, nil
}

// scrollScript nudges the window plus every scrollable container to the
// bottom, which is what triggers the gallery's infinite scroll.
const scrollScript = `(() => {
	window.scrollTo(0, document.body.scrollHeight);
	for (const el of document.querySelectorAll('div')) {
		if (el.scrollHeight > el.clientHeight) {
			el.scrollTop = el.scrollHeight;
		}
	}
	return true;
})()`

// ScrollStep performs one scroll nudge.
func (s *Session) ScrollStep(ctx context.Context) error {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var done bool
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(scrollScript, &done),
	); err != nil {
		return fmt.Errorf("scroll step: %w", err)
	}
	return nil
}

// InputValue reads the live value of the first element matching selector.
// ok is false when the element is absent or holds an empty value.
func (s *Session) InputValue(ctx context.Context, selector string) (string, bool, error) {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el && 'value' in el ? String(el.value) : '';
	})()`, selector)

	var value string
	if err := chromedp.Run(runCtx,
		chromedp.Evaluate(script, &value),
	); err != nil {
		return "", false, fmt.Errorf("read input %q: %w", selector, err)
	}
	return value, value != "", nil
}

// taskContext binds browser actions to both the tab and the caller's context.
func (s *Session) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

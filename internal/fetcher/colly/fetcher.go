// Package collyfetcher implements image retrieval over HTTP using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string
	// Proxy is an optional proxy URL applied to all requests.
	Proxy string
	// Timeout caps a single request, headers through body.
	Timeout time.Duration
	// PerHostQPS throttles requests per image host (default 8).
	PerHostQPS float64
	// Referer is sent so CDNs that check origin serve the full image.
	Referer string
}

const (
	defaultTimeout    = 30 * time.Second
	defaultPerHostQPS = 8.0
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Fetcher downloads image bytes through a shared Colly collector. Each Fetch
// clones the collector, so concurrent download workers never share callback
// state.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PerHostQPS <= 0 {
		cfg.PerHostQPS = defaultPerHostQPS
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	if cfg.Proxy != "" {
		if err := base.SetProxy(cfg.Proxy); err != nil {
			return nil, fmt.Errorf("set fetch proxy: %w", err)
		}
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: base,
		logger:        logger,
		limiters:      make(map[string]*rate.Limiter),
	}, nil
}

// Fetch retrieves the raw bytes at rawURL. Non-2xx responses and transport
// failures both surface as errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, err
	}
	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}

	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnRequest(func(r *colly.Request) {
		if f.cfg.Referer != "" {
			r.Headers.Set("Referer", f.cfg.Referer)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			send(fetchResult{err: fmt.Errorf("unexpected status %d for %s", r.StatusCode, rawURL)})
			return
		}
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, cbErr error) {
		if cbErr == nil {
			cbErr = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode > 0 {
			cbErr = fmt.Errorf("status %d: %w", r.StatusCode, cbErr)
		}
		send(fetchResult{err: cbErr})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.err != nil {
			return nil, res.err
		}
		if len(res.body) == 0 {
			return nil, fmt.Errorf("empty response body for %s", rawURL)
		}
		return res.body, nil
	default:
		return nil, errors.New("colly fetch produced no result")
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.cfg.PerHostQPS), 1)
		f.limiters[host] = lim
	}
	return lim
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse fetch url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("fetch url %q has no host", rawURL)
	}
	return u.Host, nil
}

type fetchResult struct {
	body []byte
	err  error
}

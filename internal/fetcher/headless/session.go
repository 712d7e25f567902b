// Package headless renders pages through one long-lived headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

const (
	defaultPageTimeout   = 45 * time.Second
	defaultDetailTimeout = 30 * time.Second
	defaultSettleDelay   = 500 * time.Millisecond
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("headless session closed")

// Config controls the browser session.
type Config struct {
	UserAgent     string
	ExecPath      string
	PageTimeout   time.Duration
	DetailTimeout time.Duration
	SettleDelay   time.Duration
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	meta   *responseMeta
}

// Session implements crawler.Fetcher. Listing pages reuse the main tab;
// transient requests open a fresh tab that is closed once the fetch returns.
// Fetches are serialized.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	main        *tab
}

// NewSession prepares a browser session. Chrome starts on the first fetch.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.PageTimeout < 0 || cfg.DetailTimeout < 0 || cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("headless timeouts must be >= 0")
	}
	if cfg.PageTimeout == 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.DetailTimeout == 0 {
		cfg.DetailTimeout = defaultDetailTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	return &Session{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.main != nil {
		s.main.cancel()
	}
	s.browserStop()
	s.allocCancel()
	return nil
}

// Fetch navigates to request.URL and returns the rendered DOM.
func (s *Session) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return crawler.FetchResponse{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if err := s.start(); err != nil {
		return crawler.FetchResponse{}, err
	}

	target := s.main
	if request.Transient {
		target = s.openTab()
		defer target.cancel()
	}
	target.meta.reset()

	runCtx, cancel := context.WithTimeout(target.ctx, s.timeoutFor(request))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	html, finalURL, err := s.run(runCtx, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless fetch %s: %w", request.URL, ctxErr)
		}
		return crawler.FetchResponse{}, fmt.Errorf("headless fetch %s: %w", request.URL, err)
	}

	status, headers, responseURL := target.meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	return crawler.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (s *Session) start() error {
	if s.started {
		return nil
	}
	if err := chromedp.Run(s.browserCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	s.main = s.newTab(s.browserCtx, func() {})
	s.started = true
	s.logger.Info("headless browser started")
	return nil
}

// openTab creates a sibling tab; cancelling it closes the tab.
func (s *Session) openTab() *tab {
	ctx, cancel := chromedp.NewContext(s.browserCtx)
	return s.newTab(ctx, cancel)
}

func (s *Session) newTab(ctx context.Context, cancel context.CancelFunc) *tab {
	t := &tab{ctx: ctx, cancel: cancel, meta: newResponseMeta()}
	chromedp.ListenTarget(ctx, t.meta.captureEvent)
	return t
}

func (s *Session) run(ctx context.Context, request crawler.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (s *Session) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		// Extra headers stick to the tab, so always reset them.
		if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

func (s *Session) timeoutFor(request crawler.FetchRequest) time.Duration {
	if request.Transient {
		if s.cfg.DetailTimeout > 0 {
			return s.cfg.DetailTimeout
		}
		return defaultDetailTimeout
	}
	if s.cfg.PageTimeout > 0 {
		return s.cfg.PageTimeout
	}
	return defaultPageTimeout
}

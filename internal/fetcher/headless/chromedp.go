// Package headless renders pages in a reusable headless Chrome session.
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

	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultWindowWidth  = 1366
	DefaultWindowHeight = 768
	DefaultSettleDelay  = 500 * time.Millisecond

	idlePollInterval = 50 * time.Millisecond
)

// ErrSelectorTimeout is returned when the wait selector never appears.
var ErrSelectorTimeout = errors.New("selector wait timed out")

// Config controls the browser session.
type Config struct {
	UserAgent         string
	ExecPath          string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	// SettleDelay is how long the tab must have no request in flight before
	// the page counts as loaded. The wait shares the navigation budget.
	SettleDelay time.Duration
}

// Session is a lazily started Chrome instance shared by sequential fetches.
// Each fetch gets its own tab; the browser stays up until Close.
type Session struct {
	cfg    Config
	logger *zap.Logger
	slot   chan struct{}

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ scraper.Session = (*Session)(nil)

// NewSession creates a session. The browser is not launched until the first fetch.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:    withDefaults(cfg),
		logger: logger,
		slot:   make(chan struct{}, 1),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = DefaultWindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = DefaultWindowHeight
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = scraper.DefaultNavigationTimeout
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = scraper.DefaultSelectorTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return cfg
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
		chromedp.UserAgent(s.cfg.UserAgent),
	)
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	return opts
}

// ensureBrowser starts the browser if no live one exists.
func (s *Session) ensureBrowser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return s.browserCtx, nil
	}
	s.shutdownLocked()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.logger.Info("headless browser started")
	return browserCtx, nil
}

func (s *Session) shutdownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCancel = nil
}

// Close shuts the browser down once any in-flight fetch has finished. It is
// idempotent and a later fetch starts a new browser.
func (s *Session) Close() {
	s.slot <- struct{}{}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx == nil {
		return
	}
	s.shutdownLocked()
	s.logger.Info("headless browser closed")
}

// Fetch opens a tab, navigates, optionally waits for the request selector and
// returns the rendered DOM.
func (s *Session) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	if err := s.acquire(ctx); err != nil {
		return scraper.FetchResponse{}, err
	}
	defer s.release()

	browserCtx, err := s.ensureBrowser()
	if err != nil {
		return scraper.FetchResponse{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newResponseMeta()
	idle := newNetworkIdle(time.Now)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		meta.captureEvent(ev)
		idle.observe(ev)
	})

	start := time.Now()
	html, finalURL, err := s.render(tabCtx, request, idle)
	metrics.ObserveFetch("headless", request.URL, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scraper.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ctxErr)
		}
		return scraper.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	return scraper.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// render navigates and waits for the network to go quiet within the
// navigation budget, then waits for the selector within its own budget before
// reading the DOM.
func (s *Session) render(tabCtx context.Context, request scraper.FetchRequest, idle *networkIdle) (string, string, error) {
	navCtx, navCancel := context.WithTimeout(tabCtx, s.navTimeout(request))
	defer navCancel()
	nav := []chromedp.Action{
		s.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.SettleDelay > 0 {
		nav = append(nav, idle.wait(s.cfg.SettleDelay))
	}
	if err := chromedp.Run(navCtx, nav...); err != nil {
		return "", "", fmt.Errorf("navigate: %w", err)
	}

	if request.WaitSelector != "" {
		selCtx, selCancel := context.WithTimeout(tabCtx, s.selectorTimeout(request))
		err := chromedp.Run(selCtx, chromedp.WaitReady(request.WaitSelector, chromedp.ByQuery))
		selCancel()
		if err != nil {
			return "", "", fmt.Errorf("%w: %q: %w", ErrSelectorTimeout, request.WaitSelector, err)
		}
	}

	var html, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", "", fmt.Errorf("read document: %w", err)
	}
	return html, finalURL, nil
}

func (s *Session) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser session wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	select {
	case <-s.slot:
	default:
	}
}

func (s *Session) navTimeout(request scraper.FetchRequest) time.Duration {
	if request.Timeout > 0 {
		return request.Timeout
	}
	return s.cfg.NavigationTimeout
}

func (s *Session) selectorTimeout(request scraper.FetchRequest) time.Duration {
	if request.SelectorTimeout > 0 {
		return request.SelectorTimeout
	}
	return s.cfg.SelectorTimeout
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// snapshotWithFallbacks prefers the captured document response, then the
// browser location, then the requested URL.
func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}

// networkIdle tracks the requests a tab has in flight.
type networkIdle struct {
	mu       sync.Mutex
	now      func() time.Time
	inflight map[network.RequestID]struct{}
	last     time.Time
}

func newNetworkIdle(now func() time.Time) *networkIdle {
	return &networkIdle{now: now, inflight: map[network.RequestID]struct{}{}, last: now()}
}

func (n *networkIdle) observe(ev any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		n.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(n.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(n.inflight, e.RequestID)
	default:
		return
	}
	n.last = n.now()
}

// quietFor reports how long no request has been in flight.
func (n *networkIdle) quietFor() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inflight) > 0 {
		return 0
	}
	return n.now().Sub(n.last)
}

// wait blocks until the tab has been quiet for the given window or ctx ends.
func (n *networkIdle) wait(quiet time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(idlePollInterval)
		defer ticker.Stop()
		for n.quietFor() < quiet {
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait for network idle: %w", ctx.Err())
			case <-ticker.C:
			}
		}
		return nil
	})
}

package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "hnx-probe", RespectRobots: true, Timeout: time.Second})
	req := scraper.FetchRequest{URL: "https://www.hnx.vn", Headers: http.Header{"X-Trace": {"yes"}}}

	collector, state := f.buildCollector(req, time.Unix(0, 0), &scraper.FetchResponse{}, new(error))
	require.Equal(t, "hnx-probe", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.NotNil(t, state)

	f = New(Config{})
	collector, state = f.buildCollector(req, time.Unix(0, 0), &scraper.FetchResponse{}, new(error))
	require.True(t, collector.IgnoreRobotsTxt)
	require.Nil(t, state)
}

func TestFetcherTimeoutPrecedence(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultTimeout, New(Config{}).timeout(scraper.FetchRequest{}))
	require.Equal(t, 3*time.Second, New(Config{Timeout: 3 * time.Second}).timeout(scraper.FetchRequest{}))
	require.Equal(t, time.Second, New(Config{Timeout: 3 * time.Second}).timeout(scraper.FetchRequest{Timeout: time.Second}))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := scraper.FetchRequest{
		URL:     "https://www.hnx.vn",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result scraper.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://www.hnx.vn")},
	})
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.False(t, result.UsedHeadless)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestFetcherFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<table><tr><td>Mã</td></tr></table>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/detail"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "<table>")

	_, err = f.Fetch(context.Background(), scraper.FetchRequest{URL: srv.URL + "/missing"})
	require.Error(t, err)
}

func TestFetcherFetchCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Fetch(ctx, scraper.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

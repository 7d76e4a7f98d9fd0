// Package collyfetcher implements catalog.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// Config controls collector behavior. MaxBodySize caps a response body in
// bytes; 0 means no limit.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Headers     http.Header
	MaxBodySize int
}

// Fetcher implements catalog.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Listing pages are revisited on every scrape run, so
// the collector allows repeated visits of the same URL.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// FetchPage executes a single HTTP GET and returns the response body. Any
// transport error, non-2xx status or body that reaches MaxBodySize is
// reported as catalog.ErrNetwork.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := f.buildCollector(&body, &status, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &status, &fetchErr); err != nil {
		metrics.ObservePageFetch(url, "error")
		return nil, err
	}
	// colly truncates at the limit without reporting it.
	if f.cfg.MaxBodySize > 0 && len(body) >= f.cfg.MaxBodySize {
		metrics.ObservePageFetch(url, "truncated")
		return nil, fmt.Errorf("%w: response %s: body reached %d byte limit", catalog.ErrNetwork, url, f.cfg.MaxBodySize)
	}
	metrics.ObservePageFetch(url, "ok")
	return body, nil
}

func (f *Fetcher) buildCollector(body *[]byte, status *int, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, body, status, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	body *[]byte,
	status *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	status *int,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: fetch %s canceled: %w", catalog.ErrNetwork, url, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("%w: response %s (status %d): %w", catalog.ErrNetwork, url, *status, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("%w: visit %s: %w", catalog.ErrNetwork, url, err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package collyfetcher implements a static (no JavaScript) Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 10 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps a response body in bytes. Zero uses 10 MiB.
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher with one shared collector backend.
// Listing pages are fetched again on every run, so revisits are allowed.
type Fetcher struct {
	base *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.MaxBodySize = cfg.MaxBodySize
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)
	return &Fetcher{base: c}
}

// Fetch issues one GET bound to ctx. Transient has no meaning for a static
// fetch. Error statuses come back as responses, not errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch %s: %w", request.URL, err)
	}

	var (
		result    crawler.FetchResponse
		responded bool
		fetchErr  error
	)
	start := time.Now()
	c := f.base.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		responded = true
		result = toFetchResponse(r, time.Since(start))
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	err := c.Visit(request.URL)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch %s: %w", request.URL, ctxErr)
	}
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch %s: %w", request.URL, err)
	}
	if !responded {
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch %s: no response", request.URL)
	}
	return result, nil
}

func toFetchResponse(r *colly.Response, elapsed time.Duration) crawler.FetchResponse {
	resp := crawler.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   elapsed,
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

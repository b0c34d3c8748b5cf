package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config configures the fetcher
type Config struct {
	Timeout     time.Duration     // per-request timeout, default 10s
	Delay       time.Duration     // fixed pause between requests, 0 disables pacing
	UserAgent   string            // default "opportunity-finder/1.0"
	MaxBodySize int               // default 10MB
	Transport   http.RoundTripper // optional, replaces the default transport
}

// Response is the outcome of a single GET
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs sequential, paced GET requests through a colly collector
type Fetcher struct {
	cfg       Config
	collector *colly.Collector
	limiter   *rate.Limiter
}

// New creates a Fetcher
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "opportunity-finder/1.0"
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 * 1024 * 1024
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	f := &Fetcher{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
	f.setupColly()
	return f
}

// setupColly configures the base collector; every request runs on a clone of it
func (f *Fetcher) setupColly() {
	f.collector = colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(f.cfg.MaxBodySize),
	)

	// Set request timeout
	f.collector.SetRequestTimeout(f.cfg.Timeout)

	if f.cfg.Transport != nil {
		f.collector.WithTransport(f.cfg.Transport)
	}

	// One request at a time
	if err := f.collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		logrus.Warnf("Failed to apply collector limit rule: %v", err)
	}
}

// Get fetches url. A non-200 status returns the response together with a *StatusError;
// transport failures return a *NetworkError.
func (f *Fetcher) Get(ctx context.Context, url string) (*Response, error) {
	return f.get(ctx, url, f.cfg.MaxBodySize)
}

// GetLarge is Get with a caller-supplied body limit, used for list downloads
func (f *Fetcher) GetLarge(ctx context.Context, url string, maxBodySize int) (*Response, error) {
	return f.get(ctx, url, maxBodySize)
}

func (f *Fetcher) get(ctx context.Context, url string, maxBodySize int) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	c := f.collector.Clone()
	c.Context = ctx
	c.MaxBodySize = maxBodySize

	var resp *Response
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	start := time.Now()
	err := c.Visit(url)
	elapsed := time.Since(start)

	if err != nil {
		logrus.Debugf("GET %s failed after %v: %v", url, elapsed, err)
		return nil, &NetworkError{URL: url, Err: err}
	}
	if resp == nil {
		return nil, &NetworkError{URL: url, Err: errors.New("no response received")}
	}

	resp.Duration = elapsed
	logrus.Debugf("GET %s -> %d (%d bytes, %v)", url, resp.StatusCode, len(resp.Body), elapsed)

	if resp.StatusCode != http.StatusOK {
		return resp, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return resp, nil
}

// URL builds the https URL of a well-known file on domain
func URL(domain, file string) string {
	return fmt.Sprintf("https://%s/%s", domain, file)
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher with a Colly collector. It respects
// robots.txt and retries failed requests; use it for sites that reject plain clients.
type CollyFetcher struct {
	UserAgent       string
	MaxRetries      int
	RequestTimeout  time.Duration
	DomainDelay     time.Duration
	IgnoreRobotsTxt bool
	MaxBodySize     int // bytes, 0 = unlimited
	CacheDir        string

	logger *zap.Logger
}

// NewCollyFetcher creates a CollyFetcher from a FetchConfig.
func NewCollyFetcher(cfg FetchConfig, logger *zap.Logger) *CollyFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults(DefaultFetchConfig())
	return &CollyFetcher{
		UserAgent:      cfg.UserAgent,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		DomainDelay:    time.Duration(float64(time.Second) / cfg.RateLimitRPS),
		MaxBodySize:    20 * 1024 * 1024,
		logger:         logger,
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context, domain string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(domain),
		colly.DetectCharset(),
		colly.StdlibContext(ctx),
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	if f.CacheDir != "" {
		opts = append(opts, colly.CacheDir(f.CacheDir))
	}

	c := colly.NewCollector(opts...)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
	})
	c.SetRequestTimeout(f.RequestTimeout)
	return c
}

// Fetch visits targetURL synchronously and returns the buffered body.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	c := f.buildCollector(ctx, parsedURL.Hostname())

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if ctx.Err() == nil && retries < f.MaxRetries && (r.StatusCode == 0 || shouldRetry(nil, r.StatusCode)) {
			r.Request.Ctx.Put("retries", retries+1)
			f.logger.Debug("colly retry",
				zap.String("url", r.Request.URL.String()),
				zap.Int("attempt", retries+1),
				zap.Error(err))
			time.Sleep(time.Duration(retries+1) * time.Second)
			if retryErr := r.Request.Retry(); retryErr == nil {
				return
			}
		}
		if r.StatusCode != 0 {
			fetchErr = &StatusError{URL: targetURL, Code: r.StatusCode}
			return
		}
		fetchErr = fmt.Errorf("fetch failed after %d retries: %w", retries, err)
	})

	visitErr := c.Visit(targetURL)
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// A retry inside OnError can succeed after Visit has already reported the first failure.
	if result != nil {
		return result, nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit failed: %w", visitErr)
	}
	return nil, fmt.Errorf("no response received for %s", targetURL)
}

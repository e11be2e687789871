package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "MarketLedger/1.0 (Construction Market Intelligence)"

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

// DefaultFetchConfig is used for any field a jurisdiction leaves unset.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		TimeoutSeconds: 30,
		MaxRetries:     2,
		RateLimitRPS:   1.0,
		UserAgent:      defaultUserAgent,
		AcceptLanguage: "en-US,en;q=0.5",
	}
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// RateLimitedFetcher provides per-host rate limiting, bounded retries with
// exponential backoff, and configurable timeouts per host.
type RateLimitedFetcher struct {
	clients       map[string]*http.Client
	limiters      map[string]*rate.Limiter
	configs       map[string]FetchConfig
	defaultConfig FetchConfig
	newBackOff    func() backoff.BackOff
	logger        *zap.Logger
	mu            sync.RWMutex
}

func NewRateLimitedFetcher(defaultConfig FetchConfig, logger *zap.Logger) *RateLimitedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitedFetcher{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*rate.Limiter),
		configs:       make(map[string]FetchConfig),
		defaultConfig: defaultConfig.withDefaults(DefaultFetchConfig()),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: logger,
	}
}

// Configure registers per-host settings for the host of rawURL. It must be
// called before the first fetch to that host to take effect.
func (f *RateLimitedFetcher) Configure(rawURL string, cfg FetchConfig) {
	domain, err := getDomain(rawURL)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.clients[domain]; exists {
		return
	}
	f.configs[domain] = cfg.withDefaults(f.defaultConfig)
}

func getDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	return u.Host, nil
}

// client returns or creates the HTTP client and limiter for a domain.
func (f *RateLimitedFetcher) client(domain string) (*http.Client, *rate.Limiter, FetchConfig) {
	f.mu.RLock()
	client, exists := f.clients[domain]
	limiter := f.limiters[domain]
	config, configured := f.configs[domain]
	f.mu.RUnlock()
	if !configured {
		config = f.defaultConfig
	}
	if exists {
		return client, limiter, config
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, exists := f.clients[domain]; exists {
		return client, f.limiters[domain], config
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !config.AllowPrivateNetworks {
		transport.DialContext = safeDialContext
	}
	if config.ProxyURL != "" {
		if proxyURL, err := url.Parse(config.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client = &http.Client{
		Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
		Transport: transport,
	}
	if !config.AllowPrivateNetworks {
		client.CheckRedirect = safeCheckRedirect
	}
	limiter = rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1)

	f.clients[domain] = client
	f.limiters[domain] = limiter
	f.configs[domain] = config
	return client, limiter, config
}

// Fetch implements the Fetcher interface with rate limiting and retries.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	domain, err := getDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	client, limiter, config := f.client(domain)

	attempt := 0
	operation := func() (*FetchedDocument, error) {
		attempt++
		if err := limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", config.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,application/json,*/*;q=0.8")
		req.Header.Set("Accept-Language", config.AcceptLanguage)
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("failed to execute request: %w", err)
			if ctx.Err() == nil && shouldRetry(err, 0) {
				f.logger.Debug("retrying fetch", zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Error(err))
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		if resp.StatusCode == http.StatusOK {
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		resp.Body.Close()
		statusErr := &StatusError{URL: rawURL, Code: resp.StatusCode}
		if !shouldRetry(nil, resp.StatusCode) {
			return nil, backoff.Permanent(statusErr)
		}
		f.logger.Debug("retrying fetch", zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
		if seconds := retryAfterSeconds(resp.Header.Get("Retry-After")); seconds > 0 {
			return nil, backoff.RetryAfter(seconds)
		}
		return nil, statusErr
	}

	doc, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(uint(config.MaxRetries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", rawURL, attempt, err)
	}
	return doc, nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		var timeout interface{ Timeout() bool }
		return errors.As(err, &timeout) && timeout.Timeout()
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfterSeconds reads a delta-seconds Retry-After header, capped at a minute.
func retryAfterSeconds(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	if n > 60 {
		return 60
	}
	return n
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	addr, ok := netip.AddrFromSlice(ip)
	if ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.DefaultResolver.LookupIP(req.Context(), "ip", host)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("redirect host resolved to no addresses")
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}

	return nil
}

package news

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxFeedBytes = 5 * 1024 * 1024

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Collector fetches every configured feed and keeps construction-relevant items.
type Collector struct {
	cfg        *Config
	fetcher    ingest.Fetcher
	classifier *ingest.Classifier
	high       *matcher
	medium     *matcher
	funding    *matcher
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Collector)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used to date items that carry no publication date.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithKeywordTable sets the business-line keywords used to tag items.
func WithKeywordTable(table ingest.KeywordTable) Option {
	return func(c *Collector) {
		c.classifier = ingest.NewClassifier(table)
	}
}

func NewCollector(cfg *Config, fetcher ingest.Fetcher, opts ...Option) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &Collector{
		cfg:        cfg,
		fetcher:    fetcher,
		classifier: ingest.NewClassifier(ingest.DefaultKeywordTable()),
		high:       newMatcher(cfg.Keywords.HighPriority),
		medium:     newMatcher(cfg.Keywords.MediumPriority),
		funding:    newMatcher(cfg.Keywords.Funding),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect is best-effort: a failing feed is logged and skipped. An error is
// returned only when every feed failed or ctx was canceled; the items gathered
// so far are returned either way, newest first.
func (c *Collector) Collect(ctx context.Context) ([]models.NewsItem, error) {
	perFeed := make([][]models.NewsItem, len(c.cfg.Feeds))
	feedErrs := make([]error, len(c.cfg.Feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, feed := range c.cfg.Feeds {
		i, feed := i, feed
		g.Go(func() error {
			items, err := c.collectFeed(gctx, feed)
			if err != nil {
				c.logger.Warn("feed failed",
					zap.String("op", "news.Collector.Collect"),
					zap.String("feed", feed.Name),
					zap.String("url", feed.URL),
					zap.Error(err))
				feedErrs[i] = fmt.Errorf("%s: %w", feed.Name, err)
				return nil
			}
			c.logger.Debug("feed collected",
				zap.String("feed", feed.Name),
				zap.Int("relevant", len(items)))
			perFeed[i] = items
			return nil
		})
	}
	_ = g.Wait()

	items := []models.NewsItem{}
	failed := 0
	for i := range perFeed {
		items = append(items, perFeed[i]...)
		if feedErrs[i] != nil {
			failed++
		}
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Date > items[b].Date
	})

	if err := ctx.Err(); err != nil {
		return items, err
	}
	if len(c.cfg.Feeds) > 0 && failed == len(c.cfg.Feeds) {
		return items, fmt.Errorf("all %d feeds failed: %w", failed, errors.Join(feedErrs...))
	}
	return items, nil
}

func (c *Collector) collectFeed(ctx context.Context, feed Feed) ([]models.NewsItem, error) {
	doc, err := c.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	data, err := io.ReadAll(io.LimitReader(doc.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	entries, err := ParseFeed(data)
	if err != nil {
		return nil, err
	}
	return c.Items(feed, entries), nil
}

// Items turns the first entries of a feed into relevant news items.
func (c *Collector) Items(feed Feed, entries []Entry) []models.NewsItem {
	if len(entries) > c.cfg.MaxEntriesPerFeed {
		entries = entries[:c.cfg.MaxEntriesPerFeed]
	}

	var items []models.NewsItem
	for _, e := range entries {
		title := strings.Join(strings.Fields(e.Title), " ")
		summary := c.cleanSummary(e.Summary)
		combined := title + " " + summary

		if !c.high.Match(combined) && !c.medium.Match(combined) {
			continue
		}

		category := models.CategoryNews
		if c.funding.Match(combined) {
			category = models.CategoryFunding
		}

		items = append(items, models.NewsItem{
			ID:            ingest.HashID(firstNonEmpty(e.Link, title)),
			Title:         title,
			Summary:       summary,
			URL:           e.Link,
			Source:        feed.Name,
			State:         feed.State,
			Date:          c.itemDate(e.Published),
			Category:      category,
			Priority:      c.priority(combined),
			BusinessLines: c.classifier.Classify(combined),
		})
	}
	return items
}

func (c *Collector) priority(text string) string {
	switch {
	case c.high.Match(text):
		return PriorityHigh
	case c.medium.Match(text):
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func (c *Collector) itemDate(published string) string {
	if t, ok := parseFeedDate(published); ok {
		return t.UTC().Format("2006-01-02")
	}
	return c.now().UTC().Format("2006-01-02")
}

// cleanSummary strips markup and caps the result at SummaryMax runes.
func (c *Collector) cleanSummary(s string) string {
	if s == "" {
		return ""
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
		s = doc.Text()
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > c.cfg.SummaryMax {
		s = strings.TrimSpace(string([]rune(s)[:c.cfg.SummaryMax]))
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

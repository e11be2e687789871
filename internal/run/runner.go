package run

import (
	"context"
	"fmt"
	"time"

	"github.com/david/market-ledger/internal/health"
	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/models"
	"github.com/david/market-ledger/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

// Extractor turns one jurisdiction into opportunities. It never fails; a
// jurisdiction that cannot be read yields a stub result.
type Extractor interface {
	Extract(ctx context.Context, j ingest.JurisdictionConfig) ingest.Result
}

// NewsSource gathers construction-relevant news items.
type NewsSource interface {
	Collect(ctx context.Context) ([]models.NewsItem, error)
}

// Sink receives the finished document of a run.
type Sink interface {
	Publish(ctx context.Context, doc models.Document) error
}

// Report is the outcome of a single run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Document  models.Document
	Results   []ingest.Result
	NewsErr   error
}

// Stubbed returns the jurisdictions that fell back to the portal stub.
func (r *Report) Stubbed() []string {
	var codes []string
	for _, res := range r.Results {
		if res.Fallback {
			codes = append(codes, res.Jurisdiction)
		}
	}
	return codes
}

type Runner struct {
	registry    *ingest.Registry
	extractor   Extractor
	news        NewsSource
	scorer      *health.Scorer
	sinks       []Sink
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*Runner)

// WithNews enables the news collaborator. Without it the document carries no news.
func WithNews(src NewsSource) Option {
	return func(r *Runner) { r.news = src }
}

func WithScorer(s *health.Scorer) Option {
	return func(r *Runner) {
		if s != nil {
			r.scorer = s
		}
	}
}

// WithSinks adds destinations the document is published to, in order.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(registry *ingest.Registry, extractor Extractor, opts ...Option) *Runner {
	r := &Runner{
		registry:    registry,
		extractor:   extractor,
		scorer:      health.NewScorer(nil),
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run extracts the selected jurisdictions (all of them when codes is empty),
// scores the joined pipeline, and publishes the document to every sink.
// Only configuration errors, cancellation and sink failures are returned.
func (r *Runner) Run(ctx context.Context, codes []string) (*Report, error) {
	selected, err := r.registry.Select(codes)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Results:   make([]ingest.Result, len(selected)),
	}
	logger := r.logger.With(zap.String("run_id", rep.RunID))
	logger.Info("run started",
		zap.String("op", "run.Runner.Run"),
		zap.Int("jurisdictions", len(selected)))

	var news []models.NewsItem
	var side errgroup.Group
	if r.news != nil {
		side.Go(func() error {
			items, err := r.news.Collect(ctx)
			if err != nil {
				logger.Warn("news collection degraded", zap.Error(err))
				rep.NewsErr = err
			}
			news = items
			return nil
		})
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, j := range selected {
		i, j := i, j
		g.Go(func() error {
			res := r.extractor.Extract(ctx, j)
			fields := []zap.Field{
				zap.String("jurisdiction", j.Code),
				zap.String("strategy", res.Strategy),
				zap.Int("records", len(res.Opportunities)),
				zap.Duration("duration", res.Duration),
			}
			if res.Fallback {
				logger.Warn("jurisdiction stubbed", append(fields, zap.Error(res.Err))...)
			} else {
				logger.Info("jurisdiction extracted", fields...)
			}
			rep.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	_ = side.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", rep.RunID, err)
	}

	var opps []models.Opportunity
	jurisdictions := make([]string, 0, len(selected))
	for i, j := range selected {
		jurisdictions = append(jurisdictions, j.Code)
		opps = append(opps, rep.Results[i].Opportunities...)
	}

	rep.Document = report.Build(rep.StartedAt, jurisdictions, opps, news, r.scorer.Score(opps))

	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, rep.Document); err != nil {
			return rep, fmt.Errorf("publish run %s: %w", rep.RunID, err)
		}
	}

	rep.Duration = r.now().Sub(rep.StartedAt)
	logger.Info("run finished",
		zap.Int("opportunities", rep.Document.Summary.TotalOpportunities),
		zap.Int("news", len(rep.Document.News)),
		zap.Float64("overall_score", rep.Document.MarketHealth.OverallScore),
		zap.String("overall_status", rep.Document.MarketHealth.OverallStatus),
		zap.Strings("stubbed", rep.Stubbed()),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}

package health

import (
	"github.com/david/market-ledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Overall status bands.
const (
	StatusGrowth    = "growth"
	StatusStable    = "stable"
	StatusWatchlist = "watchlist"
	StatusDefensive = "defensive"
)

const (
	minScore = 0.0
	maxScore = 10.0
)

// Status bands an overall score: >=7.5 growth, >=6.0 stable, >=5.0 watchlist,
// else defensive.
func Status(score float64) string {
	switch {
	case score >= 7.5:
		return StatusGrowth
	case score >= 6.0:
		return StatusStable
	case score >= 5.0:
		return StatusWatchlist
	default:
		return StatusDefensive
	}
}

// Scorer computes the market health index for a run.
type Scorer struct {
	table     *Table
	baselines map[string]Reading
	logger    *zap.Logger
}

type Option func(*Scorer)

// WithBaseline replaces the baseline reading of an externally sourced metric.
// The pipeline metric is always derived from run data and cannot be overridden.
func WithBaseline(key string, score float64, trend string) Option {
	return func(s *Scorer) {
		s.baselines[key] = Reading{Score: score, Trend: trend}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScorer builds a scorer over table, or over the embedded table when nil.
func NewScorer(table *Table, opts ...Option) *Scorer {
	if table == nil {
		table = DefaultTable()
	}
	s := &Scorer{
		table:     table,
		baselines: make(map[string]Reading),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score is deterministic for a given opportunity list and baseline set.
func (s *Scorer) Score(opps []models.Opportunity) models.MarketHealth {
	var pipelineTotal int64
	for _, opp := range opps {
		if opp.CostLow != nil {
			pipelineTotal = models.AddAmount(pipelineTotal, *opp.CostLow)
		}
	}

	health := models.MarketHealth{Metrics: make(map[string]models.MetricResult, len(s.table.Metrics))}
	weighted, weights := decimal.Zero, decimal.Zero

	for _, m := range s.table.Metrics {
		reading := s.reading(m, pipelineTotal)
		health.Metrics[m.Key] = models.MetricResult{
			Score:  reading.Score,
			Trend:  reading.Trend,
			Action: m.Action(reading.Score),
		}
		w := decimal.NewFromFloat(m.Weight)
		weighted = weighted.Add(decimal.NewFromFloat(reading.Score).Mul(w))
		weights = weights.Add(w)
	}

	overall := 0.0
	if weights.IsPositive() {
		overall = weighted.Div(weights).Round(1).InexactFloat64()
	}
	if overall < minScore {
		overall = minScore
	}
	if overall > maxScore {
		overall = maxScore
	}
	health.OverallScore = overall
	health.OverallStatus = Status(overall)

	s.logger.Debug("market health scored",
		zap.String("op", "health.Scorer.Score"),
		zap.Int64("pipeline_total", pipelineTotal),
		zap.Float64("overall_score", overall),
		zap.String("overall_status", health.OverallStatus))
	return health
}

func (s *Scorer) reading(m Metric, pipelineTotal int64) Reading {
	if m.Key == PipelineMetric {
		return s.table.PipelineReading(pipelineTotal)
	}
	if r, ok := s.baselines[m.Key]; ok {
		return r
	}
	return m.Baseline
}

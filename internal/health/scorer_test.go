package health

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/david/market-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(amounts ...int64) []models.Opportunity {
	opps := make([]models.Opportunity, 0, len(amounts)+1)
	for _, a := range amounts {
		a := a
		opps = append(opps, models.Opportunity{CostLow: &a, CostHigh: &a})
	}
	// Unpriced records never move the pipeline total.
	opps = append(opps, models.Opportunity{CostDisplay: models.CostDisplayPortal})
	return opps
}

func TestEmbeddedTable(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	require.Len(t, table.Metrics, 6)

	var total float64
	for _, m := range table.Metrics {
		total += m.Weight
	}
	assert.InDelta(t, 0.60, total, 1e-9)

	m, ok := table.Metric(PipelineMetric)
	require.True(t, ok)
	assert.Equal(t, 7.5, m.Thresholds.High)
	assert.Equal(t, 5.0, m.Thresholds.Low)
}

func TestPipelineStaircase(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		total int64
		score float64
		trend string
	}{
		{150_000_000, 8.2, TrendUp},
		{100_000_000, 8.2, TrendUp},
		{99_999_999, 7.0, TrendStable},
		{50_000_000, 7.0, TrendStable},
		{49_999_999, 6.0, TrendStable},
		{20_000_000, 6.0, TrendStable},
		{19_999_999, 5.0, TrendDown},
		{1, 5.0, TrendDown},
		{0, 8.2, TrendUp},
	}

	for _, tt := range tests {
		r := table.PipelineReading(tt.total)
		assert.Equal(t, tt.score, r.Score, "total %d", tt.total)
		assert.Equal(t, tt.trend, r.Trend, "total %d", tt.total)
	}
}

func TestScoreBaseline(t *testing.T) {
	health := NewScorer(nil).Score(nil)

	assert.Equal(t, 7.0, health.OverallScore)
	assert.Equal(t, StatusStable, health.OverallStatus)
	require.Len(t, health.Metrics, 6)

	assert.Equal(t, models.MetricResult{Score: 8.2, Trend: TrendUp, Action: "Expand highway capacity"}, health.Metrics["dot_pipeline"])
	assert.Equal(t, models.MetricResult{Score: 6.5, Trend: TrendStable, Action: "Monitor trends"}, health.Metrics["housing_permits"])
	assert.Equal(t, models.MetricResult{Score: 6.1, Trend: TrendDown, Action: "Selective investment"}, health.Metrics["construction_spending"])
	assert.Equal(t, models.MetricResult{Score: 7.3, Trend: TrendUp, Action: "Geographic expansion"}, health.Metrics["migration"])
	assert.Equal(t, models.MetricResult{Score: 5.5, Trend: TrendDown, Action: "Hedge 6 months"}, health.Metrics["input_cost_stability"])
	assert.Equal(t, models.MetricResult{Score: 7.8, Trend: TrendStable, Action: "Major expansion"}, health.Metrics["infrastructure_funding"])
}

func TestScoreFollowsPipeline(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		name    string
		opps    []models.Opportunity
		overall float64
		action  string
	}{
		{"top tier", priced(60_000_000, 45_000_000), 7.0, "Expand highway capacity"},
		{"second tier", priced(50_000_000), 6.7, "Maintain position"},
		{"mid tier", priced(12_000_000, 8_000_000), 6.5, "Maintain position"},
		{"low tier", priced(750_000), 6.2, "Maintain position"},
		{"unpriced only", priced(), 7.0, "Expand highway capacity"},
		{"saturated total", priced(math.MaxInt64, math.MaxInt64), 7.0, "Expand highway capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := s.Score(tt.opps)
			assert.Equal(t, tt.overall, health.OverallScore)
			assert.Equal(t, StatusStable, health.OverallStatus)
			assert.Equal(t, tt.action, health.Metrics[PipelineMetric].Action)
		})
	}
}

func TestStatusBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{10, StatusGrowth},
		{7.5, StatusGrowth},
		{7.4, StatusStable},
		{6.0, StatusStable},
		{5.9, StatusWatchlist},
		{5.0, StatusWatchlist},
		{4.9, StatusDefensive},
		{0, StatusDefensive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.score), "score %.1f", tt.score)
	}
}

func TestScoreWithBaselineAndClamp(t *testing.T) {
	keys := []string{"housing_permits", "construction_spending", "migration", "input_cost_stability", "infrastructure_funding"}

	var high, low []Option
	for _, k := range keys {
		high = append(high, WithBaseline(k, 25, TrendUp))
		low = append(low, WithBaseline(k, -20, TrendDown))
	}

	health := NewScorer(nil, high...).Score(nil)
	assert.Equal(t, 10.0, health.OverallScore)
	assert.Equal(t, StatusGrowth, health.OverallStatus)
	assert.Equal(t, "Lock contracts", health.Metrics["input_cost_stability"].Action)

	health = NewScorer(nil, low...).Score(nil)
	assert.Equal(t, 0.0, health.OverallScore)
	assert.Equal(t, StatusDefensive, health.OverallStatus)
	assert.Equal(t, "Pass-through only", health.Metrics["input_cost_stability"].Action)

	// The pipeline metric ignores injected baselines.
	health = NewScorer(nil, WithBaseline(PipelineMetric, 1, TrendDown)).Score(nil)
	assert.Equal(t, 8.2, health.Metrics[PipelineMetric].Score)

	health = NewScorer(nil, WithBaseline("migration", 3.0, TrendDown)).Score(nil)
	assert.Equal(t, models.MetricResult{Score: 3.0, Trend: TrendDown, Action: "Market consolidation"}, health.Metrics["migration"])
}

const singleMetricTable = `
pipeline_tiers:
  - min_cost: 1
    score: 5.0
    trend: down
empty_pipeline: {score: 6.0, trend: stable}
metrics:
  - key: dot_pipeline
    weight: 1
    thresholds: {high: 7.5, low: 5.0}
    actions: {high: grow, medium: hold, low: retreat}
    baseline: {score: 6.0, trend: stable}
`

func TestScoreExactBoundaries(t *testing.T) {
	table, err := ParseTable([]byte(singleMetricTable))
	require.NoError(t, err)
	s := NewScorer(table)

	health := s.Score(priced(1_000))
	assert.Equal(t, 5.0, health.OverallScore)
	assert.Equal(t, StatusWatchlist, health.OverallStatus)
	assert.Equal(t, "hold", health.Metrics[PipelineMetric].Action)

	health = s.Score(nil)
	assert.Equal(t, 6.0, health.OverallScore)
	assert.Equal(t, StatusStable, health.OverallStatus)
}

func TestParseTableValidation(t *testing.T) {
	tests := map[string]string{
		"missing pipeline metric": `
pipeline_tiers: [{min_cost: 1, score: 5, trend: down}]
empty_pipeline: {score: 8, trend: up}
metrics:
  - key: migration
    weight: 0.1
    thresholds: {high: 7, low: 4}
    actions: {high: a, medium: b, low: c}
    baseline: {score: 7, trend: up}
`,
		"bad trend": `
pipeline_tiers: [{min_cost: 1, score: 5, trend: sideways}]
empty_pipeline: {score: 8, trend: up}
metrics:
  - key: dot_pipeline
    weight: 0.1
    thresholds: {high: 7, low: 4}
    actions: {high: a, medium: b, low: c}
    baseline: {score: 7, trend: up}
`,
		"inverted thresholds": `
pipeline_tiers: [{min_cost: 1, score: 5, trend: down}]
empty_pipeline: {score: 8, trend: up}
metrics:
  - key: dot_pipeline
    weight: 0.1
    thresholds: {high: 3, low: 4}
    actions: {high: a, medium: b, low: c}
    baseline: {score: 7, trend: up}
`,
		"ascending tiers": `
pipeline_tiers:
  - {min_cost: 1, score: 5, trend: down}
  - {min_cost: 100, score: 8, trend: up}
empty_pipeline: {score: 8, trend: up}
metrics:
  - key: dot_pipeline
    weight: 0.1
    thresholds: {high: 7, low: 4}
    actions: {high: a, medium: b, low: c}
    baseline: {score: 7, trend: up}
`,
		"zero weight": `
pipeline_tiers: [{min_cost: 1, score: 5, trend: down}]
empty_pipeline: {score: 8, trend: up}
metrics:
  - key: dot_pipeline
    weight: 0
    thresholds: {high: 7, low: 4}
    actions: {high: a, medium: b, low: c}
    baseline: {score: 7, trend: up}
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(singleMetricTable), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Metrics, 1)

	_, err = LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

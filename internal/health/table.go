package health

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed config/metrics.yaml
var metricsYAML []byte

// PipelineMetric is the only metric derived from run data.
const PipelineMetric = "dot_pipeline"

// Trends.
const (
	TrendUp     = "up"
	TrendStable = "stable"
	TrendDown   = "down"
)

type Thresholds struct {
	High float64 `yaml:"high" validate:"gtefield=Low,max=10"`
	Low  float64 `yaml:"low" validate:"min=0"`
}

type Actions struct {
	High   string `yaml:"high" validate:"required"`
	Medium string `yaml:"medium" validate:"required"`
	Low    string `yaml:"low" validate:"required"`
}

// Reading is a score with its direction of travel.
type Reading struct {
	Score float64 `yaml:"score" validate:"min=0,max=10"`
	Trend string  `yaml:"trend" validate:"oneof=up stable down"`
}

type Metric struct {
	Key        string     `yaml:"key" validate:"required"`
	Name       string     `yaml:"name"`
	Source     string     `yaml:"source"`
	Weight     float64    `yaml:"weight" validate:"gt=0,lte=1"`
	Thresholds Thresholds `yaml:"thresholds"`
	Actions    Actions    `yaml:"actions"`
	Baseline   Reading    `yaml:"baseline"`
}

// Action picks the metric's action tier for a score.
func (m Metric) Action(score float64) string {
	switch {
	case score >= m.Thresholds.High:
		return m.Actions.High
	case score >= m.Thresholds.Low:
		return m.Actions.Medium
	default:
		return m.Actions.Low
	}
}

// Tier is one step of the pipeline staircase; it applies when the summed
// cost_low is at least MinCost.
type Tier struct {
	MinCost int64 `yaml:"min_cost" validate:"gt=0"`
	Reading `yaml:",inline"`
}

// Table is the immutable metric configuration handed to a Scorer.
type Table struct {
	PipelineTiers []Tier   `yaml:"pipeline_tiers" validate:"required,min=1,dive"`
	EmptyPipeline Reading  `yaml:"empty_pipeline"`
	Metrics       []Metric `yaml:"metrics" validate:"required,min=1,dive"`
}

var validate = validator.New()

// DefaultTable returns the embedded metric table.
func DefaultTable() *Table {
	t, err := ParseTable(metricsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded metrics.yaml: %v", err))
	}
	return t
}

// LoadTable reads a metric table file, or the embedded one when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return ParseTable(metricsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics table %s: %w", path, err)
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode metrics table: %w", err)
	}
	if err := validate.Struct(&t); err != nil {
		return nil, fmt.Errorf("invalid metrics table: %w", err)
	}

	seen := make(map[string]bool, len(t.Metrics))
	for _, m := range t.Metrics {
		if seen[m.Key] {
			return nil, fmt.Errorf("invalid metrics table: duplicate metric %s", m.Key)
		}
		seen[m.Key] = true
	}
	if !seen[PipelineMetric] {
		return nil, fmt.Errorf("invalid metrics table: missing %s", PipelineMetric)
	}
	for i := 1; i < len(t.PipelineTiers); i++ {
		if t.PipelineTiers[i].MinCost >= t.PipelineTiers[i-1].MinCost {
			return nil, fmt.Errorf("invalid metrics table: pipeline tiers must be in descending min_cost order")
		}
	}
	return &t, nil
}

// Metric looks up a metric by key.
func (t *Table) Metric(key string) (Metric, bool) {
	for _, m := range t.Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// PipelineReading steps through the staircase for a summed cost_low.
// A total of zero (or less) has no signal and reads as EmptyPipeline.
func (t *Table) PipelineReading(total int64) Reading {
	if total <= 0 {
		return t.EmptyPipeline
	}
	for _, tier := range t.PipelineTiers {
		if total >= tier.MinCost {
			return tier.Reading
		}
	}
	return t.PipelineTiers[len(t.PipelineTiers)-1].Reading
}

package models

import (
	"encoding/json"
	"fmt"
)

// MetricResult is the scored state of a single market health metric.
type MetricResult struct {
	Score  float64 `json:"score"`
	Trend  string  `json:"trend"`
	Action string  `json:"action"`
}

// MarketHealth serializes as one flat object: each metric key maps to its
// MetricResult, next to overall_score and overall_status.
type MarketHealth struct {
	Metrics       map[string]MetricResult
	OverallScore  float64
	OverallStatus string
}

func (m MarketHealth) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Metrics)+2)
	for key, res := range m.Metrics {
		out[key] = res
	}
	out["overall_score"] = m.OverallScore
	out["overall_status"] = m.OverallStatus
	return json.Marshal(out)
}

func (m *MarketHealth) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Metrics = make(map[string]MetricResult, len(raw))
	for key, val := range raw {
		switch key {
		case "overall_score":
			if err := json.Unmarshal(val, &m.OverallScore); err != nil {
				return fmt.Errorf("overall_score: %w", err)
			}
		case "overall_status":
			if err := json.Unmarshal(val, &m.OverallStatus); err != nil {
				return fmt.Errorf("overall_status: %w", err)
			}
		default:
			var res MetricResult
			if err := json.Unmarshal(val, &res); err != nil {
				return fmt.Errorf("metric %s: %w", key, err)
			}
			m.Metrics[key] = res
		}
	}
	return nil
}

// CategoryCounts tallies records per category.
type CategoryCounts struct {
	DotLetting int `json:"dot_letting"`
	News       int `json:"news"`
	Funding    int `json:"funding"`
}

// Summary aggregates counts and totals across a run.
type Summary struct {
	TotalOpportunities int            `json:"total_opportunities"`
	TotalValueLow      int64          `json:"total_value_low"`
	TotalValueHigh     int64          `json:"total_value_high"`
	ByState            map[string]int `json:"by_state"`
	ByCategory         CategoryCounts `json:"by_category"`
}

// Document is the single output artifact of a run.
type Document struct {
	Generated    string        `json:"generated"`
	Summary      Summary       `json:"summary"`
	DotLettings  []Opportunity `json:"dot_lettings"`
	News         []NewsItem    `json:"news"`
	MarketHealth MarketHealth  `json:"market_health"`
}

package models

import "math"

// CostDisplayPortal is shown when no monetary value could be recovered.
const CostDisplayPortal = "See Portal"

// Opportunity is a single normalized bid/letting record.
type Opportunity struct {
	ID            string   `json:"id"`
	Jurisdiction  string   `json:"jurisdiction"`
	ProjectID     *string  `json:"project_id"`
	Description   string   `json:"description"`
	CostLow       *int64   `json:"cost_low"`
	CostHigh      *int64   `json:"cost_high"`
	CostDisplay   string   `json:"cost_display"`
	AdDate        *string  `json:"ad_date"`
	LetDate       *string  `json:"let_date"`
	ProjectType   *string  `json:"project_type"`
	Location      *string  `json:"location"`
	URL           string   `json:"url"`
	Source        string   `json:"source"`
	BusinessLines []string `json:"business_lines"`
}

// AddAmount adds two non-negative amounts, saturating at math.MaxInt64.
func AddAmount(total, v int64) int64 {
	if v > math.MaxInt64-total {
		return math.MaxInt64
	}
	return total + v
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Int64Ptr(v int64) *int64 {
	return &v
}

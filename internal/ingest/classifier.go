package ingest

import (
	"strings"
)

// Business lines, in vocabulary order.
const (
	LineHighway       = "highway"
	LineHotMixAsphalt = "hot_mix_asphalt"
	LineAggregates    = "aggregates"
	LineReadyMix      = "ready_mix"
	LineLiquidAsphalt = "liquid_asphalt"
)

var BusinessLines = []string{LineHighway, LineHotMixAsphalt, LineAggregates, LineReadyMix, LineLiquidAsphalt}

// KeywordTable maps a business line to the keywords that tag it.
type KeywordTable map[string][]string

// DefaultKeywordTable returns a fresh copy of the stock keyword lists.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		LineHighway:       {"highway", "road", "interstate", "route", "bridge", "DOT", "transportation"},
		LineHotMixAsphalt: {"asphalt", "paving", "resurfacing", "overlay", "milling", "HMA", "hot mix"},
		LineAggregates:    {"aggregate", "gravel", "sand", "stone", "quarry", "crushing"},
		LineReadyMix:      {"concrete", "ready-mix", "ready mix", "cement"},
		LineLiquidAsphalt: {"liquid asphalt", "bitumen", "emulsion", "asphalt binder"},
	}
}

// Merge returns a copy of t with the lines present in override replaced.
func (t KeywordTable) Merge(override KeywordTable) KeywordTable {
	out := make(KeywordTable, len(t))
	for line, kws := range t {
		out[line] = append([]string(nil), kws...)
	}
	for line, kws := range override {
		out[line] = append([]string(nil), kws...)
	}
	return out
}

// Classifier tags free text with business lines by keyword membership.
type Classifier struct {
	keywords map[string][]string
}

func NewClassifier(table KeywordTable) *Classifier {
	if len(table) == 0 {
		table = DefaultKeywordTable()
	}
	lowered := make(map[string][]string, len(table))
	for line, kws := range table {
		for _, kw := range kws {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				lowered[line] = append(lowered[line], kw)
			}
		}
	}
	return &Classifier{keywords: lowered}
}

// Classify never returns an empty set: text matching no keyword is highway work.
func (c *Classifier) Classify(text string) []string {
	lower := strings.ToLower(text)
	var lines []string
	for _, line := range BusinessLines {
		for _, kw := range c.keywords[line] {
			if strings.Contains(lower, kw) {
				lines = append(lines, line)
				break
			}
		}
	}
	if len(lines) == 0 {
		return []string{LineHighway}
	}
	return lines
}

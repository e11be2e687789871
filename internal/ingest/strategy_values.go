package ingest

import (
	"fmt"
	"regexp"
)

var currencyShaped = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})+(?:\.\d{2})?`)

// ValuesStrategy turns every plausible dollar figure in the text into a
// placeholder project. It carries no location, type or date.
type ValuesStrategy struct{}

func (ValuesStrategy) Name() string { return StrategyValues }

func (ValuesStrategy) Extract(content Content, j JurisdictionConfig) []RawProject {
	var projects []RawProject
	for _, m := range currencyShaped.FindAllString(content.Text, -1) {
		amount, ok := ParseAmount(m)
		if !ok || amount < j.Extraction.MinValue || amount > j.Extraction.MaxValue {
			continue
		}
		projects = append(projects, RawProject{
			Description: fmt.Sprintf("%s Project %d", j.Name, len(projects)+1),
			Cost:        m,
		})
	}
	return projects
}

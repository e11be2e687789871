package ingest

import (
	"regexp"
)

// BlocksStrategy splits text at each occurrence of the anchor label and reads
// the labeled fields inside every block. Blocks without a price are dropped.
type BlocksStrategy struct{}

func (BlocksStrategy) Name() string { return StrategyBlocks }

func (BlocksStrategy) Extract(content Content, j JurisdictionConfig) []RawProject {
	if content.Text == "" || j.Extraction.Anchor == "" {
		return nil
	}
	anchor := regexp.MustCompile(`(?i)\b` + labelPattern(j.Extraction.Anchor) + `[ \t]*:`)
	starts := anchor.FindAllStringIndex(content.Text, -1)
	if len(starts) == 0 {
		return nil
	}

	scanner := newLabelScanner(j.Extraction.Labels)
	var projects []RawProject
	for i, loc := range starts {
		end := len(content.Text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		block := content.Text[loc[0]:end]

		fields := make(map[string]string)
		for _, lv := range scanner.scan(block) {
			if _, seen := fields[lv.field]; !seen && lv.value != "" {
				fields[lv.field] = lv.value
			}
		}
		if !priced(fields[FieldCost]) {
			continue
		}
		projects = append(projects, rawFromFields(fields))
	}
	return projects
}

package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Strategy recovers raw projects from decoded content. Strategies never fail:
// finding nothing is reported as an empty result.
type Strategy interface {
	Name() string
	Extract(content Content, j JurisdictionConfig) []RawProject
}

// StrategyFactory maps strategy names (from jurisdictions.yaml) to implementations.
type StrategyFactory struct {
	strategies map[string]Strategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]Strategy),
	}
}

// DefaultStrategyFactory registers every built-in strategy.
func DefaultStrategyFactory() *StrategyFactory {
	f := NewStrategyFactory()
	f.Register(BlocksStrategy{})
	f.Register(PositionalStrategy{})
	f.Register(ValuesStrategy{})
	f.Register(TableStrategy{})
	return f
}

func (f *StrategyFactory) Register(strategy Strategy) {
	f.strategies[strategy.Name()] = strategy
}

func (f *StrategyFactory) Get(name string) (Strategy, error) {
	strategy, ok := f.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", name)
	}
	return strategy, nil
}

// labeledValue is one "Label: value" occurrence in running text.
type labeledValue struct {
	field string
	value string
}

// labelScanner finds every configured label followed by a colon. A value runs
// from the end of its label to the start of the next label; only its first
// non-empty line is kept.
type labelScanner struct {
	re     *regexp.Regexp
	fields map[string]string
}

func newLabelScanner(labels LabelTable) *labelScanner {
	fields := make(map[string]string)
	var all []string
	for field, names := range labels {
		for _, name := range names {
			key := strings.ToLower(normalizeSpace(name))
			if key == "" {
				continue
			}
			if _, dup := fields[key]; dup {
				continue
			}
			fields[key] = field
			all = append(all, key)
		}
	}
	if len(all) == 0 {
		return &labelScanner{fields: fields}
	}

	// Longest first so "project description" wins over "description".
	sort.Slice(all, func(i, j int) bool {
		if len(all[i]) != len(all[j]) {
			return len(all[i]) > len(all[j])
		}
		return all[i] < all[j]
	})
	alts := make([]string, len(all))
	for i, name := range all {
		alts[i] = labelPattern(name)
	}
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)[ \t]*:`)
	return &labelScanner{re: re, fields: fields}
}

func labelPattern(name string) string {
	parts := strings.Fields(name)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}

func (s *labelScanner) scan(text string) []labeledValue {
	if s.re == nil {
		return nil
	}
	matches := s.re.FindAllStringSubmatchIndex(text, -1)
	out := make([]labeledValue, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][2]
		}
		label := strings.ToLower(normalizeSpace(text[m[2]:m[3]]))
		field, ok := s.fields[label]
		if !ok {
			continue
		}
		out = append(out, labeledValue{field: field, value: firstLine(text[m[1]:end])})
	}
	return out
}

// firstLine returns the first non-empty line of s with whitespace collapsed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = normalizeSpace(line); line != "" {
			return strings.TrimSpace(strings.TrimLeft(line, ":-– "))
		}
	}
	return ""
}

// rawFromFields builds a project from the first value seen for each field.
func rawFromFields(fields map[string]string) RawProject {
	return RawProject{
		Location:      fields[FieldLocation],
		Description:   fields[FieldDescription],
		Cost:          fields[FieldCost],
		ProjectNumber: fields[FieldProjectNumber],
		ProjectType:   fields[FieldProjectType],
		AdDate:        fields[FieldAdDate],
		LetDate:       fields[FieldLetDate],
		District:      fields[FieldDistrict],
	}
}

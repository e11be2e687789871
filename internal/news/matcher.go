package news

import (
	"regexp"
	"strings"
	"unicode"
)

// matcher tests text against a keyword list.
type matcher struct {
	substrings []string
	acronyms   *regexp.Regexp
}

func newMatcher(keywords ...[]string) *matcher {
	m := &matcher{}
	var acronyms []string
	for _, list := range keywords {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if isAcronym(kw) {
				acronyms = append(acronyms, regexp.QuoteMeta(kw))
				continue
			}
			m.substrings = append(m.substrings, strings.ToLower(kw))
		}
	}
	if len(acronyms) > 0 {
		m.acronyms = regexp.MustCompile(`\b(?:` + strings.Join(acronyms, "|") + `)\b`)
	}
	return m
}

// isAcronym reports whether kw is two or more upper-case letters.
func isAcronym(kw string) bool {
	if len(kw) < 2 {
		return false
	}
	for _, r := range kw {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func (m *matcher) Match(text string) bool {
	if m.acronyms != nil && m.acronyms.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range m.substrings {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

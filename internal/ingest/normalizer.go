package ingest

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/david/market-ledger/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const idDescriptionPrefix = 50

var districtRef = regexp.MustCompile(`(?i)^(?:district|dist\.?|d)?\s*-?\s*0*(\d{1,2})$`)

// TruncateText cuts a string to maxLen runes, appending an ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen > 3 {
		return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
	}
	return string(runes[:maxLen])
}

// Normalizer assembles canonical opportunities for one jurisdiction.
// It is not safe for concurrent use.
type Normalizer struct {
	j          JurisdictionConfig
	classifier *Classifier
	policy     *bluemonday.Policy
	title      cases.Caser
}

func NewNormalizer(j JurisdictionConfig) *Normalizer {
	return &Normalizer{
		j:          j,
		classifier: NewClassifier(j.Keywords),
		policy:     bluemonday.StrictPolicy(),
		title:      cases.Title(language.English),
	}
}

// Normalize never fails: a field that cannot be coerced becomes null.
func (n *Normalizer) Normalize(raw RawProject) models.Opportunity {
	ext := n.j.Extraction

	description := n.clean(raw.Description)
	if description == "" {
		description = firstNonEmpty(n.clean(raw.ProjectType), n.clean(raw.Agency), n.j.Name+" Project")
	}
	description = TruncateText(description, ext.DescriptionMax)

	projectType := TruncateText(n.clean(raw.ProjectType), ext.ProjectTypeMax)
	projectNumber := n.clean(raw.ProjectNumber)

	opp := models.Opportunity{
		Jurisdiction:  n.j.Code,
		ProjectID:     models.StringPtr(projectNumber),
		Description:   description,
		CostDisplay:   models.CostDisplayPortal,
		ProjectType:   models.StringPtr(projectType),
		Location:      models.StringPtr(n.location(raw)),
		URL:           firstNonEmpty(strings.TrimSpace(raw.URL), n.j.BidURL),
		Source:        n.j.Name,
		BusinessLines: n.classifier.Classify(description + " " + projectType),
	}

	costKey := ""
	if low, high, ok := costBounds(raw.Cost); ok {
		opp.CostLow = models.Int64Ptr(low)
		opp.CostHigh = models.Int64Ptr(high)
		opp.CostDisplay = FormatAmountRange(low, high)
		costKey = strconv.FormatInt(low, 10)
	}
	if d, ok := parseDateValue(raw.AdDate, ext.DateLayout); ok {
		opp.AdDate = &d
	}
	if d, ok := parseDateValue(raw.LetDate, ext.DateLayout); ok {
		opp.LetDate = &d
	}

	prefix := []rune(description)
	if len(prefix) > idDescriptionPrefix {
		prefix = prefix[:idDescriptionPrefix]
	}
	opp.ID = HashID(fmt.Sprintf("%s-%s-%s", n.j.Code, firstNonEmpty(projectNumber, costKey), string(prefix)))
	return opp
}

// location title-cases the place name and canonicalizes district references.
// The district field is used when no location was found.
func (n *Normalizer) location(raw RawProject) string {
	loc := n.clean(raw.Location)
	if loc == "" {
		loc = n.clean(raw.District)
	}
	if loc == "" {
		return ""
	}
	if m := districtRef.FindStringSubmatch(loc); m != nil {
		num, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("District %d", num)
	}
	return n.title.String(loc)
}

// clean strips markup, repairs UTF-8 and collapses whitespace.
func (n *Normalizer) clean(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(n.policy.Sanitize(s))
	return normalizeSpace(sanitizeUTF8(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

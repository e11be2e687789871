package ingest

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	currencyCode = regexp.MustCompile(`(?i)usd`)
	amountNoise  = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "", "\n", "", "\r", "", "\u00a0", "")
)

// ParseAmount converts a free-text monetary string into whole currency units.
// Currency symbols, the USD code, thousands separators and whitespace are
// stripped; a fractional part is truncated. Any other residual fails the parse.
func ParseAmount(text string) (int64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	s = amountNoise.Replace(currencyCode.ReplaceAllString(s, ""))
	if s == "" || strings.ContainsAny(s, "eE") {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return wholeUnits(d)
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// wholeUnits truncates d to an int64. Negative amounts and amounts that do not
// fit in an int64 are rejected.
func wholeUnits(d decimal.Decimal) (int64, bool) {
	if d.IsNegative() {
		return 0, false
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxAmount) {
		return 0, false
	}
	return d.IntPart(), true
}

// CoerceAmount accepts the value shapes sources hand back for a cost cell:
// strings, integers, floats, json.Number and decimal.Decimal.
func CoerceAmount(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		return ParseAmount(x)
	case int:
		return nonNegative(int64(x))
	case int64:
		return nonNegative(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return wholeUnits(decimal.NewFromFloat(x))
	case json.Number:
		return ParseAmount(x.String())
	case decimal.Decimal:
		return wholeUnits(x)
	default:
		return 0, false
	}
}

func nonNegative(v int64) (int64, bool) {
	if v < 0 {
		return 0, false
	}
	return v, true
}

var (
	billion  = decimal.New(1, 9)
	million  = decimal.New(1, 6)
	thousand = decimal.New(1, 3)
)

// FormatAmount renders an amount with a unit-scaled suffix. The printed
// precision is truncated, never rounded, so the tier always matches the raw amount.
func FormatAmount(amount int64) string {
	d := decimal.New(amount, 0)
	switch {
	case d.GreaterThanOrEqual(billion):
		return "$" + d.Div(billion).Truncate(1).StringFixed(1) + "B"
	case d.GreaterThanOrEqual(million):
		return "$" + d.Div(million).Truncate(1).StringFixed(1) + "M"
	case d.GreaterThanOrEqual(thousand):
		return "$" + strconv.FormatInt(amount/1000, 10) + "K"
	default:
		return "$" + humanize.Comma(amount)
	}
}

// FormatAmountRange renders "{low} - {high}" when the bounds differ.
func FormatAmountRange(low, high int64) string {
	if low == high {
		return FormatAmount(low)
	}
	return FormatAmount(low) + " - " + FormatAmount(high)
}

var (
	amountToken    = regexp.MustCompile(`(?i)(\$)?\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?(?:\s*(billion|million|bil|mil|b|m)\b)?`)
	rangeSeparator = regexp.MustCompile(`(?i)^\s*(?:-|–|—|to)\s*$`)
)

// moneyToken is one currency-shaped figure found in free text.
type moneyToken struct {
	amount     int64
	start, end int
}

// moneyIn returns the currency-shaped figures in s, in order. A figure counts
// when it carries a dollar sign, thousands separators or a unit suffix; bare
// counts like "2 contracts" or "Days: 120" do not. A trailing "million"/"M" or
// "billion"/"B" scales the figure before truncation.
func moneyIn(s string) []moneyToken {
	var out []moneyToken
	for _, m := range amountToken.FindAllStringSubmatchIndex(s, -1) {
		dollar := m[2] >= 0
		digits := s[m[4]:m[5]]
		suffix := ""
		if m[8] >= 0 {
			suffix = strings.ToLower(s[m[8]:m[9]])
		}
		if !dollar && suffix == "" && !strings.Contains(digits, ",") {
			continue
		}

		number := strings.ReplaceAll(digits, ",", "")
		if m[6] >= 0 {
			number += s[m[6]:m[7]]
		}
		d, err := decimal.NewFromString(number)
		if err != nil {
			continue
		}
		switch suffix {
		case "billion", "bil", "b":
			d = d.Mul(billion)
		case "million", "mil", "m":
			d = d.Mul(million)
		}
		amount, ok := wholeUnits(d)
		if !ok {
			continue
		}
		out = append(out, moneyToken{amount: amount, start: m[0], end: m[1]})
	}
	return out
}

// priced reports whether a labeled cost value carries a usable amount.
func priced(s string) bool {
	_, _, ok := costBounds(s)
	return ok
}

// costBounds reads a cost value into low/high bounds. A string is a range only
// when two figures are joined by "-", an en dash or "to"
// ("$1,000,000 - $2,000,000"); the bounds are then ordered so low <= high.
// Otherwise the first figure is both bounds.
func costBounds(v interface{}) (low, high int64, ok bool) {
	s, isString := v.(string)
	if !isString {
		n, ok := CoerceAmount(v)
		return n, n, ok
	}
	if n, ok := ParseAmount(s); ok {
		return n, n, true
	}
	tokens := moneyIn(s)
	if len(tokens) == 0 {
		return 0, 0, false
	}
	for i := 0; i+1 < len(tokens); i++ {
		if rangeSeparator.MatchString(s[tokens[i].end:tokens[i+1].start]) {
			low, high = tokens[i].amount, tokens[i+1].amount
			if low > high {
				low, high = high, low
			}
			return low, high, true
		}
	}
	return tokens[0].amount, tokens[0].amount, true
}

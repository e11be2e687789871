package ingest

import (
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const isoDate = "2006-01-02"

// Serial day numbers accepted from spreadsheets: 1954-10-03 through 9999-12-31.
// Smaller numbers are more likely stray counts than dates.
const (
	minExcelSerial = 20000
	maxExcelSerial = 2958465
)

// epochMillisFloor separates epoch milliseconds (feature services) from serial
// days; maxEpochMillis is 9999-12-31T23:59:59.999Z.
const (
	epochMillisFloor = 1e11
	maxEpochMillis   = 253402300799999
)

// parseDateValue renders a date cell or labeled value as YYYY-MM-DD. Strings are
// read with the jurisdiction's single layout or as ISO dates, never as numbers;
// native numbers are spreadsheet serials or epoch milliseconds. Anything else,
// including a year past 9999, is not a date.
func parseDateValue(v interface{}, layout string) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case time.Time:
		if x.IsZero() {
			return "", false
		}
		return isoDay(x)
	case float64:
		return numericDate(x)
	case int:
		return numericDate(float64(x))
	case int64:
		return numericDate(float64(x))
	case string:
		return parseDateString(x, layout)
	default:
		return "", false
	}
}

func parseDateString(s, layout string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if layout == "" {
		layout = "1/2/2006"
	}
	if t, err := time.Parse(layout, s); err == nil {
		return t.Format(isoDate), true
	}
	if t, err := time.Parse(isoDate, s); err == nil {
		return t.Format(isoDate), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return isoDay(t.UTC())
	}
	return "", false
}

func numericDate(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return "", false
	}
	if f >= epochMillisFloor {
		if f > maxEpochMillis {
			return "", false
		}
		return isoDay(time.UnixMilli(int64(f)).UTC())
	}
	if f < minExcelSerial || f > maxExcelSerial {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return "", false
	}
	return isoDay(t)
}

func isoDay(t time.Time) (string, bool) {
	if t.Year() < 1 || t.Year() > 9999 {
		return "", false
	}
	return t.Format(isoDate), true
}

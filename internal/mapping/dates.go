package mapping

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order. Month-first layouts come before day-first ones, so an
// ambiguous 03/04/2024 reads as March 4 and 31/01/2024 falls through to January 31.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"02-01-2006",
	"2-1-2006",
	"2006/01/02",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
}

// excelEpoch is day zero of spreadsheet serial dates (1900 system, leap-year bug included).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses the date formats bank exports commonly use, plus spreadsheet serial numbers.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 100000 {
		return excelEpoch.Add(time.Duration(serial*24) * time.Hour), true
	}
	return time.Time{}, false
}

var dateFormatPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"YYYY-MM-DD", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
	{"DD/MM/YYYY", regexp.MustCompile(`^(1[3-9]|2\d|3[01])/\d{1,2}/\d{4}$`)},
	{"MM/DD/YYYY", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
	{"MM/DD/YY", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}$`)},
	{"MM-DD-YYYY", regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)},
	{"YYYY/MM/DD", regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`)},
}

// DetectDateFormat names the shape of a date string, or returns "" when it has none of the known shapes.
func DetectDateFormat(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range dateFormatPatterns {
		if p.re.MatchString(s) {
			return p.name
		}
	}
	return ""
}

package financial

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	nonNumeric    = regexp.MustCompile(`[^\d.\-]`)
	numericPrefix = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
	quarterRe     = regexp.MustCompile(`(?i)Q(\d)`)
	yearRe        = regexp.MustCompile(`\d{4}`)

	dayFirstSlash = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	yearFirstDash = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	dayFirstDash  = regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`)
)

// ParseNumber strips everything but digits, dots and minus signs and reads
// the leading number. "1,234.5 tỷ" is 1234.5; text without digits is not a
// number.
func ParseNumber(text string) (decimal.Decimal, bool) {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(text), "")
	match := numericPrefix.FindString(cleaned)
	if match == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(match, "."))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func nullNumber(text string) decimal.NullDecimal {
	d, ok := ParseNumber(text)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ExtractQuarter reads a quarter marker such as "Q3" or "q1/2024".
func ExtractQuarter(text string) (int, bool) {
	m := quarterRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	q, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return q, true
}

// ParseDate accepts RFC 3339, DD/MM/YYYY, YYYY-MM-DD and DD-MM-YYYY. Bare
// dates are returned at midnight UTC.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, true
	}
	if m := dayFirstSlash.FindStringSubmatch(text); m != nil {
		return civil(m[3], m[2], m[1])
	}
	if m := yearFirstDash.FindStringSubmatch(text); m != nil {
		return civil(m[1], m[2], m[3])
	}
	if m := dayFirstDash.FindStringSubmatch(text); m != nil {
		return civil(m[3], m[2], m[1])
	}
	return time.Time{}, false
}

func civil(year, month, day string) (time.Time, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

func extractYear(text string) (int, bool) {
	y, err := strconv.Atoi(yearRe.FindString(text))
	if err != nil {
		return 0, false
	}
	return y, true
}

package scraper

import (
	"regexp"
	"strings"
	"time"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizeSymbol strips every character outside ASCII letters and digits,
// underscores included, and upper-cases the rest.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(nonAlnum.ReplaceAllString(raw, ""))
}

// ParseRow converts one body row into a Record. The boolean is false when the
// row is malformed: fewer than two non-empty leading cells or a symbol that
// normalizes to fewer than the minimum characters.
func ParseRow(cells []string, now time.Time, h Heuristics) (Record, bool) {
	if len(cells) < 2 {
		return Record{}, false
	}
	first := strings.TrimSpace(cells[0])
	name := strings.TrimSpace(cells[1])
	if first == "" || name == "" {
		return Record{}, false
	}
	symbol := NormalizeSymbol(first)
	if len(symbol) < h.minSymbolLength() {
		return Record{}, false
	}
	reason := h.defaultReason()
	if len(cells) > 2 {
		if r := strings.TrimSpace(cells[2]); r != "" {
			reason = r
		}
	}
	captured := now
	return Record{
		Symbol:            symbol,
		Name:              name,
		Status:            StatusRestricted,
		Exchange:          ExchangeHNX,
		RestrictionReason: reason,
		RestrictionDate:   &captured,
		LastUpdated:       now,
		Confidence:        ConfidenceStructured,
	}, true
}

// parseTables runs the row parser over every body row of the located tables.
func parseTables(tables []Table, now time.Time, h Heuristics) (records []Record, rejected int) {
	for _, t := range tables {
		for i := range t.Rows {
			if isHeaderArtifact(t, i, h) {
				continue
			}
			rec, ok := ParseRow(t.Rows[i], now, h)
			if !ok {
				rejected++
				continue
			}
			records = append(records, rec)
		}
	}
	return records, rejected
}

package scraper

import (
	"time"
	"unicode"
	"unicode/utf8"
)

// ExtractFromText scans free text for ticker-shaped tokens and returns one
// heuristic Record per distinct match, in first-seen order.
func ExtractFromText(text string, now time.Time, h Heuristics) []Record {
	symbols := findTickers(text, h)
	if len(symbols) == 0 {
		return nil
	}
	records := make([]Record, 0, len(symbols))
	for _, symbol := range symbols {
		captured := now
		records = append(records, Record{
			Symbol:            symbol,
			Name:              h.fallbackName(symbol),
			Status:            StatusRestricted,
			Exchange:          ExchangeHNX,
			RestrictionReason: h.fallbackReason(),
			RestrictionDate:   &captured,
			LastUpdated:       now,
			Confidence:        ConfidenceHeuristic,
		})
	}
	return records
}

// findTickers returns the distinct pattern matches that are bounded by
// non-letters. Regexp word boundaries are ASCII only, so "KHO" in "KHOÁN"
// would otherwise match and "ACB" in "ACB2024" would not.
func findTickers(text string, h Heuristics) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, loc := range h.tickerPattern().FindAllStringIndex(text, -1) {
		if !letterBounded(text, loc[0], loc[1]) {
			continue
		}
		symbol := text[loc[0]:loc[1]]
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	return out
}

func letterBounded(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); unicode.IsLetter(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

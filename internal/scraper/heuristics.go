package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Default heuristic values for the HNX restricted-stock page.
const (
	DefaultTickerPattern      = `[A-Z]{3,4}`
	DefaultRestrictionReason  = "Restricted trading"
	DefaultFallbackReason     = "Trading restriction detected"
	DefaultFallbackNameFormat = "Company %s"
	DefaultMinSymbolLength    = 2
)

// DefaultKeywords are matched against lowercased header cells.
var DefaultKeywords = []string{"mã", "tên", "công ty", "symbol", "stock", "chứng khoán"}

// DefaultHeaderRowKeywords mark a leading body row as a repeated header.
var DefaultHeaderRowKeywords = []string{"mã", "tên", "symbol"}

// Heuristics holds the tunable matching rules of the pipeline.
type Heuristics struct {
	Keywords           []string
	HeaderRowKeywords  []string
	// TickerPattern finds candidate tickers in free text. A match is kept only
	// when the runes around it are not letters.
	TickerPattern      *regexp.Regexp
	DefaultReason      string
	FallbackReason     string
	FallbackNameFormat string
	MinSymbolLength    int
}

// DefaultHeuristics returns the stock configuration.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		Keywords:           append([]string(nil), DefaultKeywords...),
		HeaderRowKeywords:  append([]string(nil), DefaultHeaderRowKeywords...),
		TickerPattern:      regexp.MustCompile(DefaultTickerPattern),
		DefaultReason:      DefaultRestrictionReason,
		FallbackReason:     DefaultFallbackReason,
		FallbackNameFormat: DefaultFallbackNameFormat,
		MinSymbolLength:    DefaultMinSymbolLength,
	}
}

// NewHeuristics builds Heuristics from configuration values, falling back to
// defaults for anything left empty.
func NewHeuristics(keywords []string, tickerPattern, defaultReason, fallbackReason, fallbackNameFormat string) (Heuristics, error) {
	h := DefaultHeuristics()
	if len(keywords) > 0 {
		h.Keywords = append([]string(nil), keywords...)
	}
	if tickerPattern != "" {
		re, err := regexp.Compile(tickerPattern)
		if err != nil {
			return Heuristics{}, fmt.Errorf("compile ticker pattern: %w", err)
		}
		h.TickerPattern = re
	}
	if defaultReason != "" {
		h.DefaultReason = defaultReason
	}
	if fallbackReason != "" {
		h.FallbackReason = fallbackReason
	}
	if fallbackNameFormat != "" {
		if !strings.Contains(fallbackNameFormat, "%s") {
			return Heuristics{}, fmt.Errorf("fallback name format %q must contain %%s", fallbackNameFormat)
		}
		h.FallbackNameFormat = fallbackNameFormat
	}
	return h, nil
}

// ContainsKeyword reports whether text contains any configured keyword,
// compared case-insensitively in NFC form.
func (h Heuristics) ContainsKeyword(text string) bool {
	return containsAny(text, h.Keywords)
}

func (h Heuristics) containsHeaderKeyword(text string) bool {
	keywords := h.HeaderRowKeywords
	if len(keywords) == 0 {
		keywords = DefaultHeaderRowKeywords
	}
	return containsAny(text, keywords)
}

func containsAny(text string, keywords []string) bool {
	lower := foldText(text)
	if lower == "" {
		return false
	}
	for _, kw := range keywords {
		kw = foldText(kw)
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (h Heuristics) minSymbolLength() int {
	if h.MinSymbolLength > 0 {
		return h.MinSymbolLength
	}
	return DefaultMinSymbolLength
}

func (h Heuristics) tickerPattern() *regexp.Regexp {
	if h.TickerPattern != nil {
		return h.TickerPattern
	}
	return regexp.MustCompile(DefaultTickerPattern)
}

func (h Heuristics) defaultReason() string {
	if h.DefaultReason != "" {
		return h.DefaultReason
	}
	return DefaultRestrictionReason
}

func (h Heuristics) fallbackReason() string {
	if h.FallbackReason != "" {
		return h.FallbackReason
	}
	return DefaultFallbackReason
}

func (h Heuristics) fallbackName(symbol string) string {
	format := h.FallbackNameFormat
	if format == "" {
		format = DefaultFallbackNameFormat
	}
	return fmt.Sprintf(format, symbol)
}

// foldText lowercases s after composing it to NFC so that decomposed
// Vietnamese diacritics still match the keyword list.
func foldText(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

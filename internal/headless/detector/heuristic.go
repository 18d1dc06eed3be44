// Package detector decides when a static probe must be re-rendered in the
// headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// DefaultBodyLengthThreshold is the size under which script-heavy pages are
// treated as client-rendered shells.
const DefaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// RequiredMarkers promote the page when none of them appear in the body.
	RequiredMarkers [][]byte
}

var _ scraper.PromotionDetector = (*Heuristic)(nil)

// NewHeuristic creates a new detector. Each required marker is matched
// case-insensitively.
func NewHeuristic(threshold int, requiredMarkers ...string) *Heuristic {
	if threshold == 0 {
		threshold = DefaultBodyLengthThreshold
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	for _, m := range requiredMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			h.RequiredMarkers = append(h.RequiredMarkers, []byte(m))
		}
	}
	return h
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp scraper.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return h.missingRequired(body)
}

func (h *Heuristic) missingRequired(body []byte) bool {
	if len(h.RequiredMarkers) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range h.RequiredMarkers {
		if bytes.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			// Script tag never closes; count the rest.
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}

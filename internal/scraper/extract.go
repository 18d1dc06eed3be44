package scraper

import "time"

// Extract runs the table locator, the row parser and, when those yield
// nothing, the fallback text scan. It never fails: an unparsable document
// degrades to a text scan over the raw input.
func Extract(html string, now time.Time, h Heuristics) Result {
	doc, err := parseDocument(html)
	if err != nil {
		return finishFallback(Result{HTML: html}, ExtractFromText(html, now, h))
	}

	tables := TablesFromDocument(doc)
	located := LocateTables(tables, h)
	records, rejected := parseTables(located, now, h)

	res := Result{
		TablesScanned: len(tables),
		TablesMatched: len(located),
		Rejected:      rejected,
		HTML:          html,
	}
	if len(records) > 0 {
		res.Records = records
		res.Accepted = len(records)
		res.Outcome = OutcomeStructured
		return res
	}
	return finishFallback(res, ExtractFromText(visibleText(doc), now, h))
}

func finishFallback(res Result, records []Record) Result {
	if records == nil {
		records = []Record{}
	}
	res.Records = records
	res.Accepted = len(records)
	if len(records) == 0 {
		res.Outcome = OutcomeEmpty
		return res
	}
	res.Outcome = OutcomeFallback
	return res
}

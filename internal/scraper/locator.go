package scraper

import "strings"

// LocateTables returns the tables whose header looks like a stock listing,
// preserving document order.
func LocateTables(tables []Table, h Heuristics) []Table {
	var out []Table
	for _, t := range tables {
		if IsStockTable(t.Header, h) {
			out = append(out, t)
		}
	}
	return out
}

// IsStockTable reports whether any header cell contains a keyword.
func IsStockTable(header []string, h Heuristics) bool {
	for _, cell := range header {
		if h.ContainsKeyword(cell) {
			return true
		}
	}
	return false
}

// isHeaderArtifact reports whether the body row at index repeats the header.
func isHeaderArtifact(t Table, index int, h Heuristics) bool {
	row := t.Rows[index]
	if sameCells(row, t.Header) {
		return true
	}
	if index != 0 {
		return false
	}
	if t.HeaderInBody {
		return true
	}
	return h.containsHeaderKeyword(strings.Join(row, " "))
}

func sameCells(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if foldText(a[i]) != foldText(b[i]) {
			return false
		}
	}
	return true
}

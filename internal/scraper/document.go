package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// TablesFromDocument maps every <table> in doc, in document order.
func TablesFromDocument(doc *goquery.Document) []Table {
	var tables []Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		tables = append(tables, tableFromSelection(sel))
	})
	return tables
}

// Only direct children are walked so nested tables are mapped separately.
func tableFromSelection(sel *goquery.Selection) Table {
	var table Table
	head := sel.ChildrenFiltered("thead").First()
	if head.Length() > 0 {
		table.Header = cellTexts(head.ChildrenFiltered("tr").First().ChildrenFiltered("th, td"))
	}

	rows := sel.ChildrenFiltered("tbody").ChildrenFiltered("tr")
	if len(table.Header) == 0 && rows.Length() > 0 {
		table.Header = cellTexts(rows.First().ChildrenFiltered("th, td"))
		table.HeaderInBody = true
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		table.Rows = append(table.Rows, cellTexts(row.ChildrenFiltered("td")))
	})
	return table
}

func cellTexts(cells *goquery.Selection) []string {
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

// visibleText returns the document text without script, style and noscript
// content. Text nodes are joined with a space so adjacent cells never fuse
// into a single token.
func visibleText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style, noscript, template").Remove()
	var b strings.Builder
	collectText(clone, &b)
	return b.String()
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
			b.WriteByte(' ')
			return
		}
		collectText(child, b)
	})
}

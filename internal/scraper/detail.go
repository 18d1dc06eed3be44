package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	nameLabels   = []string{"tên công ty", "tên doanh nghiệp", "tên tổ chức", "company name"}
	priceLabels  = []string{"giá khớp", "giá hiện tại", "giá đóng cửa", "giá tham chiếu", "price"}
	volumeLabels = []string{"khối lượng", "volume"}
)

// ParseDetail fills a partial Record from a per-symbol detail page. Fields the
// page does not expose are left at their zero value.
func ParseDetail(html, symbol string, now time.Time) Record {
	rec := Record{
		Symbol:      NormalizeSymbol(symbol),
		Exchange:    ExchangeHNX,
		LastUpdated: now,
	}
	doc, err := parseDocument(html)
	if err != nil {
		return rec
	}

	doc.Find("tr, dl, li").Each(func(_ int, sel *goquery.Selection) {
		label, value := labelValue(sel)
		if label == "" || value == "" {
			return
		}
		switch {
		case rec.Name == "" && matchesLabel(label, nameLabels):
			rec.Name = value
		case !rec.CurrentPrice.Valid && matchesLabel(label, priceLabels):
			if d, ok := parseLocaleDecimal(value); ok {
				rec.CurrentPrice = decimal.NullDecimal{Decimal: d, Valid: true}
			}
		case rec.Volume == nil && matchesLabel(label, volumeLabels):
			if d, ok := parseLocaleDecimal(value); ok {
				v := d.IntPart()
				rec.Volume = &v
			}
		}
	})
	if rec.Name == "" {
		rec.Name = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return rec
}

func labelValue(sel *goquery.Selection) (string, string) {
	var cells *goquery.Selection
	switch goquery.NodeName(sel) {
	case "tr":
		cells = sel.ChildrenFiltered("th, td")
	case "dl":
		cells = sel.ChildrenFiltered("dt, dd")
	default:
		cells = sel.ChildrenFiltered("span, strong, b, label, div")
	}
	if cells.Length() < 2 {
		return "", ""
	}
	label := foldText(cells.Eq(0).Text())
	value := strings.TrimSpace(cells.Eq(1).Text())
	return strings.TrimSuffix(label, ":"), value
}

func matchesLabel(label string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(label, c) {
			return true
		}
	}
	return false
}

// parseLocaleDecimal reads numbers written with either '.' or ',' as the
// thousands separator. A single separator followed by one or two digits is
// taken as the decimal point.
func parseLocaleDecimal(raw string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "-" {
		return decimal.Decimal{}, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = normalizeSingleSeparator(s, ",")
	case lastDot >= 0:
		s = normalizeSingleSeparator(s, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func normalizeSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) == 1 {
		frac := s[strings.Index(s, sep)+1:]
		if len(frac) > 0 && len(frac) <= 2 {
			if _, err := strconv.Atoi(frac); err == nil {
				return strings.Replace(s, sep, ".", 1)
			}
		}
	}
	return strings.ReplaceAll(s, sep, "")
}

package financial

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// Default source URL templates. %s is the symbol.
const (
	VietStockURL = "https://finance.vietstock.vn/%s/financials.htm"
	CafeFURL     = "https://s.cafef.vn/bao-cao-tai-chinh/%s/IncSta/2024/0/0/0/ket-qua-kinh-doanh-cong-ty-co-phan.chn"
	FireAntURL   = "https://fireant.vn/company/%s/financials"
)

// Fetcher loads a page. The static colly fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Source is one independent provider of reports.
type Source interface {
	Name() string
	Reports(ctx context.Context, symbol string) ([]Report, error)
}

type pageSource struct {
	name    string
	urlTmpl string
	fetcher Fetcher
	clock   Clock
	parse   func(doc *goquery.Document, symbol, url string, now time.Time) []Report
}

func (s *pageSource) Name() string { return s.name }

func (s *pageSource) Reports(ctx context.Context, symbol string) ([]Report, error) {
	url := fmt.Sprintf(s.urlTmpl, symbol)
	resp, err := s.fetcher.Fetch(ctx, scraper.FetchRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return s.parse(doc, symbol, url, s.clock.Now()), nil
}

// NewVietStock reads year, quarter, revenue and profit columns from the
// VietStock financials table.
func NewVietStock(fetcher Fetcher, clock Clock, urlTmpl string) Source {
	if urlTmpl == "" {
		urlTmpl = VietStockURL
	}
	return &pageSource{name: "vietstock", urlTmpl: urlTmpl, fetcher: fetcher, clock: clock, parse: parseVietStock}
}

func parseVietStock(doc *goquery.Document, symbol, url string, now time.Time) []Report {
	var reports []Report
	doc.Find(".financialreport table tr").Each(func(_ int, row *goquery.Selection) {
		cells := rowCells(row)
		if len(cells) < 4 {
			return
		}
		year, ok := extractYear(cells[0])
		if !ok {
			return
		}
		r := Report{
			StockSymbol: symbol,
			ReportType:  TypeAnnual,
			Year:        year,
			Revenue:     nullNumber(cells[2]),
			Profit:      nullNumber(cells[3]),
			ReportURL:   url,
			PublishDate: now,
			Source:      "vietstock",
		}
		if q, ok := ExtractQuarter(cells[1]); ok {
			r.ReportType = TypeQuarterly
			r.Quarter = &q
		}
		reports = append(reports, r)
	})
	return reports
}

// NewCafeF reads the CafeF income statement. Rows carry no period, so each is
// reported as an annual report for the current year.
func NewCafeF(fetcher Fetcher, clock Clock, urlTmpl string) Source {
	if urlTmpl == "" {
		urlTmpl = CafeFURL
	}
	return &pageSource{name: "cafef", urlTmpl: urlTmpl, fetcher: fetcher, clock: clock, parse: parseCafeF}
}

func parseCafeF(doc *goquery.Document, symbol, url string, now time.Time) []Report {
	var reports []Report
	doc.Find("#tableContent table tr").Each(func(_ int, row *goquery.Selection) {
		cells := rowCells(row)
		if len(cells) < 3 || cells[0] == "" || strings.Contains(cells[0], "Chỉ tiêu") {
			return
		}
		reports = append(reports, Report{
			StockSymbol: symbol,
			ReportType:  TypeAnnual,
			Year:        now.Year(),
			Revenue:     nullNumber(cells[1]),
			Profit:      nullNumber(cells[2]),
			ReportURL:   url,
			PublishDate: now,
			Source:      "cafef",
		})
	})
	return reports
}

// NewFireAnt loads the FireAnt page. Its figures are rendered client-side,
// so no rows are ever found in the static document.
func NewFireAnt(fetcher Fetcher, clock Clock, urlTmpl string) Source {
	if urlTmpl == "" {
		urlTmpl = FireAntURL
	}
	return &pageSource{name: "fireant", urlTmpl: urlTmpl, fetcher: fetcher, clock: clock, parse: parseFireAnt}
}

func parseFireAnt(*goquery.Document, string, string, time.Time) []Report {
	return nil
}

func rowCells(row *goquery.Selection) []string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}

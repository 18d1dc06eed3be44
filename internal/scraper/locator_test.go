package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsStockTable(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	testCases := []struct {
		name   string
		header []string
		want   bool
	}{
		{name: "vietnamese code column", header: []string{"Mã", "Tên"}, want: true},
		{name: "upper case", header: []string{"MÃ CK", "GHI CHÚ"}, want: true},
		{name: "decomposed diacritics", header: []string{"Ma\u0303 CK"}, want: true},
		{name: "english symbol", header: []string{"No.", "Symbol"}, want: true},
		{name: "securities", header: []string{"STT", "Chứng khoán"}, want: true},
		{name: "unrelated", header: []string{"Date", "Value"}},
		{name: "empty header", header: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsStockTable(tc.header, h))
		})
	}
}

func TestLocateTablesPreservesOrder(t *testing.T) {
	t.Parallel()

	tables := []Table{
		{Header: []string{"Symbol"}, Rows: [][]string{{"A"}}},
		{Header: []string{"Date"}},
		{Header: []string{"Tên công ty"}, Rows: [][]string{{"B"}}},
	}
	located := LocateTables(tables, DefaultHeuristics())
	require.Len(t, located, 2)
	require.Equal(t, "Symbol", located[0].Header[0])
	require.Equal(t, "Tên công ty", located[1].Header[0])
}

func TestIsHeaderArtifact(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	testCases := []struct {
		name  string
		table Table
		index int
		want  bool
	}{
		{
			name:  "equal to header case-insensitively",
			table: Table{Header: []string{"Mã", "Tên"}, Rows: [][]string{{"ACB", "x"}, {"MÃ", "TÊN"}}},
			index: 1,
			want:  true,
		},
		{
			name:  "first row when header came from body",
			table: Table{Header: []string{"A", "B"}, Rows: [][]string{{"A", "B"}}, HeaderInBody: true},
			index: 0,
			want:  true,
		},
		{
			name:  "first row with header keyword",
			table: Table{Header: []string{"STT", "Mã CK"}, Rows: [][]string{{"#", "Symbol"}}},
			index: 0,
			want:  true,
		},
		{
			name:  "later row with keyword is data",
			table: Table{Header: []string{"STT", "Mã CK"}, Rows: [][]string{{"ACB", "x"}, {"SYM", "Symbol Corp"}}},
			index: 1,
		},
		{
			name:  "ordinary first row",
			table: Table{Header: []string{"Mã", "Tên"}, Rows: [][]string{{"ACB", "Ngân hàng ACB"}}},
			index: 0,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, isHeaderArtifact(tc.table, tc.index, h))
		})
	}
}

func TestNewHeuristics(t *testing.T) {
	t.Parallel()

	h, err := NewHeuristics(nil, "", "", "", "")
	require.NoError(t, err)
	require.Equal(t, DefaultKeywords, h.Keywords)
	require.Equal(t, DefaultRestrictionReason, h.DefaultReason)

	h, err = NewHeuristics([]string{"ticker"}, `\b[A-Z]{2}\b`, "Bị hạn chế", "Phát hiện hạn chế", "Doanh nghiệp %s")
	require.NoError(t, err)
	require.True(t, h.ContainsKeyword("TICKER"))
	require.False(t, h.ContainsKeyword("Mã"))
	require.Equal(t, "Doanh nghiệp AB", h.fallbackName("AB"))
	require.Equal(t, "Bị hạn chế", h.defaultReason())

	_, err = NewHeuristics(nil, `([`, "", "", "")
	require.Error(t, err)

	_, err = NewHeuristics(nil, "", "", "", "Company")
	require.Error(t, err)
}

func TestZeroHeuristicsUseDefaults(t *testing.T) {
	t.Parallel()

	var h Heuristics
	require.Equal(t, DefaultMinSymbolLength, h.minSymbolLength())
	require.Equal(t, DefaultFallbackReason, h.fallbackReason())
	require.Equal(t, "Company ACB", h.fallbackName("ACB"))
	require.NotNil(t, h.tickerPattern())
}

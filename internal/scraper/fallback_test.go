package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFromText(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	records := ExtractFromText("... ACB is restricted, also VND ...", fixedNow, h)

	require.Len(t, records, 2)
	require.Equal(t, "ACB", records[0].Symbol)
	require.Equal(t, "Company ACB", records[0].Name)
	require.Equal(t, "VND", records[1].Symbol)
	require.Equal(t, "Company VND", records[1].Name)
	for _, rec := range records {
		require.Equal(t, StatusRestricted, rec.Status)
		require.Equal(t, DefaultFallbackReason, rec.RestrictionReason)
		require.Equal(t, ConfidenceHeuristic, rec.Confidence)
		require.Equal(t, fixedNow, rec.LastUpdated)
	}
}

func TestExtractFromTextDistinctFirstSeen(t *testing.T) {
	t.Parallel()

	records := ExtractFromText("SHS PVX SHS ABCDE AB NVB PVX", fixedNow, DefaultHeuristics())

	symbols := make([]string, 0, len(records))
	for _, rec := range records {
		symbols = append(symbols, rec.Symbol)
	}
	require.Equal(t, []string{"SHS", "PVX", "NVB"}, symbols)
}

func TestExtractFromTextNoMatches(t *testing.T) {
	t.Parallel()

	require.Empty(t, ExtractFromText("không có mã nào", fixedNow, DefaultHeuristics()))
	require.Empty(t, ExtractFromText("", fixedNow, DefaultHeuristics()))
}

func TestExtractFromTextUnicodeBoundaries(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"accented heading", "CHỨNG KHOÁN", nil},
		{"accent before", "ĐHAB", nil},
		{"accent after", "QUYẾT ĐỊNH", nil},
		{"digits are boundaries", "ACB2024", []string{"ACB"}},
		{"lowercase neighbour", "xACB ACBbank", nil},
		{"punctuation", "(SHS), PVX.", []string{"SHS", "PVX"}},
		{"too long", "ABCDE", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, rec := range ExtractFromText(tc.text, fixedNow, h) {
				got = append(got, rec.Symbol)
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractVietnameseHeadingFallsBackToRealTickers(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>DANH SÁCH CHỨNG KHOÁN BỊ CẢNH BÁO</h1>` +
		`<p>QUYẾT ĐỊNH số 12 ACB2024</p></body></html>`
	res := Extract(html, fixedNow, DefaultHeuristics())

	symbols := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		symbols = append(symbols, rec.Symbol)
	}
	require.Equal(t, []string{"DANH", "ACB"}, symbols)
	require.Equal(t, OutcomeFallback, res.Outcome)
}

package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(""),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<div id="__next"></div>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := scraper.FetchResponse{
		StatusCode: 404,
		Body:       []byte("not found"),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_RequiredMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, "<TABLE", " <dl ", "")
	require.Len(t, h.RequiredMarkers, 2)

	withTable := scraper.FetchResponse{StatusCode: 200, Body: []byte(`<html><body><Table><tr><td>Giá</td></tr></Table></body></html>`)}
	require.False(t, h.ShouldPromote(withTable))

	withoutTable := scraper.FetchResponse{StatusCode: 200, Body: []byte(`<html><body><p>Đang tải dữ liệu...</p></body></html>`)}
	require.True(t, h.ShouldPromote(withoutTable))
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBodyLengthThreshold, NewHeuristic(0).BodyLengthThreshold)
}

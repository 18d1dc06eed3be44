package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

func sampleStocks() []stock.Stock {
	return []stock.Stock{
		{Symbol: "ACB", Name: "Ngân hàng Á Châu", Status: stock.StatusRestricted, Exchange: "HNX"},
		{Symbol: "ACV", Name: "Cảng hàng không Việt Nam", Status: stock.StatusNormal, Exchange: "UPCOM"},
		{Symbol: "VND", Name: "Chứng khoán VNDirect", Status: stock.StatusSuspended, Exchange: "HNX"},
	}
}

func TestSearchRanksExactSymbolFirst(t *testing.T) {
	t.Parallel()

	idx, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, sampleStocks()))

	got, err := idx.Search(ctx, "ACB", 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, "ACB", got[0])

	got, err = idx.Search(ctx, "ac", 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ACB", "ACV"}, got)

	got, err = idx.Search(ctx, "vndirect", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"VND"}, got)

	got, err = idx.Search(ctx, "ac", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = idx.Search(ctx, "  ", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIndexReplacesAndRemoves(t *testing.T) {
	t.Parallel()

	idx, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, sampleStocks()))
	require.NoError(t, idx.Index(ctx, sampleStocks()[:1]))

	n, err := idx.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(3), n, "re-indexing a symbol replaces its document")

	require.NoError(t, idx.Remove("VND"))
	got, err := idx.Search(ctx, "vnd", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOpenPersistsOnDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stocks.bleve")
	idx, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), sampleStocks()))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Search(context.Background(), "vnd", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"VND"}, got)
}

func TestSearchCanceledContext(t *testing.T) {
	t.Parallel()

	idx, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, idx.Index(ctx, sampleStocks()), context.Canceled)
}

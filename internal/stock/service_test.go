package stock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, opts ...stock.ServiceOption) (*stock.Service, *memory.StockStore) {
	t.Helper()
	store := memory.NewStockStore()
	svc, err := stock.NewService(store, fixedClock{now: fixedNow}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc, store
}

func record(symbol, name string) scraper.Record {
	return scraper.Record{
		Symbol:            symbol,
		Name:              name,
		Status:            scraper.StatusRestricted,
		Exchange:          "HNX",
		RestrictionReason: "Restricted trading",
		LastUpdated:       fixedNow,
	}
}

func TestBulkUpsertSkipsInvalidRecords(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	stored := svc.BulkUpsert(context.Background(), []scraper.Record{
		record("ACB", "Ngân hàng Á Châu"),
		record("TOOLONGSYMBOL", "Bad"),
		record("PVX", "Tổng công ty PVX"),
		record("PVX", "Tổng công ty PVX (dup)"),
	})
	require.Len(t, stored, 3)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Restricted)
	require.Equal(t, 2, stats.ByExchange["HNX"])

	pvx, err := svc.Get(context.Background(), "pvx")
	require.NoError(t, err)
	require.Equal(t, "Tổng công ty PVX (dup)", pvx.Name)
	require.Equal(t, fixedNow, pvx.CreatedAt)
}

func TestListValidatesAndClamps(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	svc.BulkUpsert(ctx, []scraper.Record{record("AAA", "A"), record("BBB", "B"), record("CCC", "C")})

	page, err := svc.List(ctx, 0, 0, "")
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, stock.DefaultListLimit, page.Limit)
	require.Len(t, page.Stocks, 3)

	page, err = svc.List(ctx, 1, 1000, "restricted")
	require.NoError(t, err)
	require.Equal(t, stock.MaxListLimit, page.Limit)

	page, err = svc.List(ctx, 2, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Stocks, 1)
	require.False(t, page.HasMore)

	page, err = svc.List(ctx, 1, 10, "normal")
	require.NoError(t, err)
	require.Empty(t, page.Stocks)

	_, err = svc.List(ctx, 1, 10, "bogus")
	require.ErrorIs(t, err, stock.ErrInvalidStatus)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	svc.BulkUpsert(ctx, []scraper.Record{record("ACB", "Ngân hàng Á Châu"), record("PVX", "Tổng công ty PVX")})

	_, err := svc.Search(ctx, " a ", 10)
	require.ErrorIs(t, err, stock.ErrQueryTooShort)

	got, err := svc.Search(ctx, "ac", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ACB", got[0].Symbol)

	got, err = svc.Search(ctx, "công ty", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "PVX", got[0].Symbol)
}

type fakeIndex struct {
	symbols []string
	err     error
	indexed []stock.Stock
}

func (f *fakeIndex) Index(_ context.Context, stocks []stock.Stock) error {
	f.indexed = append(f.indexed, stocks...)
	return nil
}

func (f *fakeIndex) Search(context.Context, string, int) ([]string, error) {
	return f.symbols, f.err
}

func TestSearchUsesIndexAndFallsBack(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{symbols: []string{"PVX", "GONE", "ACB"}}
	svc, _ := newService(t, stock.WithIndex(idx))
	ctx := context.Background()
	stored := svc.BulkUpsert(ctx, []scraper.Record{record("ACB", "Ngân hàng Á Châu"), record("PVX", "Tổng công ty PVX")})
	require.NoError(t, svc.Reindex(ctx, stored))
	require.Len(t, idx.indexed, 2)

	got, err := svc.Search(ctx, "anything", 10)
	require.NoError(t, err)
	require.Equal(t, "PVX", got[0].Symbol)
	require.Equal(t, "ACB", got[1].Symbol)
	require.Len(t, got, 2)

	idx.err = errors.New("index closed")
	got, err = svc.Search(ctx, "pvx", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "PVX", got[0].Symbol)
}

func TestGetUpdateDelete(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Get(ctx, "ACB")
	require.ErrorIs(t, err, stock.ErrNotFound)

	_, err = svc.Upsert(ctx, stock.Stock{Symbol: " acb ", Name: "Ngân hàng Á Châu", Status: stock.StatusNormal, Exchange: stock.ExchangeHNX})
	require.NoError(t, err)

	st, err := svc.UpdatePrice(ctx, "acb", stock.PriceUpdate{})
	require.NoError(t, err)
	require.Equal(t, fixedNow, st.LastUpdated)

	restricted, err := svc.Restricted(ctx)
	require.NoError(t, err)
	require.Empty(t, restricted)

	require.NoError(t, svc.Delete(ctx, "ACB"))
	require.ErrorIs(t, svc.Delete(ctx, "ACB"), stock.ErrNotFound)
	_, err = svc.UpdatePrice(ctx, "ACB", stock.PriceUpdate{})
	require.ErrorIs(t, err, stock.ErrNotFound)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Upsert(context.Background(), stock.Stock{Symbol: "ACB"})
	require.ErrorIs(t, err, stock.ErrInvalidStock)
}

// Package search keeps a full-text index of stock symbols and names.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

type document struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Exchange string `json:"exchange"`
}

// Index is a bleve-backed stock.Index. Document ids are symbols.
type Index struct {
	index  bleve.Index
	logger *zap.Logger
}

var _ stock.Index = (*Index)(nil)

// Open opens the index at path, creating it when absent. An empty path keeps
// the index in memory.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		logger.Info("search index created", zap.String("path", path))
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Store = false

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("symbol", text)
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("status", keyword)
	doc.AddFieldMappingsAt("exchange", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index adds or replaces stocks in one batch.
func (i *Index) Index(ctx context.Context, stocks []stock.Stock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := i.index.NewBatch()
	for _, st := range stocks {
		err := batch.Index(st.Symbol, document{
			Symbol:   st.Symbol,
			Name:     st.Name,
			Status:   string(st.Status),
			Exchange: st.Exchange,
		})
		if err != nil {
			return fmt.Errorf("batch %s: %w", st.Symbol, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	i.logger.Debug("search index updated", zap.Int("stocks", len(stocks)))
	return nil
}

// Remove drops a symbol from the index.
func (i *Index) Remove(symbol string) error {
	if err := i.index.Delete(symbol); err != nil {
		return fmt.Errorf("delete %s: %w", symbol, err)
	}
	return nil
}

// Search ranks exact symbol hits first, then symbol prefixes, then name
// matches and substrings.
func (i *Index) Search(ctx context.Context, q string, limit int) ([]string, error) {
	term := strings.ToLower(strings.TrimSpace(q))
	if term == "" {
		return []string{}, nil
	}
	req := bleve.NewSearchRequestOptions(buildQuery(q, term), limit, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	symbols := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		symbols = append(symbols, hit.ID)
	}
	return symbols, nil
}

func buildQuery(raw, term string) query.Query {
	exact := bleve.NewTermQuery(term)
	exact.SetField("symbol")
	exact.SetBoost(10)

	prefix := bleve.NewPrefixQuery(term)
	prefix.SetField("symbol")
	prefix.SetBoost(5)

	name := bleve.NewMatchQuery(raw)
	name.SetField("name")
	name.SetBoost(3)

	wildSymbol := bleve.NewWildcardQuery("*" + term + "*")
	wildSymbol.SetField("symbol")
	wildSymbol.SetBoost(2)

	wildName := bleve.NewWildcardQuery("*" + term + "*")
	wildName.SetField("name")
	wildName.SetBoost(1.5)

	return bleve.NewDisjunctionQuery(exact, prefix, name, wildSymbol, wildName)
}

// Count returns the number of indexed stocks.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close flushes and closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Package cache decorates a stock.Store with a Redis read-through cache for
// single-symbol lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
)

// DefaultTTL bounds how long a cached stock is served.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "hnx:stock:"

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// StockStore serves Get from Redis and keeps entries coherent on writes.
// Every other operation goes straight to the wrapped store.
type StockStore struct {
	stock.Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ stock.Store = (*StockStore)(nil)

// Dial connects to Redis and wraps next.
func Dial(ctx context.Context, cfg Config, next stock.Store, logger *zap.Logger) (*StockStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, next, cfg.TTL, logger)
}

// New wraps next with an existing client.
func New(rdb *redis.Client, next stock.Store, ttl time.Duration, logger *zap.Logger) (*StockStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if next == nil {
		return nil, fmt.Errorf("stock store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockStore{Store: next, rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Get returns the cached stock or loads it from the wrapped store. Cache
// errors are logged and never fail the lookup.
func (s *StockStore) Get(ctx context.Context, symbol string) (stock.Stock, error) {
	key := keyPrefix + symbol
	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var st stock.Stock
		if jsonErr := json.Unmarshal(data, &st); jsonErr == nil {
			metrics.ObserveCacheLookup(true)
			return st, nil
		}
		s.logger.Warn("cache.decode_failed", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("cache.get_failed", zap.String("key", key), zap.Error(err))
	}
	metrics.ObserveCacheLookup(false)

	st, err := s.Store.Get(ctx, symbol)
	if err != nil {
		return stock.Stock{}, err
	}
	s.put(ctx, st)
	return st, nil
}

// Upsert writes through and refreshes the cached entry.
func (s *StockStore) Upsert(ctx context.Context, st stock.Stock) (stock.Stock, error) {
	stored, err := s.Store.Upsert(ctx, st)
	if err != nil {
		return stock.Stock{}, err
	}
	s.put(ctx, stored)
	return stored, nil
}

// UpdatePrice writes through and refreshes the cached entry.
func (s *StockStore) UpdatePrice(ctx context.Context, symbol string, u stock.PriceUpdate) (stock.Stock, error) {
	stored, err := s.Store.UpdatePrice(ctx, symbol, u)
	if err != nil {
		return stock.Stock{}, err
	}
	s.put(ctx, stored)
	return stored, nil
}

// Delete removes the stock and its cached entry.
func (s *StockStore) Delete(ctx context.Context, symbol string) error {
	if err := s.Store.Delete(ctx, symbol); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, keyPrefix+symbol).Err(); err != nil {
		s.logger.Warn("cache.del_failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return nil
}

// Ping checks the Redis connection.
func (s *StockStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (s *StockStore) Close() error {
	return s.rdb.Close()
}

func (s *StockStore) put(ctx context.Context, st stock.Stock) {
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Warn("cache.encode_failed", zap.String("symbol", st.Symbol), zap.Error(err))
		return
	}
	if err := s.rdb.Set(ctx, keyPrefix+st.Symbol, data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache.set_failed", zap.String("symbol", st.Symbol), zap.Error(err))
	}
}

package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// MarketCacheStore implements interfaces.MarketCacheStore using SurrealDB.
// One row per (venue, market); Put overwrites the previous snapshot.
type MarketCacheStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewMarketCacheStore(db *surrealdb.DB, logger *common.Logger) *MarketCacheStore {
	return &MarketCacheStore{db: db, logger: logger}
}

func marketRecordID(venue models.Venue, marketID string) string {
	return string(venue) + "_" + marketID
}

func (s *MarketCacheStore) Get(ctx context.Context, venue models.Venue, marketID string) (*models.Market, error) {
	rid := surrealmodels.NewRecordID("markets_cache", marketRecordID(venue, marketID))
	market, err := surrealdb.Select[models.Market](ctx, s.db, rid)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select cached market: %w", err)
	}
	if market == nil || market.MarketID == "" {
		return nil, storage.ErrNotFound
	}
	return market, nil
}

func (s *MarketCacheStore) Put(ctx context.Context, market *models.Market) error {
	sql := "UPSERT $rid CONTENT $market"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("markets_cache", marketRecordID(market.Venue, market.MarketID)),
		"market": market,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to put cached market: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.MarketCacheStore = (*MarketCacheStore)(nil)

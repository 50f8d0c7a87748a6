package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// SnapshotStore implements interfaces.SnapshotStore using SurrealDB.
// Snapshots are append-only; retention is enforced by PruneBefore.
type SnapshotStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSnapshotStore(db *surrealdb.DB, logger *common.Logger) *SnapshotStore {
	return &SnapshotStore{db: db, logger: logger}
}

func (s *SnapshotStore) Append(ctx context.Context, snap *models.PortfolioSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	sql := "CREATE portfolio_snapshots CONTENT $snap"
	vars := map[string]any{"snap": snap}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) ListForUser(ctx context.Context, userID string, limit int) ([]*models.PortfolioSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT * FROM portfolio_snapshots WHERE user_id = $user_id ORDER BY timestamp DESC LIMIT $limit"
	vars := map[string]any{"user_id": userID, "limit": limit}

	results, err := surrealdb.Query[[]models.PortfolioSnapshot](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	rows := firstResult(results)
	var snaps []*models.PortfolioSnapshot
	for i := range rows {
		snaps = append(snaps, &rows[i])
	}
	return snaps, nil
}

func (s *SnapshotStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	sql := "DELETE portfolio_snapshots WHERE timestamp < $cutoff RETURN BEFORE"
	vars := map[string]any{"cutoff": cutoff}

	results, err := surrealdb.Query[[]models.PortfolioSnapshot](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return len(firstResult(results)), nil
}

// Compile-time check
var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)

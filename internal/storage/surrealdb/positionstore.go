package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// PositionStore implements interfaces.PositionStore using SurrealDB.
// Rows are keyed (user, venue, outcome) so venue syncs upsert in place.
type PositionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewPositionStore(db *surrealdb.DB, logger *common.Logger) *PositionStore {
	return &PositionStore{db: db, logger: logger}
}

func positionRecordID(userID string, venue models.Venue, outcomeID string) string {
	return userID + "_" + string(venue) + "_" + outcomeID
}

func (s *PositionStore) Upsert(ctx context.Context, pos *models.Position) error {
	id := positionRecordID(pos.UserID, pos.Venue, pos.OutcomeID)
	pos.ID = id

	sql := "UPSERT $rid CONTENT $pos"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("positions", id),
		"pos": pos,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

func (s *PositionStore) ListForUser(ctx context.Context, userID string) ([]*models.Position, error) {
	sql := "SELECT * FROM positions WHERE user_id = $user_id ORDER BY venue ASC, market_id ASC"
	vars := map[string]any{"user_id": userID}
	return s.queryPositions(ctx, sql, vars)
}

func (s *PositionStore) ListForUserVenue(ctx context.Context, userID string, venue models.Venue) ([]*models.Position, error) {
	sql := "SELECT * FROM positions WHERE user_id = $user_id AND venue = $venue ORDER BY market_id ASC"
	vars := map[string]any{"user_id": userID, "venue": venue}
	return s.queryPositions(ctx, sql, vars)
}

func (s *PositionStore) Delete(ctx context.Context, userID string, venue models.Venue, outcomeID string) error {
	rid := surrealmodels.NewRecordID("positions", positionRecordID(userID, venue, outcomeID))
	if _, err := surrealdb.Delete[models.Position](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

func (s *PositionStore) queryPositions(ctx context.Context, sql string, vars map[string]any) ([]*models.Position, error) {
	results, err := surrealdb.Query[[]models.Position](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}

	rows := firstResult(results)
	var positions []*models.Position
	for i := range rows {
		positions = append(positions, &rows[i])
	}
	return positions, nil
}

// Compile-time check
var _ interfaces.PositionStore = (*PositionStore)(nil)

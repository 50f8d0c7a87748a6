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

// TriggerStore implements interfaces.TriggerStore using SurrealDB. One row
// per (user, venue, outcome) holds both trigger history and cooldown state.
type TriggerStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewTriggerStore(db *surrealdb.DB, logger *common.Logger) *TriggerStore {
	return &TriggerStore{db: db, logger: logger}
}

func triggerRecordID(userID string, venue models.Venue, outcomeID string) string {
	return userID + "_" + string(venue) + "_" + outcomeID
}

func (s *TriggerStore) Get(ctx context.Context, userID string, venue models.Venue, outcomeID string) (*models.StopLossTrigger, error) {
	rid := surrealmodels.NewRecordID("stop_loss_triggers", triggerRecordID(userID, venue, outcomeID))
	trigger, err := surrealdb.Select[models.StopLossTrigger](ctx, s.db, rid)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select stop-loss trigger: %w", err)
	}
	if trigger == nil || trigger.OutcomeID == "" {
		return nil, storage.ErrNotFound
	}
	return trigger, nil
}

func (s *TriggerStore) Upsert(ctx context.Context, trigger *models.StopLossTrigger) error {
	sql := "UPSERT $rid CONTENT $trigger"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("stop_loss_triggers", triggerRecordID(trigger.UserID, trigger.Venue, trigger.OutcomeID)),
		"trigger": trigger,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert stop-loss trigger: %w", err)
	}
	return nil
}

func (s *TriggerStore) ListForUser(ctx context.Context, userID string) ([]*models.StopLossTrigger, error) {
	sql := "SELECT * FROM stop_loss_triggers WHERE user_id = $user_id ORDER BY triggered_at DESC"
	vars := map[string]any{"user_id": userID}

	results, err := surrealdb.Query[[]models.StopLossTrigger](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list stop-loss triggers: %w", err)
	}

	rows := firstResult(results)
	var triggers []*models.StopLossTrigger
	for i := range rows {
		triggers = append(triggers, &rows[i])
	}
	return triggers, nil
}

// Compile-time check
var _ interfaces.TriggerStore = (*TriggerStore)(nil)

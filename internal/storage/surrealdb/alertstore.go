package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// AlertStore implements interfaces.AlertStore using SurrealDB.
type AlertStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAlertStore(db *surrealdb.DB, logger *common.Logger) *AlertStore {
	return &AlertStore{db: db, logger: logger}
}

func (s *AlertStore) Create(ctx context.Context, alert *models.Alert) error {
	if err := alert.Condition.Validate(); err != nil {
		return fmt.Errorf("invalid alert condition: %w", err)
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()[:8]
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	sql := "UPSERT $rid CONTENT $alert"
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("alerts", alert.ID),
		"alert": alert,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *AlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := surrealdb.Select[models.Alert](ctx, s.db, surrealmodels.NewRecordID("alerts", id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select alert: %w", err)
	}
	if alert == nil || alert.ID == "" {
		return nil, storage.ErrNotFound
	}
	return alert, nil
}

func (s *AlertStore) ListActive(ctx context.Context) ([]*models.Alert, error) {
	sql := "SELECT * FROM alerts WHERE enabled = true AND triggered = false ORDER BY created_at ASC"
	return s.queryAlerts(ctx, sql, nil)
}

func (s *AlertStore) ListForUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	sql := "SELECT * FROM alerts WHERE user_id = $user_id ORDER BY created_at ASC"
	vars := map[string]any{"user_id": userID}
	return s.queryAlerts(ctx, sql, vars)
}

func (s *AlertStore) MarkTriggered(ctx context.Context, id string) error {
	sql := "UPDATE $rid SET triggered = true"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("alerts", id)}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return nil
}

func (s *AlertStore) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Delete[models.Alert](ctx, s.db, surrealmodels.NewRecordID("alerts", id))
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}

func (s *AlertStore) queryAlerts(ctx context.Context, sql string, vars map[string]any) ([]*models.Alert, error) {
	results, err := surrealdb.Query[[]models.Alert](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	rows := firstResult(results)
	var alerts []*models.Alert
	for i := range rows {
		alerts = append(alerts, &rows[i])
	}
	return alerts, nil
}

// Compile-time check
var _ interfaces.AlertStore = (*AlertStore)(nil)

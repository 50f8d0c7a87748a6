package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// CredentialStore implements interfaces.CredentialStore using SurrealDB.
// One row per (user, venue).
type CredentialStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewCredentialStore(db *surrealdb.DB, logger *common.Logger) *CredentialStore {
	return &CredentialStore{db: db, logger: logger}
}

func credentialRecordID(userID string, venue models.Venue) string {
	return userID + "_" + string(venue)
}

func (s *CredentialStore) ListEnabledUsers(ctx context.Context) ([]string, error) {
	sql := "SELECT user_id FROM trading_credentials WHERE enabled = true GROUP BY user_id"

	type userRow struct {
		UserID string `json:"user_id"`
	}

	results, err := surrealdb.Query[[]userRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled credential users: %w", err)
	}

	var ids []string
	for _, row := range firstResult(results) {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

func (s *CredentialStore) ListForUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	sql := "SELECT * FROM trading_credentials WHERE user_id = $user_id ORDER BY venue ASC"
	vars := map[string]any{"user_id": userID}

	results, err := surrealdb.Query[[]models.Credential](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	rows := firstResult(results)
	var creds []*models.Credential
	for i := range rows {
		creds = append(creds, &rows[i])
	}
	return creds, nil
}

func (s *CredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	sql := "UPSERT $rid CONTENT $cred"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("trading_credentials", credentialRecordID(cred.UserID, cred.Venue)),
		"cred": cred,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) MarkSuccess(ctx context.Context, userID string, venue models.Venue, at time.Time) error {
	sql := "UPDATE $rid SET last_success = $at, last_error = ''"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("trading_credentials", credentialRecordID(userID, venue)),
		"at":  at,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark credential success: %w", err)
	}
	return nil
}

func (s *CredentialStore) MarkFailure(ctx context.Context, userID string, venue models.Venue, at time.Time, reason string) error {
	sql := "UPDATE $rid SET last_failure = $at, last_error = $reason"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("trading_credentials", credentialRecordID(userID, venue)),
		"at":     at,
		"reason": reason,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark credential failure: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.CredentialStore = (*CredentialStore)(nil)

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

// SessionStore implements interfaces.SessionStore using SurrealDB.
type SessionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSessionStore(db *surrealdb.DB, logger *common.Logger) *SessionStore {
	return &SessionStore{db: db, logger: logger}
}

func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()[:8]
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = time.Now().UTC()
	}

	sql := "UPSERT $rid CONTENT $session"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("sessions", session.ID),
		"session": session,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) LatestForUser(ctx context.Context, userID string) (*models.Session, error) {
	sql := "SELECT * FROM sessions WHERE user_id = $user_id ORDER BY last_activity DESC LIMIT 1"
	vars := map[string]any{"user_id": userID}

	results, err := surrealdb.Query[[]models.Session](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest session: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return &rows[0], nil
}

// Compile-time check
var _ interfaces.SessionStore = (*SessionStore)(nil)

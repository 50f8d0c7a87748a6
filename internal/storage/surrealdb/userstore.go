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

// UserStore implements interfaces.UserStore using SurrealDB.
type UserStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewUserStore(db *surrealdb.DB, logger *common.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := surrealdb.Select[models.User](ctx, s.db, surrealmodels.NewRecordID("users", userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	if user == nil || user.ID == "" {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByPlatformID(ctx context.Context, platform models.Channel, platformUserID string) (*models.User, error) {
	sql := "SELECT * FROM users WHERE platform = $platform AND platform_user_id = $platform_user_id LIMIT 1"
	vars := map[string]any{
		"platform":         platform,
		"platform_user_id": platformUserID,
	}

	results, err := surrealdb.Query[[]models.User](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by platform id: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return &rows[0], nil
}

func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()[:8]
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	sql := "UPSERT $rid CONTENT $user"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("users", user.ID),
		"user": user,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	sql := "SELECT * FROM users ORDER BY created_at ASC"

	results, err := surrealdb.Query[[]models.User](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	rows := firstResult(results)
	var users []*models.User
	for i := range rows {
		users = append(users, &rows[i])
	}
	return users, nil
}

// Compile-time check
var _ interfaces.UserStore = (*UserStore)(nil)

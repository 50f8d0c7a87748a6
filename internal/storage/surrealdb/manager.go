// Package surrealdb implements the Vigil stores on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	userStore       *UserStore
	sessionStore    *SessionStore
	credentialStore *CredentialStore
	alertStore      *AlertStore
	positionStore   *PositionStore
	snapshotStore   *SnapshotStore
	marketCache     *MarketCacheStore
	indexStore      *IndexStore
	cronStore       *CronStore
	triggerStore    *TriggerStore
}

// tables lists every table the manager defines at startup. SurrealDB v3
// errors on querying non-existent tables.
var tables = []string{
	"users", "sessions", "trading_credentials", "alerts", "positions",
	"portfolio_snapshots", "markets_cache", "market_index",
	"market_index_embeddings", "cron_jobs", "stop_loss_triggers",
}

// NewManager connects to SurrealDB and initializes all stores.
func NewManager(logger *common.Logger, cfg *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(cfg.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Storage.Username,
		"pass": cfg.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Storage.Namespace, cfg.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := NewManagerWithDB(db, logger)

	logger.Info().
		Str("address", cfg.Storage.Address).
		Str("namespace", cfg.Storage.Namespace).
		Str("database", cfg.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// NewManagerWithDB wraps an already connected database (tests).
func NewManagerWithDB(db *surrealdb.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:              db,
		logger:          logger,
		userStore:       NewUserStore(db, logger),
		sessionStore:    NewSessionStore(db, logger),
		credentialStore: NewCredentialStore(db, logger),
		alertStore:      NewAlertStore(db, logger),
		positionStore:   NewPositionStore(db, logger),
		snapshotStore:   NewSnapshotStore(db, logger),
		marketCache:     NewMarketCacheStore(db, logger),
		indexStore:      NewIndexStore(db, logger),
		cronStore:       NewCronStore(db, logger),
		triggerStore:    NewTriggerStore(db, logger),
	}
}

func (m *Manager) UserStore() interfaces.UserStore               { return m.userStore }
func (m *Manager) SessionStore() interfaces.SessionStore         { return m.sessionStore }
func (m *Manager) CredentialStore() interfaces.CredentialStore   { return m.credentialStore }
func (m *Manager) AlertStore() interfaces.AlertStore             { return m.alertStore }
func (m *Manager) PositionStore() interfaces.PositionStore       { return m.positionStore }
func (m *Manager) SnapshotStore() interfaces.SnapshotStore       { return m.snapshotStore }
func (m *Manager) MarketCacheStore() interfaces.MarketCacheStore { return m.marketCache }
func (m *Manager) IndexStore() interfaces.IndexStore             { return m.indexStore }
func (m *Manager) CronStore() interfaces.CronStore               { return m.cronStore }
func (m *Manager) TriggerStore() interfaces.TriggerStore         { return m.triggerStore }

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)

// firstResult unwraps a query result to the first statement's rows, or
// nil when the query matched nothing.
func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}

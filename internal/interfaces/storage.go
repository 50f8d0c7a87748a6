// Package interfaces defines the capability contracts between Vigil's
// storage, clients, and services.
package interfaces

import (
	"context"
	"time"

	"github.com/drewfallon/vigil/internal/models"
)

// StorageManager coordinates all persisted tables. Each accessor returns a
// narrow capability; services hold only the stores they need.
type StorageManager interface {
	UserStore() UserStore
	SessionStore() SessionStore
	CredentialStore() CredentialStore
	AlertStore() AlertStore
	PositionStore() PositionStore
	SnapshotStore() SnapshotStore
	MarketCacheStore() MarketCacheStore
	IndexStore() IndexStore
	CronStore() CronStore
	TriggerStore() TriggerStore

	Close() error
}

// UserStore manages user accounts. (platform, platform_user_id) is unique.
type UserStore interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	GetByPlatformID(ctx context.Context, platform models.Channel, platformUserID string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	List(ctx context.Context) ([]*models.User, error)
}

// SessionStore reads and records chat sessions. LatestForUser drives
// notification recipient resolution.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	LatestForUser(ctx context.Context, userID string) (*models.Session, error)
}

// CredentialStore manages venue credentials per user.
type CredentialStore interface {
	ListEnabledUsers(ctx context.Context) ([]string, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
	MarkSuccess(ctx context.Context, userID string, venue models.Venue, at time.Time) error
	MarkFailure(ctx context.Context, userID string, venue models.Venue, at time.Time, reason string) error
}

// AlertStore manages alert rules.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	ListActive(ctx context.Context) ([]*models.Alert, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Alert, error)
	MarkTriggered(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// PositionStore manages normalized positions keyed (user, venue, outcome).
type PositionStore interface {
	Upsert(ctx context.Context, pos *models.Position) error
	ListForUser(ctx context.Context, userID string) ([]*models.Position, error)
	ListForUserVenue(ctx context.Context, userID string, venue models.Venue) ([]*models.Position, error)
	Delete(ctx context.Context, userID string, venue models.Venue, outcomeID string) error
}

// SnapshotStore appends and prunes portfolio snapshots.
type SnapshotStore interface {
	Append(ctx context.Context, snap *models.PortfolioSnapshot) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.PortfolioSnapshot, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MarketCacheStore is the rolling market snapshot cache consulted for
// windowed alert evaluation. Get returns the snapshot regardless of age;
// callers judge staleness via FetchedAt.
type MarketCacheStore interface {
	Get(ctx context.Context, venue models.Venue, marketID string) (*models.Market, error)
	Put(ctx context.Context, market *models.Market) error
}

// IndexQueryOptions filters index candidate retrieval.
type IndexQueryOptions struct {
	Venue models.Venue // empty = all venues
	Text  string       // lexical prefilter, ignored when len < 3
	Limit int
}

// IndexStore manages the market catalog and its embedding cache.
type IndexStore interface {
	UpsertEntry(ctx context.Context, entry *models.IndexEntry) error
	GetEntry(ctx context.Context, venue models.Venue, marketID string) (*models.IndexEntry, error)
	GetHash(ctx context.Context, venue models.Venue, marketID string) (string, error)
	Query(ctx context.Context, opts IndexQueryOptions) ([]*models.IndexEntry, error)
	PruneStale(ctx context.Context, venue models.Venue, cutoff time.Time) (int, error)

	GetEmbedding(ctx context.Context, venue models.Venue, marketID string) (*models.Embedding, error)
	PutEmbedding(ctx context.Context, emb *models.Embedding) error
}

// CronStore persists scheduled jobs.
type CronStore interface {
	List(ctx context.Context) ([]*models.CronJob, error)
	Get(ctx context.Context, id string) (*models.CronJob, error)
	Upsert(ctx context.Context, job *models.CronJob) error
	Delete(ctx context.Context, id string) error
}

// TriggerStore persists stop-loss trigger rows keyed (user, venue, outcome).
type TriggerStore interface {
	Get(ctx context.Context, userID string, venue models.Venue, outcomeID string) (*models.StopLossTrigger, error)
	Upsert(ctx context.Context, trigger *models.StopLossTrigger) error
	ListForUser(ctx context.Context, userID string) ([]*models.StopLossTrigger, error)
}

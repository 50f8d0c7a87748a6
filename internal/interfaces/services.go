package interfaces

import (
	"context"

	"github.com/drewfallon/vigil/internal/models"
)

// AlertService evaluates alert rules against market snapshots.
type AlertService interface {
	// ScanAll evaluates every active alert. Per-alert errors are logged and
	// do not abort the scan.
	ScanAll(ctx context.Context) error
	// ScanOne evaluates a single alert by id.
	ScanOne(ctx context.Context, alertID string) error
	// CheckMarket evaluates all active alerts bound to one market.
	CheckMarket(ctx context.Context, venue models.Venue, marketID string) error
}

// PortfolioService fans out to venues and reconciles positions.
type PortfolioService interface {
	// SyncAll syncs every user with enabled credentials, then prunes old
	// snapshots.
	SyncAll(ctx context.Context) error
	// SyncUser syncs a single user's venues and appends a snapshot.
	SyncUser(ctx context.Context, userID string) error
}

// StopLossService scans positions against user stop-loss thresholds.
type StopLossService interface {
	ScanAll(ctx context.Context) error
	ScanUser(ctx context.Context, userID string) error
}

// IndexSyncResult reports per-venue ingestion counts.
type IndexSyncResult struct {
	Upserted map[models.Venue]int
	Pruned   int
}

// IndexSyncOptions select venues and filters for an index sync run.
type IndexSyncOptions struct {
	Venues           []models.Venue
	Statuses         []string
	LimitPerPlatform int
	ExcludeSports    bool
	ExcludeResolved  bool
	MinLiquidity     float64
	MinVolume        float64
	MinOpenInterest  float64
	MinPredictions   int
	Prune            bool
}

// IndexSearchOptions configure hybrid search.
type IndexSearchOptions struct {
	Venue         models.Venue // empty = all
	Limit         int          // default 10
	MaxCandidates int          // default 1500
	MinScore      float64
	VenueWeights  map[models.Venue]float64
}

// IndexSearchHit is one scored search result.
type IndexSearchHit struct {
	Entry *models.IndexEntry
	Score float64
}

// MarketIndexService maintains and searches the cross-venue market catalog.
type MarketIndexService interface {
	Sync(ctx context.Context, opts IndexSyncOptions) (*IndexSyncResult, error)
	Search(ctx context.Context, query string, opts IndexSearchOptions) ([]IndexSearchHit, error)
}

// DigestService assembles and delivers daily digests.
type DigestService interface {
	RunAll(ctx context.Context) error
}

// NotifierService resolves recipients and delivers notifications.
type NotifierService interface {
	// NotifyAlert delivers text for an alert, honoring the alert's explicit
	// channel override.
	NotifyAlert(ctx context.Context, alert *models.Alert, text string) error
	// NotifyUser delivers text to a user via their latest session, falling
	// back to their platform identity.
	NotifyUser(ctx context.Context, userID, text string) error
}

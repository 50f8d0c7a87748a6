// Package portfolio fans out to venue adapters and reconciles the persisted
// position set, appending a snapshot per user.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const snapshotRetention = 90 * 24 * time.Hour

// Syncer implements interfaces.PortfolioService.
type Syncer struct {
	storage  interfaces.StorageManager
	adapters map[models.Venue]interfaces.VenueAdapter
	logger   *common.Logger
	clock    common.Clock
	workers  int
}

// New creates a portfolio syncer. workers bounds cross-user concurrency;
// per-user work stays serialized.
func New(
	storage interfaces.StorageManager,
	adapters map[models.Venue]interfaces.VenueAdapter,
	logger *common.Logger,
	clock common.Clock,
	workers int,
) *Syncer {
	if workers <= 0 {
		workers = 4
	}
	return &Syncer{
		storage:  storage,
		adapters: adapters,
		logger:   logger,
		clock:    clock,
		workers:  workers,
	}
}

// SyncAll syncs every user with enabled credentials through a bounded pool,
// then prunes snapshots older than the retention horizon.
func (s *Syncer) SyncAll(ctx context.Context) error {
	userIDs, err := s.storage.CredentialStore().ListEnabledUsers(ctx)
	if err != nil {
		return fmt.Errorf("list enabled users: %w", err)
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.SyncUser(ctx, userID); err != nil {
				s.logger.Warn().Err(err).Str("user_id", userID).Msg("Portfolio sync failed")
			}
		}(userID)
	}
	wg.Wait()

	cutoff := s.clock.Now().Add(-snapshotRetention)
	pruned, err := s.storage.SnapshotStore().PruneBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot prune failed")
	} else if pruned > 0 {
		s.logger.Info().Int("count", pruned).Msg("Pruned old portfolio snapshots")
	}
	return nil
}

// SyncUser syncs one user's venues serially and appends a snapshot built
// from the reconciled position set.
func (s *Syncer) SyncUser(ctx context.Context, userID string) error {
	creds, err := s.storage.CredentialStore().ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	for _, cred := range creds {
		if !cred.Enabled {
			continue
		}
		if err := s.syncVenue(ctx, userID, cred); err != nil {
			s.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("venue", string(cred.Venue)).
				Msg("Venue sync failed")
			if merr := s.storage.CredentialStore().MarkFailure(ctx, userID, cred.Venue, s.clock.Now(), err.Error()); merr != nil {
				s.logger.Warn().Err(merr).Msg("Credential failure bookkeeping failed")
			}
			continue
		}
		if merr := s.storage.CredentialStore().MarkSuccess(ctx, userID, cred.Venue, s.clock.Now()); merr != nil {
			s.logger.Warn().Err(merr).Msg("Credential success bookkeeping failed")
		}
	}

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := s.storage.SnapshotStore().Append(ctx, snap); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("positions", snap.PositionsCount).
		Float64("total_value", snap.TotalValue).
		Msg("Portfolio synced")
	return nil
}

// syncVenue reconciles one venue: upsert everything the venue reports, then
// delete stored positions whose outcome id disappeared.
func (s *Syncer) syncVenue(ctx context.Context, userID string, cred *models.Credential) error {
	adapter, ok := s.adapters[cred.Venue]
	if !ok {
		return fmt.Errorf("no adapter for venue %s", cred.Venue)
	}

	fetched, err := adapter.ListPositions(ctx, cred)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	current := make(map[string]bool, len(fetched))
	for _, pos := range fetched {
		current[pos.OutcomeID] = true
		if err := s.storage.PositionStore().Upsert(ctx, pos); err != nil {
			return fmt.Errorf("upsert position %s: %w", pos.OutcomeID, err)
		}
	}

	stored, err := s.storage.PositionStore().ListForUserVenue(ctx, userID, cred.Venue)
	if err != nil {
		return fmt.Errorf("list stored positions: %w", err)
	}
	for _, pos := range stored {
		if current[pos.OutcomeID] {
			continue
		}
		if err := s.storage.PositionStore().Delete(ctx, userID, cred.Venue, pos.OutcomeID); err != nil {
			return fmt.Errorf("delete position %s: %w", pos.OutcomeID, err)
		}
		s.logger.Debug().
			Str("user_id", userID).
			Str("venue", string(cred.Venue)).
			Str("outcome_id", pos.OutcomeID).
			Msg("Removed closed position")
	}
	return nil
}

// snapshot aggregates the user's reconciled positions.
func (s *Syncer) snapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	positions, err := s.storage.PositionStore().ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &models.PortfolioSnapshot{
		UserID:         userID,
		Timestamp:      s.clock.Now().UTC(),
		PositionsCount: len(positions),
		ByVenue:        map[models.Venue]models.VenueTotals{},
	}
	for _, p := range positions {
		basis := p.CostBasis()
		snap.TotalValue += p.Value
		snap.TotalCostBasis += basis

		totals := snap.ByVenue[p.Venue]
		totals.Value += p.Value
		totals.PnL += p.Value - basis
		snap.ByVenue[p.Venue] = totals
	}
	snap.TotalPnL = snap.TotalValue - snap.TotalCostBasis
	if snap.TotalCostBasis != 0 {
		snap.TotalPnLPct = snap.TotalPnL / snap.TotalCostBasis * 100
	}
	return snap, nil
}

// Compile-time check
var _ interfaces.PortfolioService = (*Syncer)(nil)

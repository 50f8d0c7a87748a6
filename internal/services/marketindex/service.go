// Package marketindex maintains the cross-venue market catalog and serves
// hybrid semantic/lexical search over it.
package marketindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

const (
	syncPageSize  = 100
	pagePacing    = 100 * time.Millisecond
	defaultLimit  = 10
	maxCandidates = 1500
	lexicalBoost  = 0.02
	lexicalCap    = 0.15
)

// sportsTags is the fixed tag set excluded by ExcludeSports, matched
// case-insensitively.
var sportsTags = map[string]bool{
	"sports":     true,
	"nfl":        true,
	"nba":        true,
	"mlb":        true,
	"nhl":        true,
	"soccer":     true,
	"football":   true,
	"basketball": true,
	"baseball":   true,
	"hockey":     true,
	"tennis":     true,
	"golf":       true,
	"mma":        true,
	"boxing":     true,
	"cricket":    true,
	"esports":    true,
}

// Service implements interfaces.MarketIndexService.
type Service struct {
	storage  interfaces.StorageManager
	adapters map[models.Venue]interfaces.VenueAdapter
	embedder interfaces.Embedder
	logger   *common.Logger
	clock    common.Clock
	config   common.IndexConfig
}

// New creates a market index service.
func New(
	storage interfaces.StorageManager,
	adapters map[models.Venue]interfaces.VenueAdapter,
	embedder interfaces.Embedder,
	logger *common.Logger,
	clock common.Clock,
	config common.IndexConfig,
) *Service {
	return &Service{
		storage:  storage,
		adapters: adapters,
		embedder: embedder,
		logger:   logger,
		clock:    clock,
		config:   config,
	}
}

// Sync ingests venue listings into the index. Each venue is attempted
// independently; a venue error logs a warning and reports zero upserts for
// that venue.
func (s *Service) Sync(ctx context.Context, opts interfaces.IndexSyncOptions) (*interfaces.IndexSyncResult, error) {
	venues := opts.Venues
	if len(venues) == 0 {
		for v := range s.adapters {
			venues = append(venues, v)
		}
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []string{"open"}
	}
	limit := opts.LimitPerPlatform
	if limit <= 0 {
		limit = s.config.LimitPerPlatform
	}

	result := &interfaces.IndexSyncResult{Upserted: map[models.Venue]int{}}
	for _, venue := range venues {
		adapter, ok := s.adapters[venue]
		if !ok {
			s.logger.Warn().Str("venue", string(venue)).Msg("No adapter for venue, skipping index sync")
			result.Upserted[venue] = 0
			continue
		}

		count, err := s.syncVenue(ctx, adapter, statuses, limit, opts)
		if err != nil {
			s.logger.Warn().Err(err).Str("venue", string(venue)).Msg("Index sync failed for venue")
			result.Upserted[venue] = 0
			continue
		}
		result.Upserted[venue] = count
	}

	if opts.Prune {
		cutoff := s.clock.Now().Add(-s.config.GetStaleAfter())
		pruned, err := s.storage.IndexStore().PruneStale(ctx, "", cutoff)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Index prune failed")
		} else {
			result.Pruned = pruned
		}
	}
	return result, nil
}

// syncVenue pages one venue listing per status, filtering and upserting
// changed entries.
func (s *Service) syncVenue(ctx context.Context, adapter interfaces.VenueAdapter, statuses []string, limit int, opts interfaces.IndexSyncOptions) (int, error) {
	upserted := 0
	for _, status := range statuses {
		seen := 0
		cursor := ""
		offset := 0
		for {
			page, err := adapter.ListMarkets(ctx, interfaces.MarketListQuery{
				Status: status,
				Limit:  syncPageSize,
				Offset: offset,
				Cursor: cursor,
			})
			if err != nil {
				return upserted, fmt.Errorf("list %s markets: %w", status, err)
			}

			for _, entry := range page.Entries {
				seen++
				if limit > 0 && seen > limit {
					break
				}
				if !s.passes(entry, status, opts) {
					continue
				}
				changed, err := s.upsertIfChanged(ctx, entry)
				if err != nil {
					return upserted, err
				}
				if changed {
					upserted++
				}
			}

			if !page.HasMore || len(page.Entries) == 0 {
				break
			}
			if limit > 0 && seen >= limit {
				break
			}
			offset += len(page.Entries)
			cursor = nextCursor(page)
			if err := s.clock.Sleep(ctx, pagePacing); err != nil {
				return upserted, err
			}
		}
	}
	return upserted, nil
}

// nextCursor pulls the last entry's market id as an opaque continuation for
// cursor-paged venues; offset-paged venues ignore it.
func nextCursor(page *interfaces.MarketPage) string {
	if len(page.Entries) == 0 {
		return ""
	}
	return page.Entries[len(page.Entries)-1].MarketID
}

// passes applies the sync filters to one entry.
func (s *Service) passes(entry *models.IndexEntry, status string, opts interfaces.IndexSyncOptions) bool {
	if opts.ExcludeResolved && entry.Resolved {
		return false
	}
	// Status coherence: a settled listing must really be resolved.
	if status == "settled" && !entry.Resolved {
		return false
	}
	if opts.ExcludeSports && hasSportsTag(entry.TagsJSON) {
		return false
	}
	if opts.MinLiquidity > 0 && entry.Liquidity < opts.MinLiquidity {
		return false
	}
	if opts.MinVolume > 0 && entry.Volume24h < opts.MinVolume {
		return false
	}
	if opts.MinOpenInterest > 0 && entry.OpenInterest < opts.MinOpenInterest {
		return false
	}
	if opts.MinPredictions > 0 && entry.Predictions < opts.MinPredictions {
		return false
	}
	return true
}

func hasSportsTag(tagsJSON string) bool {
	for _, tag := range splitTags(tagsJSON) {
		if sportsTags[strings.ToLower(tag)] {
			return true
		}
	}
	return false
}

// splitTags tolerantly extracts tag strings from a JSON array literal.
func splitTags(tagsJSON string) []string {
	trimmed := strings.Trim(strings.TrimSpace(tagsJSON), "[]")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		tags = append(tags, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return tags
}

// upsertIfChanged compares content hashes and writes only on change.
func (s *Service) upsertIfChanged(ctx context.Context, entry *models.IndexEntry) (bool, error) {
	hash := entry.ComputeContentHash()
	stored, err := s.storage.IndexStore().GetHash(ctx, entry.Venue, entry.MarketID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("read hash for %s/%s: %w", entry.Venue, entry.MarketID, err)
	}
	if stored == hash {
		return false, nil
	}

	entry.ContentHash = hash
	entry.UpdatedAt = s.clock.Now().UTC()
	if err := s.storage.IndexStore().UpsertEntry(ctx, entry); err != nil {
		return false, fmt.Errorf("upsert %s/%s: %w", entry.Venue, entry.MarketID, err)
	}
	return true, nil
}

// Compile-time check
var _ interfaces.MarketIndexService = (*Service)(nil)

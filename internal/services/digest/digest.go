// Package digest assembles and delivers daily portfolio digests.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const (
	moverCount      = 3
	moverCandidates = 200
)

// Service implements interfaces.DigestService. RunAll is driven by the
// scheduler on a short cadence; the per-user DigestTime gate decides who
// actually receives a digest on each tick.
type Service struct {
	storage  interfaces.StorageManager
	notifier interfaces.NotifierService
	logger   *common.Logger
	clock    common.Clock

	mu       sync.Mutex
	lastSent map[string]time.Time // userID -> last delivery
}

// New creates a digest service.
func New(storage interfaces.StorageManager, notifier interfaces.NotifierService, logger *common.Logger, clock common.Clock) *Service {
	return &Service{
		storage:  storage,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		lastSent: map[string]time.Time{},
	}
}

// RunAll delivers a digest to every user whose digest time has passed today
// and who has not received one since. User failures are logged and do not
// stop the run.
func (s *Service) RunAll(ctx context.Context) error {
	users, err := s.storage.UserStore().List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	now := s.clock.Now().UTC()
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !user.Settings.DigestEnabled {
			continue
		}
		due, ok := s.due(user, now)
		if !ok {
			continue
		}
		if err := s.deliver(ctx, user, now); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Digest delivery failed")
			continue
		}
		s.mu.Lock()
		s.lastSent[user.ID] = due
		s.mu.Unlock()
	}
	return nil
}

// due reports whether the user's digest time has passed today without a
// delivery since. A malformed DigestTime defaults to 09:00 UTC.
func (s *Service) due(user *models.User, now time.Time) (time.Time, bool) {
	hh, mm := 9, 0
	if t, err := time.Parse("15:04", user.Settings.DigestTime); err == nil {
		hh, mm = t.Hour(), t.Minute()
	} else if user.Settings.DigestTime != "" {
		s.logger.Warn().
			Str("user_id", user.ID).
			Str("digest_time", user.Settings.DigestTime).
			Msg("Unparseable digest time, using 09:00")
	}

	due := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, time.UTC)
	if now.Before(due) {
		return time.Time{}, false
	}
	s.mu.Lock()
	last := s.lastSent[user.ID]
	s.mu.Unlock()
	if !last.Before(due) {
		return time.Time{}, false
	}
	return due, true
}

func (s *Service) deliver(ctx context.Context, user *models.User, now time.Time) error {
	text, err := s.compose(ctx, user, now)
	if err != nil {
		return err
	}
	return s.notifier.NotifyUser(ctx, user.ID, text)
}

// compose renders the digest: latest portfolio snapshot, alerts triggered
// since yesterday's digest window, and the busiest index markets.
func (s *Service) compose(ctx context.Context, user *models.User, now time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s\n", now.Format("Mon, 02 Jan 2006"))

	snaps, err := s.storage.SnapshotStore().ListForUser(ctx, user.ID, 1)
	if err != nil {
		return "", fmt.Errorf("load snapshot: %w", err)
	}
	if len(snaps) > 0 {
		snap := snaps[0]
		fmt.Fprintf(&b, "\nPortfolio: %.2f (cost %.2f, P&L %s)\n",
			snap.TotalValue, snap.TotalCostBasis, common.FormatSignedPct(snap.TotalPnLPct))
		venues := make([]models.Venue, 0, len(snap.ByVenue))
		for v := range snap.ByVenue {
			venues = append(venues, v)
		}
		sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })
		for _, v := range venues {
			vs := snap.ByVenue[v]
			fmt.Fprintf(&b, "  %s: %.2f (P&L %.2f)\n", v, vs.Value, vs.PnL)
		}
	} else {
		b.WriteString("\nPortfolio: no snapshot yet\n")
	}

	alerts, err := s.storage.AlertStore().ListForUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("load alerts: %w", err)
	}
	triggered := 0
	for _, a := range alerts {
		if a.Triggered {
			triggered++
		}
	}
	fmt.Fprintf(&b, "\nAlerts triggered: %d of %d\n", triggered, len(alerts))

	movers, err := s.topMovers(ctx)
	if err != nil {
		return "", err
	}
	if len(movers) > 0 {
		b.WriteString("\nMost active markets:\n")
		for _, m := range movers {
			fmt.Fprintf(&b, "  [%s] %s (24h vol %.0f)\n", m.Venue, m.Question, m.Volume24h)
		}
	}
	return b.String(), nil
}

// topMovers returns the highest 24h-volume index entries.
func (s *Service) topMovers(ctx context.Context) ([]*models.IndexEntry, error) {
	entries, err := s.storage.IndexStore().Query(ctx, interfaces.IndexQueryOptions{Limit: moverCandidates})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Volume24h > entries[j].Volume24h })
	if len(entries) > moverCount {
		entries = entries[:moverCount]
	}
	return entries, nil
}

// Compile-time check
var _ interfaces.DigestService = (*Service)(nil)

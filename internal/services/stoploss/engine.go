// Package stoploss scans positions against per-user stop-loss thresholds
// and flattens breached positions through the execution adapters.
package stoploss

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// Engine implements interfaces.StopLossService.
type Engine struct {
	storage  interfaces.StorageManager
	execs    map[models.Venue]interfaces.ExecutionAdapter
	notifier interfaces.NotifierService
	logger   *common.Logger
	clock    common.Clock
	config   common.TradingConfig
	workers  int
}

// New creates a stop-loss engine. Only venues present in execs are
// executable; positions elsewhere are observed but never sold.
func New(
	storage interfaces.StorageManager,
	execs map[models.Venue]interfaces.ExecutionAdapter,
	notifier interfaces.NotifierService,
	logger *common.Logger,
	clock common.Clock,
	config common.TradingConfig,
	workers int,
) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		storage:  storage,
		execs:    execs,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		config:   config,
		workers:  workers,
	}
}

// ScanAll scans every user with a positive stop-loss setting through a
// bounded pool.
func (e *Engine) ScanAll(ctx context.Context) error {
	users, err := e.storage.UserStore().List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for _, u := range users {
		if u.Settings.StopLossPct <= 0 {
			continue
		}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := e.ScanUser(ctx, userID); err != nil {
				e.logger.Warn().Err(err).Str("user_id", userID).Msg("Stop-loss scan failed")
			}
		}(u.ID)
	}
	wg.Wait()
	return nil
}

// ScanUser checks every position of one user against their threshold.
func (e *Engine) ScanUser(ctx context.Context, userID string) error {
	user, err := e.storage.UserStore().Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	pct := common.NormalizeFraction(user.Settings.StopLossPct)
	if pct <= 0 {
		return nil
	}

	positions, err := e.storage.PositionStore().ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	for _, pos := range positions {
		if err := e.checkPosition(ctx, user, pos, pct); err != nil {
			e.logger.Warn().Err(err).
				Str("user_id", userID).
				Str("outcome_id", pos.OutcomeID).
				Msg("Stop-loss check failed")
		}
	}
	return nil
}

// checkPosition applies the threshold and cooldown gates, then executes (or
// dry-runs) the sell and persists the trigger row.
func (e *Engine) checkPosition(ctx context.Context, user *models.User, pos *models.Position, pct float64) error {
	threshold := pos.AvgPrice * (1 - pct)
	if pos.CurrentPrice > threshold {
		return nil
	}

	now := e.clock.Now()
	prev, err := e.storage.TriggerStore().Get(ctx, user.ID, pos.Venue, pos.OutcomeID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load trigger: %w", err)
	}
	if prev != nil && prev.CooldownUntil.After(now) {
		return nil
	}

	status := models.TriggerDryRun
	execErr := ""
	if !e.config.IsDryRun() {
		status, execErr = e.execute(ctx, user.ID, pos)
	}

	trigger := &models.StopLossTrigger{
		UserID:        user.ID,
		Venue:         pos.Venue,
		OutcomeID:     pos.OutcomeID,
		MarketID:      pos.MarketID,
		Status:        status,
		TriggeredAt:   now.UTC(),
		LastPrice:     pos.CurrentPrice,
		LastError:     execErr,
		CooldownUntil: now.Add(e.config.GetStopLossCooldown()).UTC(),
	}
	if err := e.storage.TriggerStore().Upsert(ctx, trigger); err != nil {
		return fmt.Errorf("persist trigger: %w", err)
	}

	text := e.message(pos, threshold, status, execErr)
	if err := e.notifier.NotifyUser(ctx, user.ID, text); err != nil {
		e.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Stop-loss notification failed")
	}

	e.logger.Info().
		Str("user_id", user.ID).
		Str("venue", string(pos.Venue)).
		Str("outcome_id", pos.OutcomeID).
		Str("status", status).
		Float64("price", pos.CurrentPrice).
		Msg("Stop-loss triggered")
	return nil
}

// execute sells the whole position through the venue's execution adapter.
func (e *Engine) execute(ctx context.Context, userID string, pos *models.Position) (string, string) {
	adapter, ok := e.execs[pos.Venue]
	if !ok {
		return models.TriggerFailed, fmt.Sprintf("venue %s is not executable", pos.Venue)
	}

	cred, err := e.credential(ctx, userID, pos.Venue)
	if err != nil {
		return models.TriggerFailed, err.Error()
	}

	_, err = adapter.SellPosition(ctx, cred, interfaces.SellOrder{
		MarketID:  pos.MarketID,
		OutcomeID: pos.OutcomeID,
		SizeOrAll: -1,
	})
	if err != nil {
		return models.TriggerFailed, err.Error()
	}
	return models.TriggerExecuted, ""
}

func (e *Engine) credential(ctx context.Context, userID string, venue models.Venue) (*models.Credential, error) {
	creds, err := e.storage.CredentialStore().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	for _, c := range creds {
		if c.Venue == venue && c.Enabled {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no enabled credential for %s", venue)
}

func (e *Engine) message(pos *models.Position, threshold float64, status, execErr string) string {
	text := fmt.Sprintf(
		"Stop-loss triggered: %s (%s %s)\nPrice %s, entry %s, threshold %s, %.0f shares.\nStatus: %s.",
		pos.MarketTitle, pos.Side, pos.Venue,
		common.FormatCents(pos.CurrentPrice), common.FormatCents(pos.AvgPrice), common.FormatCents(threshold),
		pos.Shares, status,
	)
	if execErr != "" {
		text += fmt.Sprintf("\nError: %s", execErr)
	}
	if status == models.TriggerDryRun {
		text += "\nDry run enabled - no trade executed."
	}
	return text
}

// Compile-time check
var _ interfaces.StopLossService = (*Engine)(nil)

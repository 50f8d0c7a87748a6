// Package alert evaluates alert rules against live market snapshots.
package alert

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

// Engine implements interfaces.AlertService.
type Engine struct {
	storage  interfaces.StorageManager
	adapters map[models.Venue]interfaces.VenueAdapter
	notifier interfaces.NotifierService
	logger   *common.Logger
	clock    common.Clock
	config   common.AlertConfig
}

// New creates an alert engine.
func New(
	storage interfaces.StorageManager,
	adapters map[models.Venue]interfaces.VenueAdapter,
	notifier interfaces.NotifierService,
	logger *common.Logger,
	clock common.Clock,
	config common.AlertConfig,
) *Engine {
	return &Engine{
		storage:  storage,
		adapters: adapters,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		config:   config,
	}
}

// ScanAll evaluates every active alert. Per-alert errors are logged and do
// not abort the scan.
func (e *Engine) ScanAll(ctx context.Context) error {
	alerts, err := e.storage.AlertStore().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}

	for _, a := range alerts {
		if err := e.evaluate(ctx, a); err != nil {
			e.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Alert evaluation failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// ScanOne evaluates one alert by id.
func (e *Engine) ScanOne(ctx context.Context, alertID string) error {
	a, err := e.storage.AlertStore().Get(ctx, alertID)
	if err != nil {
		return fmt.Errorf("get alert %s: %w", alertID, err)
	}
	if !a.Enabled || a.Triggered {
		return nil
	}
	return e.evaluate(ctx, a)
}

// CheckMarket evaluates all active alerts bound to one market.
func (e *Engine) CheckMarket(ctx context.Context, venue models.Venue, marketID string) error {
	alerts, err := e.storage.AlertStore().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}
	for _, a := range alerts {
		if a.Venue != venue || a.MarketID != marketID {
			continue
		}
		if err := e.evaluate(ctx, a); err != nil {
			e.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Alert evaluation failed")
		}
	}
	return nil
}

// evaluate runs one alert against the current market snapshot and the
// rolling cache, writing the snapshot back afterwards.
func (e *Engine) evaluate(ctx context.Context, a *models.Alert) error {
	adapter, ok := e.adapters[a.Venue]
	if !ok {
		return fmt.Errorf("no adapter for venue %s", a.Venue)
	}

	market, err := adapter.GetMarket(ctx, a.MarketID)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	primary := market.PrimaryOutcome()
	if primary == nil {
		return fmt.Errorf("market %s has no outcomes", a.MarketID)
	}
	current := primary.Price
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return fmt.Errorf("market %s primary price is not finite", a.MarketID)
	}

	prevPrice, prevVolume := e.previous(ctx, a, primary)

	triggered, text := e.check(a, market, current, prevPrice, prevVolume)

	// The cache write updates the rolling "previous" snapshot for the next
	// evaluation, trigger or not.
	market.FetchedAt = e.clock.Now().UTC()
	if err := e.storage.MarketCacheStore().Put(ctx, market); err != nil {
		e.logger.Warn().Err(err).Str("market_id", a.MarketID).Msg("Market cache write failed")
	}

	if !triggered {
		return nil
	}

	if err := e.storage.AlertStore().MarkTriggered(ctx, a.ID); err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	if err := e.notifier.NotifyAlert(ctx, a, text); err != nil {
		e.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Alert notification failed")
	}
	e.logger.Info().
		Str("alert_id", a.ID).
		Str("type", a.Condition.Type).
		Str("market_id", a.MarketID).
		Msg("Alert triggered")
	return nil
}

// previous resolves the prior price and volume: the cached snapshot when it
// is inside the alert's window, else the feed's own previousPrice.
func (e *Engine) previous(ctx context.Context, a *models.Alert, primary *models.Outcome) (float64, float64) {
	window := e.config.GetPriceChangeWindow()
	if a.Condition.TimeWindowSecs > 0 {
		window = time.Duration(a.Condition.TimeWindowSecs) * time.Second
	}

	cached, err := e.storage.MarketCacheStore().Get(ctx, a.Venue, a.MarketID)
	if err == nil && e.clock.Now().Sub(cached.FetchedAt) <= window {
		prevPrice := 0.0
		if p := cached.PrimaryOutcome(); p != nil {
			prevPrice = p.Price
		}
		return prevPrice, cached.Volume24h
	}

	if primary.PreviousPrice != nil {
		return *primary.PreviousPrice, 0
	}
	return 0, 0
}

// check applies the alert's condition, returning whether it fired and the
// notification text.
func (e *Engine) check(a *models.Alert, market *models.Market, current, prevPrice, prevVolume float64) (bool, string) {
	c := a.Condition
	switch c.Type {
	case models.CondPriceAbove:
		if current >= c.Threshold {
			return true, fmt.Sprintf("Price alert: %s is %s, above %s",
				market.Question, common.FormatCents(current), common.FormatCents(c.Threshold))
		}

	case models.CondPriceBelow:
		if current <= c.Threshold {
			return true, fmt.Sprintf("Price alert: %s is %s, below %s",
				market.Question, common.FormatCents(current), common.FormatCents(c.Threshold))
		}

	case models.CondPriceChangePct:
		if prevPrice <= 0 {
			return false, ""
		}
		pct := (current - prevPrice) / prevPrice * 100
		threshold := common.NormalizePct(c.Threshold)
		fired := false
		switch c.Direction {
		case models.DirectionDown:
			fired = pct <= -threshold
		case models.DirectionUp:
			fired = pct >= threshold
		default:
			fired = math.Abs(pct) >= threshold
		}
		if fired {
			return true, fmt.Sprintf("Price move alert: %s moved %s (%s → %s)",
				market.Question, common.FormatSignedPct(pct), common.FormatCents(prevPrice), common.FormatCents(current))
		}

	case models.CondVolumeSpike:
		if prevVolume <= 0 {
			return false, ""
		}
		mult := c.Threshold
		if mult <= 0 {
			mult = e.config.GetVolumeSpikeMult()
		}
		if market.Volume24h/prevVolume >= mult {
			return true, fmt.Sprintf("Volume spike alert: %s volume %.0f is %.1fx the previous %.0f",
				market.Question, market.Volume24h, market.Volume24h/prevVolume, prevVolume)
		}
	}
	return false, ""
}

// Compile-time check
var _ interfaces.AlertService = (*Engine)(nil)

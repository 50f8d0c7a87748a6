package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	tcommon "github.com/drewfallon/vigil/tests/common"
)

// fakeAdapter serves one market; GetMarket errors when the id is unknown.
type fakeAdapter struct {
	venue   models.Venue
	markets map[string]*models.Market
}

func (f *fakeAdapter) Venue() models.Venue { return f.venue }

func (f *fakeAdapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	return nil, nil
}

func (f *fakeAdapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	m, ok := f.markets[marketID]
	if !ok {
		return nil, fmt.Errorf("market %s unknown", marketID)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeAdapter) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	return &interfaces.MarketPage{}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) NotifyAlert(ctx context.Context, alert *models.Alert, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeNotifier) NotifyUser(ctx context.Context, userID, text string) error {
	return f.NotifyAlert(ctx, &models.Alert{UserID: userID}, text)
}

type fixture struct {
	engine   *Engine
	store    *tcommon.MemStore
	adapter  *fakeAdapter
	notifier *fakeNotifier
	clock    *common.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := tcommon.NewMemStore()
	adapter := &fakeAdapter{venue: models.VenuePolymarket, markets: map[string]*models.Market{}}
	notifier := &fakeNotifier{}
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	engine := New(store,
		map[models.Venue]interfaces.VenueAdapter{models.VenuePolymarket: adapter},
		notifier, common.NewSilentLogger(), clock, common.AlertConfig{})
	return &fixture{engine: engine, store: store, adapter: adapter, notifier: notifier, clock: clock}
}

func (fx *fixture) setMarket(marketID string, price float64, volume float64) {
	fx.adapter.markets[marketID] = &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  marketID,
		Question:  "Will it happen?",
		Outcomes:  []models.Outcome{{ID: "o1", Name: "Yes", Price: price}},
		Volume24h: volume,
	}
}

func (fx *fixture) addAlert(t *testing.T, cond models.Condition) *models.Alert {
	t.Helper()
	a := &models.Alert{
		ID:        "a1",
		UserID:    "u1",
		Venue:     models.VenuePolymarket,
		MarketID:  "m1",
		Condition: cond,
		Enabled:   true,
	}
	require.NoError(t, fx.store.AlertStore().Create(context.Background(), a))
	return a
}

func TestPriceAbove_TriggersAtThreshold(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{Type: models.CondPriceAbove, Threshold: 0.72})

	// Below threshold: no trigger.
	fx.setMarket("m1", 0.715, 0)
	require.NoError(t, fx.engine.ScanAll(context.Background()))
	assert.Empty(t, fx.notifier.texts)

	got, err := fx.store.AlertStore().Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, got.Triggered)

	// Crosses threshold on the next tick.
	fx.setMarket("m1", 0.725, 0)
	require.NoError(t, fx.engine.ScanAll(context.Background()))

	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "72.5¢")
	assert.Contains(t, fx.notifier.texts[0], "above 72.0¢")

	got, err = fx.store.AlertStore().Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, got.Triggered)
}

func TestPriceBelow(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{Type: models.CondPriceBelow, Threshold: 0.30})

	fx.setMarket("m1", 0.28, 0)
	require.NoError(t, fx.engine.ScanAll(context.Background()))

	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "below 30.0¢")
}

func TestPriceChangePct_WindowedPrevious(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{
		Type:           models.CondPriceChangePct,
		Threshold:      5,
		Direction:      models.DirectionUp,
		TimeWindowSecs: 600,
	})

	// Cached snapshot from 500s ago at 0.40.
	require.NoError(t, fx.store.MarketCacheStore().Put(context.Background(), &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  "m1",
		Question:  "Will it happen?",
		Outcomes:  []models.Outcome{{ID: "o1", Name: "Yes", Price: 0.40}},
		FetchedAt: fx.clock.Now().Add(-500 * time.Second),
	}))

	fx.setMarket("m1", 0.424, 0)
	require.NoError(t, fx.engine.ScanAll(context.Background()))

	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "+6.00%")
	assert.Contains(t, fx.notifier.texts[0], "40.0¢ → 42.4¢")
}

func TestPriceChangePct_StaleCacheUsesPreviousPrice(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{
		Type:           models.CondPriceChangePct,
		Threshold:      5,
		Direction:      models.DirectionUp,
		TimeWindowSecs: 600,
	})

	// Cache entry outside the window is ignored.
	require.NoError(t, fx.store.MarketCacheStore().Put(context.Background(), &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  "m1",
		Outcomes:  []models.Outcome{{ID: "o1", Name: "Yes", Price: 0.10}},
		FetchedAt: fx.clock.Now().Add(-2 * time.Hour),
	}))

	prev := 0.40
	fx.adapter.markets["m1"] = &models.Market{
		Venue:    models.VenuePolymarket,
		MarketID: "m1",
		Question: "Will it happen?",
		Outcomes: []models.Outcome{{ID: "o1", Name: "Yes", Price: 0.424, PreviousPrice: &prev}},
	}
	require.NoError(t, fx.engine.ScanAll(context.Background()))
	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "+6.00%")
}

func TestPriceChangePct_ThresholdRenormalized(t *testing.T) {
	fx := newFixture(t)
	// 0.05 means 5%, not 0.05%.
	fx.addAlert(t, models.Condition{
		Type:      models.CondPriceChangePct,
		Threshold: 0.05,
		Direction: models.DirectionAny,
	})

	require.NoError(t, fx.store.MarketCacheStore().Put(context.Background(), &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  "m1",
		Outcomes:  []models.Outcome{{ID: "o1", Name: "Yes", Price: 0.40}},
		FetchedAt: fx.clock.Now(),
	}))

	// +4% move stays below the 5% threshold.
	fx.setMarket("m1", 0.416, 0)
	require.NoError(t, fx.engine.ScanAll(context.Background()))
	assert.Empty(t, fx.notifier.texts)
}

func TestVolumeSpike(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{Type: models.CondVolumeSpike, Threshold: 3})

	require.NoError(t, fx.store.MarketCacheStore().Put(context.Background(), &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  "m1",
		Outcomes:  []models.Outcome{{ID: "o1", Name: "Yes", Price: 0.50}},
		Volume24h: 1000,
		FetchedAt: fx.clock.Now(),
	}))

	fx.setMarket("m1", 0.50, 3500)
	require.NoError(t, fx.engine.ScanAll(context.Background()))
	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "Volume spike")
}

func TestEvaluationWritesCache(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{Type: models.CondPriceAbove, Threshold: 0.99})

	fx.setMarket("m1", 0.50, 700)
	require.NoError(t, fx.engine.ScanAll(context.Background()))

	cached, err := fx.store.MarketCacheStore().Get(context.Background(), models.VenuePolymarket, "m1")
	require.NoError(t, err)
	assert.InDelta(t, 0.50, cached.Outcomes[0].Price, 1e-9)
	assert.Equal(t, fx.clock.Now().UTC(), cached.FetchedAt)
}

func TestScanContinuesPastFailures(t *testing.T) {
	fx := newFixture(t)
	// First alert points at a market the adapter doesn't know.
	require.NoError(t, fx.store.AlertStore().Create(context.Background(), &models.Alert{
		ID: "a0", UserID: "u1", Venue: models.VenuePolymarket, MarketID: "missing",
		Condition: models.Condition{Type: models.CondPriceAbove, Threshold: 0.5}, Enabled: true,
	}))
	fx.addAlert(t, models.Condition{Type: models.CondPriceAbove, Threshold: 0.72})
	fx.setMarket("m1", 0.80, 0)

	require.NoError(t, fx.engine.ScanAll(context.Background()))
	require.Len(t, fx.notifier.texts, 1)
}

func TestScanOne_SkipsTriggered(t *testing.T) {
	fx := newFixture(t)
	a := fx.addAlert(t, models.Condition{Type: models.CondPriceAbove, Threshold: 0.5})
	fx.setMarket("m1", 0.80, 0)

	require.NoError(t, fx.engine.ScanOne(context.Background(), a.ID))
	require.Len(t, fx.notifier.texts, 1)

	// Triggered alerts are not re-evaluated.
	require.NoError(t, fx.engine.ScanOne(context.Background(), a.ID))
	assert.Len(t, fx.notifier.texts, 1)
}

func TestCheckMarket_OnlyMatchingAlerts(t *testing.T) {
	fx := newFixture(t)
	fx.addAlert(t, models.Condition{Type: models.CondPriceAbove, Threshold: 0.5})
	require.NoError(t, fx.store.AlertStore().Create(context.Background(), &models.Alert{
		ID: "a2", UserID: "u1", Venue: models.VenuePolymarket, MarketID: "other",
		Condition: models.Condition{Type: models.CondPriceAbove, Threshold: 0.1}, Enabled: true,
	}))
	fx.setMarket("m1", 0.80, 0)

	require.NoError(t, fx.engine.CheckMarket(context.Background(), models.VenuePolymarket, "m1"))
	require.Len(t, fx.notifier.texts, 1)
	assert.Contains(t, fx.notifier.texts[0], "80.0¢")
}

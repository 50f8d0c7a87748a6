package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

func newTestAlert(userID, marketID string) *models.Alert {
	return &models.Alert{
		UserID:   userID,
		Venue:    models.VenuePolymarket,
		MarketID: marketID,
		Condition: models.Condition{
			Type:      models.CondPriceAbove,
			Threshold: 0.75,
		},
		Enabled: true,
		Channel: "telegram",
		ChatID:  "chat-1",
	}
}

func TestAlertCreateAndGet(t *testing.T) {
	store := NewAlertStore(testDB(t), testLogger())
	ctx := context.Background()

	alert := newTestAlert("u1", "mkt-1")
	require.NoError(t, store.Create(ctx, alert))
	require.NotEmpty(t, alert.ID)

	got, err := store.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "mkt-1", got.MarketID)
	assert.Equal(t, models.CondPriceAbove, got.Condition.Type)
	assert.Equal(t, 0.75, got.Condition.Threshold)
}

func TestAlertCreateRejectsInvalidCondition(t *testing.T) {
	store := NewAlertStore(testDB(t), testLogger())

	alert := newTestAlert("u1", "mkt-1")
	alert.Condition.Type = "bogus"
	assert.Error(t, store.Create(context.Background(), alert))
}

func TestAlertListActiveExcludesTriggeredAndDisabled(t *testing.T) {
	store := NewAlertStore(testDB(t), testLogger())
	ctx := context.Background()

	active := newTestAlert("u1", "mkt-active")
	triggered := newTestAlert("u1", "mkt-triggered")
	disabled := newTestAlert("u1", "mkt-disabled")
	disabled.Enabled = false

	require.NoError(t, store.Create(ctx, active))
	require.NoError(t, store.Create(ctx, triggered))
	require.NoError(t, store.Create(ctx, disabled))
	require.NoError(t, store.MarkTriggered(ctx, triggered.ID))

	alerts, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "mkt-active", alerts[0].MarketID)
}

func TestAlertDelete(t *testing.T) {
	store := NewAlertStore(testDB(t), testLogger())
	ctx := context.Background()

	alert := newTestAlert("u1", "mkt-1")
	require.NoError(t, store.Create(ctx, alert))
	require.NoError(t, store.Delete(ctx, alert.ID))

	_, err := store.Get(ctx, alert.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, alert.ID))
}

func TestAlertListForUser(t *testing.T) {
	store := NewAlertStore(testDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestAlert("u1", "mkt-1")))
	require.NoError(t, store.Create(ctx, newTestAlert("u1", "mkt-2")))
	require.NoError(t, store.Create(ctx, newTestAlert("u2", "mkt-3")))

	alerts, err := store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/models"
)

func newTestSnapshot(userID string, at time.Time, value float64) *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		UserID:         userID,
		Timestamp:      at,
		TotalValue:     value,
		TotalPnL:       value - 100,
		TotalCostBasis: 100,
		PositionsCount: 2,
		ByVenue: map[models.Venue]models.VenueTotals{
			models.VenuePolymarket: {Value: value, PnL: value - 100},
		},
	}
}

func TestSnapshotAppendAndList(t *testing.T) {
	store := NewSnapshotStore(testDB(t), testLogger())
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base.Add(-2*time.Hour), 110)))
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base.Add(-time.Hour), 120)))
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base, 130)))
	require.NoError(t, store.Append(ctx, newTestSnapshot("u2", base, 999)))

	snaps, err := store.ListForUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 130.0, snaps[0].TotalValue)
	assert.Equal(t, 120.0, snaps[1].TotalValue)
	assert.Equal(t, 30.0, snaps[0].ByVenue[models.VenuePolymarket].PnL)
}

func TestSnapshotPruneBefore(t *testing.T) {
	store := NewSnapshotStore(testDB(t), testLogger())
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base.AddDate(0, 0, -120), 100)))
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base.AddDate(0, 0, -100), 105)))
	require.NoError(t, store.Append(ctx, newTestSnapshot("u1", base.AddDate(0, 0, -10), 110)))

	pruned, err := store.PruneBefore(ctx, base.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	snaps, err := store.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 110.0, snaps[0].TotalValue)
}

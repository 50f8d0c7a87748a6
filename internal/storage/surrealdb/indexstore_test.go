package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

func newTestEntry(venue models.Venue, marketID, question string) *models.IndexEntry {
	return &models.IndexEntry{
		Venue:     venue,
		MarketID:  marketID,
		Question:  question,
		Status:    "active",
		Volume24h: 50000,
		UpdatedAt: time.Now().Truncate(time.Second),
	}
}

func TestIndexUpsertComputesHash(t *testing.T) {
	store := NewIndexStore(testDB(t), testLogger())
	ctx := context.Background()

	entry := newTestEntry(models.VenuePolymarket, "mkt-1", "Will it rain tomorrow?")
	require.NoError(t, store.UpsertEntry(ctx, entry))
	require.NotEmpty(t, entry.ContentHash)

	hash, err := store.GetHash(ctx, models.VenuePolymarket, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, entry.ContentHash, hash)

	got, err := store.GetEntry(ctx, models.VenuePolymarket, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "Will it rain tomorrow?", got.Question)
}

func TestIndexGetHashNotFound(t *testing.T) {
	store := NewIndexStore(testDB(t), testLogger())

	_, err := store.GetHash(context.Background(), models.VenuePolymarket, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexQueryFilters(t *testing.T) {
	store := NewIndexStore(testDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, store.UpsertEntry(ctx, newTestEntry(models.VenuePolymarket, "mkt-1", "Will BTC close above 100k?")))
	require.NoError(t, store.UpsertEntry(ctx, newTestEntry(models.VenuePolymarket, "mkt-2", "Will ETH flip BTC?")))
	require.NoError(t, store.UpsertEntry(ctx, newTestEntry(models.VenueKalshi, "mkt-3", "Will BTC drop below 50k?")))

	entries, err := store.Query(ctx, interfaces.IndexQueryOptions{Venue: models.VenuePolymarket})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.Query(ctx, interfaces.IndexQueryOptions{Text: "btc"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Short text is ignored as a prefilter.
	entries, err = store.Query(ctx, interfaces.IndexQueryOptions{Text: "xy"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.Query(ctx, interfaces.IndexQueryOptions{Text: "flip", Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mkt-2", entries[0].MarketID)
}

func TestIndexPruneStaleRemovesEmbeddings(t *testing.T) {
	store := NewIndexStore(testDB(t), testLogger())
	ctx := context.Background()

	stale := newTestEntry(models.VenuePolymarket, "mkt-stale", "Old market")
	stale.UpdatedAt = time.Now().AddDate(0, 0, -30)
	fresh := newTestEntry(models.VenuePolymarket, "mkt-fresh", "New market")

	require.NoError(t, store.UpsertEntry(ctx, stale))
	require.NoError(t, store.UpsertEntry(ctx, fresh))
	require.NoError(t, store.PutEmbedding(ctx, &models.Embedding{
		Venue:       models.VenuePolymarket,
		MarketID:    "mkt-stale",
		ContentHash: stale.ContentHash,
		Vector:      []float32{0.1, 0.2, 0.3},
	}))

	pruned, err := store.PruneStale(ctx, models.VenuePolymarket, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetEntry(ctx, models.VenuePolymarket, "mkt-stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetEmbedding(ctx, models.VenuePolymarket, "mkt-stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetEntry(ctx, models.VenuePolymarket, "mkt-fresh")
	assert.NoError(t, err)
}

func TestIndexEmbeddingRoundTrip(t *testing.T) {
	store := NewIndexStore(testDB(t), testLogger())
	ctx := context.Background()

	emb := &models.Embedding{
		Venue:       models.VenueManifold,
		MarketID:    "mkt-1",
		ContentHash: "abc123",
		Vector:      []float32{0.5, -0.25, 0.125},
	}
	require.NoError(t, store.PutEmbedding(ctx, emb))

	got, err := store.GetEmbedding(ctx, models.VenueManifold, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Equal(t, []float32{0.5, -0.25, 0.125}, got.Vector)
}

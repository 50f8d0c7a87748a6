package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// IndexStore implements interfaces.IndexStore using SurrealDB. Entries and
// embeddings live in separate tables sharing the (venue, market) record key,
// so pruning an entry never has to rewrite its vector and vice versa.
type IndexStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewIndexStore(db *surrealdb.DB, logger *common.Logger) *IndexStore {
	return &IndexStore{db: db, logger: logger}
}

func (s *IndexStore) UpsertEntry(ctx context.Context, entry *models.IndexEntry) error {
	if entry.ContentHash == "" {
		entry.ContentHash = entry.ComputeContentHash()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	sql := "UPSERT $rid CONTENT $entry"
	vars := map[string]any{
		"rid":   surrealmodels.NewRecordID("market_index", marketRecordID(entry.Venue, entry.MarketID)),
		"entry": entry,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert index entry: %w", err)
	}
	return nil
}

func (s *IndexStore) GetEntry(ctx context.Context, venue models.Venue, marketID string) (*models.IndexEntry, error) {
	rid := surrealmodels.NewRecordID("market_index", marketRecordID(venue, marketID))
	entry, err := surrealdb.Select[models.IndexEntry](ctx, s.db, rid)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select index entry: %w", err)
	}
	if entry == nil || entry.MarketID == "" {
		return nil, storage.ErrNotFound
	}
	return entry, nil
}

// GetHash fetches only the content hash so sync can decide whether an entry
// changed without loading the full row.
func (s *IndexStore) GetHash(ctx context.Context, venue models.Venue, marketID string) (string, error) {
	sql := "SELECT content_hash FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("market_index", marketRecordID(venue, marketID)),
	}

	type hashRow struct {
		ContentHash string `json:"content_hash"`
	}

	results, err := surrealdb.Query[[]hashRow](ctx, s.db, sql, vars)
	if err != nil {
		return "", fmt.Errorf("failed to get index entry hash: %w", err)
	}

	rows := firstResult(results)
	if len(rows) == 0 || rows[0].ContentHash == "" {
		return "", storage.ErrNotFound
	}
	return rows[0].ContentHash, nil
}

func (s *IndexStore) Query(ctx context.Context, opts interfaces.IndexQueryOptions) ([]*models.IndexEntry, error) {
	sql := "SELECT * FROM market_index"
	vars := map[string]any{}

	var where []string
	if opts.Venue != "" {
		where = append(where, "venue = $venue")
		vars["venue"] = opts.Venue
	}
	if text := strings.ToLower(strings.TrimSpace(opts.Text)); len(text) >= 3 {
		where = append(where, "(string::contains(string::lowercase(question), $text) OR string::contains(string::lowercase(description), $text))")
		vars["text"] = text
	}
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	results, err := surrealdb.Query[[]models.IndexEntry](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query index entries: %w", err)
	}

	rows := firstResult(results)
	var entries []*models.IndexEntry
	for i := range rows {
		entries = append(entries, &rows[i])
	}
	return entries, nil
}

// PruneStale deletes entries (and their cached embeddings) not refreshed
// since cutoff. Empty venue prunes across all venues.
func (s *IndexStore) PruneStale(ctx context.Context, venue models.Venue, cutoff time.Time) (int, error) {
	sql := "DELETE market_index WHERE updated_at < $cutoff RETURN BEFORE"
	vars := map[string]any{"cutoff": cutoff}
	if venue != "" {
		sql = "DELETE market_index WHERE venue = $venue AND updated_at < $cutoff RETURN BEFORE"
		vars["venue"] = venue
	}

	results, err := surrealdb.Query[[]models.IndexEntry](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to prune index entries: %w", err)
	}

	pruned := firstResult(results)
	for i := range pruned {
		rid := surrealmodels.NewRecordID("market_index_embeddings", marketRecordID(pruned[i].Venue, pruned[i].MarketID))
		if _, err := surrealdb.Delete[models.Embedding](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
			s.logger.Warn().Err(err).
				Str("venue", string(pruned[i].Venue)).
				Str("market_id", pruned[i].MarketID).
				Msg("failed to delete embedding for pruned entry")
		}
	}
	return len(pruned), nil
}

func (s *IndexStore) GetEmbedding(ctx context.Context, venue models.Venue, marketID string) (*models.Embedding, error) {
	rid := surrealmodels.NewRecordID("market_index_embeddings", marketRecordID(venue, marketID))
	emb, err := surrealdb.Select[models.Embedding](ctx, s.db, rid)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select embedding: %w", err)
	}
	if emb == nil || emb.ContentHash == "" {
		return nil, storage.ErrNotFound
	}
	return emb, nil
}

func (s *IndexStore) PutEmbedding(ctx context.Context, emb *models.Embedding) error {
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	sql := "UPSERT $rid CONTENT $emb"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("market_index_embeddings", marketRecordID(emb.Venue, emb.MarketID)),
		"emb": emb,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to put embedding: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.IndexStore = (*IndexStore)(nil)

package marketindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
	"github.com/drewfallon/vigil/internal/storage"
)

// Search runs hybrid retrieval over the index: lexical prefilter, cached
// embeddings (refreshed for entries whose content hash moved), then a fused
// cosine + lexical score.
func (s *Service) Search(ctx context.Context, query string, opts interfaces.IndexSearchOptions) ([]interfaces.IndexSearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	max := opts.MaxCandidates
	if max <= 0 {
		max = maxCandidates
	}

	prefilter := ""
	if len(query) >= 3 {
		prefilter = query
	}
	candidates, err := s.storage.IndexStore().Query(ctx, interfaces.IndexQueryOptions{
		Venue: opts.Venue,
		Text:  prefilter,
		Limit: max,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(candidates) == 0 {
		return []interfaces.IndexSearchHit{}, nil
	}

	vectors, err := s.candidateVectors(ctx, candidates)
	if err != nil {
		return nil, err
	}

	queryVecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(queryVecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(queryVecs))
	}
	queryVec := queryVecs[0]

	terms := queryTerms(query)
	hits := make([]interfaces.IndexSearchHit, 0, len(candidates))
	for i, entry := range candidates {
		vec := vectors[i]
		if vec == nil {
			continue
		}
		score := cosine(queryVec, vec)*s.venueWeight(entry.Venue, opts.VenueWeights) + lexicalScore(entry, terms)
		if score < opts.MinScore {
			continue
		}
		hits = append(hits, interfaces.IndexSearchHit{Entry: entry, Score: score})
	}

	// Stable sort keeps candidate order for equal scores.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// candidateVectors returns one vector per candidate, re-embedding entries
// whose cached embedding is missing or was computed at a different content
// hash. Fresh vectors are written back keyed by the current hash.
func (s *Service) candidateVectors(ctx context.Context, candidates []*models.IndexEntry) ([][]float32, error) {
	vectors := make([][]float32, len(candidates))

	var staleIdx []int
	var staleTexts []string
	for i, entry := range candidates {
		hash := entry.ComputeContentHash()
		emb, err := s.storage.IndexStore().GetEmbedding(ctx, entry.Venue, entry.MarketID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("read embedding for %s/%s: %w", entry.Venue, entry.MarketID, err)
		}
		if emb != nil && emb.ContentHash == hash {
			vectors[i] = emb.Vector
			continue
		}
		staleIdx = append(staleIdx, i)
		staleTexts = append(staleTexts, embeddingText(entry))
	}
	if len(staleIdx) == 0 {
		return vectors, nil
	}

	fresh, err := s.embedder.EmbedTexts(ctx, staleTexts)
	if err != nil {
		return nil, fmt.Errorf("embed %d index entries: %w", len(staleTexts), err)
	}
	if len(fresh) != len(staleIdx) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(staleIdx))
	}

	for n, i := range staleIdx {
		entry := candidates[i]
		vectors[i] = fresh[n]
		emb := &models.Embedding{
			Venue:       entry.Venue,
			MarketID:    entry.MarketID,
			ContentHash: entry.ComputeContentHash(),
			Vector:      fresh[n],
			CreatedAt:   s.clock.Now().UTC(),
		}
		if err := s.storage.IndexStore().PutEmbedding(ctx, emb); err != nil {
			s.logger.Warn().Err(err).
				Str("venue", string(entry.Venue)).
				Str("market_id", entry.MarketID).
				Msg("Failed to cache embedding")
		}
	}
	return vectors, nil
}

// embeddingText is the canonical text fed to the embedder for an entry.
func embeddingText(entry *models.IndexEntry) string {
	parts := []string{entry.Question}
	if entry.Description != "" {
		parts = append(parts, entry.Description)
	}
	if entry.OutcomesJSON != "" {
		parts = append(parts, strings.Join(splitTags(entry.OutcomesJSON), " "))
	}
	if entry.TagsJSON != "" {
		parts = append(parts, strings.Join(splitTags(entry.TagsJSON), " "))
	}
	return strings.Join(parts, "\n")
}

func (s *Service) venueWeight(venue models.Venue, weights map[models.Venue]float64) float64 {
	if w, ok := weights[venue]; ok && w > 0 {
		return w
	}
	return 1.0
}

// queryTerms splits the query into lowercase terms longer than two characters.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// lexicalScore adds a small boost per query term found in the entry's text
// fields, capped so lexical overlap never dominates the vector score.
func lexicalScore(entry *models.IndexEntry, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(strings.Join([]string{
		entry.Question, entry.Description, entry.OutcomesJSON, entry.TagsJSON,
	}, " "))
	score := 0.0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			score += lexicalBoost
		}
	}
	return math.Min(score, lexicalCap)
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// degenerate or dimensions differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

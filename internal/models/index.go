package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// IndexEntry is one market in the cross-venue catalog. ContentHash is a
// deterministic digest of the canonical fields (embeddings excluded); any
// change to the hashed tuple invalidates cached embeddings.
type IndexEntry struct {
	Venue        Venue     `json:"venue"`
	MarketID     string    `json:"market_id"`
	Slug         string    `json:"slug,omitempty"`
	Question     string    `json:"question"`
	Description  string    `json:"description,omitempty"`
	OutcomesJSON string    `json:"outcomes_json,omitempty"`
	TagsJSON     string    `json:"tags_json,omitempty"`
	Status       string    `json:"status,omitempty"`
	URL          string    `json:"url,omitempty"`
	EndDate      string    `json:"end_date,omitempty"`
	Resolved     bool      `json:"resolved"`
	Volume24h    float64   `json:"volume_24h,omitempty"`
	Liquidity    float64   `json:"liquidity,omitempty"`
	OpenInterest float64   `json:"open_interest,omitempty"`
	Predictions  int       `json:"predictions,omitempty"`
	ContentHash  string    `json:"content_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// hashedEntry fixes the exact tuple and field order fed into the content
// hash. Changing this struct invalidates every cached embedding.
type hashedEntry struct {
	Venue        Venue   `json:"venue"`
	MarketID     string  `json:"market_id"`
	Slug         string  `json:"slug"`
	Question     string  `json:"question"`
	Description  string  `json:"description"`
	OutcomesJSON string  `json:"outcomes_json"`
	TagsJSON     string  `json:"tags_json"`
	Status       string  `json:"status"`
	URL          string  `json:"url"`
	EndDate      string  `json:"end_date"`
	Resolved     bool    `json:"resolved"`
	Volume24h    float64 `json:"volume_24h"`
	Liquidity    float64 `json:"liquidity"`
	OpenInterest float64 `json:"open_interest"`
	Predictions  int     `json:"predictions"`
}

// ComputeContentHash returns the deterministic digest of the entry's
// canonical fields. ContentHash and UpdatedAt are not part of the input.
func (e *IndexEntry) ComputeContentHash() string {
	h := hashedEntry{
		Venue:        e.Venue,
		MarketID:     e.MarketID,
		Slug:         e.Slug,
		Question:     e.Question,
		Description:  e.Description,
		OutcomesJSON: e.OutcomesJSON,
		TagsJSON:     e.TagsJSON,
		Status:       e.Status,
		URL:          e.URL,
		EndDate:      e.EndDate,
		Resolved:     e.Resolved,
		Volume24h:    e.Volume24h,
		Liquidity:    e.Liquidity,
		OpenInterest: e.OpenInterest,
		Predictions:  e.Predictions,
	}
	b, _ := json.Marshal(h)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Embedding is a cached vector for an index entry at a specific content hash.
type Embedding struct {
	Venue       Venue     `json:"venue"`
	MarketID    string    `json:"market_id"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"vector"`
	CreatedAt   time.Time `json:"created_at"`
}

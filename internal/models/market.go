package models

import (
	"strings"
	"time"
)

// Outcome is one side of a market. Prices are probabilities in [0, 1].
type Outcome struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	PreviousPrice *float64 `json:"previous_price,omitempty"`
}

// Market is a cached venue market snapshot.
type Market struct {
	Venue     Venue     `json:"venue"`
	MarketID  string    `json:"market_id"`
	Question  string    `json:"question"`
	Outcomes  []Outcome `json:"outcomes"`
	Volume24h float64   `json:"volume_24h,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PrimaryOutcome returns the canonical YES side: the first outcome named
// "yes" (case-insensitive), else outcome index 0. Returns nil when the
// market has no outcomes.
func (m *Market) PrimaryOutcome() *Outcome {
	if len(m.Outcomes) == 0 {
		return nil
	}
	for i := range m.Outcomes {
		if strings.EqualFold(m.Outcomes[i].Name, "yes") {
			return &m.Outcomes[i]
		}
	}
	return &m.Outcomes[0]
}

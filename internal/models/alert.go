package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert condition kinds.
const (
	CondPriceAbove     = "priceAbove"
	CondPriceBelow     = "priceBelow"
	CondPriceChangePct = "priceChangePct"
	CondVolumeSpike    = "volumeSpike"
)

// Direction values for priceChangePct conditions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
	DirectionAny  = "any"
)

// Condition is the tagged condition attached to an alert. Threshold units
// depend on Type: a price for priceAbove/priceBelow, a percentage (fraction
// or percent, normalized at evaluation) for priceChangePct, and a multiplier
// for volumeSpike.
type Condition struct {
	Type           string  `json:"type"`
	Threshold      float64 `json:"threshold"`
	Direction      string  `json:"direction,omitempty"`
	TimeWindowSecs int64   `json:"time_window_secs,omitempty"`
}

// Validate rejects unknown condition kinds.
func (c *Condition) Validate() error {
	switch c.Type {
	case CondPriceAbove, CondPriceBelow, CondPriceChangePct, CondVolumeSpike:
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if c.Type == CondPriceChangePct {
		switch c.Direction {
		case DirectionUp, DirectionDown, DirectionAny, "":
		default:
			return fmt.Errorf("unknown direction %q", c.Direction)
		}
	}
	return nil
}

// UnmarshalJSON parses a condition and rejects unknown kinds at parse time.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type raw Condition
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = Condition(r)
	return c.Validate()
}

// Alert is a persisted user rule evaluated against market snapshots.
// Channel and ChatID, when set, override session-based recipient resolution.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Venue     Venue     `json:"venue"`
	MarketID  string    `json:"market_id"`
	Condition Condition `json:"condition"`
	Enabled   bool      `json:"enabled"`
	Triggered bool      `json:"triggered"`
	Channel   Channel   `json:"channel,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

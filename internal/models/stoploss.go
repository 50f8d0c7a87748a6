package models

import "time"

// Stop-loss trigger statuses. Skipped outcomes (cooldown still active, no
// execution adapter, threshold not crossed) are never persisted as rows;
// the constant exists so reporting surfaces share one vocabulary.
const (
	TriggerExecuted = "executed"
	TriggerFailed   = "failed"
	TriggerDryRun   = "dry-run"
	TriggerSkipped  = "skipped"
)

// StopLossTrigger records a stop-loss event for (UserID, Venue, OutcomeID).
// CooldownUntil gates re-execution regardless of status so successive scans
// do not spam the venue or the user.
type StopLossTrigger struct {
	UserID        string    `json:"user_id"`
	Venue         Venue     `json:"venue"`
	OutcomeID     string    `json:"outcome_id"`
	MarketID      string    `json:"market_id"`
	Status        string    `json:"status"`
	TriggeredAt   time.Time `json:"triggered_at"`
	LastPrice     float64   `json:"last_price"`
	LastError     string    `json:"last_error,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Notification is a structured outbound message. The core never renders
// prose beyond Text; delivery formatting belongs to the channel transport.
type Notification struct {
	Channel Channel `json:"channel"`
	ChatID  string  `json:"chat_id"`
	Text    string  `json:"text"`
}

// Package models defines the persisted entities shared across Vigil services.
package models

import "time"

// Venue identifies a trading venue (polymarket, kalshi, ...). It shares a
// string representation with Channel in persisted rows but the two are
// distinct types so a venue name can never be routed as a chat channel.
type Venue string

const (
	VenuePolymarket  Venue = "polymarket"
	VenueKalshi      Venue = "kalshi"
	VenueManifold    Venue = "manifold"
	VenueMetaculus   Venue = "metaculus"
	VenueHyperliquid Venue = "hyperliquid"
	VenueBinance     Venue = "binance"
	VenueBybit       Venue = "bybit"
	VenueMEXC        Venue = "mexc"
)

// Channel identifies a chat/notification transport (telegram, discord, ...).
type Channel string

// UserSettings holds per-user behaviour toggles.
type UserSettings struct {
	AlertsEnabled bool    `json:"alerts_enabled"`
	DigestEnabled bool    `json:"digest_enabled"`
	DigestTime    string  `json:"digest_time"` // "HH:MM" UTC
	StopLossPct   float64 `json:"stop_loss_pct"`
}

// User is a platform account. (Platform, PlatformUserID) is unique.
type User struct {
	ID             string       `json:"id"`
	Platform       Channel      `json:"platform"`
	PlatformUserID string       `json:"platform_user_id"`
	Settings       UserSettings `json:"settings"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Session records the most recent routing target for a user on a channel.
type Session struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	UserID       string    `json:"user_id"`
	Channel      Channel   `json:"channel"`
	ChatID       string    `json:"chat_id"`
	LastActivity time.Time `json:"last_activity"`
}

// Credential links a user to a venue account. Secrets are opaque to the
// core; adapters interpret them.
type Credential struct {
	UserID      string            `json:"user_id"`
	Venue       Venue             `json:"venue"`
	Enabled     bool              `json:"enabled"`
	Secrets     map[string]string `json:"secrets"`
	LastSuccess time.Time         `json:"last_success"`
	LastFailure time.Time         `json:"last_failure"`
	LastError   string            `json:"last_error,omitempty"`
}

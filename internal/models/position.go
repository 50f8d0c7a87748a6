package models

import "time"

// Position sides. YES/NO for outcome markets, LONG/SHORT for perps.
const (
	SideYes   = "YES"
	SideNo    = "NO"
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Position is a normalized holding on a venue. Value and PnL are maintained
// by the normalization step: value = shares*currentPrice and
// pnl = shares*(currentPrice-avgPrice) for long-equivalent sides.
type Position struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Venue        Venue     `json:"venue"`
	MarketID     string    `json:"market_id"`
	OutcomeID    string    `json:"outcome_id"`
	MarketTitle  string    `json:"market_title,omitempty"`
	Side         string    `json:"side"`
	Shares       float64   `json:"shares"`
	AvgPrice     float64   `json:"avg_price"`
	CurrentPrice float64   `json:"current_price"`
	PnL          float64   `json:"pnl"`
	PnLPct       float64   `json:"pnl_pct"`
	Value        float64   `json:"value"`
	OpenedAt     time.Time `json:"opened_at"`
}

// CostBasis returns shares * avgPrice.
func (p *Position) CostBasis() float64 {
	return p.Shares * p.AvgPrice
}

// VenueTotals aggregates value and pnl for one venue inside a snapshot.
type VenueTotals struct {
	Value float64 `json:"value"`
	PnL   float64 `json:"pnl"`
}

// PortfolioSnapshot is an append-only record of a user's portfolio at a
// point in time.
type PortfolioSnapshot struct {
	UserID         string                `json:"user_id"`
	Timestamp      time.Time             `json:"timestamp"`
	TotalValue     float64               `json:"total_value"`
	TotalPnL       float64               `json:"total_pnl"`
	TotalPnLPct    float64               `json:"total_pnl_pct"`
	TotalCostBasis float64               `json:"total_cost_basis"`
	PositionsCount int                   `json:"positions_count"`
	ByVenue        map[Venue]VenueTotals `json:"by_venue"`
}

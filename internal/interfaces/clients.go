package interfaces

import (
	"context"

	"github.com/drewfallon/vigil/internal/models"
)

// MarketPage is one page of a venue's market listing during index ingestion.
type MarketPage struct {
	Entries []*models.IndexEntry
	HasMore bool
}

// MarketListQuery selects a page of a venue listing.
type MarketListQuery struct {
	Status string // "open", "closed", "settled", "all"
	Limit  int
	Offset int
	Cursor string // cursor-paged venues (kalshi, metaculus)
}

// VenueAdapter is the uniform read interface over a trading venue. All HTTP
// goes through the shared fabric; adapters only translate shapes.
type VenueAdapter interface {
	Venue() models.Venue
	ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error)
	GetMarket(ctx context.Context, marketID string) (*models.Market, error)
	ListMarkets(ctx context.Context, q MarketListQuery) (*MarketPage, error)
}

// SellOrder describes a market-sell hand-off. SizeOrAll < 0 means the whole
// position.
type SellOrder struct {
	MarketID  string
	OutcomeID string
	SizeOrAll float64
}

// SellResult carries the venue's acknowledgement of an executed sell.
type SellResult struct {
	Signature string
	TxID      string
}

// ExecutionAdapter executes stop-loss sells on venues that support it
// (polymarket, kalshi, manifold). Perp venues are read-only in the core.
type ExecutionAdapter interface {
	Venue() models.Venue
	SellPosition(ctx context.Context, creds *models.Credential, order SellOrder) (*SellResult, error)
}

// Embedder produces embedding vectors for index entries and search queries.
// All vectors from one Embedder share a dimension.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// MessageSender delivers a rendered notification on a chat channel. The core
// provides structured text; transports own formatting.
type MessageSender interface {
	SendMessage(ctx context.Context, channel models.Channel, chatID, text string) error
}

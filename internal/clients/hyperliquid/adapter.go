// Package hyperliquid adapts the Hyperliquid info API to the uniform venue
// interfaces. The venue is read-only in the core: perp positions and mark
// prices, no execution.
package hyperliquid

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Adapter implements interfaces.VenueAdapter for Hyperliquid.
type Adapter struct {
	baseURL string
	fabric  *httpx.Fabric
	logger  *common.Logger
	clock   common.Clock
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithClock sets the clock used for fetch timestamps.
func WithClock(clock common.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New creates a Hyperliquid adapter.
func New(fabric *httpx.Fabric, opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: DefaultBaseURL,
		fabric:  fabric,
		logger:  common.NewSilentLogger(),
		clock:   common.SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Venue() models.Venue { return models.VenueHyperliquid }

// info issues one POST /info query. The endpoint is a read API keyed by the
// "type" field in the body.
func (a *Adapter) info(ctx context.Context, body map[string]any, result any) error {
	_, err := a.fabric.Do(ctx, http.MethodPost, a.baseURL+"/info", &httpx.Request{
		Body:   body,
		Result: result,
	})
	return err
}

type rawAssetPosition struct {
	Position struct {
		Coin           string `json:"coin"`
		Szi            string `json:"szi"`
		EntryPx        string `json:"entryPx"`
		PositionValue  string `json:"positionValue"`
		UnrealizedPnl  string `json:"unrealizedPnl"`
		ReturnOnEquity string `json:"returnOnEquity"`
	} `json:"position"`
}

func (a *Adapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	addr := creds.Secrets["wallet_address"]
	if addr == "" {
		return nil, fmt.Errorf("hyperliquid credential missing wallet_address")
	}

	var state struct {
		AssetPositions []rawAssetPosition `json:"assetPositions"`
	}
	if err := a.info(ctx, map[string]any{"type": "clearinghouseState", "user": addr}, &state); err != nil {
		return nil, fmt.Errorf("list hyperliquid positions: %w", err)
	}

	var positions []*models.Position
	for _, r := range state.AssetPositions {
		szi, _ := strconv.ParseFloat(r.Position.Szi, 64)
		if szi == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.Position.EntryPx, 64)
		upnl, _ := strconv.ParseFloat(r.Position.UnrealizedPnl, 64)

		side := models.SideLong
		size := szi
		if szi < 0 {
			side = models.SideShort
			size = -szi
		}
		// Mark price reconstructed from entry and unrealized pnl.
		cur := entry
		if size > 0 {
			cur = entry + upnl/szi
		}
		positions = append(positions, &models.Position{
			UserID:       creds.UserID,
			Venue:        models.VenueHyperliquid,
			MarketID:     r.Position.Coin,
			OutcomeID:    r.Position.Coin,
			MarketTitle:  r.Position.Coin + " perpetual",
			Side:         side,
			Shares:       size,
			AvgPrice:     entry,
			CurrentPrice: cur,
			Value:        size * cur,
			PnL:          upnl,
			PnLPct:       pnlPct(entry, cur, side),
		})
	}
	return positions, nil
}

func pnlPct(entry, cur float64, side string) float64 {
	if entry == 0 {
		return 0
	}
	pct := (cur - entry) / entry * 100
	if side == models.SideShort {
		return -pct
	}
	return pct
}

func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var mids map[string]string
	if err := a.info(ctx, map[string]any{"type": "allMids"}, &mids); err != nil {
		return nil, fmt.Errorf("get hyperliquid mids: %w", err)
	}

	mid, ok := mids[marketID]
	if !ok {
		return nil, fmt.Errorf("hyperliquid market %s not listed", marketID)
	}
	price, err := strconv.ParseFloat(mid, 64)
	if err != nil {
		return nil, fmt.Errorf("parse hyperliquid mid for %s: %w", marketID, err)
	}

	return &models.Market{
		Venue:    models.VenueHyperliquid,
		MarketID: marketID,
		Question: marketID + " perpetual",
		Outcomes: []models.Outcome{
			{ID: marketID, Name: marketID, Price: price},
		},
		FetchedAt: a.clock.Now().UTC(),
	}, nil
}

// ListMarkets lists the perp universe with open interest and 24h volume from
// the paired asset contexts. The listing is small enough to be one page.
func (a *Adapter) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	if q.Offset > 0 {
		return &interfaces.MarketPage{}, nil
	}

	type universeEntry struct {
		Name       string `json:"name"`
		IsDelisted bool   `json:"isDelisted"`
	}
	type assetCtx struct {
		MarkPx       string `json:"markPx"`
		OpenInterest string `json:"openInterest"`
		DayNtlVlm    string `json:"dayNtlVlm"`
	}

	var raw []any
	if err := a.info(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, fmt.Errorf("list hyperliquid markets: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("hyperliquid metaAndAssetCtxs: unexpected shape")
	}

	var meta struct {
		Universe []universeEntry `json:"universe"`
	}
	var ctxs []assetCtx
	if err := remarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid meta: %w", err)
	}
	if err := remarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid asset contexts: %w", err)
	}

	var entries []*models.IndexEntry
	for i, u := range meta.Universe {
		if u.IsDelisted {
			continue
		}
		var oi, vol float64
		if i < len(ctxs) {
			oi, _ = strconv.ParseFloat(ctxs[i].OpenInterest, 64)
			vol, _ = strconv.ParseFloat(ctxs[i].DayNtlVlm, 64)
		}
		entries = append(entries, &models.IndexEntry{
			Venue:        models.VenueHyperliquid,
			MarketID:     u.Name,
			Slug:         strings.ToLower(u.Name),
			Question:     u.Name + " perpetual",
			OutcomesJSON: `["` + u.Name + `"]`,
			Status:       "open",
			URL:          "https://app.hyperliquid.xyz/trade/" + u.Name,
			Volume24h:    vol,
			OpenInterest: oi,
		})
	}
	return &interfaces.MarketPage{Entries: entries}, nil
}

// Compile-time check
var _ interfaces.VenueAdapter = (*Adapter)(nil)

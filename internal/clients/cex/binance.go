package cex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const DefaultBinanceBaseURL = "https://fapi.binance.com"

// Binance implements interfaces.VenueAdapter for Binance USDT-M futures.
type Binance struct {
	baseURL string
	fabric  *httpx.Fabric
	logger  *common.Logger
	clock   common.Clock
}

// BinanceOption configures the adapter.
type BinanceOption func(*Binance)

// WithBinanceBaseURL overrides the API base URL.
func WithBinanceBaseURL(u string) BinanceOption {
	return func(b *Binance) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithBinanceLogger sets the logger.
func WithBinanceLogger(logger *common.Logger) BinanceOption {
	return func(b *Binance) { b.logger = logger }
}

// WithBinanceClock sets the clock used for request timestamps.
func WithBinanceClock(clock common.Clock) BinanceOption {
	return func(b *Binance) { b.clock = clock }
}

// NewBinance creates a Binance futures adapter.
func NewBinance(fabric *httpx.Fabric, opts ...BinanceOption) *Binance {
	b := &Binance{
		baseURL: DefaultBinanceBaseURL,
		fabric:  fabric,
		logger:  common.NewSilentLogger(),
		clock:   common.SystemClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Binance) Venue() models.Venue { return models.VenueBinance }

// signedQuery appends the timestamp and HMAC signature the private
// endpoints require.
func (b *Binance) signedQuery(params url.Values, secret string) string {
	params.Set("timestamp", strconv.FormatInt(b.clock.Now().UnixMilli(), 10))
	query := params.Encode()
	return query + "&signature=" + hmacHex(secret, query)
}

type binancePosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
}

func (b *Binance) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	apiKey := creds.Secrets["api_key"]
	secret := creds.Secrets["api_secret"]
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("binance credential missing api_key/api_secret")
	}

	var raw []binancePosition
	reqURL := b.baseURL + "/fapi/v2/positionRisk?" + b.signedQuery(url.Values{}, secret)
	_, err := b.fabric.Do(ctx, http.MethodGet, reqURL, &httpx.Request{
		Headers: map[string]string{"X-MBX-APIKEY": apiKey},
		Result:  &raw,
	})
	if err != nil {
		return nil, fmt.Errorf("list binance positions: %w", err)
	}

	var positions []*models.Position
	for _, r := range raw {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		upnl, _ := strconv.ParseFloat(r.UnrealizedProfit, 64)
		positions = append(positions, perpPosition(creds.UserID, models.VenueBinance, r.Symbol, amt, entry, upnl))
	}
	return positions, nil
}

func (b *Binance) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var result struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
	}
	reqURL := b.baseURL + "/fapi/v1/premiumIndex?symbol=" + url.QueryEscape(marketID)
	if err := b.fabric.Get(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("get binance mark price %s: %w", marketID, err)
	}

	price, err := strconv.ParseFloat(result.MarkPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse binance mark price for %s: %w", marketID, err)
	}
	return perpMarket(models.VenueBinance, marketID, price), nil
}

func (b *Binance) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	if q.Offset > 0 {
		return &interfaces.MarketPage{}, nil
	}

	var tickers []struct {
		Symbol      string `json:"symbol"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := b.fabric.Get(ctx, b.baseURL+"/fapi/v1/ticker/24hr", &tickers); err != nil {
		return nil, fmt.Errorf("list binance tickers: %w", err)
	}

	var entries []*models.IndexEntry
	for _, t := range tickers {
		vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		entries = append(entries, perpEntry(models.VenueBinance, t.Symbol, vol, 0,
			"https://www.binance.com/en/futures/"+t.Symbol))
	}
	return &interfaces.MarketPage{Entries: entries}, nil
}

// perpPosition normalizes a signed perp size to the canonical shape.
// currentPrice is reconstructed as entry + upnl/size.
func perpPosition(userID string, venue models.Venue, symbol string, signedSize, entry, upnl float64) *models.Position {
	side := models.SideLong
	size := signedSize
	if signedSize < 0 {
		side = models.SideShort
		size = -signedSize
	}
	cur := entry
	if size > 0 {
		cur = entry + upnl/signedSize
	}
	pct := 0.0
	if entry != 0 {
		pct = (cur - entry) / entry * 100
		if side == models.SideShort {
			pct = -pct
		}
	}
	return &models.Position{
		UserID:       userID,
		Venue:        venue,
		MarketID:     symbol,
		OutcomeID:    symbol,
		MarketTitle:  symbol + " perpetual",
		Side:         side,
		Shares:       size,
		AvgPrice:     entry,
		CurrentPrice: cur,
		Value:        size * cur,
		PnL:          upnl,
		PnLPct:       pct,
	}
}

func perpMarket(venue models.Venue, symbol string, price float64) *models.Market {
	return &models.Market{
		Venue:    venue,
		MarketID: symbol,
		Question: symbol + " perpetual",
		Outcomes: []models.Outcome{
			{ID: symbol, Name: symbol, Price: price},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func perpEntry(venue models.Venue, symbol string, volume, openInterest float64, pageURL string) *models.IndexEntry {
	return &models.IndexEntry{
		Venue:        venue,
		MarketID:     symbol,
		Slug:         strings.ToLower(symbol),
		Question:     symbol + " perpetual",
		OutcomesJSON: `["` + symbol + `"]`,
		Status:       "open",
		URL:          pageURL,
		Volume24h:    volume,
		OpenInterest: openInterest,
	}
}

// Compile-time check
var _ interfaces.VenueAdapter = (*Binance)(nil)

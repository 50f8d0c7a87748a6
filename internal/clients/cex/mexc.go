package cex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const DefaultMEXCBaseURL = "https://contract.mexc.com"

// MEXC implements interfaces.VenueAdapter for MEXC contract (perp) markets.
type MEXC struct {
	baseURL string
	fabric  *httpx.Fabric
	logger  *common.Logger
	clock   common.Clock
}

// MEXCOption configures the adapter.
type MEXCOption func(*MEXC)

// WithMEXCBaseURL overrides the API base URL.
func WithMEXCBaseURL(u string) MEXCOption {
	return func(m *MEXC) { m.baseURL = strings.TrimRight(u, "/") }
}

// WithMEXCLogger sets the logger.
func WithMEXCLogger(logger *common.Logger) MEXCOption {
	return func(m *MEXC) { m.logger = logger }
}

// WithMEXCClock sets the clock used for request timestamps.
func WithMEXCClock(clock common.Clock) MEXCOption {
	return func(m *MEXC) { m.clock = clock }
}

// NewMEXC creates a MEXC contract adapter.
func NewMEXC(fabric *httpx.Fabric, opts ...MEXCOption) *MEXC {
	m := &MEXC{
		baseURL: DefaultMEXCBaseURL,
		fabric:  fabric,
		logger:  common.NewSilentLogger(),
		clock:   common.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MEXC) Venue() models.Venue { return models.VenueMEXC }

// authHeaders builds the contract API signature headers: HMAC over
// accessKey + timestamp + queryString.
func (m *MEXC) authHeaders(apiKey, secret, query string) map[string]string {
	timestamp := strconv.FormatInt(m.clock.Now().UnixMilli(), 10)
	return map[string]string{
		"ApiKey":       apiKey,
		"Request-Time": timestamp,
		"Signature":    hmacHex(secret, apiKey+timestamp+query),
		"Content-Type": "application/json",
	}
}

type mexcPosition struct {
	Symbol       string  `json:"symbol"`
	PositionType int     `json:"positionType"` // 1 long, 2 short
	HoldVol      float64 `json:"holdVol"`
	HoldAvgPrice float64 `json:"holdAvgPrice"`
	Realised     float64 `json:"realised"`
}

func (m *MEXC) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	apiKey := creds.Secrets["api_key"]
	secret := creds.Secrets["api_secret"]
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("mexc credential missing api_key/api_secret")
	}

	var result struct {
		Success bool           `json:"success"`
		Code    int            `json:"code"`
		Data    []mexcPosition `json:"data"`
	}
	_, err := m.fabric.Do(ctx, http.MethodGet, m.baseURL+"/api/v1/private/position/open_positions", &httpx.Request{
		Headers: m.authHeaders(apiKey, secret, ""),
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("list mexc positions: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("mexc position list failed (code %d)", result.Code)
	}

	var positions []*models.Position
	for _, r := range result.Data {
		if r.HoldVol == 0 {
			continue
		}
		// The positions payload has no mark price; fetch it per symbol.
		cur := r.HoldAvgPrice
		if market, err := m.GetMarket(ctx, r.Symbol); err == nil && len(market.Outcomes) > 0 {
			cur = market.Outcomes[0].Price
		} else if err != nil {
			m.logger.Warn().Err(err).Str("symbol", r.Symbol).Msg("mexc mark price unavailable, using entry")
		}

		signed := r.HoldVol
		if r.PositionType == 2 {
			signed = -r.HoldVol
		}
		upnl := (cur - r.HoldAvgPrice) * signed
		positions = append(positions, perpPosition(creds.UserID, models.VenueMEXC, r.Symbol, signed, r.HoldAvgPrice, upnl))
	}
	return positions, nil
}

type mexcTicker struct {
	Symbol       string  `json:"symbol"`
	LastPrice    float64 `json:"lastPrice"`
	Amount24     float64 `json:"amount24"`
	HoldVol      float64 `json:"holdVol"`
	FairPrice    float64 `json:"fairPrice"`
	RiseFallRate float64 `json:"riseFallRate"`
}

func (m *MEXC) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var result struct {
		Success bool       `json:"success"`
		Data    mexcTicker `json:"data"`
	}
	reqURL := m.baseURL + "/api/v1/contract/ticker?symbol=" + url.QueryEscape(marketID)
	if err := m.fabric.Get(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("get mexc ticker %s: %w", marketID, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("mexc market %s not listed", marketID)
	}

	price := result.Data.FairPrice
	if price == 0 {
		price = result.Data.LastPrice
	}
	return perpMarket(models.VenueMEXC, marketID, price), nil
}

func (m *MEXC) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	if q.Offset > 0 {
		return &interfaces.MarketPage{}, nil
	}

	var result struct {
		Success bool         `json:"success"`
		Data    []mexcTicker `json:"data"`
	}
	if err := m.fabric.Get(ctx, m.baseURL+"/api/v1/contract/ticker", &result); err != nil {
		return nil, fmt.Errorf("list mexc tickers: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("mexc ticker list failed")
	}

	var entries []*models.IndexEntry
	for _, t := range result.Data {
		entries = append(entries, perpEntry(models.VenueMEXC, t.Symbol, t.Amount24, t.HoldVol,
			"https://www.mexc.com/futures/"+t.Symbol))
	}
	return &interfaces.MarketPage{Entries: entries}, nil
}

// Compile-time check
var _ interfaces.VenueAdapter = (*MEXC)(nil)

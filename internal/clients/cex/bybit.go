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

const (
	DefaultBybitBaseURL = "https://api.bybit.com"

	bybitRecvWindow = "5000"
)

// Bybit implements interfaces.VenueAdapter for Bybit v5 linear perps.
type Bybit struct {
	baseURL string
	fabric  *httpx.Fabric
	logger  *common.Logger
	clock   common.Clock
}

// BybitOption configures the adapter.
type BybitOption func(*Bybit)

// WithBybitBaseURL overrides the API base URL.
func WithBybitBaseURL(u string) BybitOption {
	return func(b *Bybit) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithBybitLogger sets the logger.
func WithBybitLogger(logger *common.Logger) BybitOption {
	return func(b *Bybit) { b.logger = logger }
}

// WithBybitClock sets the clock used for request timestamps.
func WithBybitClock(clock common.Clock) BybitOption {
	return func(b *Bybit) { b.clock = clock }
}

// NewBybit creates a Bybit adapter.
func NewBybit(fabric *httpx.Fabric, opts ...BybitOption) *Bybit {
	b := &Bybit{
		baseURL: DefaultBybitBaseURL,
		fabric:  fabric,
		logger:  common.NewSilentLogger(),
		clock:   common.SystemClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bybit) Venue() models.Venue { return models.VenueBybit }

// authHeaders builds the v5 signature headers: HMAC over
// timestamp + apiKey + recvWindow + queryString.
func (b *Bybit) authHeaders(apiKey, secret, query string) map[string]string {
	timestamp := strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
	sign := hmacHex(secret, timestamp+apiKey+bybitRecvWindow+query)
	return map[string]string{
		"X-BAPI-API-KEY":     apiKey,
		"X-BAPI-TIMESTAMP":   timestamp,
		"X-BAPI-RECV-WINDOW": bybitRecvWindow,
		"X-BAPI-SIGN":        sign,
	}
}

type bybitPosition struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"` // "Buy" or "Sell"
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

func (b *Bybit) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	apiKey := creds.Secrets["api_key"]
	secret := creds.Secrets["api_secret"]
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("bybit credential missing api_key/api_secret")
	}

	params := url.Values{}
	params.Set("category", "linear")
	params.Set("settleCoin", "USDT")
	query := params.Encode()

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []bybitPosition `json:"list"`
		} `json:"result"`
	}
	_, err := b.fabric.Do(ctx, http.MethodGet, b.baseURL+"/v5/position/list?"+query, &httpx.Request{
		Headers: b.authHeaders(apiKey, secret, query),
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("list bybit positions: %w", err)
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit position list: %s (code %d)", result.RetMsg, result.RetCode)
	}

	var positions []*models.Position
	for _, r := range result.Result.List {
		size, _ := strconv.ParseFloat(r.Size, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.AvgPrice, 64)
		upnl, _ := strconv.ParseFloat(r.UnrealisedPnl, 64)
		signed := size
		if strings.EqualFold(r.Side, "Sell") {
			signed = -size
		}
		positions = append(positions, perpPosition(creds.UserID, models.VenueBybit, r.Symbol, signed, entry, upnl))
	}
	return positions, nil
}

type bybitTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Turnover24h  string `json:"turnover24h"`
	OpenInterest string `json:"openInterest"`
}

func (b *Bybit) tickers(ctx context.Context, symbol string) ([]bybitTicker, error) {
	params := url.Values{}
	params.Set("category", "linear")
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []bybitTicker `json:"list"`
		} `json:"result"`
	}
	if err := b.fabric.Get(ctx, b.baseURL+"/v5/market/tickers?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit tickers: %s (code %d)", result.RetMsg, result.RetCode)
	}
	return result.Result.List, nil
}

func (b *Bybit) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	list, err := b.tickers(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("get bybit market %s: %w", marketID, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("bybit market %s not listed", marketID)
	}

	price, err := strconv.ParseFloat(list[0].LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse bybit price for %s: %w", marketID, err)
	}
	return perpMarket(models.VenueBybit, marketID, price), nil
}

func (b *Bybit) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	if q.Offset > 0 {
		return &interfaces.MarketPage{}, nil
	}

	list, err := b.tickers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list bybit markets: %w", err)
	}

	var entries []*models.IndexEntry
	for _, t := range list {
		vol, _ := strconv.ParseFloat(t.Turnover24h, 64)
		oi, _ := strconv.ParseFloat(t.OpenInterest, 64)
		entries = append(entries, perpEntry(models.VenueBybit, t.Symbol, vol, oi,
			"https://www.bybit.com/trade/usdt/"+t.Symbol))
	}
	return &interfaces.MarketPage{Entries: entries}, nil
}

// Compile-time check
var _ interfaces.VenueAdapter = (*Bybit)(nil)

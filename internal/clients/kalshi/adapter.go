// Package kalshi adapts the Kalshi trade API to the uniform venue
// interfaces. Kalshi quotes prices in cents in some payloads and fractions
// in others; everything leaving this package is a fraction in [0,1].
package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const (
	DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	pageSize = 100
)

// Adapter implements interfaces.VenueAdapter and interfaces.ExecutionAdapter
// for Kalshi.
type Adapter struct {
	baseURL string
	fabric  *httpx.Fabric
	logger  *common.Logger
	clock   common.Clock

	mu     sync.Mutex
	tokens map[string]string // userID -> session token
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

// New creates a Kalshi adapter.
func New(fabric *httpx.Fabric, opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: DefaultBaseURL,
		fabric:  fabric,
		logger:  common.NewSilentLogger(),
		clock:   common.SystemClock{},
		tokens:  map[string]string{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Venue() models.Venue { return models.VenueKalshi }

// normalizePrice maps Kalshi's mixed price encodings to a fraction:
// values ≤ 1 are already fractional, anything larger is percent (cents).
func normalizePrice(p float64) float64 {
	if p <= 1 {
		return p
	}
	return p / 100
}

// authHeaders returns either API-key headers or a cached session token from
// POST /login, depending on which secrets the credential carries.
func (a *Adapter) authHeaders(ctx context.Context, creds *models.Credential) (map[string]string, error) {
	if key := creds.Secrets["api_key"]; key != "" {
		return map[string]string{"Authorization": "Bearer " + key}, nil
	}

	email := creds.Secrets["email"]
	password := creds.Secrets["password"]
	if email == "" || password == "" {
		return nil, fmt.Errorf("kalshi credential missing api_key or email/password")
	}

	a.mu.Lock()
	token := a.tokens[creds.UserID]
	a.mu.Unlock()
	if token != "" {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}

	var result struct {
		Token string `json:"token"`
	}
	_, err := a.fabric.Do(ctx, http.MethodPost, a.baseURL+"/login", &httpx.Request{
		Body:   map[string]string{"email": email, "password": password},
		Result: &result,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi login: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("kalshi login returned empty token")
	}

	a.mu.Lock()
	a.tokens[creds.UserID] = result.Token
	a.mu.Unlock()
	return map[string]string{"Authorization": "Bearer " + result.Token}, nil
}

type rawMarketPosition struct {
	Ticker           string  `json:"ticker"`
	Position         float64 `json:"position"` // contracts; negative = NO side
	MarketExposure   float64 `json:"market_exposure"`
	AvgPrice         float64 `json:"average_price"`
	LastPrice        float64 `json:"last_price"`
	TotalTradedCents float64 `json:"total_traded"`
}

func (a *Adapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	headers, err := a.authHeaders(ctx, creds)
	if err != nil {
		return nil, err
	}

	var result struct {
		MarketPositions []rawMarketPosition `json:"market_positions"`
	}
	_, err = a.fabric.Do(ctx, http.MethodGet, a.baseURL+"/portfolio/positions", &httpx.Request{
		Headers: headers,
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("list kalshi positions: %w", err)
	}

	positions := make([]*models.Position, 0, len(result.MarketPositions))
	for _, r := range result.MarketPositions {
		if r.Position == 0 {
			continue
		}
		side := models.SideYes
		shares := r.Position
		if shares < 0 {
			side = models.SideNo
			shares = -shares
		}
		avg := normalizePrice(r.AvgPrice)
		cur := normalizePrice(r.LastPrice)
		positions = append(positions, &models.Position{
			UserID:       creds.UserID,
			Venue:        models.VenueKalshi,
			MarketID:     r.Ticker,
			OutcomeID:    r.Ticker,
			MarketTitle:  r.Ticker,
			Side:         side,
			Shares:       shares,
			AvgPrice:     avg,
			CurrentPrice: cur,
			Value:        shares * cur,
			PnL:          shares * (cur - avg),
			PnLPct:       pnlPct(avg, cur),
		})
	}
	return positions, nil
}

func pnlPct(avg, cur float64) float64 {
	if avg == 0 {
		return 0
	}
	return (cur - avg) / avg * 100
}

type rawMarket struct {
	Ticker     string  `json:"ticker"`
	EventTick  string  `json:"event_ticker"`
	Title      string  `json:"title"`
	Subtitle   string  `json:"subtitle"`
	Status     string  `json:"status"`
	YesBid     float64 `json:"yes_bid"`
	YesAsk     float64 `json:"yes_ask"`
	LastPrice  float64 `json:"last_price"`
	PrevPrice  float64 `json:"previous_price"`
	Volume24h  float64 `json:"volume_24h"`
	Liquidity  float64 `json:"liquidity"`
	OpenInt    float64 `json:"open_interest"`
	CloseTime  string  `json:"close_time"`
	Result     string  `json:"result"`
	Category   string  `json:"category"`
	RulesShort string  `json:"rules_primary"`
}

func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var result struct {
		Market rawMarket `json:"market"`
	}
	reqURL := a.baseURL + "/markets/" + url.PathEscape(marketID)
	if err := a.fabric.Get(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("get kalshi market %s: %w", marketID, err)
	}

	m := result.Market
	yes := normalizePrice(m.LastPrice)
	outcomes := []models.Outcome{
		{ID: m.Ticker, Name: "Yes", Price: yes},
		{ID: m.Ticker + ":no", Name: "No", Price: 1 - yes},
	}
	if m.PrevPrice != 0 {
		prev := normalizePrice(m.PrevPrice)
		outcomes[0].PreviousPrice = &prev
	}
	return &models.Market{
		Venue:     models.VenueKalshi,
		MarketID:  marketID,
		Question:  m.Title,
		Outcomes:  outcomes,
		Volume24h: m.Volume24h,
		FetchedAt: a.clock.Now().UTC(),
	}, nil
}

func (a *Adapter) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = pageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	switch q.Status {
	case "open":
		params.Set("status", "open")
	case "closed":
		params.Set("status", "closed")
	case "settled":
		params.Set("status", "settled")
	}

	var result struct {
		Markets []rawMarket `json:"markets"`
		Cursor  string      `json:"cursor"`
	}
	if err := a.fabric.Get(ctx, a.baseURL+"/markets?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("list kalshi markets: %w", err)
	}

	entries := make([]*models.IndexEntry, 0, len(result.Markets))
	for _, m := range result.Markets {
		resolved := m.Status == "settled" || m.Result != ""
		tagsJSON := ""
		if m.Category != "" {
			tagsJSON = `["` + m.Category + `"]`
		}
		entries = append(entries, &models.IndexEntry{
			Venue:        models.VenueKalshi,
			MarketID:     m.Ticker,
			Slug:         strings.ToLower(m.Ticker),
			Question:     m.Title,
			Description:  m.RulesShort,
			OutcomesJSON: `["Yes","No"]`,
			TagsJSON:     tagsJSON,
			Status:       m.Status,
			URL:          "https://kalshi.com/markets/" + strings.ToLower(m.EventTick),
			EndDate:      m.CloseTime,
			Resolved:     resolved,
			Volume24h:    m.Volume24h,
			Liquidity:    m.Liquidity,
			OpenInterest: m.OpenInt,
		})
	}
	return &interfaces.MarketPage{
		Entries: entries,
		HasMore: result.Cursor != "",
	}, nil
}

// SellPosition flattens a position with a market order on the opposite side
// of whatever the user holds; Kalshi sells are expressed as an explicit
// action on the held side.
func (a *Adapter) SellPosition(ctx context.Context, creds *models.Credential, order interfaces.SellOrder) (*interfaces.SellResult, error) {
	headers, err := a.authHeaders(ctx, creds)
	if err != nil {
		return nil, err
	}

	// The held side determines the order side, so the position is always
	// resolved first.
	positions, err := a.ListPositions(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("resolve kalshi position: %w", err)
	}
	side := ""
	held := 0
	for _, p := range positions {
		if p.MarketID == order.MarketID {
			side = strings.ToLower(p.Side)
			held = int(p.Shares)
			break
		}
	}
	if side == "" || held == 0 {
		return nil, fmt.Errorf("kalshi sell: no position in %s", order.MarketID)
	}

	count := held
	if order.SizeOrAll >= 0 && int(order.SizeOrAll) < held {
		count = int(order.SizeOrAll)
	}

	body := map[string]any{
		"ticker": order.MarketID,
		"action": "sell",
		"side":   side,
		"type":   "market",
		"count":  count,
	}
	var result struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
	}
	_, err = a.fabric.Do(ctx, http.MethodPost, a.baseURL+"/portfolio/orders", &httpx.Request{
		Headers: headers,
		Body:    body,
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi sell: %w", err)
	}
	return &interfaces.SellResult{TxID: result.Order.OrderID}, nil
}

// Compile-time checks
var (
	_ interfaces.VenueAdapter     = (*Adapter)(nil)
	_ interfaces.ExecutionAdapter = (*Adapter)(nil)
)

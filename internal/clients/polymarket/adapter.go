// Package polymarket adapts the Polymarket data and gamma APIs to the
// uniform venue interfaces. Positions come from the data API, the market
// catalog from gamma events, and market sells go to the CLOB.
package polymarket

import (
	"context"
	"encoding/json"
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
	DefaultDataURL  = "https://data-api.polymarket.com"
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultCLOBURL  = "https://clob.polymarket.com"

	pageSize = 100
)

// Adapter implements interfaces.VenueAdapter and interfaces.ExecutionAdapter
// for Polymarket.
type Adapter struct {
	dataURL  string
	gammaURL string
	clobURL  string
	fabric   *httpx.Fabric
	logger   *common.Logger
	clock    common.Clock
}

// Option configures the adapter.
type Option func(*Adapter)

// WithDataURL overrides the data API base URL.
func WithDataURL(u string) Option {
	return func(a *Adapter) { a.dataURL = strings.TrimRight(u, "/") }
}

// WithGammaURL overrides the gamma API base URL.
func WithGammaURL(u string) Option {
	return func(a *Adapter) { a.gammaURL = strings.TrimRight(u, "/") }
}

// WithCLOBURL overrides the CLOB base URL.
func WithCLOBURL(u string) Option {
	return func(a *Adapter) { a.clobURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithClock sets the clock used for fetch timestamps and request signing.
func WithClock(clock common.Clock) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New creates a Polymarket adapter. All requests go through the fabric.
func New(fabric *httpx.Fabric, opts ...Option) *Adapter {
	a := &Adapter{
		dataURL:  DefaultDataURL,
		gammaURL: DefaultGammaURL,
		clobURL:  DefaultCLOBURL,
		fabric:   fabric,
		logger:   common.NewSilentLogger(),
		clock:    common.SystemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Venue() models.Venue { return models.VenuePolymarket }

// rawPosition is the data API position shape. Discarded after normalization.
type rawPosition struct {
	Asset       string  `json:"asset"`
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CurPrice    float64 `json:"curPrice"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
}

func (a *Adapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	addr := creds.Secrets["wallet_address"]
	if addr == "" {
		return nil, fmt.Errorf("polymarket credential missing wallet_address")
	}

	var raw []rawPosition
	reqURL := a.dataURL + "/positions?user=" + url.QueryEscape(addr)
	if err := a.fabric.Get(ctx, reqURL, &raw); err != nil {
		return nil, fmt.Errorf("list polymarket positions: %w", err)
	}

	positions := make([]*models.Position, 0, len(raw))
	for _, r := range raw {
		if r.Size == 0 {
			continue
		}
		side := models.SideYes
		if strings.Contains(strings.ToUpper(r.Outcome), "NO") {
			side = models.SideNo
		}
		positions = append(positions, &models.Position{
			UserID:       creds.UserID,
			Venue:        models.VenuePolymarket,
			MarketID:     r.ConditionID,
			OutcomeID:    r.Asset,
			MarketTitle:  r.Title,
			Side:         side,
			Shares:       r.Size,
			AvgPrice:     r.AvgPrice,
			CurrentPrice: r.CurPrice,
			Value:        r.Size * r.CurPrice,
			PnL:          r.Size * (r.CurPrice - r.AvgPrice),
			PnLPct:       pnlPct(r.AvgPrice, r.CurPrice),
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

// gammaMarket is the gamma API market shape. Outcomes, prices, and token ids
// arrive as JSON-encoded strings.
type gammaMarket struct {
	ID                  string  `json:"id"`
	ConditionID         string  `json:"conditionId"`
	Question            string  `json:"question"`
	Slug                string  `json:"slug"`
	Description         string  `json:"description"`
	Outcomes            string  `json:"outcomes"`
	OutcomePrices       string  `json:"outcomePrices"`
	ClobTokenIDs        string  `json:"clobTokenIds"`
	Volume24hr          float64 `json:"volume24hr"`
	Liquidity           string  `json:"liquidity"`
	EndDate             string  `json:"endDate"`
	Closed              bool    `json:"closed"`
	Active              bool    `json:"active"`
	OneDayPriceChange   float64 `json:"oneDayPriceChange"`
	UmaResolutionStatus string  `json:"umaResolutionStatus"`
}

type gammaEvent struct {
	ID      string        `json:"id"`
	Slug    string        `json:"slug"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
	Tags    []gammaTag    `json:"tags"`
}

type gammaTag struct {
	Label string `json:"label"`
}

func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var m gammaMarket
	reqURL := a.gammaURL + "/markets/" + url.PathEscape(marketID)
	if err := a.fabric.Get(ctx, reqURL, &m); err != nil {
		return nil, fmt.Errorf("get polymarket market %s: %w", marketID, err)
	}

	outcomes, err := parseOutcomes(&m)
	if err != nil {
		return nil, fmt.Errorf("parse polymarket market %s: %w", marketID, err)
	}
	return &models.Market{
		Venue:     models.VenuePolymarket,
		MarketID:  marketID,
		Question:  m.Question,
		Outcomes:  outcomes,
		Volume24h: m.Volume24hr,
		FetchedAt: a.clock.Now().UTC(),
	}, nil
}

// parseOutcomes decodes the gamma string-encoded outcome arrays. The one-day
// price change applies to the first outcome only.
func parseOutcomes(m *gammaMarket) ([]models.Outcome, error) {
	var names, prices, tokens []string
	if err := json.Unmarshal([]byte(m.Outcomes), &names); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return nil, fmt.Errorf("outcome prices: %w", err)
	}
	if m.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
			return nil, fmt.Errorf("clob token ids: %w", err)
		}
	}

	outcomes := make([]models.Outcome, 0, len(names))
	for i, name := range names {
		var price float64
		if i < len(prices) {
			price, _ = strconv.ParseFloat(prices[i], 64)
		}
		id := name
		if i < len(tokens) {
			id = tokens[i]
		}
		out := models.Outcome{ID: id, Name: name, Price: price}
		if i == 0 && m.OneDayPriceChange != 0 {
			prev := price - m.OneDayPriceChange
			out.PreviousPrice = &prev
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (a *Adapter) ListMarkets(ctx context.Context, q interfaces.MarketListQuery) (*interfaces.MarketPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = pageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	switch q.Status {
	case "open":
		params.Set("closed", "false")
		params.Set("active", "true")
	case "closed", "settled":
		params.Set("closed", "true")
	}

	var events []gammaEvent
	reqURL := a.gammaURL + "/events?" + params.Encode()
	if err := a.fabric.Get(ctx, reqURL, &events); err != nil {
		return nil, fmt.Errorf("list polymarket events: %w", err)
	}

	var entries []*models.IndexEntry
	for _, ev := range events {
		tags := make([]string, 0, len(ev.Tags))
		for _, t := range ev.Tags {
			tags = append(tags, t.Label)
		}
		tagsJSON, _ := json.Marshal(tags)

		for _, m := range ev.Markets {
			liquidity, _ := strconv.ParseFloat(m.Liquidity, 64)
			status := "open"
			if m.Closed {
				status = "closed"
			}
			resolved := m.Closed && strings.EqualFold(m.UmaResolutionStatus, "resolved")
			entries = append(entries, &models.IndexEntry{
				Venue:        models.VenuePolymarket,
				MarketID:     m.ID,
				Slug:         m.Slug,
				Question:     m.Question,
				Description:  m.Description,
				OutcomesJSON: m.Outcomes,
				TagsJSON:     string(tagsJSON),
				Status:       status,
				URL:          "https://polymarket.com/event/" + ev.Slug,
				EndDate:      m.EndDate,
				Resolved:     resolved,
				Volume24h:    m.Volume24hr,
				Liquidity:    liquidity,
			})
		}
	}
	return &interfaces.MarketPage{
		Entries: entries,
		HasMore: len(events) == limit,
	}, nil
}

// SellPosition submits a marketable sell of the whole position (or
// order.SizeOrAll shares) through the CLOB with L2 HMAC auth.
func (a *Adapter) SellPosition(ctx context.Context, creds *models.Credential, order interfaces.SellOrder) (*interfaces.SellResult, error) {
	apiKey := creds.Secrets["api_key"]
	secret := creds.Secrets["api_secret"]
	passphrase := creds.Secrets["api_passphrase"]
	if apiKey == "" || secret == "" || passphrase == "" {
		return nil, fmt.Errorf("polymarket credential missing CLOB api key material")
	}

	payload := map[string]any{
		"tokenID": order.OutcomeID,
		"side":    "SELL",
		"type":    "FOK",
		"size":    order.SizeOrAll,
		"sellAll": order.SizeOrAll < 0,
		"market":  order.MarketID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal polymarket sell: %w", err)
	}

	headers, err := l2Headers(a.clock.Now(), apiKey, secret, passphrase, http.MethodPost, "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("polymarket auth headers: %w", err)
	}

	var result struct {
		Success         bool   `json:"success"`
		OrderID         string `json:"orderID"`
		TransactionHash string `json:"transactionHash"`
		ErrorMsg        string `json:"errorMsg"`
	}
	_, err = a.fabric.Do(ctx, http.MethodPost, a.clobURL+"/order", &httpx.Request{
		Headers: headers,
		Body:    json.RawMessage(body),
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("polymarket sell: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("polymarket sell rejected: %s", result.ErrorMsg)
	}
	return &interfaces.SellResult{Signature: result.OrderID, TxID: result.TransactionHash}, nil
}

// Compile-time checks
var (
	_ interfaces.VenueAdapter     = (*Adapter)(nil)
	_ interfaces.ExecutionAdapter = (*Adapter)(nil)
)

// Package manifold adapts the Manifold Markets v0 API to the uniform venue
// interfaces. Manifold quotes probabilities in [0,1]; the NO side is priced
// 1 − prob, clamped at 0.
package manifold

import (
	"context"
	"encoding/json"
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

const (
	DefaultBaseURL = "https://api.manifold.markets"

	pageSize = 100
)

// Adapter implements interfaces.VenueAdapter and interfaces.ExecutionAdapter
// for Manifold.
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

// New creates a Manifold adapter.
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

func (a *Adapter) Venue() models.Venue { return models.VenueManifold }

// noPrice is the NO-side price for a YES probability, clamped at 0.
func noPrice(prob float64) float64 {
	p := 1 - prob
	if p < 0 {
		return 0
	}
	return p
}

type rawBet struct {
	ContractID string  `json:"contractId"`
	Outcome    string  `json:"outcome"`
	Shares     float64 `json:"shares"`
	Amount     float64 `json:"amount"`
	ProbAfter  float64 `json:"probAfter"`
	IsSold     bool    `json:"isSold"`
	CreatedAt  int64   `json:"createdTime"`
}

type rawMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	URL           string   `json:"url"`
	Probability   float64  `json:"probability"`
	Volume24Hours float64  `json:"volume24Hours"`
	TotalLiq      float64  `json:"totalLiquidity"`
	OutcomeType   string   `json:"outcomeType"`
	CloseTime     int64    `json:"closeTime"`
	IsResolved    bool     `json:"isResolved"`
	Resolution    string   `json:"resolution"`
	UniqueBettors int      `json:"uniqueBettorCount"`
	GroupSlugs    []string `json:"groupSlugs"`
	Description   string   `json:"textDescription"`
}

// ListPositions aggregates the user's unsold bets per (contract, outcome).
// Manifold has no positions endpoint; bets are the source of truth.
func (a *Adapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	manifoldUserID := creds.Secrets["user_id"]
	if manifoldUserID == "" {
		return nil, fmt.Errorf("manifold credential missing user_id")
	}

	var bets []rawBet
	reqURL := a.baseURL + "/v0/bets?userId=" + url.QueryEscape(manifoldUserID)
	if err := a.fabric.Get(ctx, reqURL, &bets); err != nil {
		return nil, fmt.Errorf("list manifold bets: %w", err)
	}

	type key struct {
		contract string
		outcome  string
	}
	type agg struct {
		shares float64
		cost   float64
	}
	holdings := map[key]*agg{}
	var order []key
	for _, b := range bets {
		if b.IsSold || b.Shares == 0 {
			continue
		}
		k := key{b.ContractID, strings.ToUpper(b.Outcome)}
		h, ok := holdings[k]
		if !ok {
			h = &agg{}
			holdings[k] = h
			order = append(order, k)
		}
		h.shares += b.Shares
		h.cost += b.Amount
	}

	var positions []*models.Position
	for _, k := range order {
		h := holdings[k]
		if h.shares <= 0 {
			continue
		}
		market, err := a.GetMarket(ctx, k.contract)
		if err != nil {
			a.logger.Warn().Err(err).Str("market_id", k.contract).Msg("skipping manifold position without market")
			continue
		}

		prob := market.Outcomes[0].Price
		side := models.SideYes
		cur := prob
		if k.outcome == "NO" {
			side = models.SideNo
			cur = noPrice(prob)
		}
		avg := 0.0
		if h.shares > 0 {
			avg = h.cost / h.shares
		}
		positions = append(positions, &models.Position{
			UserID:       creds.UserID,
			Venue:        models.VenueManifold,
			MarketID:     k.contract,
			OutcomeID:    k.contract + ":" + strings.ToLower(k.outcome),
			MarketTitle:  market.Question,
			Side:         side,
			Shares:       h.shares,
			AvgPrice:     avg,
			CurrentPrice: cur,
			Value:        h.shares * cur,
			PnL:          h.shares * (cur - avg),
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

func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var m rawMarket
	reqURL := a.baseURL + "/v0/market/" + url.PathEscape(marketID)
	if err := a.fabric.Get(ctx, reqURL, &m); err != nil {
		return nil, fmt.Errorf("get manifold market %s: %w", marketID, err)
	}

	return &models.Market{
		Venue:    models.VenueManifold,
		MarketID: m.ID,
		Question: m.Question,
		Outcomes: []models.Outcome{
			{ID: m.ID + ":yes", Name: "Yes", Price: m.Probability},
			{ID: m.ID + ":no", Name: "No", Price: noPrice(m.Probability)},
		},
		Volume24h: m.Volume24Hours,
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
	params.Set("sort", "last-updated")
	if q.Cursor != "" {
		params.Set("before", q.Cursor)
	}

	var markets []rawMarket
	if err := a.fabric.Get(ctx, a.baseURL+"/v0/markets?"+params.Encode(), &markets); err != nil {
		return nil, fmt.Errorf("list manifold markets: %w", err)
	}

	entries := make([]*models.IndexEntry, 0, len(markets))
	for _, m := range markets {
		if m.OutcomeType != "" && m.OutcomeType != "BINARY" {
			continue
		}
		status := "open"
		if m.IsResolved {
			status = "settled"
		} else if m.CloseTime > 0 && time.UnixMilli(m.CloseTime).Before(a.clock.Now()) {
			status = "closed"
		}
		// Status filtering is client-side; the v0 listing has no status param.
		if q.Status != "" && q.Status != "all" && q.Status != status {
			continue
		}
		tagsJSON, _ := json.Marshal(m.GroupSlugs)
		endDate := ""
		if m.CloseTime > 0 {
			endDate = time.UnixMilli(m.CloseTime).UTC().Format(time.RFC3339)
		}
		entries = append(entries, &models.IndexEntry{
			Venue:        models.VenueManifold,
			MarketID:     m.ID,
			Slug:         m.Slug,
			Question:     m.Question,
			Description:  m.Description,
			OutcomesJSON: `["Yes","No"]`,
			TagsJSON:     string(tagsJSON),
			Status:       status,
			URL:          m.URL,
			EndDate:      endDate,
			Resolved:     m.IsResolved,
			Volume24h:    m.Volume24Hours,
			Liquidity:    m.TotalLiq,
			Predictions:  m.UniqueBettors,
		})
	}
	return &interfaces.MarketPage{
		Entries: entries,
		HasMore: len(markets) == limit,
	}, nil
}

// SellPosition sells shares back to the AMM via POST /v0/market/:id/sell.
func (a *Adapter) SellPosition(ctx context.Context, creds *models.Credential, order interfaces.SellOrder) (*interfaces.SellResult, error) {
	apiKey := creds.Secrets["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("manifold credential missing api_key")
	}

	outcome := "YES"
	if strings.HasSuffix(order.OutcomeID, ":no") {
		outcome = "NO"
	}
	body := map[string]any{"outcome": outcome}
	if order.SizeOrAll >= 0 {
		body["shares"] = order.SizeOrAll
	}

	var result struct {
		BetID string `json:"betId"`
	}
	_, err := a.fabric.Do(ctx, http.MethodPost, a.baseURL+"/v0/market/"+url.PathEscape(order.MarketID)+"/sell", &httpx.Request{
		Headers: map[string]string{"Authorization": "Key " + apiKey},
		Body:    body,
		Result:  &result,
	})
	if err != nil {
		return nil, fmt.Errorf("manifold sell: %w", err)
	}
	return &interfaces.SellResult{TxID: result.BetID}, nil
}

// Compile-time checks
var (
	_ interfaces.VenueAdapter     = (*Adapter)(nil)
	_ interfaces.ExecutionAdapter = (*Adapter)(nil)
)

// Package metaculus adapts the Metaculus questions API to the uniform venue
// interfaces. Metaculus is a forecasting site, not an exchange: there are no
// positions or sells, only the question catalog and community predictions.
package metaculus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

const (
	DefaultBaseURL = "https://www.metaculus.com"

	pageSize = 100
)

// Adapter implements interfaces.VenueAdapter for Metaculus.
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

// New creates a Metaculus adapter.
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

func (a *Adapter) Venue() models.Venue { return models.VenueMetaculus }

// ListPositions always returns empty: Metaculus has no tradable positions.
func (a *Adapter) ListPositions(ctx context.Context, creds *models.Credential) ([]*models.Position, error) {
	return nil, nil
}

type rawQuestion struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	PageURL        string   `json:"page_url"`
	Status         string   `json:"status"`
	Description    string   `json:"description"`
	NrForecasters  int      `json:"number_of_forecasters"`
	PredictionMean float64  `json:"community_prediction_mean"`
	ResolveTime    string   `json:"scheduled_resolve_time"`
	Resolution     *float64 `json:"resolution"`
	Categories     []string `json:"categories"`
}

func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var q rawQuestion
	reqURL := a.baseURL + "/api2/questions/" + url.PathEscape(marketID) + "/"
	if err := a.fabric.Get(ctx, reqURL, &q); err != nil {
		return nil, fmt.Errorf("get metaculus question %s: %w", marketID, err)
	}

	return &models.Market{
		Venue:    models.VenueMetaculus,
		MarketID: marketID,
		Question: q.Title,
		Outcomes: []models.Outcome{
			{ID: marketID, Name: "Yes", Price: q.PredictionMean},
		},
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
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("forecast_type", "binary")
	switch q.Status {
	case "open":
		params.Set("status", "open")
	case "closed":
		params.Set("status", "closed")
	case "settled":
		params.Set("status", "resolved")
	}

	var result struct {
		Next    string        `json:"next"`
		Results []rawQuestion `json:"results"`
	}
	if err := a.fabric.Get(ctx, a.baseURL+"/api2/questions/?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("list metaculus questions: %w", err)
	}

	entries := make([]*models.IndexEntry, 0, len(result.Results))
	for _, r := range result.Results {
		pageURL := r.PageURL
		if pageURL == "" {
			pageURL = r.URL
		}
		tagsJSON := ""
		if len(r.Categories) > 0 {
			tagsJSON = `["` + strings.Join(r.Categories, `","`) + `"]`
		}
		entries = append(entries, &models.IndexEntry{
			Venue:        models.VenueMetaculus,
			MarketID:     strconv.Itoa(r.ID),
			Question:     r.Title,
			Description:  r.Description,
			OutcomesJSON: `["Yes","No"]`,
			TagsJSON:     tagsJSON,
			Status:       r.Status,
			URL:          pageURL,
			EndDate:      r.ResolveTime,
			Resolved:     r.Resolution != nil,
			Predictions:  r.NrForecasters,
		})
	}
	return &interfaces.MarketPage{
		Entries: entries,
		HasMore: result.Next != "",
	}, nil
}

// Compile-time check
var _ interfaces.VenueAdapter = (*Adapter)(nil)

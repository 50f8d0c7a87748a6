package manifold

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfallon/vigil/internal/common"
	"github.com/drewfallon/vigil/internal/httpx"
	"github.com/drewfallon/vigil/internal/interfaces"
	"github.com/drewfallon/vigil/internal/models"
)

type routeStub struct {
	mu       sync.Mutex
	routes   map[string]string
	requests []*http.Request
	bodies   []string
}

func (s *routeStub) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)

	resp, ok := s.routes[req.URL.Path]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{"error":"not found"}`)),
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(resp)),
		Request:    req,
	}, nil
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAdapter(routes map[string]string) (*Adapter, *routeStub) {
	stub := &routeStub{routes: routes}
	fabric := httpx.New(httpx.DefaultOptions(), httpx.WithTransport(stub))
	a := New(fabric,
		WithBaseURL("https://manifold.test"),
		WithClock(common.NewManualClock(testTime)),
	)
	return a, stub
}

func testCreds() *models.Credential {
	return &models.Credential{
		UserID: "u1",
		Venue:  models.VenueManifold,
		Secrets: map[string]string{
			"user_id": "mf-user",
			"api_key": "mf-key",
		},
	}
}

func TestNoPrice_Clamped(t *testing.T) {
	assert.InDelta(t, 0.38, noPrice(0.62), 1e-9)
	assert.InDelta(t, 0.0, noPrice(1.0), 1e-9)
	assert.InDelta(t, 0.0, noPrice(1.2), 1e-9)
}

func TestListPositions_AggregatesBets(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{
		"/v0/bets": `[
			{"contractId":"c1","outcome":"YES","shares":40,"amount":16},
			{"contractId":"c1","outcome":"YES","shares":60,"amount":30},
			{"contractId":"c1","outcome":"NO","shares":20,"amount":8},
			{"contractId":"c1","outcome":"YES","shares":10,"amount":5,"isSold":true}
		]`,
		"/v0/market/c1": `{"id":"c1","question":"Will it happen?","probability":0.70}`,
	})

	positions, err := a.ListPositions(context.Background(), testCreds())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	yes := positions[0]
	assert.Equal(t, models.SideYes, yes.Side)
	assert.Equal(t, "c1:yes", yes.OutcomeID)
	assert.InDelta(t, 100, yes.Shares, 1e-9)
	assert.InDelta(t, 0.46, yes.AvgPrice, 1e-9)
	assert.InDelta(t, 0.70, yes.CurrentPrice, 1e-9)

	no := positions[1]
	assert.Equal(t, models.SideNo, no.Side)
	assert.InDelta(t, 0.30, no.CurrentPrice, 1e-9)

	assert.Equal(t, "mf-user", stub.requests[0].URL.Query().Get("userId"))
}

func TestGetMarket(t *testing.T) {
	a, _ := newTestAdapter(map[string]string{
		"/v0/market/c9": `{"id":"c9","question":"Launch this year?","probability":0.62,"volume24Hours":150}`,
	})

	m, err := a.GetMarket(context.Background(), "c9")
	require.NoError(t, err)
	require.Len(t, m.Outcomes, 2)
	assert.InDelta(t, 0.62, m.Outcomes[0].Price, 1e-9)
	assert.InDelta(t, 0.38, m.Outcomes[1].Price, 1e-9)
	assert.Equal(t, "c9:no", m.Outcomes[1].ID)
	assert.Equal(t, testTime, m.FetchedAt)
}

func TestListMarkets_BinaryAndStatusFilter(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{
		"/v0/markets": `[
			{"id":"c1","question":"Open binary","outcomeType":"BINARY","closeTime":99999999999999,"uniqueBettorCount":12,"groupSlugs":["tech"]},
			{"id":"c2","question":"Multi choice","outcomeType":"MULTIPLE_CHOICE"},
			{"id":"c3","question":"Resolved one","outcomeType":"BINARY","isResolved":true,"resolution":"YES"}
		]`,
	})

	page, err := a.ListMarkets(context.Background(), interfaces.MarketListQuery{Status: "open", Limit: 3, Cursor: "cur-1"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.True(t, page.HasMore)

	entry := page.Entries[0]
	assert.Equal(t, "c1", entry.MarketID)
	assert.Equal(t, "open", entry.Status)
	assert.Equal(t, `["tech"]`, entry.TagsJSON)
	assert.Equal(t, 12, entry.Predictions)

	q := stub.requests[0].URL.Query()
	assert.Equal(t, "cur-1", q.Get("before"))
	assert.Equal(t, "last-updated", q.Get("sort"))
}

func TestSellPosition(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{
		"/v0/market/c1/sell": `{"betId":"bet-7"}`,
	})

	res, err := a.SellPosition(context.Background(), testCreds(), interfaces.SellOrder{
		MarketID:  "c1",
		OutcomeID: "c1:no",
		SizeOrAll: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "bet-7", res.TxID)

	req := stub.requests[0]
	assert.Equal(t, "Key mf-key", req.Header.Get("Authorization"))
	assert.Contains(t, stub.bodies[0], `"outcome":"NO"`)
	assert.Contains(t, stub.bodies[0], `"shares":25`)
}

func TestSellPosition_AllOmitsShares(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{
		"/v0/market/c1/sell": `{"betId":"bet-8"}`,
	})

	_, err := a.SellPosition(context.Background(), testCreds(), interfaces.SellOrder{
		MarketID:  "c1",
		OutcomeID: "c1:yes",
		SizeOrAll: -1,
	})
	require.NoError(t, err)
	assert.NotContains(t, stub.bodies[0], "shares")
	assert.Contains(t, stub.bodies[0], `"outcome":"YES"`)
}

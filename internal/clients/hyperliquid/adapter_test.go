package hyperliquid

import (
	"context"
	"encoding/json"
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

// infoStub dispatches on the "type" field of the /info request body.
type infoStub struct {
	mu        sync.Mutex
	responses map[string]string
	bodies    []map[string]any
}

func (s *infoStub) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body map[string]any
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
	}
	s.bodies = append(s.bodies, body)

	kind, _ := body["type"].(string)
	resp, ok := s.responses[kind]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(`{"error":"unknown type"}`)),
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

func newTestAdapter(responses map[string]string) (*Adapter, *infoStub) {
	stub := &infoStub{responses: responses}
	fabric := httpx.New(httpx.DefaultOptions(), httpx.WithTransport(stub))
	a := New(fabric,
		WithBaseURL("https://hl.test"),
		WithClock(common.NewManualClock(testTime)),
	)
	return a, stub
}

func testCreds() *models.Credential {
	return &models.Credential{
		UserID:  "u1",
		Venue:   models.VenueHyperliquid,
		Secrets: map[string]string{"wallet_address": "0xwallet"},
	}
}

func TestListPositions_SignedSizeMath(t *testing.T) {
	a, stub := newTestAdapter(map[string]string{
		"clearinghouseState": `{"assetPositions":[
			{"position":{"coin":"ETH","szi":"2","entryPx":"2000","unrealizedPnl":"300"}},
			{"position":{"coin":"BTC","szi":"-0.5","entryPx":"60000","unrealizedPnl":"1000"}},
			{"position":{"coin":"SOL","szi":"0","entryPx":"150","unrealizedPnl":"0"}}
		]}`,
	})

	positions, err := a.ListPositions(context.Background(), testCreds())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	long := positions[0]
	assert.Equal(t, models.SideLong, long.Side)
	assert.InDelta(t, 2, long.Shares, 1e-9)
	// mark = entry + upnl/szi = 2000 + 300/2
	assert.InDelta(t, 2150, long.CurrentPrice, 1e-9)
	assert.InDelta(t, 300, long.PnL, 1e-9)
	assert.InDelta(t, 7.5, long.PnLPct, 1e-9)

	short := positions[1]
	assert.Equal(t, models.SideShort, short.Side)
	assert.InDelta(t, 0.5, short.Shares, 1e-9)
	// mark = 60000 + 1000/(-0.5) = 58000; price down on a short is profit
	assert.InDelta(t, 58000, short.CurrentPrice, 1e-9)
	assert.InDelta(t, 1000, short.PnL, 1e-9)
	assert.True(t, short.PnLPct > 0)

	assert.Equal(t, "0xwallet", stub.bodies[0]["user"])
}

func TestGetMarket(t *testing.T) {
	a, _ := newTestAdapter(map[string]string{
		"allMids": `{"ETH":"2150.5","BTC":"58000"}`,
	})

	m, err := a.GetMarket(context.Background(), "ETH")
	require.NoError(t, err)
	require.Len(t, m.Outcomes, 1)
	assert.InDelta(t, 2150.5, m.Outcomes[0].Price, 1e-9)
	assert.Equal(t, testTime, m.FetchedAt)

	_, err = a.GetMarket(context.Background(), "DOGE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not listed")
}

func TestListMarkets(t *testing.T) {
	a, _ := newTestAdapter(map[string]string{
		"metaAndAssetCtxs": `[
			{"universe":[{"name":"ETH"},{"name":"OLD","isDelisted":true},{"name":"BTC"}]},
			[
				{"markPx":"2150","openInterest":"5000","dayNtlVlm":"1000000"},
				{"markPx":"1","openInterest":"0","dayNtlVlm":"0"},
				{"markPx":"58000","openInterest":"300","dayNtlVlm":"9000000"}
			]
		]`,
	})

	page, err := a.ListMarkets(context.Background(), interfaces.MarketListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.False(t, page.HasMore)

	eth := page.Entries[0]
	assert.Equal(t, "ETH", eth.MarketID)
	assert.InDelta(t, 5000, eth.OpenInterest, 1e-9)
	assert.InDelta(t, 1000000, eth.Volume24h, 1e-9)

	btc := page.Entries[1]
	assert.Equal(t, "BTC", btc.MarketID)
	assert.InDelta(t, 300, btc.OpenInterest, 1e-9)
}

func TestListMarkets_OffsetPastFirstPage(t *testing.T) {
	a, stub := newTestAdapter(nil)

	page, err := a.ListMarkets(context.Background(), interfaces.MarketListQuery{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Empty(t, stub.bodies)
}

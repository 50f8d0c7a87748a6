package cex

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
}

func (s *routeStub) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
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

func newStubFabric(routes map[string]string) (*httpx.Fabric, *routeStub) {
	stub := &routeStub{routes: routes}
	return httpx.New(httpx.DefaultOptions(), httpx.WithTransport(stub)), stub
}

func cexCreds(venue models.Venue) *models.Credential {
	return &models.Credential{
		UserID: "u1",
		Venue:  venue,
		Secrets: map[string]string{
			"api_key":    "key",
			"api_secret": "secret",
		},
	}
}

func TestHmacHex(t *testing.T) {
	// Known vector: HMAC-SHA256("key", "message")
	assert.Equal(t,
		"6e9ef29b75fffc5b7abae527d58fdadb2fe42e7219011976917343065f58ed4a",
		hmacHex("key", "message"))
}

func TestPerpPosition_Short(t *testing.T) {
	p := perpPosition("u1", models.VenueBinance, "BTCUSDT", -0.5, 60000, 1000)
	assert.Equal(t, models.SideShort, p.Side)
	assert.InDelta(t, 0.5, p.Shares, 1e-9)
	assert.InDelta(t, 58000, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 1000, p.PnL, 1e-9)
	assert.True(t, p.PnLPct > 0)
}

func TestPerpPosition_Long(t *testing.T) {
	p := perpPosition("u1", models.VenueBinance, "ETHUSDT", 2, 2000, -100)
	assert.Equal(t, models.SideLong, p.Side)
	assert.InDelta(t, 1950, p.CurrentPrice, 1e-9)
	assert.InDelta(t, -2.5, p.PnLPct, 1e-9)
	assert.InDelta(t, 3900, p.Value, 1e-9)
}

func TestBinance_ListPositions(t *testing.T) {
	fabric, stub := newStubFabric(map[string]string{
		"/fapi/v2/positionRisk": `[
			{"symbol":"BTCUSDT","positionAmt":"-0.5","entryPrice":"60000","unRealizedProfit":"1000"},
			{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0","unRealizedProfit":"0"}
		]`,
	})
	clock := common.NewManualClock(time.UnixMilli(1_700_000_000_000))
	b := NewBinance(fabric, WithBinanceBaseURL("https://binance.test"), WithBinanceClock(clock))

	positions, err := b.ListPositions(context.Background(), cexCreds(models.VenueBinance))
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, models.SideShort, positions[0].Side)

	req := stub.requests[0]
	assert.Equal(t, "key", req.Header.Get("X-MBX-APIKEY"))
	q := req.URL.Query()
	assert.Equal(t, "1700000000000", q.Get("timestamp"))
	assert.Equal(t, hmacHex("secret", "timestamp=1700000000000"), q.Get("signature"))
}

func TestBinance_GetMarket(t *testing.T) {
	fabric, _ := newStubFabric(map[string]string{
		"/fapi/v1/premiumIndex": `{"symbol":"BTCUSDT","markPrice":"58123.40"}`,
	})
	b := NewBinance(fabric, WithBinanceBaseURL("https://binance.test"))

	m, err := b.GetMarket(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, m.Outcomes, 1)
	assert.InDelta(t, 58123.40, m.Outcomes[0].Price, 1e-9)
}

func TestBybit_ListPositions(t *testing.T) {
	fabric, stub := newStubFabric(map[string]string{
		"/v5/position/list": `{"retCode":0,"result":{"list":[
			{"symbol":"ETHUSDT","side":"Sell","size":"4","avgPrice":"2000","unrealisedPnl":"200"}
		]}}`,
	})
	clock := common.NewManualClock(time.UnixMilli(1_700_000_000_000))
	b := NewBybit(fabric, WithBybitBaseURL("https://bybit.test"), WithBybitClock(clock))

	positions, err := b.ListPositions(context.Background(), cexCreds(models.VenueBybit))
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, models.SideShort, p.Side)
	// mark = 2000 + 200/(-4) = 1950
	assert.InDelta(t, 1950, p.CurrentPrice, 1e-9)

	req := stub.requests[0]
	assert.Equal(t, "key", req.Header.Get("X-BAPI-API-KEY"))
	assert.Equal(t, "1700000000000", req.Header.Get("X-BAPI-TIMESTAMP"))
	assert.Equal(t, "5000", req.Header.Get("X-BAPI-RECV-WINDOW"))
	wantSign := hmacHex("secret", "1700000000000"+"key"+"5000"+"category=linear&settleCoin=USDT")
	assert.Equal(t, wantSign, req.Header.Get("X-BAPI-SIGN"))
}

func TestBybit_RetCodeError(t *testing.T) {
	fabric, _ := newStubFabric(map[string]string{
		"/v5/position/list": `{"retCode":10004,"retMsg":"invalid sign"}`,
	})
	b := NewBybit(fabric, WithBybitBaseURL("https://bybit.test"))

	_, err := b.ListPositions(context.Background(), cexCreds(models.VenueBybit))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sign")
}

func TestBybit_ListMarkets(t *testing.T) {
	fabric, _ := newStubFabric(map[string]string{
		"/v5/market/tickers": `{"retCode":0,"result":{"list":[
			{"symbol":"BTCUSDT","lastPrice":"58000","turnover24h":"9000000","openInterest":"1234"}
		]}}`,
	})
	b := NewBybit(fabric, WithBybitBaseURL("https://bybit.test"))

	page, err := b.ListMarkets(context.Background(), interfaces.MarketListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.InDelta(t, 9000000, page.Entries[0].Volume24h, 1e-9)
	assert.InDelta(t, 1234, page.Entries[0].OpenInterest, 1e-9)
}

func TestMEXC_ListPositions(t *testing.T) {
	fabric, stub := newStubFabric(map[string]string{
		"/api/v1/private/position/open_positions": `{"success":true,"data":[
			{"symbol":"BTC_USDT","positionType":2,"holdVol":0.5,"holdAvgPrice":60000}
		]}`,
		"/api/v1/contract/ticker": `{"success":true,"data":{"symbol":"BTC_USDT","fairPrice":58000,"lastPrice":58100}}`,
	})
	clock := common.NewManualClock(time.UnixMilli(1_700_000_000_000))
	m := NewMEXC(fabric, WithMEXCBaseURL("https://mexc.test"), WithMEXCClock(clock))

	positions, err := m.ListPositions(context.Background(), cexCreds(models.VenueMEXC))
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, models.SideShort, p.Side)
	assert.InDelta(t, 58000, p.CurrentPrice, 1e-9)
	// short of 0.5 from 60000 to 58000 is +1000
	assert.InDelta(t, 1000, p.PnL, 1e-9)

	first := stub.requests[0]
	assert.Equal(t, "key", first.Header.Get("ApiKey"))
	assert.Equal(t, "1700000000000", first.Header.Get("Request-Time"))
	assert.NotEmpty(t, first.Header.Get("Signature"))
}

func TestMEXC_GetMarket_FairPricePreferred(t *testing.T) {
	fabric, _ := newStubFabric(map[string]string{
		"/api/v1/contract/ticker": `{"success":true,"data":{"symbol":"ETH_USDT","fairPrice":2150,"lastPrice":2151}}`,
	})
	m := NewMEXC(fabric, WithMEXCBaseURL("https://mexc.test"))

	market, err := m.GetMarket(context.Background(), "ETH_USDT")
	require.NoError(t, err)
	assert.InDelta(t, 2150, market.Outcomes[0].Price, 1e-9)
}

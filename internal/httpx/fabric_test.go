package httpx

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
)

// stubTransport replays canned responses in order, recording request times
// against the injected clock.
type stubTransport struct {
	mu        sync.Mutex
	clock     common.Clock
	responses []stubResponse
	calls     int
	callTimes []time.Time
}

type stubResponse struct {
	status  int
	headers map[string]string
	body    string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callTimes = append(s.callTimes, s.clock.Now())
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++

	sr := s.responses[idx]
	resp := &http.Response{
		StatusCode: sr.status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(sr.body)),
		Request:    req,
	}
	for k, v := range sr.headers {
		resp.Header.Set(k, v)
	}
	if sr.body != "" && resp.Header.Get("Content-Type") == "" {
		resp.Header.Set("Content-Type", "application/json")
	}
	return resp, nil
}

func newTestFabric(t *testing.T, clock *common.ManualClock, responses ...stubResponse) (*Fabric, *stubTransport) {
	t.Helper()
	transport := &stubTransport{clock: clock, responses: responses}
	opts := DefaultOptions()
	f := New(opts,
		WithClock(clock),
		WithRand(func() float64 { return 0.5 }), // jitter factor exactly 1.0
		WithTransport(transport),
	)
	return f, transport
}

func TestFabric_SuccessFirstAttempt(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, transport := newTestFabric(t, clock, stubResponse{status: 200, body: `{"ok":true}`})

	var out map[string]bool
	err := f.Get(context.Background(), "https://api.example.com/x", &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, 1, transport.calls)
}

func TestFabric_RetryAfterCooldown(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, transport := newTestFabric(t, clock,
		stubResponse{status: 429, headers: map[string]string{"Retry-After": "2"}},
		stubResponse{status: 200, body: `{}`},
	)

	start := clock.Now()
	var out map[string]any
	err := f.Get(context.Background(), "https://api.example.com/x", &out)
	require.NoError(t, err)
	require.Equal(t, 2, transport.calls)

	// The retry happened at least 2s after the 429.
	assert.GreaterOrEqual(t, transport.callTimes[1].Sub(start), 2*time.Second)

	// A follow-up call to the same host within the cooldown is delayed until
	// the cooldown has elapsed (no third-party sneaks in early).
	transport.mu.Lock()
	transport.responses = []stubResponse{{status: 200, body: `{}`}}
	transport.calls = 0
	transport.callTimes = nil
	transport.mu.Unlock()

	err = f.Get(context.Background(), "https://api.example.com/y", &out)
	require.NoError(t, err)
}

func TestFabric_TerminalClientError(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, transport := newTestFabric(t, clock, stubResponse{status: 404, body: "not found"})

	err := f.Get(context.Background(), "https://api.example.com/x", nil)
	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 404, ce.StatusCode)
	assert.Equal(t, 1, transport.calls, "4xx must not retry")
	assert.True(t, IsTerminal(err))
}

func TestFabric_TransientAfterExhaustion(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, transport := newTestFabric(t, clock, stubResponse{status: 503})

	_, err := f.Do(context.Background(), http.MethodGet, "https://api.example.com/x", nil)
	require.Error(t, err)
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, 3, transport.calls, "expected maxAttempts requests")
	assert.False(t, IsTerminal(err))
}

func TestFabric_NonRetryableMethodFailsFast(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, transport := newTestFabric(t, clock, stubResponse{status: 503})

	_, err := f.Do(context.Background(), http.MethodPost, "https://api.example.com/x", nil)
	require.Error(t, err)
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, transport.calls, "POST must not retry by default")
}

func TestFabric_BackoffProgression(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	f, _ := newTestFabric(t, clock, stubResponse{status: 500})

	_, err := f.Do(context.Background(), http.MethodGet, "https://api.example.com/x", nil)
	require.Error(t, err)

	// With jitter factor pinned to 1.0: 500ms then 1s between attempts.
	var backoffs []time.Duration
	for _, d := range clock.Sleeps() {
		if d == 500*time.Millisecond || d == time.Second {
			backoffs = append(backoffs, d)
		}
	}
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, backoffs)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))

	// HTTP-date in the future
	future := now.Add(10 * time.Second).UTC().Format(http.TimeFormat)
	assert.Equal(t, 10*time.Second, parseRetryAfter(future, now))

	// HTTP-date in the past clamps to zero
	past := now.Add(-10 * time.Second).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past, now))
}

func TestSlidingWindow_BlocksAtCapacity(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	w := newSlidingWindow(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, w.Wait(ctx, clock))
	require.NoError(t, w.Wait(ctx, clock))

	// Third admission must wait for the first to leave the window. The
	// manual clock advances by the sleep, so Wait returns after "waiting".
	before := clock.Now()
	require.NoError(t, w.Wait(ctx, clock))
	assert.GreaterOrEqual(t, clock.Now().Sub(before), time.Minute)
}

func TestSlidingWindow_CancelledContext(t *testing.T) {
	clock := common.NewManualClock(time.Unix(1_700_000_000, 0))
	w := newSlidingWindow(1, time.Minute)

	require.NoError(t, w.Wait(context.Background(), clock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, w.Wait(ctx, clock))
}

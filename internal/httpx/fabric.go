package httpx

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/drewfallon/vigil/internal/common"
)

// Options configures the fabric's retry and rate-limit behaviour.
type Options struct {
	MaxAttempts  int
	MinDelay     time.Duration
	MaxDelay     time.Duration
	BackoffMult  float64
	Jitter       float64
	RetryMethods []string // default GET/HEAD/OPTIONS
	Timeout      time.Duration

	DefaultRateMax    int
	DefaultRateWindow time.Duration
	HostRates         map[string]string // host -> "N/windowMs"
}

// DefaultOptions returns the documented fabric defaults: 60 req/min per
// host, 3 attempts, 500ms..30s backoff at mult 2 with 10% jitter.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		MinDelay:          500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMult:       2,
		Jitter:            0.1,
		RetryMethods:      []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		Timeout:           30 * time.Second,
		DefaultRateMax:    60,
		DefaultRateWindow: time.Minute,
	}
}

// OptionsFromConfig builds fabric options from the http config section.
func OptionsFromConfig(cfg common.HTTPConfig) Options {
	opts := DefaultOptions()
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.MinDelayMS > 0 {
		opts.MinDelay = time.Duration(cfg.MinDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		opts.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	if cfg.BackoffMult > 0 {
		opts.BackoffMult = cfg.BackoffMult
	}
	if cfg.Jitter > 0 {
		opts.Jitter = cfg.Jitter
	}
	if len(cfg.RetryMethods) > 0 {
		opts.RetryMethods = cfg.RetryMethods
	}
	if cfg.RateDefault != "" {
		opts.DefaultRateMax, opts.DefaultRateWindow = common.ParseRate(cfg.RateDefault)
	}
	opts.HostRates = cfg.RateHosts
	opts.Timeout = cfg.GetTimeout()
	return opts
}

// hostState holds the per-host limiter and cooldown deadline.
type hostState struct {
	limiter *slidingWindow

	mu            sync.Mutex
	cooldownUntil time.Time
}

// Fabric is the shared outbound HTTP layer. Every venue call is tagged by
// host; the fabric serializes rate limits, honours Retry-After cooldowns,
// and retries with exponential backoff.
type Fabric struct {
	client *resty.Client
	opts   Options
	clock  common.Clock
	rng    func() float64
	logger *common.Logger

	mu    sync.Mutex
	hosts map[string]*hostState
}

// FabricOption configures the fabric.
type FabricOption func(*Fabric)

// WithClock injects the time source.
func WithClock(clock common.Clock) FabricOption {
	return func(f *Fabric) { f.clock = clock }
}

// WithRand injects the jitter source. The function must return values in
// [0, 1).
func WithRand(rng func() float64) FabricOption {
	return func(f *Fabric) { f.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) FabricOption {
	return func(f *Fabric) { f.logger = logger }
}

// WithTransport replaces the underlying HTTP transport (tests).
func WithTransport(rt http.RoundTripper) FabricOption {
	return func(f *Fabric) { f.client.SetTransport(rt) }
}

// New creates a Fabric with the given options.
func New(opts Options, fopts ...FabricOption) *Fabric {
	f := &Fabric{
		client: resty.New().
			SetTimeout(opts.Timeout).
			SetRetryCount(0), // the fabric owns retry
		opts:   opts,
		clock:  common.SystemClock{},
		rng:    rand.Float64,
		logger: common.NewSilentLogger(),
		hosts:  make(map[string]*hostState),
	}
	for _, o := range fopts {
		o(f)
	}
	return f
}

// Request carries optional request parts for Do.
type Request struct {
	Headers map[string]string
	Query   url.Values
	Body    any // JSON-encoded when non-nil
	Result  any // JSON-decoded from 2xx responses when non-nil
}

// Get issues a rate-limited GET and decodes the JSON response into result.
func (f *Fabric) Get(ctx context.Context, rawURL string, result any) error {
	_, err := f.Do(ctx, http.MethodGet, rawURL, &Request{Result: result})
	return err
}

// Do issues one logical request with rate limiting, cooldown waits, and
// retry. The returned response is the final one; on retry exhaustion or
// terminal status the matching error kind is returned instead.
func (f *Fabric) Do(ctx context.Context, method, rawURL string, req *Request) (*resty.Response, error) {
	if req == nil {
		req = &Request{}
	}
	host := hostOf(rawURL)
	hs := f.host(host)
	retryable := f.methodRetryable(method)

	var lastResp *resty.Response
	var lastErr error

	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if err := f.admit(ctx, hs); err != nil {
			return nil, err
		}

		r := f.client.R().SetContext(ctx)
		if len(req.Headers) > 0 {
			r.SetHeaders(req.Headers)
		}
		if req.Query != nil {
			r.SetQueryParamsFromValues(req.Query)
		}
		if req.Body != nil {
			r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
		}
		if req.Result != nil {
			r.SetResult(req.Result)
		}

		resp, err := r.Execute(method, rawURL)
		if err != nil {
			lastErr = err
			lastResp = nil
			if !retryable || attempt == f.opts.MaxAttempts {
				break
			}
			f.logger.Debug().Str("host", host).Int("attempt", attempt).Err(err).Msg("Request failed, retrying")
			if serr := f.clock.Sleep(ctx, f.backoff(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status < 400:
			return resp, nil

		case status == http.StatusTooManyRequests || status >= 500:
			lastResp = resp
			lastErr = nil
			cooldown := parseRetryAfter(resp.Header().Get("Retry-After"), f.clock.Now())
			if cooldown > 0 {
				hs.setCooldown(f.clock.Now().Add(cooldown))
			}
			if !retryable || attempt == f.opts.MaxAttempts {
				break
			}
			delay := f.backoff(attempt)
			if cooldown > delay {
				delay = cooldown
			}
			f.logger.Debug().
				Str("host", host).
				Int("status", status).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retryable status, backing off")
			if serr := f.clock.Sleep(ctx, delay); serr != nil {
				return nil, serr
			}
			continue

		default:
			// Terminal 4xx
			return resp, &ClientError{StatusCode: status, Host: host, Body: resp.String()}
		}
		break
	}

	if lastErr != nil {
		return nil, &UnreachableError{Host: host, Attempts: f.opts.MaxAttempts, Err: lastErr}
	}
	return lastResp, &TransientError{StatusCode: lastResp.StatusCode(), Host: host, Attempts: f.opts.MaxAttempts}
}

// admit blocks until the host's cooldown has passed and a limiter slot is
// available.
func (f *Fabric) admit(ctx context.Context, hs *hostState) error {
	for {
		wait := hs.cooldownRemaining(f.clock.Now())
		if wait <= 0 {
			break
		}
		if err := f.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return hs.limiter.Wait(ctx, f.clock)
}

// backoff computes the delay before attempt n+1:
// min(maxDelay, minDelay*mult^(n-1)) scaled by uniform(1-j, 1+j).
func (f *Fabric) backoff(attempt int) time.Duration {
	base := float64(f.opts.MinDelay) * math.Pow(f.opts.BackoffMult, float64(attempt-1))
	if capped := float64(f.opts.MaxDelay); base > capped {
		base = capped
	}
	factor := 1 + f.opts.Jitter*(2*f.rng()-1)
	return time.Duration(base * factor)
}

func (f *Fabric) methodRetryable(method string) bool {
	for _, m := range f.opts.RetryMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// host returns (creating if needed) the state for a host.
func (f *Fabric) host(host string) *hostState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hs, ok := f.hosts[host]; ok {
		return hs
	}
	max, window := f.opts.DefaultRateMax, f.opts.DefaultRateWindow
	if spec, ok := f.opts.HostRates[host]; ok {
		max, window = common.ParseRate(spec)
	}
	hs := &hostState{limiter: newSlidingWindow(max, window)}
	f.hosts[host] = hs
	return hs
}

func (hs *hostState) cooldownRemaining(now time.Time) time.Duration {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.cooldownUntil.Sub(now)
}

func (hs *hostState) setCooldown(until time.Time) {
	hs.mu.Lock()
	if until.After(hs.cooldownUntil) {
		hs.cooldownUntil = until
	}
	hs.mu.Unlock()
}

// parseRetryAfter interprets a Retry-After header as either delta-seconds or
// an HTTP-date. Past dates clamp to zero; there is no negative cooldown.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

package venue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/faridmah/arbot/internal/domain"
)

// Transport is the shared HTTP layer under every adapter: one pooled client
// per venue, a request-rate limiter, per-call timeouts, bounded retry for
// transient failures, and classification of responses into the error
// taxonomy. Signing stays in the adapters; the transport re-invokes the
// request factory on every attempt so timestamped signatures stay fresh.
type Transport struct {
	venue      domain.Venue
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	netTimeout time.Duration
	logger     *slog.Logger
}

// TransportConfig configures a venue transport.
type TransportConfig struct {
	Venue      domain.Venue
	BaseURL    string
	RequestsPerSecond float64 // 0 = unlimited
	Burst      int
	Retry      RetryPolicy
	NetTimeout time.Duration
	Logger     *slog.Logger
}

// NewTransport builds a Transport with a dedicated pooled http.Client.
func NewTransport(cfg TransportConfig) *Transport {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	netTimeout := cfg.NetTimeout
	if netTimeout <= 0 {
		netTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		venue:   cfg.Venue,
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    limiter,
		retry:      cfg.Retry,
		netTimeout: netTimeout,
		logger:     logger.With(slog.String("venue", string(cfg.Venue))),
	}
}

// Request describes one venue call. Build is invoked per attempt and
// returns the body and headers for that attempt; it is where adapters sign.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Build produces the body bytes and headers. Nil means an unsigned
	// request with no body.
	Build func() (body []byte, headers map[string]string, err error)
	// NoRetry disables the retry loop, for non-idempotent calls whose
	// duplicate submission would be worse than a miss.
	NoRetry bool
}

// URL renders the full request URL for r.
func (t *Transport) URL(r Request) string {
	u := t.baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

// Do executes the request under the rate limiter and retry policy and
// returns the response body and status. Non-2xx statuses and transport
// failures come back as *domain.VenueError.
func (t *Transport) Do(ctx context.Context, r Request) ([]byte, int, error) {
	var (
		body   []byte
		status int
	)

	policy := t.retry
	if r.NoRetry {
		policy = RetryPolicy{MaxAttempts: 1}
	}

	err := withRetry(ctx, policy, func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		var reqBody []byte
		var headers map[string]string
		if r.Build != nil {
			var err error
			reqBody, headers, err = r.Build()
			if err != nil {
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, t.netTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, r.Method, t.URL(r), bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", t.venue, err)
		}
		req.Header.Set("User-Agent", "arbot/1.0")
		if len(reqBody) > 0 && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return &domain.VenueError{
				Venue: t.venue, Kind: domain.ErrKindNetwork,
				Message: err.Error(), Err: domain.ErrNetwork,
			}
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return &domain.VenueError{
				Venue: t.venue, Kind: domain.ErrKindNetwork,
				Message: "reading response: " + err.Error(), Err: domain.ErrNetwork,
			}
		}
		status = resp.StatusCode

		if status >= 200 && status < 300 {
			return nil
		}
		return t.classify(status, body)
	})
	if err != nil {
		return nil, status, err
	}
	return body, status, nil
}

// classify maps an HTTP failure status to the error taxonomy.
func (t *Transport) classify(status int, body []byte) *domain.VenueError {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}

	ve := &domain.VenueError{Venue: t.venue, Status: status, Message: msg}
	switch {
	case status == http.StatusTooManyRequests:
		ve.Kind, ve.Err = domain.ErrKindRateLimited, domain.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ve.Kind, ve.Err = domain.ErrKindAuth, domain.ErrAuth
	case status >= 500:
		ve.Kind, ve.Err = domain.ErrKindNetwork, domain.ErrNetwork
	case status == http.StatusNotFound:
		ve.Kind, ve.Err = domain.ErrKindBusiness, domain.ErrOrderNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		ve.Kind, ve.Err = domain.ErrKindBusiness, domain.ErrOrderRejected
	default:
		ve.Kind, ve.Err = domain.ErrKindBusiness, domain.ErrOrderRejected
	}
	return ve
}

// Venue returns the venue this transport serves.
func (t *Transport) Venue() domain.Venue { return t.venue }

// Logger returns the venue-scoped logger.
func (t *Transport) Logger() *slog.Logger { return t.logger }

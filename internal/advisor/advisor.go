// Package advisor provides maker/taker advisors for the executor. The
// advisor is purely advisory: any failure means "use taker" and is counted,
// never fatal.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// Taker is the null advisor: every leg is a taker.
type Taker struct{}

// AdviseMaker implements domain.MakerAdvisor.
func (Taker) AdviseMaker(ctx context.Context, f domain.AdvisorFeatures) (domain.MakerAdvice, error) {
	return domain.MakerAdvice{UseMaker: false, Confidence: 1}, nil
}

// HTTP consults an external prediction service over a small JSON contract:
//
//	POST {url}  {"venue": "...", "symbol": "...", "side": "...",
//	             "best_bid": "...", "best_ask": "...", "spread_bps": "...",
//	             "bid_depth": "...", "ask_depth": "..."}
//	→ {"use_maker": bool, "confidence": float,
//	   "predicted_fill_price": "decimal string, optional"}
type HTTP struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates an HTTP advisor with its own bounded-timeout client.
func NewHTTP(url string, timeout time.Duration, logger *slog.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &HTTP{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "advisor")),
	}
}

type adviseRequest struct {
	Venue     string `json:"venue"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	SpreadBps string `json:"spread_bps"`
	BidDepth  string `json:"bid_depth"`
	AskDepth  string `json:"ask_depth"`
}

type adviseResponse struct {
	UseMaker           bool    `json:"use_maker"`
	Confidence         float64 `json:"confidence"`
	PredictedFillPrice string  `json:"predicted_fill_price"`
}

// AdviseMaker implements domain.MakerAdvisor.
func (h *HTTP) AdviseMaker(ctx context.Context, f domain.AdvisorFeatures) (domain.MakerAdvice, error) {
	payload, err := json.Marshal(adviseRequest{
		Venue:     string(f.Venue),
		Symbol:    f.Symbol.String(),
		Side:      string(f.Side),
		BestBid:   f.BestBid.String(),
		BestAsk:   f.BestAsk.String(),
		SpreadBps: f.SpreadBps.String(),
		BidDepth:  f.BidDepth.String(),
		AskDepth:  f.AskDepth.String(),
	})
	if err != nil {
		return domain.MakerAdvice{}, fmt.Errorf("advisor: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return domain.MakerAdvice{}, fmt.Errorf("advisor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.MakerAdvice{}, fmt.Errorf("advisor: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.MakerAdvice{}, fmt.Errorf("advisor: status %d", resp.StatusCode)
	}

	var out adviseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.MakerAdvice{}, fmt.Errorf("advisor: decode response: %w", err)
	}

	advice := domain.MakerAdvice{UseMaker: out.UseMaker, Confidence: out.Confidence}
	if out.PredictedFillPrice != "" {
		if p, err := decimal.NewFromString(out.PredictedFillPrice); err == nil && p.IsPositive() {
			advice.PredictedFillPrice = p
		}
	}
	return advice, nil
}

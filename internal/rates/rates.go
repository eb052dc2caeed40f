package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Source provides the exchange rate (local units per base unit) used to
// convert payment allocations. Implementations must return a positive rate
// or an error; callers decide how to fall back.
type Source interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// FixedSource always returns the same rate. Used as the last-resort fallback
// and in tests.
type FixedSource struct {
	Value decimal.Decimal
}

func (s FixedSource) Rate(_ context.Context) (decimal.Decimal, error) {
	return s.Value, nil
}

// HTTPSource fetches the official rate from a JSON endpoint exposing a
// "promedio" field. A fetch or parse failure falls back to the configured
// rate so the counter keeps working offline.
type HTTPSource struct {
	URL      string
	Fallback decimal.Decimal
	Client   *http.Client
}

func NewHTTPSource(url string, fallback decimal.Decimal) *HTTPSource {
	return &HTTPSource{
		URL:      url,
		Fallback: fallback,
		Client:   &http.Client{Timeout: 8 * time.Second},
	}
}

func (s *HTTPSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := s.fetch(ctx)
	if err != nil {
		log.Printf("[rates] fetch failed, using fallback %s: %v", s.Fallback, err)
		return s.Fallback, nil
	}
	return rate, nil
}

func (s *HTTPSource) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Promedio decimal.Decimal `json:"promedio"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	if payload.Promedio.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("rate endpoint returned non-positive rate %s", payload.Promedio)
	}
	return payload.Promedio, nil
}

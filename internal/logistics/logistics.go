// Package logistics consumes the external rate-quote service.
package logistics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_fulfill/internal/domain"
)

var ErrNoRates = errors.New("no shipping rates quoted")

// Parcel describes what the order ships as.
type Parcel struct {
	WeightKg decimal.Decimal `json:"weight_kg"`
	Pieces   int             `json:"pieces"`
}

// Rate is one quoted shipping option.
type Rate struct {
	Carrier string          `json:"carrier"`
	Service string          `json:"service"`
	Amount  decimal.Decimal `json:"amount"`
	Days    int             `json:"days"`
}

// RateQuoter fetches shipping options for an address and parcel.
type RateQuoter interface {
	GetShippingRates(ctx context.Context, address domain.Address, parcel Parcel) ([]Rate, error)
}

// Cheapest picks the lowest quoted amount.
func Cheapest(rates []Rate) (Rate, error) {
	if len(rates) == 0 {
		return Rate{}, ErrNoRates
	}
	best := rates[0]
	for _, rate := range rates[1:] {
		if rate.Amount.LessThan(best.Amount) {
			best = rate
		}
	}
	return best, nil
}

// HTTPQuoter talks to the rate-quote service over JSON.
type HTTPQuoter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPQuoter(baseURL string, timeout time.Duration) *HTTPQuoter {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPQuoter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (q *HTTPQuoter) GetShippingRates(ctx context.Context, address domain.Address, parcel Parcel) ([]Rate, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"address": address,
		"parcel":  parcel,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate quote call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rate response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("rate quote returned %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Rates []Rate `json:"rates"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return out.Rates, nil
}

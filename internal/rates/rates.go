// Package rates looks up currency conversion rates for display and the
// EUR->RUB convert flow. Core settlement never depends on it.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var ErrRateUnavailable = errors.New("rate unavailable")

type Source interface {
	Rates(ctx context.Context, base string) (map[string]float64, error)
}

type Config struct {
	BaseURL string        `env:"RATES_BASE_URL" envDefault:"https://open.er-api.com/v6/latest"`
	Timeout time.Duration `env:"RATES_TIMEOUT" envDefault:"10s"`
	TTL     time.Duration `env:"RATES_CACHE_TTL" envDefault:"60s"`
}

type httpSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(cfg Config) Source {
	return &httpSource{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *httpSource) Rates(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/"+url.PathEscape(base), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRateUnavailable, resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}

	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRateUnavailable, err)
	}

	if len(body.Rates) == 0 {
		return nil, ErrRateUnavailable
	}

	return body.Rates, nil
}

type cacheEntry struct {
	rates     map[string]float64
	fetchedAt time.Time
}

// Cached wraps a Source with a short per-base TTL so the round read and
// balance endpoints don't hammer the upstream API.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	m  map[string]cacheEntry
}

var _ Source = (*Cached)(nil)

func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{
		src: src,
		ttl: ttl,
		now: time.Now,
		m:   make(map[string]cacheEntry),
	}
}

func (c *Cached) Rates(ctx context.Context, base string) (map[string]float64, error) {
	c.mu.Lock()
	entry, ok := c.m[base]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.rates, nil
	}

	rates, err := c.src.Rates(ctx, base)
	if err != nil {
		// serve stale on upstream failure if we have anything at all
		if ok {
			return entry.rates, nil
		}

		return nil, err
	}

	c.mu.Lock()
	c.m[base] = cacheEntry{rates: rates, fetchedAt: c.now()}
	c.mu.Unlock()

	return rates, nil
}

// Rate is a convenience for a single currency pair.
func Rate(ctx context.Context, src Source, base, quote string) (float64, error) {
	rates, err := src.Rates(ctx, base)
	if err != nil {
		return 0, err
	}

	r, ok := rates[quote]
	if !ok || r <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrRateUnavailable, base, quote)
	}

	return r, nil
}

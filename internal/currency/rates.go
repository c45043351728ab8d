package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/syncerror"

	"github.com/shopspring/decimal"
)

// RateProvider returns how many units of to one unit of from buys.
type RateProvider interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticRates is a fixed rate table keyed "FROM->TO". Identity conversions
// always succeed. Missing pairs fail.
type StaticRates struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
	err   error
}

// NewStaticRates returns an empty table.
func NewStaticRates() *StaticRates {
	return &StaticRates{rates: make(map[string]decimal.Decimal)}
}

// Set stores a rate.
func (s *StaticRates) Set(from, to string, rate decimal.Decimal) *StaticRates {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[NormalizeCode(from)+"->"+NormalizeCode(to)] = rate
	return s
}

// SetError makes every lookup fail with err. Pass nil to clear.
func (s *StaticRates) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticRates) FetchRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return decimal.Zero, &syncerror.RateError{From: from, To: to, Err: s.err}
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := s.rates[from+"->"+to]
	if !ok {
		return decimal.Zero, &syncerror.RateError{From: from, To: to, Err: fmt.Errorf("no rate configured")}
	}
	return rate, nil
}

// HTTPRateProvider fetches rates from an open.er-api.com style endpoint:
// GET <BaseURL>/<FROM> returning {"result":"success","rates":{"EUR":0.91}}.
type HTTPRateProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPRateProvider creates a provider with a bounded client timeout.
func NewHTTPRateProvider(baseURL string, timeout time.Duration) *HTTPRateProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRateProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type latestRatesResponse struct {
	Result    string                     `json:"result"`
	ErrorType string                     `json:"error-type"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

func (p *HTTPRateProvider) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, err := p.fetch(ctx, from, to)
	if err != nil {
		return decimal.Zero, &syncerror.RateError{From: from, To: to, Err: err}
	}
	return rate, nil
}

func (p *HTTPRateProvider) fetch(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if p.BaseURL == "" {
		return decimal.Zero, fmt.Errorf("no rate service configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/"+from, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var res latestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if res.Result != "" && res.Result != "success" {
		return decimal.Zero, fmt.Errorf("rate service error: %s", res.ErrorType)
	}
	rate, ok := res.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("currency %s not listed", to)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", rate)
	}
	return rate, nil
}

// Package factorlab provides a Go SDK for the factorlab-server API.
package factorlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"factorlab/internal/domain"
)

// Client provides a Go SDK for interacting with the factorlab-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new factorlab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Backtest runs a backtest for the given request and returns the full
// result: the per-day series, metrics, and the trade ledger.
func (c *Client) Backtest(ctx context.Context, req domain.BacktestRequest) (*domain.BacktestResult, error) {
	var result domain.BacktestResult
	if err := c.post(ctx, "/api/backtest", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate asks the server to generate one alpha factor from a prompt.
func (c *Client) Generate(ctx context.Context, prompt string, cfg domain.GenerationConfig) (*domain.AlphaFactor, error) {
	body := struct {
		Prompt string                  `json:"prompt"`
		Config domain.GenerationConfig `json:"config"`
	}{Prompt: prompt, Config: cfg}

	var factor domain.AlphaFactor
	if err := c.post(ctx, "/api/generate", body, &factor); err != nil {
		return nil, err
	}
	return &factor, nil
}

// GenerateBulk asks the server for a batch of generated factors.
func (c *Client) GenerateBulk(ctx context.Context, count int, cfg domain.GenerationConfig) ([]domain.AlphaFactor, error) {
	body := struct {
		Count  int                     `json:"count"`
		Config domain.GenerationConfig `json:"config"`
	}{Count: count, Config: cfg}

	var factors []domain.AlphaFactor
	if err := c.post(ctx, "/api/generate-bulk", body, &factors); err != nil {
		return nil, err
	}
	return factors, nil
}

// MarketData retrieves the daily price series for a benchmark symbol.
func (c *Client) MarketData(ctx context.Context, benchmark string) ([]domain.PricePoint, error) {
	u := c.baseURL + "/api/market-data?benchmark=" + url.QueryEscape(benchmark)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var points []domain.PricePoint
	if err := c.do(req, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Package executor calls the isolated code-execution sandbox that evaluates
// generated factor code against a daily price frame. The sandbox is a
// separate service; this package only speaks its JSON contract.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"factorlab/internal/domain"
)

// DefaultTimeout bounds one sandbox execution end to end.
const DefaultTimeout = 60 * time.Second

// Client executes factor code via an HTTP sandbox service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a sandbox client for the given base URL. A zero timeout
// falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "executor"),
	}
}

type executeRequest struct {
	Code string      `json:"code"`
	Data executeData `json:"data"`
}

type executeData struct {
	PriceData []domain.PricePoint `json:"priceData"`
	Formula   string              `json:"formula"`
}

type executeResponse struct {
	Status string    `json:"status"`
	Factor []float64 `json:"factor"`
	Error  string    `json:"error"`
	Stdout string    `json:"stdout"`
}

// Execute runs code against prices in the sandbox and returns the factor
// column, one value per price point. A sandbox-reported failure becomes a
// FactorEvaluationError; transport and protocol failures become
// ExternalServiceError.
func (c *Client) Execute(ctx context.Context, code string, prices []domain.PricePoint, formula string) ([]float64, error) {
	body, err := json.Marshal(executeRequest{
		Code: code,
		Data: executeData{PriceData: prices, Formula: formula},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "executor", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "executor", Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExternalServiceError{
			Service: "executor",
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 512)),
		}
	}

	var out executeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ExternalServiceError{Service: "executor", Message: "invalid response: " + err.Error()}
	}

	if out.Stdout != "" {
		c.log.Debug("sandbox stdout", "stdout", truncate(out.Stdout, 2048))
	}

	if out.Status != "success" {
		reason := out.Error
		if reason == "" {
			reason = "sandbox reported status " + out.Status
		}
		return nil, &domain.FactorEvaluationError{Formula: formula, Reason: reason}
	}

	return out.Factor, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

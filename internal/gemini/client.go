// Package gemini generates alpha factors and factor-calculation code with
// the Gemini API. Multiple API keys may be configured; calls rotate through
// them so a quota-exhausted key does not take the feature down.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"factorlab/internal/domain"
)

// DefaultModel is used when the config does not name one.
const DefaultModel = "gemini-3-flash-preview"

// Client generates factors via the Gemini API.
type Client struct {
	keys  []string
	model string
	log   *slog.Logger
}

// NewClient creates a Client over the given API keys. At least one key is
// required.
func NewClient(keys []string, model string, log *slog.Logger) (*Client, error) {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("at least one Gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{keys: clean, model: model, log: log.With("component", "gemini")}, nil
}

// withClient runs fn once per configured key until one succeeds, returning
// the last failure when every key is exhausted.
func (c *Client) withClient(ctx context.Context, fn func(*genai.Client) error) error {
	var lastErr error
	for i, key := range c.keys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = err
			continue
		}
		if err := fn(client); err != nil {
			c.log.Warn("gemini call failed, rotating key", "key_index", i, "error", err)
			lastErr = err
			continue
		}
		return nil
	}
	return &domain.ExternalServiceError{Service: "gemini", Message: lastErr.Error()}
}

// factorSchema is the structured-output schema for one generated factor.
func factorSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":          {Type: genai.TypeString},
			"formula":       {Type: genai.TypeString},
			"description":   {Type: genai.TypeString},
			"intuition":     {Type: genai.TypeString},
			"buyThreshold":  {Type: genai.TypeString},
			"sellThreshold": {Type: genai.TypeString},
			"category":      {Type: genai.TypeString},
		},
		Required: []string{"name", "formula", "description", "intuition", "category"},
	}
}

// factorPayload mirrors the JSON the model is asked to emit.
type factorPayload struct {
	Name          string `json:"name"`
	Formula       string `json:"formula"`
	Description   string `json:"description"`
	Intuition     string `json:"intuition"`
	BuyThreshold  string `json:"buyThreshold"`
	SellThreshold string `json:"sellThreshold"`
	Category      string `json:"category"`
}

func (p factorPayload) toFactor(sources []domain.Source, createdAt int64) domain.AlphaFactor {
	category := p.Category
	if category == "" {
		category = "Custom"
	}
	return domain.AlphaFactor{
		ID:            uuid.NewString(),
		Name:          p.Name,
		Formula:       p.Formula,
		Description:   p.Description,
		Intuition:     p.Intuition,
		Category:      category,
		CreatedAt:     createdAt,
		Sources:       sources,
		BuyThreshold:  p.BuyThreshold,
		SellThreshold: p.SellThreshold,
	}
}

// extractSources pulls grounding references off a response, if any.
func extractSources(resp *genai.GenerateContentResponse) []domain.Source {
	if len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var sources []domain.Source
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = "Market Reference"
		}
		url := chunk.Web.URI
		if url == "" {
			url = "#"
		}
		sources = append(sources, domain.Source{Title: title, URL: url})
	}
	return sources
}

// GenerateFactor generates one alpha factor for the user's prompt.
func (c *Client) GenerateFactor(ctx context.Context, prompt string, cfg domain.GenerationConfig) (*domain.AlphaFactor, error) {
	contents := fmt.Sprintf(
		`Acting as a Senior Quant for BTC markets, generate a sophisticated alpha factor for: %q. `+
			`Universe: %s. Target: %s. `+
			`Incorporate real-time market regime knowledge. The formula must be a valid one-line Pandas/Numpy expression. `+
			`Also provide recommended buy and sell threshold values based on the factor's characteristics.`,
		prompt, cfg.InvestmentUniverse, cfg.TimeHorizon,
	)

	var out *domain.AlphaFactor
	err := c.withClient(ctx, func(client *genai.Client) error {
		resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(contents), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   factorSchema(),
		})
		if err != nil {
			return err
		}
		text := resp.Text()
		if text == "" {
			return fmt.Errorf("empty response")
		}
		var payload factorPayload
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return fmt.Errorf("decoding factor: %w", err)
		}
		f := payload.toFactor(extractSources(resp), time.Now().UnixMilli())
		out = &f
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("factor generated", "name", out.Name, "category", out.Category)
	return out, nil
}

// GenerateBulk generates count diverse alpha factors in one call.
func (c *Client) GenerateBulk(ctx context.Context, count int, cfg domain.GenerationConfig) ([]domain.AlphaFactor, error) {
	contents := bulkPrompt(count)

	var out []domain.AlphaFactor
	err := c.withClient(ctx, func(client *genai.Client) error {
		resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(contents), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type:  genai.TypeArray,
				Items: factorSchema(),
			},
		})
		if err != nil {
			return err
		}
		text := resp.Text()
		if text == "" {
			return fmt.Errorf("empty response")
		}
		var payloads []factorPayload
		if err := json.Unmarshal([]byte(text), &payloads); err != nil {
			return fmt.Errorf("decoding factors: %w", err)
		}
		sources := extractSources(resp)
		now := time.Now().UnixMilli()
		out = make([]domain.AlphaFactor, len(payloads))
		for i, p := range payloads {
			out[i] = p.toFactor(sources, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("bulk factors generated", "requested", count, "returned", len(out))
	return out, nil
}

// GenerateFactorCode turns a formula into a factor-calculation code snippet
// ready for the execution sandbox. Markdown fences are stripped from the
// raw model output.
func (c *Client) GenerateFactorCode(ctx context.Context, formula string) (string, error) {
	contents := fmt.Sprintf(`You are an expert Python developer and Quantitative Analyst.

Your task is to generate ONLY the factor calculation code snippet for a given alpha formula.
This snippet will be executed inside an existing backtest framework that already handles
imports, input parsing, data processing (priceData -> pandas DataFrame df), IC calculation,
backtest simulation, metrics, and JSON output.

Formula: %q

Requirements:
1. Assume a pandas DataFrame named df already exists with columns: 'open', 'high', 'low', 'close', 'volume'.
2. Assume pandas as pd, numpy as np, and pandas_ta as ta are already imported.
3. Compute the alpha factor values from the formula, using pandas_ta indicators where needed.
4. Store the final factor values in df['factor'].
5. Replace inf and -inf with 0 and fill NaN values with 0.
6. Intermediate helper columns are allowed, but the final signal must be in df['factor'].
7. Do not read stdin, compute IC, simulate, print, or return JSON.
8. Output only raw Python code. Do not wrap it in markdown fences.`, formula)

	var out string
	err := c.withClient(ctx, func(client *genai.Client) error {
		resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(contents), &genai.GenerateContentConfig{
			ResponseMIMEType: "text/plain",
		})
		if err != nil {
			return err
		}
		text := resp.Text()
		if text == "" {
			return fmt.Errorf("empty response")
		}
		out = StripFences(text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// StripFences removes markdown code fences the model sometimes adds despite
// being told not to.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```python", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func bulkPrompt(count int) string {
	return fmt.Sprintf(`# Role
Chief Quantitative Strategist

# Word list
- Indicators
  MA, SMA, EMA, MACD, RSI, Bollinger Bands, KDJ, Stochastic Oscillator, CCI, ATR, OBV, Ichimoku Cloud, Parabolic SAR, ADX, MFI, Williams %%R, VWAP, DMI, ROC, Aroon Indicator
- Signal Types
  Golden Cross, Death Cross, Crossover, Divergence, Hidden Divergence, Trend Reversal, Overbought, Oversold, Breakout, False Breakout, Squeeze, Expansion, Zero Line Cross, Midline Cross, Histogram Flip, Histogram Shrink, Failure Swing, Trendline Break, Riding, Slope
- Conditions & Thresholds
  Upper Band, Lower Band, Mid Band, Bandwidth, Signal Line, MACD Line, Histogram, Threshold 70/30, Midline 50, Volume Spike, Volume Shrink, Multi-Timeframe, Synchronous Signal, Momentum Wane, Trend Accelerate, Support Bounce, Resistance Reject, Alignment, Multiple Cross, Time-Serial, Cross-Sectional, D Days, Abs, Log, Sign, Power, Mean_Volume, High-Low, Open-Close, Prev_Close, Turnover
- Composite & Strategy Terms
  Composite Factor, Combine with..., Confirmation Signal, Bullish, Bearish, Long Trend, Short Trend, Range Strategy, Trend Continuation, Reversal Point, Buy Signal, Sell Signal, Filter, Confluence, When...and..., New High/Low

# Task 1: Concept Selection
Select %d unique combinations of concepts from the word list. Ensure diversity in strategy types (Momentum, Mean Reversion, Volatility, etc.).

# Task 2: Factor Generation
For each combination, generate a sophisticated alpha factor tailored for the BTC/Crypto market.
- Context: The crypto market operates 24/7 with high volatility and regime shifts. Factors should be robust to noise.
- Formula: The formula MUST be a valid Python expression using pandas (as pd) and pandas_ta (as ta).
  - Example: ta.rsi(df['close'], length=14) / ta.sma(df['volume'], length=20)
  - Assume df contains 'open', 'high', 'low', 'close', 'volume'.
- Naming: Create a unique, professional name for each factor.
- Intuition: Provide a clear economic or market microstructure intuition.

# Task 3: Optimization & Thresholds
- Analyze recent market trends to suggest optimal buy/sell thresholds.
- Ensure the logic avoids look-ahead bias.

# Core Requirements
- High Information Coefficient (IC).
- Actionability.
- Syntax Accuracy for pandas and pandas_ta.`, count)
}

// Package deepseek adapts the DeepSeek API, which is OpenAI-compatible for
// chat completions but additionally exposes account-credit introspection.
package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cmclachlan/confab/llm"
	"github.com/cmclachlan/confab/llm/openai"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	balancePath    = "/user/balance"
)

// Client implements llm.ProviderAdapter and llm.BalanceReader for DeepSeek.
// Chat traffic rides the OpenAI-compatible adapter; only the balance endpoint
// is vendor-specific.
type Client struct {
	*openai.Client
	apiKey  string
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// New creates a DeepSeek adapter with the given API key and model.
func New(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	inner, err := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Model:   model,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		Client:  inner,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpc:   http.DefaultClient,
		logger:  logger.With().Str("component", "deepseekClient").Logger(),
	}, nil
}

type balanceInfo struct {
	Currency     string `json:"currency"`
	TotalBalance string `json:"total_balance"`
}

type balanceResponse struct {
	IsAvailable  bool          `json:"is_available"`
	BalanceInfos []balanceInfo `json:"balance_infos"`
}

// GetBalance implements llm.BalanceReader against DeepSeek's balance endpoint.
func (c *Client) GetBalance(ctx context.Context) (*llm.Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+balancePath, nil)
	if err != nil {
		return nil, fmt.Errorf("build balance request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, llm.NewProviderError("deepseek balance request failed", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, llm.NewProviderError("deepseek balance request failed", resp.StatusCode, nil)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode balance response: %w", err)
	}
	if len(body.BalanceInfos) == 0 {
		return nil, fmt.Errorf("deepseek balance response had no balance entries")
	}

	info := body.BalanceInfos[0]
	c.logger.Debug().
		Str("currency", info.Currency).
		Str("balance", info.TotalBalance).
		Bool("available", body.IsAvailable).
		Msg("Fetched account balance")

	return &llm.Balance{
		Balance:  info.TotalBalance,
		Currency: info.Currency,
	}, nil
}

// Compile-time capability checks.
var (
	_ llm.ProviderAdapter = (*Client)(nil)
	_ llm.BalanceReader   = (*Client)(nil)
)

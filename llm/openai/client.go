package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/cmclachlan/confab/llm"
)

// Config holds the connection settings for an OpenAI-compatible endpoint.
// BaseURL is empty for the official API; compatible vendors (DeepSeek and
// self-hosted gateways) point it elsewhere.
type Config struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
}

// Client implements llm.ProviderAdapter for OpenAI's chat completions API and
// any API-compatible backend.
type Client struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// New creates an OpenAI adapter from the given config.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger.With().Str("component", "openaiClient").Logger(),
	}, nil
}

// StreamChat implements llm.ProviderAdapter.StreamChat.
func (c *Client) StreamChat(ctx context.Context, history []llm.Message, system string, tools []llm.ToolSpec, onChunk llm.ChunkHandler) (*llm.StreamResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, ToChatMessages(history)...)

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}
	if len(tools) > 0 {
		req.Tools = ToTools(tools)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapError("openai stream request failed", err)
	}
	defer func() { _ = stream.Close() }()

	var text strings.Builder
	assembler := llm.NewCallAssembler()
	// OpenAI keys tool-call fragments by a per-choice index; a fragment
	// without an index continues the most recent call.
	lastIndex := 0

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, wrapError("openai stream failed", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}

		for _, call := range delta.ToolCalls {
			index := lastIndex
			if call.Index != nil {
				index = *call.Index
				lastIndex = index
			}
			if call.ID != "" || call.Function.Name != "" {
				assembler.Begin(index, call.ID, call.Function.Name)
			}
			assembler.AppendArgs(index, call.Function.Arguments)
		}
	}

	return &llm.StreamResult{
		Text:          text.String(),
		FunctionCalls: assembler.Finalize(),
	}, nil
}

// GenerateOnce implements llm.ProviderAdapter.GenerateOnce.
func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", wrapError("openai completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewProviderError("openai returned no choices", 0, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// wrapError converts a vendor error into an llm.Error, preserving the
// original error and HTTP status for the caller's classification.
func wrapError(message string, err error) error {
	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		if apierr.HTTPStatusCode == 429 {
			return llm.NewRateLimitError(message, nil, err)
		}
		return llm.NewProviderError(message, apierr.HTTPStatusCode, err)
	}
	return llm.NewProviderError(message, 0, err)
}

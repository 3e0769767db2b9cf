package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/cmclachlan/confab/llm"
)

const (
	defaultMaxTokens  = 4096
	sideChannelTokens = 1024
)

// Client implements llm.ProviderAdapter for Anthropic's Messages API.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// New creates an Anthropic adapter with the given API key and model.
func New(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// StreamChat implements llm.ProviderAdapter.StreamChat.
func (c *Client) StreamChat(ctx context.Context, history []llm.Message, system string, tools []llm.ToolSpec, onChunk llm.ChunkHandler) (*llm.StreamResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages:  ToMessageParams(history),
		Tools:     ToToolUnionParams(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var text strings.Builder
	assembler := llm.NewCallAssembler()

	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				assembler.Begin(int(evt.Index), block.ID, block.Name)
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(delta.Text)
					}
				}
			case anthropic.InputJSONDelta:
				assembler.AppendArgs(int(evt.Index), delta.PartialJSON)
			}
		case anthropic.MessageDeltaEvent:
			c.logUsage(evt.Usage)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, wrapError("anthropic stream failed", err)
	}

	return &llm.StreamResult{
		Text:          text.String(),
		FunctionCalls: assembler.Finalize(),
	}, nil
}

// GenerateOnce implements llm.ProviderAdapter.GenerateOnce.
func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: sideChannelTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", wrapError("anthropic completion failed", err)
	}

	var text strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (c *Client) logUsage(usage anthropic.MessageDeltaUsage) {
	c.logger.Debug().
		Int64("output_tokens", usage.OutputTokens).
		Msg("Stream usage")
}

// wrapError converts a vendor error into an llm.Error, preserving the
// original error and HTTP status for the caller's classification.
func wrapError(message string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 {
			return llm.NewRateLimitError(message, nil, err)
		}
		return llm.NewProviderError(message, apierr.StatusCode, err)
	}
	return llm.NewProviderError(message, 0, err)
}

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/cmclachlan/confab/llm"
)

const (
	// Local backends may spend a long time loading a model before the first
	// token arrives; the cold-start allowance is deliberately generous.
	defaultFirstTokenTimeout = 2 * time.Minute
	// Once streaming has begun, a long silence means the backend stalled.
	defaultIdleTimeout = 30 * time.Second
)

// Client implements llm.ProviderAdapter for a local Ollama server.
// Ollama has no native request cancellation beyond the context and no vendor
// rate ceiling, but it can stall while loading a model, so both stream phases
// are guarded by watchdog timers.
type Client struct {
	client            *api.Client
	model             string
	firstTokenTimeout time.Duration
	idleTimeout       time.Duration
	logger            zerolog.Logger
}

// New creates an Ollama adapter. If host is empty the client is configured
// from the environment (OLLAMA_HOST or the default localhost port).
func New(host, model string, logger zerolog.Logger) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{
		client:            client,
		model:             model,
		firstTokenTimeout: defaultFirstTokenTimeout,
		idleTimeout:       defaultIdleTimeout,
		logger:            logger.With().Str("component", "ollamaClient").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// StreamChat implements llm.ProviderAdapter.StreamChat.
func (c *Client) StreamChat(ctx context.Context, history []llm.Message, system string, tools []llm.ToolSpec, onChunk llm.ChunkHandler) (*llm.StreamResult, error) {
	messages := make([]api.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, api.Message{Role: "system", Content: system})
	}
	messages = append(messages, ToOllamaMessages(history)...)

	streaming := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &streaming,
	}
	if len(tools) > 0 {
		req.Tools = ToOllamaTools(tools)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan api.ChatResponse, 16)
	errc := make(chan error, 1)
	go func() {
		err := c.client.Chat(streamCtx, req, func(resp api.ChatResponse) error {
			select {
			case chunks <- resp:
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		})
		errc <- err
		close(chunks)
	}()

	var text strings.Builder
	collector := newCallCollector()
	firstToken := false

	watchdog := time.NewTimer(c.firstTokenTimeout)
	defer watchdog.Stop()

	for {
		select {
		case resp, ok := <-chunks:
			if !ok {
				if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
					return nil, llm.NewProviderError("ollama stream failed", 0, err)
				}
				return &llm.StreamResult{
					Text:          text.String(),
					FunctionCalls: collector.calls(),
				}, nil
			}
			firstToken = true
			resetTimer(watchdog, c.idleTimeout)

			if resp.Message.Content != "" {
				text.WriteString(resp.Message.Content)
				if onChunk != nil {
					onChunk(resp.Message.Content)
				}
			}
			for _, call := range resp.Message.ToolCalls {
				collector.add(call)
			}

		case <-watchdog.C:
			cancel()
			if !firstToken {
				c.logger.Warn().Dur("timeout", c.firstTokenTimeout).Msg("No first token before deadline")
				return nil, llm.NewTimeoutError("ollama produced no output; the model may still be loading", nil)
			}
			c.logger.Warn().Dur("timeout", c.idleTimeout).Msg("Stream stalled mid-response")
			return nil, llm.NewTimeoutError("ollama stream stalled mid-response", nil)

		case <-ctx.Done():
			cancel()
			return nil, ctx.Err()
		}
	}
}

// GenerateOnce implements llm.ProviderAdapter.GenerateOnce.
func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	streaming := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream: &streaming,
	}

	var text strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", llm.NewProviderError("ollama completion failed", 0, err)
	}
	return text.String(), nil
}

// resetTimer safely re-arms a timer that may have already fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// callCollector gathers Ollama tool calls across stream chunks. Ollama sends
// complete argument maps per chunk rather than JSON fragments, so arguments
// merge by key; calls are identified positionally and given synthesized ids
// because the wire format carries none.
type callCollector struct {
	order []string
	byKey map[string]*llm.FunctionCall
}

func newCallCollector() *callCollector {
	return &callCollector{byKey: make(map[string]*llm.FunctionCall)}
}

func (cc *callCollector) add(call api.ToolCall) {
	name := call.Function.Name
	existing, ok := cc.byKey[name]
	if !ok {
		existing = &llm.FunctionCall{
			ID:   "call_" + uuid.NewString(),
			Name: name,
			Args: make(map[string]any),
		}
		cc.byKey[name] = existing
		cc.order = append(cc.order, name)
	}
	for k, v := range call.Function.Arguments {
		existing.Args[k] = v
	}
}

func (cc *callCollector) calls() []llm.FunctionCall {
	if len(cc.order) == 0 {
		return nil
	}
	calls := make([]llm.FunctionCall, 0, len(cc.order))
	for _, name := range cc.order {
		calls = append(calls, *cc.byKey[name])
	}
	return calls
}

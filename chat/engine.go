// Package chat implements the conversation engine: a bounded tool-calling
// loop over a single provider adapter, sliding-window admission control, and
// side-channel follow-up suggestion generation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/cmclachlan/confab/llm"
	"github.com/cmclachlan/confab/mcp"
)

// MaxRounds bounds the tool-calling loop. A model that keeps requesting
// tools past this many rounds gets cut off without a final answer.
const MaxRounds = 10

// ErrRoundLimit is returned by SendMessage when the round ceiling is reached
// without the model producing a tool-free final answer. History keeps every
// completed round; no terminal text turn is appended.
var ErrRoundLimit = errors.New("chat: round limit reached without a final answer")

// ToolStatus is the lifecycle phase reported through OnToolStatus.
type ToolStatus string

const (
	ToolStatusCalling ToolStatus = "calling"
	ToolStatusDone    ToolStatus = "done"
)

// Callbacks carries the host-facing event hooks. All fields are optional.
type Callbacks struct {
	// OnTextChunk fires for each streamed text fragment, in provider order.
	OnTextChunk func(chunk string)
	// OnToolStatus fires exactly twice per tool call, calling then done,
	// regardless of whether the call succeeded.
	OnToolStatus func(toolName string, status ToolStatus)
}

// UsageStats is a point-in-time snapshot of the request window for display.
type UsageStats struct {
	Used            int `json:"used"`
	Limit           int `json:"limit"`
	ResetsInSeconds int `json:"resets_in_seconds"`
}

// ToolGateway is the slice of the tool layer the engine needs. Satisfied by
// *mcp.Gateway.
type ToolGateway interface {
	ListAllTools() []mcp.ToolDescriptor
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Engine owns one conversation: its history, its request ledger, and the
// loop that alternates model calls with tool execution. A single Engine
// supports one in-flight SendMessage at a time.
type Engine struct {
	id        string
	logger    zerolog.Logger
	provider  llm.ProviderAdapter
	gateway   ToolGateway
	ledger    *RequestLedger
	callbacks Callbacks
	history   []llm.Message

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine bound to one provider adapter. gateway may be
// nil for a tool-less conversation.
func NewEngine(logger zerolog.Logger, provider llm.ProviderAdapter, gateway ToolGateway, ledger *RequestLedger, callbacks Callbacks) *Engine {
	id := uuid.NewString()
	return &Engine{
		id:        id,
		logger:    logger.With().Str("component", "chatEngine").Str("conversation", id).Logger(),
		provider:  provider,
		gateway:   gateway,
		ledger:    ledger,
		callbacks: callbacks,
		sleep:     sleepCtx,
	}
}

// ID returns the conversation's unique identifier.
func (e *Engine) ID() string {
	return e.id
}

// SendMessage runs the full tool-calling loop for one user message and
// returns the model's final text. Each round waits for admission, streams
// one model response, and either terminates (no tool calls) or executes the
// requested tools sequentially and loops. A provider failure rolls history
// back to its state before the failed round.
func (e *Engine) SendMessage(ctx context.Context, text string, length ResponseLength) (string, error) {
	system := SystemPrompt(length)
	userMessage := llm.NewTextMessage(llm.RoleUser, text)

	for round := 1; round <= MaxRounds; round++ {
		if err := e.ledger.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for request capacity: %w", err)
		}
		e.ledger.Record()

		// Re-gathered each round so mid-conversation catalog changes
		// reach the model.
		tools := e.toolSpecs()

		snapshot := len(e.history)
		if round == 1 {
			e.history = append(e.history, userMessage)
		}

		e.logger.Debug().Int("round", round).Int("history_len", len(e.history)).Msg("Calling provider")
		result, err := e.provider.StreamChat(ctx, e.history, system, tools, e.emitChunk)
		if err != nil {
			e.history = e.history[:snapshot]
			return "", fmt.Errorf("provider stream failed (round %d): %w", round, err)
		}

		if len(result.FunctionCalls) == 0 {
			e.history = append(e.history, llm.NewTextMessage(llm.RoleModel, result.Text))
			return result.Text, nil
		}

		e.history = append(e.history, llm.NewModelTurn(result.Text, result.FunctionCalls))
		e.history = append(e.history, llm.NewFunctionResponseMessage(e.executeCalls(ctx, result.FunctionCalls)))
	}

	e.logger.Warn().Int("max_rounds", MaxRounds).Msg("Round limit reached without a final answer")
	return "", ErrRoundLimit
}

// executeCalls runs the round's tool calls strictly in model order and
// produces exactly one response per call. Failures become an error payload
// in the response rather than aborting the round.
func (e *Engine) executeCalls(ctx context.Context, calls []llm.FunctionCall) []llm.FunctionResponse {
	responses := make([]llm.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		e.emitToolStatus(call.Name, ToolStatusCalling)

		var payload map[string]any
		if e.gateway == nil {
			payload = map[string]any{"error": fmt.Sprintf("no tool gateway configured for tool %s", call.Name)}
		} else if result, err := e.gateway.CallTool(ctx, call.Name, call.Args); err != nil {
			e.logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
			payload = map[string]any{"error": err.Error()}
		} else {
			payload = result
		}

		responses = append(responses, llm.FunctionResponse{
			Name:     call.Name,
			CallID:   call.ID,
			Response: payload,
		})
		e.emitToolStatus(call.Name, ToolStatusDone)
	}
	return responses
}

func (e *Engine) toolSpecs() []llm.ToolSpec {
	if e.gateway == nil {
		return nil
	}
	return lo.Map(e.gateway.ListAllTools(), func(tool mcp.ToolDescriptor, _ int) llm.ToolSpec {
		return llm.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      llm.SchemaFromMap(tool.InputSchema),
		}
	})
}

func (e *Engine) emitChunk(chunk string) {
	if e.callbacks.OnTextChunk != nil {
		e.callbacks.OnTextChunk(chunk)
	}
}

func (e *Engine) emitToolStatus(name string, status ToolStatus) {
	if e.callbacks.OnToolStatus != nil {
		e.callbacks.OnToolStatus(name, status)
	}
}

// History returns a copy of the canonical conversation history.
func (e *Engine) History() []llm.Message {
	return append([]llm.Message(nil), e.history...)
}

// RestoreHistory replaces the conversation history, e.g. when resuming a
// persisted session. The messages are adopted as-is.
func (e *Engine) RestoreHistory(history []llm.Message) {
	e.history = append([]llm.Message(nil), history...)
}

// ClearHistory starts a fresh conversation on the same engine.
func (e *Engine) ClearHistory() {
	e.history = nil
}

// UsageStats reports the current request-window occupancy.
func (e *Engine) UsageStats() UsageStats {
	used, limit, resetsIn := e.ledger.Stats()
	seconds := int(resetsIn.Seconds())
	if resetsIn > 0 && seconds == 0 {
		seconds = 1
	}
	return UsageStats{Used: used, Limit: limit, ResetsInSeconds: seconds}
}

package llm

import (
	"context"
)

// ChunkHandler receives streamed text deltas. Chunks are delivered at most
// once each, in the order the vendor emitted them; no coalescing or
// reordering is performed by any adapter.
type ChunkHandler func(chunk string)

// ProviderAdapter is the provider-neutral contract every vendor implements.
// Implementations convert canonical history to the vendor's native message
// array, issue the request, and convert the vendor's output back into the
// canonical model. Cancellation flows through the context: when it fires,
// the in-flight request is aborted and the call returns promptly.
type ProviderAdapter interface {
	// StreamChat issues a streaming completion over the canonical history.
	// Text deltas are forwarded to onChunk as they arrive; tool-call
	// fragments are accumulated per vendor call index and assembled into
	// complete FunctionCalls only after the stream ends. The returned
	// StreamResult carries the full text and the calls in model order.
	StreamChat(ctx context.Context, history []Message, system string, tools []ToolSpec, onChunk ChunkHandler) (*StreamResult, error)

	// GenerateOnce issues a non-streaming single-turn completion. Used for
	// side-channel tasks such as follow-up suggestion generation, never for
	// the main conversation.
	GenerateOnce(ctx context.Context, prompt string) (string, error)
}

// BalanceReader is an optional capability for vendors that expose account
// credit introspection. Adapters that do not implement it simply don't
// support balance queries; absence is not an error.
type BalanceReader interface {
	GetBalance(ctx context.Context) (*Balance, error)
}

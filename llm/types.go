package llm

import (
	"encoding/json"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleModel MessageRole = "model"
)

// Message represents a single message in a conversation.
// A conversation is an ordered sequence of Messages. Role alternation is not
// enforced: tool-response messages are appended with role user by convention
// of the canonical format, and every adapter relies on that convention when
// converting history to vendor wire formats.
type Message struct {
	Role  MessageRole `json:"role"`
	Parts []Part      `json:"parts"`
}

// Part is a tagged union of the content kinds a Message can carry.
// Exactly one of Text, FunctionCall, or FunctionResponse is populated,
// selected by Type. Parts are ordered; a model turn may mix one Text part
// followed by zero or more FunctionCall parts.
type Part struct {
	Type             PartType          `json:"type"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// PartType represents the kind of content a Part holds.
type PartType string

const (
	PartTypeText             PartType = "text"
	PartTypeFunctionCall     PartType = "function_call"
	PartTypeFunctionResponse PartType = "function_response"
)

// FunctionCall represents a tool invocation requested by the model.
// ID is the vendor-assigned call id where the vendor provides one; adapters
// for vendors without call ids synthesize one.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries the result of a tool invocation back to the model.
// CallID addresses the FunctionCall this responds to. A failed invocation is
// reported through an "error" key in Response rather than an absent part, so
// the model always receives an answer for every call it made.
type FunctionResponse struct {
	Name     string         `json:"name"`
	CallID   string         `json:"callId,omitempty"`
	Response map[string]any `json:"response"`
}

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]any
	Required    []string
	ExtraFields map[string]any
}

// SchemaFromMap builds a ToolSchema from a loosely typed JSON-schema map,
// as produced by MCP tool listings.
func SchemaFromMap(m map[string]any) ToolSchema {
	schema := ToolSchema{
		Type:        "object",
		Properties:  make(map[string]any),
		ExtraFields: make(map[string]any),
	}
	for k, v := range m {
		switch k {
		case "type":
			if s, ok := v.(string); ok && s != "" {
				schema.Type = s
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				for pk, pv := range props {
					schema.Properties[pk] = pv
				}
			}
		case "required":
			switch req := v.(type) {
			case []string:
				schema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		default:
			schema.ExtraFields[k] = v
		}
	}
	return schema
}

// StreamResult is the assembled outcome of one streaming completion: the full
// concatenated text and the tool calls the model requested, in the order the
// model returned them.
type StreamResult struct {
	Text          string
	FunctionCalls []FunctionCall
}

// Balance represents account credit for vendors that expose it.
type Balance struct {
	Balance  string
	Currency string
}

// NewTextMessage creates a message with a single text part.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Parts: []Part{
			{Type: PartTypeText, Text: text},
		},
	}
}

// NewModelTurn creates a model message from streamed output: the text part
// (if any) followed by one FunctionCall part per requested call, preserving
// the model's ordering.
func NewModelTurn(text string, calls []FunctionCall) Message {
	parts := make([]Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, Part{Type: PartTypeText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, Part{Type: PartTypeFunctionCall, FunctionCall: &call})
	}
	return Message{Role: RoleModel, Parts: parts}
}

// NewFunctionResponseMessage creates a user message carrying tool responses.
// All responses for one round travel in a single message.
func NewFunctionResponseMessage(responses []FunctionResponse) Message {
	parts := make([]Part, 0, len(responses))
	for i := range responses {
		resp := responses[i]
		parts = append(parts, Part{Type: PartTypeFunctionResponse, FunctionResponse: &resp})
	}
	return Message{Role: RoleUser, Parts: parts}
}

// TextContent returns the concatenated text parts of a message.
func (m Message) TextContent() string {
	var text string
	for _, part := range m.Parts {
		if part.Type == PartTypeText {
			text += part.Text
		}
	}
	return text
}

// IsTextOnly reports whether the message has at least one part and every part
// is a text part.
func (m Message) IsTextOnly() bool {
	for _, part := range m.Parts {
		if part.Type != PartTypeText {
			return false
		}
	}
	return len(m.Parts) > 0
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

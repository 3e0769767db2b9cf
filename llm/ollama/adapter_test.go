package ollama

import (
	"strings"
	"testing"

	"github.com/cmclachlan/confab/llm"
)

func TestToOllamaMessages_Roles(t *testing.T) {
	msgs := ToOllamaMessages([]llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hello"),
		llm.NewTextMessage(llm.RoleModel, "hi"),
	})

	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("Unexpected roles: %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestToOllamaMessages_ModelTurnWithCalls(t *testing.T) {
	turn := llm.NewModelTurn("checking", []llm.FunctionCall{
		{ID: "call_1", Name: "lookup", Args: map[string]any{"ref": "Psalm 23"}},
	})

	msgs := ToOllamaMessages([]llm.Message{turn})
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 assistant message, got %d", len(msgs))
	}
	if msgs[0].Content != "checking" {
		t.Errorf("Expected text content, got %q", msgs[0].Content)
	}
	if len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(msgs[0].ToolCalls))
	}
	call := msgs[0].ToolCalls[0]
	if call.Function.Name != "lookup" || call.Function.Arguments["ref"] != "Psalm 23" {
		t.Errorf("Unexpected tool call: %+v", call)
	}
}

func TestToOllamaMessages_ResponsesBecomeToolRole(t *testing.T) {
	responses := llm.NewFunctionResponseMessage([]llm.FunctionResponse{
		{Name: "lookup", CallID: "call_1", Response: map[string]any{"text": "The Lord is my shepherd"}},
	})

	msgs := ToOllamaMessages([]llm.Message{responses})
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 tool message, got %d", len(msgs))
	}
	if msgs[0].Role != "tool" {
		t.Errorf("Function responses must use the tool role, got %q", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "shepherd") {
		t.Errorf("Payload should serialize into content: %q", msgs[0].Content)
	}
}

func TestToOllamaTool(t *testing.T) {
	spec := llm.ToolSpec{
		Name:        "lookup",
		Description: "look up a passage",
		Schema: llm.ToolSchema{
			Type: "object",
			Properties: map[string]any{
				"ref":   map[string]any{"type": "string", "description": "passage reference"},
				"count": map[string]any{"type": "integer"},
			},
			Required: []string{"ref"},
		},
	}

	tool := ToOllamaTool(&spec)
	if tool.Type != "function" || tool.Function.Name != "lookup" {
		t.Errorf("Unexpected tool: %+v", tool)
	}
	params := tool.Function.Parameters
	if params.Type != "object" || len(params.Required) != 1 {
		t.Errorf("Unexpected parameters: %+v", params)
	}
	ref := params.Properties["ref"]
	if len(ref.Type) != 1 || ref.Type[0] != "string" || ref.Description != "passage reference" {
		t.Errorf("Unexpected ref property: %+v", ref)
	}
	count := params.Properties["count"]
	if len(count.Type) != 1 || count.Type[0] != "integer" {
		t.Errorf("Unexpected count property: %+v", count)
	}
}

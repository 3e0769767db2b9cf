package llm

import (
	"encoding/json"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	original := []Message{
		NewTextMessage(RoleUser, "what's the weather in Oslo?"),
		NewModelTurn("checking", []FunctionCall{
			{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Oslo"}},
		}),
		NewFunctionResponseMessage([]FunctionResponse{
			{Name: "get_weather", CallID: "call_1", Response: map[string]any{"temp": "4C"}},
		}),
		NewTextMessage(RoleModel, "It's 4C in Oslo."),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal history: %v", err)
	}
	var restored []Message
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal history: %v", err)
	}

	if len(restored) != len(original) {
		t.Fatalf("Expected %d messages, got %d", len(original), len(restored))
	}
	for i, msg := range restored {
		if msg.Role != original[i].Role {
			t.Errorf("Message %d: expected role %q, got %q", i, original[i].Role, msg.Role)
		}
		if len(msg.Parts) != len(original[i].Parts) {
			t.Errorf("Message %d: expected %d parts, got %d", i, len(original[i].Parts), len(msg.Parts))
		}
	}

	call := restored[1].Parts[1].FunctionCall
	if call == nil || call.Name != "get_weather" || call.ID != "call_1" {
		t.Errorf("Function call did not survive round trip: %+v", call)
	}
	resp := restored[2].Parts[0].FunctionResponse
	if resp == nil || resp.CallID != "call_1" {
		t.Errorf("Function response did not survive round trip: %+v", resp)
	}
}

func TestNewModelTurn_Ordering(t *testing.T) {
	calls := []FunctionCall{
		{Name: "first", Args: map[string]any{}},
		{Name: "second", Args: map[string]any{}},
	}
	msg := NewModelTurn("thinking", calls)

	if msg.Role != RoleModel {
		t.Errorf("Expected role model, got %q", msg.Role)
	}
	if len(msg.Parts) != 3 {
		t.Fatalf("Expected 3 parts, got %d", len(msg.Parts))
	}
	if msg.Parts[0].Type != PartTypeText {
		t.Error("Text part should come first")
	}
	if msg.Parts[1].FunctionCall.Name != "first" || msg.Parts[2].FunctionCall.Name != "second" {
		t.Error("Function call parts should preserve model order")
	}
}

func TestNewModelTurn_NoText(t *testing.T) {
	msg := NewModelTurn("", []FunctionCall{{Name: "lookup", Args: map[string]any{}}})
	if len(msg.Parts) != 1 {
		t.Fatalf("Expected 1 part, got %d", len(msg.Parts))
	}
	if msg.Parts[0].Type != PartTypeFunctionCall {
		t.Errorf("Expected function call part, got %q", msg.Parts[0].Type)
	}
}

func TestNewFunctionResponseMessage_RoleUser(t *testing.T) {
	msg := NewFunctionResponseMessage([]FunctionResponse{
		{Name: "a", Response: map[string]any{}},
		{Name: "b", Response: map[string]any{}},
	})
	if msg.Role != RoleUser {
		t.Errorf("Tool responses must ride a user message, got role %q", msg.Role)
	}
	if len(msg.Parts) != 2 {
		t.Errorf("Expected 2 parts, got %d", len(msg.Parts))
	}
}

func TestTextContent(t *testing.T) {
	msg := Message{Role: RoleModel, Parts: []Part{
		{Type: PartTypeText, Text: "hello "},
		{Type: PartTypeFunctionCall, FunctionCall: &FunctionCall{Name: "x"}},
		{Type: PartTypeText, Text: "world"},
	}}
	if got := msg.TextContent(); got != "hello world" {
		t.Errorf("Expected 'hello world', got %q", got)
	}
}

func TestIsTextOnly(t *testing.T) {
	if !NewTextMessage(RoleUser, "hi").IsTextOnly() {
		t.Error("Text message should be text-only")
	}
	if (Message{Role: RoleUser}).IsTextOnly() {
		t.Error("Empty message should not be text-only")
	}
	mixed := NewModelTurn("text", []FunctionCall{{Name: "x", Args: map[string]any{}}})
	if mixed.IsTextOnly() {
		t.Error("Message with function calls should not be text-only")
	}
}

func TestSchemaFromMap(t *testing.T) {
	schema := SchemaFromMap(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ref": map[string]any{"type": "string"},
		},
		"required": []any{"ref"},
		"$defs":    map[string]any{"x": map[string]any{}},
	})

	if schema.Type != "object" {
		t.Errorf("Expected type object, got %q", schema.Type)
	}
	if _, ok := schema.Properties["ref"]; !ok {
		t.Error("Expected 'ref' property")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "ref" {
		t.Errorf("Expected required [ref], got %v", schema.Required)
	}
	if _, ok := schema.ExtraFields["$defs"]; !ok {
		t.Error("Unrecognized schema keys should land in ExtraFields")
	}
}

func TestSchemaFromMap_Empty(t *testing.T) {
	schema := SchemaFromMap(nil)
	if schema.Type != "object" {
		t.Errorf("Empty schema should default to object, got %q", schema.Type)
	}
	if schema.Properties == nil {
		t.Error("Properties should be initialized")
	}
}

package ollama

import (
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
)

func TestCallCollector_MergesByName(t *testing.T) {
	cc := newCallCollector()
	cc.add(api.ToolCall{Function: api.ToolCallFunction{
		Name:      "lookup",
		Arguments: api.ToolCallFunctionArguments{"ref": "John 3:16"},
	}})
	cc.add(api.ToolCall{Function: api.ToolCallFunction{
		Name:      "lookup",
		Arguments: api.ToolCallFunctionArguments{"translation": "KJV"},
	}})

	calls := cc.calls()
	if len(calls) != 1 {
		t.Fatalf("Chunks for the same call must merge, got %d calls", len(calls))
	}
	if calls[0].Args["ref"] != "John 3:16" || calls[0].Args["translation"] != "KJV" {
		t.Errorf("Arguments should merge by key: %v", calls[0].Args)
	}
	if !strings.HasPrefix(calls[0].ID, "call_") {
		t.Errorf("Ids are synthesized with the call_ prefix, got %q", calls[0].ID)
	}
}

func TestCallCollector_PreservesOrder(t *testing.T) {
	cc := newCallCollector()
	cc.add(api.ToolCall{Function: api.ToolCallFunction{Name: "first"}})
	cc.add(api.ToolCall{Function: api.ToolCallFunction{Name: "second"}})
	cc.add(api.ToolCall{Function: api.ToolCallFunction{Name: "first"}})

	calls := cc.calls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 distinct calls, got %d", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("Calls must keep first-seen order: %v", calls)
	}
	if calls[0].ID == calls[1].ID {
		t.Error("Distinct calls need distinct ids")
	}
}

func TestCallCollector_Empty(t *testing.T) {
	cc := newCallCollector()
	if calls := cc.calls(); calls != nil {
		t.Errorf("Expected nil for no calls, got %v", calls)
	}
}

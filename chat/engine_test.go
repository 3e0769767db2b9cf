package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmclachlan/confab/llm"
	"github.com/cmclachlan/confab/mcp"
)

// scriptedProvider plays back a fixed sequence of results, one per round.
// The last entry repeats if the engine asks for more rounds.
type scriptedProvider struct {
	results   []*llm.StreamResult
	errs      []error
	calls     int
	histories [][]llm.Message
	toolsSeen [][]llm.ToolSpec
}

func (p *scriptedProvider) StreamChat(_ context.Context, history []llm.Message, _ string, tools []llm.ToolSpec, onChunk llm.ChunkHandler) (*llm.StreamResult, error) {
	idx := p.calls
	p.calls++
	p.histories = append(p.histories, append([]llm.Message(nil), history...))
	p.toolsSeen = append(p.toolsSeen, tools)
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	result := p.results[idx]
	// Stream the text in two chunks to exercise ordering.
	if result.Text != "" && onChunk != nil {
		mid := len(result.Text) / 2
		onChunk(result.Text[:mid])
		onChunk(result.Text[mid:])
	}
	return result, nil
}

func (p *scriptedProvider) GenerateOnce(_ context.Context, _ string) (string, error) {
	return "", nil
}

type recordedCall struct {
	name string
	args map[string]any
}

type fakeGateway struct {
	tools   []mcp.ToolDescriptor
	results map[string]map[string]any
	errs    map[string]error
	calls   []recordedCall
	onCall  func()
}

func (g *fakeGateway) ListAllTools() []mcp.ToolDescriptor { return g.tools }

func (g *fakeGateway) CallTool(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	g.calls = append(g.calls, recordedCall{name: name, args: args})
	if g.onCall != nil {
		g.onCall()
	}
	if err, ok := g.errs[name]; ok {
		return nil, err
	}
	if result, ok := g.results[name]; ok {
		return result, nil
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

func newTestEngine(provider llm.ProviderAdapter, gateway ToolGateway, callbacks Callbacks) *Engine {
	ledger := NewRequestLedger(zerolog.Nop(), 1000, time.Minute)
	return NewEngine(zerolog.Nop(), provider, gateway, ledger, callbacks)
}

func TestSendMessage_NoToolCalls(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{{Text: "Hi there!"}},
	}
	var chunks []string
	engine := newTestEngine(provider, nil, Callbacks{
		OnTextChunk: func(chunk string) { chunks = append(chunks, chunk) },
	})

	text, err := engine.SendMessage(context.Background(), "hello", ResponseBalanced)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if text != "Hi there!" {
		t.Errorf("Expected 'Hi there!', got %q", text)
	}
	if provider.calls != 1 {
		t.Errorf("A no-tool answer must terminate in exactly 1 round, got %d", provider.calls)
	}

	history := engine.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages in history, got %d", len(history))
	}
	if history[0].Role != llm.RoleUser || history[0].TextContent() != "hello" {
		t.Errorf("First message should be the user text: %+v", history[0])
	}
	if history[1].Role != llm.RoleModel || history[1].TextContent() != "Hi there!" {
		t.Errorf("Second message should be the model answer: %+v", history[1])
	}

	if got := strings.Join(chunks, ""); got != "Hi there!" {
		t.Errorf("Concatenated chunks must reconstruct the full text, got %q", got)
	}
}

func TestSendMessage_ToolLoop(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{Text: "looking it up", FunctionCalls: []llm.FunctionCall{
				{ID: "call_1", Name: "lookup", Args: map[string]any{"ref": "Genesis 1:1"}},
			}},
			{Text: "In the beginning..."},
		},
	}
	gateway := &fakeGateway{
		results: map[string]map[string]any{
			"lookup": {"text": "In the beginning God created the heaven and the earth."},
		},
	}
	var statuses []string
	engine := newTestEngine(provider, gateway, Callbacks{
		OnToolStatus: func(name string, status ToolStatus) {
			statuses = append(statuses, name+":"+string(status))
		},
	})

	text, err := engine.SendMessage(context.Background(), "quote Genesis 1:1", ResponseConcise)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if text != "In the beginning..." {
		t.Errorf("Expected final text, got %q", text)
	}

	if len(gateway.calls) != 1 || gateway.calls[0].name != "lookup" {
		t.Fatalf("Expected one lookup call, got %v", gateway.calls)
	}
	if gateway.calls[0].args["ref"] != "Genesis 1:1" {
		t.Errorf("Tool args should pass through unmodified, got %v", gateway.calls[0].args)
	}

	history := engine.History()
	if len(history) != 4 {
		t.Fatalf("Expected user, model, responses, model; got %d messages", len(history))
	}
	if history[1].Parts[1].FunctionCall == nil {
		t.Error("Round 1 model turn should carry the function call")
	}
	resp := history[2].Parts[0].FunctionResponse
	if history[2].Role != llm.RoleUser || resp == nil {
		t.Fatalf("Tool responses must ride a user message: %+v", history[2])
	}
	if resp.CallID != "call_1" {
		t.Errorf("Response must address the call id, got %q", resp.CallID)
	}

	want := []string{"lookup:calling", "lookup:done"}
	if len(statuses) != 2 || statuses[0] != want[0] || statuses[1] != want[1] {
		t.Errorf("Expected exactly calling then done, got %v", statuses)
	}

	// Round 2 must have seen the full round 1 exchange.
	if len(provider.histories[1]) != 3 {
		t.Errorf("Round 2 should see 3 messages, saw %d", len(provider.histories[1]))
	}
}

func TestSendMessage_RoundLimit(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{FunctionCalls: []llm.FunctionCall{{ID: "c", Name: "lookup", Args: map[string]any{}}}},
		},
	}
	gateway := &fakeGateway{results: map[string]map[string]any{"lookup": {"text": "x"}}}
	engine := newTestEngine(provider, gateway, Callbacks{})

	_, err := engine.SendMessage(context.Background(), "loop forever", ResponseBalanced)
	if !errors.Is(err, ErrRoundLimit) {
		t.Fatalf("Expected ErrRoundLimit, got %v", err)
	}
	if provider.calls != MaxRounds {
		t.Errorf("Expected exactly %d rounds, got %d", MaxRounds, provider.calls)
	}

	// Every completed round stays; no terminal text turn is appended.
	history := engine.History()
	if len(history) != 1+2*MaxRounds {
		t.Errorf("Expected %d history messages, got %d", 1+2*MaxRounds, len(history))
	}
	last := history[len(history)-1]
	if last.Role != llm.RoleUser || last.Parts[0].FunctionResponse == nil {
		t.Errorf("History must end on the last round's tool responses: %+v", last)
	}
}

func TestSendMessage_ToolFailureContinues(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{FunctionCalls: []llm.FunctionCall{{ID: "c1", Name: "lookup", Args: map[string]any{"ref": "Genesis 1:1"}}}},
			{Text: "I couldn't look that up."},
		},
	}
	gateway := &fakeGateway{
		errs: map[string]error{"lookup": errors.New("unknown tool: lookup")},
	}
	engine := newTestEngine(provider, gateway, Callbacks{})

	text, err := engine.SendMessage(context.Background(), "quote Genesis 1:1", ResponseBalanced)
	if err != nil {
		t.Fatalf("A tool failure must not abort the round: %v", err)
	}
	if text != "I couldn't look that up." {
		t.Errorf("Unexpected final text %q", text)
	}
	if provider.calls != 2 {
		t.Errorf("The round should proceed to a second model call, got %d", provider.calls)
	}

	resp := engine.History()[2].Parts[0].FunctionResponse
	errMsg, _ := resp.Response["error"].(string)
	if errMsg == "" || !strings.Contains(errMsg, "lookup") {
		t.Errorf("Failure payload must carry an error naming the tool, got %v", resp.Response)
	}
}

func TestSendMessage_ToolCatalogRefreshedEachRound(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{FunctionCalls: []llm.FunctionCall{{ID: "c1", Name: "lookup", Args: map[string]any{}}}},
			{Text: "done"},
		},
	}
	gateway := &fakeGateway{
		tools:   []mcp.ToolDescriptor{{Name: "lookup", InputSchema: map[string]any{"type": "object"}}},
		results: map[string]map[string]any{"lookup": {"ok": true}},
	}
	// A second tool appears while round 1's call executes.
	gateway.onCall = func() {
		gateway.tools = append(gateway.tools, mcp.ToolDescriptor{
			Name:        "search",
			InputSchema: map[string]any{"type": "object"},
		})
	}
	engine := newTestEngine(provider, gateway, Callbacks{})

	if _, err := engine.SendMessage(context.Background(), "look it up", ResponseBalanced); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(provider.toolsSeen) != 2 {
		t.Fatalf("Expected 2 rounds, got %d", len(provider.toolsSeen))
	}
	if len(provider.toolsSeen[0]) != 1 {
		t.Errorf("Round 1 should see the original catalog, got %d tools", len(provider.toolsSeen[0]))
	}
	if len(provider.toolsSeen[1]) != 2 {
		t.Errorf("Round 2 should see the updated catalog, got %d tools", len(provider.toolsSeen[1]))
	}
}

func TestSendMessage_PerCallResponsePairing(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{FunctionCalls: []llm.FunctionCall{
				{ID: "c1", Name: "alpha", Args: map[string]any{}},
				{ID: "c2", Name: "beta", Args: map[string]any{}},
			}},
			{Text: "done"},
		},
	}
	gateway := &fakeGateway{
		results: map[string]map[string]any{"beta": {"ok": true}},
		errs:    map[string]error{"alpha": errors.New("alpha exploded")},
	}
	engine := newTestEngine(provider, gateway, Callbacks{})

	if _, err := engine.SendMessage(context.Background(), "go", ResponseBalanced); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	responses := engine.History()[2]
	if len(responses.Parts) != 2 {
		t.Fatalf("Expected one response per call in a single message, got %d parts", len(responses.Parts))
	}
	first, second := responses.Parts[0].FunctionResponse, responses.Parts[1].FunctionResponse
	if first.CallID != "c1" || second.CallID != "c2" {
		t.Errorf("Responses must keep call order: %q, %q", first.CallID, second.CallID)
	}
	if _, hasErr := first.Response["error"]; !hasErr {
		t.Error("alpha's failure should surface in its response payload")
	}
	if _, hasErr := second.Response["error"]; hasErr {
		t.Error("beta succeeded and should carry no error")
	}
}

func TestSendMessage_ProviderFailureRollsBackHistory(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{nil},
		errs:    []error{llm.NewProviderError("boom", 500, nil)},
	}
	engine := newTestEngine(provider, nil, Callbacks{})

	_, err := engine.SendMessage(context.Background(), "hello", ResponseBalanced)
	if err == nil {
		t.Fatal("Expected provider failure to propagate")
	}
	if got := llm.StatusCode(err); got != 500 {
		t.Errorf("Vendor status should stay attached, got %d", got)
	}
	if len(engine.History()) != 0 {
		t.Errorf("History must be unchanged after a failed round, got %d messages", len(engine.History()))
	}
}

func TestSendMessage_MidLoopFailureKeepsCompletedRounds(t *testing.T) {
	provider := &scriptedProvider{
		results: []*llm.StreamResult{
			{FunctionCalls: []llm.FunctionCall{{ID: "c1", Name: "lookup", Args: map[string]any{}}}},
			nil,
		},
		errs: []error{nil, llm.NewProviderError("boom", 503, nil)},
	}
	gateway := &fakeGateway{results: map[string]map[string]any{"lookup": {"x": 1}}}
	engine := newTestEngine(provider, gateway, Callbacks{})

	if _, err := engine.SendMessage(context.Background(), "go", ResponseBalanced); err == nil {
		t.Fatal("Expected round 2 failure to propagate")
	}
	// Round 1 completed: user, model turn, tool responses all stay.
	if len(engine.History()) != 3 {
		t.Errorf("Completed rounds must survive a later failure, got %d messages", len(engine.History()))
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	provider := &scriptedProvider{results: []*llm.StreamResult{{Text: "answer"}}}
	engine := newTestEngine(provider, nil, Callbacks{})
	if _, err := engine.SendMessage(context.Background(), "question", ResponseBalanced); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	saved := engine.History()
	engine.ClearHistory()
	if len(engine.History()) != 0 {
		t.Fatal("ClearHistory should empty the conversation")
	}
	engine.RestoreHistory(saved)

	restored := engine.History()
	if len(restored) != len(saved) {
		t.Fatalf("Expected %d messages after restore, got %d", len(saved), len(restored))
	}
	for i := range saved {
		if restored[i].Role != saved[i].Role || restored[i].TextContent() != saved[i].TextContent() {
			t.Errorf("Message %d changed across restore", i)
		}
	}
}

func TestUsageStats(t *testing.T) {
	provider := &scriptedProvider{results: []*llm.StreamResult{{Text: "ok"}}}
	engine := newTestEngine(provider, nil, Callbacks{})

	if _, err := engine.SendMessage(context.Background(), "hi", ResponseBalanced); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	stats := engine.UsageStats()
	if stats.Used != 1 {
		t.Errorf("Expected 1 request used, got %d", stats.Used)
	}
	if stats.Limit != 1000 {
		t.Errorf("Expected limit 1000, got %d", stats.Limit)
	}
	if stats.ResetsInSeconds <= 0 {
		t.Errorf("Expected a positive reset countdown, got %d", stats.ResetsInSeconds)
	}
}

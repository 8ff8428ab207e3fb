package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"libraria/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventRecorder captures emitted turn events in order.
type eventRecorder struct {
	events []domain.TurnEvent
}

func (r *eventRecorder) emit(ev domain.TurnEvent) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t domain.TurnEventType) []domain.TurnEvent {
	var out []domain.TurnEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) last() domain.TurnEvent {
	if len(r.events) == 0 {
		return domain.TurnEvent{}
	}
	return r.events[len(r.events)-1]
}

// scriptedProvider replays a fixed sequence of responses, recording the
// requests it receives. The final response repeats if the loop asks for
// more turns than scripted.
type scriptedProvider struct {
	responses []domain.ChatResponse
	calls     int
	requests  []domain.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	resp := p.responses[i]
	return &resp, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func textResponse(content string) domain.ChatResponse {
	return domain.ChatResponse{
		Model:   "test-model",
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(content string, calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{
		Model:   "test-model",
		Message: domain.Message{Role: domain.RoleAssistant, Content: content, ToolCalls: calls},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// flakyProvider fails a set number of times before delegating.
type flakyProvider struct {
	failures int
	err      error
	calls    int
	final    domain.ChatResponse
}

func (p *flakyProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	resp := p.final
	return &resp, nil
}

func (p *flakyProvider) Name() string { return "flaky" }

// streamProvider replays scripted delta sequences over the streaming
// interface.
type streamProvider struct {
	scripted [][]domain.StreamDelta
	calls    int
}

func (p *streamProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, errors.New("unexpected non-streaming call")
}

func (p *streamProvider) ChatStream(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	i := p.calls
	p.calls++
	if i >= len(p.scripted) {
		i = len(p.scripted) - 1
	}
	ch := make(chan domain.StreamDelta, len(p.scripted[i]))
	for _, d := range p.scripted[i] {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (p *streamProvider) Name() string { return "stream" }

// memConvStore is an in-memory conversation store keyed by user.
type memConvStore struct {
	mu    sync.Mutex
	turns map[string][]domain.Turn
}

func newMemConvStore() *memConvStore {
	return &memConvStore{turns: make(map[string][]domain.Turn)}
}

func (s *memConvStore) key(userID, convID string) string { return userID + "/" + convID }

func (s *memConvStore) CreateConversation(_ context.Context, userID, title string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: "conv-1", UserID: userID, Title: title}, nil
}

func (s *memConvStore) GetConversation(_ context.Context, userID, id string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: id, UserID: userID}, nil
}

func (s *memConvStore) ListConversations(context.Context, string) ([]domain.Conversation, error) {
	return nil, nil
}

func (s *memConvStore) DeleteConversation(context.Context, string, string) error { return nil }

func (s *memConvStore) AppendTurns(_ context.Context, userID, convID string, turns []domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(userID, convID)
	for _, t := range turns {
		t.ConversationID = convID
		t.Position = len(s.turns[k])
		s.turns[k] = append(s.turns[k], t)
	}
	return nil
}

func (s *memConvStore) Turns(_ context.Context, userID, convID string) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.turns[s.key(userID, convID)]...), nil
}

// funcTool wraps a function as a tool for testing.
type funcTool struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.name }
func (t *funcTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.name}
}

func (t *funcTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return t.fn(ctx, params)
}

type fakeExecutor struct {
	tools map[string]domain.Tool
}

func newFakeExecutor(tools ...domain.Tool) *fakeExecutor {
	m := make(map[string]domain.Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &fakeExecutor{tools: m}
}

func (e *fakeExecutor) Get(name string) (domain.Tool, error) {
	t, ok := e.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (e *fakeExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(e.tools))
	for _, t := range e.tools {
		out = append(out, t.Schema())
	}
	return out
}

func echoTool() *funcTool {
	return &funcTool{
		name: "echo",
		fn: func(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
			return &domain.ToolResult{Content: string(params)}, nil
		},
	}
}

func newTestAgent(store domain.ConversationStore, tools domain.ToolExecutor, maxSteps int) *Agent {
	return NewAgent(AgentDeps{
		Tools:         tools,
		Conversations: store,
		Builder:       newTestBuilder(1_000_000),
		Logger:        testLogger(),
		MaxSteps:      maxSteps,
	})
}

func turnReq() TurnRequest {
	return TurnRequest{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Message:        "hello",
		Model:          "test-model",
	}
}

func TestHandleTurnFinalText(t *testing.T) {
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{textResponse("hi there")}}
	agent := newTestAgent(store, newFakeExecutor(), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	done := rec.last()
	if done.Type != domain.EventTurnDone {
		t.Fatalf("last event = %s, want done", done.Type)
	}
	if done.Content != "hi there" {
		t.Errorf("done content = %q", done.Content)
	}
	if done.BudgetExhausted {
		t.Error("budget should not be exhausted")
	}
	if done.Usage == nil || done.Usage.TotalTokens != 15 {
		t.Errorf("done usage = %+v", done.Usage)
	}

	turns, _ := store.Turns(context.Background(), "user-1", "conv-1")
	if len(turns) != 2 {
		t.Fatalf("persisted %d turns, want 2", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[0].Content != "hello" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != domain.RoleAssistant || turns[1].Content != "hi there" {
		t.Errorf("assistant turn = %+v", turns[1])
	}
}

func TestHandleTurnToolCycle(t *testing.T) {
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{
		toolCallResponse("", domain.ToolCall{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"q":"x"}`)}),
		textResponse("the echo said x"),
	}}
	agent := newTestAgent(store, newFakeExecutor(echoTool()), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("provider called %d times, want 2", provider.calls)
	}

	calls := rec.ofType(domain.EventToolCall)
	if len(calls) != 1 || calls[0].Call.Name != "echo" {
		t.Fatalf("tool_call events = %+v", calls)
	}
	results := rec.ofType(domain.EventToolResult)
	if len(results) != 1 {
		t.Fatalf("tool_result events = %d, want 1", len(results))
	}
	if results[0].Result.ToolCallID != "call_1" || results[0].Result.IsError {
		t.Errorf("tool result = %+v", results[0].Result)
	}

	// The second model call must see the tool result in its history,
	// with the system prompt still first.
	second := provider.requests[1]
	if second.Messages[0].Role != domain.RoleSystem {
		t.Errorf("first message role = %s, want system", second.Messages[0].Role)
	}
	var sawToolMsg bool
	for _, m := range second.Messages {
		if m.Role == domain.RoleTool && m.Name == "echo" && strings.Contains(m.Content, `"q":"x"`) {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Error("second request missing tool result message")
	}

	// Only the user/assistant exchange is persisted.
	turns, _ := store.Turns(context.Background(), "user-1", "conv-1")
	if len(turns) != 2 {
		t.Fatalf("persisted %d turns, want 2", len(turns))
	}
}

func TestHandleTurnUnknownTool(t *testing.T) {
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{
		toolCallResponse("", domain.ToolCall{ID: "call_1", Name: "bogus", Arguments: json.RawMessage(`{}`)}),
		textResponse("that tool does not exist"),
	}}
	agent := newTestAgent(store, newFakeExecutor(), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	results := rec.ofType(domain.EventToolResult)
	if len(results) != 1 {
		t.Fatalf("tool_result events = %d, want 1", len(results))
	}
	if !results[0].Result.IsError {
		t.Error("unknown tool should produce an error result")
	}
	if rec.last().Type != domain.EventTurnDone {
		t.Errorf("turn should still finish with done, got %s", rec.last().Type)
	}
}

func TestHandleTurnParallelToolCalls(t *testing.T) {
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{
		toolCallResponse("",
			domain.ToolCall{ID: "call_a", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)},
			domain.ToolCall{ID: "call_b", Name: "echo", Arguments: json.RawMessage(`{"n":2}`)},
		),
		textResponse("done"),
	}}
	agent := newTestAgent(store, newFakeExecutor(echoTool()), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	// Results must come back in request order regardless of which
	// goroutine finished first.
	results := rec.ofType(domain.EventToolResult)
	if len(results) != 2 {
		t.Fatalf("tool_result events = %d, want 2", len(results))
	}
	if results[0].Result.ToolCallID != "call_a" || results[1].Result.ToolCallID != "call_b" {
		t.Errorf("result order = %s, %s", results[0].Result.ToolCallID, results[1].Result.ToolCallID)
	}
}

func TestHandleTurnBudgetExhausted(t *testing.T) {
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{
		toolCallResponse("still working on it", domain.ToolCall{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{}`)}),
	}}
	agent := newTestAgent(store, newFakeExecutor(echoTool()), 3)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("provider called %d times, want 3", provider.calls)
	}

	done := rec.last()
	if done.Type != domain.EventTurnDone || !done.BudgetExhausted {
		t.Fatalf("last event = %+v, want budget-exhausted done", done)
	}
	if done.Content != "still working on it" {
		t.Errorf("done content = %q", done.Content)
	}

	turns, _ := store.Turns(context.Background(), "user-1", "conv-1")
	if len(turns) != 2 || turns[1].Content != "still working on it" {
		t.Errorf("persisted turns = %+v", turns)
	}
}

func TestHandleTurnRetriesTransientError(t *testing.T) {
	store := newMemConvStore()
	provider := &flakyProvider{
		failures: 1,
		err:      fmt.Errorf("upstream: %w", domain.ErrProviderError),
		final:    textResponse("recovered"),
	}
	agent := newTestAgent(store, newFakeExecutor(), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
	if rec.last().Content != "recovered" {
		t.Errorf("done content = %q", rec.last().Content)
	}
}

func TestHandleTurnFatalAuthError(t *testing.T) {
	store := newMemConvStore()
	provider := &flakyProvider{
		failures: 10,
		err:      fmt.Errorf("upstream: %w", domain.ErrAuthInvalid),
	}
	agent := newTestAgent(store, newFakeExecutor(), 10)
	rec := &eventRecorder{}

	err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit)
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if provider.calls != 1 {
		t.Errorf("fatal error retried: %d calls", provider.calls)
	}
	if rec.last().Type != domain.EventTurnError {
		t.Errorf("last event = %s, want error", rec.last().Type)
	}

	// The user turn survives the failure.
	turns, _ := store.Turns(context.Background(), "user-1", "conv-1")
	if len(turns) != 1 || turns[0].Role != domain.RoleUser {
		t.Errorf("persisted turns = %+v", turns)
	}
}

func TestHandleTurnStreaming(t *testing.T) {
	store := newMemConvStore()
	provider := &streamProvider{scripted: [][]domain.StreamDelta{
		{
			{ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)}}},
			{ToolCalls: []domain.ToolCall{{ID: "call_2", Name: "echo", Arguments: json.RawMessage(`{"a":2}`)}}},
			{Done: true, Usage: &domain.Usage{TotalTokens: 20}},
		},
		{
			{Content: "all "},
			{Content: "done"},
			{Done: true, Usage: &domain.Usage{TotalTokens: 8}},
		},
	}}
	agent := newTestAgent(store, newFakeExecutor(echoTool()), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	// Tool calls arriving in separate chunks accumulate as two calls.
	calls := rec.ofType(domain.EventToolCall)
	if len(calls) != 2 {
		t.Fatalf("tool_call events = %d, want 2", len(calls))
	}

	deltas := rec.ofType(domain.EventTextDelta)
	if len(deltas) != 2 || deltas[0].Content != "all " || deltas[1].Content != "done" {
		t.Errorf("text deltas = %+v", deltas)
	}
	if rec.last().Content != "all done" {
		t.Errorf("done content = %q", rec.last().Content)
	}
	if rec.last().Usage == nil || rec.last().Usage.TotalTokens != 28 {
		t.Errorf("done usage = %+v", rec.last().Usage)
	}
}

func TestHandleTurnCancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newMemConvStore()
	provider := &scriptedProvider{responses: []domain.ChatResponse{
		toolCallResponse("", domain.ToolCall{ID: "call_1", Name: "stop", Arguments: json.RawMessage(`{}`)}),
		textResponse("should never be reached"),
	}}
	stopTool := &funcTool{
		name: "stop",
		fn: func(context.Context, json.RawMessage) (*domain.ToolResult, error) {
			cancel()
			return &domain.ToolResult{Content: "stopped"}, nil
		},
	}
	agent := newTestAgent(store, newFakeExecutor(stopTool), 10)
	rec := &eventRecorder{}

	err := agent.HandleTurn(ctx, provider, turnReq(), rec.emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times after cancel, want 1", provider.calls)
	}

	// The in-flight tool still ran to completion.
	results := rec.ofType(domain.EventToolResult)
	if len(results) != 1 || results[0].Result.Content != "stopped" {
		t.Errorf("tool results = %+v", results)
	}
	if rec.last().Type != domain.EventTurnError {
		t.Errorf("last event = %s, want error", rec.last().Type)
	}
}

func TestHandleTurnHistoryReplay(t *testing.T) {
	store := newMemConvStore()
	seed := []domain.Turn{
		{Role: domain.RoleUser, Content: "remember the number 42"},
		{Role: domain.RoleAssistant, Content: "noted"},
	}
	if err := store.AppendTurns(context.Background(), "user-1", "conv-1", seed); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{responses: []domain.ChatResponse{textResponse("it was 42")}}
	agent := newTestAgent(store, newFakeExecutor(), 10)
	rec := &eventRecorder{}

	if err := agent.HandleTurn(context.Background(), provider, turnReq(), rec.emit); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	req := provider.requests[0]
	// system + 2 seeded + new user message
	if len(req.Messages) != 4 {
		t.Fatalf("request has %d messages, want 4", len(req.Messages))
	}
	if req.Messages[1].Content != "remember the number 42" {
		t.Errorf("history not replayed: %+v", req.Messages)
	}
}

func TestRetryBackoff(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := retryBackoff(attempt)
		base := baseRetryDelay * time.Duration(1<<uint(attempt))
		if base > maxRetryDelay {
			base = maxRetryDelay
		}
		if d < base || d > base+base/4 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, d, base, base+base/4)
		}
	}
}

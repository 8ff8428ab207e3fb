package usecase

import (
	"encoding/json"
	"strings"
	"testing"

	"libraria/internal/domain"
)

// newTestBuilder builds a ContextBuilder with the deterministic byte
// estimator so tests never depend on a tokenizer vocabulary download.
func newTestBuilder(tokenBudget int) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: DefaultSystemPrompt,
		tokenBudget:  tokenBudget,
		counter:      estimateCounter{},
	}
}

func userMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}

func assistantMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: content}
}

func TestBuildSystemPromptFirst(t *testing.T) {
	cb := newTestBuilder(100_000)
	tools := []domain.ToolSchema{{Name: "search_media"}}

	req := cb.Build("gemini-2.5-flash", []domain.Message{userMsg("hi")}, tools)

	if req.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", req.Model)
	}
	if !req.Stream {
		t.Error("request should ask for streaming")
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != domain.RoleSystem || req.Messages[0].Content != DefaultSystemPrompt {
		t.Error("first message must be the system prompt")
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "search_media" {
		t.Errorf("tools = %+v", req.Tools)
	}
}

func TestBuildCustomSystemPrompt(t *testing.T) {
	cb := NewContextBuilder("You are a test harness.", 1000)
	req := cb.Build("m", nil, nil)
	if req.Messages[0].Content != "You are a test harness." {
		t.Errorf("system prompt = %q", req.Messages[0].Content)
	}
}

func TestTrimDropsOldestFirst(t *testing.T) {
	// System prompt costs ~len/4 tokens; leave room for roughly two of
	// the 400-byte messages below (100 tokens each plus overhead).
	budget := len(DefaultSystemPrompt)/4 + 230
	cb := newTestBuilder(budget)

	filler := strings.Repeat("x", 400)
	history := []domain.Message{
		userMsg("oldest " + filler),
		assistantMsg("middle " + filler),
		userMsg("newest " + filler),
	}

	req := cb.Build("m", history, nil)

	// system + the two newest messages
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if !strings.HasPrefix(req.Messages[1].Content, "middle") {
		t.Errorf("second message = %q", req.Messages[1].Content[:20])
	}
	if !strings.HasPrefix(req.Messages[2].Content, "newest") {
		t.Errorf("third message = %q", req.Messages[2].Content[:20])
	}
}

func TestTrimKeepsNewestEvenOverBudget(t *testing.T) {
	cb := newTestBuilder(len(DefaultSystemPrompt)/4 + 10)

	history := []domain.Message{
		userMsg(strings.Repeat("a", 2000)),
		userMsg(strings.Repeat("b", 2000)),
	}

	req := cb.Build("m", history, nil)
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want system + newest", len(req.Messages))
	}
	if !strings.HasPrefix(req.Messages[1].Content, "b") {
		t.Error("trim must keep the newest message")
	}
}

func TestTrimKeepsToolGroupsAtomic(t *testing.T) {
	call := domain.ToolCall{ID: "call_1", Name: "search_media", Arguments: json.RawMessage(`{}`)}
	toolUse := domain.Message{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call}}
	toolResult := domain.Message{Role: domain.RoleTool, Name: "search_media", Content: strings.Repeat("r", 400)}

	history := []domain.Message{
		userMsg("old question " + strings.Repeat("x", 400)),
		toolUse,
		toolResult,
		assistantMsg("old answer"),
		userMsg("new question"),
	}

	// Budget that fits the tool group plus the tail but not the oldest
	// user message.
	budget := len(DefaultSystemPrompt)/4 + 130
	cb := newTestBuilder(budget)

	req := cb.Build("m", history, nil)

	// The assistant tool-use message must never appear without its
	// result, or vice versa.
	var hasToolUse, hasToolResult bool
	for _, m := range req.Messages {
		if m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0 {
			hasToolUse = true
		}
		if m.Role == domain.RoleTool {
			hasToolResult = true
		}
	}
	if hasToolUse != hasToolResult {
		t.Errorf("tool group split: use=%v result=%v", hasToolUse, hasToolResult)
	}
	if !strings.HasPrefix(req.Messages[len(req.Messages)-1].Content, "new question") {
		t.Error("newest message must survive trimming")
	}
}

func TestGroupMessages(t *testing.T) {
	call := domain.ToolCall{ID: "c1", Name: "echo"}
	msgs := []domain.Message{
		userMsg("one"),
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call}},
		{Role: domain.RoleTool, Name: "echo", Content: "r1"},
		{Role: domain.RoleTool, Name: "echo", Content: "r2"},
		assistantMsg("final"),
	}

	groups := groupMessages(msgs)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if len(groups[1]) != 3 {
		t.Errorf("tool group size = %d, want 3", len(groups[1]))
	}
	if len(groups[0]) != 1 || len(groups[2]) != 1 {
		t.Error("plain messages should be singleton groups")
	}
}

func TestMessageTokensIncludesToolCalls(t *testing.T) {
	cb := newTestBuilder(1000)
	plain := userMsg("hello world")
	withCall := domain.Message{
		Role:      domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{Name: "search_media", Arguments: json.RawMessage(`{"query":"dune"}`)}},
	}
	if cb.messageTokens(withCall) <= cb.messageTokens(domain.Message{Role: domain.RoleAssistant}) {
		t.Error("tool call arguments must count toward the budget")
	}
	if cb.messageTokens(plain) < 4 {
		t.Error("per-message overhead missing")
	}
}

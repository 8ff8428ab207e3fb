package usecase

import (
	"time"

	"github.com/pkoukk/tiktoken-go"

	"libraria/internal/domain"
)

// DefaultSystemPrompt guides the model's tool use and tone.
const DefaultSystemPrompt = `You are Libraria AI, an intelligent assistant for managing a personal media library.

You have access to the following specialized tools:

**Media Management (Librarian)**:
- search_media: Search and filter media items
- create_media: Add new media items
- update_media: Update existing items
- delete_media: Delete items

**Analytics (Analyst)**:
- analyze_data: Query analytics and generate insights

**Web Search (Web Surfer)**:
- search_web: Search the internet for information

**Collections (Collection Manager)**:
- search_collections: List and search collections
- create_collection: Create new collections
- add_media_to_collection: Add items to collections
- remove_media_from_collection: Remove items from collections
- delete_collection: Delete collections

**Guidelines**:
- Use tools proactively when the user's request requires data operations
- For complex multi-step requests, explain your plan before executing
- Always confirm destructive actions (delete) before proceeding
- Format responses clearly with markdown
- When showing media items, present them in a readable list format
- If a tool returns an error, explain it to the user
- Be concise but informative
- When the user asks about their library, USE the search_media tool
- When adding items, confirm what was added
- For web searches, summarize the results clearly`

// ContextBuilder constructs the prompt message array for LLM calls,
// trimming oldest history to a token budget.
type ContextBuilder struct {
	systemPrompt string
	tokenBudget  int
	counter      tokenCounter
}

// tokenCounter abstracts token counting so the builder works without
// a tokenizer vocabulary available.
type tokenCounter interface {
	Count(text string) int
}

// NewContextBuilder creates a context builder. Token counting uses the
// cl100k_base tokenizer when its vocabulary can be loaded, otherwise a
// bytes/4 estimator; Gemini has no public tokenizer, so either way the
// budget is an approximation applied conservatively.
func NewContextBuilder(systemPrompt string, tokenBudget int) *ContextBuilder {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if tokenBudget <= 0 {
		tokenBudget = 24_000
	}

	var counter tokenCounter = estimateCounter{}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		counter = &tiktokenCounter{enc: enc}
	}

	return &ContextBuilder{
		systemPrompt: systemPrompt,
		tokenBudget:  tokenBudget,
		counter:      counter,
	}
}

// Build assembles: system prompt + token-trimmed history.
func (cb *ContextBuilder) Build(model string, history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	messages := make([]domain.Message, 0, 1+len(history))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   cb.systemPrompt,
		Timestamp: time.Now(),
	})
	messages = append(messages, cb.trimHistory(history)...)

	return domain.ChatRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
		Stream:   true,
	}
}

// trimHistory drops the oldest messages until the remainder fits the
// token budget. Messages are partitioned into atomic groups so an
// assistant message with tool calls is never separated from its tool
// results.
func (cb *ContextBuilder) trimHistory(history []domain.Message) []domain.Message {
	budget := cb.tokenBudget - cb.counter.Count(cb.systemPrompt)

	groups := groupMessages(history)

	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		groupTokens := 0
		for _, m := range groups[i] {
			groupTokens += cb.messageTokens(m)
		}
		if total+groupTokens > budget && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += groupTokens
	}

	// Reverse to restore chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]domain.Message, 0, len(history))
	for _, g := range kept {
		result = append(result, g...)
	}
	return result
}

// messageTokens approximates a message's prompt cost, including a small
// per-message framing overhead and tool call arguments.
func (cb *ContextBuilder) messageTokens(m domain.Message) int {
	tokens := 4 + cb.counter.Count(m.Content)
	for _, tc := range m.ToolCalls {
		tokens += cb.counter.Count(tc.Name) + cb.counter.Count(string(tc.Arguments))
	}
	return tokens
}

// groupMessages partitions messages into atomic groups.
// An assistant message with tool calls and its immediately following
// tool result messages form a single group. All other messages are
// individual groups.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// estimateCounter approximates 4 bytes per token.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int { return len(text) / 4 }

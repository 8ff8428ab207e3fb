package domain

// TurnEventType identifies one event in the ordered stream produced
// while handling a single user turn.
type TurnEventType string

const (
	EventTextDelta  TurnEventType = "text_delta"
	EventToolCall   TurnEventType = "tool_call"
	EventToolResult TurnEventType = "tool_result"
	EventTurnDone   TurnEventType = "done"
	EventTurnError  TurnEventType = "error"
)

// TurnEvent is one element of the stream a turn produces. The stream is
// finite and not restartable: one stream per turn, ending with exactly
// one done or error event.
type TurnEvent struct {
	Type    TurnEventType `json:"type"`
	Content string        `json:"content,omitempty"` // text delta, final text, or error message
	Call    *ToolCall     `json:"call,omitempty"`    // set for tool_call
	Result  *ToolResult   `json:"result,omitempty"`  // set for tool_result
	Step    int           `json:"step,omitempty"`    // planning step index

	// BudgetExhausted marks a done event produced because the step
	// budget ran out; Content still carries a best-effort final text.
	BudgetExhausted bool `json:"budget_exhausted,omitempty"`

	Usage *Usage `json:"usage,omitempty"` // set on done
}

// EmitFunc receives turn events in order. Implementations must be safe
// to call from the goroutine running the loop; they should not block
// longer than the caller is willing to stall the stream.
type EmitFunc func(TurnEvent)

package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"libraria/internal/domain"
	"libraria/internal/infra/tracer"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Tools         domain.ToolExecutor
	Conversations domain.ConversationStore
	Builder       *ContextBuilder
	Logger        *slog.Logger
	MaxSteps      int
}

// Agent drives the bounded planning/tool-execution loop for one user
// turn. The LLM provider is passed per call because it is constructed
// around the caller's own API key.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = 10
	}
	return &Agent{deps: deps}
}

// TurnRequest identifies one user turn.
type TurnRequest struct {
	UserID         string
	ConversationID string
	Message        string
	Model          string
}

// HandleTurn runs the loop for one turn, emitting ordered events and
// persisting the user and final assistant turns. The emitted stream
// always terminates with exactly one done or error event.
//
// Failure semantics: tool failures are data fed back to the model and
// never abort the loop. Only an unrecoverable provider failure (or
// retry exhaustion) aborts the turn with an error event.
func (a *Agent) HandleTurn(ctx context.Context, provider domain.LLMProvider, req TurnRequest, emit domain.EmitFunc) error {
	ctx, span := tracer.StartSpan(ctx, "agent.handle_turn",
		trace.WithAttributes(tracer.StringAttr("conversation.id", req.ConversationID)),
	)
	defer span.End()

	history, err := a.loadHistory(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		emit(domain.TurnEvent{Type: domain.EventTurnError, Content: err.Error()})
		return err
	}

	userMsg := domain.Message{Role: domain.RoleUser, Content: req.Message, Timestamp: time.Now()}
	history = append(history, userMsg)

	// The user turn is persisted up front so it survives provider
	// failures later in the loop.
	if err := a.appendTurn(ctx, req, domain.RoleUser, req.Message); err != nil {
		tracer.RecordError(span, err)
		emit(domain.TurnEvent{Type: domain.EventTurnError, Content: err.Error()})
		return err
	}

	var totalUsage domain.Usage
	var lastText string

	for step := 0; step < a.deps.MaxSteps; step++ {
		// Caller gone: finish without starting another planning cycle.
		if ctx.Err() != nil {
			emit(domain.TurnEvent{Type: domain.EventTurnError, Content: "request cancelled"})
			return ctx.Err()
		}

		span.AddEvent("agent.step", trace.WithAttributes(tracer.IntAttr("step", step)))

		chatReq := a.deps.Builder.Build(req.Model, history, a.deps.Tools.Schemas())

		msg, usage, llmErr := a.callLLMWithRetry(ctx, provider, chatReq, step, emit)
		if llmErr != nil {
			tracer.RecordError(span, llmErr)
			emit(domain.TurnEvent{Type: domain.EventTurnError, Content: llmErr.Error()})
			return llmErr
		}

		totalUsage.PromptTokens += usage.PromptTokens
		totalUsage.CompletionTokens += usage.CompletionTokens
		totalUsage.TotalTokens += usage.TotalTokens

		history = append(history, msg)
		if msg.Content != "" {
			lastText = msg.Content
		}

		a.deps.Logger.Debug("planning step completed",
			"step", step,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			if err := a.appendTurn(ctx, req, domain.RoleAssistant, msg.Content); err != nil {
				a.deps.Logger.Warn("persist assistant turn failed", "error", err)
			}
			emit(domain.TurnEvent{
				Type:    domain.EventTurnDone,
				Content: msg.Content,
				Usage:   &totalUsage,
			})
			tracer.SetOK(span)
			return nil
		}

		history = append(history, a.executeStep(ctx, msg.ToolCalls, step, emit)...)
	}

	// Budget exhausted: terminate with whatever text the model last
	// produced rather than spinning another cycle.
	span.AddEvent("agent.budget_exhausted")
	if lastText == "" {
		lastText = "I couldn't complete this request within the allowed number of steps. Please try a more specific request."
	}
	if err := a.appendTurn(ctx, req, domain.RoleAssistant, lastText); err != nil {
		a.deps.Logger.Warn("persist assistant turn failed", "error", err)
	}
	emit(domain.TurnEvent{
		Type:            domain.EventTurnDone,
		Content:         lastText,
		BudgetExhausted: true,
		Usage:           &totalUsage,
	})
	return nil
}

// executeStep runs all tool calls from one planning step concurrently
// and returns their result messages in request order. Execution uses a
// detached context so in-flight calls finish even when the caller
// disconnects mid-stream.
func (a *Agent) executeStep(ctx context.Context, calls []domain.ToolCall, step int, emit domain.EmitFunc) []domain.Message {
	for i := range calls {
		emit(domain.TurnEvent{Type: domain.EventToolCall, Call: &calls[i], Step: step})
	}

	execCtx := context.WithoutCancel(ctx)

	results := make([]*domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c domain.ToolCall) {
			defer wg.Done()
			results[idx] = a.executeTool(execCtx, c)
		}(i, call)
	}
	wg.Wait()

	msgs := make([]domain.Message, len(calls))
	for i, call := range calls {
		emit(domain.TurnEvent{Type: domain.EventToolResult, Result: results[i], Step: step})
		msgs[i] = domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   results[i].Content,
			ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
			Timestamp: time.Now(),
		}
	}
	return msgs
}

// executeTool runs a single tool call. Every failure mode, including an
// unknown tool name, becomes an error result so the model always gets a
// result for every call id it issued.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	t, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return &domain.ToolResult{ToolCallID: call.ID, IsError: true, Content: err.Error()}
	}

	result, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return &domain.ToolResult{ToolCallID: call.ID, IsError: true, Content: err.Error()}
	}

	result.ToolCallID = call.ID
	tracer.SetOK(span)
	return result
}

// callLLMWithRetry performs the model call, streaming deltas through
// emit when the provider supports it. Transient errors are retried with
// exponential backoff; fatal errors (auth) fail immediately.
func (a *Agent) callLLMWithRetry(
	ctx context.Context,
	provider domain.LLMProvider,
	chatReq domain.ChatRequest,
	step int,
	emit domain.EmitFunc,
) (domain.Message, domain.Usage, error) {
	sp, streaming := provider.(domain.StreamingLLMProvider)

	var lastErr error
	for attempt := 0; attempt < maxLLMRetries; attempt++ {
		var msg domain.Message
		var usage domain.Usage
		var callErr error

		if streaming {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_stream")
			deltaCh, err := sp.ChatStream(llmCtx, chatReq)
			llmSpan.End()

			if err != nil {
				callErr = err
			} else {
				acc := newStreamAccumulator()
				for delta := range deltaCh {
					acc.addDelta(delta)
					if delta.Content != "" {
						emit(domain.TurnEvent{Type: domain.EventTextDelta, Content: delta.Content, Step: step})
					}
				}
				msg, usage = acc.build()
			}
		} else {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
			resp, err := provider.Chat(llmCtx, chatReq)
			llmSpan.End()

			if err != nil {
				callErr = err
			} else {
				msg = resp.Message
				usage = resp.Usage
				if msg.Content != "" {
					emit(domain.TurnEvent{Type: domain.EventTextDelta, Content: msg.Content, Step: step})
				}
			}
		}

		if callErr == nil {
			return msg, usage, nil
		}
		lastErr = callErr

		if !domain.IsRetryableError(callErr) || attempt == maxLLMRetries-1 {
			return domain.Message{}, domain.Usage{}, lastErr
		}

		delay := retryBackoff(attempt)
		a.deps.Logger.Info("retrying model call after error",
			"attempt", attempt+1, "delay", delay, "error", callErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Message{}, domain.Usage{}, ctx.Err()
		}
	}

	return domain.Message{}, domain.Usage{}, lastErr
}

func (a *Agent) loadHistory(ctx context.Context, req TurnRequest) ([]domain.Message, error) {
	turns, err := a.deps.Conversations.Turns(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, domain.WrapOp("Agent.HandleTurn", err)
	}

	msgs := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, domain.Message{
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.CreatedAt,
		})
	}
	return msgs, nil
}

// appendTurn persists one turn. Tool transcripts stay in working memory
// only; the store records the user/assistant exchange.
func (a *Agent) appendTurn(ctx context.Context, req TurnRequest, role, content string) error {
	return a.deps.Conversations.AppendTurns(ctx, req.UserID, req.ConversationID, []domain.Turn{
		{Role: role, Content: content},
	})
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// streamAccumulator collects incremental deltas into a complete message.
// Gemini emits each function call fully formed in a single chunk, so
// tool calls append rather than merge.
type streamAccumulator struct {
	content   strings.Builder
	toolCalls []domain.ToolCall
	usage     domain.Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)
	acc.toolCalls = append(acc.toolCalls, delta.ToolCalls...)

	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

func (acc *streamAccumulator) build() (domain.Message, domain.Usage) {
	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   acc.content.String(),
		ToolCalls: acc.toolCalls,
		Timestamp: time.Now(),
	}
	return msg, acc.usage
}

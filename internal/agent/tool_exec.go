package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openvia/openvia/internal/observability"
	"github.com/openvia/openvia/pkg/models"
)

// ToolExecConfig configures per-call timeout and retry behavior for the
// ToolExecutor. The Orchestrator executes tool calls from one LLM round
// sequentially (spec §4.6 "Ordering guarantees"); this type bounds each
// individual call rather than fanning calls out concurrently.
type ToolExecConfig struct {
	// PerToolTimeout bounds one execution attempt. Default: 30 seconds.
	PerToolTimeout time.Duration

	// MaxAttempts is the number of attempts per call. Default: 1.
	MaxAttempts int

	// RetryBackoff waits between retries.
	RetryBackoff time.Duration
}

// DefaultToolExecConfig returns sensible defaults: one attempt, 30 second
// timeout, no backoff.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{
		PerToolTimeout: 30 * time.Second,
		MaxAttempts:    1,
	}
}

func (c ToolExecConfig) sanitized() ToolExecConfig {
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// ToolExecutor wraps an Executor with a timeout and retry policy for a
// single tool call, grounded on the same timeout-discards-late-result
// pattern the teacher's tool executor uses to avoid leaking a goroutine
// when the caller has already moved on.
type ToolExecutor struct {
	executor *Executor
	config   ToolExecConfig
	tracer   *observability.Tracer
}

// NewToolExecutor creates a ToolExecutor.
func NewToolExecutor(executor *Executor, config ToolExecConfig) *ToolExecutor {
	return &ToolExecutor{executor: executor, config: config.sanitized()}
}

// SetTracer wires a Tracer so every call opens a tool-execution span.
// Optional: a ToolExecutor with no Tracer traces nothing.
func (e *ToolExecutor) SetTracer(tracer *observability.Tracer) {
	e.tracer = tracer
}

// Execute runs one tool call with the configured timeout and retry policy.
// Each failure is classified into a ToolError; retries stop early once the
// classified type is no longer retryable, the same classify-then-retry
// split executor.go uses in the teacher.
func (e *ToolExecutor) Execute(ctx context.Context, execCtx models.ExecContext, toolCallID, toolName string, args json.RawMessage) models.ToolResult {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.TraceToolExecution(ctx, toolName)
		defer span.End()
	}

	var result models.ToolResult
	var lastErr *ToolError
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		result, lastErr = e.executeWithTimeout(attemptCtx, execCtx, toolCallID, toolName, args)
		cancel()

		if result.Success {
			return result
		}
		if lastErr == nil {
			break
		}
		lastErr.WithAttempts(attempt)
		if !lastErr.Retryable || attempt >= e.config.MaxAttempts {
			break
		}
		if e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				return models.ToolResult{Success: false, Error: "tool execution canceled"}
			}
		}
	}
	if lastErr != nil {
		slog.Warn("tool execution failed",
			"tool", toolName, "type", lastErr.Type, "retryable", lastErr.Retryable,
			"attempts", lastErr.Attempts, "error", lastErr.Message,
			"session_id", observability.GetSessionID(ctx))
		if e.tracer != nil {
			e.tracer.RecordError(trace.SpanFromContext(ctx), lastErr)
		}
	}
	return result
}

func (e *ToolExecutor) executeWithTimeout(ctx context.Context, execCtx models.ExecContext, toolCallID, toolName string, args json.RawMessage) (models.ToolResult, *ToolError) {
	type outcome struct{ result models.ToolResult }
	done := make(chan outcome, 1)

	go func() {
		result := e.executor.Execute(execCtx, toolName, args)
		select {
		case done <- outcome{result: result}:
		default:
			slog.Warn("tool execution completed after timeout, result discarded",
				"tool", toolName, "user_id", execCtx.UserID, "chat_id", execCtx.ChatID)
		}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			toolErr := NewToolError(toolName, ErrToolTimeout).
				WithType(ToolErrorTimeout).
				WithToolCallID(toolCallID).
				WithMessage(fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout))
			return models.ToolResult{Success: false, Error: toolErr.Message}, toolErr
		}
		return models.ToolResult{Success: false, Error: "tool execution canceled"}, nil
	case out := <-done:
		if out.result.Success {
			return out.result, nil
		}
		toolErr := NewToolError(toolName, errors.New(out.result.Error)).WithToolCallID(toolCallID)
		return out.result, toolErr
	}
}

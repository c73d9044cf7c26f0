package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/openvia/openvia/pkg/models"
)

func newTestRegistryWith(t *testing.T, def models.ToolDefinition) *ToolRegistry {
	t.Helper()
	registry := NewToolRegistry()
	if err := registry.Register(def); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	return registry
}

func TestToolExecutor_Success(t *testing.T) {
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name:        "echo",
		Description: "echoes input",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: true, Data: "ok"}
		},
	})

	executor := NewToolExecutor(NewExecutor(registry), DefaultToolExecConfig())
	result := executor.Execute(context.Background(), models.ExecContext{UserID: "u1", ChatID: "c1"}, "call-1", "echo", json.RawMessage(`{}`))

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Data != "ok" {
		t.Errorf("got data %v, want ok", result.Data)
	}
}

func TestToolExecutor_TimesOut(t *testing.T) {
	blocked := make(chan struct{})
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name: "slow",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			<-blocked
			return models.ToolResult{Success: true}
		},
	})
	defer close(blocked)

	executor := NewToolExecutor(NewExecutor(registry), ToolExecConfig{
		PerToolTimeout: 20 * time.Millisecond,
		MaxAttempts:    1,
	})

	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "slow", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected timeout failure, got success")
	}
}

// TestToolExecutor_RetriesUntilSuccess uses a "connection refused" failure,
// which classifyToolError maps to ToolErrorNetwork (retryable) — the flaky
// attempts are retried until the tool succeeds.
func TestToolExecutor_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name: "flaky",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			attempts++
			if attempts < 3 {
				return models.ToolResult{Success: false, Error: "connection refused"}
			}
			return models.ToolResult{Success: true}
		},
	})

	executor := NewToolExecutor(NewExecutor(registry), ToolExecConfig{
		PerToolTimeout: time.Second,
		MaxAttempts:    3,
	})

	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "flaky", json.RawMessage(`{}`))
	if !result.Success {
		t.Fatalf("expected eventual success, got error: %s", result.Error)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestToolExecutor_ExhaustsRetries(t *testing.T) {
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name: "alwaysfails",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: false, Error: "connection refused"}
		},
	})

	executor := NewToolExecutor(NewExecutor(registry), ToolExecConfig{
		PerToolTimeout: time.Second,
		MaxAttempts:    2,
	})

	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "alwaysfails", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if result.Error != "connection refused" {
		t.Errorf("got error %q, want %q", result.Error, "connection refused")
	}
}

// TestToolExecutor_NonRetryableStopsEarly checks that a permission-denied
// style failure (classified ToolErrorPermission, not retryable) burns only
// one attempt even though MaxAttempts allows more.
func TestToolExecutor_NonRetryableStopsEarly(t *testing.T) {
	attempts := 0
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name: "forbidden",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			attempts++
			return models.ToolResult{Success: false, Error: "permission denied"}
		},
	})

	executor := NewToolExecutor(NewExecutor(registry), ToolExecConfig{
		PerToolTimeout: time.Second,
		MaxAttempts:    5,
	})

	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "forbidden", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure")
	}
	if attempts != 1 {
		t.Errorf("got %d attempts, want 1 (non-retryable error should not be retried)", attempts)
	}
}

func TestToolExecutor_UnknownTool(t *testing.T) {
	registry := NewToolRegistry()
	executor := NewToolExecutor(NewExecutor(registry), DefaultToolExecConfig())

	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "missing", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
}

func TestToolExecutor_PanicRecovered(t *testing.T) {
	registry := newTestRegistryWith(t, models.ToolDefinition{
		Name: "panicky",
		Executor: func(ctx models.ExecContext, args json.RawMessage) models.ToolResult {
			panic("boom")
		},
	})

	executor := NewToolExecutor(NewExecutor(registry), DefaultToolExecConfig())
	result := executor.Execute(context.Background(), models.ExecContext{}, "call-1", "panicky", json.RawMessage(`{}`))
	if result.Success {
		t.Fatal("expected failure from recovered panic")
	}
}

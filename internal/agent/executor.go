package agent

import (
	"encoding/json"
	"fmt"

	"github.com/openvia/openvia/pkg/models"
)

// Executor is the pure execution unit for tool calls: lookup, validate,
// invoke, normalize. It never consults policy — the Orchestrator calls
// Policy Engine and Permission Bridge itself before reaching the Executor.
type Executor struct {
	registry *ToolRegistry
}

// NewExecutor creates an Executor bound to a registry.
func NewExecutor(registry *ToolRegistry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs toolName with args in the given context, returning a
// normalized ToolResult. It never returns a Go error: every failure mode
// (missing tool, invalid args, executor panic) is captured into the result.
func (e *Executor) Execute(ctx models.ExecContext, toolName string, args json.RawMessage) (result models.ToolResult) {
	def, ok := e.registry.Get(toolName)
	if !ok {
		return models.ToolResult{Success: false, Error: "tool not found"}
	}

	if err := e.registry.ValidateArgs(toolName, args); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = models.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", rec)}
		}
	}()

	return def.Executor(ctx, args)
}

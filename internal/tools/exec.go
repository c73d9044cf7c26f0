// Package tools provides the reference built-in tool implementations named
// abstractly in the registry contract: a shell executor and a file
// read/write/edit trio, plus a skill list/read pair. Each is registered
// through the same models.ToolDefinition shape any other tool would use.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/openvia/openvia/pkg/models"
)

// MaxShellOutput bounds combined stdout+stderr captured from a shell call.
const MaxShellOutput = 10 << 20

// ShellTimeout bounds one shell invocation.
const ShellTimeout = 60 * time.Second

type shellArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
	Cwd     string `json:"cwd,omitempty" jsonschema:"description=Working directory relative to the session's workspace"`
}

// NewShellTool builds the abstract "run a shell command" tool def.
func NewShellTool() models.ToolDefinition {
	return models.ToolDefinition{
		Name:           "shell",
		Description:    "Run a shell command in the session's workspace and capture its output.",
		InputSchema:    shellArgs{},
		PermissionTags: []string{"shell"},
		Executor:       executeShell,
	}
}

func executeShell(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
	var parsed shellArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
	}
	if parsed.Command == "" {
		return models.ToolResult{Success: false, Error: "command is required"}
	}

	dir := execCtx.WorkDir
	if parsed.Cwd != "" {
		dir = filepath.Join(execCtx.WorkDir, parsed.Cwd)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", parsed.Command)
	cmd.Dir = dir

	var out limitedBuffer
	out.limit = MaxShellOutput
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()

	result := map[string]any{
		"output":    out.String(),
		"exit_code": exitCode(runErr),
		"truncated": out.truncated,
	}
	if runErr != nil && cmd.ProcessState == nil {
		return models.ToolResult{Success: false, Error: runErr.Error()}
	}
	return models.ToolResult{Success: true, Data: result}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer caps how much output is retained, discarding the remainder
// once the limit is reached rather than growing unbounded.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.truncated {
		return len(p), nil
	}
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }

package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/openvia/openvia/pkg/models"
)

// MaxFileRead bounds how many bytes read_file will return.
const MaxFileRead = 10 << 20

// pathResolver confines every file tool to the session's workspace root,
// rejecting any path that escapes it via "..".
type pathResolver struct {
	root string
}

func (r pathResolver) resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the file, relative to the session workspace"`
}

// NewReadFileTool builds the abstract file-read tool def.
func NewReadFileTool() models.ToolDefinition {
	return models.ToolDefinition{
		Name:           "read_file",
		Description:    "Read a file's contents from the session workspace.",
		InputSchema:    readFileArgs{},
		PermissionTags: []string{"filesystem:read"},
		Executor:       executeReadFile,
	}
}

func executeReadFile(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
	var parsed readFileArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
	}

	resolved, err := (pathResolver{root: execCtx.WorkDir}).resolve(parsed.Path)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	f, err := os.Open(resolved)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("open file: %s", err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("stat file: %s", err)}
	}

	buf, err := io.ReadAll(io.LimitReader(f, MaxFileRead))
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("read file: %s", err)}
	}

	return models.ToolResult{Success: true, Data: map[string]any{
		"path":      parsed.Path,
		"content":   string(buf),
		"truncated": info.Size() > int64(len(buf)),
	}}
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file, relative to the session workspace"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

// NewWriteFileTool builds the abstract file-write tool def.
func NewWriteFileTool() models.ToolDefinition {
	return models.ToolDefinition{
		Name:           "write_file",
		Description:    "Write (overwrite or create) a file in the session workspace.",
		InputSchema:    writeFileArgs{},
		PermissionTags: []string{"filesystem:write"},
		Executor:       executeWriteFile,
	}
}

func executeWriteFile(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
	var parsed writeFileArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
	}

	resolved, err := (pathResolver{root: execCtx.WorkDir}).resolve(parsed.Path)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("create parent directories: %s", err)}
	}
	if err := os.WriteFile(resolved, []byte(parsed.Content), 0o644); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("write file: %s", err)}
	}

	return models.ToolResult{Success: true, Data: map[string]any{"path": parsed.Path, "bytes": len(parsed.Content)}}
}

type editFileArgs struct {
	Path       string `json:"path" jsonschema:"required,description=Path to the file, relative to the session workspace"`
	OldText    string `json:"old_text" jsonschema:"required,description=Exact text to find and replace"`
	NewText    string `json:"new_text" jsonschema:"description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring exactly one"`
}

// NewEditFileTool builds the abstract find-and-replace file-edit tool def.
func NewEditFileTool() models.ToolDefinition {
	return models.ToolDefinition{
		Name:           "edit_file",
		Description:    "Replace an exact text match within an existing file.",
		InputSchema:    editFileArgs{},
		PermissionTags: []string{"filesystem:write"},
		Executor:       executeEditFile,
	}
}

func executeEditFile(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
	var parsed editFileArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
	}
	if parsed.OldText == "" {
		return models.ToolResult{Success: false, Error: "old_text is required"}
	}

	resolved, err := (pathResolver{root: execCtx.WorkDir}).resolve(parsed.Path)
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("read file: %s", err)}
	}

	count := strings.Count(string(content), parsed.OldText)
	if count == 0 {
		return models.ToolResult{Success: false, Error: "old_text not found in file"}
	}
	if !parsed.ReplaceAll && count > 1 {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("old_text matches %d times, expected exactly 1 (set replace_all to replace every match)", count)}
	}

	var updated string
	if parsed.ReplaceAll {
		updated = strings.ReplaceAll(string(content), parsed.OldText, parsed.NewText)
	} else {
		updated = strings.Replace(string(content), parsed.OldText, parsed.NewText, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("write file: %s", err)}
	}

	return models.ToolResult{Success: true, Data: map[string]any{"path": parsed.Path, "replacements": count}}
}

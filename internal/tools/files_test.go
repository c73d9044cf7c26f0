package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/openvia/openvia/pkg/models"
)

func TestReadWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	execCtx := models.ExecContext{WorkDir: dir}

	writeTool := NewWriteFileTool()
	args, _ := json.Marshal(writeFileArgs{Path: "note.txt", Content: "hello"})
	result := writeTool.Executor(execCtx, args)
	if !result.Success {
		t.Fatalf("write failed: %s", result.Error)
	}

	readTool := NewReadFileTool()
	readArgs, _ := json.Marshal(readFileArgs{Path: "note.txt"})
	readResult := readTool.Executor(execCtx, readArgs)
	if !readResult.Success {
		t.Fatalf("read failed: %s", readResult.Error)
	}
	data := readResult.Data.(map[string]any)
	if data["content"] != "hello" {
		t.Errorf("got content %v, want hello", data["content"])
	}
}

func TestReadFile_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	execCtx := models.ExecContext{WorkDir: dir}

	readTool := NewReadFileTool()
	args, _ := json.Marshal(readFileArgs{Path: "../../../etc/passwd"})
	result := readTool.Executor(execCtx, args)
	if result.Success {
		t.Fatal("expected path escape to be rejected")
	}
}

func TestEditFile_RequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	execCtx := models.ExecContext{WorkDir: dir}

	editTool := NewEditFileTool()
	args, _ := json.Marshal(editFileArgs{Path: "f.txt", OldText: "foo", NewText: "bar"})
	result := editTool.Executor(execCtx, args)
	if result.Success {
		t.Fatal("expected ambiguous match to fail without replace_all")
	}
}

func TestEditFile_ReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	execCtx := models.ExecContext{WorkDir: dir}

	editTool := NewEditFileTool()
	args, _ := json.Marshal(editFileArgs{Path: "f.txt", OldText: "foo", NewText: "bar", ReplaceAll: true})
	result := editTool.Executor(execCtx, args)
	if !result.Success {
		t.Fatalf("expected replace_all to succeed: %s", result.Error)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "bar bar" {
		t.Errorf("got %q, want %q", content, "bar bar")
	}
}

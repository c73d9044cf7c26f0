package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o
`)
	initial, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	w, err := NewWatcher(path, initial)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("llm:\n  model: gpt-4o-mini\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().LLM.Model == "gpt-4o-mini" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("got model %q after reload, want gpt-4o-mini", w.Current().LLM.Model)
}

func TestWatcher_KeepsPreviousConfigOnParseFailure(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o
`)
	initial, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	w, err := NewWatcher(path, initial)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("llm:\n  model: [this is not valid\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if w.Current().LLM.Model != "gpt-4o" {
		t.Fatalf("got model %q, want previous value gpt-4o preserved after a bad edit", w.Current().LLM.Model)
	}
}

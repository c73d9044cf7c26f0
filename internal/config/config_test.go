package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "openvia.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_AppliesDefaultsWhenFieldsAreUnset(t *testing.T) {
	path := writeConfig(t, `
llm:
  apiKey: test-key
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.MaxIterations != 10 {
		t.Fatalf("got MaxIterations %d, want default 10", cfg.LLM.MaxIterations)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("got APIKey %q, want test-key", cfg.LLM.APIKey)
	}
	if len(cfg.LLM.ShellConfirmList) == 0 {
		t.Fatal("got an empty ShellConfirmList, want the spec default to be materialized")
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
llm:
  apiKey: test-key
  bogusField: true
`)
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoad_EnvOverlayWinsOverFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o
`)
	t.Setenv("OPENVIA_LLM_MODEL", "gpt-4o-mini")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("got model %q, want env override gpt-4o-mini", cfg.LLM.Model)
	}
}

type fakeFlags struct {
	changed map[string]bool
	strs    map[string]string
	ints    map[string]int
	floats  map[string]float64
	durs    map[string]time.Duration
}

func (f *fakeFlags) Changed(name string) bool { return f.changed[name] }
func (f *fakeFlags) GetString(name string) (string, error) {
	return f.strs[name], nil
}
func (f *fakeFlags) GetFloat64(name string) (float64, error) {
	return f.floats[name], nil
}
func (f *fakeFlags) GetInt(name string) (int, error) {
	return f.ints[name], nil
}
func (f *fakeFlags) GetDuration(name string) (time.Duration, error) {
	return f.durs[name], nil
}

func TestLoad_FlagOverlayWinsOverEnvAndFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o
`)
	t.Setenv("OPENVIA_LLM_MODEL", "gpt-4o-mini")

	flags := &fakeFlags{
		changed: map[string]bool{"llm-model": true},
		strs:    map[string]string{"llm-model": "gpt-4-turbo"},
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "gpt-4-turbo" {
		t.Fatalf("got model %q, want flag override gpt-4-turbo", cfg.LLM.Model)
	}
}

func TestLoad_UnsetFlagNeverShadowsFileValue(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-4o
`)
	flags := &fakeFlags{changed: map[string]bool{}}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("got model %q, want file value gpt-4o preserved", cfg.LLM.Model)
	}
}

func TestResolvedBaseURL_UsesVerbatimSuffixedURL(t *testing.T) {
	llm := LLMConfig{Format: "openai", BaseURL: "https://my-proxy/v1/chat/completions"}
	if got := llm.ResolvedBaseURL(); got != "https://my-proxy/v1/chat/completions" {
		t.Fatalf("got %q", got)
	}
}

func TestResolvedBaseURL_AppendsChatCompletionsForOpenAI(t *testing.T) {
	llm := LLMConfig{Format: "openai", BaseURL: "https://my-proxy/v1"}
	if got := llm.ResolvedBaseURL(); got != "https://my-proxy/v1/chat/completions" {
		t.Fatalf("got %q", got)
	}
}

func TestResolvedBaseURL_AppendsResponsesForClaude(t *testing.T) {
	llm := LLMConfig{Format: "claude", BaseURL: "https://my-proxy/v1"}
	if got := llm.ResolvedBaseURL(); got != "https://my-proxy/v1/responses" {
		t.Fatalf("got %q", got)
	}
}

func TestResolvedBaseURL_GeminiUsesBaseAsIs(t *testing.T) {
	llm := LLMConfig{Format: "gemini", BaseURL: "https://generativelanguage.googleapis.com"}
	if got := llm.ResolvedBaseURL(); got != "https://generativelanguage.googleapis.com" {
		t.Fatalf("got %q", got)
	}
}

// Package config loads the gateway's configuration from a YAML file,
// environment variables, and CLI flags into one Config value, applying the
// CLI > env > file > defaults precedence spec.md §6 documents, and watches
// the file for edits so a running gateway can pick up most changes live.
package config

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// Config is the root configuration value threaded through cmd/openvia-gatewayd
// into every component's constructor. Its shape matches spec.md §6's
// "recognized options" block field for field.
type Config struct {
	Adapters AdaptersConfig `yaml:"adapters"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AdaptersConfig selects and configures the Channel(s) the gateway starts.
// Default selects which configured adapter receives Permission Bridge
// prompts when a session's owning channel isn't otherwise determinable.
type AdaptersConfig struct {
	Default  string         `yaml:"default"`
	Telegram TelegramConfig `yaml:"telegram"`
	Feishu   FeishuConfig   `yaml:"feishu"`

	// WSRef configures this module's own D1 reference Channel. It isn't
	// part of spec.md's adapters schema (which only names telegram/feishu,
	// both explicitly out of scope per spec.md §1): it's the one Channel
	// implementation this module actually ships and runs.
	WSRef WSRefConfig `yaml:"wsref"`
}

// TelegramConfig is carried for schema fidelity with spec.md §6; no
// concrete Telegram adapter ships in this module (spec.md §1 Out of scope).
type TelegramConfig struct {
	BotToken       string   `yaml:"botToken"`
	AllowedUserIDs []string `yaml:"allowedUserIds"`
}

// FeishuConfig is carried for schema fidelity with spec.md §6; no concrete
// Feishu adapter ships in this module (spec.md §1 Out of scope).
type FeishuConfig struct {
	AppID          string   `yaml:"appId"`
	AppSecret      string   `yaml:"appSecret"`
	WSEndpoint     string   `yaml:"wsEndpoint"`
	AllowedUserIDs []string `yaml:"allowedUserIds"`
}

// WSRefConfig configures the websocket reference Channel (internal/channels/wsref).
type WSRefConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig selects an LLM provider wire format and carries the Agent
// Orchestrator's tunables, matching spec.md §6's llm block exactly.
type LLMConfig struct {
	Format           string        `yaml:"format"` // "openai" | "claude" | "gemini"
	APIKey           string        `yaml:"apiKey"`
	BaseURL          string        `yaml:"baseUrl"`
	Model            string        `yaml:"model"`
	SystemPrompt     string        `yaml:"systemPrompt"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxTokens        int           `yaml:"maxTokens"`
	Temperature      float64       `yaml:"temperature"`
	MaxIterations    int           `yaml:"maxIterations"`
	ShellConfirmList []string      `yaml:"shellConfirmList"`
}

// LoggingConfig matches spec.md §6's logging block.
type LoggingConfig struct {
	Level   string `yaml:"level"` // "debug" | "info" | "warn" | "error"
	Verbose bool   `yaml:"verbose"`
}

// Defaults returns the struct-literal defaults layer: the lowest-precedence
// overlay in the CLI > env > file > defaults ladder.
func Defaults() Config {
	return Config{
		Adapters: AdaptersConfig{
			Default: "telegram",
			WSRef:   WSRefConfig{Addr: "127.0.0.1:8765"},
		},
		LLM: LLMConfig{
			Format:        "openai",
			Timeout:       60 * time.Second,
			MaxTokens:     4096,
			MaxIterations: 10,
			// Mirrors policy.DefaultConfirmList(); duplicated here (rather
			// than imported) so config stays free of a dependency on the
			// policy package, and so `config show`/the JSON schema reflect
			// the real default instead of an empty list.
			ShellConfirmList: []string{"rm", "mv", "sudo", "su", "dd", "reboot", "shutdown", "mkfs", "chmod", "chown", ">", ">>", "|"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ResolvedBaseURL applies spec.md §6's baseUrl heuristic: a baseUrl already
// ending in /chat/completions or /responses is used verbatim; otherwise the
// format-appropriate suffix (or Gemini's path template) is appended.
func (c LLMConfig) ResolvedBaseURL() string {
	base := c.BaseURL
	switch {
	case hasSuffix(base, "/chat/completions"), hasSuffix(base, "/responses"):
		return base
	case c.Format == "gemini":
		if base == "" {
			base = "https://generativelanguage.googleapis.com"
		}
		return base
	case c.Format == "claude":
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return base + "/responses"
	default:
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return base + "/chat/completions"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema for Config, reflected from its own
// struct tags rather than hand-maintained, so it can never drift from the
// fields above.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

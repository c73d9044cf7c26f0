package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds a Config by overlaying, in increasing precedence, the
// struct-literal defaults, the YAML file at path (if non-empty), the
// OPENVIA_* environment variables, and finally flags (any FlagOverlay with
// Changed()==true). This is the CLI > env > file > defaults ladder spec.md
// §6 specifies, expressed as four successive overlay passes over one value
// rather than a generic merge framework — kept deliberately small per
// spec.md §1's "CLI/config-file parsing and layered precedence" Non-goal.
func Load(path string, flags FlagOverlay) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	overlayEnv(&cfg, os.Environ())

	if flags != nil {
		overlayFlags(&cfg, flags)
	}

	return &cfg, nil
}

// loadFile parses path as YAML, after expanding ${VAR} references, onto a
// copy of Defaults() so unset fields fall through to their default rather
// than the zero value. Unknown fields are rejected: a typo in a config file
// should fail loudly, not silently no-op.
func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return decodeYAML(data)
}

func decodeYAML(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))
	cfg := Defaults()

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return Config{}, fmt.Errorf("parse config: expected a single YAML document")
	}
	return cfg, nil
}

// FlagOverlay is the minimal surface Load needs from a pflag.FlagSet: only
// the flags a caller actually set should overlay the config, so cobra's
// Changed() distinction is load-bearing here (a default flag value must
// never shadow a file or env value).
type FlagOverlay interface {
	Changed(name string) bool
	GetString(name string) (string, error)
	GetFloat64(name string) (float64, error)
	GetInt(name string) (int, error)
	GetDuration(name string) (time.Duration, error)
}

func overlayFlags(cfg *Config, flags FlagOverlay) {
	if flags.Changed("llm-format") {
		if v, err := flags.GetString("llm-format"); err == nil {
			cfg.LLM.Format = v
		}
	}
	if flags.Changed("llm-api-key") {
		if v, err := flags.GetString("llm-api-key"); err == nil {
			cfg.LLM.APIKey = v
		}
	}
	if flags.Changed("llm-base-url") {
		if v, err := flags.GetString("llm-base-url"); err == nil {
			cfg.LLM.BaseURL = v
		}
	}
	if flags.Changed("llm-model") {
		if v, err := flags.GetString("llm-model"); err == nil {
			cfg.LLM.Model = v
		}
	}
	if flags.Changed("llm-max-iterations") {
		if v, err := flags.GetInt("llm-max-iterations"); err == nil {
			cfg.LLM.MaxIterations = v
		}
	}
	if flags.Changed("llm-max-tokens") {
		if v, err := flags.GetInt("llm-max-tokens"); err == nil {
			cfg.LLM.MaxTokens = v
		}
	}
	if flags.Changed("llm-temperature") {
		if v, err := flags.GetFloat64("llm-temperature"); err == nil {
			cfg.LLM.Temperature = v
		}
	}
	if flags.Changed("llm-timeout") {
		if v, err := flags.GetDuration("llm-timeout"); err == nil {
			cfg.LLM.Timeout = v
		}
	}
	if flags.Changed("log-level") {
		if v, err := flags.GetString("log-level"); err == nil {
			cfg.Logging.Level = v
		}
	}
	if flags.Changed("log-verbose") {
		if v, err := flags.GetString("log-verbose"); err == nil {
			if b, err := strconv.ParseBool(v); err == nil {
				cfg.Logging.Verbose = b
			}
		}
	}
	if flags.Changed("wsref-addr") {
		if v, err := flags.GetString("wsref-addr"); err == nil {
			cfg.Adapters.WSRef.Addr = v
		}
	}
}

// overlayEnv applies OPENVIA_* environment variables on top of cfg. Only
// fields with a documented env mapping are eligible; this mirrors the
// teacher's config loader's practice of manual, explicit env-to-field wiring
// rather than reflection-based name mangling.
func overlayEnv(cfg *Config, environ []string) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}

	if v, ok := env["OPENVIA_LLM_FORMAT"]; ok {
		cfg.LLM.Format = v
	}
	if v, ok := env["OPENVIA_LLM_API_KEY"]; ok {
		cfg.LLM.APIKey = v
	}
	if v, ok := env["OPENVIA_LLM_BASE_URL"]; ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := env["OPENVIA_LLM_MODEL"]; ok {
		cfg.LLM.Model = v
	}
	if v, ok := env["OPENVIA_LLM_SYSTEM_PROMPT"]; ok {
		cfg.LLM.SystemPrompt = v
	}
	if v, ok := env["OPENVIA_LLM_MAX_ITERATIONS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxIterations = n
		}
	}
	if v, ok := env["OPENVIA_LLM_MAX_TOKENS"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxTokens = n
		}
	}
	if v, ok := env["OPENVIA_LLM_TEMPERATURE"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	if v, ok := env["OPENVIA_LLM_TIMEOUT"]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v, ok := env["OPENVIA_LOG_LEVEL"]; ok {
		cfg.Logging.Level = v
	}
	if v, ok := env["OPENVIA_LOG_VERBOSE"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Verbose = b
		}
	}
	if v, ok := env["OPENVIA_ADAPTERS_DEFAULT"]; ok {
		cfg.Adapters.Default = v
	}
	if v, ok := env["OPENVIA_TELEGRAM_BOT_TOKEN"]; ok {
		cfg.Adapters.Telegram.BotToken = v
	}
	if v, ok := env["OPENVIA_FEISHU_APP_ID"]; ok {
		cfg.Adapters.Feishu.AppID = v
	}
	if v, ok := env["OPENVIA_FEISHU_APP_SECRET"]; ok {
		cfg.Adapters.Feishu.AppSecret = v
	}
	if v, ok := env["OPENVIA_WSREF_ADDR"]; ok {
		cfg.Adapters.WSRef.Addr = v
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway: Channel adapters, Agent Orchestrator, Policy Engine",
		Long: `Start the gateway.

The server will:
1. Load configuration from the specified file (CLI flags > env > file > defaults)
2. Construct the tool registry, policy engine, session manager, and LLM adapter
3. Start every configured Channel adapter
4. Drive inbound messages through the Agent Orchestrator until shutdown

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with a config file
  openvia-gatewayd serve --config /etc/openvia/gateway.yaml

  # Override just the model via flag
  openvia-gatewayd serve --config gateway.yaml --llm-model gpt-4o-mini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().String("llm-format", "", "LLM wire format: openai | claude | gemini")
	cmd.Flags().String("llm-api-key", "", "LLM provider API key")
	cmd.Flags().String("llm-base-url", "", "LLM provider base URL override")
	cmd.Flags().String("llm-model", "", "LLM model identifier")
	cmd.Flags().Int("llm-max-iterations", 0, "Maximum Orchestrator round-trips per turn")
	cmd.Flags().Int("llm-max-tokens", 0, "Default max_tokens per LLM round")
	cmd.Flags().Float64("llm-temperature", 0, "Default sampling temperature")
	cmd.Flags().Duration("llm-timeout", 0, "Per-request LLM timeout")
	cmd.Flags().String("log-level", "", "Log level: debug | info | warn | error")
	cmd.Flags().String("log-verbose", "", "Enable verbose logging: true | false")
	cmd.Flags().String("wsref-addr", "", "Listen address for the wsref reference Channel")
	cmd.Flags().String("audit-db", "", "Optional path to a SQLite audit mirror (D3)")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Listen address for the Prometheus /metrics endpoint")
	cmd.Flags().String("otel-endpoint", "", "OTLP gRPC collector endpoint; tracing is disabled if empty")
	cmd.Flags().Duration("shutdown-grace", 30*time.Second, "Grace period for draining in-flight turns on shutdown")

	return cmd
}

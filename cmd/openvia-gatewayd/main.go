// Package main provides the CLI entry point for the headless agent gateway.
//
// openvia-gatewayd drives the Agent Orchestrator (spec §4.6) behind one or
// more Channel adapters, enforcing the Policy Engine and Permission Bridge
// on every tool call an LLM Adapter requests.
//
// # Basic Usage
//
// Start the gateway:
//
//	openvia-gatewayd serve --config openvia.yaml
//
// Validate a configuration file without starting anything:
//
//	openvia-gatewayd config validate --config openvia.yaml
//
// List the tools a fresh registry would expose to the LLM:
//
//	openvia-gatewayd tools list
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "openvia-gatewayd",
		Short: "Headless agent gateway: drives an LLM tool-use loop behind a chat Channel",
		Long: `openvia-gatewayd drives the multi-round LLM/tool-call cycle described in
spec §4.6 behind one or more Channel adapters, enforcing the Policy Engine
and Permission Bridge on every tool call.

Ships one reference Channel (a websocket adapter, wsref) and three LLM
Adapter wire formats (OpenAI chat/completions, Anthropic responses, Gemini).`,
		Version:      version + " (commit: " + commit + ", built: " + date + ")",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
		buildToolsCmd(),
	)

	return rootCmd
}

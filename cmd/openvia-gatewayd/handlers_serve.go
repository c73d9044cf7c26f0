package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openvia/openvia/internal/agent"
	"github.com/openvia/openvia/internal/agent/providers"
	"github.com/openvia/openvia/internal/channels"
	"github.com/openvia/openvia/internal/channels/wsref"
	"github.com/openvia/openvia/internal/config"
	"github.com/openvia/openvia/internal/observability"
	"github.com/openvia/openvia/internal/policy"
	"github.com/openvia/openvia/internal/sessions"
	"github.com/openvia/openvia/internal/tools"
	"github.com/openvia/openvia/pkg/models"
)

// runServe loads configuration, wires every component the Agent Orchestrator
// needs, starts the configured Channel adapters, and blocks until a shutdown
// signal arrives.
func runServe(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, cfg)
		if err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		defer watcher.Close()
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    "json",
		AddSource: cfg.Logging.Verbose,
	}).WithFields("service", "openvia-gatewayd", "version", version)
	logger.Info(ctx, "starting openvia-gatewayd", "commit", commit, "config", configPath)

	metrics := observability.NewMetrics()
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	metricsSrv := startMetricsServer(metricsAddr)
	defer metricsSrv.Shutdown(context.Background())

	otelEndpoint, _ := cmd.Flags().GetString("otel-endpoint")
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "openvia-gatewayd",
		ServiceVersion: version,
		Endpoint:       otelEndpoint,
	})
	defer shutdownTracer(context.Background())

	registry := agent.NewToolRegistry()
	skillSet, err := tools.LoadSkillSet(os.Getenv("OPENVIA_SKILLS_DIR"))
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}
	if err := registry.RegisterAll([]models.ToolDefinition{
		tools.NewShellTool(),
		tools.NewReadFileTool(),
		tools.NewWriteFileTool(),
		tools.NewEditFileTool(),
		tools.NewListSkillsTool(skillSet),
		tools.NewReadSkillTool(skillSet),
	}); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	executor := agent.NewExecutor(registry)
	toolExecutor := agent.NewToolExecutor(executor, agent.DefaultToolExecConfig())
	toolExecutor.SetTracer(tracer)

	policyEngine := policy.NewEngine(cfg.LLM.ShellConfirmList)
	auditDBPath, _ := cmd.Flags().GetString("audit-db")
	if auditDBPath != "" {
		mirror, err := policy.OpenSQLiteMirror(auditDBPath)
		if err != nil {
			return fmt.Errorf("open audit mirror: %w", err)
		}
		defer mirror.Close()
		policyEngine.AuditLog().SetMirror(mirror)
	}

	sessionMgr := sessions.NewManager()
	sessionMgr.SetMetrics(metrics)
	sweeper := sessions.NewSweeper(sessionMgr)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	bridge := agent.NewPermissionBridge()

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}

	loop := agent.NewLoop(provider, registry, toolExecutor, policyEngine, sessionMgr, cfg.LLM.Model, agent.LoopConfig{
		MaxIterations: cfg.LLM.MaxIterations,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Metrics:       metrics,
		Logger:        logger,
		Tracer:        tracer,
	})

	chanRegistry := channels.NewRegistry()
	wsAdapter := wsref.New("wsref", cfg.Adapters.WSRef.Addr)
	chanRegistry.Register(wsAdapter)

	bridge.RegisterHandler(func(req models.PendingPermission) {
		chanRegistry.DispatchPermissionRequest(ctx, req)
	})

	handler := func(ctx context.Context, input []models.ContentBlock, userID, channelID string, reply channels.SendReply) error {
		metrics.MessageReceived(channelID)
		session := sessionMgr.GetOrCreate(userID, channelID)

		ctx = observability.AddChannel(ctx, channelID)
		ctx, span := tracer.TraceMessageProcessing(ctx, channelID, "inbound", session.Key())
		defer span.End()

		turn := agent.Turn{
			Message:      joinText(input),
			Session:      session,
			SystemPrompt: cfg.LLM.SystemPrompt,
			OnPermissionRequest: func(ctx context.Context, prompt string) bool {
				_, resolved := bridge.Request(ctx, models.Ownership{UserID: userID, ChatID: channelID}, "", prompt, nil)
				select {
				case approved := <-resolved:
					return approved
				case <-ctx.Done():
					return false
				}
			},
		}

		for ev := range loop.Run(ctx, turn) {
			switch ev.Kind {
			case models.AgentEventTextDelta:
				// Streamed deltas are accumulated by Loop itself; only the
				// terminal done event carries the full reply this Channel
				// contract expects.
			case models.AgentEventDone:
				metrics.MessageSent(channelID)
				return reply(ctx, ev.FullResponse)
			case models.AgentEventError:
				tracer.RecordError(span, fmt.Errorf("%s", ev.Message))
				return reply(ctx, "error: "+ev.Message)
			}
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := chanRegistry.StartAll(ctx, handler); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	logger.Info(ctx, "gateway started", "wsref_addr", cfg.Adapters.WSRef.Addr, "metrics_addr", metricsAddr)

	<-ctx.Done()
	logger.Info(ctx, "shutdown signal received, initiating graceful shutdown")

	grace, _ := cmd.Flags().GetDuration("shutdown-grace")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()

	if err := chanRegistry.StopAll(shutdownCtx); err != nil {
		return fmt.Errorf("stop channels: %w", err)
	}
	return nil
}

// buildProvider selects the LLM Adapter variant named by cfg.LLM.Format,
// resolving the effective base URL per spec.md §6's baseUrl heuristic.
func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.LLM.Format {
	case "gemini":
		return providers.NewGeminiProvider(cfg.LLM.APIKey)
	case "claude":
		return providers.NewResponsesProvider(cfg.LLM.APIKey, cfg.LLM.ResolvedBaseURL()), nil
	default:
		return providers.NewChatCompletionsProvider(cfg.LLM.APIKey, cfg.LLM.ResolvedBaseURL()), nil
	}
}

// joinText concatenates every text block of an inbound message, ignoring
// image blocks the Orchestrator's current Provider set doesn't consume.
func joinText(blocks []models.ContentBlock) string {
	out := ""
	for _, b := range blocks {
		if b.Kind == models.BlockText {
			out += b.Text
		}
	}
	return out
}

// startMetricsServer exposes the Prometheus registry on addr. Bind failures
// are logged rather than fatal: metrics are an operational aid, not a
// dependency of the gateway's own correctness.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	return srv
}

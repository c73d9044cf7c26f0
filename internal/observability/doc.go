// Package observability provides metrics, structured logging, and
// distributed tracing for openvia-gatewayd: the single process that runs the
// Agent Orchestrator loop, executes tools, and bridges to the Channel
// adapters.
//
// # Metrics
//
// Metrics are Prometheus collectors tracking message flow through the
// Channel adapters, LLM round latency and token usage, tool execution
// counts and latency, loop errors by phase, and active session counts.
//
//	metrics := observability.NewMetrics()
//	metrics.MessageReceived("wsref")
//	metrics.RecordLLMRequest("openai", "gpt-4o", "success", elapsed, prompt, completion)
//	metrics.RecordToolExecution("shell", "success", elapsed)
//
// # Logging
//
// Logging wraps log/slog with automatic request/session/user correlation
// pulled from context and redaction of API keys, tokens, and secrets before
// they reach a log line.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddSessionID(ctx, session.Key())
//	logger.Info(ctx, "turn started", "user_id", userID)
//
// # Tracing
//
// Tracing wraps OpenTelemetry. The Agent Orchestrator opens one span per LLM
// round and one span per tool call; the Channel handler opens the
// outermost span per inbound message.
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "openvia-gatewayd"})
//	defer shutdown(context.Background())
//	ctx, span := tracer.TraceLLMRequest(ctx, "openai", "gpt-4o")
//	defer span.End()
//
// # Security
//
// Logging redacts password/secret/token/api_key-shaped fields and known
// key-prefix patterns (sk-, Bearer ...) wherever they appear in a log call's
// arguments, so a raw provider error carrying an Authorization header never
// reaches stored logs verbatim.
package observability

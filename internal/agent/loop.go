package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openvia/openvia/internal/observability"
	"github.com/openvia/openvia/internal/policy"
	"github.com/openvia/openvia/internal/sessions"
	"github.com/openvia/openvia/pkg/models"
)

// LoopConfig configures the Orchestrator's iteration and tool-execution
// behavior.
type LoopConfig struct {
	// MaxIterations bounds the number of LLM round-trips per turn.
	// Default: 10.
	MaxIterations int

	// MaxTokens is the default max_tokens sent with every LLM round that
	// doesn't already carry a request-specific override.
	// Default: 4096.
	MaxTokens int

	// Temperature is the default sampling temperature.
	Temperature float64

	// Metrics, if set, records LLM and loop-error metrics for every turn.
	// A nil Metrics disables recording entirely.
	Metrics *observability.Metrics

	// Logger, if set, receives structured logs for turn start/end and
	// terminal errors. A nil Logger disables logging.
	Logger *observability.Logger

	// Tracer, if set, opens a span around every Provider.Complete round.
	// A nil Tracer disables tracing.
	Tracer *observability.Tracer
}

// DefaultLoopConfig returns the spec's default iteration cap and token
// budget.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxIterations: 10, MaxTokens: 4096}
}

func (c LoopConfig) sanitized() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// OnPermissionRequest delivers a require_approval prompt to whatever surface
// can resolve it and returns once the user has decided. It is the
// Orchestrator's view of the Permission Bridge round-trip; Loop itself never
// imports the channel layer.
type OnPermissionRequest func(ctx context.Context, prompt string) bool

// Turn carries everything one call to Loop.Run needs: the message to append
// to history, the borrowed session, and an optional approval callback.
type Turn struct {
	Message             string
	Session             models.Session
	SystemPrompt        string
	OnPermissionRequest OnPermissionRequest
}

// Loop is the Agent Orchestrator: it drives the multi-round LLM/tool-call
// cycle described in spec §4.6 and emits a finite, ordered stream of
// AgentEvents for one turn.
type Loop struct {
	provider Provider
	registry *ToolRegistry
	executor *ToolExecutor
	policy   *policy.Engine
	sessions *sessions.Manager
	model    string
	config   LoopConfig

	// sessionLocksMu guards sessionLocks. Run acquires the per-session lock
	// it names for the duration of one turn, so two inbound messages for the
	// same (userID, chatID) never race on GetOrCreate/Update (spec §5).
	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession blocks until it holds the named session's lock and returns the
// unlock function. Lock entries are reference-counted and removed once the
// last holder releases, so the map never grows with cold sessions.
func (l *Loop) lockSession(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	l.sessionLocksMu.Lock()
	lock := l.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		l.sessionLocks[sessionID] = lock
	}
	lock.refs++
	l.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(l.sessionLocks, sessionID)
		}
		l.sessionLocksMu.Unlock()
	}
}

// NewLoop wires the Orchestrator's dependencies. model is the provider-
// specific model identifier used for every Complete call this Loop makes.
func NewLoop(provider Provider, registry *ToolRegistry, executor *ToolExecutor, engine *policy.Engine, sessionMgr *sessions.Manager, model string, config LoopConfig) *Loop {
	return &Loop{
		provider:     provider,
		registry:     registry,
		executor:     executor,
		policy:       engine,
		sessions:     sessionMgr,
		model:        model,
		config:       config.sanitized(),
		sessionLocks: make(map[string]*sessionLock),
	}
}

// Run drives one turn and returns a channel of AgentEvents. The channel is
// closed after exactly one terminal event (done or error) has been sent;
// the caller MUST drain it to completion to avoid leaking the goroutine.
func (l *Loop) Run(ctx context.Context, turn Turn) <-chan models.AgentEvent {
	out := make(chan models.AgentEvent, 16)
	go func() {
		defer close(out)
		l.run(ctx, turn, out)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, turn Turn, out chan<- models.AgentEvent) {
	session := turn.Session

	ctx = observability.AddSessionID(ctx, session.Key())
	ctx = observability.AddUserID(ctx, session.UserID)

	if l.config.Logger != nil {
		l.config.Logger.Info(ctx, "turn started", "chat_id", session.ChatID)
	}

	unlock := l.lockSession(session.Key())
	defer unlock()

	// Re-fetch under the session lock: another turn may have advanced this
	// session's history while we were waiting to acquire it.
	session = l.sessions.GetOrCreate(session.UserID, session.ChatID)

	messages := append([]models.Message{}, session.History...)
	messages = append(messages, models.NewTextMessage(models.RoleUser, turn.Message))

	var lastToolResults []models.ToolResultRecord
	previousResponseID := session.ProviderResponseID
	accumulatedText := ""

	execCtx := models.ExecContext{UserID: session.UserID, ChatID: session.ChatID, WorkDir: sessionWorkDir(session.UserID)}

	for iter := 0; iter < l.config.MaxIterations; iter++ {
		req := Request{
			Model:              l.model,
			SystemPrompt:       turn.SystemPrompt,
			Messages:           messages,
			Tools:              l.registry.GetSchemas(),
			ToolResults:        lastToolResults,
			PreviousResponseID: previousResponseID,
			MaxTokens:          l.config.MaxTokens,
			Temperature:        l.config.Temperature,
		}

		llmStart := time.Now()
		roundCtx := ctx
		var llmSpan trace.Span
		if l.config.Tracer != nil {
			roundCtx, llmSpan = l.config.Tracer.TraceLLMRequest(ctx, l.provider.Name(), l.model)
		}
		events, err := l.provider.Complete(roundCtx, req)
		if err != nil {
			l.recordLoopError(PhaseInit)
			if llmSpan != nil {
				l.config.Tracer.RecordError(llmSpan, err)
				llmSpan.End()
			}
			out <- models.ErrorEvent((&LoopError{Phase: PhaseInit, Iteration: iter, Cause: err}).Error())
			return
		}

		var pendingToolCalls []models.ToolCall
		var usage *models.Usage
		roundDone := false
		roundErr := ""

		for ev := range events {
			switch ev.Kind {
			case models.LLMEventTextDelta:
				accumulatedText += ev.Text
				out <- models.TextDeltaEvent(ev.Text)
			case models.LLMEventToolCall:
				if ev.ToolCall != nil && ev.ToolCall.Name != "" {
					pendingToolCalls = append(pendingToolCalls, *ev.ToolCall)
				}
			case models.LLMEventToolCallDelta:
				// Fragment accumulation is the adapter's own responsibility;
				// the Orchestrator only ever sees a completed tool_call.
			case models.LLMEventDone:
				if ev.ResponseID != "" {
					previousResponseID = ev.ResponseID
				}
				usage = ev.Usage
				if len(pendingToolCalls) == 0 {
					roundDone = true
				}
			case models.LLMEventError:
				roundErr = ev.Message
			}
		}

		if roundErr != "" {
			l.recordLLMRequest(llmStart, usage, "error")
			l.recordLoopError(PhaseStream)
			if llmSpan != nil {
				l.config.Tracer.RecordError(llmSpan, errors.New(roundErr))
				llmSpan.End()
			}
			out <- models.ErrorEvent((&LoopError{Phase: PhaseStream, Iteration: iter, Message: roundErr}).Error())
			return
		}
		l.recordLLMRequest(llmStart, usage, "success")
		if llmSpan != nil {
			if usage != nil {
				l.config.Tracer.SetAttributes(llmSpan, "llm.prompt_tokens", usage.PromptTokens, "llm.completion_tokens", usage.CompletionTokens)
			}
			llmSpan.End()
		}
		if roundDone {
			session.History = append(messages, models.NewTextMessage(models.RoleAssistant, accumulatedText))
			session.ProviderResponseID = previousResponseID
			l.sessions.Update(session)
			out <- models.DoneEvent(accumulatedText)
			return
		}

		// The assistant's own turn (text content, if any) becomes history
		// before its tool calls are resolved, so the next round's messages
		// reflect what was actually said.
		if accumulatedText != "" {
			messages = append(messages, models.NewTextMessage(models.RoleAssistant, accumulatedText))
			accumulatedText = ""
		}

		resultsThisRound := make([]models.ToolResultRecord, 0, len(pendingToolCalls))
		for _, tc := range pendingToolCalls {
			out <- models.ToolStartEvent(tc)

			toolStart := time.Now()
			result := l.resolveToolCall(ctx, session, execCtx, tc, turn.OnPermissionRequest, iter)
			if l.config.Metrics != nil {
				status := "success"
				if !result.Success {
					status = "error"
				}
				l.config.Metrics.RecordToolExecution(tc.Name, status, time.Since(toolStart).Seconds())
			}
			if l.config.Tracer != nil {
				l.config.Tracer.AddEvent(trace.SpanFromContext(ctx), "tool_executed",
					"tool_name", tc.Name, "success", result.Success, "duration_ms", time.Since(toolStart).Milliseconds())
			}

			out <- models.ToolResultEvent(tc, result)

			content, _ := json.Marshal(result)
			resultsThisRound = append(resultsThisRound, models.ToolResultRecord{
				ToolCallID:   tc.ID,
				ToolName:     tc.Name,
				ToolArgs:     tc.Args,
				ToolCallMeta: tc.Meta,
				Content:      string(content),
				IsError:      !result.Success,
			})
		}
		lastToolResults = resultsThisRound
	}

	l.recordLoopError(PhaseComplete)
	if l.config.Logger != nil {
		l.config.Logger.Warn(ctx, "max iterations reached", "chat_id", session.ChatID, "max_iterations", l.config.MaxIterations)
	}
	out <- models.ErrorEvent((&LoopError{
		Phase:     PhaseComplete,
		Iteration: l.config.MaxIterations,
		Message:   fmt.Sprintf("max iterations (%d) reached", l.config.MaxIterations),
	}).Error())
}

// recordLLMRequest records one Provider.Complete round's duration, status,
// and token usage, if this Loop has Metrics configured.
func (l *Loop) recordLLMRequest(start time.Time, usage *models.Usage, status string) {
	if l.config.Metrics == nil {
		return
	}
	prompt, completion := 0, 0
	if usage != nil {
		prompt, completion = usage.PromptTokens, usage.CompletionTokens
	}
	l.config.Metrics.RecordLLMRequest(l.provider.Name(), l.model, status, time.Since(start).Seconds(), prompt, completion)
}

// recordLoopError increments the error counter for phase, if this Loop has
// Metrics configured.
func (l *Loop) recordLoopError(phase LoopPhase) {
	if l.config.Metrics != nil {
		l.config.Metrics.RecordLoopError(string(phase))
	}
}

// sessionWorkDir returns this user's tool working-directory root under
// ~/.openvia/sessions, per spec §6's persisted state layout. Falls back to
// the process's own working directory if the home directory can't be
// resolved, rather than failing the turn outright.
func sessionWorkDir(userID string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openvia", "sessions", userID)
}

// resolveToolCall implements the per-call branch of spec §4.6's algorithm:
// look up the tool, evaluate policy, optionally round-trip through the
// permission bridge, then execute or short-circuit to a synthetic failure
// result. It never panics and always produces a ToolResult.
func (l *Loop) resolveToolCall(ctx context.Context, session models.Session, execCtx models.ExecContext, tc models.ToolCall, onPermission OnPermissionRequest, iter int) models.ToolResult {
	if _, ok := l.registry.Get(tc.Name); !ok {
		return models.ToolResult{Success: false, Error: (&LoopError{Phase: PhaseExecuteTools, Iteration: iter, Cause: ErrToolNotFound}).Error()}
	}

	decision := l.policy.Evaluate(session.UserID, session.ChatID, tc.Name, tc.Args, session.AllowedTools, session.DeniedTools)

	switch decision.Decision {
	case models.DecisionDeny:
		return models.ToolResult{Success: false, Error: decision.Reason}
	case models.DecisionRequireApproval:
		approved := false
		if onPermission != nil {
			approved = onPermission(ctx, decision.Reason)
		}
		if !approved {
			return models.ToolResult{Success: false, Error: "User denied permission"}
		}
		return l.executor.Execute(ctx, execCtx, tc.ID, tc.Name, tc.Args)
	default: // DecisionAllow
		return l.executor.Execute(ctx, execCtx, tc.ID, tc.Name, tc.Args)
	}
}

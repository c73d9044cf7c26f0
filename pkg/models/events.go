package models

import "encoding/json"

// LLMEventKind identifies the variant of an LLMEvent.
type LLMEventKind string

const (
	LLMEventTextDelta     LLMEventKind = "text_delta"
	LLMEventToolCall      LLMEventKind = "tool_call"
	LLMEventToolCallDelta LLMEventKind = "tool_call_delta"
	LLMEventDone          LLMEventKind = "done"
	LLMEventError         LLMEventKind = "error"
)

// LLMEvent is the unified event an LLM Adapter emits, regardless of which
// wire protocol produced it.
type LLMEvent struct {
	Kind LLMEventKind

	// Text is set for LLMEventTextDelta.
	Text string

	// ToolCall is set for LLMEventToolCall and LLMEventToolCallDelta. For a
	// delta event, Args may be a fragment rather than valid JSON on its own.
	ToolCall *ToolCall

	// Usage and ResponseID are set (optionally) on LLMEventDone.
	Usage      *Usage
	ResponseID string

	// Message is set on LLMEventError.
	Message string
}

// Usage reports token accounting a provider returned with its terminal
// event, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AgentEventKind identifies the variant of an AgentEvent.
type AgentEventKind string

const (
	AgentEventTextDelta   AgentEventKind = "text_delta"
	AgentEventToolStart   AgentEventKind = "tool_start"
	AgentEventToolPending AgentEventKind = "tool_pending"
	AgentEventToolResult  AgentEventKind = "tool_result"
	AgentEventDone        AgentEventKind = "done"
	AgentEventError       AgentEventKind = "error"
)

// AgentEvent is one element of the Orchestrator's outgoing event stream for
// a turn. Exactly one of Done/Err is populated for the two terminal kinds;
// the stream always ends with exactly one of them.
type AgentEvent struct {
	Kind AgentEventKind

	// Text is set for AgentEventTextDelta.
	Text string

	// ToolCallID/ToolName/ToolArgs are set for tool_start/tool_pending/tool_result.
	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage

	// Prompt is set for AgentEventToolPending.
	Prompt string

	// Result is set for AgentEventToolResult.
	Result *ToolResult

	// FullResponse is set for AgentEventDone.
	FullResponse string

	// Message is set for AgentEventError.
	Message string
}

func TextDeltaEvent(text string) AgentEvent {
	return AgentEvent{Kind: AgentEventTextDelta, Text: text}
}

func ToolStartEvent(tc ToolCall) AgentEvent {
	return AgentEvent{Kind: AgentEventToolStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Args}
}

func ToolPendingEvent(tc ToolCall, prompt string) AgentEvent {
	return AgentEvent{Kind: AgentEventToolPending, ToolCallID: tc.ID, ToolName: tc.Name, ToolArgs: tc.Args, Prompt: prompt}
}

func ToolResultEvent(tc ToolCall, result ToolResult) AgentEvent {
	return AgentEvent{Kind: AgentEventToolResult, ToolCallID: tc.ID, ToolName: tc.Name, Result: &result}
}

func DoneEvent(fullResponse string) AgentEvent {
	return AgentEvent{Kind: AgentEventDone, FullResponse: fullResponse}
}

func ErrorEvent(message string) AgentEvent {
	return AgentEvent{Kind: AgentEventError, Message: message}
}

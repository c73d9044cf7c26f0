package agent

import (
	"context"

	"github.com/openvia/openvia/pkg/models"
)

// Provider is the contract every LLM Adapter variant satisfies: translate a
// model-agnostic request/history into a provider's wire format and parse its
// streaming response into a unified LLMEvent sequence. The returned channel
// is finite and not restartable; it is closed once a terminal LLMEventDone
// or LLMEventError has been sent.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call Complete for different requests at the same time.
type Provider interface {
	Complete(ctx context.Context, req Request) (<-chan models.LLMEvent, error)
	Name() string
	MaxContextTokens(model string) int
}

// Request carries everything an adapter needs to produce one LLM round: the
// conversation so far, the previous round's spliced tool results (if any),
// the tool schemas available this round, and the system prompt.
type Request struct {
	Model              string
	SystemPrompt       string
	Messages           []models.Message
	Tools              []models.ToolSchema
	ToolResults        []models.ToolResultRecord
	PreviousResponseID string
	MaxTokens          int
	Temperature        float64
}

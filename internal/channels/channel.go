// Package channels defines the abstract Channel contract the Agent
// Orchestrator is driven through, plus the Registry that owns every
// configured channel's lifecycle. Concrete chat-platform adapters (Telegram,
// Feishu, and similarly "beyond the abstract Channel contract") are out of
// scope (spec §1); this package carries the contract and the one reference
// implementation (wsref) that exercises it end to end.
package channels

import (
	"context"

	"github.com/openvia/openvia/pkg/models"
)

// SendReply delivers one reply to whatever inbound message it answers. It
// may be called multiple times per inbound message, and a Channel may split
// an overly long reply across several calls.
type SendReply func(ctx context.Context, text string) error

// MessageHandler is invoked once per inbound message a Channel receives. The
// input is either plain text or a richer ContentBlock sequence (image
// attachments, etc); userID and channelID identify the session the Channel
// is routing on the Orchestrator's behalf.
type MessageHandler func(ctx context.Context, input []models.ContentBlock, userID, channelID string, reply SendReply) error

// Channel is the polymorphic surface the Orchestrator is driven through
// (spec §6). A Channel owns exactly one transport (a websocket, a bot API
// long-poll loop, a webhook listener) and is responsible for turning its
// wire protocol's inbound events into MessageHandler calls and its outbound
// replies/permission prompts into whatever its protocol requires.
type Channel interface {
	// ID identifies this channel instance, used by the Permission Bridge to
	// route a resolution back to the channel that originated the request.
	ID() string

	// Start begins listening for inbound messages and invokes handler for
	// each one. Start returns once listening has begun (or failed); message
	// delivery continues on the Channel's own goroutine(s) until Stop.
	Start(ctx context.Context, handler MessageHandler) error

	// Stop gracefully shuts the channel down, releasing its transport.
	Stop(ctx context.Context) error
}

// PermissionRequester is an optional Channel capability: a channel that can
// surface a require_approval prompt to its user and deliver the decision
// back through the Permission Bridge. Channels that don't implement it
// simply never receive permission requests routed to them.
type PermissionRequester interface {
	HandlePermissionRequest(ctx context.Context, req models.PendingPermission) error
}

// Registry owns every configured Channel's lifecycle: registration,
// starting, and stopping as a group.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel to the registry, keyed by its own ID.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.ID()] = ch
}

// Get returns a registered channel by ID.
func (r *Registry) Get(id string) (Channel, bool) {
	ch, ok := r.channels[id]
	return ch, ok
}

// All returns every registered channel.
func (r *Registry) All() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// StartAll starts every registered channel with the same handler, stopping
// at the first failure.
func (r *Registry) StartAll(ctx context.Context, handler MessageHandler) error {
	for _, ch := range r.channels {
		if err := ch.Start(ctx, handler); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every registered channel, continuing past individual
// failures and returning the last one encountered.
func (r *Registry) StopAll(ctx context.Context) error {
	var lastErr error
	for _, ch := range r.channels {
		if err := ch.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// DispatchPermissionRequest routes a pending permission to the channel named
// by req.Owner.ChatID, if that channel implements PermissionRequester. A
// channel that doesn't implement it, or isn't registered, is a silent no-op:
// the Permission Bridge's own deny-by-default handles the unresolved case.
func (r *Registry) DispatchPermissionRequest(ctx context.Context, req models.PendingPermission) {
	ch, ok := r.channels[req.Owner.ChatID]
	if !ok {
		return
	}
	if pr, ok := ch.(PermissionRequester); ok {
		_ = pr.HandlePermissionRequest(ctx, req)
	}
}

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openvia/openvia/pkg/models"
)

// ApprovalHandler delivers a pending permission request to whatever surface
// can resolve it (a chat channel, in practice). It must not block
// indefinitely; the Orchestrator awaits resolution separately via the
// channel PermissionBridge.Request returns.
type ApprovalHandler func(req models.PendingPermission)

// PermissionBridge correlates async permission requests with their eventual
// resolution. It is a process-wide singleton: one bridge serves every
// session, since a channel's approval handler is registered once at
// startup, not per turn.
type PermissionBridge struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
	handler ApprovalHandler
}

type pendingEntry struct {
	req      models.PendingPermission
	resolve  chan bool
	resolved bool
}

// NewPermissionBridge creates an empty bridge with no handler registered.
// Until RegisterHandler is called, every Request is immediately denied —
// deny-by-default.
func NewPermissionBridge() *PermissionBridge {
	return &PermissionBridge{pending: make(map[string]*pendingEntry)}
}

// RegisterHandler installs the approval handler. Only one handler is
// supported at a time; a later call replaces the former.
func (b *PermissionBridge) RegisterHandler(h ApprovalHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Request registers a new pending permission and, if a handler is
// registered, delivers it. It returns a channel that yields exactly one
// bool (approved/denied) once resolved. If no handler is registered, the
// returned channel already carries a "denied" value.
func (b *PermissionBridge) Request(ctx context.Context, owner models.Ownership, toolName, prompt string, args []byte) (string, <-chan bool) {
	id := uuid.NewString()
	req := models.PendingPermission{
		ID:       id,
		Owner:    owner,
		ToolName: toolName,
		ToolArgs: args,
		Prompt:   prompt,
		Created:  time.Now(),
	}

	entry := &pendingEntry{req: req, resolve: make(chan bool, 1)}

	b.mu.Lock()
	handler := b.handler
	if handler == nil {
		entry.resolved = true
		entry.resolve <- false
		b.mu.Unlock()
		return id, entry.resolve
	}
	b.pending[id] = entry
	b.mu.Unlock()

	handler(req)
	return id, entry.resolve
}

// ResolveRequest resolves a pending request by id. It is idempotent: a
// second resolution for the same id is a no-op and returns false. Resolving
// an unknown id is also a no-op (the request may have already been
// resolved, or never existed) and returns false.
func (b *PermissionBridge) ResolveRequest(id string, approved bool) bool {
	b.mu.Lock()
	entry, ok := b.pending[id]
	if !ok || entry.resolved {
		b.mu.Unlock()
		return false
	}
	entry.resolved = true
	delete(b.pending, id)
	b.mu.Unlock()

	entry.resolve <- approved
	return true
}

// FindRequestByUser returns the oldest still-pending request owned by
// userID, if any — used by a channel adapter that receives an approval
// reply without an explicit request id (e.g. a plain "yes" in the same
// chat).
func (b *PermissionBridge) FindRequestByUser(userID string) (models.PendingPermission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found models.PendingPermission
	var oldest time.Time
	ok := false
	for _, entry := range b.pending {
		if entry.req.Owner.UserID != userID {
			continue
		}
		if !ok || entry.req.Created.Before(oldest) {
			found = entry.req
			oldest = entry.req.Created
			ok = true
		}
	}
	return found, ok
}

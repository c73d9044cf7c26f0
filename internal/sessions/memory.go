// Package sessions implements the Session Manager: the (userID, chatID)
// keyed, in-memory, bounded-history store the Agent Orchestrator borrows for
// the duration of one turn.
package sessions

import (
	"sync"
	"time"

	"github.com/openvia/openvia/internal/observability"
	"github.com/openvia/openvia/pkg/models"
)

const (
	// MaxHistory bounds the number of messages kept per session.
	MaxHistory = 20

	// Timeout is the inactivity window after which a session is evicted by
	// a sweep, regardless of an in-flight turn.
	Timeout = 30 * time.Minute
)

// Manager owns every active Session. Its map is guarded by mu; callers that
// need to mutate a Session's history across several steps should do so
// through GetOrCreate + Update rather than holding a pointer across an
// await, since eviction can run concurrently.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	nowFunc  func() time.Time
	metrics  *observability.Metrics
}

// NewManager creates an empty Session Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*models.Session),
		nowFunc:  time.Now,
	}
}

// SetMetrics wires a Metrics sink for session creation and eviction counts.
// Optional: a nil or never-called Manager simply skips recording.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetNowFunc overrides the clock, for deterministic sweep tests.
func (m *Manager) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = fn
}

// GetOrCreate returns the existing session for (userID, chatID), or creates
// a fresh one. The returned Session is a defensive copy; callers must call
// Update to persist changes.
func (m *Manager) GetOrCreate(userID, chatID string) models.Session {
	key := models.Session{UserID: userID, ChatID: chatID}.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return cloneSession(s)
	}

	now := m.nowFunc()
	s := &models.Session{UserID: userID, ChatID: chatID, LastActivity: now}
	m.sessions[key] = s
	if m.metrics != nil {
		m.metrics.SessionCreated()
	}
	return cloneSession(s)
}

// Update persists a session, trimming history to MaxHistory (keeping the
// most recent messages) and stamping LastActivity.
func (m *Manager) Update(s models.Session) {
	if len(s.History) > MaxHistory {
		s.History = append([]models.Message{}, s.History[len(s.History)-MaxHistory:]...)
	}
	s.LastActivity = m.nowFuncLocked()

	key := s.Key()
	stored := cloneSession(&s)

	m.mu.Lock()
	m.sessions[key] = &stored
	m.mu.Unlock()
}

func (m *Manager) nowFuncLocked() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowFunc()
}

// Clear removes a session's history, keeping it present with an empty
// history rather than deleting the entry outright.
func (m *Manager) Clear(userID, chatID string) {
	key := models.Session{UserID: userID, ChatID: chatID}.Key()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.History = nil
		s.ProviderResponseID = ""
	}
}

// Sweep evicts every session whose LastActivity is older than Timeout, and
// returns the number evicted. Eviction never interrupts an in-flight turn —
// it only removes the Manager's own record; an Orchestrator already holding
// a borrowed Session value keeps working with it until that turn completes,
// and will simply get a freshly created Session on its next GetOrCreate.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	evicted := 0
	for key, s := range m.sessions {
		if now.Sub(s.LastActivity) > Timeout {
			delete(m.sessions, key)
			evicted++
		}
	}
	if m.metrics != nil {
		m.metrics.SessionsSwept(evicted)
	}
	return evicted
}

// Count returns the number of sessions currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func cloneSession(s *models.Session) models.Session {
	clone := *s
	if s.History != nil {
		clone.History = append([]models.Message{}, s.History...)
	}
	if s.AllowedTools != nil {
		clone.AllowedTools = append([]string{}, s.AllowedTools...)
	}
	if s.DeniedTools != nil {
		clone.DeniedTools = append([]string{}, s.DeniedTools...)
	}
	return clone
}

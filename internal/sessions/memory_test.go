package sessions

import (
	"testing"
	"time"

	"github.com/openvia/openvia/pkg/models"
)

func TestManager_GetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager()
	s1 := m.GetOrCreate("u1", "c1")
	s1.History = append(s1.History, models.NewTextMessage(models.RoleUser, "hi"))
	m.Update(s1)

	s2 := m.GetOrCreate("u1", "c1")
	if len(s2.History) != 1 {
		t.Fatalf("got %d history entries, want 1 (same session reused)", len(s2.History))
	}
}

func TestManager_DifferentChatsAreIndependent(t *testing.T) {
	m := NewManager()
	s1 := m.GetOrCreate("u1", "c1")
	s1.History = append(s1.History, models.NewTextMessage(models.RoleUser, "hi"))
	m.Update(s1)

	s2 := m.GetOrCreate("u1", "c2")
	if len(s2.History) != 0 {
		t.Fatalf("expected a fresh session for a different chat, got %d entries", len(s2.History))
	}
}

func TestManager_HistoryBoundedToMaxHistory(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("u1", "c1")
	for i := 0; i < MaxHistory+10; i++ {
		s.History = append(s.History, models.NewTextMessage(models.RoleUser, "msg"))
	}
	m.Update(s)

	got := m.GetOrCreate("u1", "c1")
	if len(got.History) != MaxHistory {
		t.Fatalf("got %d history entries, want bounded to %d", len(got.History), MaxHistory)
	}
}

func TestManager_Clear(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("u1", "c1")
	s.History = append(s.History, models.NewTextMessage(models.RoleUser, "hi"))
	s.ProviderResponseID = "resp-1"
	m.Update(s)

	m.Clear("u1", "c1")

	got := m.GetOrCreate("u1", "c1")
	if len(got.History) != 0 {
		t.Fatalf("expected cleared history, got %d entries", len(got.History))
	}
	if got.ProviderResponseID != "" {
		t.Fatal("expected cleared provider response id")
	}
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.SetNowFunc(func() time.Time { return now })

	m.GetOrCreate("u1", "c1")
	m.GetOrCreate("u2", "c2")

	now = now.Add(Timeout + time.Minute)
	evicted := m.Sweep()
	if evicted != 2 {
		t.Fatalf("got %d evicted, want 2", evicted)
	}
	if m.Count() != 0 {
		t.Fatalf("expected 0 sessions remaining, got %d", m.Count())
	}
}

func TestManager_SweepKeepsActiveSessions(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.SetNowFunc(func() time.Time { return now })

	m.GetOrCreate("u1", "c1")

	now = now.Add(Timeout - time.Minute)
	evicted := m.Sweep()
	if evicted != 0 {
		t.Fatalf("got %d evicted, want 0 (still within timeout)", evicted)
	}
}

func TestManager_UpdateDoesNotAliasCallerSlice(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("u1", "c1")
	s.History = append(s.History, models.NewTextMessage(models.RoleUser, "hi"))
	m.Update(s)

	// Mutating the caller's slice after Update must not affect stored state.
	s.History[0] = models.NewTextMessage(models.RoleUser, "tampered")

	got := m.GetOrCreate("u1", "c1")
	if got.History[0].Text() != "hi" {
		t.Fatalf("stored history was aliased: got %q", got.History[0].Text())
	}
}

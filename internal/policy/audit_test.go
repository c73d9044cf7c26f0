package policy

import (
	"testing"

	"github.com/openvia/openvia/pkg/models"
)

func TestAuditLog_FIFOEviction(t *testing.T) {
	log := NewAuditLog(3)
	for i := 0; i < 5; i++ {
		log.Record(models.AuditEntry{Tool: string(rune('a' + i))})
	}
	if log.Len() != 3 {
		t.Fatalf("got %d entries, want 3 (bounded)", log.Len())
	}
	entries := log.Entries()
	want := []string{"c", "d", "e"}
	for i, e := range entries {
		if e.Tool != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Tool, want[i])
		}
	}
}

func TestAuditLog_MirrorFailureDoesNotBlock(t *testing.T) {
	log := NewAuditLog(10)
	log.SetMirror(failingMirror{})
	log.Record(models.AuditEntry{Tool: "t"})
	if log.Len() != 1 {
		t.Fatal("expected the in-memory record to succeed despite mirror failure")
	}
}

type failingMirror struct{}

func (failingMirror) Write(models.AuditEntry) error { return errAlwaysFails }

var errAlwaysFails = &mirrorError{}

type mirrorError struct{}

func (*mirrorError) Error() string { return "mirror always fails" }

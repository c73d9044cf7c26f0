package policy

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/openvia/openvia/pkg/models"
)

// SQLiteMirror is the optional durable audit sink (D3). It is additive: the
// spec's audit model is the in-memory ring buffer, and losing the mirror
// (disk full, permissions, corruption) must never interrupt tool execution.
type SQLiteMirror struct {
	db *sql.DB
}

// OpenSQLiteMirror opens (creating if absent) a SQLite database at path and
// ensures the audit_log table exists.
func OpenSQLiteMirror(path string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit mirror: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	user_id TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	args_snapshot TEXT NOT NULL,
	decision TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_log table: %w", err)
	}
	return &SQLiteMirror{db: db}, nil
}

// Write inserts one audit entry. Failures are returned for the caller's own
// logging; AuditLog.Record already treats them as non-fatal.
func (m *SQLiteMirror) Write(entry models.AuditEntry) error {
	_, err := m.db.Exec(
		`INSERT INTO audit_log (timestamp, user_id, chat_id, tool, args_snapshot, decision) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		entry.UserID, entry.ChatID, entry.Tool, entry.ArgsSnapshot, entry.Decision,
	)
	return err
}

// Close releases the underlying database handle.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}

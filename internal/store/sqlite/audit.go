// Package sqlite is the standalone-mode durable audit archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/clawgate/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	user_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	command TEXT NOT NULL,
	tier TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	approved INTEGER,
	approved_by TEXT,
	approved_at TIMESTAMP,
	executed_at TIMESTAMP,
	output TEXT,
	error TEXT,
	secrets_found TEXT,
	secrets_redacted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_user_created ON audit_entries (user_id, created_at DESC);
`

// AuditArchive stores audit entries, keyed by id, in a local sqlite database.
type AuditArchive struct {
	db *sql.DB
}

// NewAuditArchive opens (creating if needed) the archive at path.
func NewAuditArchive(path string) (*AuditArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &AuditArchive{db: db}, nil
}

// Append inserts one entry. A duplicate id replaces the stored row so the
// ring can re-archive an updated entry.
func (a *AuditArchive) Append(ctx context.Context, e audit.Entry) error {
	var secretsJSON []byte
	if len(e.SecretsFound) > 0 {
		secretsJSON, _ = json.Marshal(e.SecretsFound)
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_entries
		 (id, created_at, user_id, channel_id, command, tier, action, reason,
		  approved, approved_by, approved_at, executed_at, output, error,
		  secrets_found, secrets_redacted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt, e.UserID, e.ChannelID, e.Command, e.Tier, e.Action, e.Reason,
		nullableBool(e.Approved), e.ApprovedBy, e.ApprovedAt, e.ExecutedAt,
		e.Output, e.Error, string(secretsJSON), e.SecretsRedacted,
	)
	return err
}

// Close releases the database handle.
func (a *AuditArchive) Close() error { return a.db.Close() }

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

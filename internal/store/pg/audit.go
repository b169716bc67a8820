package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/clawgate/internal/audit"
)

// AuditArchive stores audit entries, keyed by id, in Postgres (managed mode).
type AuditArchive struct {
	db *sql.DB
}

// NewAuditArchive wraps the shared pool.
func NewAuditArchive(db *sql.DB) *AuditArchive {
	return &AuditArchive{db: db}
}

// Append upserts one entry keyed by id.
func (a *AuditArchive) Append(ctx context.Context, e audit.Entry) error {
	var secretsJSON []byte
	if len(e.SecretsFound) > 0 {
		secretsJSON, _ = json.Marshal(e.SecretsFound)
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO audit_entries
		 (id, created_at, user_id, channel_id, command, tier, action, reason,
		  approved, approved_by, approved_at, executed_at, output, error,
		  secrets_found, secrets_redacted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   approved = EXCLUDED.approved,
		   approved_by = EXCLUDED.approved_by,
		   approved_at = EXCLUDED.approved_at,
		   executed_at = EXCLUDED.executed_at,
		   output = EXCLUDED.output,
		   error = EXCLUDED.error,
		   secrets_found = EXCLUDED.secrets_found,
		   secrets_redacted = EXCLUDED.secrets_redacted`,
		e.ID, e.CreatedAt, e.UserID, e.ChannelID, e.Command, e.Tier, e.Action, e.Reason,
		nullableBool(e.Approved), nullString(e.ApprovedBy), e.ApprovedAt, e.ExecutedAt,
		nullString(e.Output), nullString(e.Error), nullBytes(secretsJSON), e.SecretsRedacted,
	)
	return err
}

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditStore creates an AuditStore on d.
func NewAuditStore(d *DB) *AuditStore { return &AuditStore{db: d.sql, now: time.Now} }

// Log appends an entry. Credential-like keys in detail are masked.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(domain.RedactAuditDetail(detail))
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), toUnix(s.now()))
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	args := []any{}
	if opts.Event != "" {
		query += " AND event = ?"
		args = append(args, opts.Event)
	}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, toUnix(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, toUnix(*opts.Until))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = fromUnix(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

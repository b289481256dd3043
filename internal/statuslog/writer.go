// Package statuslog appends rows to the append-only status histories of
// requests and results. Entries are written inside the caller's transaction
// so a status change and its log row commit or roll back together.
package statuslog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reqline/internal/domain"
)

// Subject kinds.
const (
	KindRequest = "request"
	KindResult  = "result"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records one status entry for the given subject.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, kind, subjectUUID, status, message string) error {
	table, column, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (uuid, %s, status, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		table, column,
	)
	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, query,
		uuid.NewString(), subjectUUID, status, message, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append status log: %w", err)
	}
	return nil
}

// History returns the subject's log entries in insertion order.
func (w Writer) History(ctx context.Context, kind, subjectUUID string) ([]domain.StatusLogEntry, error) {
	table, column, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT uuid, %s, status, COALESCE(message, ''), created_at FROM %s WHERE %s = ? ORDER BY created_at, uuid`,
		column, table, column,
	)
	rows, err := w.DB.QueryContext(ctx, query, subjectUUID)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()

	var entries []domain.StatusLogEntry
	for rows.Next() {
		var e domain.StatusLogEntry
		var createdAt string
		if err := rows.Scan(&e.UUID, &e.SubjectUUID, &e.Status, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func tableFor(kind string) (table, column string, err error) {
	switch kind {
	case KindRequest:
		return "status_log_requests", "request_uuid", nil
	case KindResult:
		return "status_log_results", "result_uuid", nil
	default:
		return "", "", fmt.Errorf("unknown status log kind %q", kind)
	}
}

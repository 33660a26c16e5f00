package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zjrosen/connreg/internal/notify"
)

// ChangeLog implements notify.Log on the registry_changes table.
type ChangeLog struct {
	db *sql.DB
}

func newChangeLog(db *sql.DB) *ChangeLog {
	return &ChangeLog{db: db}
}

// Ensure ChangeLog implements notify.Log.
var _ notify.Log = (*ChangeLog)(nil)

// Append stores n and returns its row ID.
func (l *ChangeLog) Append(ctx context.Context, n notify.Notice) (int64, error) {
	m := toChangeModel(n)
	result, err := l.db.ExecContext(ctx,
		`INSERT INTO registry_changes (sender, seq, sent_at) VALUES (?, ?, ?)`,
		m.Sender, m.Seq, m.SentAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append notice: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Since returns the notices stored after afterID, oldest first.
func (l *ChangeLog) Since(ctx context.Context, afterID int64) ([]notify.Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, sender, seq, sent_at FROM registry_changes WHERE id > ? ORDER BY id`, afterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []notify.Record
	for rows.Next() {
		var m ChangeModel
		if err := rows.Scan(&m.ID, &m.Sender, &m.Seq, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notice: %w", err)
		}
		records = append(records, m.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notices: %w", err)
	}
	return records, nil
}

// LatestID returns the newest row ID, or 0 when the log is empty.
func (l *ChangeLog) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM registry_changes`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest notice: %w", err)
	}
	return id, nil
}

// Prune deletes all but the newest keep notices.
func (l *ChangeLog) Prune(ctx context.Context, keep int) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM registry_changes WHERE id <= (SELECT COALESCE(MAX(id), 0) FROM registry_changes) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned notices: %w", err)
	}
	return n, nil
}

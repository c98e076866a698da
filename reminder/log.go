package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LogEntry is one audited reminder send.
type LogEntry struct {
	ID          int64
	AgreementID string
	Recipient   string
	Channel     string
	Urgency     Urgency
	SentAt      time.Time
}

// PGLog appends reminder sends to the reminder_log table.
type PGLog struct {
	pool *pgxpool.Pool
}

func NewLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

func (l *PGLog) Append(ctx context.Context, entry LogEntry) error {
	if entry.AgreementID == "" {
		return fmt.Errorf("reminder: log entry missing agreement id")
	}
	_, err := l.pool.Exec(ctx, `
        INSERT INTO reminder_log (agreement_id, recipient, channel, urgency, sent_at)
        VALUES ($1,$2,$3,$4,$5)
    `, entry.AgreementID, entry.Recipient, entry.Channel, entry.Urgency, entry.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("reminder: append log: %w", err)
	}
	return nil
}

// ListForAgreement returns the audit trail for an agreement, oldest first.
func (l *PGLog) ListForAgreement(ctx context.Context, agreementID string) ([]LogEntry, error) {
	rows, err := l.pool.Query(ctx, `
        SELECT id, agreement_id, recipient, channel, urgency, sent_at
        FROM reminder_log
        WHERE agreement_id=$1
        ORDER BY id
    `, agreementID)
	if err != nil {
		return nil, fmt.Errorf("reminder: list log: %w", err)
	}
	defer rows.Close()

	out := make([]LogEntry, 0, 8)
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.AgreementID, &e.Recipient, &e.Channel, &e.Urgency, &e.SentAt); err != nil {
			return nil, fmt.Errorf("reminder: scan log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder: iterate log: %w", err)
	}
	return out, nil
}

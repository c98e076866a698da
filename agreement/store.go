package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no agreement row exists for the identifier.
	ErrNotFound = errors.New("agreement: not found")
	// ErrInvalidTransition signals the state machine rejected the transition.
	ErrInvalidTransition = errors.New("agreement: invalid transition")
	// ErrDuplicateEvent signals the idempotency key was already applied.
	ErrDuplicateEvent = errors.New("agreement: duplicate event")
	// ErrEnvelopeTaken signals the envelope id is already assigned elsewhere.
	ErrEnvelopeTaken = errors.New("agreement: envelope already assigned")
)

const agreementColumns = `
id, template_id, property_id, prospect_name, prospect_email, prospect_phone,
status, sent_date, viewed_date, signed_date, completed_date, expiration_date,
last_reminder_date, reminders_sent, reminders_cancelled, cancel_reason,
envelope_id, document_ref, tenant_id, variables, version, created_at, updated_at`

// Store persists agreements, their append-only status history, and the
// idempotency keys that guard webhook replays. All status writes go through
// Transition, which locks the row so concurrent webhook deliveries and
// scheduler workers serialize per agreement.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Create inserts a new draft agreement and writes the initial history entry.
func (s *Store) Create(ctx context.Context, params CreateParams) (Agreement, error) {
	return s.create(ctx, params, StatusDraft)
}

// CreateAndSend inserts an agreement directly in sent, stamping sent_date.
func (s *Store) CreateAndSend(ctx context.Context, params CreateParams) (Agreement, error) {
	return s.create(ctx, params, StatusSent)
}

func (s *Store) create(ctx context.Context, params CreateParams, status Status) (Agreement, error) {
	if params.TemplateID == "" || params.PropertyID == "" {
		return Agreement{}, fmt.Errorf("agreement: template and property ids required")
	}
	if params.ProspectName == "" || params.ProspectEmail == "" {
		return Agreement{}, fmt.Errorf("agreement: prospect name and email required")
	}
	if params.ExpirationDays < 0 {
		return Agreement{}, fmt.Errorf("agreement: invalid expiration days")
	}

	now := s.now().UTC()
	var expiration *time.Time
	if params.ExpirationDays > 0 {
		t := now.AddDate(0, 0, params.ExpirationDays)
		expiration = &t
	}
	var sentDate *time.Time
	if status == StatusSent {
		sentDate = &now
	}

	variables, err := marshalVariables(params.Variables)
	if err != nil {
		return Agreement{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
        INSERT INTO agreements (template_id, property_id, prospect_name, prospect_email, prospect_phone,
                                status, sent_date, expiration_date, variables)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
        RETURNING ` + agreementColumns

	ag, err := scanAgreement(tx.QueryRow(ctx, insertSQL,
		params.TemplateID,
		params.PropertyID,
		params.ProspectName,
		params.ProspectEmail,
		params.ProspectPhone,
		status,
		sentDate,
		expiration,
		variables,
	))
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}

	if err := appendHistory(ctx, tx, ag.ID, nil, status, "created", params.Actor); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit: %w", err)
	}
	return ag, nil
}

// Transition applies a status change with read-modify-write atomicity. The
// current row is locked FOR UPDATE, the edge validated against the
// then-current status, the milestone timestamp stamped, and a history entry
// appended, all in one transaction. Re-applying the current status is a
// successful no-op with no history write.
func (s *Store) Transition(ctx context.Context, params TransitionParams) (Agreement, error) {
	if params.AgreementID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing agreement id")
	}
	if !IsValidStatus(params.NewStatus) {
		return Agreement{}, fmt.Errorf("agreement: unknown status %q", params.NewStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := reserveIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			return Agreement{}, err
		}
	}

	current, err := scanAgreement(tx.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements WHERE id=$1 FOR UPDATE`, params.AgreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: lock row: %w", err)
	}

	if current.Status == params.NewStatus {
		// Idempotent replay: persist the key reservation, change nothing else.
		if err := tx.Commit(ctx); err != nil {
			return Agreement{}, fmt.Errorf("agreement: commit noop: %w", err)
		}
		return current, nil
	}

	if !CanTransition(current.Status, params.NewStatus) {
		return Agreement{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, params.NewStatus)
	}

	ts := s.now().UTC()
	if params.OccurredAt != nil {
		ts = params.OccurredAt.UTC()
	}

	var updated Agreement
	if col, ok := milestoneColumn[params.NewStatus]; ok {
		updateSQL := fmt.Sprintf(`
            UPDATE agreements
            SET status=$1, %s=COALESCE(%s,$2), version=version+1, updated_at=now()
            WHERE id=$3
            RETURNING `+agreementColumns, col, col)
		updated, err = scanAgreement(tx.QueryRow(ctx, updateSQL, params.NewStatus, ts, params.AgreementID))
	} else {
		updateSQL := `
            UPDATE agreements
            SET status=$1, version=version+1, updated_at=now()
            WHERE id=$2
            RETURNING ` + agreementColumns
		updated, err = scanAgreement(tx.QueryRow(ctx, updateSQL, params.NewStatus, params.AgreementID))
	}
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: update status: %w", err)
	}

	prev := current.Status
	if err := appendHistory(ctx, tx, params.AgreementID, &prev, params.NewStatus, params.Note, params.Actor); err != nil {
		return Agreement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit transition: %w", err)
	}
	return updated, nil
}

// AssignEnvelope records the external envelope id once sending begins. The
// column carries a unique index so the webhook correlation lookup stays 1:1
// with the latest envelope; a re-send for the same agreement overwrites it.
func (s *Store) AssignEnvelope(ctx context.Context, agreementID, envelopeID string) error {
	if envelopeID == "" {
		return fmt.Errorf("agreement: empty envelope id")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agreements SET envelope_id=$2, updated_at=now() WHERE id=$1`, agreementID, envelopeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEnvelopeTaken
		}
		return fmt.Errorf("agreement: assign envelope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Agreement, error) {
	ag, err := scanAgreement(s.pool.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get by id: %w", err)
	}
	return ag, nil
}

// GetByEnvelopeID resolves the webhook correlation id to an agreement.
func (s *Store) GetByEnvelopeID(ctx context.Context, envelopeID string) (Agreement, error) {
	ag, err := scanAgreement(s.pool.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements WHERE envelope_id=$1`, envelopeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get by envelope: %w", err)
	}
	return ag, nil
}

// History returns the append-only status trail, oldest first.
func (s *Store) History(ctx context.Context, agreementID string) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, agreement_id, previous_status, new_status, note, actor, created_at
        FROM agreement_status_history
        WHERE agreement_id = $1
        ORDER BY id
    `, agreementID)
	if err != nil {
		return nil, fmt.Errorf("agreement: list history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, 8)
	for rows.Next() {
		var (
			e    HistoryEntry
			prev *string
		)
		if err := rows.Scan(&e.ID, &e.AgreementID, &prev, &e.NewStatus, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("agreement: scan history: %w", err)
		}
		if prev != nil {
			p := Status(*prev)
			e.PreviousStatus = &p
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate history: %w", err)
	}
	return entries, nil
}

// ListDueForReminders returns active, unexpired agreements still eligible for
// reminder evaluation. Attempt caps and per-day dedup are enforced at claim
// time, not here.
func (s *Store) ListDueForReminders(ctx context.Context, now time.Time) ([]Agreement, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+agreementColumns+`
        FROM agreements
        WHERE status IN ('sent','viewed')
          AND reminders_cancelled = false
          AND expiration_date IS NOT NULL
          AND expiration_date > $1
        ORDER BY expiration_date
    `, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("agreement: list due: %w", err)
	}
	defer rows.Close()

	out := make([]Agreement, 0, 16)
	for rows.Next() {
		ag, err := scanAgreementRows(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: scan due: %w", err)
		}
		out = append(out, ag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate due: %w", err)
	}
	return out, nil
}

// ClaimReminder atomically records a reminder attempt: the same-day dedup
// check and the counter increment happen in one guarded UPDATE so concurrent
// scheduler workers (or a racing manual send) cannot double-claim. Returns
// false when another worker already claimed today, the attempt cap is
// reached, or reminders were cancelled.
func (s *Store) ClaimReminder(ctx context.Context, agreementID string, now time.Time, maxAttempts int) (bool, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	tag, err := s.pool.Exec(ctx, `
        UPDATE agreements
        SET reminders_sent = reminders_sent + 1,
            last_reminder_date = $2,
            updated_at = now()
        WHERE id = $1
          AND reminders_cancelled = false
          AND reminders_sent < $3
          AND (last_reminder_date IS NULL OR last_reminder_date < $4)
    `, agreementID, now.UTC(), maxAttempts, dayStart)
	if err != nil {
		return false, fmt.Errorf("agreement: claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelReminders permanently excludes the agreement from scheduler passes.
func (s *Store) CancelReminders(ctx context.Context, agreementID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE agreements
        SET reminders_cancelled = true,
            cancel_reason = COALESCE(cancel_reason, $2),
            updated_at = now()
        WHERE id = $1
    `, agreementID, reason)
	if err != nil {
		return fmt.Errorf("agreement: cancel reminders: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDocumentRef stores the downloadable document reference for a signed envelope.
func (s *Store) SetDocumentRef(ctx context.Context, agreementID, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agreements SET document_ref=$2, updated_at=now() WHERE id=$1`, agreementID, ref)
	if err != nil {
		return fmt.Errorf("agreement: set document ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTenantID writes the provisioned tenant id back onto the agreement. The
// column is written at most once; returns false when it was already set.
func (s *Store) SetTenantID(ctx context.Context, agreementID, tenantID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE agreements
        SET tenant_id = $2, updated_at = now()
        WHERE id = $1 AND tenant_id IS NULL
    `, agreementID, tenantID)
	if err != nil {
		return false, fmt.Errorf("agreement: set tenant id: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func reserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	_, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("agreement: insert idempotency key: %w", err)
	}
	return nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, agreementID string, prev *Status, next Status, note, actor string) error {
	var prevVal any
	if prev != nil {
		prevVal = string(*prev)
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO agreement_status_history (agreement_id, previous_status, new_status, note, actor)
        VALUES ($1,$2,$3,$4,$5)
    `, agreementID, prevVal, next, note, actor); err != nil {
		return fmt.Errorf("agreement: insert history: %w", err)
	}
	return nil
}

func marshalVariables(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("agreement: marshal variables: %w", err)
	}
	return string(b), nil
}

func scanAgreement(row pgx.Row) (Agreement, error) {
	return scanAgreementRows(row)
}

func scanAgreementRows(row pgx.Row) (Agreement, error) {
	var (
		ag        Agreement
		variables []byte
	)
	err := row.Scan(
		&ag.ID,
		&ag.TemplateID,
		&ag.PropertyID,
		&ag.ProspectName,
		&ag.ProspectEmail,
		&ag.ProspectPhone,
		&ag.Status,
		&ag.SentDate,
		&ag.ViewedDate,
		&ag.SignedDate,
		&ag.CompletedDate,
		&ag.ExpirationDate,
		&ag.LastReminderDate,
		&ag.RemindersSent,
		&ag.RemindersCancelled,
		&ag.CancelReason,
		&ag.EnvelopeID,
		&ag.DocumentRef,
		&ag.TenantID,
		&variables,
		&ag.Version,
		&ag.CreatedAt,
		&ag.UpdatedAt,
	)
	if err != nil {
		return Agreement{}, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &ag.Variables); err != nil {
			return Agreement{}, fmt.Errorf("agreement: unmarshal variables: %w", err)
		}
	}
	return ag, nil
}

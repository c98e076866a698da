package agreement

import "time"

// Status is the stored lifecycle state of an agreement.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusSigned    Status = "signed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Agreement mirrors the agreements table columns touched by the services.
type Agreement struct {
	ID         string
	TemplateID string
	PropertyID string

	ProspectName  string
	ProspectEmail string
	ProspectPhone *string

	Status         Status
	SentDate       *time.Time
	ViewedDate     *time.Time
	SignedDate     *time.Time
	CompletedDate  *time.Time
	ExpirationDate *time.Time

	LastReminderDate   *time.Time
	RemindersSent      int
	RemindersCancelled bool
	CancelReason       *string

	EnvelopeID  *string
	DocumentRef *string
	TenantID    *string

	// Variables holds the populated template variable values.
	Variables map[string]string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryEntry captures one accepted status transition. Rows are append-only.
type HistoryEntry struct {
	ID             int64
	AgreementID    string
	PreviousStatus *Status
	NewStatus      Status
	Note           string
	Actor          string
	CreatedAt      time.Time
}

// CreateParams enumerates the fields required to insert a new agreement.
type CreateParams struct {
	TemplateID     string
	PropertyID     string
	ProspectName   string
	ProspectEmail  string
	ProspectPhone  *string
	ExpirationDays int
	Variables      map[string]string
	Actor          string
}

// TransitionParams drives a single status transition through the state machine.
type TransitionParams struct {
	AgreementID string
	NewStatus   Status
	Note        string
	Actor       string

	// OccurredAt, when set, is used as the milestone timestamp instead of the
	// transaction time (the e-sign provider reports its own event time).
	OccurredAt *time.Time

	// IdempotencyKey, when set, is reserved in the same transaction as the
	// transition. A replayed key makes the whole call a successful no-op.
	IdempotencyKey string
}

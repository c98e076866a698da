package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EnvelopeStatus is the decoded provider envelope state. Unknown values are
// preserved on the event rather than rejected, so new provider statuses
// degrade to a logged no-op instead of a delivery failure.
type EnvelopeStatus string

const (
	EnvelopeSent      EnvelopeStatus = "sent"
	EnvelopeDelivered EnvelopeStatus = "delivered"
	EnvelopeCompleted EnvelopeStatus = "completed"
	EnvelopeDeclined  EnvelopeStatus = "declined"
	EnvelopeVoided    EnvelopeStatus = "voided"
	EnvelopeUnknown   EnvelopeStatus = "unknown"
)

// Event is the provider payload decoded once at the ingestion boundary.
// Downstream code never touches the raw JSON.
type Event struct {
	EventID    string
	EnvelopeID string
	Status     EnvelopeStatus
	RawStatus  string
	OccurredAt *time.Time
}

// DedupKey builds the idempotency key for this delivery. The provider's event
// id is preferred; when absent the envelope id plus status still collapses
// at-least-once redelivery of the same state change.
func (e Event) DedupKey() string {
	if e.EventID != "" {
		return "esign:" + e.EventID
	}
	return fmt.Sprintf("esign:%s:%s", e.EnvelopeID, e.RawStatus)
}

type wireEvent struct {
	EventID    string     `json:"eventId"`
	EnvelopeID string     `json:"envelopeId"`
	Status     string     `json:"status"`
	ChangedAt  *time.Time `json:"statusChangedDateTime"`
}

// ParseEvent decodes a provider payload. Status matching is case-insensitive.
func ParseEvent(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("webhook: decode event: %w", err)
	}
	if strings.TrimSpace(w.EnvelopeID) == "" {
		return Event{}, fmt.Errorf("webhook: event missing envelope id")
	}

	raw := strings.TrimSpace(w.Status)
	status := EnvelopeUnknown
	switch strings.ToLower(raw) {
	case "sent":
		status = EnvelopeSent
	case "delivered":
		status = EnvelopeDelivered
	case "completed":
		status = EnvelopeCompleted
	case "declined":
		status = EnvelopeDeclined
	case "voided":
		status = EnvelopeVoided
	}

	return Event{
		EventID:    strings.TrimSpace(w.EventID),
		EnvelopeID: strings.TrimSpace(w.EnvelopeID),
		Status:     status,
		RawStatus:  raw,
		OccurredAt: w.ChangedAt,
	}, nil
}

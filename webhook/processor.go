package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"leaseflow/agreement"
	"leaseflow/notify"
	"leaseflow/property"
)

// ErrBadSignature signals the payload failed HMAC verification.
var ErrBadSignature = errors.New("webhook: bad signature")

const (
	actorWebhook = "esign-webhook"

	defaultSideEffectTimeout = 5 * time.Second
)

// AgreementStore is the slice of the agreement store the processor drives.
type AgreementStore interface {
	GetByEnvelopeID(ctx context.Context, envelopeID string) (agreement.Agreement, error)
	Transition(ctx context.Context, params agreement.TransitionParams) (agreement.Agreement, error)
	SetDocumentRef(ctx context.Context, agreementID, ref string) error
}

// ReminderCanceller stops future scheduler passes for an agreement.
type ReminderCanceller interface {
	Cancel(ctx context.Context, agreementID, reason string) error
}

// CompletionTrigger provisions a tenant from a completed agreement.
type CompletionTrigger interface {
	ProcessCompletion(ctx context.Context, agreementID string) error
}

// DocumentResolver maps an envelope id to a downloadable document reference.
type DocumentResolver interface {
	Resolve(ctx context.Context, envelopeID string) (string, error)
}

// OwnerDirectory looks up the property owner for decline notifications.
type OwnerDirectory interface {
	GetByID(ctx context.Context, id string) (property.Profile, error)
}

// Processor ingests provider envelope events and drives the state machine.
// Every step after correlation is independently best-effort: a failing side
// effect never prevents the core transition from being durably recorded and
// never fails the webhook response, because the provider retries non-2xx
// deliveries indefinitely.
type Processor struct {
	secret     string
	store      AgreementStore
	reminders  ReminderCanceller
	completion CompletionTrigger
	documents  DocumentResolver
	owners     OwnerDirectory
	sender     notify.Sender

	sideEffectTimeout time.Duration
	wg                sync.WaitGroup
}

func NewProcessor(secret string, store AgreementStore, reminders ReminderCanceller, completion CompletionTrigger, documents DocumentResolver, owners OwnerDirectory, sender notify.Sender) *Processor {
	return &Processor{
		secret:            secret,
		store:             store,
		reminders:         reminders,
		completion:        completion,
		documents:         documents,
		owners:            owners,
		sender:            sender,
		sideEffectTimeout: defaultSideEffectTimeout,
	}
}

// Handle verifies, decodes, correlates, and applies one provider event.
// A nil return means the delivery is acknowledged (including no-ops and
// unmatched envelopes); ErrBadSignature maps to an authentication failure and
// any other error to a retryable internal failure.
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) error {
	if p.secret != "" {
		if !VerifySignature(p.secret, body, signature) {
			return ErrBadSignature
		}
	} else {
		// Permissive fallback for development: no secret, no verification.
		log.Printf("webhook: signature verification disabled")
	}

	ev, err := ParseEvent(body)
	if err != nil {
		// A malformed payload will never parse on retry; drop it.
		log.Printf("webhook: dropping malformed event: %v", err)
		return nil
	}

	ag, err := p.store.GetByEnvelopeID(ctx, ev.EnvelopeID)
	if err != nil {
		if errors.Is(err, agreement.ErrNotFound) {
			// The envelope may belong to an unrelated sender or arrive before
			// the correlating write lands; not an error.
			log.Printf("webhook: no agreement for envelope %s; dropping %s event", ev.EnvelopeID, ev.RawStatus)
			return nil
		}
		return fmt.Errorf("webhook: correlate envelope: %w", err)
	}

	switch ev.Status {
	case EnvelopeSent:
		return p.applyTransition(ctx, ag, ev, agreement.StatusSent, "envelope sent")
	case EnvelopeDelivered:
		return p.applyTransition(ctx, ag, ev, agreement.StatusViewed, "envelope delivered")
	case EnvelopeCompleted:
		return p.handleCompleted(ctx, ag, ev)
	case EnvelopeDeclined:
		if err := p.applyTransition(ctx, ag, ev, agreement.StatusCancelled, "envelope declined"); err != nil {
			return err
		}
		p.spawn("cancel reminders", func(ctx context.Context) error {
			return p.reminders.Cancel(ctx, ag.ID, "envelope declined")
		})
		p.spawn("notify owner", func(ctx context.Context) error {
			return p.notifyOwner(ctx, ag)
		})
		return nil
	case EnvelopeVoided:
		if err := p.applyTransition(ctx, ag, ev, agreement.StatusCancelled, "envelope voided"); err != nil {
			return err
		}
		p.spawn("cancel reminders", func(ctx context.Context) error {
			return p.reminders.Cancel(ctx, ag.ID, "envelope voided")
		})
		return nil
	default:
		log.Printf("webhook: unhandled envelope status %q for agreement %s", ev.RawStatus, ag.ID)
		return nil
	}
}

// handleCompleted applies signed then completed, stores the document
// reference, and fires the completion side effects. The dedup key guards the
// signed edge only; everything after it is idempotent, so a redelivery that
// raced a crash mid-sequence still converges.
func (p *Processor) handleCompleted(ctx context.Context, ag agreement.Agreement, ev Event) error {
	_, err := p.store.Transition(ctx, agreement.TransitionParams{
		AgreementID:    ag.ID,
		NewStatus:      agreement.StatusSigned,
		Note:           "envelope completed",
		Actor:          actorWebhook,
		OccurredAt:     ev.OccurredAt,
		IdempotencyKey: ev.DedupKey(),
	})
	if err != nil && !errors.Is(err, agreement.ErrDuplicateEvent) {
		if errors.Is(err, agreement.ErrInvalidTransition) {
			log.Printf("webhook: agreement %s: %v", ag.ID, err)
			return nil
		}
		return err
	}

	if p.documents != nil {
		if ref, derr := p.resolveDocument(ctx, ev.EnvelopeID); derr != nil {
			log.Printf("webhook: resolve document for envelope %s: %v", ev.EnvelopeID, derr)
		} else if derr := p.store.SetDocumentRef(ctx, ag.ID, ref); derr != nil {
			log.Printf("webhook: store document ref for agreement %s: %v", ag.ID, derr)
		}
	}

	if _, err := p.store.Transition(ctx, agreement.TransitionParams{
		AgreementID: ag.ID,
		NewStatus:   agreement.StatusCompleted,
		Note:        "signing completed",
		Actor:       actorWebhook,
		OccurredAt:  ev.OccurredAt,
	}); err != nil {
		if errors.Is(err, agreement.ErrInvalidTransition) {
			log.Printf("webhook: agreement %s: %v", ag.ID, err)
			return nil
		}
		return err
	}

	p.spawn("cancel reminders", func(ctx context.Context) error {
		return p.reminders.Cancel(ctx, ag.ID, "signing completed")
	})
	// Tenant provisioning failure must not roll back the completed status;
	// the signed agreement is authoritative regardless.
	p.spawn("tenant provisioning", func(ctx context.Context) error {
		return p.completion.ProcessCompletion(ctx, ag.ID)
	})
	return nil
}

func (p *Processor) applyTransition(ctx context.Context, ag agreement.Agreement, ev Event, next agreement.Status, note string) error {
	_, err := p.store.Transition(ctx, agreement.TransitionParams{
		AgreementID:    ag.ID,
		NewStatus:      next,
		Note:           note,
		Actor:          actorWebhook,
		OccurredAt:     ev.OccurredAt,
		IdempotencyKey: ev.DedupKey(),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, agreement.ErrDuplicateEvent):
		return nil
	case errors.Is(err, agreement.ErrInvalidTransition):
		// Out-of-order delivery; the current status already supersedes this
		// event. Retrying would never succeed, so acknowledge it.
		log.Printf("webhook: agreement %s: %v", ag.ID, err)
		return nil
	default:
		return err
	}
}

func (p *Processor) resolveDocument(ctx context.Context, envelopeID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.sideEffectTimeout)
	defer cancel()
	return p.documents.Resolve(ctx, envelopeID)
}

func (p *Processor) notifyOwner(ctx context.Context, ag agreement.Agreement) error {
	if p.owners == nil || p.sender == nil {
		return nil
	}
	prof, err := p.owners.GetByID(ctx, ag.PropertyID)
	if err != nil {
		return fmt.Errorf("webhook: lookup property %s: %w", ag.PropertyID, err)
	}
	return p.sender.Send(ctx, notify.Message{
		Recipient: prof.OwnerEmail,
		Subject:   fmt.Sprintf("Lease agreement declined for %s", prof.Name),
		Body: fmt.Sprintf("Hi %s,\n\n%s declined the lease agreement for %s. No further action is scheduled.\n",
			prof.OwnerName, ag.ProspectName, prof.Name),
		Urgency: "standard",
	})
}

// spawn runs a side effect in the background, detached from the request
// context and bounded by a short timeout, so a slow downstream cannot stall
// the webhook acknowledgment.
func (p *Processor) spawn(name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("webhook: %s failed: %v", name, err)
		}
	}()
}

// Wait blocks until all in-flight background side effects finish. Used on
// shutdown and in tests.
func (p *Processor) Wait() {
	p.wg.Wait()
}

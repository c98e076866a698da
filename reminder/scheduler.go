package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"leaseflow/agreement"
	"leaseflow/notify"
	"leaseflow/template"
)

var (
	// ErrNotActive signals the agreement is not awaiting signature.
	ErrNotActive = errors.New("reminder: agreement not awaiting signature")
	// ErrExpired signals the agreement passed its expiration date.
	ErrExpired = errors.New("reminder: agreement expired")
	// ErrNotDue signals no reminder is due for the current day.
	ErrNotDue = errors.New("reminder: no reminder due")
	// ErrRateLimited signals the recipient is over the rolling window cap.
	ErrRateLimited = errors.New("reminder: recipient rate limited")
	// ErrAlreadyClaimed signals today's reminder was already recorded or the
	// attempt cap is exhausted.
	ErrAlreadyClaimed = errors.New("reminder: already sent today or attempts exhausted")
)

// Store is the slice of the agreement store the scheduler drives.
type Store interface {
	ListDueForReminders(ctx context.Context, now time.Time) ([]agreement.Agreement, error)
	ClaimReminder(ctx context.Context, agreementID string, now time.Time, maxAttempts int) (bool, error)
	CancelReminders(ctx context.Context, agreementID, reason string) error
	GetByID(ctx context.Context, id string) (agreement.Agreement, error)
}

// TemplateSource loads the template an agreement was generated from, so the
// reminder can carry the populated agreement content. A nil source sends the
// built-in copy only.
type TemplateSource interface {
	GetByID(ctx context.Context, id string) (template.Template, error)
}

// Log records sent reminders for audit.
type Log interface {
	Append(ctx context.Context, entry LogEntry) error
}

// Stats summarizes one scheduler pass.
type Stats struct {
	Scanned  int
	Sent     int
	Skipped  int
	Failures int
}

// Scheduler scans active agreements on a fixed cadence and sends expiry
// reminders. Workers process disjoint agreements in parallel; the per-day
// dedup lives in the store's atomic claim, so concurrent passes cannot
// double-send.
type Scheduler struct {
	store     Store
	templates TemplateSource
	audit     Log
	sender    notify.Sender
	config    *Holder
	limiter   *RateLimiter
	workers   int
	now       func() time.Time
}

func NewScheduler(store Store, templates TemplateSource, audit Log, sender notify.Sender, config *Holder, limiter *RateLimiter, workers int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		store:     store,
		templates: templates,
		audit:     audit,
		sender:    sender,
		config:    config,
		limiter:   limiter,
		workers:   workers,
		now:       time.Now,
	}
}

// Run executes RunOnce on the given interval until ctx is cancelled. Daily
// cadence is sufficient; the per-day dedup makes shorter intervals harmless.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if stats, err := s.RunOnce(ctx); err != nil {
			log.Printf("reminder: pass failed: %v", err)
		} else {
			log.Printf("reminder: pass done scanned=%d sent=%d skipped=%d failures=%d",
				stats.Scanned, stats.Sent, stats.Skipped, stats.Failures)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scheduler pass.
func (s *Scheduler) RunOnce(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	cfg := s.config.Current()

	due, err := s.store.ListDueForReminders(ctx, now)
	if err != nil {
		return Stats{}, fmt.Errorf("reminder: list due: %w", err)
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	stats.Scanned = len(due)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, ag := range due {
		ag := ag
		g.Go(func() error {
			sent, err := s.evaluate(gctx, ag, cfg, now, UrgencyNone)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && isSkip(err):
				stats.Skipped++
			case err != nil:
				stats.Failures++
				log.Printf("reminder: agreement %s: %v", ag.ID, err)
			case sent:
				stats.Sent++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// SendNow handles an operator-triggered reminder. It reuses the scheduled
// path's urgency computation, claim, and counters so manual and automated
// sends cannot double-count or double-skip.
func (s *Scheduler) SendNow(ctx context.Context, agreementID string) (Urgency, error) {
	return s.sendManual(ctx, agreementID, UrgencyNone)
}

// Escalate sends a reminder at no less than the urgent tier regardless of the
// computed schedule, through the same claim and counters.
func (s *Scheduler) Escalate(ctx context.Context, agreementID string) (Urgency, error) {
	return s.sendManual(ctx, agreementID, UrgencyUrgent)
}

func (s *Scheduler) sendManual(ctx context.Context, agreementID string, floor Urgency) (Urgency, error) {
	ag, err := s.store.GetByID(ctx, agreementID)
	if err != nil {
		return UrgencyNone, err
	}
	now := s.now().UTC()
	cfg := s.config.Current()

	urg, err := s.urgencyFor(ag, cfg, now, floor)
	if err != nil {
		return UrgencyNone, err
	}
	if _, err := s.deliver(ctx, ag, cfg, now, urg); err != nil {
		return UrgencyNone, err
	}
	return urg, nil
}

// Cancel permanently excludes the agreement from future passes.
func (s *Scheduler) Cancel(ctx context.Context, agreementID, reason string) error {
	return s.store.CancelReminders(ctx, agreementID, reason)
}

// evaluate runs one agreement through the scheduled decision pipeline.
func (s *Scheduler) evaluate(ctx context.Context, ag agreement.Agreement, cfg Config, now time.Time, floor Urgency) (bool, error) {
	urg, err := s.urgencyFor(ag, cfg, now, floor)
	if err != nil {
		return false, err
	}
	return s.deliver(ctx, ag, cfg, now, urg)
}

func (s *Scheduler) urgencyFor(ag agreement.Agreement, cfg Config, now time.Time, floor Urgency) (Urgency, error) {
	if ag.Status != agreement.StatusSent && ag.Status != agreement.StatusViewed {
		return UrgencyNone, ErrNotActive
	}
	if ag.RemindersCancelled {
		return UrgencyNone, ErrNotActive
	}
	if agreement.IsExpired(ag, now) {
		return UrgencyNone, ErrExpired
	}
	if ag.ExpirationDate == nil {
		return UrgencyNone, ErrNotDue
	}

	days := DaysUntilExpiry(*ag.ExpirationDate, now)
	urg := Classify(days, cfg)
	if urgencyRank(urg) < urgencyRank(floor) {
		urg = floor
	}
	if urg == UrgencyNone {
		return UrgencyNone, ErrNotDue
	}
	return urg, nil
}

// deliver performs the cheap same-day check, the rate-limit gate, the atomic
// claim, the send, and the audit write. The claim is authoritative: losing it
// means another worker or a manual send already recorded today's reminder.
func (s *Scheduler) deliver(ctx context.Context, ag agreement.Agreement, cfg Config, now time.Time, urg Urgency) (bool, error) {
	if sentToday(ag.LastReminderDate, now) || ag.RemindersSent >= cfg.MaxAttempts {
		return false, ErrAlreadyClaimed
	}
	if !s.limiter.Allow(ag.ProspectEmail) {
		return false, ErrRateLimited
	}

	claimed, err := s.store.ClaimReminder(ctx, ag.ID, now, cfg.MaxAttempts)
	if err != nil {
		s.limiter.Release(ag.ProspectEmail)
		return false, err
	}
	if !claimed {
		// Nothing was sent; give the recipient's slot back.
		s.limiter.Release(ag.ProspectEmail)
		return false, ErrAlreadyClaimed
	}

	days := 0
	if ag.ExpirationDate != nil {
		days = DaysUntilExpiry(*ag.ExpirationDate, now)
	}
	subject, body := composeMessage(ag, urg, days, s.renderContent(ctx, ag))
	if err := s.sender.Send(ctx, notify.Message{
		Recipient: ag.ProspectEmail,
		Subject:   subject,
		Body:      body,
		Urgency:   string(urg),
	}); err != nil {
		// The claim is consumed; the next pass is tomorrow either way.
		log.Printf("reminder: send to %s failed: %v", ag.ProspectEmail, err)
		return false, fmt.Errorf("reminder: send: %w", err)
	}

	if err := s.audit.Append(ctx, LogEntry{
		AgreementID: ag.ID,
		Recipient:   ag.ProspectEmail,
		Channel:     "email",
		Urgency:     urg,
		SentAt:      now,
	}); err != nil {
		log.Printf("reminder: audit append for %s failed: %v", ag.ID, err)
	}
	return true, nil
}

// renderContent renders the populated agreement body from its template. Any
// failure falls back to the built-in copy so a broken template cannot block
// a reminder.
func (s *Scheduler) renderContent(ctx context.Context, ag agreement.Agreement) string {
	if s.templates == nil || ag.TemplateID == "" {
		return ""
	}
	tpl, err := s.templates.GetByID(ctx, ag.TemplateID)
	if err != nil {
		log.Printf("reminder: template %s for agreement %s: %v", ag.TemplateID, ag.ID, err)
		return ""
	}
	if strings.TrimSpace(tpl.Body) == "" {
		return ""
	}
	rendered, warnings, err := template.Render(tpl.Body, tpl.Variables, ag.Variables)
	if err != nil {
		log.Printf("reminder: render template %s for agreement %s: %v", tpl.ID, ag.ID, err)
		return ""
	}
	for _, w := range warnings {
		log.Printf("reminder: template %s for agreement %s: %s", tpl.ID, ag.ID, w)
	}
	return rendered
}

func composeMessage(ag agreement.Agreement, urg Urgency, days int, content string) (string, string) {
	expires := ""
	if ag.ExpirationDate != nil {
		expires = ag.ExpirationDate.Format("January 2, 2006")
	}

	var subject, body string
	switch urg {
	case UrgencyFinal:
		subject = fmt.Sprintf("Final notice: your lease agreement expires in %d day(s)", days)
		body = fmt.Sprintf("Hi %s,\n\nThis is your last chance to sign: the lease agreement expires on %s. After that date the offer is withdrawn.\n", ag.ProspectName, expires)
	case UrgencyUrgent:
		subject = fmt.Sprintf("Action needed: lease agreement expires in %d day(s)", days)
		body = fmt.Sprintf("Hi %s,\n\nYour lease agreement is still unsigned and expires on %s. Please review and sign soon.\n", ag.ProspectName, expires)
	default:
		subject = "Reminder: your lease agreement is awaiting signature"
		body = fmt.Sprintf("Hi %s,\n\nA friendly reminder that your lease agreement is awaiting signature. It remains open until %s.\n", ag.ProspectName, expires)
	}
	if content != "" {
		body += "\n" + content + "\n"
	}
	return subject, body
}

func sentToday(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	return last.UTC().Truncate(24*time.Hour) == now.UTC().Truncate(24*time.Hour)
}

func urgencyRank(u Urgency) int {
	switch u {
	case UrgencyFinal:
		return 3
	case UrgencyUrgent:
		return 2
	case UrgencyStandard:
		return 1
	default:
		return 0
	}
}

func isSkip(err error) bool {
	return errors.Is(err, ErrNotDue) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrNotActive)
}

package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"leaseflow/agreement"
	"leaseflow/notify"
	"leaseflow/property"
)

const testSecret = "whsec_test"

type fakeAgreementStore struct {
	mu          sync.Mutex
	byID        map[string]*agreement.Agreement
	byEnvelope  map[string]string
	usedKeys    map[string]bool
	transitions []agreement.Status
	docRefs     map[string]string
	failGet     error
}

func newFakeAgreementStore() *fakeAgreementStore {
	return &fakeAgreementStore{
		byID:       make(map[string]*agreement.Agreement),
		byEnvelope: make(map[string]string),
		usedKeys:   make(map[string]bool),
		docRefs:    make(map[string]string),
	}
}

func (s *fakeAgreementStore) add(ag agreement.Agreement) {
	s.byID[ag.ID] = &ag
	if ag.EnvelopeID != nil {
		s.byEnvelope[*ag.EnvelopeID] = ag.ID
	}
}

func (s *fakeAgreementStore) GetByEnvelopeID(_ context.Context, envelopeID string) (agreement.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return agreement.Agreement{}, s.failGet
	}
	id, ok := s.byEnvelope[envelopeID]
	if !ok {
		return agreement.Agreement{}, agreement.ErrNotFound
	}
	return *s.byID[id], nil
}

func (s *fakeAgreementStore) Transition(_ context.Context, p agreement.TransitionParams) (agreement.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ag, ok := s.byID[p.AgreementID]
	if !ok {
		return agreement.Agreement{}, agreement.ErrNotFound
	}
	if p.IdempotencyKey != "" && s.usedKeys[p.IdempotencyKey] {
		return agreement.Agreement{}, agreement.ErrDuplicateEvent
	}
	if ag.Status == p.NewStatus {
		if p.IdempotencyKey != "" {
			s.usedKeys[p.IdempotencyKey] = true
		}
		return *ag, nil
	}
	if !agreement.CanTransition(ag.Status, p.NewStatus) {
		return agreement.Agreement{}, fmt.Errorf("%w: %s to %s", agreement.ErrInvalidTransition, ag.Status, p.NewStatus)
	}
	if p.IdempotencyKey != "" {
		s.usedKeys[p.IdempotencyKey] = true
	}
	ag.Status = p.NewStatus
	s.transitions = append(s.transitions, p.NewStatus)
	return *ag, nil
}

func (s *fakeAgreementStore) SetDocumentRef(_ context.Context, agreementID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docRefs[agreementID] = ref
	return nil
}

func (s *fakeAgreementStore) status(id string) agreement.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].Status
}

func (s *fakeAgreementStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transitions)
}

type fakeCanceller struct {
	mu      sync.Mutex
	reasons map[string][]string
}

func (c *fakeCanceller) Cancel(_ context.Context, agreementID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reasons == nil {
		c.reasons = make(map[string][]string)
	}
	c.reasons[agreementID] = append(c.reasons[agreementID], reason)
	return nil
}

type fakeCompletion struct {
	mu          sync.Mutex
	calls       []string
	provisioned map[string]bool
}

func (f *fakeCompletion) ProcessCompletion(_ context.Context, agreementID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisioned == nil {
		f.provisioned = make(map[string]bool)
	}
	f.calls = append(f.calls, agreementID)
	f.provisioned[agreementID] = true
	return nil
}

func (f *fakeCompletion) tenantCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.provisioned)
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, envelopeID string) (string, error) {
	return "docs/" + envelopeID + ".pdf", nil
}

type fakeOwners struct{}

func (fakeOwners) GetByID(_ context.Context, id string) (property.Profile, error) {
	return property.Profile{
		ID:         id,
		Name:       "Maple House",
		OwnerName:  "Dana Ortiz",
		OwnerEmail: "dana@example.com",
	}, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type processorEnv struct {
	processor  *Processor
	store      *fakeAgreementStore
	canceller  *fakeCanceller
	completion *fakeCompletion
	sender     *captureSender
}

func newProcessorEnv() *processorEnv {
	store := newFakeAgreementStore()
	canceller := &fakeCanceller{}
	completion := &fakeCompletion{}
	sender := &captureSender{}
	return &processorEnv{
		processor:  NewProcessor(testSecret, store, canceller, completion, fakeResolver{}, fakeOwners{}, sender),
		store:      store,
		canceller:  canceller,
		completion: completion,
		sender:     sender,
	}
}

func seedAgreement(store *fakeAgreementStore, id, envelope string, status agreement.Status) {
	store.add(agreement.Agreement{
		ID:            id,
		PropertyID:    "prop-1",
		ProspectName:  "Kim Novak",
		ProspectEmail: "kim@example.com",
		Status:        status,
		EnvelopeID:    &envelope,
	})
}

func signedBody(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	body := []byte(payload)
	return body, SignBody(testSecret, body)
}

func TestHandleRejectsBadSignature(t *testing.T) {
	env := newProcessorEnv()
	body := []byte(`{"envelopeId":"env-1","status":"completed"}`)

	err := env.processor.Handle(context.Background(), body, "sha256=0000")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
	err = env.processor.Handle(context.Background(), body, "")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestHandleDropsUnmatchedEnvelope(t *testing.T) {
	env := newProcessorEnv()
	body, sig := signedBody(t, `{"envelopeId":"env-unknown","status":"completed"}`)

	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := env.store.transitionCount(); got != 0 {
		t.Fatalf("transitions = %d, want 0", got)
	}
}

func TestHandleSentAndDelivered(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusSent)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"delivered"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := env.store.status("ag-1"); got != agreement.StatusViewed {
		t.Fatalf("status = %s, want viewed", got)
	}

	// A trailing "sent" after viewed is out of order and must be swallowed.
	body, sig = signedBody(t, `{"eventId":"evt-2","envelopeId":"env-1","status":"sent"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle out-of-order: %v", err)
	}
	if got := env.store.status("ag-1"); got != agreement.StatusViewed {
		t.Fatalf("status after out-of-order event = %s, want viewed", got)
	}
}

func TestHandleCompleted(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusViewed)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"completed","statusChangedDateTime":"2026-03-01T12:00:00Z"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	env.processor.Wait()

	if got := env.store.status("ag-1"); got != agreement.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if ref := env.store.docRefs["ag-1"]; ref != "docs/env-1.pdf" {
		t.Fatalf("document ref = %q", ref)
	}
	if got := env.canceller.reasons["ag-1"]; len(got) != 1 || got[0] != "signing completed" {
		t.Fatalf("cancel reasons = %v", got)
	}
	if got := env.completion.tenantCount(); got != 1 {
		t.Fatalf("tenants = %d, want 1", got)
	}
}

func TestHandleCompletedFromSent(t *testing.T) {
	// Providers may skip the delivered notification entirely.
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusSent)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"completed"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	env.processor.Wait()

	if got := env.store.status("ag-1"); got != agreement.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestHandleDuplicateCompleted(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusViewed)

	payload := `{"eventId":"evt-1","envelopeId":"env-1","status":"completed"}`
	body, sig := signedBody(t, payload)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	env.processor.Wait()
	before := env.store.transitionCount()

	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	env.processor.Wait()

	if got := env.store.transitionCount(); got != before {
		t.Fatalf("transitions = %d after redelivery, want %d", got, before)
	}
	if got := env.completion.tenantCount(); got != 1 {
		t.Fatalf("tenants = %d after redelivery, want 1", got)
	}
}

func TestHandleDeclined(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusViewed)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"declined"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	env.processor.Wait()

	if got := env.store.status("ag-1"); got != agreement.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	if got := env.canceller.reasons["ag-1"]; len(got) != 1 || got[0] != "envelope declined" {
		t.Fatalf("cancel reasons = %v", got)
	}
	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	if len(env.sender.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(env.sender.sent))
	}
	msg := env.sender.sent[0]
	if msg.Recipient != "dana@example.com" {
		t.Fatalf("recipient = %q", msg.Recipient)
	}
	if !strings.Contains(msg.Body, "Kim Novak") {
		t.Fatalf("body missing prospect name: %q", msg.Body)
	}
}

func TestHandleVoided(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusSent)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"voided"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	env.processor.Wait()

	if got := env.store.status("ag-1"); got != agreement.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	if len(env.sender.sent) != 0 {
		t.Fatalf("voided envelope must not notify the owner, got %d messages", len(env.sender.sent))
	}
}

func TestHandleUnknownStatus(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusSent)

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"transferred"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := env.store.status("ag-1"); got != agreement.StatusSent {
		t.Fatalf("status = %s, want sent", got)
	}
}

func TestHandleMalformedPayloadAcknowledged(t *testing.T) {
	env := newProcessorEnv()
	body, sig := signedBody(t, `{"status":"completed"}`)
	if err := env.processor.Handle(context.Background(), body, sig); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	env := newProcessorEnv()
	seedAgreement(env.store, "ag-1", "env-1", agreement.StatusSent)
	handler := NewHandler(env.processor)

	post := func(body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/esign", strings.NewReader(string(body)))
		req.Header.Set(SignatureHeader, sig)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	body, sig := signedBody(t, `{"eventId":"evt-1","envelopeId":"env-1","status":"delivered"}`)
	if rec := post(body, sig); rec.Code != http.StatusOK {
		t.Fatalf("valid delivery status = %d, want 200", rec.Code)
	}
	if rec := post(body, "sha256=feed"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d, want 401", rec.Code)
	}

	env.store.mu.Lock()
	env.store.failGet = errors.New("connection reset")
	env.store.mu.Unlock()
	body, sig = signedBody(t, `{"eventId":"evt-2","envelopeId":"env-1","status":"completed"}`)
	if rec := post(body, sig); rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure status = %d, want 500", rec.Code)
	}
	env.processor.Wait()
}

// A payload over the size cap is dropped with a 200 so the provider stops
// redelivering it.
func TestHandlerOversizedBodyAcknowledged(t *testing.T) {
	env := newProcessorEnv()
	handler := NewHandler(env.processor)

	body := strings.Repeat("a", maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/esign", strings.NewReader(body))
	req.Header.Set(SignatureHeader, SignBody(testSecret, []byte(body)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("oversized body status = %d, want 200", rec.Code)
	}
}

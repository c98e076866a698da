package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leaseflow/agreement"
	"leaseflow/auth"
	"leaseflow/property"
	"leaseflow/reminder"
	"leaseflow/template"
	"leaseflow/tenant"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(tokenString string) (string, auth.Role, error)
}

type agreementStore interface {
	Create(ctx context.Context, params agreement.CreateParams) (agreement.Agreement, error)
	CreateAndSend(ctx context.Context, params agreement.CreateParams) (agreement.Agreement, error)
	Transition(ctx context.Context, params agreement.TransitionParams) (agreement.Agreement, error)
	AssignEnvelope(ctx context.Context, agreementID, envelopeID string) error
	GetByID(ctx context.Context, id string) (agreement.Agreement, error)
	History(ctx context.Context, agreementID string) ([]agreement.HistoryEntry, error)
}

type templateStore interface {
	Create(ctx context.Context, params template.CreateParams) (template.Template, error)
	Update(ctx context.Context, id string, params template.UpdateParams) (template.Template, error)
	GetByID(ctx context.Context, id string) (template.Template, error)
	ListActive(ctx context.Context, propertyID string) ([]template.Template, error)
}

type propertyService interface {
	GetByID(ctx context.Context, id string) (property.Profile, error)
	List(ctx context.Context, limit int) ([]property.Profile, error)
}

type reminderService interface {
	SendNow(ctx context.Context, agreementID string) (reminder.Urgency, error)
	Escalate(ctx context.Context, agreementID string) (reminder.Urgency, error)
	Cancel(ctx context.Context, agreementID, reason string) error
}

type reminderLogReader interface {
	ListForAgreement(ctx context.Context, agreementID string) ([]reminder.LogEntry, error)
}

type completionService interface {
	ProcessCompletion(ctx context.Context, agreementID string) (tenant.Result, error)
}

// Server owns the HTTP surface: webhook ingress plus the authenticated
// operator API for manual lifecycle actions.
type Server struct {
	authService authService
	agreements  agreementStore
	templates   templateStore
	properties  propertyService
	reminders   reminderService
	reminderLog reminderLogReader
	reminderCfg *reminder.Holder
	completion  completionService
	webhook     http.Handler
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/esign", s.webhook.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/agreements", s.handleCreateAgreement)
			r.Post("/agreements/send", s.handleCreateAndSend)
			r.Get("/agreements/{id}", s.handleGetAgreement)
			r.Get("/agreements/{id}/history", s.handleAgreementHistory)
			r.Get("/agreements/{id}/reminders", s.handleReminderHistory)
			r.Post("/agreements/{id}/envelope", s.handleAssignEnvelope)
			r.Post("/agreements/{id}/cancel", s.handleCancelAgreement)
			r.Post("/agreements/{id}/complete", s.handleCompleteAgreement)
			r.Post("/agreements/{id}/remind", s.handleRemind)
			r.Post("/agreements/{id}/escalate", s.handleEscalate)

			r.Get("/reminder-config", s.handleGetReminderConfig)
			r.With(s.requireAdmin).Put("/reminder-config", s.handlePutReminderConfig)

			r.Post("/templates", s.handleCreateTemplate)
			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{id}", s.handleGetTemplate)
			r.Put("/templates/{id}", s.handleUpdateTemplate)

			r.Get("/properties", s.handleListProperties)
			r.Get("/properties/{id}", s.handleGetProperty)
		})
	})

	return r
}

type ctxKey int

const actorKey ctxKey = iota

type actor struct {
	UserID string
	Role   auth.Role
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if act, ok := r.Context().Value(actorKey).(actor); !ok || act.Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) string {
	if act, ok := ctx.Value(actorKey).(actor); ok {
		return act.UserID
	}
	return "api"
}

// ---- auth ----

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
	Role     auth.Role `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User: userResponse{
			ID: result.User.ID, Email: result.User.Email,
			FullName: result.User.FullName, Role: result.User.Role,
		},
	})
}

// ---- agreements ----

type createAgreementRequest struct {
	TemplateID     string            `json:"templateId"`
	PropertyID     string            `json:"propertyId"`
	ProspectName   string            `json:"prospectName"`
	ProspectEmail  string            `json:"prospectEmail"`
	ProspectPhone  *string           `json:"prospectPhone,omitempty"`
	ExpirationDays int               `json:"expirationDays"`
	Variables      map[string]string `json:"variables,omitempty"`
}

type agreementResponse struct {
	ID             string            `json:"id"`
	TemplateID     string            `json:"templateId"`
	PropertyID     string            `json:"propertyId"`
	ProspectName   string            `json:"prospectName"`
	ProspectEmail  string            `json:"prospectEmail"`
	Status         agreement.Status  `json:"status"`
	SentDate       *string           `json:"sentDate,omitempty"`
	ViewedDate     *string           `json:"viewedDate,omitempty"`
	SignedDate     *string           `json:"signedDate,omitempty"`
	CompletedDate  *string           `json:"completedDate,omitempty"`
	ExpirationDate *string           `json:"expirationDate,omitempty"`
	Expired        bool              `json:"expired"`
	RemindersSent  int               `json:"remindersSent"`
	EnvelopeID     *string           `json:"envelopeId,omitempty"`
	DocumentRef    *string           `json:"documentRef,omitempty"`
	TenantID       *string           `json:"tenantId,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	Version        int               `json:"version"`
	CreatedAt      string            `json:"createdAt"`
}

func toAgreementResponse(ag agreement.Agreement, now time.Time) agreementResponse {
	return agreementResponse{
		ID:             ag.ID,
		TemplateID:     ag.TemplateID,
		PropertyID:     ag.PropertyID,
		ProspectName:   ag.ProspectName,
		ProspectEmail:  ag.ProspectEmail,
		Status:         ag.Status,
		SentDate:       fmtTime(ag.SentDate),
		ViewedDate:     fmtTime(ag.ViewedDate),
		SignedDate:     fmtTime(ag.SignedDate),
		CompletedDate:  fmtTime(ag.CompletedDate),
		ExpirationDate: fmtTime(ag.ExpirationDate),
		Expired:        agreement.IsExpired(ag, now),
		RemindersSent:  ag.RemindersSent,
		EnvelopeID:     ag.EnvelopeID,
		DocumentRef:    ag.DocumentRef,
		TenantID:       ag.TenantID,
		Variables:      ag.Variables,
		Version:        ag.Version,
		CreatedAt:      ag.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	s.createAgreement(w, r, s.agreements.Create)
}

func (s *Server) handleCreateAndSend(w http.ResponseWriter, r *http.Request) {
	s.createAgreement(w, r, s.agreements.CreateAndSend)
}

func (s *Server) createAgreement(w http.ResponseWriter, r *http.Request, create func(context.Context, agreement.CreateParams) (agreement.Agreement, error)) {
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TemplateID == "" || req.PropertyID == "" || req.ProspectName == "" || req.ProspectEmail == "" {
		writeError(w, http.StatusBadRequest, "templateId, propertyId, prospectName and prospectEmail are required")
		return
	}
	ag, err := create(r.Context(), agreement.CreateParams{
		TemplateID:     req.TemplateID,
		PropertyID:     req.PropertyID,
		ProspectName:   req.ProspectName,
		ProspectEmail:  req.ProspectEmail,
		ProspectPhone:  req.ProspectPhone,
		ExpirationDays: req.ExpirationDays,
		Variables:      req.Variables,
		Actor:          actorFrom(r.Context()),
	})
	if err != nil {
		log.Printf("api: create agreement: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create agreement")
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementResponse(ag, time.Now().UTC()))
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	ag, err := s.agreements.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, agreement.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agreement not found")
			return
		}
		log.Printf("api: get agreement: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(ag, time.Now().UTC()))
}

type historyEntryResponse struct {
	PreviousStatus *agreement.Status `json:"previousStatus"`
	NewStatus      agreement.Status  `json:"newStatus"`
	Note           string            `json:"note"`
	Actor          string            `json:"actor"`
	CreatedAt      string            `json:"createdAt"`
}

func (s *Server) handleAgreementHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.agreements.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("api: agreement history: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			Note:           e.Note,
			Actor:          e.Actor,
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type reminderLogResponse struct {
	Recipient string           `json:"recipient"`
	Channel   string           `json:"channel"`
	Urgency   reminder.Urgency `json:"urgency"`
	SentAt    string           `json:"sentAt"`
}

func (s *Server) handleReminderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.reminderLog.ListForAgreement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("api: reminder history: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]reminderLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, reminderLogResponse{
			Recipient: e.Recipient,
			Channel:   e.Channel,
			Urgency:   e.Urgency,
			SentAt:    e.SentAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type assignEnvelopeRequest struct {
	EnvelopeID string `json:"envelopeId"`
}

func (s *Server) handleAssignEnvelope(w http.ResponseWriter, r *http.Request) {
	var req assignEnvelopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EnvelopeID == "" {
		writeError(w, http.StatusBadRequest, "envelopeId is required")
		return
	}
	err := s.agreements.AssignEnvelope(r.Context(), chi.URLParam(r, "id"), req.EnvelopeID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, agreement.ErrNotFound):
		writeError(w, http.StatusNotFound, "agreement not found")
	case errors.Is(err, agreement.ErrEnvelopeTaken):
		writeError(w, http.StatusConflict, "envelope already assigned to another agreement")
	default:
		log.Printf("api: assign envelope: %v", err)
		writeError(w, http.StatusInternalServerError, "assignment failed")
	}
}

type transitionRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

func (s *Server) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req transitionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	note := req.Note
	if note == "" {
		note = req.Reason
	}
	if note == "" {
		note = "cancelled by operator"
	}

	ag, err := s.agreements.Transition(r.Context(), agreement.TransitionParams{
		AgreementID: id,
		NewStatus:   agreement.StatusCancelled,
		Note:        note,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	if err := s.reminders.Cancel(r.Context(), id, note); err != nil {
		log.Printf("api: cancel reminders for %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(ag, time.Now().UTC()))
}

func (s *Server) handleCompleteAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req transitionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	note := req.Note
	if note == "" {
		note = "completed by operator"
	}

	ag, err := s.agreements.Transition(r.Context(), agreement.TransitionParams{
		AgreementID: id,
		NewStatus:   agreement.StatusCompleted,
		Note:        note,
		Actor:       actorFrom(r.Context()),
	})
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	if err := s.reminders.Cancel(r.Context(), id, "signing completed"); err != nil {
		log.Printf("api: cancel reminders for %s: %v", id, err)
	}
	if result, err := s.completion.ProcessCompletion(r.Context(), id); err != nil {
		log.Printf("api: tenant provisioning for %s: %v", id, err)
	} else {
		for _, warn := range result.Warnings {
			log.Printf("api: tenant provisioning for %s: %s", id, warn)
		}
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(ag, time.Now().UTC()))
}

type reminderResponse struct {
	Urgency reminder.Urgency `json:"urgency"`
}

func (s *Server) handleRemind(w http.ResponseWriter, r *http.Request) {
	s.manualReminder(w, r, s.reminders.SendNow)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	s.manualReminder(w, r, s.reminders.Escalate)
}

func (s *Server) manualReminder(w http.ResponseWriter, r *http.Request, send func(context.Context, string) (reminder.Urgency, error)) {
	urg, err := send(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reminderResponse{Urgency: urg})
	case errors.Is(err, agreement.ErrNotFound):
		writeError(w, http.StatusNotFound, "agreement not found")
	case errors.Is(err, reminder.ErrNotActive), errors.Is(err, reminder.ErrExpired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reminder.ErrAlreadyClaimed), errors.Is(err, reminder.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("api: manual reminder: %v", err)
		writeError(w, http.StatusInternalServerError, "reminder failed")
	}
}

// ---- reminder config ----

func (s *Server) handleGetReminderConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reminderCfg.Current())
}

func (s *Server) handlePutReminderConfig(w http.ResponseWriter, r *http.Request) {
	var cfg reminder.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.reminderCfg.Replace(cfg); err != nil {
		// The previous configuration stays in effect.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.reminderCfg.Current())
}

// ---- templates ----

type templateRequest struct {
	PropertyID string              `json:"propertyId"`
	Name       string              `json:"name"`
	Body       string              `json:"body"`
	Variables  []template.Variable `json:"variables"`
	IsActive   *bool               `json:"isActive,omitempty"`
}

type templateResponse struct {
	ID         string              `json:"id"`
	PropertyID string              `json:"propertyId"`
	Name       string              `json:"name"`
	Body       string              `json:"body"`
	Variables  []template.Variable `json:"variables"`
	IsActive   bool                `json:"isActive"`
	Version    int                 `json:"version"`
	CreatedAt  string              `json:"createdAt"`
	UpdatedAt  string              `json:"updatedAt"`
}

func toTemplateResponse(t template.Template) templateResponse {
	return templateResponse{
		ID:         t.ID,
		PropertyID: t.PropertyID,
		Name:       t.Name,
		Body:       t.Body,
		Variables:  t.Variables,
		IsActive:   t.IsActive,
		Version:    t.Version,
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PropertyID == "" || req.Name == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "propertyId, name and body are required")
		return
	}
	tpl, err := s.templates.Create(r.Context(), template.CreateParams{
		PropertyID: req.PropertyID,
		Name:       req.Name,
		Body:       req.Body,
		Variables:  req.Variables,
	})
	if err != nil {
		writeTemplateError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	tpl, err := s.templates.Update(r.Context(), chi.URLParam(r, "id"), template.UpdateParams{
		Name:      req.Name,
		Body:      req.Body,
		Variables: req.Variables,
		IsActive:  active,
	})
	if err != nil {
		writeTemplateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTemplateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.templates.ListActive(r.Context(), r.URL.Query().Get("propertyId"))
	if err != nil {
		log.Printf("api: list templates: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]templateResponse, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, toTemplateResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeTemplateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, template.ErrNotFound):
		writeError(w, http.StatusNotFound, "template not found")
	case errors.Is(err, template.ErrUndeclaredVariable),
		errors.Is(err, template.ErrDuplicateVariable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("api: template: %v", err)
		writeError(w, http.StatusInternalServerError, "template operation failed")
	}
}

// ---- properties ----

type propertyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerName string `json:"ownerName"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	prof, err := s.properties.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, property.ErrNotFound) {
			writeError(w, http.StatusNotFound, "property not found")
			return
		}
		log.Printf("api: get property: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, propertyResponse{
		ID:        prof.ID,
		Name:      prof.Name,
		OwnerName: prof.OwnerName,
		CreatedAt: prof.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	profiles, err := s.properties.List(r.Context(), limit)
	if err != nil {
		log.Printf("api: list properties: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	out := make([]propertyResponse, 0, len(profiles))
	for _, prof := range profiles {
		out = append(out, propertyResponse{
			ID:        prof.ID,
			Name:      prof.Name,
			OwnerName: prof.OwnerName,
			CreatedAt: prof.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- helpers ----

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agreement.ErrNotFound):
		writeError(w, http.StatusNotFound, "agreement not found")
	case errors.Is(err, agreement.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("api: transition: %v", err)
		writeError(w, http.StatusInternalServerError, "transition failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func fmtTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaseflow/agreement"
)

// ErrNotCompleted signals the agreement has not reached completed status.
var ErrNotCompleted = errors.New("tenant: agreement not completed")

// AgreementSource is the slice of the agreement store the integration needs.
type AgreementSource interface {
	GetByID(ctx context.Context, id string) (agreement.Agreement, error)
	SetTenantID(ctx context.Context, agreementID, tenantID string) (bool, error)
}

// TenantStore abstracts tenant persistence for the integration.
type TenantStore interface {
	Create(ctx context.Context, params CreateParams) (Tenant, error)
	GetByAgreementID(ctx context.Context, agreementID string) (Tenant, error)
}

// Integration converts a completed agreement into a tenant record exactly
// once. Safe to invoke repeatedly: webhook retries and manual re-runs resolve
// to the same tenant.
type Integration struct {
	agreements AgreementSource
	tenants    TenantStore
}

func NewIntegration(agreements AgreementSource, tenants TenantStore) *Integration {
	return &Integration{agreements: agreements, tenants: tenants}
}

// ProcessCompletion provisions the tenant for a completed agreement. Partial
// failure after the tenant exists (the agreement write-back) is reported as a
// warning, never an error: the signed state must not be lost to a downstream
// provisioning hiccup.
func (i *Integration) ProcessCompletion(ctx context.Context, agreementID string) (Result, error) {
	ag, err := i.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return Result{}, err
	}
	if ag.Status != agreement.StatusCompleted {
		return Result{}, fmt.Errorf("%w: status is %s", ErrNotCompleted, ag.Status)
	}

	if ag.TenantID != nil {
		existing, err := i.tenants.GetByAgreementID(ctx, ag.ID)
		if err != nil {
			return Result{}, fmt.Errorf("tenant: load existing: %w", err)
		}
		return Result{Tenant: existing}, nil
	}

	params, warnings := deriveTenant(ag)

	created, err := i.tenants.Create(ctx, params)
	if err != nil {
		return Result{}, err
	}

	claimed, err := i.agreements.SetTenantID(ctx, ag.ID, created.ID)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("tenant %s created but agreement write-back failed: %v", created.ID, err))
	} else if !claimed {
		// Another invocation won the write-back race; both resolved to the
		// same tenant row via the agreement_id unique constraint.
		warnings = append(warnings, "agreement tenant id was already set by a concurrent invocation")
	}

	return Result{Tenant: created, Warnings: warnings}, nil
}

// deriveTenant maps agreement variables and prospect contact info onto the
// tenant record. Missing optional variables default silently but are reported.
func deriveTenant(ag agreement.Agreement) (CreateParams, []string) {
	params := CreateParams{
		AgreementID: ag.ID,
		PropertyID:  ag.PropertyID,
		FullName:    ag.ProspectName,
		Email:       ag.ProspectEmail,
		Phone:       ag.ProspectPhone,
	}

	var warnings []string

	if v, ok := ag.Variables["room_number"]; ok && v != "" {
		params.RoomNumber = &v
	} else {
		warnings = append(warnings, "variable room_number not set; tenant has no room assignment")
	}

	if v, ok := ag.Variables["monthly_rent"]; ok && v != "" {
		params.MonthlyRent = &v
	} else {
		warnings = append(warnings, "variable monthly_rent not set")
	}

	if v, ok := ag.Variables["move_in_date"]; ok && v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			params.MoveInDate = &parsed
		} else {
			warnings = append(warnings, fmt.Sprintf("variable move_in_date %q is not a date; left unset", v))
		}
	} else if ag.CompletedDate != nil {
		// Fall back to the completion day when the lease never specified one.
		d := ag.CompletedDate.UTC().Truncate(24 * time.Hour)
		params.MoveInDate = &d
		warnings = append(warnings, "variable move_in_date not set; defaulted to completion date")
	}

	return params, warnings
}

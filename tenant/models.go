package tenant

import "time"

// Tenant is the housing record provisioned from a completed agreement.
// AgreementID is unique, which makes provisioning idempotent under webhook
// retries.
type Tenant struct {
	ID          string
	AgreementID string
	PropertyID  string
	FullName    string
	Email       string
	Phone       *string
	RoomNumber  *string
	MonthlyRent *string
	MoveInDate  *time.Time
	CreatedAt   time.Time
}

// CreateParams enumerates the fields written when provisioning a tenant.
type CreateParams struct {
	AgreementID string
	PropertyID  string
	FullName    string
	Email       string
	Phone       *string
	RoomNumber  *string
	MonthlyRent *string
	MoveInDate  *time.Time
}

// Result bundles the provisioned tenant with non-fatal field-mapping warnings.
type Result struct {
	Tenant   Tenant
	Warnings []string
}

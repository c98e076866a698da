package template

import "time"

// VariableType constrains how a template variable is rendered and validated.
type VariableType string

const (
	VarText   VariableType = "text"
	VarNumber VariableType = "number"
	VarDate   VariableType = "date"
	VarSelect VariableType = "select"
)

// Variable is a typed placeholder declaration within a template.
type Variable struct {
	Name         string       `json:"name"`
	Label        string       `json:"label"`
	Type         VariableType `json:"type"`
	Required     bool         `json:"required"`
	DefaultValue *string      `json:"default_value,omitempty"`
	Options      []string     `json:"options,omitempty"`
}

// Template is an agreement template owned by a property. Version increments
// on every body or variable edit.
type Template struct {
	ID         string
	PropertyID string
	Name       string
	Body       string
	Variables  []Variable
	IsActive   bool
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateParams carries the writable template fields.
type CreateParams struct {
	PropertyID string
	Name       string
	Body       string
	Variables  []Variable
}

// UpdateParams replaces body and variables; the store bumps the version.
type UpdateParams struct {
	Name      string
	Body      string
	Variables []Variable
	IsActive  bool
}

package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no template row exists for the identifier.
var ErrNotFound = errors.New("template: not found")

const templateColumns = `id, property_id, name, body, variables, is_active, version, created_at, updated_at`

// Store persists agreement templates. Variable declarations are stored as a
// jsonb document alongside the body so edits to either bump the version
// atomically.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create validates and inserts a new template at version 1.
func (s *Store) Create(ctx context.Context, params CreateParams) (Template, error) {
	if params.PropertyID == "" || params.Name == "" {
		return Template{}, fmt.Errorf("template: property id and name required")
	}
	if err := Validate(params.Body, params.Variables); err != nil {
		return Template{}, err
	}

	vars, err := marshalVariables(params.Variables)
	if err != nil {
		return Template{}, err
	}

	tpl, err := scanTemplate(s.pool.QueryRow(ctx, `
        INSERT INTO agreement_templates (property_id, name, body, variables)
        VALUES ($1,$2,$3,$4::jsonb)
        RETURNING `+templateColumns,
		params.PropertyID, params.Name, params.Body, vars))
	if err != nil {
		return Template{}, fmt.Errorf("template: insert: %w", err)
	}
	return tpl, nil
}

// Update validates and replaces the template content, bumping the version.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (Template, error) {
	if err := Validate(params.Body, params.Variables); err != nil {
		return Template{}, err
	}

	vars, err := marshalVariables(params.Variables)
	if err != nil {
		return Template{}, err
	}

	tpl, err := scanTemplate(s.pool.QueryRow(ctx, `
        UPDATE agreement_templates
        SET name=$2, body=$3, variables=$4::jsonb, is_active=$5, version=version+1, updated_at=now()
        WHERE id=$1
        RETURNING `+templateColumns,
		id, params.Name, params.Body, vars, params.IsActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("template: update: %w", err)
	}
	return tpl, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Template, error) {
	tpl, err := scanTemplate(s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM agreement_templates WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("template: get by id: %w", err)
	}
	return tpl, nil
}

// ListActive returns active templates for a property.
func (s *Store) ListActive(ctx context.Context, propertyID string) ([]Template, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+templateColumns+`
        FROM agreement_templates
        WHERE property_id=$1 AND is_active=true
        ORDER BY name
    `, propertyID)
	if err != nil {
		return nil, fmt.Errorf("template: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Template, 0, 8)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("template: scan: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("template: iterate: %w", err)
	}
	return out, nil
}

func marshalVariables(vars []Variable) (string, error) {
	if vars == nil {
		vars = []Variable{}
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("template: marshal variables: %w", err)
	}
	return string(b), nil
}

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		tpl  Template
		vars []byte
	)
	err := row.Scan(
		&tpl.ID,
		&tpl.PropertyID,
		&tpl.Name,
		&tpl.Body,
		&vars,
		&tpl.IsActive,
		&tpl.Version,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return Template{}, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &tpl.Variables); err != nil {
			return Template{}, fmt.Errorf("template: unmarshal variables: %w", err)
		}
	}
	return tpl, nil
}

package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the tenant does not exist.
var ErrNotFound = errors.New("tenant: not found")

const tenantColumns = `id, agreement_id, property_id, full_name, email, phone, room_number, monthly_rent, move_in_date, created_at`

// PGStore persists tenants. The agreement_id unique constraint is the
// idempotency anchor: a concurrent duplicate insert loses and reads the winner.
type PGStore struct {
	pool  *pgxpool.Pool
	idGen func() string
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{
		pool:  pool,
		idGen: func() string { return uuid.NewString() },
	}
}

// Create inserts a tenant for the agreement. When a row already exists for
// the agreement the existing tenant is returned instead of a duplicate.
func (s *PGStore) Create(ctx context.Context, params CreateParams) (Tenant, error) {
	if params.AgreementID == "" {
		return Tenant{}, fmt.Errorf("tenant: agreement id required")
	}
	if params.FullName == "" || params.Email == "" {
		return Tenant{}, fmt.Errorf("tenant: full name and email required")
	}

	ten, err := scanTenant(s.pool.QueryRow(ctx, `
        INSERT INTO tenants (id, agreement_id, property_id, full_name, email, phone, room_number, monthly_rent, move_in_date)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING `+tenantColumns,
		s.idGen(),
		params.AgreementID,
		params.PropertyID,
		params.FullName,
		params.Email,
		params.Phone,
		params.RoomNumber,
		params.MonthlyRent,
		params.MoveInDate,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return s.GetByAgreementID(ctx, params.AgreementID)
		}
		return Tenant{}, fmt.Errorf("tenant: insert: %w", err)
	}
	return ten, nil
}

func (s *PGStore) GetByAgreementID(ctx context.Context, agreementID string) (Tenant, error) {
	ten, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE agreement_id=$1`, agreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant: get by agreement: %w", err)
	}
	return ten, nil
}

func (s *PGStore) GetByID(ctx context.Context, id string) (Tenant, error) {
	ten, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant: get by id: %w", err)
	}
	return ten, nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID,
		&t.AgreementID,
		&t.PropertyID,
		&t.FullName,
		&t.Email,
		&t.Phone,
		&t.RoomNumber,
		&t.MonthlyRent,
		&t.MoveInDate,
		&t.CreatedAt,
	)
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

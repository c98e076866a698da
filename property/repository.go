package property

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the property does not exist.
var ErrNotFound = errors.New("property: not found")

// PGRepository implements property reads backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Profile, error) {
	const selectSQL = `
		SELECT id, name, address, owner_name, owner_email, owner_phone, created_at
		FROM properties
		WHERE id = $1
	`
	var p Profile
	err := r.pool.QueryRow(ctx, selectSQL, id).Scan(
		&p.ID, &p.Name, &p.Address, &p.OwnerName, &p.OwnerEmail, &p.OwnerPhone, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("property: get by id: %w", err)
	}
	return p, nil
}

func (r *PGRepository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, address, owner_name, owner_email, owner_phone, created_at
		FROM properties
		ORDER BY name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("property: list: %w", err)
	}
	defer rows.Close()

	out := make([]Profile, 0, limit)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.OwnerName, &p.OwnerEmail, &p.OwnerPhone, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("property: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("property: iterate: %w", err)
	}
	return out, nil
}

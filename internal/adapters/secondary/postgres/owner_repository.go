package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
)

const ownerColumns = `id, full_name, email, phone, address, emergency_contact, created_at, updated_at`

type OwnerRepository struct {
	pool *pgxpool.Pool
}

var _ ports.OwnerRepository = (*OwnerRepository)(nil)

func NewOwnerRepository(pool *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

func scanOwner(row pgx.Row) (*domain.Owner, error) {
	var o domain.Owner
	err := row.Scan(&o.ID, &o.FullName, &o.Email, &o.Phone, &o.Address, &o.EmergencyContact, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOwnerNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OwnerRepository) GetByID(ctx context.Context, id int64) (*domain.Owner, error) {
	owner, err := scanOwner(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id))
	if err != nil && !errors.Is(err, apperrors.ErrOwnerNotFound) {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return owner, err
}

// GetByEmail matches case-insensitively.
func (r *OwnerRepository) GetByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	owner, err := scanOwner(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil && !errors.Is(err, apperrors.ErrOwnerNotFound) {
		return nil, fmt.Errorf("get owner by email: %w", err)
	}
	return owner, err
}

// Update writes the editable profile fields.
func (r *OwnerRepository) Update(ctx context.Context, owner *domain.Owner) (*domain.Owner, error) {
	updated, err := scanOwner(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`UPDATE owners
		 SET full_name = $2, phone = $3, address = $4, emergency_contact = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+ownerColumns,
		owner.ID, owner.FullName, owner.Phone, owner.Address, owner.EmergencyContact,
	))
	if err != nil && !errors.Is(err, apperrors.ErrOwnerNotFound) {
		return nil, fmt.Errorf("update owner: %w", err)
	}
	return updated, err
}

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

const petColumns = `id, owner_id, name, species, breed, age_years, notes, created_at`

type PetRepository struct {
	pool *pgxpool.Pool
}

var _ ports.PetRepository = (*PetRepository)(nil)

func NewPetRepository(pool *pgxpool.Pool) *PetRepository {
	return &PetRepository{pool: pool}
}

func scanPet(row pgx.Row) (*domain.Pet, error) {
	var (
		p       domain.Pet
		species string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &species, &p.Breed, &p.AgeYears, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Species = domain.Species(species)
	return &p, nil
}

// Create inserts pet. An unknown owner yields apperrors.ErrOwnerNotFound.
func (r *PetRepository) Create(ctx context.Context, pet *domain.Pet) (*domain.Pet, error) {
	created, err := scanPet(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO pets (owner_id, name, species, breed, age_years, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+petColumns,
		pet.OwnerID, pet.Name, string(pet.Species), pet.Breed, pet.AgeYears, pet.Notes,
	))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, apperrors.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("insert pet: %w", err)
	}
	return created, nil
}

func (r *PetRepository) GetByID(ctx context.Context, id int64) (*domain.Pet, error) {
	pet, err := scanPet(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+petColumns+` FROM pets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrPetNotFound
		}
		return nil, fmt.Errorf("get pet: %w", err)
	}
	return pet, nil
}

func (r *PetRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Pet, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	defer rows.Close()

	pets := make([]*domain.Pet, 0)
	for rows.Next() {
		pet, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, pet)
	}
	return pets, rows.Err()
}

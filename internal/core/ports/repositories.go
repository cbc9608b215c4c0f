package ports

import (
	"context"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
)

// OwnerRepository is the storage port for owners. Lookups of absent
// owners return apperrors.ErrOwnerNotFound.
type OwnerRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Owner, error)
	GetByEmail(ctx context.Context, email string) (*domain.Owner, error)
	Update(ctx context.Context, owner *domain.Owner) (*domain.Owner, error)
}

// PetRepository is the storage port for pets.
type PetRepository interface {
	Create(ctx context.Context, pet *domain.Pet) (*domain.Pet, error)
	GetByID(ctx context.Context, id int64) (*domain.Pet, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Pet, error)
}

// ServiceRepository is the storage port for bookable services.
type ServiceRepository interface {
	List(ctx context.Context) ([]*domain.Service, error)
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
	// Availability returns one entry per day in [from, through].
	Availability(ctx context.Context, serviceID int64, from, through time.Time) ([]domain.Availability, error)
}

// ListBookingsParams filters booking listings. A nil OwnerID lists all.
type ListBookingsParams struct {
	OwnerID *int64
	Status  *domain.BookingStatus
	Limit   int
	Offset  int
}

// BookingRepository is the storage port for bookings.
type BookingRepository interface {
	// Create inserts a pending booking, failing with
	// apperrors.ErrServiceFullyBooked when any covered day is at capacity.
	Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	List(ctx context.Context, params ListBookingsParams) ([]*domain.Booking, error)
	// UpdateStatus moves a booking from one status to another atomically,
	// failing with apperrors.ErrConcurrentModification when the stored
	// status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus) (*domain.Booking, error)
}

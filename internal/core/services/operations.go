package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/samber/lo"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

type getAvailabilityPayload struct {
	ServiceID int64  `json:"serviceId" validate:"required,gt=0"`
	From      string `json:"from" validate:"required,datetime=2006-01-02"`
	Through   string `json:"through" validate:"omitempty,datetime=2006-01-02"`
}

type ownerPayload struct {
	OwnerID *int64 `json:"ownerId" validate:"omitempty,gt=0"`
}

type getBookingsPayload struct {
	OwnerID *int64 `json:"ownerId" validate:"omitempty,gt=0"`
	Status  string `json:"status" validate:"omitempty,oneof=pending confirmed checked_in completed cancelled"`
	Limit   int    `json:"limit" validate:"omitempty,gt=0,lte=100"`
	Offset  int    `json:"offset" validate:"omitempty,gte=0"`
}

type bookingRefPayload struct {
	BookingID domain.ID `json:"bookingId" validate:"required,gt=0"`
}

type createBookingPayload struct {
	OwnerID   *int64 `json:"ownerId" validate:"omitempty,gt=0"`
	PetID     int64  `json:"petId" validate:"required,gt=0"`
	ServiceID int64  `json:"serviceId" validate:"required,gt=0"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type createPetPayload struct {
	OwnerID  *int64 `json:"ownerId" validate:"omitempty,gt=0"`
	Name     string `json:"name" validate:"required,max=100"`
	Species  string `json:"species" validate:"required,oneof=dog cat rabbit bird other"`
	Breed    string `json:"breed" validate:"max=100"`
	AgeYears int    `json:"ageYears" validate:"gte=0,lte=50"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type updateOwnerPayload struct {
	OwnerID          *int64  `json:"ownerId" validate:"omitempty,gt=0"`
	FullName         *string `json:"fullName" validate:"omitempty,max=255"`
	Phone            *string `json:"phone" validate:"omitempty,max=32"`
	Address          *string `json:"address" validate:"omitempty,max=500"`
	EmergencyContact *string `json:"emergencyContact" validate:"omitempty,max=500"`
}

type updateBookingStatusPayload struct {
	BookingID domain.ID `json:"bookingId" validate:"required,gt=0"`
	Status    string    `json:"status" validate:"required,oneof=pending confirmed checked_in completed cancelled"`
}

type broadcastPayload struct {
	Message     string `json:"message" validate:"required,max=500"`
	Level       string `json:"level" validate:"omitempty,oneof=info warning critical"`
	MinimumRole string `json:"minimumRole" validate:"omitempty,oneof=guest customer admin"`
}

// BookingList is the result of getBookings.
type BookingList struct {
	Bookings []domain.BookingSnapshot `json:"bookings"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

// NotificationResult echoes an accepted broadcast.
type NotificationResult struct {
	Message     string `json:"message"`
	MinimumRole string `json:"minimumRole"`
}

func (d *RequestDispatcher) buildOperations() map[domain.OperationName]operation {
	return map[domain.OperationName]operation{
		domain.OpGetServices:           define(domain.RoleGuest, d.getServices),
		domain.OpGetAvailability:       define(domain.RoleGuest, d.getAvailability),
		domain.OpGetBookings:           define(domain.RoleCustomer, d.getBookings),
		domain.OpGetBooking:            define(domain.RoleCustomer, d.getBooking),
		domain.OpCreateBooking:         define(domain.RoleCustomer, d.createBooking),
		domain.OpCancelBooking:         define(domain.RoleCustomer, d.cancelBooking),
		domain.OpGetPets:               define(domain.RoleCustomer, d.getPets),
		domain.OpCreatePet:             define(domain.RoleCustomer, d.createPet),
		domain.OpGetOwner:              define(domain.RoleCustomer, d.getOwner),
		domain.OpUpdateOwner:           define(domain.RoleCustomer, d.updateOwner),
		domain.OpUpdateBookingStatus:   define(domain.RoleAdmin, d.updateBookingStatus),
		domain.OpBroadcastNotification: define(domain.RoleAdmin, d.broadcastNotification),
	}
}

func (d *RequestDispatcher) getServices(ctx context.Context, _ ports.Caller, _ struct{}) (Outcome, error) {
	services, err := d.services.List(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: lo.Map(services, func(s *domain.Service, _ int) domain.ServiceSnapshot {
		return domain.NewServiceSnapshot(s)
	})}, nil
}

func (d *RequestDispatcher) getAvailability(ctx context.Context, _ ports.Caller, p getAvailabilityPayload) (Outcome, error) {
	from, _ := domain.ParseDate(p.From)
	through := from
	if p.Through != "" {
		through, _ = domain.ParseDate(p.Through)
	}
	if through.Before(from) {
		return Outcome{}, apperrors.ErrInvalidDateRange
	}
	if int(through.Sub(from).Hours()/24)+1 > domain.MaxStayDays {
		return Outcome{}, apperrors.ErrBookingTooLong
	}

	if _, err := d.services.GetByID(ctx, p.ServiceID); err != nil {
		return Outcome{}, err
	}

	days, err := d.services.Availability(ctx, p.ServiceID, from, through)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: lo.Map(days, func(a domain.Availability, _ int) domain.AvailabilitySnapshot {
		return domain.NewAvailabilitySnapshot(a)
	})}, nil
}

func (d *RequestDispatcher) getBookings(ctx context.Context, caller ports.Caller, p getBookingsPayload) (Outcome, error) {
	params := ports.ListBookingsParams{Limit: p.Limit, Offset: p.Offset}
	if params.Limit == 0 {
		params.Limit = defaultListLimit
	}
	params.Limit = min(params.Limit, maxListLimit)

	// Admins may list across owners; customers are pinned to their scope.
	if p.OwnerID != nil || caller.Role != domain.RoleAdmin {
		ownerID, err := ownerScope(caller, p.OwnerID)
		if err != nil {
			return Outcome{}, err
		}
		params.OwnerID = &ownerID
	}
	if p.Status != "" {
		status := domain.BookingStatus(p.Status)
		params.Status = &status
	}

	bookings, err := d.bookings.List(ctx, params)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: BookingList{
		Bookings: lo.Map(bookings, func(b *domain.Booking, _ int) domain.BookingSnapshot {
			return domain.NewBookingSnapshot(b)
		}),
		Limit:  params.Limit,
		Offset: params.Offset,
	}}, nil
}

// loadBooking fetches a booking the caller is allowed to see.
func (d *RequestDispatcher) loadBooking(ctx context.Context, caller ports.Caller, id domain.ID) (*domain.Booking, error) {
	booking, err := d.bookings.GetByID(ctx, id.Int64())
	if err != nil {
		if errors.Is(err, apperrors.ErrBookingNotFound) {
			return nil, apperrors.NewNotFoundError(err, fmt.Sprintf("booking %d not found", id))
		}
		return nil, err
	}
	if dec := CanAccessOwner(caller.RoleAssignment, booking.OwnerID); !dec.Allowed {
		return nil, apperrors.NewAuthorizationError(dec.Reason)
	}
	return booking, nil
}

func (d *RequestDispatcher) getBooking(ctx context.Context, caller ports.Caller, p bookingRefPayload) (Outcome, error) {
	booking, err := d.loadBooking(ctx, caller, p.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.NewBookingSnapshot(booking)}, nil
}

func (d *RequestDispatcher) createBooking(ctx context.Context, caller ports.Caller, p createBookingPayload) (Outcome, error) {
	ownerID, err := ownerScope(caller, p.OwnerID)
	if err != nil {
		return Outcome{}, err
	}

	pet, err := d.pets.GetByID(ctx, p.PetID)
	if err != nil {
		return Outcome{}, err
	}
	if pet.OwnerID != ownerID {
		return Outcome{}, apperrors.ErrPetOwnerMismatch
	}
	if _, err := d.services.GetByID(ctx, p.ServiceID); err != nil {
		return Outcome{}, err
	}

	start, _ := domain.ParseDate(p.StartDate)
	end, _ := domain.ParseDate(p.EndDate)
	booking, err := domain.NewBooking(domain.BookingParams{
		OwnerID:   ownerID,
		PetID:     p.PetID,
		ServiceID: p.ServiceID,
		StartDate: start,
		EndDate:   end,
		Notes:     p.Notes,
	})
	if err != nil {
		return Outcome{}, err
	}

	created, err := d.bookings.Create(ctx, booking)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Result: domain.NewBookingSnapshot(created),
		Events: []domain.Event{
			domain.NewBookingUpdate(domain.BookingCreated, created, ""),
			domain.NewAvailabilityUpdate(created.ServiceID, created.StartDate, created.EndDate),
		},
	}, nil
}

// transition moves a booking to status and reports the resulting events.
func (d *RequestDispatcher) transition(ctx context.Context, booking *domain.Booking, status domain.BookingStatus) (Outcome, error) {
	previous := booking.Status
	if err := booking.TransitionTo(status); err != nil {
		return Outcome{}, err
	}

	updated, err := d.bookings.UpdateStatus(ctx, booking.ID, previous, status)
	if err != nil {
		return Outcome{}, err
	}

	action := domain.BookingStatusChanged
	if status == domain.BookingCancelled {
		action = domain.BookingWasCancelled
	}
	events := []domain.Event{domain.NewBookingUpdate(action, updated, previous)}
	if previous.HoldsCapacity() && !status.HoldsCapacity() {
		events = append(events, domain.NewAvailabilityUpdate(updated.ServiceID, updated.StartDate, updated.EndDate))
	}
	return Outcome{Result: domain.NewBookingSnapshot(updated), Events: events}, nil
}

func (d *RequestDispatcher) cancelBooking(ctx context.Context, caller ports.Caller, p bookingRefPayload) (Outcome, error) {
	booking, err := d.loadBooking(ctx, caller, p.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	return d.transition(ctx, booking, domain.BookingCancelled)
}

func (d *RequestDispatcher) updateBookingStatus(ctx context.Context, caller ports.Caller, p updateBookingStatusPayload) (Outcome, error) {
	booking, err := d.loadBooking(ctx, caller, p.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	return d.transition(ctx, booking, domain.BookingStatus(p.Status))
}

func (d *RequestDispatcher) getPets(ctx context.Context, caller ports.Caller, p ownerPayload) (Outcome, error) {
	ownerID, err := ownerScope(caller, p.OwnerID)
	if err != nil {
		return Outcome{}, err
	}
	pets, err := d.pets.ListByOwner(ctx, ownerID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: lo.Map(pets, func(pet *domain.Pet, _ int) domain.PetSnapshot {
		return domain.NewPetSnapshot(pet)
	})}, nil
}

func (d *RequestDispatcher) createPet(ctx context.Context, caller ports.Caller, p createPetPayload) (Outcome, error) {
	ownerID, err := ownerScope(caller, p.OwnerID)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := d.owners.GetByID(ctx, ownerID); err != nil {
		return Outcome{}, err
	}

	pet, err := d.pets.Create(ctx, &domain.Pet{
		OwnerID:  ownerID,
		Name:     p.Name,
		Species:  domain.Species(p.Species),
		Breed:    p.Breed,
		AgeYears: p.AgeYears,
		Notes:    p.Notes,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Result: domain.NewPetSnapshot(pet),
		Events: []domain.Event{domain.NewPetAdded(pet)},
	}, nil
}

func (d *RequestDispatcher) getOwner(ctx context.Context, caller ports.Caller, p ownerPayload) (Outcome, error) {
	ownerID, err := ownerScope(caller, p.OwnerID)
	if err != nil {
		return Outcome{}, err
	}
	owner, err := d.owners.GetByID(ctx, ownerID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Result: domain.NewOwnerSnapshot(owner)}, nil
}

func (d *RequestDispatcher) updateOwner(ctx context.Context, caller ports.Caller, p updateOwnerPayload) (Outcome, error) {
	ownerID, err := ownerScope(caller, p.OwnerID)
	if err != nil {
		return Outcome{}, err
	}
	owner, err := d.owners.GetByID(ctx, ownerID)
	if err != nil {
		return Outcome{}, err
	}

	changed, err := owner.Apply(domain.OwnerChanges{
		FullName:         p.FullName,
		Phone:            p.Phone,
		Address:          p.Address,
		EmergencyContact: p.EmergencyContact,
	})
	if err != nil {
		return Outcome{}, err
	}
	if len(changed) == 0 {
		return Outcome{Result: domain.NewOwnerSnapshot(owner)}, nil
	}

	updated, err := d.owners.Update(ctx, owner)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Result: domain.NewOwnerSnapshot(updated),
		Events: []domain.Event{domain.NewOwnerProfileUpdate(updated, changed)},
	}, nil
}

func (d *RequestDispatcher) broadcastNotification(_ context.Context, _ ports.Caller, p broadcastPayload) (Outcome, error) {
	minimum := domain.RoleGuest
	if p.MinimumRole != "" {
		minimum, _ = domain.ParseRole(p.MinimumRole)
	}
	return Outcome{
		Result: NotificationResult{Message: p.Message, MinimumRole: minimum.String()},
		Events: []domain.Event{domain.NewNotification(p.Message, p.Level, minimum)},
	}, nil
}

package domain

import "time"

// BookingSnapshot matches the API response shape for bookings.
type BookingSnapshot struct {
	ID        int64   `json:"id"`
	OwnerID   int64   `json:"ownerId"`
	PetID     int64   `json:"petId"`
	ServiceID int64   `json:"serviceId"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Status    string  `json:"status"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt *string `json:"updatedAt"`
}

// OwnerSnapshot matches the API response shape for owners.
type OwnerSnapshot struct {
	ID               int64   `json:"id"`
	FullName         string  `json:"fullName"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone,omitempty"`
	Address          string  `json:"address,omitempty"`
	EmergencyContact string  `json:"emergencyContact,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        *string `json:"updatedAt"`
}

// PetSnapshot matches the API response shape for pets.
type PetSnapshot struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"ownerId"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed,omitempty"`
	AgeYears  int    `json:"ageYears"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ServiceSnapshot matches the API response shape for services.
type ServiceSnapshot struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Description   string `json:"description,omitempty"`
	DailyCapacity int    `json:"dailyCapacity"`
}

// AvailabilitySnapshot is one day of remaining capacity.
type AvailabilitySnapshot struct {
	ServiceID int64  `json:"serviceId"`
	Date      string `json:"date"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Remaining int    `json:"remaining"`
}

// NotificationPayload is the payload of a notification event.
type NotificationPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// BookingUpdatePayload is the payload of a booking event.
type BookingUpdatePayload struct {
	BookingID      int64            `json:"bookingId"`
	OwnerID        int64            `json:"ownerId"`
	Action         string           `json:"action"`
	Status         string           `json:"status"`
	PreviousStatus string           `json:"previousStatus,omitempty"`
	Booking        *BookingSnapshot `json:"booking,omitempty"`
}

// AvailabilityPayload is the payload of an availability event.
type AvailabilityPayload struct {
	ServiceID int64  `json:"serviceId"`
	Date      string `json:"date"`
	Through   string `json:"through"`
}

// OwnerUpdatePayload is the payload of an owner event.
type OwnerUpdatePayload struct {
	OwnerID int64          `json:"ownerId"`
	Action  string         `json:"action"`
	Fields  []string       `json:"fields,omitempty"`
	Owner   *OwnerSnapshot `json:"owner,omitempty"`
	Pet     *PetSnapshot   `json:"pet,omitempty"`
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.UTC().Format(time.RFC3339)
	return &value
}

// NewBookingSnapshot builds a booking snapshot from a domain booking.
func NewBookingSnapshot(booking *Booking) BookingSnapshot {
	return BookingSnapshot{
		ID:        booking.ID,
		OwnerID:   booking.OwnerID,
		PetID:     booking.PetID,
		ServiceID: booking.ServiceID,
		StartDate: booking.StartDate.Format(DateLayout),
		EndDate:   booking.EndDate.Format(DateLayout),
		Status:    string(booking.Status),
		Notes:     booking.Notes,
		CreatedAt: booking.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: formatOptionalTime(booking.UpdatedAt),
	}
}

// NewOwnerSnapshot builds an owner snapshot from a domain owner.
func NewOwnerSnapshot(owner *Owner) OwnerSnapshot {
	return OwnerSnapshot{
		ID:               owner.ID,
		FullName:         owner.FullName,
		Email:            owner.Email,
		Phone:            owner.Phone,
		Address:          owner.Address,
		EmergencyContact: owner.EmergencyContact,
		CreatedAt:        owner.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        formatOptionalTime(owner.UpdatedAt),
	}
}

// NewPetSnapshot builds a pet snapshot from a domain pet.
func NewPetSnapshot(pet *Pet) PetSnapshot {
	return PetSnapshot{
		ID:        pet.ID,
		OwnerID:   pet.OwnerID,
		Name:      pet.Name,
		Species:   string(pet.Species),
		Breed:     pet.Breed,
		AgeYears:  pet.AgeYears,
		Notes:     pet.Notes,
		CreatedAt: pet.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewServiceSnapshot builds a service snapshot from a domain service.
func NewServiceSnapshot(service *Service) ServiceSnapshot {
	return ServiceSnapshot{
		ID:            service.ID,
		Name:          service.Name,
		Kind:          string(service.Kind),
		Description:   service.Description,
		DailyCapacity: service.DailyCapacity,
	}
}

// NewAvailabilitySnapshot builds a per-day availability snapshot.
func NewAvailabilitySnapshot(a Availability) AvailabilitySnapshot {
	return AvailabilitySnapshot{
		ServiceID: a.ServiceID,
		Date:      a.Date.Format(DateLayout),
		Capacity:  a.Capacity,
		Booked:    a.Booked,
		Remaining: a.Remaining(),
	}
}

func newBookingUpdatePayload(e BookingUpdate) BookingUpdatePayload {
	payload := BookingUpdatePayload{
		BookingID:      e.BookingID,
		OwnerID:        e.OwnerID,
		Action:         string(e.Action),
		Status:         string(e.Status),
		PreviousStatus: string(e.PreviousStatus),
	}
	if e.Booking != nil {
		snapshot := NewBookingSnapshot(e.Booking)
		payload.Booking = &snapshot
	}
	return payload
}

func newOwnerUpdatePayload(e OwnerUpdate) OwnerUpdatePayload {
	payload := OwnerUpdatePayload{
		OwnerID: e.OwnerID,
		Action:  string(e.Action),
		Fields:  e.Fields,
	}
	if e.Owner != nil {
		snapshot := NewOwnerSnapshot(e.Owner)
		payload.Owner = &snapshot
	}
	if e.Pet != nil {
		snapshot := NewPetSnapshot(e.Pet)
		payload.Pet = &snapshot
	}
	return payload
}

package domain

import (
	"time"

	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// MaxStayDays bounds a single booking's length.
const MaxStayDays = 60

// ServiceKind distinguishes overnight boarding from same-day grooming.
type ServiceKind string

const (
	ServiceBoarding ServiceKind = "boarding"
	ServiceGrooming ServiceKind = "grooming"
	ServiceDaycare  ServiceKind = "daycare"
)

// Service is a bookable offering with a per-day capacity.
type Service struct {
	ID            int64
	Name          string
	Kind          ServiceKind
	Description   string
	DailyCapacity int
}

// Availability is the remaining capacity of a service on one date.
type Availability struct {
	ServiceID int64
	Date      time.Time
	Capacity  int
	Booked    int
}

// Remaining returns the number of free slots.
func (a Availability) Remaining() int {
	if a.Booked >= a.Capacity {
		return 0
	}
	return a.Capacity - a.Booked
}

// BookingStatus represents the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCheckedIn, BookingCancelled},
	BookingCheckedIn: {BookingCompleted},
	BookingCompleted: {},
	BookingCancelled: {},
}

// IsValid reports whether s is a known status.
func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// HoldsCapacity reports whether a booking in this status occupies a slot.
func (s BookingStatus) HoldsCapacity() bool {
	return s == BookingPending || s == BookingConfirmed || s == BookingCheckedIn
}

// Booking reserves a service for a pet over an inclusive date range.
type Booking struct {
	ID        int64
	OwnerID   int64
	PetID     int64
	ServiceID int64
	StartDate time.Time
	EndDate   time.Time
	Status    BookingStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// BookingParams holds the input for a new booking.
type BookingParams struct {
	OwnerID   int64
	PetID     int64
	ServiceID int64
	StartDate time.Time
	EndDate   time.Time
	Notes     string
}

// NewBooking validates params and returns a pending booking.
func NewBooking(params BookingParams) (*Booking, error) {
	start := truncateDate(params.StartDate)
	end := truncateDate(params.EndDate)

	if end.Before(start) {
		return nil, apperrors.ErrInvalidDateRange
	}
	if int(end.Sub(start).Hours()/24)+1 > MaxStayDays {
		return nil, apperrors.ErrBookingTooLong
	}

	return &Booking{
		OwnerID:   params.OwnerID,
		PetID:     params.PetID,
		ServiceID: params.ServiceID,
		StartDate: start,
		EndDate:   end,
		Status:    BookingPending,
		Notes:     params.Notes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TransitionTo changes the booking's status, enforcing the lifecycle.
func (b *Booking) TransitionTo(status BookingStatus) error {
	if !status.IsValid() {
		return apperrors.ErrInvalidBookingStatus
	}

	for _, allowed := range bookingTransitions[b.Status] {
		if allowed == status {
			b.Status = status
			now := time.Now().UTC()
			b.UpdatedAt = &now
			return nil
		}
	}
	return apperrors.ErrInvalidStatusTransition
}

// Dates returns every calendar date the booking covers.
func (b *Booking) Dates() []time.Time {
	var dates []time.Time
	for d := b.StartDate; !d.After(b.EndDate); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

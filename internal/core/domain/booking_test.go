package domain_test

import (
	"testing"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestBookingStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status domain.BookingStatus
		want   bool
	}{
		{"pending is valid", domain.BookingPending, true},
		{"confirmed is valid", domain.BookingConfirmed, true},
		{"checked_in is valid", domain.BookingCheckedIn, true},
		{"completed is valid", domain.BookingCompleted, true},
		{"cancelled is valid", domain.BookingCancelled, true},
		{"empty is invalid", domain.BookingStatus(""), false},
		{"uppercase is invalid", domain.BookingStatus("PENDING"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestNewBooking(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr error
	}{
		{"single day", "2026-05-01", "2026-05-01", nil},
		{"week", "2026-05-01", "2026-05-07", nil},
		{"end before start", "2026-05-07", "2026-05-01", apperrors.ErrInvalidDateRange},
		{"exactly max stay", "2026-01-01", "2026-03-01", nil},
		{"over max stay", "2026-01-01", "2026-03-02", apperrors.ErrBookingTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking, err := domain.NewBooking(domain.BookingParams{
				OwnerID:   3,
				PetID:     4,
				ServiceID: 5,
				StartDate: date(t, tt.start),
				EndDate:   date(t, tt.end),
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, booking)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.BookingPending, booking.Status)
			assert.Equal(t, int64(3), booking.OwnerID)
			assert.False(t, booking.CreatedAt.IsZero())
		})
	}
}

func TestBooking_TransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.BookingStatus
		to      domain.BookingStatus
		wantErr error
	}{
		{"pending to confirmed", domain.BookingPending, domain.BookingConfirmed, nil},
		{"pending to cancelled", domain.BookingPending, domain.BookingCancelled, nil},
		{"confirmed to checked_in", domain.BookingConfirmed, domain.BookingCheckedIn, nil},
		{"confirmed to cancelled", domain.BookingConfirmed, domain.BookingCancelled, nil},
		{"checked_in to completed", domain.BookingCheckedIn, domain.BookingCompleted, nil},
		{"pending to completed", domain.BookingPending, domain.BookingCompleted, apperrors.ErrInvalidStatusTransition},
		{"checked_in to cancelled", domain.BookingCheckedIn, domain.BookingCancelled, apperrors.ErrInvalidStatusTransition},
		{"cancelled is terminal", domain.BookingCancelled, domain.BookingPending, apperrors.ErrInvalidStatusTransition},
		{"completed is terminal", domain.BookingCompleted, domain.BookingCancelled, apperrors.ErrInvalidStatusTransition},
		{"unknown target", domain.BookingPending, domain.BookingStatus("lost"), apperrors.ErrInvalidBookingStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := &domain.Booking{Status: tt.from}

			err := booking.TransitionTo(tt.to)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, booking.Status)
				assert.Nil(t, booking.UpdatedAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, booking.Status)
			assert.NotNil(t, booking.UpdatedAt)
		})
	}
}

func TestBooking_Dates(t *testing.T) {
	booking, err := domain.NewBooking(domain.BookingParams{
		StartDate: date(t, "2026-02-27"),
		EndDate:   date(t, "2026-03-02"),
	})
	require.NoError(t, err)

	dates := booking.Dates()

	require.Len(t, dates, 4)
	assert.Equal(t, "2026-02-27", dates[0].Format(domain.DateLayout))
	assert.Equal(t, "2026-03-02", dates[3].Format(domain.DateLayout))
}

func TestAvailability_Remaining(t *testing.T) {
	assert.Equal(t, 3, domain.Availability{Capacity: 5, Booked: 2}.Remaining())
	assert.Equal(t, 0, domain.Availability{Capacity: 5, Booked: 7}.Remaining())
}

func TestOwner_Apply(t *testing.T) {
	name := "  Jane Doe  "
	phone := "555-0100"
	owner := &domain.Owner{ID: 7, FullName: "Jane", Phone: "555-0100"}

	changed, err := owner.Apply(domain.OwnerChanges{FullName: &name, Phone: &phone})

	require.NoError(t, err)
	assert.Equal(t, []string{"fullName"}, changed)
	assert.Equal(t, "Jane Doe", owner.FullName)
	assert.NotNil(t, owner.UpdatedAt)

	empty := " "
	_, err = owner.Apply(domain.OwnerChanges{FullName: &empty})

	var validationErrs *apperrors.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.Errors, "fullName")
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
)

const (
	bookingColumns = `id, owner_id, pet_id, service_id, start_date, end_date, status, notes, created_at, updated_at`

	defaultBookingLimit = 100
)

type BookingRepository struct {
	pool *pgxpool.Pool
	tx   ports.TransactionManager
}

var _ ports.BookingRepository = (*BookingRepository)(nil)

func NewBookingRepository(pool *pgxpool.Pool, tx ports.TransactionManager) *BookingRepository {
	return &BookingRepository{pool: pool, tx: tx}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.PetID, &b.ServiceID, &b.StartDate, &b.EndDate, &status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	return &b, nil
}

// Create inserts a pending booking. The service row is locked for the
// rest of the transaction, so concurrent bookings of one service see each
// other's counts and a day can never exceed its capacity.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	var created *domain.Booking

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := GetDBTX(ctx, r.pool)

		var capacity int
		err := db.QueryRow(ctx, `SELECT daily_capacity FROM services WHERE id = $1 FOR UPDATE`, booking.ServiceID).Scan(&capacity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrServiceNotFound
			}
			return fmt.Errorf("lock service: %w", err)
		}

		days, err := dailyUsage(ctx, db, booking.ServiceID, capacity, booking.StartDate, booking.EndDate)
		if err != nil {
			return err
		}
		for _, day := range days {
			if day.Remaining() == 0 {
				return apperrors.ErrServiceFullyBooked
			}
		}

		created, err = scanBooking(db.QueryRow(ctx,
			`INSERT INTO bookings (owner_id, pet_id, service_id, start_date, end_date, status, notes)
			 VALUES ($1, $2, $3, $4::date, $5::date, $6, $7)
			 RETURNING `+bookingColumns,
			booking.OwnerID, booking.PetID, booking.ServiceID,
			booking.StartDate.Format(domain.DateLayout), booking.EndDate.Format(domain.DateLayout),
			string(booking.Status), booking.Notes,
		))
		if err != nil {
			if isPgError(err, pgForeignKeyViolation) {
				return apperrors.ErrPetNotFound
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	booking, err := scanBooking(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

// List returns bookings ordered by start date, newest first.
func (r *BookingRepository) List(ctx context.Context, params ports.ListBookingsParams) ([]*domain.Booking, error) {
	var (
		conditions []string
		args       []any
	)
	if params.OwnerID != nil {
		args = append(args, *params.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultBookingLimit
	}
	offset := max(params.Offset, 0)

	var query strings.Builder
	query.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&query, " ORDER BY start_date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

// UpdateStatus compares and swaps the status column.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus) (*domain.Booking, error) {
	db := GetDBTX(ctx, r.pool)
	booking, err := scanBooking(db.QueryRow(ctx,
		`UPDATE bookings SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING `+bookingColumns,
		id, string(from), string(to),
	))
	if err == nil {
		return booking, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check booking: %w", err)
	}
	if !exists {
		return nil, apperrors.ErrBookingNotFound
	}
	return nil, apperrors.ErrConcurrentModification
}

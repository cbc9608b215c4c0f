package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
)

const serviceColumns = `id, name, kind, description, daily_capacity`

type ServiceRepository struct {
	pool *pgxpool.Pool
}

var _ ports.ServiceRepository = (*ServiceRepository)(nil)

func NewServiceRepository(pool *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var (
		s    domain.Service
		kind string
	)
	if err := row.Scan(&s.ID, &s.Name, &kind, &s.Description, &s.DailyCapacity); err != nil {
		return nil, err
	}
	s.Kind = domain.ServiceKind(kind)
	return &s, nil
}

func (r *ServiceRepository) List(ctx context.Context) ([]*domain.Service, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]*domain.Service, 0)
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *ServiceRepository) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	s, err := scanService(GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

// Availability returns one entry per day in [from, through]. An empty
// range yields no entries.
func (r *ServiceRepository) Availability(ctx context.Context, serviceID int64, from, through time.Time) ([]domain.Availability, error) {
	db := GetDBTX(ctx, r.pool)
	var capacity int
	if err := db.QueryRow(ctx, `SELECT daily_capacity FROM services WHERE id = $1`, serviceID).Scan(&capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service capacity: %w", err)
	}
	return dailyUsage(ctx, db, serviceID, capacity, from, through)
}

// dailyUsage counts capacity-holding bookings of a service per day.
func dailyUsage(ctx context.Context, db DBTX, serviceID int64, capacity int, from, through time.Time) ([]domain.Availability, error) {
	const query = `
SELECT d::date, COUNT(b.id)
FROM generate_series($2::date, $3::date, INTERVAL '1 day') AS d
LEFT JOIN bookings b
  ON b.service_id = $1
 AND b.status IN ('pending', 'confirmed', 'checked_in')
 AND d::date BETWEEN b.start_date AND b.end_date
GROUP BY d
ORDER BY d
`
	rows, err := db.Query(ctx, query, serviceID, from.Format(domain.DateLayout), through.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	days := make([]domain.Availability, 0)
	for rows.Next() {
		var (
			day    time.Time
			booked int
		)
		if err := rows.Scan(&day, &booked); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		days = append(days, domain.Availability{
			ServiceID: serviceID,
			Date:      day.UTC(),
			Capacity:  capacity,
			Booked:    booked,
		})
	}
	return days, rows.Err()
}

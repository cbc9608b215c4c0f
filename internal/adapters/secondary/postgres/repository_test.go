package postgres

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	owners   *OwnerRepository
	pets     *PetRepository
	services *ServiceRepository
	bookings *BookingRepository
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()
	require.NotNil(t, testPool, "testPool is nil. TestMain may not have run.")
	return testRepos{
		owners:   NewOwnerRepository(testPool),
		pets:     NewPetRepository(testPool),
		services: NewServiceRepository(testPool),
		bookings: NewBookingRepository(testPool, NewTransactionManager(testPool)),
	}
}

func createTestOwner(t *testing.T, ctx context.Context) *domain.Owner {
	t.Helper()
	var id int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO owners (full_name, email) VALUES ($1, $2) RETURNING id`,
		"Pat Owner", uuid.NewString()+"@Example.com",
	).Scan(&id)
	require.NoError(t, err)

	owner, err := NewOwnerRepository(testPool).GetByID(ctx, id)
	require.NoError(t, err)
	return owner
}

func createTestService(t *testing.T, ctx context.Context, capacity int) int64 {
	t.Helper()
	var id int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO services (name, kind, daily_capacity) VALUES ($1, 'boarding', $2) RETURNING id`,
		"Suite "+uuid.NewString()[:8], capacity,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestPet(t *testing.T, ctx context.Context, repos testRepos, ownerID int64) *domain.Pet {
	t.Helper()
	pet, err := repos.pets.Create(ctx, &domain.Pet{OwnerID: ownerID, Name: "Biscuit", Species: domain.SpeciesDog})
	require.NoError(t, err)
	return pet
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newTestBooking(t *testing.T, ownerID, petID, serviceID int64, start, end string) *domain.Booking {
	t.Helper()
	booking, err := domain.NewBooking(domain.BookingParams{
		OwnerID:   ownerID,
		PetID:     petID,
		ServiceID: serviceID,
		StartDate: date(t, start),
		EndDate:   date(t, end),
	})
	require.NoError(t, err)
	return booking
}

func TestOwnerRepository_GetAndUpdate(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)

	found, err := repos.owners.GetByEmail(ctx, owner.Email)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, found.ID)

	lower, err := repos.owners.GetByEmail(ctx, strings.ToLower(owner.Email))
	require.NoError(t, err)
	assert.Equal(t, owner.ID, lower.ID)

	owner.Phone = "555-0100"
	owner.FullName = "Pat Q. Owner"
	updated, err := repos.owners.Update(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "Pat Q. Owner", updated.FullName)
	assert.NotNil(t, updated.UpdatedAt)
}

func TestOwnerRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	_, err := repos.owners.GetByID(ctx, 999999)
	assert.ErrorIs(t, err, apperrors.ErrOwnerNotFound)

	_, err = repos.owners.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.ErrOwnerNotFound)

	_, err = repos.owners.Update(ctx, &domain.Owner{ID: 999999, FullName: "Ghost"})
	assert.ErrorIs(t, err, apperrors.ErrOwnerNotFound)
}

func TestPetRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)

	created, err := repos.pets.Create(ctx, &domain.Pet{OwnerID: owner.ID, Name: "Mochi", Species: domain.SpeciesCat, AgeYears: 3})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	_ = createTestPet(t, ctx, repos, owner.ID)

	pets, err := repos.pets.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, pets, 2)
	assert.Equal(t, "Biscuit", pets[0].Name)
	assert.Equal(t, domain.SpeciesCat, pets[1].Species)

	_, err = repos.pets.Create(ctx, &domain.Pet{OwnerID: 999999, Name: "Stray", Species: domain.SpeciesOther})
	assert.ErrorIs(t, err, apperrors.ErrOwnerNotFound)

	_, err = repos.pets.GetByID(ctx, 999999)
	assert.ErrorIs(t, err, apperrors.ErrPetNotFound)
}

func TestServiceRepository_SeededAndAvailability(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	services, err := repos.services.List(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(services), 3)

	owner := createTestOwner(t, ctx)
	pet := createTestPet(t, ctx, repos, owner.ID)
	serviceID := createTestService(t, ctx, 2)

	_, err = repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-03-02", "2030-03-03"))
	require.NoError(t, err)

	days, err := repos.services.Availability(ctx, serviceID, date(t, "2030-03-01"), date(t, "2030-03-04"))
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Equal(t, date(t, "2030-03-01"), days[0].Date)
	assert.Equal(t, []int{2, 1, 1, 2}, []int{days[0].Remaining(), days[1].Remaining(), days[2].Remaining(), days[3].Remaining()})

	_, err = repos.services.Availability(ctx, 999999, date(t, "2030-03-01"), date(t, "2030-03-01"))
	assert.ErrorIs(t, err, apperrors.ErrServiceNotFound)
}

func TestBookingRepository_CapacityIsEnforced(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)
	pet := createTestPet(t, ctx, repos, owner.ID)
	serviceID := createTestService(t, ctx, 1)

	first, err := repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-04-01", "2030-04-03"))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, first.Status)
	assert.Equal(t, date(t, "2030-04-01"), first.StartDate)

	_, err = repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-04-03", "2030-04-05"))
	assert.ErrorIs(t, err, apperrors.ErrServiceFullyBooked)

	// Cancelling releases the slot
	_, err = repos.bookings.UpdateStatus(ctx, first.ID, domain.BookingPending, domain.BookingCancelled)
	require.NoError(t, err)
	_, err = repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-04-03", "2030-04-05"))
	assert.NoError(t, err)
}

func TestBookingRepository_ConcurrentCreatesNeverOverbook(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)
	pet := createTestPet(t, ctx, repos, owner.ID)
	serviceID := createTestService(t, ctx, 3)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range attempts {
		booking := newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-05-10", "2030-05-11")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.bookings.Create(ctx, booking)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
}

func TestBookingRepository_UpdateStatusCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)
	pet := createTestPet(t, ctx, repos, owner.ID)
	serviceID := createTestService(t, ctx, 5)

	booking, err := repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-06-01", "2030-06-01"))
	require.NoError(t, err)

	confirmed, err := repos.bookings.UpdateStatus(ctx, booking.ID, domain.BookingPending, domain.BookingConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.UpdatedAt)

	_, err = repos.bookings.UpdateStatus(ctx, booking.ID, domain.BookingPending, domain.BookingCancelled)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	_, err = repos.bookings.UpdateStatus(ctx, 999999, domain.BookingPending, domain.BookingCancelled)
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)
}

func TestBookingRepository_List(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)
	other := createTestOwner(t, ctx)
	pet := createTestPet(t, ctx, repos, owner.ID)
	otherPet := createTestPet(t, ctx, repos, other.ID)
	serviceID := createTestService(t, ctx, 10)

	early, err := repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-07-01", "2030-07-02"))
	require.NoError(t, err)
	late, err := repos.bookings.Create(ctx, newTestBooking(t, owner.ID, pet.ID, serviceID, "2030-07-10", "2030-07-12"))
	require.NoError(t, err)
	_, err = repos.bookings.Create(ctx, newTestBooking(t, other.ID, otherPet.ID, serviceID, "2030-07-05", "2030-07-05"))
	require.NoError(t, err)
	_, err = repos.bookings.UpdateStatus(ctx, early.ID, domain.BookingPending, domain.BookingConfirmed)
	require.NoError(t, err)

	mine, err := repos.bookings.List(ctx, ports.ListBookingsParams{OwnerID: &owner.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, late.ID, mine[0].ID, "newest start date first")

	confirmed := domain.BookingConfirmed
	filtered, err := repos.bookings.List(ctx, ports.ListBookingsParams{OwnerID: &owner.ID, Status: &confirmed})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, early.ID, filtered[0].ID)

	paged, err := repos.bookings.List(ctx, ports.ListBookingsParams{OwnerID: &owner.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, early.ID, paged[0].ID)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)
	owner := createTestOwner(t, ctx)
	tm := NewTransactionManager(testPool)

	err := tm.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := repos.pets.Create(ctx, &domain.Pet{OwnerID: owner.ID, Name: "Ghost", Species: domain.SpeciesOther}); err != nil {
			return err
		}
		return apperrors.ErrConflict
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	pets, err := repos.pets.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, pets)
}

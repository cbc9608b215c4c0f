package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockOwnerRepository is a mock implementation of ports.OwnerRepository
type MockOwnerRepository struct {
	mock.Mock
}

func NewMockOwnerRepository() *MockOwnerRepository {
	return &MockOwnerRepository{}
}

func (m *MockOwnerRepository) GetByID(ctx context.Context, id int64) (*domain.Owner, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Owner), args.Error(1)
}

func (m *MockOwnerRepository) GetByEmail(ctx context.Context, email string) (*domain.Owner, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Owner), args.Error(1)
}

func (m *MockOwnerRepository) Update(ctx context.Context, owner *domain.Owner) (*domain.Owner, error) {
	args := m.Called(ctx, owner)
	if fn, ok := args.Get(0).(func(context.Context, *domain.Owner) *domain.Owner); ok {
		return fn(ctx, owner), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Owner), args.Error(1)
}

// MockPetRepository is a mock implementation of ports.PetRepository
type MockPetRepository struct {
	mock.Mock
}

func NewMockPetRepository() *MockPetRepository {
	return &MockPetRepository{}
}

func (m *MockPetRepository) Create(ctx context.Context, pet *domain.Pet) (*domain.Pet, error) {
	args := m.Called(ctx, pet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Pet), args.Error(1)
}

func (m *MockPetRepository) GetByID(ctx context.Context, id int64) (*domain.Pet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Pet), args.Error(1)
}

func (m *MockPetRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Pet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Pet), args.Error(1)
}

// MockServiceRepository is a mock implementation of ports.ServiceRepository
type MockServiceRepository struct {
	mock.Mock
}

func NewMockServiceRepository() *MockServiceRepository {
	return &MockServiceRepository{}
}

func (m *MockServiceRepository) List(ctx context.Context) ([]*domain.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Service), args.Error(1)
}

func (m *MockServiceRepository) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Service), args.Error(1)
}

func (m *MockServiceRepository) Availability(ctx context.Context, serviceID int64, from, through time.Time) ([]domain.Availability, error) {
	args := m.Called(ctx, serviceID, from, through)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Availability), args.Error(1)
}

// MockBookingRepository is a mock implementation of ports.BookingRepository
type MockBookingRepository struct {
	mock.Mock
}

func NewMockBookingRepository() *MockBookingRepository {
	return &MockBookingRepository{}
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	args := m.Called(ctx, booking)
	if fn, ok := args.Get(0).(func(context.Context, *domain.Booking) *domain.Booking); ok {
		return fn(ctx, booking), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) List(ctx context.Context, params ports.ListBookingsParams) ([]*domain.Booking, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

// MockSecretVerifier is a mock implementation of ports.SecretVerifier
type MockSecretVerifier struct {
	mock.Mock
}

func NewMockSecretVerifier() *MockSecretVerifier {
	return &MockSecretVerifier{}
}

func (m *MockSecretVerifier) Verify(secret string) bool {
	args := m.Called(secret)
	return args.Bool(0)
}

// MockEventRouter is a mock implementation of ports.EventRouter
type MockEventRouter struct {
	mock.Mock
}

func NewMockEventRouter() *MockEventRouter {
	return &MockEventRouter{}
}

func (m *MockEventRouter) Route(ctx context.Context, event domain.Event) ports.RouteReport {
	args := m.Called(ctx, event)
	return args.Get(0).(ports.RouteReport)
}

// RecordingDeliverer is a ports.Deliverer that records envelopes per
// connection and fails for connections listed in Fail.
type RecordingDeliverer struct {
	mu        sync.Mutex
	Fail      map[string]error
	delivered map[string][]domain.EventEnvelope
	calls     []string
}

func NewRecordingDeliverer() *RecordingDeliverer {
	return &RecordingDeliverer{
		Fail:      make(map[string]error),
		delivered: make(map[string][]domain.EventEnvelope),
	}
}

func (d *RecordingDeliverer) Deliver(_ context.Context, connectionID string, envelope domain.EventEnvelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, connectionID)
	if err, ok := d.Fail[connectionID]; ok {
		return err
	}
	d.delivered[connectionID] = append(d.delivered[connectionID], envelope)
	return nil
}

// Delivered returns the envelopes delivered to connectionID.
func (d *RecordingDeliverer) Delivered(connectionID string) []domain.EventEnvelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.EventEnvelope(nil), d.delivered[connectionID]...)
}

// Calls returns every attempted connection id in call order.
func (d *RecordingDeliverer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

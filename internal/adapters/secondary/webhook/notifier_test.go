package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/mocks"
	"github.com/lorrc/petcare-backend/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receiver struct {
	mu       sync.Mutex
	status   int
	received []domain.EventEnvelope
	kinds    []string
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var envelope domain.EventEnvelope
	_ = json.NewDecoder(r.Body).Decode(&envelope)

	rc.mu.Lock()
	rc.received = append(rc.received, envelope)
	rc.kinds = append(rc.kinds, r.Header.Get(EventHeader))
	status := rc.status
	rc.mu.Unlock()

	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (rc *receiver) count() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.received)
}

type fixture struct {
	registry *services.ClientRegistry
	router   *services.EventRouter
	notifier *Notifier
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := services.NewClientRegistry(
		mocks.NewMockOwnerRepository(),
		mocks.NewMockBookingRepository(),
		mocks.NewMockSecretVerifier(),
		logger,
	)
	router := services.NewEventRouter(registry, logger)
	notifier := NewNotifier(registry, cfg, logger)
	router.Attach(domain.TransportWebhook, notifier)

	require.NoError(t, notifier.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, notifier.Stop(ctx))
	})
	return fixture{registry: registry, router: router, notifier: notifier}
}

func TestNotifier_RegistersAdminSubscribers(t *testing.T) {
	f := newFixture(t, Config{URLs: []string{"http://a.invalid/hook", "http://b.invalid/hook"}})

	snapshot := f.registry.Snapshot()
	require.Len(t, snapshot, 2)
	for _, client := range snapshot {
		assert.Equal(t, domain.TransportWebhook, client.Transport)
		assert.Equal(t, domain.RoleAdmin, client.Role)
	}
	assert.Equal(t, 2, f.notifier.Subscribers())
}

func TestNotifier_PostsRoutedEventsInOrder(t *testing.T) {
	rc := &receiver{}
	server := httptest.NewServer(rc)
	defer server.Close()

	f := newFixture(t, Config{URLs: []string{server.URL}})

	booking := &domain.Booking{ID: 12, OwnerID: 4, Status: domain.BookingPending}
	f.router.Route(context.Background(), domain.NewBookingUpdate(domain.BookingCreated, booking, ""))
	f.router.Route(context.Background(), domain.NewNotification("maintenance tonight", "warning", domain.RoleAdmin))

	require.Eventually(t, func() bool { return rc.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	assert.Equal(t, domain.EventBookingUpdate, rc.received[0].Kind)
	assert.Equal(t, domain.EventNotification, rc.received[1].Kind)
	assert.Equal(t, []string{string(domain.EventBookingUpdate), string(domain.EventNotification)}, rc.kinds)
}

func TestNotifier_FailedPostKeepsSubscriber(t *testing.T) {
	rc := &receiver{status: http.StatusInternalServerError}
	server := httptest.NewServer(rc)
	defer server.Close()

	f := newFixture(t, Config{URLs: []string{server.URL}})

	report := f.router.Route(context.Background(), domain.NewNotification("first", "", domain.RoleGuest))
	assert.Equal(t, 1, report.Delivered)
	require.Eventually(t, func() bool { return rc.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, f.registry.Snapshot(), 1)
	f.router.Route(context.Background(), domain.NewNotification("second", "", domain.RoleGuest))
	require.Eventually(t, func() bool { return rc.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifier_DeliverUnknownConnection(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.notifier.Deliver(context.Background(), "ws-1", domain.EventEnvelope{Kind: domain.EventNotification})
	assert.NoError(t, err)
}

func TestNotifier_StopUnregisters(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := services.NewClientRegistry(mocks.NewMockOwnerRepository(), mocks.NewMockBookingRepository(), nil, logger)
	notifier := NewNotifier(registry, Config{URLs: []string{"http://a.invalid/hook"}}, logger)
	require.NoError(t, notifier.Start())
	require.Len(t, registry.Snapshot(), 1)

	require.NoError(t, notifier.Stop(context.Background()))
	assert.Empty(t, registry.Snapshot())
	assert.NoError(t, notifier.Stop(context.Background()), "stop is idempotent")
}

func TestNotifier_StopWithoutStart(t *testing.T) {
	notifier := NewNotifier(nil, Config{}, nil)
	assert.NoError(t, notifier.Stop(context.Background()))
}

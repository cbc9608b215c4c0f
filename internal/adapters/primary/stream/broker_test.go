package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/mocks"
	"github.com/lorrc/petcare-backend/internal/core/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTicker struct {
	period time.Duration
	ch     chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeTicker) fire() {
	f.ch <- time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

type tickerRecorder struct {
	mu      sync.Mutex
	tickers map[time.Duration]*fakeTicker
}

func (r *tickerRecorder) factory(d time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTicker{period: d, ch: make(chan time.Time, 1)}
	r.tickers[d] = t
	return t
}

func (r *tickerRecorder) get(d time.Duration) *fakeTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[d]
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

// syncWriter is a goroutine-safe http.ResponseWriter with flush support.
type syncWriter struct {
	header http.Header

	mu      sync.Mutex
	status  int
	body    bytes.Buffer
	writes  int
	failing bool
}

func newSyncWriter() *syncWriter {
	return &syncWriter{header: make(http.Header)}
}

func (w *syncWriter) Header() http.Header { return w.header }

func (w *syncWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.failing {
		return 0, errors.New("broken pipe")
	}
	return w.body.Write(p)
}

func (w *syncWriter) Flush() {}

func (w *syncWriter) Body() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.String()
}

func (w *syncWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

const (
	testKeepalive = 15 * time.Second
	testHeartbeat = 30 * time.Second
)

type brokerFixture struct {
	broker   *Broker
	registry *services.ClientRegistry
	router   *services.EventRouter
	tickers  *tickerRecorder
}

func newBrokerFixture(cfg Config) brokerFixture {
	registry := services.NewClientRegistry(
		mocks.NewMockOwnerRepository(),
		mocks.NewMockBookingRepository(),
		mocks.NewMockSecretVerifier(),
		nil,
	)
	tickers := &tickerRecorder{tickers: make(map[time.Duration]*fakeTicker)}
	cfg.KeepaliveInterval = testKeepalive
	cfg.HeartbeatInterval = testHeartbeat
	cfg.NewTicker = tickers.factory

	broker := NewBroker(registry, cfg, nil)
	router := services.NewEventRouter(registry, nil)
	router.Attach(domain.TransportStream, broker)
	return brokerFixture{broker: broker, registry: registry, router: router, tickers: tickers}
}

type serving struct {
	w      *syncWriter
	cancel context.CancelFunc
	done   chan error
}

func (f brokerFixture) serve(t *testing.T, assignment domain.RoleAssignment, topics []domain.Topic) serving {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil).WithContext(ctx)
	s := serving{w: newSyncWriter(), cancel: cancel, done: make(chan error, 1)}

	go func() {
		s.done <- f.broker.Serve(s.w, req, assignment, topics)
	}()
	t.Cleanup(func() {
		cancel()
		<-s.done
	})

	require.Eventually(t, func() bool { return f.tickers.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	return s
}

func (f brokerFixture) onlyConnection(t *testing.T) *Connection {
	t.Helper()
	snapshot := f.registry.Snapshot()
	require.Len(t, snapshot, 1)
	conn, ok := f.broker.Lookup(snapshot[0].ConnectionID)
	require.True(t, ok)
	return conn
}

func TestBroker_FlushesInitialContextThenStreams(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Customer(3), []domain.Topic{domain.OwnerTopic(3)})

	conn := f.onlyConnection(t)
	assert.Equal(t, StateStreaming, conn.State())
	assert.Equal(t, "text/event-stream", s.w.Header().Get("Content-Type"))

	body := s.w.Body()
	assert.True(t, strings.HasPrefix(body, "retry: 3000\n\n"))
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, `"role":"customer"`)
	assert.Contains(t, body, `"topics":["owner:3"]`)
}

func TestBroker_KeepaliveAndHeartbeatFrames(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Guest(), nil)

	f.tickers.get(testKeepalive).fire()
	require.Eventually(t, func() bool {
		return strings.Contains(s.w.Body(), ": keepalive\n\n")
	}, time.Second, 5*time.Millisecond)

	f.tickers.get(testHeartbeat).fire()
	require.Eventually(t, func() bool {
		return strings.Contains(s.w.Body(), "event: heartbeat\ndata: {")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.w.Body(), `"timestamp":"2026-05-01T12:00:00Z"`)
}

func TestBroker_RoutedEventsAreWrittenInOrder(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Customer(3), nil)

	pet := &domain.Pet{ID: 1, OwnerID: 3, Name: "Mochi", Species: domain.SpeciesCat}
	f.router.Route(context.Background(), domain.NewPetAdded(pet))
	f.router.Route(context.Background(), domain.NewNotification("closing early", "", domain.RoleGuest))

	require.Eventually(t, func() bool {
		return strings.Contains(s.w.Body(), "event: notification")
	}, time.Second, 5*time.Millisecond)

	body := s.w.Body()
	first := strings.Index(body, "id: 1\nevent: ownerUpdate\n")
	second := strings.Index(body, "id: 2\nevent: notification\n")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
}

// Scenario C
func TestBroker_TickAfterCloseWritesNothing(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Guest(), nil)

	conn := f.onlyConnection(t)
	keepalive := f.tickers.get(testKeepalive)
	heartbeat := f.tickers.get(testHeartbeat)
	writes := s.w.Writes()

	require.True(t, conn.close())
	assert.Equal(t, StateClosed, conn.State())
	assert.True(t, keepalive.Stopped(), "keepalive must be stopped when the connection closes")
	assert.True(t, heartbeat.Stopped(), "heartbeat must be stopped when the connection closes")

	keepalive.fire()

	select {
	case err := <-s.done:
		s.done <- err
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after close")
	}

	assert.Equal(t, writes, s.w.Writes(), "no write may follow close")
	_, registered := f.registry.Get(conn.ID())
	assert.False(t, registered)
	assert.Equal(t, 0, f.broker.Count())
}

func TestBroker_ClientDisconnectUnregisters(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Admin(), nil)
	conn := f.onlyConnection(t)

	s.cancel()

	require.Eventually(t, func() bool { return conn.State() == StateClosed }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.registry.Snapshot()) == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.tickers.get(testKeepalive).Stopped())

	err := f.broker.Deliver(context.Background(), conn.ID(), domain.EventEnvelope{Kind: domain.EventNotification})
	assert.NoError(t, err)
}

func TestBroker_WriteFailureClosesConnection(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	s := f.serve(t, domain.Guest(), nil)
	conn := f.onlyConnection(t)

	s.w.mu.Lock()
	s.w.failing = true
	s.w.mu.Unlock()
	f.tickers.get(testKeepalive).fire()

	require.Eventually(t, func() bool { return conn.State() == StateClosed }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.broker.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.registry.Snapshot())
}

func TestBroker_RejectsSubscriptionBeforeStreaming(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	w := newSyncWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)

	err := f.broker.Serve(w, req, domain.Guest(), []domain.Topic{domain.OwnerTopic(3)})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeAuthorization, appErr.Code)
	assert.Zero(t, w.Writes())
	assert.Zero(t, f.tickers.count())
	assert.Empty(t, f.registry.Snapshot())
}

func TestBroker_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	f := newBrokerFixture(cfg)

	err := f.broker.Serve(newSyncWriter(), httptest.NewRequest(http.MethodGet, "/", nil), domain.Guest(), nil)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, f.broker.Deliver(context.Background(), "any", domain.EventEnvelope{}))
}

func TestConnection_FullBufferCloses(t *testing.T) {
	conn := newConnection("c1", 1)
	envelope := domain.EventEnvelope{Kind: domain.EventNotification, Payload: []byte(`{}`)}

	require.NoError(t, conn.enqueue(envelope))
	err := conn.enqueue(envelope)
	assert.ErrorIs(t, err, apperrors.ErrTransportBackedUp)
	assert.Equal(t, StateClosed, conn.State())

	assert.NoError(t, conn.enqueue(envelope), "closed connections ignore deliveries")
}

func TestConnection_CloseBeforeStreamingStartsNoTickers(t *testing.T) {
	conn := newConnection("c1", 1)
	require.True(t, conn.close())
	assert.False(t, conn.close())

	started := 0
	ok := conn.startStreaming(func(time.Duration) Ticker {
		started++
		return &fakeTicker{ch: make(chan time.Time)}
	}, DefaultConfig())

	assert.False(t, ok)
	assert.Zero(t, started)
}

func TestFormatEvent_SplitsLines(t *testing.T) {
	frame := formatEvent("7", "notification", []byte("a\nb"))
	assert.Equal(t, "id: 7\nevent: notification\ndata: a\ndata: b\n\n", string(frame))
}

func TestBroker_ConnectedClientsGaugeCountsOnce(t *testing.T) {
	f := newBrokerFixture(DefaultConfig())
	gauge := services.ConnectedClients.WithLabelValues(string(domain.TransportStream))
	before := testutil.ToFloat64(gauge)

	s := f.serve(t, domain.Guest(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(gauge))

	s.cancel()
	select {
	case err := <-s.done:
		s.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after cancel")
	}
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, before, testutil.ToFloat64(gauge))
}

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
)

// ErrDisabled is returned by Serve when the transport is switched off.
var ErrDisabled = errors.New("stream transport disabled")

// Config holds stream intervals and limits.
type Config struct {
	Enabled           bool
	KeepaliveInterval time.Duration
	HeartbeatInterval time.Duration
	RetryInterval     time.Duration
	SendBufferSize    int
	NewTicker         TickerFactory
}

// DefaultConfig returns the intervals used when none are configured.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		KeepaliveInterval: 15 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		RetryInterval:     3 * time.Second,
		SendBufferSize:    256,
		NewTicker:         NewTimeTicker,
	}
}

// ConnectedPayload is the first event on every stream.
type ConnectedPayload struct {
	ConnectionID string         `json:"connectionId"`
	Role         domain.Role    `json:"role"`
	OwnerID      *int64         `json:"ownerId,omitempty"`
	Topics       []domain.Topic `json:"topics"`
}

// HeartbeatPayload is the body of the named heartbeat event.
type HeartbeatPayload struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

// Broker serves server-sent event streams and delivers envelopes to them.
type Broker struct {
	registry ports.ClientRegistry
	cfg      Config
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

var _ ports.Deliverer = (*Broker)(nil)

// NewBroker creates a stream broker backed by registry.
func NewBroker(registry ports.ClientRegistry, cfg Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = defaults.KeepaliveInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = defaults.NewTicker
	}

	return &Broker{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "stream_broker"),
		conns:    make(map[string]*Connection),
	}
}

// Enabled reports whether the transport accepts streams.
func (b *Broker) Enabled() bool {
	return b.cfg.Enabled
}

// Serve holds r open as an event stream until the client goes away, a
// write fails, or the connection is closed by Deliver or Shutdown. Errors
// are returned only before the response starts; afterwards Serve returns
// nil.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, assignment domain.RoleAssignment, topics []domain.Topic) error {
	if !b.cfg.Enabled {
		return ErrDisabled
	}

	conn := newConnection(uuid.NewString(), b.cfg.SendBufferSize)
	ctx := logging.WithConnectionID(r.Context(), conn.id)

	b.mu.Lock()
	b.conns[conn.id] = conn
	b.mu.Unlock()
	b.registry.Register(conn.id, domain.TransportStream)
	defer b.remove(ctx, conn)

	if assignment.Normalized().Role != domain.RoleGuest {
		var err error
		if assignment, err = b.registry.Elevate(conn.id, assignment); err != nil {
			return err
		}
	}
	if err := b.registry.SubscribeAll(ctx, conn.id, topics); err != nil {
		return err
	}

	rc := http.NewResponseController(w)
	// The server-wide write timeout would cut every stream short
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		b.logger.WarnContext(ctx, "failed to clear write deadline", "error", err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial, err := b.initialFrames(conn, assignment, topics)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to encode initial stream context", "error", err)
		return nil
	}
	if !b.write(ctx, conn, w, rc, initial) {
		return nil
	}

	if !conn.startStreaming(b.cfg.NewTicker, b.cfg) {
		return nil
	}
	b.logger.InfoContext(ctx, "stream opened", "role", assignment.Role, "topics", len(topics))

	keepalive, heartbeat := conn.tickerChannels()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.done:
			return nil
		case frame := <-conn.send:
			if !b.write(ctx, conn, w, rc, frame) {
				return nil
			}
		case <-keepalive:
			if !b.write(ctx, conn, w, rc, keepaliveFrame) {
				return nil
			}
		case now := <-heartbeat:
			data, err := json.Marshal(HeartbeatPayload{
				ConnectionID: conn.id,
				Timestamp:    now.UTC().Format(time.RFC3339),
			})
			if err != nil {
				b.logger.ErrorContext(ctx, "failed to encode heartbeat", "error", err)
				continue
			}
			if !b.write(ctx, conn, w, rc, formatEvent("", "heartbeat", data)) {
				return nil
			}
		}
	}
}

func (b *Broker) initialFrames(conn *Connection, assignment domain.RoleAssignment, topics []domain.Topic) ([]byte, error) {
	if topics == nil {
		topics = []domain.Topic{}
	}
	data, err := json.Marshal(ConnectedPayload{
		ConnectionID: conn.id,
		Role:         assignment.Role,
		OwnerID:      assignment.ScopedOwnerID,
		Topics:       topics,
	})
	if err != nil {
		return nil, err
	}
	retry := fmt.Sprintf("retry: %d\n\n", b.cfg.RetryInterval.Milliseconds())
	return append([]byte(retry), formatEvent("", "connected", data)...), nil
}

// write sends frame and flushes it. Nothing is written once the connection
// is closed; a failed write closes it.
func (b *Broker) write(ctx context.Context, conn *Connection, w http.ResponseWriter, rc *http.ResponseController, frame []byte) bool {
	if conn.State() == StateClosed {
		return false
	}
	if _, err := w.Write(frame); err != nil {
		b.logger.DebugContext(ctx, "stream write failed", "error", err)
		conn.close()
		return false
	}
	if err := rc.Flush(); err != nil {
		b.logger.WarnContext(ctx, "stream flush failed", "error", err)
		conn.close()
		return false
	}
	return true
}

// remove closes conn and drops it from the broker and the registry.
func (b *Broker) remove(ctx context.Context, conn *Connection) {
	conn.close()

	b.mu.Lock()
	if current, ok := b.conns[conn.id]; ok && current == conn {
		delete(b.conns, conn.id)
	}
	b.mu.Unlock()

	b.registry.Unregister(conn.id)
	b.logger.InfoContext(ctx, "stream closed")
}

// Deliver queues envelope for connectionID. Unknown or closed connections
// are ignored, as is every call while the transport is disabled.
func (b *Broker) Deliver(ctx context.Context, connectionID string, envelope domain.EventEnvelope) error {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.RLock()
	conn, ok := b.conns[connectionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := conn.enqueue(envelope); err != nil {
		b.logger.WarnContext(ctx, "stream send buffer full, closing", "connection_id", connectionID)
		return err
	}
	return nil
}

// Lookup returns the connection with id, if it is still open.
func (b *Broker) Lookup(id string) (*Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conn, ok := b.conns[id]
	return conn, ok
}

// Count returns the number of open streams.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Shutdown closes every open stream. Serve calls return on their own.
func (b *Broker) Shutdown() {
	b.mu.RLock()
	conns := make([]*Connection, 0, len(b.conns))
	for _, conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	for _, conn := range conns {
		conn.close()
	}
}

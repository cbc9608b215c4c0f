package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

// TokenIssuer mints session tokens for authenticated connections.
type TokenIssuer interface {
	GenerateToken(assignment domain.RoleAssignment) (string, time.Time, error)
}

// Config holds the per-connection limits of the hub.
type Config struct {
	Enabled        bool
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	FrameRPS       float64
	FrameBurst     int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		SendBufferSize: 256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 64 * 1024,
		FrameRPS:       20,
		FrameBurst:     40,
	}
}

// HubDeps holds the core collaborators of a Hub.
type HubDeps struct {
	Registry   ports.ClientRegistry
	Router     ports.EventRouter
	Dispatcher ports.RequestDispatcher
	Tokens     TokenIssuer
}

// Hub owns the live websocket connections and delivers envelopes to them.
// Role and topic state lives in the client registry; the hub only maps
// connection ids to sockets.
type Hub struct {
	registry   ports.ClientRegistry
	router     ports.EventRouter
	dispatcher ports.RequestDispatcher
	tokens     TokenIssuer
	cfg        Config
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// Ensure Hub implements the Deliverer interface.
var _ ports.Deliverer = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(deps HubDeps, cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.FrameRPS <= 0 {
		cfg.FrameRPS = defaults.FrameRPS
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = defaults.FrameBurst
	}

	return &Hub{
		registry:   deps.Registry,
		router:     deps.Router,
		dispatcher: deps.Dispatcher,
		tokens:     deps.Tokens,
		cfg:        cfg,
		logger:     logger.With("component", "websocket_hub"),
		clients:    make(map[string]*Client),
	}
}

// Enabled reports whether the transport accepts connections.
func (h *Hub) Enabled() bool {
	return h.cfg.Enabled
}

// Serve attaches an upgraded connection to the hub and starts its pumps.
// A non-guest initial assignment, taken from a session token, is applied
// before the first frame is read.
func (h *Hub) Serve(conn *websocket.Conn, initial domain.RoleAssignment) string {
	connectionID := uuid.NewString()
	client := newClient(h, conn, connectionID, h.cfg, rate.NewLimiter(rate.Limit(h.cfg.FrameRPS), h.cfg.FrameBurst))

	h.mu.Lock()
	h.clients[connectionID] = client
	h.mu.Unlock()

	h.registry.Register(connectionID, domain.TransportWebSocket)

	if initial.Normalized().Role != domain.RoleGuest {
		if _, err := h.registry.Elevate(connectionID, initial); err != nil {
			h.logger.Warn("session token not applied",
				"connection_id", connectionID,
				"error", err,
			)
		}
	}

	h.logger.Info("client registered",
		"connection_id", connectionID,
		"total_connections", h.Count(),
	)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	return connectionID
}

// Deliver queues envelope on the connection's send buffer. Unknown or
// closed connections are ignored, as is every call while the transport is
// disabled. A full buffer closes the connection and reports a transport
// error.
func (h *Hub) Deliver(ctx context.Context, connectionID string, envelope domain.EventEnvelope) error {
	if !h.cfg.Enabled {
		return nil
	}

	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := client.enqueue(envelope); err != nil {
		if err == errClientClosed {
			return nil
		}
		h.logger.WarnContext(ctx, "client send buffer full, closing",
			"connection_id", connectionID,
		)
		client.close()
		return apperrors.NewTransportError(err, connectionID)
	}
	return nil
}

// disconnect removes a client from the hub and the registry. It is safe
// to call more than once.
func (h *Hub) disconnect(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if ok && current == client {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	client.close()
	if !ok || current != client {
		return
	}

	h.registry.Unregister(client.id)

	h.logger.Info("client unregistered",
		"connection_id", client.id,
	)
}

// reportError sends err to the originating connection as an error event.
func (h *Hub) reportError(ctx context.Context, connectionID, requestID string, err error) {
	appErr := apperrors.Classify(err)
	h.logger.DebugContext(ctx, "frame rejected",
		"code", appErr.Code,
		"error", err,
	)

	event := domain.WithRequestID(domain.NewErrorEvent(connectionID, appErr.Code, appErr.Message), requestID)
	h.router.Route(ctx, event)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for their pumps to exit or
// ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) connectionContext(connectionID string) context.Context {
	return logging.WithConnectionID(context.Background(), connectionID)
}

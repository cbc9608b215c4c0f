package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/petcare-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/petcare-backend/internal/auth"
	"github.com/lorrc/petcare-backend/internal/config"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	hub          *wsAdapter.Hub
	tm           *auth.TokenManager
	upgrader     websocket.Upgrader
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	cfg *config.Config,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:          hub,
		tm:           tm,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		if originAllowed(allowedOrigins, parsedOrigin.Host) {
			return true
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles WebSocket connection requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Enabled() {
		h.errorHandler.Handle(w, r, apperrors.NewNotFoundError(apperrors.ErrNotFound, "websocket transport is disabled"))
		return
	}

	// 1. A session token is optional; without one the connection starts as a guest
	assignment := domain.Guest()
	if tokenString := r.URL.Query().Get("token"); tokenString != "" {
		claims, err := h.tm.ValidateToken(tokenString)
		if err != nil {
			h.logger.WarnContext(r.Context(), "websocket connection rejected: invalid token",
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			h.errorHandler.Handle(w, r, apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials))
			return
		}
		assignment = claims.Assignment()
	}

	// 2. Upgrade the connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to upgrade websocket connection",
			"error", err,
		)
		return
	}

	// 3. Hand the connection to the hub, which starts the I/O pumps
	connectionID := h.hub.Serve(conn, assignment)

	h.logger.InfoContext(r.Context(), "websocket connection established",
		"connection_id", connectionID,
		"role", assignment.Role,
		"remote_addr", r.RemoteAddr,
	)
}

// originAllowed matches host against exact entries and "*.example.com"
// wildcards. A wildcard also matches the bare domain.
func originAllowed(allowed []string, host string) bool {
	host = strings.ToLower(host)
	for _, entry := range allowed {
		entry = strings.ToLower(entry)
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}

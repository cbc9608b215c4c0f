package http

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/lorrc/petcare-backend/internal/adapters/primary/validation"
	"github.com/lorrc/petcare-backend/internal/core/domain"
)

const maxConnectionsPageSize = 100

// ConnectionLister exposes the live connection set.
type ConnectionLister interface {
	Snapshot() []domain.ConnectedClient
}

type AdminHandler struct {
	connections  ConnectionLister
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewAdminHandler(connections ConnectionLister, errorHandler *ErrorHandler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		connections:  connections,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "admin"),
	}
}

// RegisterRoutes mounts the admin routes. Callers are expected to guard
// the router with mw.RequireRole(domain.RoleAdmin).
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/connections", h.HandleListConnections)
}

// ConnectionDTO is one live connection as seen by an operator.
type ConnectionDTO struct {
	ConnectionID string         `json:"connectionId"`
	Role         domain.Role    `json:"role"`
	OwnerID      *int64         `json:"ownerId,omitempty"`
	Transport    string         `json:"transport"`
	ConnectedAt  string         `json:"connectedAt"`
	Topics       []domain.Topic `json:"topics"`
}

func toConnectionDTO(c domain.ConnectedClient) ConnectionDTO {
	topics := lo.Keys(c.Topics)
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })

	return ConnectionDTO{
		ConnectionID: c.ConnectionID,
		Role:         c.Role,
		OwnerID:      c.ScopedOwnerID,
		Transport:    string(c.Transport),
		ConnectedAt:  c.ConnectedAt.UTC().Format(time.RFC3339),
		Topics:       topics,
	}
}

// HandleListConnections handles GET /admin/connections
func (h *AdminHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	pagination := validation.ParsePagination(r, maxConnectionsPageSize)

	clients := h.connections.Snapshot()
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].ConnectedAt.Equal(clients[j].ConnectedAt) {
			return clients[i].ConnectionID < clients[j].ConnectionID
		}
		return clients[i].ConnectedAt.Before(clients[j].ConnectedAt)
	})

	total := len(clients)
	start := min(pagination.Offset, total)
	end := min(start+pagination.Limit, total)

	page := lo.Map(clients[start:end], func(c domain.ConnectedClient, _ int) ConnectionDTO {
		return toConnectionDTO(c)
	})

	h.logger.DebugContext(r.Context(), "listed connections", "total", total, "returned", len(page))
	WritePaginated(w, page, pagination.Limit, pagination.Offset, int64(total))
}

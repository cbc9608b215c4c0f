package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/petcare-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/validation"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
)

// OperationCatalog lists the operations a dispatcher knows.
type OperationCatalog interface {
	Operations() []domain.OperationName
}

// OperationHandler runs operation envelopes over plain HTTP for clients
// that only hold a stream open. The caller comes from the session token.
type OperationHandler struct {
	dispatcher   ports.RequestDispatcher
	catalog      OperationCatalog
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewOperationHandler(dispatcher ports.RequestDispatcher, catalog OperationCatalog, errorHandler *ErrorHandler, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{
		dispatcher:   dispatcher,
		catalog:      catalog,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "operations"),
	}
}

func (h *OperationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleDispatch)
	r.Get("/", h.HandleList)
}

func (h *OperationHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[domain.OperationRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = GetRequestID(r.Context())
	}

	assignment := mw.AssignmentFromContext(r.Context())
	caller := ports.Caller{RoleAssignment: assignment}
	ctx := logging.WithCaller(r.Context(), assignment.Role.String(), assignment.ScopedOwnerID)

	resp := h.dispatcher.Dispatch(ctx, caller, *req)
	WriteJSON(w, StatusForCode(resp.Code), resp)
}

func (h *OperationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteList(w, h.catalog.Operations())
}

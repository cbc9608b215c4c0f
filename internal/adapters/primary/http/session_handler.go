package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/petcare-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/validation"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// CredentialResolver checks authentication envelopes without a connection.
type CredentialResolver interface {
	Resolve(ctx context.Context, creds domain.Credentials) (domain.RoleAssignment, error)
}

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	GenerateToken(assignment domain.RoleAssignment) (string, time.Time, error)
}

// SessionHandler exchanges credentials for a session token that the stream
// and operation endpoints accept.
type SessionHandler struct {
	resolver     CredentialResolver
	tokens       SessionIssuer
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewSessionHandler(resolver CredentialResolver, tokens SessionIssuer, errorHandler *ErrorHandler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		resolver:     resolver,
		tokens:       tokens,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "session"),
	}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.HandleCreateSession)
	r.Get("/session", h.HandleGetSession)
}

// SessionResponse describes an issued or presented session.
type SessionResponse struct {
	Token     string      `json:"token,omitempty"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
	Role      domain.Role `json:"role"`
	OwnerID   *int64      `json:"ownerId,omitempty"`
}

func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	creds, err := validation.DecodeAndValidate[domain.Credentials](r)
	if err != nil {
		// Malformed credentials are an authentication failure, not a bad request
		h.errorHandler.Handle(w, r, apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials))
		return
	}

	assignment, err := h.resolver.Resolve(r.Context(), *creds)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(assignment)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "session issued", "role", assignment.Role)
	WriteCreated(w, SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Role:      assignment.Role,
		OwnerID:   assignment.ScopedOwnerID,
	})
}

// HandleGetSession echoes the caller's assignment, guest without a token.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	assignment := mw.AssignmentFromContext(r.Context())
	WriteJSON(w, http.StatusOK, SessionResponse{Role: assignment.Role, OwnerID: assignment.ScopedOwnerID})
}

package http

import (
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/petcare-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/stream"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/validation"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// StreamHandler opens server-sent event streams. The caller's role comes
// from the session token, passed as a bearer header or the access_token
// query parameter; topics come from bookingId and ownerId.
type StreamHandler struct {
	broker       *stream.Broker
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewStreamHandler(broker *stream.Broker, errorHandler *ErrorHandler, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		broker:       broker,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "stream"),
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics, err := requestedTopics(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	err = h.broker.Serve(w, r, mw.AssignmentFromContext(r.Context()), topics)
	if errors.Is(err, stream.ErrDisabled) {
		h.errorHandler.Handle(w, r, apperrors.NewNotFoundError(apperrors.ErrNotFound, "stream transport is disabled"))
		return
	}
	HandleError(w, r, err, h.errorHandler)
}

// requestedTopics reads the optional initial subscription from the query.
func requestedTopics(r *http.Request) ([]domain.Topic, error) {
	bookingID, err := validation.ParseIDQueryParam(r, "bookingId")
	if err != nil {
		return nil, err
	}
	ownerID, err := validation.ParseIDQueryParam(r, "ownerId")
	if err != nil {
		return nil, err
	}
	if bookingID == nil && ownerID == nil {
		return nil, nil
	}

	req := domain.SubscriptionRequest{OwnerID: ownerID}
	if bookingID != nil {
		id := domain.ID(*bookingID)
		req.BookingID = &id
	}
	return req.Topics()
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/core/validation"
)

// Outcome is what an operation handler produces: the result returned to
// the caller and the events to fan out.
type Outcome struct {
	Result any
	Events []domain.Event
}

type operation struct {
	minimumRole domain.Role
	run         func(ctx context.Context, caller ports.Caller, raw json.RawMessage) (Outcome, error)
}

// define binds a typed payload to an operation. The payload is decoded and
// validated before the handler runs.
func define[P any](minimumRole domain.Role, handle func(ctx context.Context, caller ports.Caller, payload P) (Outcome, error)) operation {
	return operation{
		minimumRole: minimumRole,
		run: func(ctx context.Context, caller ports.Caller, raw json.RawMessage) (Outcome, error) {
			payload, err := validation.Decode[P](raw)
			if err != nil {
				return Outcome{}, err
			}
			return handle(ctx, caller, payload)
		},
	}
}

// RequestDispatcher maps operation names onto handlers that read and write
// through storage, then routes the resulting events.
type RequestDispatcher struct {
	operations map[domain.OperationName]operation

	owners   ports.OwnerRepository
	pets     ports.PetRepository
	services ports.ServiceRepository
	bookings ports.BookingRepository
	router   ports.EventRouter
	logger   *slog.Logger
}

var _ ports.RequestDispatcher = (*RequestDispatcher)(nil)

// DispatcherDeps holds the collaborators of a RequestDispatcher.
type DispatcherDeps struct {
	Owners   ports.OwnerRepository
	Pets     ports.PetRepository
	Services ports.ServiceRepository
	Bookings ports.BookingRepository
	Router   ports.EventRouter
	Logger   *slog.Logger
}

// NewRequestDispatcher creates a dispatcher with the full operation set.
func NewRequestDispatcher(deps DispatcherDeps) *RequestDispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &RequestDispatcher{
		owners:   deps.Owners,
		pets:     deps.Pets,
		services: deps.Services,
		bookings: deps.Bookings,
		router:   deps.Router,
		logger:   logger.With("component", "request_dispatcher"),
	}
	d.operations = d.buildOperations()
	return d
}

// Operations lists the registered operation names in lexical order.
func (d *RequestDispatcher) Operations() []domain.OperationName {
	names := make([]domain.OperationName, 0, len(d.operations))
	for name := range d.operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs one operation for caller. The response goes to the caller
// only; resulting events are routed separately.
func (d *RequestDispatcher) Dispatch(ctx context.Context, caller ports.Caller, req domain.OperationRequest) domain.OperationResponse {
	start := time.Now()
	name := string(req.Operation)

	if req.Operation == "" {
		return d.fail(ctx, caller, req, apperrors.NewValidationError(apperrors.ErrOperationRequired, "operation name is required", nil), start)
	}

	op, ok := d.operations[req.Operation]
	if !ok {
		return d.fail(ctx, caller, req, apperrors.NewValidationError(
			apperrors.ErrUnknownOperation, fmt.Sprintf("unknown operation %q", name), nil), start)
	}

	if !caller.Role.AtLeast(op.minimumRole) {
		return d.fail(ctx, caller, req, apperrors.NewAuthorizationError(
			fmt.Sprintf("%s requires the %s role", name, op.minimumRole)), start)
	}

	outcome, err := op.run(ctx, caller, req.Data)
	if err != nil {
		return d.fail(ctx, caller, req, err, start)
	}

	var data json.RawMessage
	if outcome.Result != nil {
		data, err = json.Marshal(outcome.Result)
		if err != nil {
			return d.fail(ctx, caller, req, fmt.Errorf("encode %s result: %w", name, err), start)
		}
	}

	// Fan-out outlives the request that triggered it.
	routeCtx := context.WithoutCancel(ctx)
	for _, event := range outcome.Events {
		d.router.Route(routeCtx, domain.WithRequestID(event, req.RequestID))
	}

	recordOperation(name, ResultSuccess, time.Since(start))
	return domain.OperationResponse{Success: true, Data: data, RequestID: req.RequestID}
}

func (d *RequestDispatcher) fail(ctx context.Context, caller ports.Caller, req domain.OperationRequest, err error, start time.Time) domain.OperationResponse {
	appErr := apperrors.Classify(err)

	result := ResultFailure
	if appErr.Code == apperrors.CodeAuthorization || appErr.Code == apperrors.CodeAuthentication {
		result = ResultDenied
	}
	recordOperation(string(req.Operation), result, time.Since(start))

	attrs := []any{
		"operation", req.Operation,
		"request_id", req.RequestID,
		"connection_id", caller.ConnectionID,
		"code", appErr.Code,
		"error", err,
	}
	if appErr.StatusCode >= 500 {
		d.logger.ErrorContext(ctx, "operation failed", attrs...)
	} else {
		d.logger.InfoContext(ctx, "operation rejected", attrs...)
	}

	return domain.OperationResponse{
		Success:   false,
		Error:     appErr.Error(),
		Code:      appErr.Code,
		RequestID: req.RequestID,
	}
}

// ownerScope picks the owner an operation acts on and checks the caller
// may access it. Customers default to their own scope.
func ownerScope(caller ports.Caller, requested *int64) (int64, error) {
	var ownerID int64
	switch {
	case requested != nil:
		ownerID = *requested
	default:
		scope, ok := caller.OwnerScope()
		if !ok {
			errs := apperrors.NewValidationErrors()
			errs.Add("ownerId", "This field is required")
			return 0, errs
		}
		ownerID = scope
	}

	if d := CanAccessOwner(caller.RoleAssignment, ownerID); !d.Allowed {
		return 0, apperrors.NewAuthorizationError(d.Reason)
	}
	return ownerID, nil
}

package ports

import (
	"context"

	"github.com/lorrc/petcare-backend/internal/core/domain"
)

// Deliverer writes one fan-out envelope to one connection. Implementations
// never retry; a returned error means the connection is unusable.
type Deliverer interface {
	Deliver(ctx context.Context, connectionID string, envelope domain.EventEnvelope) error
}

// SecretVerifier checks the shared admin secret.
type SecretVerifier interface {
	Verify(secret string) bool
}

// ClientRegistry tracks live connections, their roles and topic memberships.
type ClientRegistry interface {
	Register(connectionID string, transport domain.Transport)
	Authenticate(ctx context.Context, connectionID string, creds domain.Credentials) (domain.RoleAssignment, error)
	Elevate(connectionID string, assignment domain.RoleAssignment) (domain.RoleAssignment, error)
	Subscribe(ctx context.Context, connectionID string, topic domain.Topic) error
	SubscribeAll(ctx context.Context, connectionID string, topics []domain.Topic) error
	Unsubscribe(connectionID string, topic domain.Topic) error
	Unregister(connectionID string)
	Get(connectionID string) (domain.ConnectedClient, bool)
	Snapshot() []domain.ConnectedClient
}

// RouteReport summarizes one fan-out.
type RouteReport struct {
	Kind       domain.EventKind
	Recipients int
	Delivered  int
	Failed     int
}

// EventRouter fans domain events out to eligible connections.
type EventRouter interface {
	Route(ctx context.Context, event domain.Event) RouteReport
}

// Caller identifies who issued an operation.
type Caller struct {
	ConnectionID string
	domain.RoleAssignment
}

// RequestDispatcher runs named operations on behalf of a caller.
type RequestDispatcher interface {
	Dispatch(ctx context.Context, caller Caller, req domain.OperationRequest) domain.OperationResponse
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

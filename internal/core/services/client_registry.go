package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/core/validation"
	"github.com/samber/lo"
)

type clientEntry struct {
	assignment  domain.RoleAssignment
	transport   domain.Transport
	connectedAt time.Time
	topics      map[domain.Topic]struct{}
}

// ClientRegistry is the authoritative in-memory view of live connections.
// All state sits behind one mutex; storage lookups always happen before
// the lock is taken.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*clientEntry

	owners   ports.OwnerRepository
	bookings ports.BookingRepository
	secret   ports.SecretVerifier
	logger   *slog.Logger
}

var _ ports.ClientRegistry = (*ClientRegistry)(nil)

// NewClientRegistry creates an empty registry.
func NewClientRegistry(
	owners ports.OwnerRepository,
	bookings ports.BookingRepository,
	secret ports.SecretVerifier,
	logger *slog.Logger,
) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientRegistry{
		clients:  make(map[string]*clientEntry),
		owners:   owners,
		bookings: bookings,
		secret:   secret,
		logger:   logger.With("component", "client_registry"),
	}
}

// Register inserts a guest entry. Re-registering an id replaces the entry
// and drops its memberships.
func (r *ClientRegistry) Register(connectionID string, transport domain.Transport) {
	r.mu.Lock()
	previous, existed := r.clients[connectionID]
	r.clients[connectionID] = &clientEntry{
		assignment:  domain.Guest(),
		transport:   transport,
		connectedAt: time.Now().UTC(),
		topics:      make(map[domain.Topic]struct{}),
	}
	r.mu.Unlock()

	if existed {
		ConnectedClients.WithLabelValues(string(previous.transport)).Dec()
	}
	ConnectedClients.WithLabelValues(string(transport)).Inc()

	r.logger.Debug("connection registered",
		"connection_id", connectionID,
		"transport", transport,
		"replaced", existed,
	)
}

// Authenticate validates creds and elevates the connection. The
// connection's role either changes in one step or not at all.
func (r *ClientRegistry) Authenticate(ctx context.Context, connectionID string, creds domain.Credentials) (domain.RoleAssignment, error) {
	if _, ok := r.Get(connectionID); !ok {
		return domain.RoleAssignment{}, apperrors.NewNotFoundError(apperrors.ErrConnectionNotFound, "connection not registered")
	}

	assignment, err := r.resolve(ctx, creds)
	if err != nil {
		Authentications.WithLabelValues("none", ResultFailure).Inc()
		r.logger.InfoContext(ctx, "authentication rejected",
			"connection_id", connectionID,
			"error", err,
		)
		return domain.RoleAssignment{}, err
	}

	result, err := r.Elevate(connectionID, assignment)
	if err != nil {
		Authentications.WithLabelValues(assignment.Role.String(), ResultDenied).Inc()
		return domain.RoleAssignment{}, err
	}
	Authentications.WithLabelValues(result.Role.String(), ResultSuccess).Inc()
	return result, nil
}

// Resolve checks creds without touching any connection. It backs the
// session endpoint, whose token is later presented by connectionless
// callers.
func (r *ClientRegistry) Resolve(ctx context.Context, creds domain.Credentials) (domain.RoleAssignment, error) {
	assignment, err := r.resolve(ctx, creds)
	if err != nil {
		Authentications.WithLabelValues("none", ResultFailure).Inc()
		r.logger.InfoContext(ctx, "session authentication rejected", "error", err)
		return domain.RoleAssignment{}, err
	}
	Authentications.WithLabelValues(assignment.Role.String(), ResultSuccess).Inc()
	return assignment, nil
}

func (r *ClientRegistry) resolve(ctx context.Context, creds domain.Credentials) (domain.RoleAssignment, error) {
	if err := validation.Struct(creds); err != nil {
		return domain.RoleAssignment{}, apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials)
	}

	if creds.AdminKey != "" && r.secret != nil && r.secret.Verify(creds.AdminKey) {
		return domain.Admin(), nil
	}

	var (
		owner *domain.Owner
		err   error
	)
	switch {
	case creds.OwnerID != nil:
		if *creds.OwnerID <= 0 {
			return domain.RoleAssignment{}, apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials)
		}
		owner, err = r.owners.GetByID(ctx, *creds.OwnerID)
	case strings.TrimSpace(creds.Email) != "":
		owner, err = r.owners.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	default:
		return domain.RoleAssignment{}, apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials)
	}

	if err != nil {
		if errors.Is(err, apperrors.ErrOwnerNotFound) {
			return domain.RoleAssignment{}, apperrors.NewAuthenticationError(apperrors.ErrInvalidOwner)
		}
		return domain.RoleAssignment{}, fmt.Errorf("resolve owner: %w", err)
	}
	return domain.Customer(owner.ID), nil
}

// Elevate applies an already verified assignment. Downgrades are ignored
// and the current assignment is returned; moving a customer to a
// different owner is rejected.
func (r *ClientRegistry) Elevate(connectionID string, assignment domain.RoleAssignment) (domain.RoleAssignment, error) {
	next := assignment.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[connectionID]
	if !ok {
		return domain.RoleAssignment{}, apperrors.NewNotFoundError(apperrors.ErrConnectionNotFound, "connection not registered")
	}
	current := entry.assignment

	switch {
	case next.Role < current.Role:
		r.logger.Info("ignoring role downgrade",
			"connection_id", connectionID,
			"current_role", current.Role.String(),
			"requested_role", next.Role.String(),
		)
		return current.Normalized(), nil
	case next.Role == domain.RoleCustomer && current.Role == domain.RoleCustomer:
		currentScope, _ := current.OwnerScope()
		nextScope, _ := next.OwnerScope()
		if currentScope != nextScope {
			return current.Normalized(), apperrors.NewAuthorizationError(
				fmt.Sprintf("connection is already scoped to owner %d", currentScope))
		}
		return current.Normalized(), nil
	case next.Role == current.Role:
		return current.Normalized(), nil
	}

	entry.assignment = next
	r.logger.Info("connection authenticated",
		"connection_id", connectionID,
		"role", next.Role.String(),
	)
	return next.Normalized(), nil
}

// Subscribe adds topic membership after Authorizer approval. A denial
// leaves the registry untouched.
func (r *ClientRegistry) Subscribe(ctx context.Context, connectionID string, topic domain.Topic) error {
	return r.SubscribeAll(ctx, connectionID, []domain.Topic{topic})
}

// SubscribeAll authorizes every topic before taking the lock and then
// inserts them together. One denial rejects the whole request.
func (r *ClientRegistry) SubscribeAll(ctx context.Context, connectionID string, topics []domain.Topic) error {
	client, ok := r.Get(connectionID)
	if !ok {
		return apperrors.NewNotFoundError(apperrors.ErrConnectionNotFound, "connection not registered")
	}

	for _, topic := range topics {
		if err := r.authorizeTopic(ctx, client, topic); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[connectionID]
	if !ok {
		return apperrors.NewNotFoundError(apperrors.ErrConnectionNotFound, "connection not registered")
	}
	for _, topic := range topics {
		entry.topics[topic] = struct{}{}
	}
	return nil
}

func (r *ClientRegistry) authorizeTopic(ctx context.Context, client domain.ConnectedClient, topic domain.Topic) error {
	kind, id, err := domain.ParseTopic(string(topic))
	if err != nil {
		return err
	}

	var bookingOwnerID *int64
	if kind == domain.TopicBooking && client.Role == domain.RoleCustomer {
		booking, err := r.bookings.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrBookingNotFound) {
				return apperrors.NewNotFoundError(err, fmt.Sprintf("booking %d not found", id))
			}
			return fmt.Errorf("resolve booking owner: %w", err)
		}
		bookingOwnerID = &booking.OwnerID
	}

	if d := CanSubscribe(client.RoleAssignment, topic, bookingOwnerID); !d.Allowed {
		r.logger.Info("subscription denied",
			"connection_id", client.ConnectionID,
			"topic", topic,
			"reason", d.Reason,
		)
		return apperrors.NewAuthorizationError(d.Reason)
	}
	return nil
}

// Unsubscribe removes topic membership. Leaving a topic the connection
// never joined is not an error.
func (r *ClientRegistry) Unsubscribe(connectionID string, topic domain.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[connectionID]
	if !ok {
		return apperrors.NewNotFoundError(apperrors.ErrConnectionNotFound, "connection not registered")
	}
	delete(entry.topics, topic)
	return nil
}

// Unregister removes the connection and its memberships. Safe to call
// more than once.
func (r *ClientRegistry) Unregister(connectionID string) {
	r.mu.Lock()
	entry, ok := r.clients[connectionID]
	delete(r.clients, connectionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	ConnectedClients.WithLabelValues(string(entry.transport)).Dec()
	r.logger.Debug("connection unregistered", "connection_id", connectionID)
}

// Get returns a copy of one connection.
func (r *ClientRegistry) Get(connectionID string) (domain.ConnectedClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.clients[connectionID]
	if !ok {
		return domain.ConnectedClient{}, false
	}
	return entry.snapshot(connectionID), true
}

// Snapshot returns copies of every connection ordered by id.
func (r *ClientRegistry) Snapshot() []domain.ConnectedClient {
	r.mu.RLock()
	clients := lo.MapToSlice(r.clients, func(id string, entry *clientEntry) domain.ConnectedClient {
		return entry.snapshot(id)
	})
	r.mu.RUnlock()

	slices.SortFunc(clients, func(a, b domain.ConnectedClient) int {
		return strings.Compare(a.ConnectionID, b.ConnectionID)
	})
	return clients
}

// Count returns the number of registered connections.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// TopicCount returns the number of connections subscribed to topic.
func (r *ClientRegistry) TopicCount(topic domain.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.CountBy(lo.Values(r.clients), func(entry *clientEntry) bool {
		_, ok := entry.topics[topic]
		return ok
	})
}

func (e *clientEntry) snapshot(connectionID string) domain.ConnectedClient {
	topics := make(map[domain.Topic]struct{}, len(e.topics))
	for topic := range e.topics {
		topics[topic] = struct{}{}
	}
	return domain.ConnectedClient{
		ConnectionID:   connectionID,
		RoleAssignment: e.assignment.Normalized(),
		Transport:      e.transport,
		ConnectedAt:    e.connectedAt,
		Topics:         topics,
	}
}

package domain

import "time"

// Transport names the adapter a connection is attached to.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportStream    Transport = "stream"
	TransportWebhook   Transport = "webhook"
)

// RoleAssignment is the outcome of authentication: a role and, for
// customers only, the owner the connection is scoped to.
type RoleAssignment struct {
	Role          Role   `json:"role"`
	ScopedOwnerID *int64 `json:"ownerId,omitempty"`
}

// Guest returns the assignment every connection starts with.
func Guest() RoleAssignment {
	return RoleAssignment{Role: RoleGuest}
}

// Admin returns an admin assignment.
func Admin() RoleAssignment {
	return RoleAssignment{Role: RoleAdmin}
}

// Customer returns an assignment scoped to ownerID.
func Customer(ownerID int64) RoleAssignment {
	return RoleAssignment{Role: RoleCustomer, ScopedOwnerID: &ownerID}
}

// OwnerScope returns the scoped owner id, if any.
func (a RoleAssignment) OwnerScope() (int64, bool) {
	if a.Role != RoleCustomer || a.ScopedOwnerID == nil {
		return 0, false
	}
	return *a.ScopedOwnerID, true
}

// Normalized enforces that a scope is present iff the role is customer.
func (a RoleAssignment) Normalized() RoleAssignment {
	if a.Role != RoleCustomer {
		return RoleAssignment{Role: a.Role}
	}
	if a.ScopedOwnerID == nil {
		return Guest()
	}
	id := *a.ScopedOwnerID
	return RoleAssignment{Role: RoleCustomer, ScopedOwnerID: &id}
}

// ConnectedClient is one live session. Values handed out by the registry
// are copies; mutating them has no effect on the registry.
type ConnectedClient struct {
	ConnectionID string
	RoleAssignment
	Transport   Transport
	ConnectedAt time.Time
	Topics      map[Topic]struct{}
}

// SubscribedTo reports whether the client is a member of topic.
func (c ConnectedClient) SubscribedTo(topic Topic) bool {
	_, ok := c.Topics[topic]
	return ok
}

// Credentials is the authentication envelope sent by a client.
type Credentials struct {
	AdminKey string `json:"adminKey,omitempty"`
	OwnerID  *int64 `json:"ownerId,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

// Empty reports whether no credential field was supplied.
func (c Credentials) Empty() bool {
	return c.AdminKey == "" && c.OwnerID == nil && c.Email == ""
}

package services

import (
	"fmt"

	"github.com/lorrc/petcare-backend/internal/core/domain"
)

// Decision is the outcome of an authorization check. Denials always carry
// a reason that can be shown to the caller.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// CanAccessOwner allows admins, and customers scoped to targetOwnerID.
func CanAccessOwner(client domain.RoleAssignment, targetOwnerID int64) Decision {
	switch client.Role {
	case domain.RoleAdmin:
		return allow()
	case domain.RoleCustomer:
		scope, ok := client.OwnerScope()
		if !ok {
			return deny("customer connection has no owner scope")
		}
		if scope != targetOwnerID {
			return deny("owner %d is outside your scope", targetOwnerID)
		}
		return allow()
	default:
		return deny("authentication required")
	}
}

// CanSubscribe decides topic membership. For booking topics the caller
// resolves the booking's owner beforehand; bookingOwnerID is ignored for
// owner topics.
func CanSubscribe(client domain.RoleAssignment, topic domain.Topic, bookingOwnerID *int64) Decision {
	kind, id, err := domain.ParseTopic(string(topic))
	if err != nil {
		return deny("invalid topic %q", topic)
	}

	switch kind {
	case domain.TopicOwner:
		return CanAccessOwner(client, id)
	case domain.TopicBooking:
		if client.Role == domain.RoleAdmin {
			return allow()
		}
		if client.Role != domain.RoleCustomer {
			return deny("authentication required")
		}
		if bookingOwnerID == nil {
			return deny("booking %d owner could not be resolved", id)
		}
		if d := CanAccessOwner(client, *bookingOwnerID); !d.Allowed {
			return deny("booking %d belongs to another owner", id)
		}
		return allow()
	default:
		return deny("unsupported topic %q", topic)
	}
}

// Audience is the role bar for an event kind. Targeted events bypass role
// filtering and go to a single connection.
type Audience struct {
	MinimumRole domain.Role
	Targeted    bool
}

// AudienceFor returns the audience of an event kind.
func AudienceFor(kind domain.EventKind) Audience {
	switch kind {
	case domain.EventNotification, domain.EventAvailabilityUpdate:
		return Audience{MinimumRole: domain.RoleGuest}
	case domain.EventBookingUpdate, domain.EventOwnerUpdate:
		return Audience{MinimumRole: domain.RoleCustomer}
	case domain.EventError:
		return Audience{Targeted: true}
	default:
		// Unknown kinds are restricted to staff.
		return Audience{MinimumRole: domain.RoleAdmin}
	}
}

// CanReceive decides whether client is a recipient of event.
func CanReceive(client domain.ConnectedClient, event domain.Event) bool {
	audience := AudienceFor(event.Kind())
	if audience.Targeted {
		target, ok := event.(domain.ErrorEvent)
		return ok && target.TargetConnectionID == client.ConnectionID
	}

	minimum := audience.MinimumRole
	if n, ok := event.(domain.Notification); ok && n.MinimumRole > minimum {
		minimum = n.MinimumRole
	}
	if !client.Role.AtLeast(minimum) {
		return false
	}

	if ownerID, scoped := domain.OwnerOf(event); scoped {
		return CanAccessOwner(client.RoleAssignment, ownerID).Allowed
	}
	return true
}

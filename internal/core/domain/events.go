package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names a DomainEvent variant on the wire.
type EventKind string

const (
	EventNotification       EventKind = "notification"
	EventBookingUpdate      EventKind = "bookingUpdate"
	EventAvailabilityUpdate EventKind = "availabilityUpdate"
	EventOwnerUpdate        EventKind = "ownerUpdate"
	EventError              EventKind = "error"
)

// EventMeta is carried by every event.
type EventMeta struct {
	CreatedAt time.Time
	RequestID string
}

// Event is the closed set of domain events routed to connected clients.
// The unexported method keeps the set closed to this package.
type Event interface {
	Kind() EventKind
	Meta() EventMeta
	isEvent()
}

// Notification is broadcast to every client at or above MinimumRole.
type Notification struct {
	EventMeta
	Message     string
	Level       string
	MinimumRole Role
}

// BookingAction describes what happened to a booking.
type BookingAction string

const (
	BookingCreated       BookingAction = "created"
	BookingStatusChanged BookingAction = "statusChanged"
	BookingWasCancelled  BookingAction = "cancelled"
)

// BookingUpdate reports a booking change to admins and the owning customer.
type BookingUpdate struct {
	EventMeta
	BookingID      int64
	OwnerID        int64
	Action         BookingAction
	Status         BookingStatus
	PreviousStatus BookingStatus
	Booking        *Booking
}

// AvailabilityUpdate reports a capacity change for a service over the
// inclusive date range [Date, Through].
type AvailabilityUpdate struct {
	EventMeta
	ServiceID int64
	Date      time.Time
	Through   time.Time
}

// OwnerAction describes what happened to an owner's records.
type OwnerAction string

const (
	OwnerProfileUpdated OwnerAction = "profileUpdated"
	OwnerPetAdded       OwnerAction = "petAdded"
)

// OwnerUpdate reports a change to an owner's profile or pets.
type OwnerUpdate struct {
	EventMeta
	OwnerID int64
	Action  OwnerAction
	Fields  []string
	Owner   *Owner
	Pet     *Pet
}

// ErrorEvent is delivered to exactly one connection, whatever its role.
type ErrorEvent struct {
	EventMeta
	TargetConnectionID string
	Code               string
	Message            string
}

func (Notification) Kind() EventKind       { return EventNotification }
func (BookingUpdate) Kind() EventKind      { return EventBookingUpdate }
func (AvailabilityUpdate) Kind() EventKind { return EventAvailabilityUpdate }
func (OwnerUpdate) Kind() EventKind        { return EventOwnerUpdate }
func (ErrorEvent) Kind() EventKind         { return EventError }

func (e EventMeta) Meta() EventMeta { return e }

func (Notification) isEvent()       {}
func (BookingUpdate) isEvent()      {}
func (AvailabilityUpdate) isEvent() {}
func (OwnerUpdate) isEvent()        {}
func (ErrorEvent) isEvent()         {}

func newMeta() EventMeta {
	return EventMeta{CreatedAt: time.Now().UTC()}
}

// NewNotification builds a broadcast notification.
func NewNotification(message, level string, minimumRole Role) Notification {
	if level == "" {
		level = "info"
	}
	return Notification{EventMeta: newMeta(), Message: message, Level: level, MinimumRole: minimumRole}
}

// NewBookingUpdate builds a booking event from the booking's current state.
func NewBookingUpdate(action BookingAction, booking *Booking, previous BookingStatus) BookingUpdate {
	return BookingUpdate{
		EventMeta:      newMeta(),
		BookingID:      booking.ID,
		OwnerID:        booking.OwnerID,
		Action:         action,
		Status:         booking.Status,
		PreviousStatus: previous,
		Booking:        booking,
	}
}

// NewAvailabilityUpdate builds a capacity change event for a date range.
func NewAvailabilityUpdate(serviceID int64, from, through time.Time) AvailabilityUpdate {
	return AvailabilityUpdate{EventMeta: newMeta(), ServiceID: serviceID, Date: from, Through: through}
}

// NewOwnerProfileUpdate builds an event for edited owner fields.
func NewOwnerProfileUpdate(owner *Owner, fields []string) OwnerUpdate {
	return OwnerUpdate{EventMeta: newMeta(), OwnerID: owner.ID, Action: OwnerProfileUpdated, Fields: fields, Owner: owner}
}

// NewPetAdded builds an event for a newly registered pet.
func NewPetAdded(pet *Pet) OwnerUpdate {
	return OwnerUpdate{EventMeta: newMeta(), OwnerID: pet.OwnerID, Action: OwnerPetAdded, Pet: pet}
}

// NewErrorEvent builds an event for a single connection.
func NewErrorEvent(connectionID, code, message string) ErrorEvent {
	return ErrorEvent{EventMeta: newMeta(), TargetConnectionID: connectionID, Code: code, Message: message}
}

// WithRequestID returns a copy of event correlated with requestID.
func WithRequestID(event Event, requestID string) Event {
	switch e := event.(type) {
	case Notification:
		e.RequestID = requestID
		return e
	case BookingUpdate:
		e.RequestID = requestID
		return e
	case AvailabilityUpdate:
		e.RequestID = requestID
		return e
	case OwnerUpdate:
		e.RequestID = requestID
		return e
	case ErrorEvent:
		e.RequestID = requestID
		return e
	default:
		panic(fmt.Sprintf("unhandled event type %T", event))
	}
}

// OwnerOf returns the owner identity carried by owner-scoped events.
func OwnerOf(event Event) (int64, bool) {
	switch e := event.(type) {
	case BookingUpdate:
		return e.OwnerID, true
	case OwnerUpdate:
		return e.OwnerID, true
	default:
		return 0, false
	}
}

// EventEnvelope is the fan-out frame every subscriber receives.
type EventEnvelope struct {
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewEnvelope renders event into its wire envelope.
func NewEnvelope(event Event) (EventEnvelope, error) {
	var payload any
	switch e := event.(type) {
	case Notification:
		payload = NotificationPayload{Message: e.Message, Level: e.Level}
	case BookingUpdate:
		payload = newBookingUpdatePayload(e)
	case AvailabilityUpdate:
		payload = AvailabilityPayload{
			ServiceID: e.ServiceID,
			Date:      e.Date.Format(DateLayout),
			Through:   e.Through.Format(DateLayout),
		}
	case OwnerUpdate:
		payload = newOwnerUpdatePayload(e)
	case ErrorEvent:
		payload = ErrorPayload{Code: e.Code, Message: e.Message}
	default:
		return EventEnvelope{}, fmt.Errorf("unhandled event type %T", event)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s payload: %w", event.Kind(), err)
	}

	meta := event.Meta()
	return EventEnvelope{
		Kind:      event.Kind(),
		Payload:   raw,
		Timestamp: meta.CreatedAt.UTC().Format(time.RFC3339),
		RequestID: meta.RequestID,
	}, nil
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// ID is a numeric identifier that accepts both JSON numbers and numeric
// strings, since browser clients send booking ids either way.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			return nil
		}
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", string(data))
	}
	*id = ID(v)
	return nil
}

// Int64 returns the id as a plain integer.
func (id ID) Int64() int64 {
	return int64(id)
}

// TopicKind is the resource family a topic routes on.
type TopicKind string

const (
	TopicBooking TopicKind = "booking"
	TopicOwner   TopicKind = "owner"
)

// Topic is a routing key of the form "booking:<id>" or "owner:<id>".
type Topic string

var ErrInvalidTopic = apperrors.ErrInvalidTopic

// BookingTopic returns the topic for a booking.
func BookingTopic(bookingID int64) Topic {
	return Topic(fmt.Sprintf("%s:%d", TopicBooking, bookingID))
}

// OwnerTopic returns the topic for an owner.
func OwnerTopic(ownerID int64) Topic {
	return Topic(fmt.Sprintf("%s:%d", TopicOwner, ownerID))
}

// ParseTopic splits a topic into its kind and id.
func ParseTopic(s string) (TopicKind, int64, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	switch TopicKind(kind) {
	case TopicBooking, TopicOwner:
		return TopicKind(kind), id, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
}

// Kind returns the resource family of the topic, or "" when malformed.
func (t Topic) Kind() TopicKind {
	kind, _, err := ParseTopic(string(t))
	if err != nil {
		return ""
	}
	return kind
}

// ID returns the resource id of the topic, or 0 when malformed.
func (t Topic) ID() int64 {
	_, id, err := ParseTopic(string(t))
	if err != nil {
		return 0
	}
	return id
}

// SubscriptionRequest is the envelope a client sends to join topics.
type SubscriptionRequest struct {
	BookingID *ID    `json:"bookingId,omitempty"`
	OwnerID   *int64 `json:"ownerId,omitempty"`
}

// ErrEmptySubscription is returned when neither identifier is present.
var ErrEmptySubscription = apperrors.ErrEmptySubscription

// Topics converts the request into topics, booking first.
func (r SubscriptionRequest) Topics() ([]Topic, error) {
	topics := make([]Topic, 0, 2)
	if r.BookingID != nil {
		if *r.BookingID <= 0 {
			return nil, fmt.Errorf("%w: bookingId must be positive", ErrInvalidTopic)
		}
		topics = append(topics, BookingTopic(r.BookingID.Int64()))
	}
	if r.OwnerID != nil {
		if *r.OwnerID <= 0 {
			return nil, fmt.Errorf("%w: ownerId must be positive", ErrInvalidTopic)
		}
		topics = append(topics, OwnerTopic(*r.OwnerID))
	}
	if len(topics) == 0 {
		return nil, ErrEmptySubscription
	}
	return topics, nil
}

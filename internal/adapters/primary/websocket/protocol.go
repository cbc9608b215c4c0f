package websocket

import (
	"encoding/json"

	"github.com/lorrc/petcare-backend/internal/core/domain"
)

// FrameType names a request or acknowledgement frame. Fan-out events are
// written as domain.EventEnvelope values and carry "kind" instead.
type FrameType string

const (
	FrameAuthenticate FrameType = "authenticate"
	FrameSubscribe    FrameType = "subscribe"
	FrameUnsubscribe  FrameType = "unsubscribe"
	FrameOperation    FrameType = "operation"
	FramePing         FrameType = "ping"

	FrameAuthenticated FrameType = "authenticated"
	FrameSubscribed    FrameType = "subscribed"
	FrameUnsubscribed  FrameType = "unsubscribed"
	FrameResponse      FrameType = "response"
	FramePong          FrameType = "pong"
)

// InboundFrame is the structure for frames sent by the client.
type InboundFrame struct {
	Type      FrameType       `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// OutboundFrame acknowledges one inbound frame.
type OutboundFrame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// AuthenticatedPayload is the body of an authenticated frame. Token can be
// presented later to the stream endpoint or the HTTP operation endpoint.
type AuthenticatedPayload struct {
	Role      domain.Role `json:"role"`
	OwnerID   *int64      `json:"ownerId,omitempty"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

// TopicsPayload lists the topics a subscribe or unsubscribe frame touched.
type TopicsPayload struct {
	Topics []domain.Topic `json:"topics"`
}

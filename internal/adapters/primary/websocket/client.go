package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
	"github.com/lorrc/petcare-backend/internal/core/ports"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

var errClientClosed = errors.New("websocket client closed")

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	cfg  Config

	// Buffered channel of outbound frames. Only writePump writes to conn.
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool

	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, id string, cfg Config, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		id:      id,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBufferSize),
		limiter: limiter,
		logger:  hub.logger.With("connection_id", id),
	}
}

// enqueue marshals v and queues it without blocking.
func (c *Client) enqueue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return apperrors.ErrTransportBackedUp
	}
}

// close closes the send channel exactly once; writePump then closes the
// socket.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the websocket connection to the core.
// This method runs in its own goroutine.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	base := c.hub.connectionContext(c.id)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		c.handleFrame(base, message)
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("failed to write message", "error", err)
				c.hub.disconnect(c)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				c.hub.disconnect(c)
				return
			}
		}
	}
}

// --- Incoming Frame Handling ---

// handleFrame processes one frame received from the client. Failures are
// answered to this connection only and never close it.
func (c *Client) handleFrame(base context.Context, message []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.hub.reportError(base, c.id, "", apperrors.NewValidationError(apperrors.ErrMalformedMessage, "Malformed frame", nil))
		return
	}

	ctx := logging.WithRequestID(base, frame.RequestID)
	if !c.limiter.Allow() {
		c.hub.reportError(ctx, c.id, frame.RequestID, apperrors.NewRateLimitError())
		return
	}

	var err error
	switch frame.Type {
	case FrameAuthenticate:
		err = c.handleAuthenticate(ctx, frame)
	case FrameSubscribe:
		err = c.handleSubscribe(ctx, frame)
	case FrameUnsubscribe:
		err = c.handleUnsubscribe(ctx, frame)
	case FrameOperation:
		err = c.handleOperation(ctx, frame)
	case FramePing:
		err = c.reply(FramePong, frame.RequestID, nil)
	case "":
		err = apperrors.NewValidationError(apperrors.ErrMalformedMessage, "Frame type is required", nil)
	default:
		err = apperrors.NewValidationError(apperrors.ErrMalformedMessage, fmt.Sprintf("Unknown frame type %q", frame.Type), nil)
	}

	if err != nil {
		if errors.Is(err, errClientClosed) {
			return
		}
		c.hub.reportError(ctx, c.id, frame.RequestID, err)
	}
}

func (c *Client) handleAuthenticate(ctx context.Context, frame InboundFrame) error {
	var creds domain.Credentials
	if len(frame.Payload) == 0 || json.Unmarshal(frame.Payload, &creds) != nil {
		return apperrors.NewAuthenticationError(apperrors.ErrInvalidCredentials)
	}

	assignment, err := c.hub.registry.Authenticate(ctx, c.id, creds)
	if err != nil {
		return err
	}

	ack := AuthenticatedPayload{Role: assignment.Role, OwnerID: assignment.ScopedOwnerID}
	if c.hub.tokens != nil && assignment.Role != domain.RoleGuest {
		token, expiresAt, err := c.hub.tokens.GenerateToken(assignment)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to issue session token", "error", err)
		} else {
			ack.Token = token
			ack.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
		}
	}
	return c.reply(FrameAuthenticated, frame.RequestID, ack)
}

func (c *Client) handleSubscribe(ctx context.Context, frame InboundFrame) error {
	topics, err := decodeTopics(frame.Payload)
	if err != nil {
		return err
	}
	if err := c.hub.registry.SubscribeAll(ctx, c.id, topics); err != nil {
		return err
	}
	return c.reply(FrameSubscribed, frame.RequestID, TopicsPayload{Topics: topics})
}

func (c *Client) handleUnsubscribe(ctx context.Context, frame InboundFrame) error {
	topics, err := decodeTopics(frame.Payload)
	if err != nil {
		return err
	}
	for _, topic := range topics {
		if err := c.hub.registry.Unsubscribe(c.id, topic); err != nil {
			return err
		}
	}
	return c.reply(FrameUnsubscribed, frame.RequestID, TopicsPayload{Topics: topics})
}

func (c *Client) handleOperation(ctx context.Context, frame InboundFrame) error {
	var req domain.OperationRequest
	if len(frame.Payload) == 0 || json.Unmarshal(frame.Payload, &req) != nil {
		return apperrors.NewValidationError(apperrors.ErrMalformedMessage, "Malformed operation envelope", nil)
	}
	if frame.RequestID != "" {
		req.RequestID = frame.RequestID
	}

	client, ok := c.hub.registry.Get(c.id)
	if !ok {
		return errClientClosed
	}
	caller := ports.Caller{ConnectionID: c.id, RoleAssignment: client.RoleAssignment}
	ctx = logging.WithCaller(ctx, client.Role.String(), client.ScopedOwnerID)

	resp := c.hub.dispatcher.Dispatch(ctx, caller, req)
	return c.reply(FrameResponse, req.RequestID, resp)
}

// reply queues an acknowledgement for this connection only.
func (c *Client) reply(frameType FrameType, requestID string, payload any) error {
	err := c.enqueue(OutboundFrame{Type: frameType, RequestID: requestID, Payload: payload})
	if err != nil && !errors.Is(err, errClientClosed) {
		c.logger.Warn("failed to queue reply", "type", frameType, "error", err)
		c.close()
	}
	return nil
}

func decodeTopics(payload json.RawMessage) ([]domain.Topic, error) {
	var req domain.SubscriptionRequest
	if len(payload) == 0 || json.Unmarshal(payload, &req) != nil {
		return nil, apperrors.NewValidationError(apperrors.ErrMalformedMessage, "Malformed subscription envelope", nil)
	}
	topics, err := req.Topics()
	if err != nil {
		return nil, apperrors.NewValidationError(err, err.Error(), nil)
	}
	return topics, nil
}

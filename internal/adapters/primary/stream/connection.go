package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lorrc/petcare-backend/internal/core/domain"
	apperrors "github.com/lorrc/petcare-backend/internal/core/errors"
)

// State is the lifecycle of one stream connection.
type State int

const (
	StateOpen State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection is one long-held event stream. Frames are queued by Deliver
// and written only by the goroutine serving the request.
type Connection struct {
	id string

	mu        sync.Mutex
	state     State
	seq       uint64
	send      chan []byte
	done      chan struct{}
	keepalive Ticker
	heartbeat Ticker
}

func newConnection(id string, buffer int) *Connection {
	return &Connection{
		id:    id,
		state: StateOpen,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// startStreaming installs both tickers and moves Open to Streaming. It
// reports false when the connection closed first; the tickers are then
// never started.
func (c *Connection) startStreaming(newTicker TickerFactory, cfg Config) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false
	}
	c.keepalive = newTicker(cfg.KeepaliveInterval)
	c.heartbeat = newTicker(cfg.HeartbeatInterval)
	c.state = StateStreaming
	return true
}

// close marks the connection Closed and stops both tickers in the same
// critical section. It reports whether this call did the transition.
func (c *Connection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() bool {
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	if c.keepalive != nil {
		c.keepalive.Stop()
	}
	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	close(c.done)
	return true
}

// enqueue queues envelope as an SSE event. A closed connection ignores it;
// a full buffer closes the connection.
func (c *Connection) enqueue(envelope domain.EventEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}

	c.seq++
	frame := formatEvent(fmt.Sprintf("%d", c.seq), string(envelope.Kind), data)
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return apperrors.NewTransportError(apperrors.ErrTransportBackedUp, c.id)
	}
}

// tickerChannels returns the channels of the installed tickers.
func (c *Connection) tickerChannels() (keepalive, heartbeat <-chan time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepalive.C(), c.heartbeat.C()
}

// formatEvent renders one SSE event. Multi-line data is split across data
// fields.
func formatEvent(id, event string, data []byte) []byte {
	var buf bytes.Buffer
	if id != "" {
		fmt.Fprintf(&buf, "id: %s\n", id)
	}
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

var keepaliveFrame = []byte(": keepalive\n\n")

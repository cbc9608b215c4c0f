package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/ports"
)

// EventHeader names the event kind on every POST.
const EventHeader = "X-Petcare-Event"

// Config holds the subscriber URLs and delivery limits.
type Config struct {
	URLs       []string
	Timeout    time.Duration
	BufferSize int
	Client     *http.Client
}

type delivery struct {
	connectionID string
	url          string
	envelope     domain.EventEnvelope
}

// Notifier is a secondary adapter that forwards fan-out envelopes to HTTP
// endpoints. Each URL is registered as an admin connection on the webhook
// transport, so it receives every event an operator would. Deliveries are
// posted in order by one worker; a failed POST is logged and the
// subscriber stays registered.
type Notifier struct {
	registry ports.ClientRegistry
	client   *http.Client
	urls     []string
	logger   *slog.Logger

	mu      sync.RWMutex
	targets map[string]string
	queue   chan delivery
	started bool

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

var _ ports.Deliverer = (*Notifier)(nil)

// NewNotifier creates a notifier for cfg.URLs. Nothing is registered until
// Start.
func NewNotifier(registry ports.ClientRegistry, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Notifier{
		registry: registry,
		client:   client,
		urls:     cfg.URLs,
		logger:   logger.With("component", "webhook_notifier"),
		targets:  make(map[string]string),
		queue:    make(chan delivery, cfg.BufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start registers one admin connection per URL and starts the worker.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	for _, url := range n.urls {
		id := "webhook-" + uuid.NewString()
		n.registry.Register(id, domain.TransportWebhook)
		if _, err := n.registry.Elevate(id, domain.Admin()); err != nil {
			n.registry.Unregister(id)
			return fmt.Errorf("register webhook %s: %w", url, err)
		}
		n.targets[id] = url
		n.logger.Info("webhook subscriber registered", "connection_id", id, "url", url)
	}

	n.started = true
	go n.run()
	return nil
}

// Deliver queues envelope for the subscriber behind connectionID. A full
// queue drops the envelope with a log line; webhooks are never
// unregistered by the router.
func (n *Notifier) Deliver(ctx context.Context, connectionID string, envelope domain.EventEnvelope) error {
	n.mu.RLock()
	url, ok := n.targets[connectionID]
	n.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case n.queue <- delivery{connectionID: connectionID, url: url, envelope: envelope}:
	default:
		n.logger.WarnContext(ctx, "webhook queue full, dropping event",
			"connection_id", connectionID,
			"kind", envelope.Kind,
		)
	}
	return nil
}

func (n *Notifier) run() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case d := <-n.queue:
			n.post(d)
		}
	}
}

func (n *Notifier) post(d delivery) {
	// Detached from the routing request, which may already be finished
	ctx := context.Background()

	body, err := json.Marshal(d.envelope)
	if err != nil {
		n.logger.Error("failed to encode webhook body", "kind", d.envelope.Kind, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build webhook request", "url", d.url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(d.envelope.Kind))

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"connection_id", d.connectionID,
			"url", d.url,
			"kind", d.envelope.Kind,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected delivery",
			"connection_id", d.connectionID,
			"url", d.url,
			"kind", d.envelope.Kind,
			"status", resp.StatusCode,
		)
		return
	}
	n.logger.Debug("webhook delivered", "url", d.url, "kind", d.envelope.Kind)
}

// Stop unregisters every subscriber and waits for the worker to exit.
// Envelopes still queued are discarded.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		for id := range n.targets {
			n.registry.Unregister(id)
			delete(n.targets, id)
		}
		if !n.started {
			close(n.stopped)
		}
		n.mu.Unlock()
		close(n.done)
	})

	select {
	case <-n.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers returns the number of registered URLs.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.targets)
}

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"patientsync/internal/metrics"
	"patientsync/internal/websocket"
	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// evictionBuffer bounds the queue of dead connections waiting for cleanup.
const evictionBuffer = 100

// Hub is the notification channel. It fans events out to registered
// connections and evicts connections found dead during delivery.
type Hub struct {
	registry *websocket.Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger

	evictions chan interfaces.Connection
	shutdown  chan struct{}
	done      chan struct{}

	running bool
	mu      sync.RWMutex
}

var _ interfaces.Notifier = (*Hub)(nil)

func NewHub(registry *websocket.Registry, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry:  registry,
		metrics:   m,
		logger:    logger.Named("hub"),
		evictions: make(chan interfaces.Connection, evictionBuffer),
	}
}

// Start launches the eviction loop. Delivery is refused until Start is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	h.logger.Info("starting notification hub")
	go h.run(ctx, h.shutdown, h.done)

	return nil
}

// Stop ends the eviction loop and waits for it to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.logger.Info("notification hub stopped")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case conn := <-h.evictions:
			h.registry.UnregisterConnection(conn)
			_ = conn.Close()
			h.logger.Debug("evicted dead connection",
				zap.String("connection_id", conn.ID()),
				zap.String("principal", conn.Principal()))

		case <-shutdown:
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			return
		}
	}
}

// BroadcastAll pushes event to every connected session.
func (h *Hub) BroadcastAll(ctx context.Context, event string, args ...any) error {
	return h.deliver(ctx, event, args, h.registry.AllConnections)
}

// SendToPrincipal pushes event to every session of principal only. An empty
// principal owns no sessions.
func (h *Hub) SendToPrincipal(ctx context.Context, principal string, event string, args ...any) error {
	return h.deliver(ctx, event, args, func() []interfaces.Connection {
		if principal == "" {
			return nil
		}
		return h.registry.PrincipalConnections(principal)
	})
}

// deliver writes one encoded frame to each target connection in parallel.
// Per-connection failures are logged and counted; they never fail the call.
func (h *Hub) deliver(ctx context.Context, event string, args []any, targets func() []interfaces.Connection) error {
	if event == "" {
		return ErrEmptyEvent
	}
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(types.NewEvent(event, args...))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	frame := json.RawMessage(payload)

	conns := targets()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn interfaces.Connection) {
			defer wg.Done()
			h.write(conn, event, frame)
		}(conn)
	}
	wg.Wait()

	h.logger.Debug("event delivered",
		zap.String("event", event),
		zap.Int("connections", len(conns)))
	return nil
}

func (h *Hub) write(conn interfaces.Connection, event string, frame json.RawMessage) {
	err := conn.WriteJSON(frame)
	if err == nil {
		h.metrics.NotificationDelivered(event)
		return
	}

	h.metrics.NotificationFailed(event)
	h.logger.Warn("failed to deliver event",
		zap.String("event", event),
		zap.String("connection_id", conn.ID()),
		zap.String("principal", conn.Principal()),
		zap.Error(err))

	if errors.Is(err, websocket.ErrConnectionClosed) {
		select {
		case h.evictions <- conn:
		default:
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"patientsync/pkg/interfaces"
	"patientsync/pkg/types"
)

// Dispatcher runs an inbound invocation on behalf of caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, caller interfaces.Caller, frame types.Frame) error
}

// Handler upgrades authenticated requests to hub connections and runs their
// read pumps.
type Handler struct {
	cfg        Config
	upgrader   websocket.Upgrader
	registry   *Registry
	sessions   interfaces.SessionManager
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewHandler(cfg Config, registry *Registry, sessions interfaces.SessionManager, dispatcher Dispatcher, logger *zap.Logger) *Handler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// Access is gated by the session cookie, not the origin.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		registry:   registry,
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger.Named("websocket"),
	}
}

// HandleWebSocket resolves the caller from the session cookie, upgrades and
// registers the connection. Unauthenticated requests get 401 and no upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, err := h.authenticate(r)
	if err != nil {
		h.logger.Debug("rejected hub connection", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.cfg)
	if err := conn.SetPrincipal(principal.Key()); err != nil {
		h.logger.Error("failed to set principal", zap.Error(err))
		_ = conn.Close()
		return
	}

	if err := h.registry.RegisterConnection(conn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.logger.Info("hub connection opened",
		zap.String("connection_id", conn.ID()),
		zap.String("principal", conn.Principal()))

	go h.handleConnection(conn)
}

func (h *Handler) authenticate(r *http.Request) (interfaces.Principal, error) {
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return interfaces.Principal{}, ErrMissingCookie
	}
	return h.sessions.Validate(cookie.Value)
}

// handleConnection owns the read side of conn until the peer goes away.
func (h *Handler) handleConnection(conn *Connection) {
	logger := h.logger.With(
		zap.String("connection_id", conn.ID()),
		zap.String("principal", conn.Principal()))

	defer func() {
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		logger.Info("hub connection closed")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data, logger)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// handleFrame dispatches one inbound frame and answers invocations with a
// completion frame carrying the error text, if any.
func (h *Handler) handleFrame(conn *Connection, data []byte, logger *zap.Logger) {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	if frame.Type != types.FrameTypeInvocation {
		logger.Debug("ignoring frame", zap.String("type", frame.Type))
		return
	}

	err := h.dispatcher.Dispatch(conn.ctx, conn, frame)
	if frame.InvocationID == "" {
		// Fire-and-forget invocation; nothing to complete.
		if err != nil {
			logger.Warn("invocation failed", zap.String("target", frame.Target), zap.Error(err))
		}
		return
	}

	completion := types.Frame{
		Type:         types.FrameTypeCompletion,
		InvocationID: frame.InvocationID,
	}
	if err != nil {
		completion.Error = err.Error()
	}
	if werr := conn.WriteJSON(completion); werr != nil && !errors.Is(werr, ErrConnectionClosed) {
		logger.Warn("failed to send completion", zap.String("invocation_id", frame.InvocationID), zap.Error(werr))
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rollcall/internal/auth"
	"rollcall/internal/session"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced at the deployment edge.
		return true
	},
}

// Dispatcher consumes inbound events from the read pump.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn *Connection, ev types.Event)
}

// Handler authenticates WebSocket upgrades, registers connections and runs
// the per-connection read pump. A disconnect only removes the connection
// from the registry; session state is never rolled back.
type Handler struct {
	registry *Registry
	sessions *session.Registry
	router   Dispatcher
	users    interfaces.UserStore
	tokens   *auth.Manager
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, sessions *session.Registry, router Dispatcher, users interfaces.UserStore, tokens *auth.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		sessions: sessions,
		router:   router,
		users:    users,
		tokens:   tokens,
		logger:   logger,
	}
}

// Handle upgrades an authenticated request to a WebSocket connection.
// The client passes its token as a query parameter: /ws?token=...
func (h *Handler) Handle(c *gin.Context) {
	claims, err := h.tokens.Parse(auth.TokenFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown user"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, *user)
	if err := h.registry.Register(conn); err != nil {
		h.logger.Error("connection registration failed", zap.String("user_id", user.ID), zap.Error(err))
		_ = conn.Close()
		return
	}

	h.logger.Info("client connected",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role))

	// Reconnection re-sync: current session state is pushed explicitly,
	// never assumed from missed events.
	h.sendSessionInfo(conn)

	go h.readPump(conn)
}

// sendSessionInfo pushes the SESSION_INFO snapshot for the session this
// connection is scoped to, or an inactive notice when there is none.
func (h *Handler) sendSessionInfo(conn *Connection) {
	var payload types.SessionInfoPayload
	var s *session.Session
	var ok bool
	if conn.Role() == types.RoleTeacher {
		s, ok = h.sessions.ActiveForTeacher(conn.UserID())
	} else {
		s, ok = h.sessions.ActiveForStudent(conn.UserID())
	}
	if ok {
		payload = s.Info()
	}

	ev, err := types.NewEvent(types.EventSessionInfo, payload)
	if err != nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		h.logger.Debug("session info delivery failed", zap.String("user_id", conn.UserID()), zap.Error(err))
	}
}

// readPump handles inbound frames until the connection drops, then cleans
// up the registry entry.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		h.logger.Info("client disconnected", zap.String("user_id", conn.UserID()))
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("user_id", conn.UserID()), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			// Malformed frames are reported to the sender only, never fatal.
			if errEv, encErr := types.NewEvent(types.EventError, types.ErrorPayload{Message: "malformed event"}); encErr == nil {
				_ = conn.Send(errEv)
			}
			continue
		}

		h.router.Dispatch(context.Background(), conn, ev)
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

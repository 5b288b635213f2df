package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"pulse-backend/internal/presence"
	"pulse-backend/internal/realtime"
	"pulse-backend/internal/services"
)

// readWait bounds the liveness window: a connection producing no inbound
// frame for this long is proactively unregistered.
const readWait = 90 * time.Second

// SocketHandler owns the websocket endpoint and the event dispatch behind it.
type SocketHandler struct {
	registry *realtime.Registry
	rooms    *realtime.Rooms
	relay    *services.Relay
	presence *presence.Tracker
	log      *zap.Logger
}

func NewSocketHandler(registry *realtime.Registry, rooms *realtime.Rooms,
	relay *services.Relay, tracker *presence.Tracker, log *zap.Logger) *SocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketHandler{
		registry: registry,
		rooms:    rooms,
		relay:    relay,
		presence: tracker,
		log:      log,
	}
}

// Handler upgrades and services one websocket session. The connection is
// bound to the identity the auth middleware verified; registration implicitly
// joins the user's own room and may flip the user online.
func (h *SocketHandler) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(int)
		username, _ := c.Locals("username").(string)

		conn := realtime.NewConnection(userID, username, c)
		first := h.registry.Register(conn)
		if first {
			h.presence.SetOnline(userID)
		}

		defer func() {
			_, last := h.registry.Unregister(conn.ID)
			if last {
				h.presence.SetOffline(userID)
			}
		}()

		_ = conn.Send(connectedEvent())

		for {
			_ = c.SetReadDeadline(time.Now().Add(readWait))
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug("read error", zap.String("conn_id", conn.ID), zap.Error(err))
				}
				return
			}
			if conn.Closed() {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			h.dispatch(conn, msg)
		}
	})
}

// WSUpgradeMiddleware rejects plain HTTP requests on the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT before the upgrade. A handshake without a
// valid credential is refused outright, never silently degraded.
func AuthMiddleware(c *fiber.Ctx) error {
	// Token from query param `access_token` or Authorization header
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	// claims["user_id"] comes as float64 from JSON
	if uid, ok := claims["user_id"].(float64); ok {
		c.Locals("user_id", int(uid))
	} else {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}

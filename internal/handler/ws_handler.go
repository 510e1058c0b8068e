package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

// Origins are checked by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// MemberCheck reports whether a user may watch a game's events.
type MemberCheck func(ctx context.Context, gameID, userID string) error

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	isMember MemberCheck
}

// NewWSHandler creates a WSHandler. isMember guards subscriptions; nil
// lets every authenticated user subscribe.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, isMember MemberCheck) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, isMember: isMember}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr, err := auth.TokenFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateUse(tokenStr, auth.UseAccess)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{conn: conn, userID: claims.UserID, send: make(chan []byte, sendBufSize)}
	h.hub.Register(client)
	h.hub.SendTo(client, WSEvent{Type: EventConnected, Data: map[string]string{"user_id": claims.UserID}})

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump handles subscribe and unsubscribe requests until the socket
// closes.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntax *json.SyntaxError
			var mistyped *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &mistyped) {
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			return
		}
		if msg.GameID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			h.subscribe(c, msg.GameID)
		case "unsubscribe":
			h.hub.Unsubscribe(c, msg.GameID)
		}
	}
}

func (h *WSHandler) subscribe(c *WSConn, gameID string) {
	if h.isMember != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := h.isMember(ctx, gameID, c.userID)
		cancel()
		if err != nil {
			h.hub.SendTo(c, WSEvent{Type: EventForbidden, GameID: gameID, Data: map[string]string{"error": err.Error()}})
			return
		}
	}
	h.hub.Subscribe(c, gameID)
	h.hub.SendTo(c, WSEvent{Type: EventSubscribed, GameID: gameID})
}

// writePump sends each queued event as its own text frame and pings the
// client between events.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

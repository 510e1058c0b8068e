package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types the handlers send over WebSocket. Battle events are named in
// the service package.
const (
	EventConnected    = "connected"
	EventPlayerJoined = "player_joined"
	EventGameEnded    = "game_ended"
	EventSubscribed   = "subscribed"
	EventForbidden    = "forbidden"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"game_id"`
}

// WSConn is one socket of one user.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type connSet map[*WSConn]struct{}

// Hub routes events to sockets by game subscription and by user.
type Hub struct {
	mu    sync.RWMutex
	conns connSet
	games map[string]connSet
}

func NewHub() *Hub {
	return &Hub{conns: make(connSet), games: make(map[string]connSet)}
}

func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Unregister drops the connection with all of its subscriptions and closes
// its send queue.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	for gameID := range h.games {
		h.leave(c, gameID)
	}
	close(c.send)
}

func (h *Hub) Subscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.games[gameID]
	if !ok {
		set = make(connSet)
		h.games[gameID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unsubscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, gameID)
}

// leave must be called with mu held.
func (h *Hub) leave(c *WSConn, gameID string) {
	set := h.games[gameID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.games, gameID)
	}
}

// BroadcastToGame queues an event for every subscriber of a game.
func (h *Hub) BroadcastToGame(gameID string, event WSEvent) {
	data, ok := encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.games[gameID] {
		deliver(c, data)
	}
}

// SendTo queues an event for one registered connection.
func (h *Hub) SendTo(c *WSConn, event WSEvent) {
	data, ok := encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.conns[c]; live {
		deliver(c, data)
	}
}

// BroadcastToUser queues an event for every connection of a user that is
// not already subscribed to skipGame.
func (h *Hub) BroadcastToUser(userID, skipGame string, event WSEvent) {
	data, ok := encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	skip := h.games[skipGame]
	for c := range h.conns {
		if _, subscribed := skip[c]; c.userID == userID && !subscribed {
			deliver(c, data)
		}
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) GameSubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

func encode(event WSEvent) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Str("gameId", event.GameID).Msg("Failed to marshal WebSocket event")
		return nil, false
	}
	return data, true
}

// deliver never blocks; a full queue drops the message.
func deliver(c *WSConn, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("userId", c.userID).Msg("Dropping WebSocket message, buffer full")
	}
}

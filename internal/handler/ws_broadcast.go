package handler

import "github.com/freeeve/warcore/internal/model"

// BroadcastGameEvent implements service.Broadcaster using the WebSocket hub.
// A decision request also reaches the deciding player's connections that
// do not watch the game.
func (h *Hub) BroadcastGameEvent(gameID string, eventType string, data any) {
	event := WSEvent{
		Type:   eventType,
		GameID: gameID,
		Data:   data,
	}
	h.BroadcastToGame(gameID, event)

	var userID string
	switch req := data.(type) {
	case model.DecisionRequest:
		userID = req.UserID
	case *model.DecisionRequest:
		if req != nil {
			userID = req.UserID
		}
	}
	if userID != "" {
		h.BroadcastToUser(userID, gameID, event)
	}
}

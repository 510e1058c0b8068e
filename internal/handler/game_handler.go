package handler

import (
	"net/http"

	"github.com/freeeve/warcore/internal/auth"
	"github.com/freeeve/warcore/internal/service"
)

// GameHandler handles game lifecycle endpoints.
type GameHandler struct {
	gameSvc *service.GameService
	wsHub   *Hub
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(gameSvc *service.GameService, wsHub *Hub) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, wsHub: wsHub}
}

// CreateGame handles POST /api/v1/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req service.CreateGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}
	if req.Nation == "" {
		writeError(w, http.StatusBadRequest, "nation is required")
		return
	}

	game, err := h.gameSvc.CreateGame(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	games, err := h.gameSvc.ListGames(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if games == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.gameSvc.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// JoinGame handles POST /api/v1/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Nation string `json:"nation"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Nation == "" {
		writeError(w, http.StatusBadRequest, "nation is required")
		return
	}

	if err := h.gameSvc.JoinGame(r.Context(), gameID, userID, req.Nation); err != nil {
		writeServiceError(w, err)
		return
	}

	h.wsHub.BroadcastToGame(gameID, WSEvent{
		Type:   EventPlayerJoined,
		GameID: gameID,
		Data:   map[string]string{"user_id": userID, "nation": req.Nation},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// FinishGame handles POST /api/v1/games/{id}/finish
func (h *GameHandler) FinishGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	game, err := h.gameSvc.FinishGame(r.Context(), gameID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.wsHub.BroadcastToGame(gameID, WSEvent{Type: EventGameEnded, GameID: gameID, Data: game})
	writeJSON(w, http.StatusOK, game)
}

// DeleteGame handles DELETE /api/v1/games/{id}
func (h *GameHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.gameSvc.DeleteGame(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

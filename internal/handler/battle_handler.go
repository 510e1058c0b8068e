package handler

import (
	"net/http"

	"github.com/freeeve/warcore/internal/auth"
	"github.com/freeeve/warcore/internal/service"
	"github.com/freeeve/warcore/pkg/combat"
)

// BattleHandler handles the battle endpoints of a game. Every route
// requires the caller to be a member of the game.
type BattleHandler struct {
	gameSvc   *service.GameService
	battleSvc *service.BattleService
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(gameSvc *service.GameService, battleSvc *service.BattleService) *BattleHandler {
	return &BattleHandler{gameSvc: gameSvc, battleSvc: battleSvc}
}

// member resolves the game ID and the caller, writing the error response
// when the caller does not belong to the game.
func (h *BattleHandler) member(w http.ResponseWriter, r *http.Request) (gameID, userID string, ok bool) {
	gameID = r.PathValue("id")
	userID = auth.UserIDFromContext(r.Context())
	if _, err := h.gameSvc.RequireMember(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, err)
		return "", "", false
	}
	return gameID, userID, true
}

// writeFight writes an engine run. A rejected or abandoned decision still
// carries the result so the client sees the repeated question.
func writeFight(w http.ResponseWriter, res *service.FightResult, err error) {
	if err != nil {
		if res == nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListBattles handles GET /api/v1/games/{id}/battles
func (h *BattleHandler) ListBattles(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	views, err := h.battleSvc.PendingBattles(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if views == nil {
		views = []service.BattleView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// RegisterAttack handles POST /api/v1/games/{id}/attacks
func (h *BattleHandler) RegisterAttack(w http.ResponseWriter, r *http.Request) {
	gameID, userID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req service.AttackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.battleSvc.RegisterAttack(r.Context(), gameID, userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// FightAll handles POST /api/v1/games/{id}/battles/fight
func (h *BattleHandler) FightAll(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	res, err := h.battleSvc.FightAll(r.Context(), gameID)
	writeFight(w, res, err)
}

// FightBattle handles POST /api/v1/games/{id}/battles/{battleId}/fight
func (h *BattleHandler) FightBattle(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	res, err := h.battleSvc.FightBattle(r.Context(), gameID, r.PathValue("battleId"))
	writeFight(w, res, err)
}

// SubmitCasualties handles POST /api/v1/games/{id}/battles/{battleId}/casualties
func (h *BattleHandler) SubmitCasualties(w http.ResponseWriter, r *http.Request) {
	gameID, userID, ok := h.member(w, r)
	if !ok {
		return
	}
	var sel combat.CasualtyDetails
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.battleSvc.SubmitCasualties(r.Context(), gameID, r.PathValue("battleId"), userID, sel)
	writeFight(w, res, err)
}

// SubmitRetreat handles POST /api/v1/games/{id}/battles/{battleId}/retreat.
// An empty territory keeps the units in the battle.
func (h *BattleHandler) SubmitRetreat(w http.ResponseWriter, r *http.Request) {
	gameID, userID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req struct {
		Territory string `json:"territory"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.battleSvc.SubmitRetreat(r.Context(), gameID, r.PathValue("battleId"), userID, req.Territory)
	writeFight(w, res, err)
}

// EndPhase handles POST /api/v1/games/{id}/phase/end
func (h *BattleHandler) EndPhase(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	if err := h.battleSvc.EndPhase(r.Context(), gameID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// Estimate handles POST /api/v1/games/{id}/estimate
func (h *BattleHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	var req service.EstimateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	odds, err := h.battleSvc.Estimate(r.Context(), gameID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, odds)
}

// ListRecords handles GET /api/v1/games/{id}/records
func (h *BattleHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	gameID, _, ok := h.member(w, r)
	if !ok {
		return
	}
	records, err := h.battleSvc.Records(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

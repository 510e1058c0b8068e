package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/service"
	"github.com/freeeve/warcore/pkg/combat"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service or engine error to its status code.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func statusFor(err error) int {
	var (
		se *combat.SelectionError
		pe *combat.ProtocolError
	)
	switch {
	case errors.Is(err, service.ErrGameNotFound), errors.Is(err, combat.ErrBattleNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotInGame), errors.Is(err, service.ErrNotCreator),
		errors.Is(err, service.ErrNotYourNation), errors.Is(err, service.ErrNotYourDecision):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidScenario), errors.Is(err, service.ErrInvalidNation),
		errors.Is(err, service.ErrInvalidAttack), errors.Is(err, service.ErrInvalidDifficulty),
		errors.As(err, &se), errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGameNotActive), errors.Is(err, service.ErrNationTaken),
		errors.Is(err, service.ErrAlreadyJoined), errors.Is(err, service.ErrNoSnapshot),
		errors.Is(err, service.ErrNoDecision), errors.Is(err, service.ErrWrongDecision),
		errors.Is(err, combat.ErrBattleBlocked), errors.Is(err, combat.ErrBattlesPending),
		errors.Is(err, combat.ErrBattleOver):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/bot"
	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/internal/repository"
	"github.com/freeeve/warcore/pkg/combat"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameNotActive     = errors.New("game is not active")
	ErrNotCreator        = errors.New("only the creator can do this")
	ErrNotInGame         = errors.New("you are not in this game")
	ErrInvalidScenario   = errors.New("invalid scenario")
	ErrInvalidNation     = errors.New("invalid nation")
	ErrNationTaken       = errors.New("nation already assigned to another player")
	ErrAlreadyJoined     = errors.New("already joined this game")
	ErrNoSnapshot        = errors.New("game has no combat state")
	ErrInvalidAttack     = errors.New("invalid attack")
	ErrNotYourNation     = errors.New("you do not command this nation")
	ErrNoDecision        = errors.New("battle is not waiting on a decision")
	ErrWrongDecision     = errors.New("battle waits on a different decision")
	ErrNotYourDecision   = errors.New("decision belongs to another player")
	ErrInvalidDifficulty = errors.New("invalid difficulty: must be easy, medium, hard or random")
)

// CreateGameRequest describes a new game: a scenario board in YAML or JSON,
// the nation the creator commands and whether bots take the other seats.
type CreateGameRequest struct {
	Name          string `json:"name"`
	Scenario      string `json:"scenario"`
	Nation        string `json:"nation"`
	FillBots      bool   `json:"fill_bots"`
	BotDifficulty string `json:"bot_difficulty"`
}

// GameService handles game lifecycle operations.
type GameService struct {
	gameRepo repository.GameRepository
	userRepo repository.UserRepository
	cache    repository.BattleCache

	defaults   *combat.Rules
	maxRetries int
}

// NewGameService creates a GameService. defaults are the rule properties
// every new game starts from; the scenario's own rules take precedence.
func NewGameService(gameRepo repository.GameRepository, userRepo repository.UserRepository, cache repository.BattleCache, defaults *combat.Rules) *GameService {
	if defaults == nil {
		defaults = combat.DefaultRules()
	}
	return &GameService{gameRepo: gameRepo, userRepo: userRepo, cache: cache, defaults: defaults}
}

// SetMaxSelectionRetries sets how many invalid casualty choices a game
// tolerates unless its scenario says otherwise. Zero keeps the engine default.
func (s *GameService) SetMaxSelectionRetries(n int) {
	s.maxRetries = n
}

func validDifficulty(d string) bool {
	switch d {
	case "", bot.DifficultyEasy, bot.DifficultyMedium, bot.DifficultyHard, bot.DifficultyRandom:
		return true
	}
	return false
}

// CreateGame builds the scenario board, registers its attacks as pending
// battles and stores the game with its combat snapshot.
func (s *GameService) CreateGame(ctx context.Context, creatorID string, req CreateGameRequest) (*model.Game, error) {
	if !validDifficulty(req.BotDifficulty) {
		return nil, ErrInvalidDifficulty
	}
	sc, err := combat.ParseScenario([]byte(req.Scenario))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	state, scenarioRules, attacks, err := sc.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	nations := slices.Sorted(maps.Keys(state.Players))
	if len(nations) == 0 {
		return nil, fmt.Errorf("%w: no players", ErrInvalidScenario)
	}
	if !slices.Contains(nations, combat.PlayerID(req.Nation)) {
		return nil, ErrInvalidNation
	}

	props := s.defaults.Props()
	if props == nil {
		props = make(map[string]any)
	}
	if s.maxRetries > 0 {
		props[combat.RuleMaxSelectionTries] = s.maxRetries
	}
	maps.Copy(props, scenarioRules.Props())
	rules := combat.NewRules(props)

	tr := combat.NewTracker()
	for _, a := range attacks {
		if _, err := registerAttack(state, tr, rules, a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	}

	rulesJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	name := req.Name
	if name == "" {
		name = sc.Name
	}
	game, err := s.gameRepo.Create(ctx, name, creatorID, rulesJSON)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.JoinGame(ctx, game.ID, creatorID, req.Nation); err != nil {
		return nil, err
	}
	if req.FillBots {
		for _, nation := range nations {
			if string(nation) == req.Nation {
				continue
			}
			botUser, err := s.userRepo.Upsert(ctx, "bot", "bot-"+string(nation), string(nation)+" Bot", "")
			if err != nil {
				return nil, fmt.Errorf("create bot user for %s: %w", nation, err)
			}
			if err := s.gameRepo.JoinGameAsBot(ctx, game.ID, botUser.ID, string(nation), req.BotDifficulty); err != nil {
				return nil, fmt.Errorf("join bot for %s: %w", nation, err)
			}
		}
	}

	snap, err := combat.MarshalGame(state, tr, rules)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetSnapshot(ctx, game.ID, snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	log.Info().Str("gameId", game.ID).Str("scenario", sc.Name).
		Int("nations", len(nations)).Int("battles", len(tr.Battles)).
		Msg("Game created")
	return s.gameRepo.FindByID(ctx, game.ID)
}

// GetGame returns a game with its players.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// RequireMember returns the game when the user created it or commands a
// nation in it.
func (s *GameService) RequireMember(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.CreatorID == userID {
		return game, nil
	}
	for _, p := range game.Players {
		if p.UserID == userID {
			return game, nil
		}
	}
	return nil, ErrNotInGame
}

// JoinGame gives a user an open nation of an active game.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID, nation string) error {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status != "active" {
		return ErrGameNotActive
	}
	for _, p := range game.Players {
		if p.UserID == userID {
			return ErrAlreadyJoined
		}
		if p.Nation == nation {
			return ErrNationTaken
		}
	}
	data, err := s.cache.GetSnapshot(ctx, gameID)
	if err != nil {
		return err
	}
	if data == nil {
		return ErrNoSnapshot
	}
	state, _, _, err := combat.UnmarshalGame(data)
	if err != nil {
		return err
	}
	if state.Player(combat.PlayerID(nation)) == nil {
		return ErrInvalidNation
	}
	return s.gameRepo.JoinGame(ctx, gameID, userID, nation)
}

// ListGames returns the games a user created or plays in.
func (s *GameService) ListGames(ctx context.Context, userID string) ([]model.Game, error) {
	return s.gameRepo.ListByUser(ctx, userID)
}

// FinishGame closes an active game and drops its live combat state. Stored
// battle records stay.
func (s *GameService) FinishGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.gameRepo.SetFinished(ctx, gameID); err != nil {
		return nil, err
	}
	if err := s.cache.DeleteGameData(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to drop combat state of finished game")
	}
	return s.GetGame(ctx, gameID)
}

// DeleteGame removes a game, its records and its live state.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.CreatorID != userID {
		return ErrNotCreator
	}
	if err := s.cache.DeleteGameData(ctx, gameID); err != nil {
		return err
	}
	return s.gameRepo.Delete(ctx, gameID)
}

package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/warcore/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game and player data operations.
type GameRepository interface {
	Create(ctx context.Context, name, creatorID string, rules json.RawMessage) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	JoinGame(ctx context.Context, gameID, userID, nation string) error
	JoinGameAsBot(ctx context.Context, gameID, userID, nation, difficulty string) error
	SetFinished(ctx context.Context, gameID string) error
	Delete(ctx context.Context, gameID string) error
}

// BattleRepository stores the records of finished battles.
type BattleRepository interface {
	SaveRecords(ctx context.Context, records []model.BattleRecord) error
	ListByGame(ctx context.Context, gameID string) ([]model.BattleRecord, error)
	FindByBattleID(ctx context.Context, gameID, battleID string) (*model.BattleRecord, error)
}

// BattleCache defines live combat state operations (Redis): the game
// snapshot, outstanding decision requests, their answers and deadlines.
type BattleCache interface {
	SetSnapshot(ctx context.Context, gameID string, snapshot json.RawMessage) error
	GetSnapshot(ctx context.Context, gameID string) (json.RawMessage, error)
	SetDecisionRequest(ctx context.Context, req model.DecisionRequest) error
	GetDecisionRequest(ctx context.Context, gameID, battleID string) (*model.DecisionRequest, error)
	ListDecisionRequests(ctx context.Context, gameID string) ([]model.DecisionRequest, error)
	SetAnswer(ctx context.Context, gameID, battleID string, answer json.RawMessage) error
	TakeAnswer(ctx context.Context, gameID, battleID string) (json.RawMessage, error)
	ClearDecision(ctx context.Context, gameID, battleID string) error
	SetDeadline(ctx context.Context, gameID, battleID string, deadline time.Time) error
	ListSuspendedGames(ctx context.Context) ([]string, error)
	DeleteGameData(ctx context.Context, gameID string) error
}

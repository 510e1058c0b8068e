package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Game is a hosted combat session: a board, its rules and the players
// that answer decisions for each nation.
type Game struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CreatorID  string          `json:"creator_id"`
	Status     string          `json:"status"` // active, finished
	Rules      json.RawMessage `json:"rules,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Players    []GamePlayer    `json:"players,omitempty"`
}

// GamePlayer binds a user to the nation they command in a game.
type GamePlayer struct {
	GameID        string    `json:"game_id"`
	UserID        string    `json:"user_id"`
	Nation        string    `json:"nation"`
	IsBot         bool      `json:"is_bot"`
	BotDifficulty string    `json:"bot_difficulty,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// PlayerFor returns the membership commanding nation, or nil.
func (g *Game) PlayerFor(nation string) *GamePlayer {
	for i := range g.Players {
		if g.Players[i].Nation == nation {
			return &g.Players[i]
		}
	}
	return nil
}

// BattleRecord is the persisted outcome of one finished battle.
type BattleRecord struct {
	ID              string    `json:"id"`
	GameID          string    `json:"game_id"`
	BattleID        string    `json:"battle_id"`
	Kind            string    `json:"kind"`
	Territory       string    `json:"territory"`
	Attacker        string    `json:"attacker"`
	Defender        string    `json:"defender"`
	Winner          string    `json:"winner"`
	Result          string    `json:"result"`
	Description     string    `json:"description"`
	AttackerLostTUV int       `json:"attacker_lost_tuv"`
	DefenderLostTUV int       `json:"defender_lost_tuv"`
	Rounds          int       `json:"rounds"`
	Killed          []string  `json:"killed,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Decision kinds a battle can wait on.
const (
	DecisionCasualties = "casualties"
	DecisionRetreat    = "retreat"
)

// DecisionRequest is an outstanding question to the player commanding a
// nation in a suspended battle. Query holds the engine's query as JSON.
type DecisionRequest struct {
	GameID   string          `json:"game_id"`
	BattleID string          `json:"battle_id"`
	Kind     string          `json:"kind"`
	Nation   string          `json:"nation"`
	UserID   string          `json:"user_id,omitempty"`
	Query    json.RawMessage `json:"query"`
	Deadline time.Time       `json:"deadline"`
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/warcore/internal/model"
)

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

const gameColumns = `g.id, g.name, g.creator_id, g.status, g.rules, g.created_at, g.finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (model.Game, error) {
	var g model.Game
	var rules []byte
	err := row.Scan(&g.ID, &g.Name, &g.CreatorID, &g.Status, &rules, &g.CreatedAt, &g.FinishedAt)
	if len(rules) > 0 {
		g.Rules = json.RawMessage(rules)
	}
	return g, err
}

// Create inserts a new active game with its rule properties.
func (r *GameRepo) Create(ctx context.Context, name, creatorID string, rules json.RawMessage) (*model.Game, error) {
	if len(rules) == 0 {
		rules = json.RawMessage(`{}`)
	}
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`INSERT INTO games AS g (name, creator_id, rules)
		 VALUES ($1, $2, $3)
		 RETURNING `+gameColumns,
		name, creatorID, []byte(rules),
	))
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return &g, nil
}

// FindByID returns a game by ID with its players.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games g WHERE g.id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Players = players
	return &g, nil
}

func (r *GameRepo) listGames(ctx context.Context, what, query string, args ...any) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s games: %w", what, err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListByUser returns the games a user created or commands a nation in.
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.listGames(ctx, "user",
		`SELECT DISTINCT `+gameColumns+`
		 FROM games g LEFT JOIN game_players gp ON g.id = gp.game_id AND gp.user_id = $1
		 WHERE g.creator_id = $1 OR gp.user_id IS NOT NULL
		 ORDER BY g.created_at DESC`, userID)
}

// ListActive returns every game that is still being fought.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx, "active",
		`SELECT `+gameColumns+` FROM games g WHERE g.status = 'active' ORDER BY g.created_at`)
}

// ListPlayers returns the nation assignments of a game.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, user_id, nation, is_bot, bot_difficulty, joined_at FROM game_players WHERE game_id = $1 ORDER BY joined_at`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.GamePlayer
	for rows.Next() {
		var p model.GamePlayer
		var difficulty sql.NullString
		if err := rows.Scan(&p.GameID, &p.UserID, &p.Nation, &p.IsBot, &difficulty, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.BotDifficulty = difficulty.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// JoinGame assigns a nation to a user. A nation already taken is left as is.
func (r *GameRepo) JoinGame(ctx context.Context, gameID, userID, nation string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, nation) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		gameID, userID, nation,
	)
	if err != nil {
		return fmt.Errorf("join game: %w", err)
	}
	return nil
}

// JoinGameAsBot hands a nation to a bot with the given difficulty level.
func (r *GameRepo) JoinGameAsBot(ctx context.Context, gameID, userID, nation, difficulty string) error {
	if difficulty == "" {
		difficulty = "easy"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, nation, is_bot, bot_difficulty) VALUES ($1, $2, $3, true, $4)
		 ON CONFLICT DO NOTHING`,
		gameID, userID, nation, difficulty,
	)
	if err != nil {
		return fmt.Errorf("join game as bot: %w", err)
	}
	return nil
}

// SetFinished closes a game.
func (r *GameRepo) SetFinished(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', finished_at = now() WHERE id = $1`,
		gameID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a game and, through cascades, its players and records.
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/warcore/internal/model"
)

// Key patterns for Redis combat state.
func snapshotKey(gameID string) string { return "game:" + gameID + ":battles" }
func decisionsKey(gameID string) string { return "game:" + gameID + ":decisions" }
func decisionKey(gameID, battleID string) string {
	return "game:" + gameID + ":decision:" + battleID
}
func answerKey(gameID, battleID string) string { return "game:" + gameID + ":answer:" + battleID }
func deadlineKey(gameID, battleID string) string {
	return "game:" + gameID + ":deadline:" + battleID
}

// suspendedKey holds the IDs of games with at least one open decision.
const suspendedKey = "games:suspended"

// SetSnapshot stores the combat snapshot (board, tracker and rules) of a game.
func (c *Client) SetSnapshot(ctx context.Context, gameID string, snapshot json.RawMessage) error {
	return c.rdb.Set(ctx, snapshotKey(gameID), []byte(snapshot), 0).Err()
}

// GetSnapshot retrieves the combat snapshot, or nil when the game has none.
func (c *Client) GetSnapshot(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetDecisionRequest records the question a suspended battle waits on and
// marks the game as suspended.
func (c *Client) SetDecisionRequest(ctx context.Context, req model.DecisionRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal decision request: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, decisionKey(req.GameID, req.BattleID), data, 0)
	pipe.SAdd(ctx, decisionsKey(req.GameID), req.BattleID)
	pipe.SAdd(ctx, suspendedKey, req.GameID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set decision request: %w", err)
	}
	return nil
}

// GetDecisionRequest returns the open request of a battle, or nil.
func (c *Client) GetDecisionRequest(ctx context.Context, gameID, battleID string) (*model.DecisionRequest, error) {
	data, err := c.rdb.Get(ctx, decisionKey(gameID, battleID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision request: %w", err)
	}
	var req model.DecisionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode decision request: %w", err)
	}
	return &req, nil
}

// ListDecisionRequests returns every open request of a game ordered by
// battle ID.
func (c *Client) ListDecisionRequests(ctx context.Context, gameID string) ([]model.DecisionRequest, error) {
	ids, err := c.rdb.SMembers(ctx, decisionsKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	slices.Sort(ids)
	var out []model.DecisionRequest
	for _, id := range ids {
		req, err := c.GetDecisionRequest(ctx, gameID, id)
		if err != nil {
			return nil, err
		}
		if req != nil {
			out = append(out, *req)
		}
	}
	return out, nil
}

// SetAnswer stores a player's answer until the battle resumes.
func (c *Client) SetAnswer(ctx context.Context, gameID, battleID string, answer json.RawMessage) error {
	return c.rdb.Set(ctx, answerKey(gameID, battleID), []byte(answer), 0).Err()
}

// TakeAnswer returns and deletes the stored answer for a battle, or nil.
func (c *Client) TakeAnswer(ctx context.Context, gameID, battleID string) (json.RawMessage, error) {
	data, err := c.rdb.GetDel(ctx, answerKey(gameID, battleID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take answer: %w", err)
	}
	return json.RawMessage(data), nil
}

// ClearDecision removes the request, answer and deadline of a battle. The
// game leaves the suspended set once it has no open requests.
func (c *Client) ClearDecision(ctx context.Context, gameID, battleID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, decisionKey(gameID, battleID), answerKey(gameID, battleID), deadlineKey(gameID, battleID))
	pipe.SRem(ctx, decisionsKey(gameID), battleID)
	left := pipe.SCard(ctx, decisionsKey(gameID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear decision: %w", err)
	}
	if left.Val() == 0 {
		return c.rdb.SRem(ctx, suspendedKey, gameID).Err()
	}
	return nil
}

// decisionGracePeriod is added to the displayed deadline before the key
// expires and the server answers with the default.
const decisionGracePeriod = 2 * time.Second

// SetDeadline creates a deadline key with a TTL. When the key expires,
// Redis keyspace notifications trigger the default answer.
func (c *Client) SetDeadline(ctx context.Context, gameID, battleID string, deadline time.Time) error {
	ttl := time.Until(deadline) + decisionGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, deadlineKey(gameID, battleID), deadline.Unix(), ttl).Err()
}

// ListSuspendedGames returns the games waiting on at least one decision.
func (c *Client) ListSuspendedGames(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, suspendedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list suspended games: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteGameData removes all Redis data for a game.
func (c *Client) DeleteGameData(ctx context.Context, gameID string) error {
	ids, err := c.rdb.SMembers(ctx, decisionsKey(gameID)).Result()
	if err != nil {
		return fmt.Errorf("delete game data: %w", err)
	}
	keys := []string{snapshotKey(gameID), decisionsKey(gameID)}
	for _, id := range ids {
		keys = append(keys, decisionKey(gameID, id), answerKey(gameID, id), deadlineKey(gameID, id))
	}
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, suspendedKey, gameID)
	_, err = pipe.Exec(ctx)
	return err
}

// ParseDeadlineKey splits an expired deadline key into game and battle ID.
func ParseDeadlineKey(key string) (gameID, battleID string, ok bool) {
	rest, found := strings.CutPrefix(key, "game:")
	if !found {
		return "", "", false
	}
	gameID, battleID, found = strings.Cut(rest, ":deadline:")
	return gameID, battleID, found && gameID != "" && battleID != ""
}

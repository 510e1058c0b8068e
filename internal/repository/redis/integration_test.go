//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/internal/testutil"
)

var testRDB *goredis.Client

func setup(t *testing.T) *Client {
	t.Helper()
	if testRDB == nil {
		testRDB = testutil.SetupRedis(t)
	}
	testutil.CleanupRedis(t, testRDB)
	return &Client{rdb: testRDB}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	gameID := "test-game-1"

	snap := json.RawMessage(`{"state":{"units":{}},"tracker":{"battles":{}}}`)
	if err := c.SetSnapshot(ctx, gameID, snap); err != nil {
		t.Fatalf("set snapshot: %v", err)
	}
	got, err := c.GetSnapshot(ctx, gameID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if string(got) != string(snap) {
		t.Fatalf("snapshot round-trip failed: %s", got)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	c := setup(t)
	got, err := c.GetSnapshot(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("get missing snapshot: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing snapshot")
	}
}

func TestDecisionLifecycle(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	gameID := "test-game-2"

	for _, battleID := range []string{"b2", "b1"} {
		req := model.DecisionRequest{
			GameID: gameID, BattleID: battleID, Kind: model.DecisionCasualties,
			Nation: "Russia", Query: json.RawMessage(`{"hits":1}`), Deadline: time.Now().Add(time.Minute),
		}
		if err := c.SetDecisionRequest(ctx, req); err != nil {
			t.Fatalf("set decision request: %v", err)
		}
	}

	reqs, err := c.ListDecisionRequests(ctx, gameID)
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(reqs) != 2 || reqs[0].BattleID != "b1" {
		t.Fatalf("expected 2 requests ordered by battle, got %+v", reqs)
	}
	games, _ := c.ListSuspendedGames(ctx)
	if len(games) != 1 || games[0] != gameID {
		t.Fatalf("expected %s suspended, got %v", gameID, games)
	}

	c.SetAnswer(ctx, gameID, "b1", json.RawMessage(`{"killed":["u1"]}`))
	ans, err := c.TakeAnswer(ctx, gameID, "b1")
	if err != nil || ans == nil {
		t.Fatalf("take answer: %v %s", err, ans)
	}
	if again, _ := c.TakeAnswer(ctx, gameID, "b1"); again != nil {
		t.Fatal("answer should be consumed once")
	}

	c.ClearDecision(ctx, gameID, "b1")
	if req, _ := c.GetDecisionRequest(ctx, gameID, "b1"); req != nil {
		t.Fatal("expected request cleared")
	}
	if games, _ := c.ListSuspendedGames(ctx); len(games) != 1 {
		t.Fatal("game still waits on b2")
	}
	c.ClearDecision(ctx, gameID, "b2")
	if games, _ := c.ListSuspendedGames(ctx); len(games) != 0 {
		t.Fatalf("expected no suspended games, got %v", games)
	}
}

func TestDeadlineWithTTL(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	if err := c.SetDeadline(ctx, "g", "b", time.Now().Add(10*time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	ttl := testRDB.TTL(ctx, deadlineKey("g", "b")).Val()
	if ttl <= 0 || ttl > 13*time.Second {
		t.Fatalf("expected TTL ~12s, got %v", ttl)
	}

	// past deadline gets the minimum TTL
	c.SetDeadline(ctx, "g", "late", time.Now().Add(-5*time.Second))
	ttl = testRDB.TTL(ctx, deadlineKey("g", "late")).Val()
	if ttl <= 0 || ttl > 2*time.Second {
		t.Fatalf("expected TTL ~1s for past deadline, got %v", ttl)
	}
}

func TestDeleteGameData(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	gameID := "test-game-3"

	c.SetSnapshot(ctx, gameID, json.RawMessage(`{}`))
	c.SetDecisionRequest(ctx, model.DecisionRequest{GameID: gameID, BattleID: "b1", Kind: model.DecisionRetreat})
	c.SetDeadline(ctx, gameID, "b1", time.Now().Add(time.Minute))

	if err := c.DeleteGameData(ctx, gameID); err != nil {
		t.Fatalf("delete game data: %v", err)
	}
	keys := testRDB.Keys(ctx, "game:"+gameID+":*").Val()
	if len(keys) != 0 {
		t.Fatalf("expected all keys deleted, got %v", keys)
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/pkg/combat"
)

type battleEnv struct {
	svc        *BattleService
	battleRepo *mockBattleRepo
	cache      *mockCache
	events     *recordingBroadcaster
	game       *model.Game
	clock      time.Time
}

// newBattleEnv creates a skirmish game. The creator commands nation and,
// with fillBots, an easy bot commands the other.
func newBattleEnv(t *testing.T, nation string, fillBots bool) *battleEnv {
	t.Helper()
	gameRepo := newMockGameRepo()
	env := &battleEnv{
		battleRepo: &mockBattleRepo{},
		cache:      newMockCache(),
		events:     &recordingBroadcaster{},
		clock:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	games := NewGameService(gameRepo, newMockUserRepo(), env.cache, nil)
	game, err := games.CreateGame(context.Background(), "user-1", CreateGameRequest{
		Scenario: skirmishYAML,
		Nation:   nation,
		FillBots: fillBots,
	})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	env.game = game

	env.svc = NewBattleService(gameRepo, env.battleRepo, env.cache, env.events, time.Minute)
	env.svc.SetRandom(func() combat.RandomSource { return constDice(2) })
	env.svc.now = func() time.Time { return env.clock }
	return env
}

// suspend fights until the Russian casualty question comes up.
func (e *battleEnv) suspend(t *testing.T) *model.DecisionRequest {
	t.Helper()
	res, err := e.svc.FightAll(context.Background(), e.game.ID)
	if err != nil {
		t.Fatalf("FightAll: %v", err)
	}
	if res.Decision == nil {
		t.Fatal("expected the battle to wait on a decision")
	}
	return res.Decision
}

func casualtyQuery(t *testing.T, req *model.DecisionRequest) combat.CasualtyQuery {
	t.Helper()
	var q combat.CasualtyQuery
	if err := json.Unmarshal(req.Query, &q); err != nil {
		t.Fatalf("decode query: %v", err)
	}
	return q
}

func unitIDs(t *testing.T, cache *mockCache, gameID string, territory combat.TerritoryID, owner combat.PlayerID, typ string) []string {
	t.Helper()
	s, _, _ := loadSnapshot(t, cache, gameID)
	var ids []string
	for _, u := range s.UnitsIn(territory) {
		if u.Owner == owner && u.Type == typ {
			ids = append(ids, string(u.ID))
		}
	}
	return ids
}

func TestFightAllSuspendsForHumanCasualties(t *testing.T) {
	e := newBattleEnv(t, "Russia", false)
	req := e.suspend(t)

	if req.Kind != model.DecisionCasualties || req.Nation != "Russia" || req.UserID != "user-1" {
		t.Fatalf("unexpected request %+v", req)
	}
	if want := e.clock.Add(time.Minute); !req.Deadline.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, req.Deadline)
	}
	q := casualtyQuery(t, req)
	if q.Hits != 1 || len(q.Candidates) != 2 {
		t.Errorf("expected 1 hit on 2 candidates, got %d on %d", q.Hits, len(q.Candidates))
	}
	key := e.game.ID + ":" + req.BattleID
	if _, ok := e.cache.deadlines[key]; !ok {
		t.Error("expected a deadline key")
	}
	if n := e.events.count(EventDecisionRequested); n != 1 {
		t.Errorf("expected 1 decision event, got %d", n)
	}

	pending, err := e.svc.PendingBattles(context.Background(), e.game.ID)
	if err != nil {
		t.Fatalf("PendingBattles: %v", err)
	}
	if len(pending) != 1 || pending[0].Decision == nil || !pending[0].Started {
		t.Fatalf("expected the started battle with its decision, got %+v", pending)
	}
}

func TestRepeatedFightKeepsDeadline(t *testing.T) {
	e := newBattleEnv(t, "Russia", false)
	first := e.suspend(t)

	e.clock = e.clock.Add(30 * time.Second)
	second := e.suspend(t)
	if !second.Deadline.Equal(first.Deadline) {
		t.Errorf("expected deadline %v kept, got %v", first.Deadline, second.Deadline)
	}
	if n := e.events.count(EventDecisionRequested); n != 1 {
		t.Errorf("expected the question announced once, got %d", n)
	}
}

func TestSubmitCasualtiesResumesBattle(t *testing.T) {
	e := newBattleEnv(t, "Russia", false)
	req := e.suspend(t)
	q := casualtyQuery(t, req)

	res, err := e.svc.SubmitCasualties(context.Background(), e.game.ID, req.BattleID, "user-1", q.Default)
	if err != nil {
		t.Fatalf("SubmitCasualties: %v", err)
	}
	if res.Decision != nil {
		t.Fatalf("expected no further decision, got %+v", res.Decision)
	}
	if len(res.Pending) != 0 {
		t.Errorf("expected no pending battles, got %d", len(res.Pending))
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Winner != string(combat.WinnerDefender) || rec.Territory != "Belorussia" {
		t.Errorf("unexpected record %+v", rec)
	}
	if len(e.battleRepo.records) != 1 {
		t.Errorf("expected the record stored, got %d", len(e.battleRepo.records))
	}
	if got, _ := e.cache.GetDecisionRequest(context.Background(), e.game.ID, req.BattleID); got != nil {
		t.Error("expected the decision cleared")
	}
	if tanks := unitIDs(t, e.cache, e.game.ID, "Belorussia", "Russia", "tank"); len(tanks) != 1 {
		t.Errorf("expected the Russian tank to survive, got %v", tanks)
	}
	for _, ev := range []string{EventBattleStep, EventCasualties, EventBattleEnded} {
		if e.events.count(ev) == 0 {
			t.Errorf("expected a %s event", ev)
		}
	}
}

func TestSubmitChecks(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Russia", false)

	if _, err := e.svc.SubmitRetreat(ctx, e.game.ID, "nope", "user-1", ""); !errors.Is(err, ErrNoDecision) {
		t.Errorf("expected ErrNoDecision, got %v", err)
	}
	req := e.suspend(t)
	q := casualtyQuery(t, req)

	if _, err := e.svc.SubmitCasualties(ctx, e.game.ID, req.BattleID, "user-2", q.Default); !errors.Is(err, ErrNotYourDecision) {
		t.Errorf("expected ErrNotYourDecision, got %v", err)
	}
	if _, err := e.svc.SubmitRetreat(ctx, e.game.ID, req.BattleID, "user-1", "Poland"); !errors.Is(err, ErrWrongDecision) {
		t.Errorf("expected ErrWrongDecision, got %v", err)
	}
	if got, _ := e.cache.GetDecisionRequest(ctx, e.game.ID, req.BattleID); got == nil {
		t.Error("expected the question still open")
	}
}

func TestInvalidCasualtiesAreAskedAgain(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Russia", false)
	req := e.suspend(t)
	q := casualtyQuery(t, req)
	both := combat.CasualtyDetails{Killed: q.Candidates}

	for attempt := 1; attempt < 3; attempt++ {
		res, err := e.svc.SubmitCasualties(ctx, e.game.ID, req.BattleID, "user-1", both)
		var se *combat.SelectionError
		if !errors.As(err, &se) {
			t.Fatalf("attempt %d: expected SelectionError, got %v", attempt, err)
		}
		if se.Player != "Russia" || se.Reason == "" {
			t.Errorf("attempt %d: unexpected error %+v", attempt, se)
		}
		if res == nil || res.Decision == nil {
			t.Fatalf("attempt %d: expected the question asked again", attempt)
		}
		again := casualtyQuery(t, res.Decision)
		if again.Attempt != attempt || again.LastError == "" {
			t.Errorf("attempt %d: expected attempt count and reason, got %d %q", attempt, again.Attempt, again.LastError)
		}
	}

	res, err := e.svc.SubmitCasualties(ctx, e.game.ID, req.BattleID, "user-1", both)
	var pe *combat.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if pe.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", pe.Attempts)
	}
	if res == nil || len(res.Pending) != 0 {
		t.Errorf("expected the battle abandoned, got %+v", res)
	}
	if reqs, _ := e.cache.ListDecisionRequests(ctx, e.game.ID); len(reqs) != 0 {
		t.Errorf("expected no open questions, got %d", len(reqs))
	}
}

func TestDecideByDefault(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Russia", false)
	req := e.suspend(t)

	res, err := e.svc.DecideByDefault(ctx, e.game.ID, req.BattleID)
	if err != nil || res != nil {
		t.Fatalf("expected nothing before the deadline, got %+v %v", res, err)
	}

	e.clock = req.Deadline
	res, err = e.svc.DecideByDefault(ctx, e.game.ID, req.BattleID)
	if err != nil {
		t.Fatalf("DecideByDefault: %v", err)
	}
	if res == nil || len(res.Records) != 1 {
		t.Fatalf("expected the battle finished, got %+v", res)
	}

	res, err = e.svc.DecideByDefault(ctx, e.game.ID, req.BattleID)
	if err != nil || res != nil {
		t.Errorf("expected an answered question to be ignored, got %+v %v", res, err)
	}
}

func TestDecideOverdue(t *testing.T) {
	e := newBattleEnv(t, "Russia", false)
	e.suspend(t)

	n, err := e.svc.DecideOverdue(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing overdue, got %d %v", n, err)
	}
	e.clock = e.clock.Add(2 * time.Minute)
	n, err = e.svc.DecideOverdue(context.Background())
	if err != nil {
		t.Fatalf("DecideOverdue: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 answered, got %d", n)
	}
}

func TestRecoverSuspended(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Russia", false)
	req := e.suspend(t)
	key := e.game.ID + ":" + req.BattleID

	// a restarted Redis lost the TTL key but kept the request
	delete(e.cache.deadlines, key)
	if err := e.svc.RecoverSuspended(ctx); err != nil {
		t.Fatalf("RecoverSuspended: %v", err)
	}
	if got, ok := e.cache.deadlines[key]; !ok || !got.Equal(req.Deadline) {
		t.Fatalf("expected deadline %v restored, got %v", req.Deadline, got)
	}

	e.clock = req.Deadline.Add(time.Hour)
	if err := e.svc.RecoverSuspended(ctx); err != nil {
		t.Fatalf("RecoverSuspended: %v", err)
	}
	if len(e.battleRepo.records) != 1 {
		t.Errorf("expected the overdue battle finished, got %d records", len(e.battleRepo.records))
	}
}

func TestBotsAnswerWithoutSuspending(t *testing.T) {
	e := newBattleEnv(t, "Germany", true)
	res, err := e.svc.FightAll(context.Background(), e.game.ID)
	if err != nil {
		t.Fatalf("FightAll: %v", err)
	}
	if res.Decision != nil {
		t.Fatalf("expected the bot to answer, got %+v", res.Decision)
	}
	if len(res.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(res.Records))
	}
	if n := e.events.count(EventDecisionRequested); n != 0 {
		t.Errorf("expected no decision events, got %d", n)
	}
}

func TestRecordsKeptWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Germany", true)
	e.battleRepo.failing = true

	res, err := e.svc.FightAll(ctx, e.game.ID)
	if err != nil {
		t.Fatalf("FightAll: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("expected no stored records, got %d", len(res.Records))
	}
	if _, tr, _ := loadSnapshot(t, e.cache, e.game.ID); len(tr.Records) != 1 {
		t.Fatalf("expected the record kept in the snapshot, got %d", len(tr.Records))
	}

	e.battleRepo.failing = false
	res, err = e.svc.FightAll(ctx, e.game.ID)
	if err != nil {
		t.Fatalf("FightAll: %v", err)
	}
	if len(res.Records) != 1 || len(e.battleRepo.records) != 1 {
		t.Errorf("expected the kept record stored, got %d / %d", len(res.Records), len(e.battleRepo.records))
	}
}

func TestRegisterAttack(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Germany", true)
	infantry := unitIDs(t, e.cache, e.game.ID, "Poland", "Germany", "infantry")
	if len(infantry) != 1 {
		t.Fatalf("expected 1 German infantry in Poland, got %v", infantry)
	}
	tanks := unitIDs(t, e.cache, e.game.ID, "Belorussia", "Germany", "tank")

	tests := []struct {
		name   string
		userID string
		req    AttackRequest
		want   error
	}{
		{"other nation", "user-1", AttackRequest{Attacker: "Russia", From: "Belorussia", To: "Poland", Units: tanks}, ErrNotYourNation},
		{"not my user", "user-2", AttackRequest{Attacker: "Germany", From: "Poland", To: "Belorussia", Units: infantry}, ErrNotYourNation},
		{"unknown unit", "user-1", AttackRequest{Attacker: "Germany", From: "Poland", To: "Belorussia", Units: []string{"ghost"}}, ErrInvalidAttack},
		{"wrong territory", "user-1", AttackRequest{Attacker: "Germany", From: "Poland", To: "Belorussia", Units: tanks}, ErrInvalidAttack},
		{"no units", "user-1", AttackRequest{Attacker: "Germany", From: "Poland", To: "Belorussia"}, ErrInvalidAttack},
		{"unknown target", "user-1", AttackRequest{Attacker: "Germany", From: "Poland", To: "Moscow", Units: infantry}, ErrInvalidAttack},
		{"already fighting", "user-1", AttackRequest{Attacker: "Germany", From: "Belorussia", To: "Poland", Units: tanks}, ErrInvalidAttack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.svc.RegisterAttack(ctx, e.game.ID, tt.userID, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	view, err := e.svc.RegisterAttack(ctx, e.game.ID, "user-1", AttackRequest{
		Attacker: "Germany", From: "Poland", To: "Belorussia", Units: infantry,
	})
	if err != nil {
		t.Fatalf("RegisterAttack: %v", err)
	}
	if len(view.Attacking) != 2 {
		t.Errorf("expected the infantry to join the tank, got %v", view.Attacking)
	}
	if !view.Ready {
		t.Error("expected the battle ready to fight")
	}
	if n := e.events.count(EventBattleRegistered); n != 1 {
		t.Errorf("expected 1 registration event, got %d", n)
	}
	if moved := unitIDs(t, e.cache, e.game.ID, "Belorussia", "Germany", "infantry"); len(moved) != 1 {
		t.Errorf("expected the infantry moved, got %v", moved)
	}
}

func TestEndPhase(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Germany", true)

	if err := e.svc.EndPhase(ctx, e.game.ID); !errors.Is(err, combat.ErrBattlesPending) {
		t.Fatalf("expected ErrBattlesPending, got %v", err)
	}
	if _, err := e.svc.FightAll(ctx, e.game.ID); err != nil {
		t.Fatalf("FightAll: %v", err)
	}
	if err := e.svc.EndPhase(ctx, e.game.ID); err != nil {
		t.Fatalf("EndPhase: %v", err)
	}
	if n := e.events.count(EventPhaseEnded); n != 1 {
		t.Errorf("expected 1 phase event, got %d", n)
	}
}

func TestEstimate(t *testing.T) {
	ctx := context.Background()
	e := newBattleEnv(t, "Germany", true)
	infantry := unitIDs(t, e.cache, e.game.ID, "Poland", "Germany", "infantry")

	odds, err := e.svc.Estimate(ctx, e.game.ID, EstimateRequest{
		Attacks: []AttackRequest{{Attacker: "Germany", From: "Poland", To: "Belorussia", Units: infantry}},
		Runs:    50,
		Seed:    7,
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if odds.Runs != 50 {
		t.Errorf("expected 50 runs, got %d", odds.Runs)
	}
	if sum := odds.AttackerWins + odds.DefenderWins + odds.Draws; sum != odds.Runs {
		t.Errorf("expected outcomes to add up to %d, got %d", odds.Runs, sum)
	}
	if _, tr, _ := loadSnapshot(t, e.cache, e.game.ID); len(tr.Battles) != 1 {
		t.Errorf("expected the stored game untouched, got %d battles", len(tr.Battles))
	}

	if _, err := e.svc.Estimate(ctx, e.game.ID, EstimateRequest{}); !errors.Is(err, ErrInvalidAttack) {
		t.Errorf("expected ErrInvalidAttack, got %v", err)
	}
}

func TestBattleServiceRequiresActiveGame(t *testing.T) {
	e := newBattleEnv(t, "Russia", false)
	if _, err := e.svc.FightAll(context.Background(), "missing"); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
	delete(e.cache.snapshots, e.game.ID)
	if _, err := e.svc.FightAll(context.Background(), e.game.ID); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

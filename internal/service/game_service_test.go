package service

import (
	"context"
	"errors"
	"testing"

	"github.com/freeeve/warcore/pkg/combat"
)

// A lone German tank attacks a Russian infantry and tank. Every die shows
// constDice(2), so the tanks hit and the infantry misses.
const skirmishYAML = `
name: skirmish
types:
  - {name: infantry, attack: 1, defense: 2, movement: 1, cost: 3}
  - {name: tank, attack: 3, defense: 3, movement: 2, cost: 6}
players:
  - {id: Germany, alliance: Axis}
  - {id: Russia, alliance: Allies}
territories:
  - {id: Poland, owner: Germany, neighbors: [Belorussia]}
  - {id: Belorussia, owner: Russia, neighbors: [Poland]}
units:
  - {territory: Poland, type: tank, owner: Germany, count: 1}
  - {territory: Poland, type: infantry, owner: Germany, count: 1}
  - {territory: Belorussia, type: infantry, owner: Russia, count: 1}
  - {territory: Belorussia, type: tank, owner: Russia, count: 1}
attacks:
  - {attacker: Germany, from: Poland, to: Belorussia, units: {tank: 1}}
`

// constDice rolls the same value on every die.
type constDice int

func (c constDice) Draw(max, count int, _ string) ([]int, error) {
	out := make([]int, count)
	for i := range out {
		out[i] = min(int(c), max-1)
	}
	return out, nil
}

func loadSnapshot(t *testing.T, cache *mockCache, gameID string) (*combat.State, *combat.Tracker, *combat.Rules) {
	t.Helper()
	data := cache.snapshots[gameID]
	if data == nil {
		t.Fatalf("no snapshot for %s", gameID)
	}
	s, tr, rules, err := combat.UnmarshalGame(data)
	if err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return s, tr, rules
}

func TestCreateGame(t *testing.T) {
	gameRepo := newMockGameRepo()
	cache := newMockCache()
	svc := NewGameService(gameRepo, newMockUserRepo(), cache, nil)

	game, err := svc.CreateGame(context.Background(), "user-ru", CreateGameRequest{
		Scenario: skirmishYAML,
		Nation:   "Russia",
	})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if game.Name != "skirmish" {
		t.Errorf("expected scenario name, got %q", game.Name)
	}
	if game.Status != "active" {
		t.Errorf("expected active, got %s", game.Status)
	}
	if len(game.Players) != 1 || game.Players[0].Nation != "Russia" {
		t.Fatalf("expected creator seated as Russia, got %+v", game.Players)
	}

	s, tr, _ := loadSnapshot(t, cache, game.ID)
	if len(tr.Battles) != 1 {
		t.Fatalf("expected 1 pending battle, got %d", len(tr.Battles))
	}
	for _, b := range tr.Battles {
		if b.Territory != "Belorussia" || b.Attacker != "Germany" {
			t.Errorf("unexpected battle %s in %s by %s", b.ID, b.Territory, b.Attacker)
		}
	}
	if n := len(s.UnitsIn("Belorussia")); n != 3 {
		t.Errorf("expected the tank moved in beside 2 defenders, got %d units", n)
	}
}

func TestCreateGameFillBots(t *testing.T) {
	gameRepo := newMockGameRepo()
	svc := NewGameService(gameRepo, newMockUserRepo(), newMockCache(), nil)

	game, err := svc.CreateGame(context.Background(), "user-de", CreateGameRequest{
		Name:          "Barbarossa",
		Scenario:      skirmishYAML,
		Nation:        "Germany",
		FillBots:      true,
		BotDifficulty: "hard",
	})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if game.Name != "Barbarossa" {
		t.Errorf("expected given name, got %q", game.Name)
	}
	ru := game.PlayerFor("Russia")
	if ru == nil || !ru.IsBot || ru.BotDifficulty != "hard" {
		t.Fatalf("expected hard bot for Russia, got %+v", ru)
	}
	if de := game.PlayerFor("Germany"); de == nil || de.IsBot || de.UserID != "user-de" {
		t.Errorf("expected creator as Germany, got %+v", de)
	}
}

func TestCreateGameMergesRules(t *testing.T) {
	cache := newMockCache()
	defaults := combat.NewRules(map[string]any{combat.RuleLowLuck: true, combat.RuleMaxSelectionTries: 2})
	svc := NewGameService(newMockGameRepo(), newMockUserRepo(), cache, defaults)
	svc.SetMaxSelectionRetries(5)

	scenario := skirmishYAML + "rules:\n  Low Luck: false\n"
	game, err := svc.CreateGame(context.Background(), "user-ru", CreateGameRequest{Scenario: scenario, Nation: "Russia"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	_, _, rules := loadSnapshot(t, cache, game.ID)
	if rules.LowLuck() {
		t.Error("expected the scenario to switch low luck off")
	}
	if n := rules.MaxSelectionTries(); n != 5 {
		t.Errorf("expected 5 selection tries, got %d", n)
	}
}

func TestCreateGameRejects(t *testing.T) {
	tests := []struct {
		name string
		req  CreateGameRequest
		want error
	}{
		{"bad difficulty", CreateGameRequest{Scenario: skirmishYAML, Nation: "Russia", BotDifficulty: "godlike"}, ErrInvalidDifficulty},
		{"unparsable", CreateGameRequest{Scenario: "name: [", Nation: "Russia"}, ErrInvalidScenario},
		{"unknown nation", CreateGameRequest{Scenario: skirmishYAML, Nation: "France"}, ErrInvalidNation},
		{"missing attackers", CreateGameRequest{
			Scenario: skirmishYAML + "  - {attacker: Germany, from: Poland, to: Belorussia, units: {tank: 4}}\n",
			Nation:   "Russia",
		}, ErrInvalidScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewGameService(newMockGameRepo(), newMockUserRepo(), newMockCache(), nil)
			_, err := svc.CreateGame(context.Background(), "user-1", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestJoinGame(t *testing.T) {
	ctx := context.Background()
	svc := NewGameService(newMockGameRepo(), newMockUserRepo(), newMockCache(), nil)
	game, err := svc.CreateGame(ctx, "user-ru", CreateGameRequest{Scenario: skirmishYAML, Nation: "Russia"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		nation string
		want   error
	}{
		{"creator again", "user-ru", "Germany", ErrAlreadyJoined},
		{"taken", "user-2", "Russia", ErrNationTaken},
		{"not on board", "user-2", "France", ErrInvalidNation},
		{"open seat", "user-2", "Germany", nil},
		{"seat now taken", "user-3", "Germany", ErrNationTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.JoinGame(ctx, game.ID, tt.userID, tt.nation)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := svc.RequireMember(ctx, game.ID, "user-2"); err != nil {
		t.Errorf("expected user-2 to be a member: %v", err)
	}
	if _, err := svc.RequireMember(ctx, game.ID, "user-3"); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestFinishGame(t *testing.T) {
	ctx := context.Background()
	cache := newMockCache()
	svc := NewGameService(newMockGameRepo(), newMockUserRepo(), cache, nil)
	game, err := svc.CreateGame(ctx, "user-ru", CreateGameRequest{Scenario: skirmishYAML, Nation: "Russia"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	if _, err := svc.FinishGame(ctx, game.ID, "user-2"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	finished, err := svc.FinishGame(ctx, game.ID, "user-ru")
	if err != nil {
		t.Fatalf("FinishGame: %v", err)
	}
	if finished.Status != "finished" || finished.FinishedAt == nil {
		t.Errorf("expected finished game, got %+v", finished)
	}
	if cache.snapshots[game.ID] != nil {
		t.Error("expected snapshot dropped")
	}
	if _, err := svc.FinishGame(ctx, game.ID, "user-ru"); !errors.Is(err, ErrGameNotActive) {
		t.Errorf("expected ErrGameNotActive, got %v", err)
	}
}

func TestDeleteGame(t *testing.T) {
	ctx := context.Background()
	gameRepo := newMockGameRepo()
	svc := NewGameService(gameRepo, newMockUserRepo(), newMockCache(), nil)
	game, err := svc.CreateGame(ctx, "user-ru", CreateGameRequest{Scenario: skirmishYAML, Nation: "Russia"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if err := svc.DeleteGame(ctx, game.ID, "user-2"); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	if err := svc.DeleteGame(ctx, game.ID, "user-ru"); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if _, err := svc.GetGame(ctx, game.ID); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
}

package bot

import (
	"context"
	"slices"
	"testing"

	"github.com/freeeve/warcore/pkg/combat"
)

const duelYAML = `
name: duel
rules:
  Land Battle Rounds: -1
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
  - {territory: Belorussia, type: infantry, owner: Germany, count: 1}
  - {territory: Belorussia, type: tank, owner: Germany, count: 6}
  - {territory: Belorussia, type: infantry, owner: Russia, count: 6}
`

func duelBoard(t *testing.T) (*combat.State, *combat.Rules) {
	t.Helper()
	sc, err := combat.ParseScenario([]byte(duelYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, rules, _, err := sc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return s, rules
}

func germanUnits(s *combat.State, typ string) []combat.UnitID {
	var ids []combat.UnitID
	for _, u := range combat.Filter(s.UnitsIn("Belorussia"), combat.OwnedBy("Germany").And(combat.OfType(typ))) {
		ids = append(ids, u.ID)
	}
	return ids
}

func retreatQuery(units []combat.UnitID) combat.RetreatQuery {
	return combat.RetreatQuery{
		BattleID:  "b1",
		Player:    "Germany",
		Territory: "Belorussia",
		Units:     units,
		Options:   []combat.TerritoryID{"Poland"},
	}
}

func TestForDifficulty(t *testing.T) {
	tests := []struct {
		difficulty string
		want       string
		retreats   bool
	}{
		{"", DifficultyEasy, false},
		{"easy", DifficultyEasy, false},
		{"medium", DifficultyMedium, true},
		{"hard", DifficultyHard, true},
		{"random", DifficultyRandom, false},
		{"impossible", DifficultyEasy, false},
	}
	for _, tt := range tests {
		d := ForDifficulty(tt.difficulty, nil, nil)
		if d.Difficulty != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.difficulty, tt.want, d.Difficulty)
		}
		if (d.RetreatBelow > 0) != tt.retreats {
			t.Errorf("%q: unexpected retreat threshold %.2f", tt.difficulty, d.RetreatBelow)
		}
	}
}

func TestRetreat_HopelessAttackLeaves(t *testing.T) {
	s, rules := duelBoard(t)
	d := ForDifficulty(DifficultyHard, s, rules)
	d.Seed = 7

	got, err := d.Retreat(context.Background(), retreatQuery(germanUnits(s, "infantry")))
	if err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if got != "Poland" {
		t.Errorf("one infantry against six should retreat, got %q", got)
	}
}

func TestRetreat_WinningAttackStays(t *testing.T) {
	s, rules := duelBoard(t)
	d := ForDifficulty(DifficultyHard, s, rules)
	d.Seed = 7

	units := append(germanUnits(s, "tank"), germanUnits(s, "infantry")...)
	got, err := d.Retreat(context.Background(), retreatQuery(units))
	if err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if got != "" {
		t.Errorf("seven units against six infantry should stay, got %q", got)
	}
	if n := len(s.UnitsIn("Belorussia")); n != 13 {
		t.Errorf("estimate must not touch the board, got %d units", n)
	}
}

func TestRetreat_EasyAndSubmergeStay(t *testing.T) {
	s, rules := duelBoard(t)
	q := retreatQuery(germanUnits(s, "infantry"))

	if got, _ := ForDifficulty(DifficultyEasy, s, rules).Retreat(context.Background(), q); got != "" {
		t.Errorf("easy bot should never retreat, got %q", got)
	}
	q.Submerge = true
	if got, _ := ForDifficulty(DifficultyHard, s, rules).Retreat(context.Background(), q); got != "" {
		t.Errorf("bots do not submerge, got %q", got)
	}
	q.Submerge, q.Options = false, nil
	if got, _ := ForDifficulty(DifficultyHard, s, rules).Retreat(context.Background(), q); got != "" {
		t.Errorf("no options means stay, got %q", got)
	}
}

func TestRandomBot(t *testing.T) {
	SeedBotRng(3)
	defer ResetBotRng()

	s, rules := duelBoard(t)
	d := ForDifficulty(DifficultyRandom, s, rules)
	russians := combat.Filter(s.UnitsIn("Belorussia"), combat.OwnedBy("Russia"))
	var ids []combat.UnitID
	for _, u := range russians {
		ids = append(ids, u.ID)
	}
	q := combat.CasualtyQuery{
		Player:     "Russia",
		Hits:       2,
		Candidates: ids,
		Default:    combat.CasualtyDetails{Killed: ids[:2]},
	}
	for range 20 {
		pick, err := d.SelectCasualties(context.Background(), q)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if len(pick.Killed) != 2 || pick.Killed[0] == pick.Killed[1] {
			t.Fatalf("expected two distinct casualties, got %v", pick.Killed)
		}
		for _, id := range pick.Killed {
			if !slices.Contains(ids, id) {
				t.Fatalf("casualty %s is not a candidate", id)
			}
		}
	}

	q.Attempt = 1
	if pick, _ := d.SelectCasualties(context.Background(), q); !slices.Equal(pick.Killed, ids[:2]) {
		t.Errorf("a retried question gets the default, got %v", pick.Killed)
	}

	seen := map[combat.TerritoryID]bool{}
	for range 50 {
		got, _ := d.Retreat(context.Background(), retreatQuery(germanUnits(s, "infantry")))
		seen[got] = true
	}
	if !seen[""] || !seen["Poland"] {
		t.Errorf("expected the random bot to both stay and retreat, got %v", seen)
	}
}

package combat

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func powersOf(units []*Unit, strength int) []UnitPower {
	out := make([]UnitPower, len(units))
	for i, u := range units {
		out[i] = UnitPower{Unit: u, Strength: strength, Rolls: 1}
	}
	return out
}

func TestConvertToHits_LowLuckWholeHitsDrawNothing(t *testing.T) {
	s := testBoard()
	inf := s.Place(belorussia, "infantry", russia, 3)
	rnd := NewScriptedRandom()

	roll, err := ConvertToHits(powersOf(inf, 2), 6, true, false, rnd, "low luck")
	if err != nil {
		t.Fatalf("ConvertToHits: %v", err)
	}
	if roll.Hits != 1 {
		t.Errorf("expected 1 hit from 6 power, got %d", roll.Hits)
	}
	if rnd.Calls != 0 {
		t.Errorf("expected no draws without a remainder, got %d", rnd.Calls)
	}
}

func TestConvertToHits_LowLuckRemainderRollsOnce(t *testing.T) {
	s := testBoard()
	inf := s.Place(belorussia, "infantry", russia, 3)

	tests := []struct {
		name  string
		value int
		want  int
	}{
		{"below remainder", 2, 1},
		{"at remainder", 3, 0},
		{"high", 5, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rnd := NewScriptedRandom(tc.value)
			roll, err := ConvertToHits(powersOf(inf, 1), 6, true, false, rnd, "low luck")
			if err != nil {
				t.Fatalf("ConvertToHits: %v", err)
			}
			if rnd.Calls != 1 {
				t.Errorf("expected exactly 1 draw for remainder 3, got %d", rnd.Calls)
			}
			if roll.Hits != tc.want {
				t.Errorf("value %d: expected %d hits, got %d", tc.value, tc.want, roll.Hits)
			}
			if len(roll.Dice) != 1 || roll.Dice[0].Strength != 3 {
				t.Errorf("expected one die of strength 3, got %+v", roll.Dice)
			}
		})
	}
}

func TestConvertToHits_StandardDiceOneBatch(t *testing.T) {
	s := testBoard()
	inf := s.Place(poland, "infantry", germany, 2)
	tank := s.Place(poland, "tank", germany, 1)
	powers := append(powersOf(inf, 1), powersOf(tank, 3)...)
	rnd := NewScriptedRandom(0, 1, 2)

	roll, err := ConvertToHits(powers, 6, false, false, rnd, "attack")
	if err != nil {
		t.Fatalf("ConvertToHits: %v", err)
	}
	if rnd.Calls != 1 {
		t.Errorf("expected one batched draw, got %d", rnd.Calls)
	}
	if roll.Hits != 2 {
		t.Errorf("expected 2 hits (inf 0<1, inf 1>=1, tank 2<3), got %d", roll.Hits)
	}
	if len(roll.Dice) != 3 {
		t.Errorf("expected 3 dice, got %d", len(roll.Dice))
	}
}

func TestConvertToHits_NoPowerNoDraw(t *testing.T) {
	s := testBoard()
	tr := s.Place(baltic, "transport", germany, 2)
	rnd := NewScriptedRandom()
	roll, err := ConvertToHits(powersOf(tr, 0), 6, false, false, rnd, "transports")
	if err != nil {
		t.Fatalf("ConvertToHits: %v", err)
	}
	if roll.Hits != 0 || rnd.Calls != 0 {
		t.Errorf("expected no hits and no draws, got %d hits, %d draws", roll.Hits, rnd.Calls)
	}
}

func TestConvertToHits_BestRollScoresOnce(t *testing.T) {
	s := testBoard()
	heavy := s.AddType(&UnitType{Name: "heavy bomber", Air: true, Attack: 4, AttackRolls: 2, ChooseBestRoll: true, Cost: 12})
	u := s.Place(poland, heavy.Name, germany, 1)
	rnd := NewScriptedRandom(0, 1)

	roll, err := ConvertToHits([]UnitPower{{Unit: u[0], Strength: 4, Rolls: 2}}, 6, false, true, rnd, "heavy")
	if err != nil {
		t.Fatalf("ConvertToHits: %v", err)
	}
	if roll.Hits != 1 {
		t.Errorf("expected a best-roll unit to score once, got %d hits", roll.Hits)
	}
}

func TestConvertToHits_ScriptExhausted(t *testing.T) {
	s := testBoard()
	inf := s.Place(poland, "infantry", germany, 2)
	_, err := ConvertToHits(powersOf(inf, 1), 6, false, false, NewScriptedRandom(0), "attack")
	if !errors.Is(err, ErrRandomExhausted) {
		t.Fatalf("expected ErrRandomExhausted, got %v", err)
	}
}

// Low luck never draws more than one die and never scores outside
// [total/sides, total/sides+1].
func TestConvertToHits_Property_LowLuckBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := testBoard()
		n := rapid.IntRange(1, 12).Draw(rt, "units")
		strength := rapid.IntRange(0, 6).Draw(rt, "strength")
		sides := rapid.SampledFrom([]int{6, 10, 12}).Draw(rt, "sides")
		value := rapid.IntRange(0, sides-1).Draw(rt, "value")
		units := s.Place(poland, "infantry", germany, n)

		rnd := NewScriptedRandom(value)
		roll, err := ConvertToHits(powersOf(units, strength), sides, true, false, rnd, "ll")
		if err != nil {
			rt.Fatalf("ConvertToHits: %v", err)
		}
		total := n * strength
		wantCalls := 0
		if total%sides != 0 {
			wantCalls = 1
		}
		if rnd.Calls != wantCalls {
			rt.Fatalf("total %d sides %d: expected %d draws, got %d", total, sides, wantCalls, rnd.Calls)
		}
		if roll.Hits < total/sides || roll.Hits > total/sides+1 {
			rt.Fatalf("total %d sides %d: %d hits out of bounds", total, sides, roll.Hits)
		}
	})
}

func TestRollDice_ArtillerySupportsInfantry(t *testing.T) {
	s := testBoard()
	inf := s.Place(belorussia, "infantry", germany, 2)
	art := s.Place(belorussia, "artillery", germany, 1)
	firing := append(inf, art...)
	pc := PowerContext{Rules: DefaultRules(), Territory: s.Territory(belorussia), Friendly: firing}

	powers := CalculatePower(firing, pc)
	got := make(map[string][]int)
	for _, p := range powers {
		got[p.Unit.Type] = append(got[p.Unit.Type], p.Strength)
	}
	supported := 0
	for _, v := range got["infantry"] {
		if v == 2 {
			supported++
		}
	}
	if supported != 1 {
		t.Errorf("expected one infantry raised to 2 by one artillery, got %v", got["infantry"])
	}

	// one die per unit, all in a single draw
	rnd := NewScriptedRandom(1, 1, 1)
	roll, err := RollDice(firing, pc, rnd, germany, "attack")
	if err != nil {
		t.Fatalf("RollDice: %v", err)
	}
	if roll.Hits != 2 {
		t.Errorf("expected supported infantry and artillery to hit on 1, got %d hits", roll.Hits)
	}
	if roll.Player != germany {
		t.Errorf("expected roll by %s, got %s", germany, roll.Player)
	}
}

func TestSeededRandom_Deterministic(t *testing.T) {
	a, _ := NewSeededRandom(7).Draw(6, 20, "a")
	b, _ := NewSeededRandom(7).Draw(6, 20, "b")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different values at %d: %d vs %d", i, a[i], b[i])
		}
		if a[i] < 0 || a[i] >= 6 {
			t.Fatalf("value %d out of range", a[i])
		}
	}
	if _, err := NewSeededRandom(1).Draw(0, 1, "bad"); err == nil {
		t.Error("expected an error for a zero-sided die")
	}
}

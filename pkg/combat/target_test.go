package combat

import (
	"slices"
	"testing"

	"pgregory.net/rapid"
)

// subBoard adds a submarine that planes cannot target without a destroyer.
func subBoard() *State {
	s := testBoard()
	s.AddType(&UnitType{Name: "submarine", Sea: true, Attack: 2, Defense: 1, Movement: 2, Cost: 6,
		FirstStrike: true, CanEvade: true, CanNotTarget: []string{"fighter", "bomber"}, CanNotBeTargetedBy: []string{"fighter", "bomber"}})
	return s
}

func TestGroupTargets_SubsAndPlanes(t *testing.T) {
	s := subBoard()
	ftr := s.Place(baltic, "fighter", germany, 2)
	dd := s.Place(baltic, "destroyer", germany, 1)
	sub := s.Place(baltic, "submarine", russia, 1)
	enemyDD := s.Place(baltic, "destroyer", russia, 1)
	firing := append(slices.Clone(ftr), dd...)
	enemies := append(slices.Clone(sub), enemyDD...)

	groups := GroupTargets(firing, enemies, false)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if !slices.Equal(groups[0].TargetTypes, []string{"destroyer"}) || !slices.Equal(groups[0].FiringTypes, []string{"fighter"}) {
		t.Errorf("expected fighters to target only the destroyer, got %+v", groups[0])
	}
	if len(groups[1].TargetTypes) != 2 || len(groups[1].Targets) != 2 {
		t.Errorf("expected the destroyer to target both ships, got %+v", groups[1])
	}

	// a friendly destroyer lets the fighters see the sub
	groups = GroupTargets(firing, enemies, true)
	if len(groups) != 1 || len(groups[0].Firing) != 3 {
		t.Errorf("expected one group of 3 with a destroyer present, got %d groups", len(groups))
	}
}

func TestLegalTargetTypes_CanNotTarget(t *testing.T) {
	s := subBoard()
	sub := s.Types["submarine"]
	got := LegalTargetTypes(sub, []*UnitType{s.Types["fighter"], s.Types["destroyer"]}, true)
	if !slices.Equal(got, []string{"destroyer"}) {
		t.Errorf("subs never hit planes, got %v", got)
	}
}

// Every firing unit ends up in exactly one group and every group's targets
// are of its target types.
func TestGroupTargets_Property_Partition(t *testing.T) {
	types := []string{"fighter", "bomber", "destroyer", "submarine", "battleship"}
	rapid.Check(t, func(rt *rapid.T) {
		s := subBoard()
		var firing, enemies []*Unit
		for _, typ := range types {
			firing = append(firing, s.Place(baltic, typ, germany, rapid.IntRange(0, 3).Draw(rt, "firing "+typ))...)
			enemies = append(enemies, s.Place(baltic, typ, russia, rapid.IntRange(0, 3).Draw(rt, "enemy "+typ))...)
		}
		destroyer := rapid.Bool().Draw(rt, "destroyer")

		groups := GroupTargets(firing, enemies, destroyer)
		count := make(map[UnitID]int)
		for _, g := range groups {
			for _, u := range g.Firing {
				count[u.ID]++
				if !slices.Contains(g.FiringTypes, u.Type) {
					rt.Fatalf("unit type %s missing from group firing types %v", u.Type, g.FiringTypes)
				}
			}
			for _, e := range g.Targets {
				if !slices.Contains(g.TargetTypes, e.Type) {
					rt.Fatalf("target %s outside group target types %v", e.Type, g.TargetTypes)
				}
			}
		}
		for _, u := range firing {
			if count[u.ID] != 1 {
				rt.Fatalf("unit %s in %d groups", u.ID, count[u.ID])
			}
		}
		if len(count) != len(firing) {
			rt.Fatalf("groups hold %d units, %d fired", len(count), len(firing))
		}
		for i := 1; i < len(groups); i++ {
			if len(groups[i-1].TargetTypes) > len(groups[i].TargetTypes) {
				rt.Fatal("groups not ordered by fewest target types")
			}
		}
	})
}

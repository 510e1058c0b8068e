package combat

import (
	"testing"
)

const (
	germany PlayerID = "Germany"
	russia  PlayerID = "Russia"
	britain PlayerID = "Britain"

	poland     TerritoryID = "Poland"
	belorussia TerritoryID = "Belorussia"
	moscow     TerritoryID = "Moscow"
	baltic     TerritoryID = "Baltic Sea"
	karelianSZ TerritoryID = "Karelian Sea"
)

// testBoard returns a small two-alliance map with the usual unit types.
// Poland borders Belorussia, which borders Moscow; the Baltic Sea touches
// Poland and the Karelian Sea.
func testBoard() *State {
	s := NewState()
	s.AddType(&UnitType{Name: "infantry", Attack: 1, Defense: 2, Movement: 1, Cost: 3})
	s.AddType(&UnitType{Name: "artillery", Attack: 2, Defense: 2, Movement: 1, Cost: 4, Supports: []SupportRule{{
		Name: "artillery", Bonus: 1, Number: 1, Offence: true, Allied: true, Recipients: []string{"infantry"},
	}}})
	s.AddType(&UnitType{Name: "tank", Attack: 3, Defense: 3, Movement: 2, Cost: 6})
	s.AddType(&UnitType{Name: "fighter", Air: true, Attack: 3, Defense: 4, Movement: 4, Cost: 10, AirAttack: 1, AirDefense: 1, CarrierCost: 1})
	s.AddType(&UnitType{Name: "bomber", Air: true, Attack: 4, Defense: 1, Movement: 6, Cost: 12, StrategicBomber: true})
	s.AddType(&UnitType{Name: "factory", Infrastructure: true, CanBeDamaged: true, CanBeCaptured: true, Cost: 15})
	s.AddType(&UnitType{Name: "transport", Sea: true, Transport: true, Movement: 2, Cost: 7})
	s.AddType(&UnitType{Name: "destroyer", Sea: true, Destroyer: true, Attack: 2, Defense: 2, Movement: 2, Cost: 8})
	s.AddType(&UnitType{Name: "battleship", Sea: true, Attack: 4, Defense: 4, HitPoints: 2, Repairable: true, Movement: 2, Cost: 20})

	s.AddPlayer(&Player{ID: germany, Alliance: "Axis", Resources: 30})
	s.AddPlayer(&Player{ID: russia, Alliance: "Allies", Resources: 20})
	s.AddPlayer(&Player{ID: britain, Alliance: "Allies", Resources: 25})

	s.AddTerritory(&Territory{ID: poland, Owner: germany, OriginalOwner: germany, Production: 2, Neighbors: []TerritoryID{belorussia, baltic}})
	s.AddTerritory(&Territory{ID: belorussia, Owner: russia, OriginalOwner: russia, Production: 2, Neighbors: []TerritoryID{poland, moscow}})
	s.AddTerritory(&Territory{ID: moscow, Owner: russia, OriginalOwner: russia, CapitalOf: russia, Production: 8, Neighbors: []TerritoryID{belorussia}})
	s.AddTerritory(&Territory{ID: baltic, Water: true, Neighbors: []TerritoryID{poland, karelianSZ}})
	s.AddTerritory(&Territory{ID: karelianSZ, Water: true, Neighbors: []TerritoryID{baltic}})
	return s
}

// commit moves units into the target and registers the attack.
func commit(t *testing.T, s *State, tr *Tracker, rules *Rules, from, to TerritoryID, units []*Unit) *Battle {
	t.Helper()
	if err := s.Apply(MoveUnits(from, to, units)); err != nil {
		t.Fatalf("move %s -> %s: %v", from, to, err)
	}
	b, err := tr.RegisterAttack(s, rules, Attack{Attacker: units[0].Owner, From: from, To: to, Units: units})
	if err != nil {
		t.Fatalf("register attack on %s: %v", to, err)
	}
	return b
}

func ids(units []*Unit) []UnitID { return unitIDs(units) }

func countOwned(s *State, territory TerritoryID, owner PlayerID) int {
	return len(Filter(s.UnitsIn(territory), OwnedBy(owner)))
}

package combat

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is a board and a set of attacks described in YAML, used by the
// battle simulator and in tests.
type Scenario struct {
	Name        string           `yaml:"name"`
	Rules       map[string]any   `yaml:"rules"`
	Types       []*UnitType      `yaml:"types"`
	Players     []*Player        `yaml:"players"`
	Territories []*Territory     `yaml:"territories"`
	Units       []Placement      `yaml:"units"`
	Attacks     []ScenarioAttack `yaml:"attacks"`
}

// Placement puts Count units of a type in a territory.
type Placement struct {
	Territory TerritoryID `yaml:"territory"`
	Type      string      `yaml:"type"`
	Owner     PlayerID    `yaml:"owner"`
	Count     int         `yaml:"count"`
	Hits      int         `yaml:"hits"`
}

// ScenarioAttack commits units of the listed types from one territory.
type ScenarioAttack struct {
	Attacker PlayerID       `yaml:"attacker"`
	From     TerritoryID    `yaml:"from"`
	To       TerritoryID    `yaml:"to"`
	Units    map[string]int `yaml:"units"`
	Bombard  map[string]int `yaml:"bombard"`
	Bombing  bool           `yaml:"bombing"`
	// Target names the unit type bombers aim at.
	Target string `yaml:"target"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &sc, nil
}

// Build creates the board and resolves the attacks against it. Attacking
// units stay where they are; Estimate moves them into place in its copies.
func (sc *Scenario) Build() (*State, *Rules, []Attack, error) {
	s := NewState()
	for _, t := range sc.Types {
		s.AddType(t)
	}
	for _, p := range sc.Players {
		s.AddPlayer(p)
	}
	for _, t := range sc.Territories {
		s.AddTerritory(t)
	}
	for _, pl := range sc.Units {
		if s.Types[pl.Type] == nil {
			return nil, nil, nil, fmt.Errorf("scenario %s: unknown unit type %q", sc.Name, pl.Type)
		}
		if s.Territory(pl.Territory) == nil {
			return nil, nil, nil, fmt.Errorf("scenario %s: unknown territory %q", sc.Name, pl.Territory)
		}
		for _, u := range s.Place(pl.Territory, pl.Type, pl.Owner, max(pl.Count, 1)) {
			u.Hits = pl.Hits
		}
	}

	taken := make(map[UnitID]bool)
	pick := func(from TerritoryID, owner PlayerID, want map[string]int) ([]*Unit, error) {
		var out []*Unit
		for _, typ := range slices.Sorted(maps.Keys(want)) {
			n := want[typ]
			for _, u := range s.UnitsIn(from) {
				if n == 0 {
					break
				}
				if u.Type == typ && u.Owner == owner && !taken[u.ID] {
					taken[u.ID] = true
					out = append(out, u)
					n--
				}
			}
			if n > 0 {
				return nil, fmt.Errorf("scenario %s: %d %s of %s missing in %s", sc.Name, n, typ, owner, from)
			}
		}
		return out, nil
	}

	var attacks []Attack
	for _, sa := range sc.Attacks {
		units, err := pick(sa.From, sa.Attacker, sa.Units)
		if err != nil {
			return nil, nil, nil, err
		}
		bombard, err := pick(sa.From, sa.Attacker, sa.Bombard)
		if err != nil {
			return nil, nil, nil, err
		}
		a := Attack{Attacker: sa.Attacker, From: sa.From, To: sa.To, Units: units, Bombarding: bombard, Bombing: sa.Bombing}
		if sa.Bombing && sa.Target != "" {
			a.Targets = make(map[UnitID]UnitID)
			target := Filter(s.UnitsIn(sa.To), OfType(sa.Target).And(EnemyOf(s, sa.Attacker)))
			if len(target) == 0 {
				return nil, nil, nil, fmt.Errorf("scenario %s: no %s to bomb in %s", sc.Name, sa.Target, sa.To)
			}
			for _, u := range Filter(units, IsStrategicBomber) {
				a.Targets[u.ID] = target[0].ID
			}
		}
		attacks = append(attacks, a)
	}
	return s, NewRules(sc.Rules), attacks, nil
}

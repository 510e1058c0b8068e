package combat

import (
	"fmt"
	"slices"
)

// TerritoryEffect modifies the strength of listed unit types fighting in a
// territory (e.g. mountains or jungle).
type TerritoryEffect struct {
	Name    string         `json:"name" yaml:"name"`
	Offense map[string]int `json:"offense,omitempty" yaml:"offense"`
	Defense map[string]int `json:"defense,omitempty" yaml:"defense"`
}

// Territory is a land territory or sea zone.
type Territory struct {
	ID            TerritoryID       `json:"id" yaml:"id"`
	Water         bool              `json:"water,omitempty" yaml:"water"`
	Owner         PlayerID          `json:"owner,omitempty" yaml:"owner"`
	OriginalOwner PlayerID          `json:"original_owner,omitempty" yaml:"original_owner"`
	CapitalOf     PlayerID          `json:"capital_of,omitempty" yaml:"capital_of"`
	Production    int               `json:"production,omitempty" yaml:"production"`
	Neighbors     []TerritoryID     `json:"neighbors,omitempty" yaml:"neighbors"`
	ConvoyFor     []TerritoryID     `json:"convoy_for,omitempty" yaml:"convoy_for"`
	Effects       []TerritoryEffect `json:"effects,omitempty" yaml:"effects"`
	Units         []UnitID          `json:"units,omitempty" yaml:"-"`
}

// EffectBonus returns the territory effect modifier for a unit type.
func (t *Territory) EffectBonus(typeName string, defending bool) int {
	if t == nil {
		return 0
	}
	total := 0
	for _, e := range t.Effects {
		if defending {
			total += e.Defense[typeName]
		} else {
			total += e.Offense[typeName]
		}
	}
	return total
}

// AABonus is a per-player modifier to anti-aircraft fire, such as radar.
type AABonus struct {
	Attack   int `json:"attack,omitempty" yaml:"attack"`
	DieSides int `json:"die_sides,omitempty" yaml:"die_sides"`
}

// Player is a nation in the game.
type Player struct {
	ID        PlayerID `json:"id" yaml:"id"`
	Alliance  string   `json:"alliance,omitempty" yaml:"alliance"`
	Resources int      `json:"resources,omitempty" yaml:"resources"`
	AA        AABonus  `json:"aa,omitempty" yaml:"aa"`
}

// State is the in-memory game model the combat engine reads and mutates
// through Change values. It is owned by the surrounding game; the engine
// never deletes a unit except by applying a removal change.
type State struct {
	Types       map[string]*UnitType       `json:"types"`
	Players     map[PlayerID]*Player       `json:"players"`
	Territories map[TerritoryID]*Territory `json:"territories"`
	Units       map[UnitID]*Unit           `json:"units"`
}

// NewState returns an empty game state.
func NewState() *State {
	return &State{
		Types:       make(map[string]*UnitType),
		Players:     make(map[PlayerID]*Player),
		Territories: make(map[TerritoryID]*Territory),
		Units:       make(map[UnitID]*Unit),
	}
}

// AddType registers a unit type.
func (s *State) AddType(t *UnitType) *UnitType {
	s.Types[t.Name] = t
	return t
}

// AddPlayer registers a player.
func (s *State) AddPlayer(p *Player) *Player {
	s.Players[p.ID] = p
	return p
}

// AddTerritory registers a territory.
func (s *State) AddTerritory(t *Territory) *Territory {
	s.Territories[t.ID] = t
	return t
}

// Place creates count units of typeName for owner in the territory and
// returns them in creation order.
func (s *State) Place(territory TerritoryID, typeName string, owner PlayerID, count int) []*Unit {
	t := s.Types[typeName]
	if t == nil {
		panic(fmt.Sprintf("combat: unknown unit type %q", typeName))
	}
	units := make([]*Unit, 0, count)
	for range count {
		u := NewUnit(t, owner)
		s.putUnit(territory, u)
		units = append(units, u)
	}
	return units
}

func (s *State) putUnit(territory TerritoryID, u *Unit) {
	u.Territory = territory
	if t := s.Types[u.Type]; t != nil {
		u.kind = t
	}
	s.Units[u.ID] = u
	if t := s.Territories[territory]; t != nil && !slices.Contains(t.Units, u.ID) {
		t.Units = append(t.Units, u.ID)
	}
}

// Bind resolves unit type pointers after the state was decoded.
func (s *State) Bind() error {
	for id, u := range s.Units {
		t := s.Types[u.Type]
		if t == nil {
			return fmt.Errorf("unit %s: unknown type %q", id, u.Type)
		}
		u.kind = t
	}
	return nil
}

// Unit returns the unit with the given ID, or nil.
func (s *State) Unit(id UnitID) *Unit {
	return s.Units[id]
}

// Territory returns the territory with the given ID, or nil.
func (s *State) Territory(id TerritoryID) *Territory {
	return s.Territories[id]
}

// Player returns the player with the given ID, or nil.
func (s *State) Player(id PlayerID) *Player {
	return s.Players[id]
}

// UnitsIn returns the units currently in the territory, in placement order.
func (s *State) UnitsIn(id TerritoryID) []*Unit {
	t := s.Territories[id]
	if t == nil {
		return nil
	}
	units := make([]*Unit, 0, len(t.Units))
	for _, uid := range t.Units {
		if u := s.Units[uid]; u != nil {
			units = append(units, u)
		}
	}
	return units
}

// Resolve maps IDs to units, skipping IDs that are no longer on the board.
func (s *State) Resolve(ids []UnitID) []*Unit {
	units := make([]*Unit, 0, len(ids))
	for _, id := range ids {
		if u := s.Units[id]; u != nil {
			units = append(units, u)
		}
	}
	return units
}

// ResolveIn is Resolve restricted to units located in the territory.
func (s *State) ResolveIn(territory TerritoryID, ids []UnitID) []*Unit {
	units := make([]*Unit, 0, len(ids))
	for _, id := range ids {
		if u := s.Units[id]; u != nil && u.Territory == territory {
			units = append(units, u)
		}
	}
	return units
}

// Allied reports whether two players fight on the same side.
func (s *State) Allied(a, b PlayerID) bool {
	if a == b {
		return true
	}
	pa, pb := s.Players[a], s.Players[b]
	if pa == nil || pb == nil {
		return false
	}
	return pa.Alliance != "" && pa.Alliance == pb.Alliance
}

// AtWar reports whether a and b are enemies. Unowned territory has no owner
// and is never at war with anyone.
func (s *State) AtWar(a, b PlayerID) bool {
	if a == "" || b == "" {
		return false
	}
	return !s.Allied(a, b)
}

// Capitals returns the capitals of player currently controlled by the player
// or an ally.
func (s *State) Capitals(player PlayerID) (all, held []TerritoryID) {
	for _, t := range s.Territories {
		if t.CapitalOf != player {
			continue
		}
		all = append(all, t.ID)
		if s.Allied(t.Owner, player) {
			held = append(held, t.ID)
		}
	}
	slices.Sort(all)
	slices.Sort(held)
	return all, held
}

// Clone returns a deep copy of the state. Units in the copy are rebound to
// the copied types so the clone can be mutated independently, which is
// what speculative evaluation needs.
func (s *State) Clone() *State {
	c := NewState()
	for name, t := range s.Types {
		tc := *t
		c.Types[name] = &tc
	}
	for id, p := range s.Players {
		pc := *p
		c.Players[id] = &pc
	}
	for id, t := range s.Territories {
		tc := *t
		tc.Units = slices.Clone(t.Units)
		tc.Neighbors = slices.Clone(t.Neighbors)
		tc.ConvoyFor = slices.Clone(t.ConvoyFor)
		c.Territories[id] = &tc
	}
	for id, u := range s.Units {
		uc := u.clone()
		uc.kind = c.Types[u.Type]
		c.Units[id] = uc
	}
	return c
}

package combat

import (
	"fmt"
	"slices"
)

// ChangeKind identifies a kind of game-state mutation.
type ChangeKind string

const (
	ChangeComposite      ChangeKind = "composite"
	ChangeAddUnits       ChangeKind = "add_units"
	ChangeRemoveUnits    ChangeKind = "remove_units"
	ChangeMoveUnits      ChangeKind = "move_units"
	ChangeTerritoryOwner ChangeKind = "territory_owner"
	ChangeUnitOwner      ChangeKind = "unit_owner"
	ChangeUnitHits       ChangeKind = "unit_hits"
	ChangeBombingDamage  ChangeKind = "bombing_damage"
	ChangeUnitFlag       ChangeKind = "unit_flag"
	ChangeResources      ChangeKind = "resources"
	ChangeTransportedBy  ChangeKind = "transported_by"
)

// Unit flags that can be toggled with a flag change.
const (
	FlagSubmerged     = "submerged"
	FlagWasInCombat   = "was_in_combat"
	FlagWasAmphibious = "was_amphibious"
)

// IntUpdate records an old and new integer value for a unit.
type IntUpdate struct {
	Unit UnitID `json:"unit"`
	Old  int    `json:"old"`
	New  int    `json:"new"`
}

// FlagUpdate records an old and new flag value for a unit.
type FlagUpdate struct {
	Unit UnitID `json:"unit"`
	Old  bool   `json:"old"`
	New  bool   `json:"new"`
}

// OwnerUpdate records a unit's owner before and after a change.
type OwnerUpdate struct {
	Unit UnitID   `json:"unit"`
	Old  PlayerID `json:"old"`
	New  PlayerID `json:"new"`
}

// CargoUpdate records which transport carries a unit before and after a
// change; an empty transport means the unit is unloaded.
type CargoUpdate struct {
	Unit UnitID `json:"unit"`
	Old  UnitID `json:"old,omitempty"`
	New  UnitID `json:"new,omitempty"`
}

// Change is a reversible mutation of the game state. Every change the
// engine makes is expressed as a Change so the surrounding game can undo
// moves and replay history.
type Change struct {
	Kind      ChangeKind    `json:"kind"`
	Territory TerritoryID   `json:"territory,omitempty"`
	To        TerritoryID   `json:"to,omitempty"`
	Units     []*Unit       `json:"units,omitempty"`
	UnitIDs   []UnitID      `json:"unit_ids,omitempty"`
	Player    PlayerID      `json:"player,omitempty"`
	OldOwner  PlayerID      `json:"old_owner,omitempty"`
	NewOwner  PlayerID      `json:"new_owner,omitempty"`
	Flag      string        `json:"flag,omitempty"`
	Ints      []IntUpdate   `json:"ints,omitempty"`
	Flags     []FlagUpdate  `json:"flags,omitempty"`
	Owners    []OwnerUpdate `json:"owners,omitempty"`
	Cargo     []CargoUpdate `json:"cargo,omitempty"`
	Delta     int           `json:"delta,omitempty"`
	Children  []Change      `json:"children,omitempty"`
}

// Empty reports whether applying the change would do nothing.
func (c Change) Empty() bool {
	switch c.Kind {
	case ChangeComposite:
		for _, ch := range c.Children {
			if !ch.Empty() {
				return false
			}
		}
		return true
	case ChangeAddUnits, ChangeRemoveUnits:
		return len(c.Units) == 0
	case ChangeMoveUnits:
		return len(c.UnitIDs) == 0
	case ChangeUnitHits, ChangeBombingDamage:
		return len(c.Ints) == 0
	case ChangeUnitFlag:
		return len(c.Flags) == 0
	case ChangeUnitOwner:
		return len(c.Owners) == 0
	case ChangeTransportedBy:
		return len(c.Cargo) == 0
	case ChangeResources:
		return c.Delta == 0
	case ChangeTerritoryOwner:
		return c.OldOwner == c.NewOwner
	}
	return true
}

// Invert returns the change that undoes c.
func (c Change) Invert() Change {
	switch c.Kind {
	case ChangeComposite:
		inv := Change{Kind: ChangeComposite, Children: make([]Change, len(c.Children))}
		for i, ch := range c.Children {
			inv.Children[len(c.Children)-1-i] = ch.Invert()
		}
		return inv
	case ChangeAddUnits:
		return Change{Kind: ChangeRemoveUnits, Territory: c.Territory, Units: c.Units}
	case ChangeRemoveUnits:
		return Change{Kind: ChangeAddUnits, Territory: c.Territory, Units: c.Units}
	case ChangeMoveUnits:
		return Change{Kind: ChangeMoveUnits, Territory: c.To, To: c.Territory, UnitIDs: c.UnitIDs}
	case ChangeTerritoryOwner:
		return Change{Kind: ChangeTerritoryOwner, Territory: c.Territory, OldOwner: c.NewOwner, NewOwner: c.OldOwner}
	case ChangeUnitHits, ChangeBombingDamage:
		inv := Change{Kind: c.Kind, Ints: make([]IntUpdate, len(c.Ints))}
		for i, u := range c.Ints {
			inv.Ints[i] = IntUpdate{Unit: u.Unit, Old: u.New, New: u.Old}
		}
		return inv
	case ChangeUnitFlag:
		inv := Change{Kind: ChangeUnitFlag, Flag: c.Flag, Flags: make([]FlagUpdate, len(c.Flags))}
		for i, f := range c.Flags {
			inv.Flags[i] = FlagUpdate{Unit: f.Unit, Old: f.New, New: f.Old}
		}
		return inv
	case ChangeUnitOwner:
		inv := Change{Kind: ChangeUnitOwner, Owners: make([]OwnerUpdate, len(c.Owners))}
		for i, o := range c.Owners {
			inv.Owners[i] = OwnerUpdate{Unit: o.Unit, Old: o.New, New: o.Old}
		}
		return inv
	case ChangeTransportedBy:
		inv := Change{Kind: ChangeTransportedBy, Cargo: make([]CargoUpdate, len(c.Cargo))}
		for i, u := range c.Cargo {
			inv.Cargo[i] = CargoUpdate{Unit: u.Unit, Old: u.New, New: u.Old}
		}
		return inv
	case ChangeResources:
		return Change{Kind: ChangeResources, Player: c.Player, Delta: -c.Delta}
	}
	return c
}

// Composite bundles changes, dropping empty ones.
func Composite(changes ...Change) Change {
	c := Change{Kind: ChangeComposite}
	for _, ch := range changes {
		if !ch.Empty() {
			c.Children = append(c.Children, ch)
		}
	}
	return c
}

// RemoveUnits builds a change removing units from a territory.
func RemoveUnits(territory TerritoryID, units []*Unit) Change {
	snap := make([]*Unit, len(units))
	for i, u := range units {
		snap[i] = u.clone()
	}
	return Change{Kind: ChangeRemoveUnits, Territory: territory, Units: snap}
}

// AddUnits builds a change placing units in a territory.
func AddUnits(territory TerritoryID, units []*Unit) Change {
	snap := make([]*Unit, len(units))
	for i, u := range units {
		snap[i] = u.clone()
	}
	return Change{Kind: ChangeAddUnits, Territory: territory, Units: snap}
}

// MoveUnits builds a change moving units between territories.
func MoveUnits(from, to TerritoryID, units []*Unit) Change {
	return Change{Kind: ChangeMoveUnits, Territory: from, To: to, UnitIDs: unitIDs(units)}
}

// TerritoryOwner builds a change transferring a territory.
func TerritoryOwner(t *Territory, newOwner PlayerID) Change {
	return Change{Kind: ChangeTerritoryOwner, Territory: t.ID, OldOwner: t.Owner, NewOwner: newOwner}
}

// UnitOwner builds a change transferring units to a new owner.
func UnitOwner(units []*Unit, newOwner PlayerID) Change {
	c := Change{Kind: ChangeUnitOwner}
	for _, u := range units {
		c.Owners = append(c.Owners, OwnerUpdate{Unit: u.ID, Old: u.Owner, New: newOwner})
	}
	return c
}

// UnitsHit builds a change setting the hit count of units.
func UnitsHit(newHits map[*Unit]int) Change {
	c := Change{Kind: ChangeUnitHits}
	for u, h := range newHits {
		c.Ints = append(c.Ints, IntUpdate{Unit: u.ID, Old: u.Hits, New: h})
	}
	slices.SortFunc(c.Ints, func(a, b IntUpdate) int { return compareIDs(a.Unit, b.Unit) })
	return c
}

// BombingDamage builds a change setting bombing damage on units.
func BombingDamage(newDamage map[*Unit]int) Change {
	c := Change{Kind: ChangeBombingDamage}
	for u, d := range newDamage {
		c.Ints = append(c.Ints, IntUpdate{Unit: u.ID, Old: u.BombingDamage, New: d})
	}
	slices.SortFunc(c.Ints, func(a, b IntUpdate) int { return compareIDs(a.Unit, b.Unit) })
	return c
}

// UnitFlag builds a change setting a boolean unit property.
func UnitFlag(units []*Unit, flag string, value bool) Change {
	c := Change{Kind: ChangeUnitFlag, Flag: flag}
	for _, u := range units {
		old := unitFlag(u, flag)
		if old != value {
			c.Flags = append(c.Flags, FlagUpdate{Unit: u.ID, Old: old, New: value})
		}
	}
	return c
}

// Unload builds a change clearing the transport of cargo units.
func Unload(units []*Unit) Change {
	c := Change{Kind: ChangeTransportedBy}
	for _, u := range units {
		if u.TransportedBy != "" {
			c.Cargo = append(c.Cargo, CargoUpdate{Unit: u.ID, Old: u.TransportedBy})
		}
	}
	return c
}

// Resources builds a change adjusting a player's resources.
func Resources(player PlayerID, delta int) Change {
	return Change{Kind: ChangeResources, Player: player, Delta: delta}
}

func compareIDs(a, b UnitID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func unitFlag(u *Unit, flag string) bool {
	switch flag {
	case FlagSubmerged:
		return u.Submerged
	case FlagWasInCombat:
		return u.WasInCombat
	case FlagWasAmphibious:
		return u.WasAmphibious
	}
	return false
}

func setUnitFlag(u *Unit, flag string, v bool) error {
	switch flag {
	case FlagSubmerged:
		u.Submerged = v
	case FlagWasInCombat:
		u.WasInCombat = v
	case FlagWasAmphibious:
		u.WasAmphibious = v
	default:
		return fmt.Errorf("unknown unit flag %q", flag)
	}
	return nil
}

// Apply performs the change on the state. It implements Mutator.
func (s *State) Apply(c Change) error {
	switch c.Kind {
	case ChangeComposite:
		for i, ch := range c.Children {
			if err := s.Apply(ch); err != nil {
				return fmt.Errorf("composite change %d: %w", i, err)
			}
		}
	case ChangeAddUnits:
		for _, u := range c.Units {
			if _, exists := s.Units[u.ID]; exists {
				return invariant("add units", "unit %s already on the board", u.ID)
			}
			s.putUnit(c.Territory, u.clone())
		}
	case ChangeRemoveUnits:
		t := s.Territories[c.Territory]
		for _, u := range c.Units {
			cur := s.Units[u.ID]
			if cur == nil || cur.Territory != c.Territory {
				return invariant("remove units", "unit %s is not in %s", u.ID, c.Territory)
			}
			delete(s.Units, u.ID)
			if t != nil {
				t.Units = removeIDs(t.Units, []UnitID{u.ID})
			}
		}
	case ChangeMoveUnits:
		from, to := s.Territories[c.Territory], s.Territories[c.To]
		if from == nil || to == nil {
			return fmt.Errorf("move units %s -> %s: unknown territory", c.Territory, c.To)
		}
		for _, id := range c.UnitIDs {
			u := s.Units[id]
			if u == nil || u.Territory != c.Territory {
				return invariant("move units", "unit %s is not in %s", id, c.Territory)
			}
			from.Units = removeIDs(from.Units, []UnitID{id})
			to.Units = append(to.Units, id)
			u.Territory = c.To
		}
	case ChangeTerritoryOwner:
		t := s.Territories[c.Territory]
		if t == nil {
			return fmt.Errorf("territory owner: unknown territory %s", c.Territory)
		}
		t.Owner = c.NewOwner
	case ChangeUnitOwner:
		for _, o := range c.Owners {
			u := s.Units[o.Unit]
			if u == nil {
				return fmt.Errorf("unit owner: unknown unit %s", o.Unit)
			}
			u.Owner = o.New
		}
	case ChangeUnitHits, ChangeBombingDamage:
		for _, h := range c.Ints {
			u := s.Units[h.Unit]
			if u == nil {
				return fmt.Errorf("%s: unknown unit %s", c.Kind, h.Unit)
			}
			if c.Kind == ChangeUnitHits {
				u.Hits = h.New
			} else {
				u.BombingDamage = h.New
			}
		}
	case ChangeUnitFlag:
		for _, f := range c.Flags {
			u := s.Units[f.Unit]
			if u == nil {
				return fmt.Errorf("unit flag: unknown unit %s", f.Unit)
			}
			if err := setUnitFlag(u, c.Flag, f.New); err != nil {
				return err
			}
		}
	case ChangeTransportedBy:
		for _, cu := range c.Cargo {
			u := s.Units[cu.Unit]
			if u == nil {
				return fmt.Errorf("transported by: unknown unit %s", cu.Unit)
			}
			u.TransportedBy = cu.New
		}
	case ChangeResources:
		p := s.Players[c.Player]
		if p == nil {
			return fmt.Errorf("resources: unknown player %s", c.Player)
		}
		p.Resources += c.Delta
	default:
		return fmt.Errorf("unknown change kind %q", c.Kind)
	}
	return nil
}

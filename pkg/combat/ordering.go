package combat

import (
	"cmp"
	"slices"
)

// UnitComparator orders units from most to least expendable. It reads only
// attributes that do not change while a battle resolves, so two engines
// given the same state produce the same order.
type UnitComparator struct {
	Defending bool
	Territory *Territory
	DiceSides int
	// Costs overrides the per-type cost; types not listed use UnitType.Cost.
	Costs map[string]int
	// Transporting holds units currently carrying cargo.
	Transporting map[UnitID]bool
	// Bonus adds the role bonuses to the primary power.
	Bonus bool
	// IgnorePrimaryPower skips the first key; support interleaving uses it
	// to break ties between units of equal effective power.
	IgnorePrimaryPower bool
}

// NewUnitComparator returns the comparator used for default casualties.
func NewUnitComparator(s *State, territory TerritoryID, defending bool, diceSides int) UnitComparator {
	return UnitComparator{
		Defending:    defending,
		Territory:    s.Territory(territory),
		DiceSides:    diceSides,
		Transporting: transportingUnits(s),
		Bonus:        true,
	}
}

func transportingUnits(s *State) map[UnitID]bool {
	out := make(map[UnitID]bool)
	for _, u := range s.Units {
		if u.TransportedBy != "" {
			out[u.TransportedBy] = true
		}
	}
	return out
}

func (c UnitComparator) cost(u *Unit) int {
	if v, ok := c.Costs[u.Type]; ok {
		return v
	}
	return u.kind.Cost
}

func (c UnitComparator) sides() int {
	if c.DiceSides > 0 {
		return c.DiceSides
	}
	return 6
}

// Power is the primary sort key: eight times the unsupported firing power
// plus role bonuses.
func (c UnitComparator) Power(u *Unit, defending bool) int {
	p := 8 * SortingPower(u, c.Territory, defending, c.sides())
	if !c.Bonus {
		return p
	}
	t := u.kind
	if t.CanEvade || t.FirstStrike {
		p += 4
	}
	if t.Destroyer {
		p += 4
	}
	if t.Repairable && t.MaxHitPoints() > 1 {
		p++
	}
	if c.Transporting[u.ID] {
		p++
	}
	if t.CarrierCapacity > 0 || t.Transport || t.Air && t.CarrierCost > 0 {
		p++
	}
	return p
}

// roleRank orders roles: sub or destroyer, then repairable, then
// transporting, then air, carrier or transport, then everything else.
func (c UnitComparator) roleRank(u *Unit) int {
	t := u.kind
	switch {
	case t.CanEvade || t.FirstStrike || t.Destroyer:
		return 4
	case t.Repairable && t.MaxHitPoints() > 1:
		return 3
	case c.Transporting[u.ID]:
		return 2
	case t.Air || t.CarrierCapacity > 0 || t.Transport:
		return 1
	}
	return 0
}

// Compare returns a negative number when a should be lost before b.
func (c UnitComparator) Compare(a, b *Unit) int {
	if a == b {
		return 0
	}
	if !c.IgnorePrimaryPower {
		if d := cmp.Compare(c.Power(a, c.Defending), c.Power(b, c.Defending)); d != 0 {
			return d
		}
	}
	if d := cmp.Compare(c.cost(a), c.cost(b)); d != 0 {
		return d
	}
	if d := cmp.Compare(c.Power(a, !c.Defending), c.Power(b, !c.Defending)); d != 0 {
		return d
	}
	if d := cmp.Compare(c.roleRank(a), c.roleRank(b)); d != 0 {
		return d
	}
	if d := cmp.Compare(a.kind.Movement, b.kind.Movement); d != 0 {
		return d
	}
	// damaged units go first
	return cmp.Compare(a.RemainingHitPoints(), b.RemainingHitPoints())
}

// SortUnits sorts units most expendable first. Equal units keep their
// relative order.
func SortUnits(units []*Unit, c UnitComparator) {
	slices.SortStableFunc(units, c.Compare)
}

// SortWithSupport orders units for casualty selection, interleaving
// supporters with the units they boost. At each step it takes the unit
// whose loss costs the least firing power, counting both its own power and
// the support it currently gives to units still in the list.
func SortWithSupport(units []*Unit, c UnitComparator, pc PowerContext) []*Unit {
	remaining := slices.Clone(units)
	SortUnits(remaining, c)
	// strongest first so support is handed to the best recipients
	slices.Reverse(remaining)
	pc.Friendly = remaining
	alloc := AllocateSupport(remaining, remaining, pc.Defending, true)
	powers := make(map[UnitID]UnitPower, len(remaining))
	for _, p := range CalculatePower(remaining, pc) {
		powers[p.Unit.ID] = p
	}
	slices.Reverse(remaining)

	tie := c
	tie.IgnorePrimaryPower = true
	sides := pc.Rules.DiceSides()
	out := make([]*Unit, 0, len(units))
	for len(remaining) > 0 {
		var worst *Unit
		minPower := 0
		seen := make(map[string]bool)
		for _, u := range remaining {
			if seen[u.Type] {
				continue
			}
			seen[u.Type] = true
			power := powers[u.ID].Total()
			for rid, bonus := range alloc.Given[u.ID] {
				if rp, ok := powers[rid]; ok {
					without := clamp(rp.Strength-bonus, 0, sides)
					power += (rp.Strength - without) * rp.Rolls
				}
			}
			for rid, bonus := range alloc.GivenRolls[u.ID] {
				if rp, ok := powers[rid]; ok {
					power += rp.Strength * min(bonus, rp.Rolls)
				}
			}
			if worst == nil || power < minPower || power == minPower && tie.Compare(u, worst) < 0 {
				worst, minPower = u, power
			}
		}

		var lost []UnitID
		for rid, bonus := range alloc.Given[worst.ID] {
			if rp, ok := powers[rid]; ok {
				rp.Strength = clamp(rp.Strength-bonus, 0, sides)
				powers[rid] = rp
				lost = append(lost, rid)
			}
		}
		for rid, bonus := range alloc.GivenRolls[worst.ID] {
			if rp, ok := powers[rid]; ok {
				rp.Rolls = max(rp.Rolls-bonus, 0)
				powers[rid] = rp
				lost = append(lost, rid)
			}
		}
		// units that lost their support move to the front of the queue
		slices.Sort(lost)
		for _, rid := range slices.Compact(lost) {
			if j := slices.IndexFunc(remaining, func(x *Unit) bool { return x.ID == rid }); j > 0 {
				r := remaining[j]
				remaining = slices.Insert(slices.Delete(remaining, j, j+1), 0, r)
			}
		}
		idx := slices.IndexFunc(remaining, func(x *Unit) bool { return x.ID == worst.ID })
		remaining = slices.Delete(remaining, idx, idx+1)
		delete(powers, worst.ID)
		out = append(out, worst)
	}
	return out
}

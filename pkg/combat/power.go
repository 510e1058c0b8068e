package combat

import (
	"cmp"
	"slices"
)

// UnitPower is the strength and number of dice one unit fires with.
type UnitPower struct {
	Unit     *Unit
	Strength int
	Rolls    int
}

// Total returns strength times rolls.
func (p UnitPower) Total() int { return p.Strength * p.Rolls }

// PowerContext is everything needed to compute firing power for one side.
type PowerContext struct {
	Rules     *Rules
	Territory *Territory
	Defending bool
	// Friendly are all units on the firing side, including the firing units,
	// used to find support providers.
	Friendly []*Unit
	// Enemy are the opposing units, whose negative support applies.
	Enemy []*Unit
	// AirBattle uses the air attack and air defense values with no support
	// and no territory effects.
	AirBattle bool
}

// SupportAllocation records which supporter boosted which recipient.
type SupportAllocation struct {
	Strength map[UnitID]int
	Rolls    map[UnitID]int
	// Given and GivenRolls map supporter -> recipient -> bonus granted.
	Given      map[UnitID]map[UnitID]int
	GivenRolls map[UnitID]map[UnitID]int
}

func newSupportAllocation() SupportAllocation {
	return SupportAllocation{
		Strength:   make(map[UnitID]int),
		Rolls:      make(map[UnitID]int),
		Given:      make(map[UnitID]map[UnitID]int),
		GivenRolls: make(map[UnitID]map[UnitID]int),
	}
}

type supportSlot struct {
	supporter *Unit
	rule      SupportRule
	left      int
}

// AllocateSupport distributes the support rules of supporters over the
// recipients in order. Each supporter helps at most rule.Number units, and a
// recipient receives at most one bonus of each bonus type.
func AllocateSupport(recipients, supporters []*Unit, defending, friendly bool) SupportAllocation {
	alloc := newSupportAllocation()
	var slots []supportSlot
	for _, s := range supporters {
		for _, rule := range s.kind.Supports {
			if defending && !rule.Defence || !defending && !rule.Offence {
				continue
			}
			if friendly && !rule.Allied || !friendly && !rule.Enemy {
				continue
			}
			if rule.Number <= 0 || rule.Bonus == 0 {
				continue
			}
			slots = append(slots, supportSlot{supporter: s, rule: rule, left: rule.Number})
		}
	}
	if len(slots) == 0 {
		return alloc
	}
	// strongest bonuses are handed out first
	slices.SortStableFunc(slots, func(a, b supportSlot) int {
		return cmp.Compare(abs(b.rule.Bonus), abs(a.rule.Bonus))
	})
	for _, r := range recipients {
		used := make(map[string]bool)
		for i := range slots {
			sl := &slots[i]
			if sl.left == 0 || used[sl.rule.bonusType()] || !sl.rule.supports(r.Type) {
				continue
			}
			used[sl.rule.bonusType()] = true
			sl.left--
			target, given := alloc.Strength, alloc.Given
			if sl.rule.Rolls {
				target, given = alloc.Rolls, alloc.GivenRolls
			}
			target[r.ID] += sl.rule.Bonus
			if given[sl.supporter.ID] == nil {
				given[sl.supporter.ID] = make(map[UnitID]int)
			}
			given[sl.supporter.ID][r.ID] += sl.rule.Bonus
		}
	}
	return alloc
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// CalculatePower computes the strength and rolls of each firing unit,
// combining base values, friendly and enemy support, amphibious and
// bombardment modifiers and territory effects.
func CalculatePower(units []*Unit, pc PowerContext) []UnitPower {
	friendly := pc.Friendly
	if friendly == nil {
		friendly = units
	}
	sides := pc.Rules.DiceSides()
	if pc.AirBattle {
		powers := make([]UnitPower, len(units))
		for i, u := range units {
			strength := u.kind.AirAttack
			if pc.Defending {
				strength = u.kind.AirDefense
			}
			strength = clamp(strength, 0, sides)
			rolls := 0
			if strength > 0 {
				rolls = u.kind.Rolls(pc.Defending)
			}
			powers[i] = UnitPower{Unit: u, Strength: strength, Rolls: rolls}
		}
		return powers
	}
	ally := AllocateSupport(units, friendly, pc.Defending, true)
	enemy := AllocateSupport(units, pc.Enemy, pc.Defending, false)

	powers := make([]UnitPower, len(units))
	for i, u := range units {
		t := u.kind
		strength := baseStrength(u, pc.Territory, pc.Defending)
		strength += ally.Strength[u.ID] + enemy.Strength[u.ID]
		strength += pc.Territory.EffectBonus(u.Type, pc.Defending)
		strength = clamp(strength, 0, sides)

		rolls := t.Rolls(pc.Defending) + ally.Rolls[u.ID] + enemy.Rolls[u.ID]
		rolls = max(rolls, 0)
		if strength == 0 {
			rolls = 0
		}
		if rolls == 0 {
			strength = 0
		}
		powers[i] = UnitPower{Unit: u, Strength: strength, Rolls: rolls}
	}
	return powers
}

func baseStrength(u *Unit, territory *Territory, defending bool) int {
	t := u.kind
	if defending {
		return t.Defense
	}
	strength := t.Attack
	if t.Sea && territory != nil && !territory.Water && t.Bombard > 0 {
		strength = t.Bombard
	}
	if u.WasAmphibious {
		strength += t.AmphibiousBonus
	}
	return strength
}

// TotalPower sums strength times rolls over the powers.
func TotalPower(powers []UnitPower) int {
	total := 0
	for _, p := range powers {
		total += p.Total()
	}
	return total
}

// SortingPower is the power used to order units for casualty selection. It
// ignores support so the result depends only on the unit itself.
func SortingPower(u *Unit, territory *Territory, defending bool, diceSides int) int {
	strength := baseStrength(u, territory, defending) + territory.EffectBonus(u.Type, defending)
	strength = clamp(strength, 0, diceSides)
	return strength * u.kind.Rolls(defending)
}

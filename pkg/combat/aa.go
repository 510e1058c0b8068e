package combat

import (
	"fmt"
	"slices"
)

// AAShot is one anti-aircraft die at the strength of the gun that fires it.
type AAShot struct {
	Gun      UnitID `json:"gun"`
	Strength int    `json:"strength"`
}

// AARoll is the outcome of anti-aircraft fire.
type AARoll struct {
	DiceRoll
	DieSides      int  `json:"die_sides"`
	HighestAttack int  `json:"highest_attack"`
	AllSameAttack bool `json:"all_same_attack"`
	Shots         int  `json:"shots"`
}

// AAStrength returns a gun's attack and die sides after the owner's
// bonuses, with the attack capped at the die sides.
func AAStrength(s *State, u *Unit, offensive bool, diceSides int) (attack, sides int) {
	aa := u.kind.AA
	if aa == nil {
		return 0, diceSides
	}
	attack, sides = aa.Attack, aa.MaxDieSides
	if offensive {
		attack, sides = aa.OffensiveAttack, aa.OffensiveMaxDieSides
	}
	if sides < 1 {
		sides = diceSides
	}
	if p := s.Player(u.Owner); p != nil && attack > 0 {
		attack += p.AA.Attack
		if p.AA.DieSides > 0 {
			sides = p.AA.DieSides
		}
	}
	return min(attack, sides), sides
}

// MaxAAAttackAndDieSides picks the gun with the best attack to die sides
// ratio and returns its attack and die sides.
func MaxAAAttackAndDieSides(s *State, guns []*Unit, offensive bool, diceSides int) (attack, sides int) {
	sides = diceSides
	for _, g := range guns {
		a, d := AAStrength(s, g, offensive, diceSides)
		if a*sides > attack*d {
			attack, sides = a, d
		}
	}
	return attack, sides
}

// ValidAATargets returns the air units the guns may shoot at: enemy air of
// the profile's target types, or all enemy air when none are listed.
func ValidAATargets(guns, targets []*Unit) []*Unit {
	var types []string
	for _, g := range guns {
		if g.kind.AA != nil {
			types = append(types, g.kind.AA.Targets...)
		}
	}
	return Filter(targets, func(u *Unit) bool {
		if !u.kind.Air {
			return false
		}
		return len(types) == 0 || slices.Contains(types, u.Type)
	})
}

// AAFiresInRound reports whether the gun may fire in the given round.
func AAFiresInRound(u *Unit, round int) bool {
	aa := u.kind.AA
	if aa == nil {
		return false
	}
	if aa.MaxRounds < 0 {
		return true
	}
	return round <= max(aa.MaxRounds, 1)
}

// AAShots lists every shot the guns take at the targets. Limited guns fire
// their own shots unless an unlimited gun is at least as strong, in which
// case it fires once per target for everyone. Ordinary shots never exceed
// the target count; over-stacking guns add theirs on top.
func AAShots(s *State, guns, targets []*Unit, offensive bool, diceSides int) []AAShot {
	if len(guns) == 0 || len(targets) == 0 {
		return nil
	}
	var infinite *Unit
	infAttack, infSides := 0, diceSides
	for _, g := range guns {
		a, d := AAStrength(s, g, offensive, diceSides)
		if a == 0 || g.kind.AA.MaxAttacks >= 0 {
			continue
		}
		if infinite == nil || a*infSides > infAttack*d {
			infinite, infAttack, infSides = g, a, d
		}
	}

	var normal, surplus []AAShot
	for _, g := range guns {
		a, d := AAStrength(s, g, offensive, diceSides)
		aa := g.kind.AA
		if a == 0 || aa.MaxAttacks < 0 {
			continue
		}
		if aa.MayOverStack {
			for range aa.MaxAttacks {
				surplus = append(surplus, AAShot{Gun: g.ID, Strength: a})
			}
			continue
		}
		if infinite != nil && infAttack*d >= a*infSides {
			continue
		}
		for range aa.MaxAttacks {
			normal = append(normal, AAShot{Gun: g.ID, Strength: a})
		}
	}
	// strongest limited shots first so a cap drops the weakest
	slices.SortStableFunc(normal, func(a, b AAShot) int { return b.Strength - a.Strength })
	if infinite != nil {
		for len(normal) < len(targets) {
			normal = append(normal, AAShot{Gun: infinite.ID, Strength: infAttack})
		}
	}
	if len(normal) > len(targets) {
		normal = normal[:len(targets)]
	}
	return append(normal, surplus...)
}

// RollAA fires the guns at the targets. Under low luck the total shot
// strength is divided by the die sides and a single die decides the
// remainder. Otherwise all shots are drawn in one batch.
func RollAA(s *State, rules *Rules, guns, targets []*Unit, offensive bool, rnd RandomSource, annotation string) (AARoll, error) {
	diceSides := rules.DiceSides()
	shots := AAShots(s, guns, targets, offensive, diceSides)
	highest, sides := MaxAAAttackAndDieSides(s, guns, offensive, diceSides)
	roll := AARoll{DiceRoll: DiceRoll{Annotation: annotation}, DieSides: sides, HighestAttack: highest, Shots: len(shots)}
	if len(shots) == 0 {
		return roll, nil
	}
	if len(guns) > 0 {
		roll.Player = guns[0].Owner
	}
	roll.AllSameAttack = true
	total := 0
	for _, sh := range shots {
		total += sh.Strength
		if sh.Strength != shots[0].Strength {
			roll.AllSameAttack = false
		}
	}

	if rules.LowLuckAA() {
		roll.Hits = total / sides
		if rem := total % sides; rem > 0 {
			vals, err := rnd.Draw(sides, 1, annotation)
			if err != nil {
				return roll, fmt.Errorf("low luck aa roll: %w", err)
			}
			d := Die{Value: vals[0], Strength: rem, Hit: vals[0] < rem}
			if d.Hit {
				roll.Hits++
			}
			roll.Dice = []Die{d}
		}
		return roll, nil
	}

	vals, err := rnd.Draw(sides, len(shots), annotation)
	if err != nil {
		return roll, fmt.Errorf("aa roll: %w", err)
	}
	for i, sh := range shots {
		d := Die{Value: vals[i], Strength: sh.Strength, Hit: vals[i] < sh.Strength}
		if d.Hit {
			roll.Hits++
		}
		roll.Dice = append(roll.Dice, d)
	}
	return roll, nil
}

// AATypes returns the distinct AA type names among the guns, in order.
func AATypes(guns []*Unit) []string {
	var types []string
	for _, g := range guns {
		if g.kind.AA != nil && !slices.Contains(types, g.kind.AA.aaType()) {
			types = append(types, g.kind.AA.aaType())
		}
	}
	return types
}

// GunsOfAAType returns the guns whose profile has the given AA type.
func GunsOfAAType(guns []*Unit, aaType string) []*Unit {
	return Filter(guns, func(u *Unit) bool { return u.kind.AA != nil && u.kind.AA.aaType() == aaType })
}

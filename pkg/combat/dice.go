package combat

import "fmt"

// Die is one rolled die. Value is zero based; the die hits when Value is
// below Strength.
type Die struct {
	Value    int  `json:"value"`
	Strength int  `json:"strength"`
	Hit      bool `json:"hit"`
}

// DiceRoll is the outcome of one firing event.
type DiceRoll struct {
	Player     PlayerID `json:"player,omitempty"`
	Annotation string   `json:"annotation,omitempty"`
	Dice       []Die    `json:"dice,omitempty"`
	Hits       int      `json:"hits"`
}

// ConvertToHits turns firing power into hits. Under low luck the hit count is
// totalPower / dieSides with a single die rolled for the remainder. Otherwise
// every roll is drawn in one batch and a die hits when its value is below the
// strength of the unit that threw it. Nothing is drawn when there is no
// power or no rolls.
func ConvertToHits(powers []UnitPower, dieSides int, lowLuck, bestRoll bool, rnd RandomSource, annotation string) (DiceRoll, error) {
	roll := DiceRoll{Annotation: annotation}
	totalPower, totalRolls := 0, 0
	for _, p := range powers {
		totalPower += p.Total()
		totalRolls += p.Rolls
	}
	if totalPower == 0 || totalRolls == 0 {
		return roll, nil
	}

	if lowLuck {
		roll.Hits = totalPower / dieSides
		if rem := totalPower % dieSides; rem > 0 {
			vals, err := rnd.Draw(dieSides, 1, annotation)
			if err != nil {
				return roll, fmt.Errorf("low luck roll: %w", err)
			}
			d := Die{Value: vals[0], Strength: rem, Hit: vals[0] < rem}
			if d.Hit {
				roll.Hits++
			}
			roll.Dice = []Die{d}
		}
		return roll, nil
	}

	vals, err := rnd.Draw(dieSides, totalRolls, annotation)
	if err != nil {
		return roll, fmt.Errorf("roll dice: %w", err)
	}
	if len(vals) != totalRolls {
		return roll, invariant("roll dice", "asked for %d dice, got %d", totalRolls, len(vals))
	}
	i := 0
	for _, p := range powers {
		// a best-roll unit scores at most once no matter how many dice it throws
		single := bestRoll && p.Unit != nil && p.Unit.kind.ChooseBestRoll
		scored := false
		for range p.Rolls {
			d := Die{Value: vals[i], Strength: p.Strength, Hit: vals[i] < p.Strength}
			i++
			if d.Hit && !(single && scored) {
				roll.Hits++
				scored = true
			} else {
				d.Hit = false
			}
			roll.Dice = append(roll.Dice, d)
		}
	}
	return roll, nil
}

// RollDice computes power for the firing units and converts it to hits
// using the rule set's dice sides and low luck setting.
func RollDice(units []*Unit, pc PowerContext, rnd RandomSource, player PlayerID, annotation string) (DiceRoll, error) {
	powers := CalculatePower(units, pc)
	roll, err := ConvertToHits(powers, pc.Rules.DiceSides(), pc.Rules.LowLuck(), pc.Rules.Bool(RuleLHTRHeavyBombers), rnd, annotation)
	roll.Player = player
	return roll, err
}

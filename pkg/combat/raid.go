package combat

import (
	"fmt"
	"slices"
)

// canBeBombed matches units that strategic bombing can damage.
func canBeBombed(u *Unit) bool { return u.kind.CanBeDamaged }

// raidDefenders lists what a bombing raid faces: enemy bombing AA and the
// units it can damage. Explicit targets narrow the damageable units.
func (b *Battle) raidDefenders(s *State) []*Unit {
	enemy := EnemyOf(s, b.Attacker).And(Predicate(IsBeingTransported).Not())
	here := Filter(s.UnitsIn(b.Territory), enemy)
	aa := Filter(here, IsAA(false, true))
	targets := Filter(here, canBeBombed)
	if len(b.BombingTargets) > 0 {
		var chosen []UnitID
		for _, id := range b.BombingTargets {
			chosen = append(chosen, id)
		}
		if narrowed := Filter(targets, InList(chosen)); len(narrowed) > 0 {
			targets = narrowed
		}
	}
	out := aa
	for _, u := range targets {
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

func (b *Battle) startRaid(br *Bridge, tr *Tracker) error {
	s := br.State
	b.Attacking = unitIDs(Filter(b.units(s, false), IsAir))
	b.Defending = unitIDs(b.raidDefenders(s))
	if !AnyMatch(b.units(s, false), IsStrategicBomber) || !AnyMatch(b.units(s, true), canBeBombed) {
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		b.WhoWon, b.Result = WinnerDraw, ResultNoBattle
		br.event("no bombing raid in %s", b.Territory)
		b.finish(br, tr)
		return nil
	}
	br.event("%s bombs %s", b.Attacker, b.Territory)
	var steps []Step
	if AnyMatch(b.units(s, true), IsAA(false, true)) {
		steps = append(steps, Step{Kind: StepRaidAA})
	}
	b.push(append(steps, Step{Kind: StepRaidBomb}, Step{Kind: StepRaidEnd})...)
	return nil
}

// raidAA fires the defender's bombing AA at the raiders. Hits kill
// outright and nothing fires back.
func (b *Battle) raidAA(br *Bridge) {
	s := br.State
	guns := Filter(b.units(s, true), IsAA(false, true))
	raiders := b.units(s, false)
	var steps []Step
	for _, aaType := range AATypes(guns) {
		typed := GunsOfAAType(guns, aaType)
		targets := ValidAATargets(typed, raiders)
		if len(targets) == 0 {
			continue
		}
		steps = append(steps, Step{Kind: StepRoll, Volley: &Volley{
			Defending:  true,
			Firing:     unitIDs(typed),
			Targets:    unitIDs(targets),
			Return:     ReturnNone,
			AA:         true,
			AAType:     aaType,
			Annotation: b.annotation(true, "fire "+aaType+" at bombers"),
		}})
	}
	if len(steps) > 0 {
		br.history().Sound(SoundBattleAA, b.Defender)
	}
	b.push(steps...)
}

// bombingCost rolls one bomber's damage. Low luck with dice of five or more
// sides rolls a third of a die on top of a fixed third.
func bombingCost(rules *Rules, rnd RandomSource, bomber *Unit, annotation string) (int, []int, error) {
	t := bomber.kind
	rolls := t.Rolls(false)
	sides := rules.DiceSides()
	bonus := t.BombingBonus
	if rules.LowLuck() && sides >= 5 {
		bonus += (sides + 1) / 3
		sides = (sides + 1) / 3
	}
	vals, err := rnd.Draw(sides, rolls, annotation)
	if err != nil {
		return 0, nil, fmt.Errorf("bombing roll: %w", err)
	}
	best := rolls > 1 && (rules.Bool(RuleLHTRHeavyBombers) || t.ChooseBestRoll)
	cost := 0
	for _, v := range vals {
		die := max(-1, v+bonus) + 1
		if best {
			cost = max(cost, die)
		} else {
			cost += die
		}
	}
	return max(0, cost), vals, nil
}

// maxBombingDamage is how much bombing damage a unit can carry in total.
func maxBombingDamage(u *Unit, t *Territory) int {
	if u.kind.MaxDamage > 0 {
		return u.kind.MaxDamage
	}
	if t == nil {
		return 0
	}
	return 2 * t.Production
}

// bombingTarget returns the unit a bomber aims at: its chosen target when
// that is still here, else the first damageable defender.
func (b *Battle) bombingTarget(s *State, bomber *Unit) *Unit {
	candidates := Filter(b.units(s, true), canBeBombed)
	if id, ok := b.BombingTargets[bomber.ID]; ok {
		if u := unitByID(candidates, id); u != nil {
			return u
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func (b *Battle) raidBomb(br *Bridge, tr *Tracker) error {
	s, rules := br.State, br.Rules
	bombers := Filter(b.units(s, false), IsStrategicBomber)
	if len(bombers) == 0 {
		return nil
	}
	site := s.Territory(b.Territory)
	toUnits := rules.Bool(RuleBombingDamagesUnits)
	capProduction := rules.Bool(RuleWW2V2) || rules.Bool(RuleLimitBombingToProduction)

	damage := make(map[*Unit]int)
	total := 0
	for _, bomber := range bombers {
		cost, dice, err := bombingCost(rules, br.Random, bomber, b.annotation(false, "bomb "+string(b.Territory)))
		if err != nil {
			return err
		}
		if toUnits {
			target := b.bombingTarget(s, bomber)
			if target == nil {
				continue
			}
			current, ok := damage[target]
			if !ok {
				current = target.BombingDamage
			}
			cost = min(cost, max(0, maxBombingDamage(target, site)-current))
			damage[target] = current + cost
		}
		br.history().Detail(fmt.Sprintf("%s bombs for %d", bomber.Type, cost), dice)
		total += cost
	}

	if !toUnits && site != nil {
		if capProduction {
			total = min(total, site.Production)
		}
		if rules.Bool(RuleLimitBombingToUnitDamage) {
			total = min(total, max(0, site.Production-tr.bombingLost(b.Territory)))
		}
		have := 0
		if p := s.Player(b.Defender); p != nil {
			have = p.Resources
		}
		if err := br.Apply(Resources(b.Defender, -min(total, have))); err != nil {
			return fmt.Errorf("bombing losses in %s: %w", b.Territory, err)
		}
		tr.addBombingLost(b.Territory, total)
	}
	if len(damage) > 0 {
		if err := br.Apply(BombingDamage(damage)); err != nil {
			return fmt.Errorf("bombing damage in %s: %w", b.Territory, err)
		}
	}
	b.BombingTotal = total
	if total > 0 {
		br.history().Sound(SoundBombing, b.Attacker)
	}
	br.event("bombing raid in %s costs %s %d", b.Territory, b.Defender, total)
	return nil
}

func (b *Battle) raidEnd(br *Bridge, tr *Tracker) error {
	s := br.State
	if err := b.remove(br, tr, Filter(b.units(s, false), IsSuicide(false))); err != nil {
		return err
	}
	if err := b.endBattle(br, tr); err != nil {
		return err
	}
	if b.BombingTotal > 0 {
		b.WhoWon, b.Result = WinnerAttacker, ResultBombed
		br.history().Sound(SoundBattleWon, b.Attacker)
	} else {
		b.WhoWon, b.Result = WinnerDefender, ResultLost
		br.history().Sound(SoundBattleLost, b.Attacker)
	}
	b.finish(br, tr)
	return nil
}

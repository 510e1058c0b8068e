package combat

import (
	"context"
	"fmt"
)

// Fight runs the battle until it ends or a player decision is outstanding.
// It returns ErrAwaitingDecision when suspended; calling Fight again with a
// decision source that has the answer continues from the same step. Use
// Tracker.Fight, which refuses battles that still depend on others.
func (b *Battle) Fight(ctx context.Context, br *Bridge, tr *Tracker) error {
	if b.Over {
		return ErrBattleOver
	}
	b.Reconcile(br.State)
	if !b.Started {
		b.Started = true
		if err := b.start(br, tr); err != nil {
			return err
		}
	}
	return b.run(ctx, br, tr)
}

// combatDefenders lists the units that defend the territory against the
// attacker: enemy units that are not cargo and not submerged.
func (b *Battle) combatDefenders(s *State) []*Unit {
	return Filter(s.UnitsIn(b.Territory), EnemyOf(s, b.Attacker).And(
		Predicate(IsBeingTransported).Not(),
		Predicate(IsSubmerged).Not(),
	))
}

func (b *Battle) start(br *Bridge, tr *Tracker) error {
	s := br.State
	switch b.Kind {
	case KindFinished, KindNonFighting:
		return b.finishWithoutFight(br, tr)
	case KindBombingRaid:
		return b.startRaid(br, tr)
	case KindAirBattle, KindAirRaid:
		return b.startAirBattle(br, tr)
	}

	b.Defending = unitIDs(b.combatDefenders(s))
	br.event("%s attacks %s in %s", b.Attacker, b.Defender, b.Territory)
	if !AnyMatch(b.units(s, false), IsNotInfrastructure) {
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		return b.defenderWins(br, tr, ResultLost)
	}
	if !AnyMatch(b.units(s, true), IsNotInfrastructure) {
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		return b.attackerWins(br, tr)
	}
	cue := SoundBattleLand
	switch t := s.Territory(b.Territory); {
	case t != nil && t.Water:
		cue = SoundBattleSea
	case AllMatch(b.units(s, false), IsAir):
		cue = SoundBattleAir
	}
	br.history().Sound(cue, b.Attacker)
	b.push(Step{Kind: StepStartRound})
	return nil
}

// startRound pushes the steps of the current round.
func (b *Battle) startRound(br *Bridge) {
	s, rules := br.State, br.Rules
	first := b.Round == 1
	var steps []Step

	offensiveAA := len(b.aaGuns(s, false)) > 0
	defensiveAA := len(b.aaGuns(s, true)) > 0
	if offensiveAA {
		steps = append(steps, Step{Kind: StepFireAA})
	}
	if defensiveAA {
		steps = append(steps, Step{Kind: StepFireAA, Defending: true})
	}
	if offensiveAA || defensiveAA {
		steps = append(steps, Step{Kind: StepClearWaitingToDie})
	}
	if !first {
		steps = append(steps, Step{Kind: StepRemoveNonCombatants})
	} else {
		if b.Amphibious && len(b.Bombarding) > 0 {
			steps = append(steps, Step{Kind: StepNavalBombard})
		}
		steps = append(steps,
			Step{Kind: StepSuicideFire},
			Step{Kind: StepSuicideFire, Defending: true},
			Step{Kind: StepRemoveNonCombatants},
		)
	}

	if rules.Bool(RuleSubRetreatBeforeBattle) {
		steps = append(steps, Step{Kind: StepSubsRetreat}, Step{Kind: StepSubsRetreat, Defending: true})
	}
	steps = append(steps, Step{Kind: StepCheckSuicide})
	if rules.Bool(RuleTransportCasualtiesRestrict) {
		steps = append(steps, Step{Kind: StepUndefendedTransports})
	}
	if rules.Bool(RuleAirAttackSubRestricted) {
		steps = append(steps, Step{Kind: StepSubmergeVsAir})
	}
	steps = append(steps, b.fireOrder(br)...)
	steps = append(steps,
		Step{Kind: StepClearWaitingToDie},
		Step{Kind: StepCheckSuicide},
		Step{Kind: StepEndCheck},
	)
	if !rules.Bool(RuleSubRetreatBeforeBattle) {
		steps = append(steps, Step{Kind: StepSubsRetreat}, Step{Kind: StepSubsRetreat, Defending: true})
	}
	steps = append(steps,
		Step{Kind: StepPlanesRetreat},
		Step{Kind: StepPartialRetreat},
		Step{Kind: StepAttackerRetreat},
		Step{Kind: StepNextRound},
	)
	br.event("%s round %d", b.Territory, b.Round)
	b.push(steps...)
}

func (b *Battle) subsSneakAttack(rules *Rules) bool {
	return rules.Bool(RuleWW2V2) || rules.Bool(RuleDefendingSubsSneakAttack)
}

// returnFireAgainstAttackingSubs decides whether units hit by attacking
// subs fire back. A defending destroyer always allows it.
func (b *Battle) returnFireAgainstAttackingSubs(br *Bridge) ReturnFire {
	s, rules := br.State, br.Rules
	attackingSneak := !AnyMatch(b.units(s, true), IsDestroyer)
	defendingSneak := !AnyMatch(b.units(s, false), IsDestroyer) && b.subsSneakAttack(rules)
	switch {
	case !attackingSneak:
		return ReturnAll
	case defendingSneak || rules.Bool(RuleWW2V2):
		return ReturnSubs
	}
	return ReturnNone
}

func (b *Battle) returnFireAgainstDefendingSubs(br *Bridge) ReturnFire {
	s, rules := br.State, br.Rules
	attackingSneak := !AnyMatch(b.units(s, true), IsDestroyer)
	defendingSneak := !AnyMatch(b.units(s, false), IsDestroyer) && b.subsSneakAttack(rules)
	switch {
	case !defendingSneak:
		return ReturnAll
	case attackingSneak || rules.Bool(RuleWW2V2):
		return ReturnSubs
	}
	return ReturnNone
}

// fireOrder returns the fire steps of a round. Subs fire first where their
// sneak attack applies; otherwise defending subs fire alongside the rest of
// the defense.
func (b *Battle) fireOrder(br *Bridge) []Step {
	rules := br.Rules
	againstAttacking := b.returnFireAgainstAttackingSubs(br)
	againstDefending := b.returnFireAgainstDefendingSubs(br)
	defenderFirst := againstAttacking == ReturnAll && againstDefending == ReturnNone
	sneak := b.subsSneakAttack(rules)
	defendWithAll := !defenderFirst && !rules.Bool(RuleWW2V2) && againstDefending == ReturnAll
	airRestricted := rules.Bool(RuleAirAttackSubRestricted)

	defendSubs := Step{Kind: StepFireSubs, Defending: true, Return: againstDefending}
	var steps []Step
	if defenderFirst {
		steps = append(steps, defendSubs)
	}
	steps = append(steps, Step{Kind: StepFireSubs, Return: againstAttacking})
	if sneak && !defenderFirst && !defendWithAll {
		steps = append(steps, defendSubs)
	}
	if airRestricted {
		steps = append(steps, Step{Kind: StepFireAirOnNonSubs})
	}
	steps = append(steps, Step{Kind: StepFireNonSubs})
	if !defenderFirst && (!sneak || defendWithAll) {
		steps = append(steps, defendSubs)
	}
	if airRestricted {
		steps = append(steps, Step{Kind: StepFireAirOnNonSubs, Defending: true})
	}
	return append(steps, Step{Kind: StepFireNonSubs, Defending: true})
}

// participates reports whether a unit takes part in the given round.
// Land units at sea, ships on land and infrastructure that can neither
// fire nor support sit the battle out.
func (b *Battle) participates(s *State, u *Unit, defending bool) bool {
	t := s.Territory(b.Territory)
	water := t != nil && t.Water
	switch {
	case water && u.kind.Land():
		return false
	case !water && u.kind.Sea:
		return false
	}
	if !u.kind.Infrastructure {
		return true
	}
	if u.kind.BaseStrength(defending) > 0 || len(u.kind.Supports) > 0 {
		return true
	}
	return u.kind.AA != nil && AAFiresInRound(u, b.Round)
}

func (b *Battle) removeNonCombatants(br *Bridge) {
	for _, defending := range []bool{false, true} {
		var out []UnitID
		for _, u := range b.units(br.State, defending) {
			if b.participates(br.State, u, defending) {
				out = append(out, u.ID)
			}
		}
		*b.roster(defending) = out
	}
}

func (b *Battle) finishWithoutFight(br *Bridge, tr *Tracker) error {
	if err := b.endBattle(br, tr); err != nil {
		return err
	}
	if b.IsEmpty() {
		b.WhoWon, b.Result = WinnerDraw, ResultNoBattle
		tr.addRecord(br.State, b)
		return nil
	}
	br.event("%s takes %s without a fight", b.Attacker, b.Territory)
	return b.attackerWins(br, tr)
}

func (b *Battle) annotation(defending bool, what string) string {
	return fmt.Sprintf("%s %s", b.player(defending), what)
}

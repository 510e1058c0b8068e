package combat

import (
	"context"
	"fmt"
)

// airDefenders returns the enemy planes that rise to intercept.
func airDefenders(s *State, territory TerritoryID, attacker PlayerID) []*Unit {
	return Filter(s.UnitsIn(territory), EnemyOf(s, attacker).And(
		IsAir,
		Predicate(IsBeingTransported).Not(),
		func(u *Unit) bool { return u.kind.AirDefense > 0 },
	))
}

// CouldHaveAirBattle reports whether the territory holds planes that would
// intercept an attacker.
func CouldHaveAirBattle(s *State, territory TerritoryID, attacker PlayerID) bool {
	return len(airDefenders(s, territory, attacker)) > 0
}

// airShouldFight reports whether the air battle continues. A raid keeps
// going only while bombers are left.
func (b *Battle) airShouldFight(s *State) bool {
	att, def := b.units(s, false), b.units(s, true)
	if len(def) == 0 || len(att) == 0 {
		return false
	}
	return b.Kind != KindAirRaid || AnyMatch(att, IsStrategicBomber)
}

func (b *Battle) startAirBattle(br *Bridge, tr *Tracker) error {
	s := br.State
	b.Attacking = unitIDs(Filter(b.units(s, false), IsAir))
	b.Defending = unitIDs(airDefenders(s, b.Territory, b.Attacker))
	if !b.airShouldFight(s) {
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		b.WhoWon, b.Result = WinnerAttacker, ResultNoBattle
		b.finish(br, tr)
		return nil
	}
	br.event("air battle in %s", b.Territory)
	br.history().Sound(SoundBattleAir, b.Attacker)
	b.push(Step{Kind: StepAirRound})
	return nil
}

func (b *Battle) airRound(br *Bridge) {
	br.event("%s air battle round %d", b.Territory, b.Round)
	b.push(
		Step{Kind: StepAirFire},
		Step{Kind: StepAirFire, Defending: true},
		Step{Kind: StepAirCleanup},
		Step{Kind: StepAirEndCheck},
		Step{Kind: StepAirRetreat},
		Step{Kind: StepAirRetreat, Defending: true},
		Step{Kind: StepAirNextRound},
	)
}

// airFire rolls one volley for a side using air attack or air defense.
// Casualties fire back before the cleanup step removes them.
func (b *Battle) airFire(br *Bridge, defending bool) {
	s := br.State
	firing := Filter(b.unitsWithWaiting(s, defending), func(u *Unit) bool {
		if defending {
			return u.kind.AirDefense > 0
		}
		return u.kind.AirAttack > 0
	})
	targets := Filter(b.units(s, !defending), IsAir)
	if len(firing) == 0 || len(targets) == 0 {
		return
	}
	b.push(Step{Kind: StepRoll, Volley: &Volley{
		Defending:  defending,
		Firing:     unitIDs(firing),
		Targets:    unitIDs(targets),
		Return:     ReturnAll,
		Air:        true,
		Annotation: b.annotation(defending, "air battle fire"),
	}})
}

func (b *Battle) airCleanup(br *Bridge, tr *Tracker) error {
	if err := b.clearWaitingToDie(br, tr); err != nil {
		return err
	}
	s := br.State
	suicide := Filter(b.units(s, false), IsSuicide(false))
	if b.Kind == KindAirRaid {
		suicide = Filter(suicide, Predicate(IsStrategicBomber).Not())
	}
	suicide = append(suicide, Filter(b.units(s, true), IsSuicide(true))...)
	return b.remove(br, tr, suicide)
}

func (b *Battle) airEndCheck(br *Bridge, tr *Tracker) error {
	if b.Over {
		return nil
	}
	if b.airShouldFight(br.State) && (b.MaxRounds <= 0 || b.Round < b.MaxRounds) {
		return nil
	}
	return b.airEnd(br, tr)
}

// airRetreat lets one side break off. Planes withdraw in place; attackers
// that leave also drop out of the battles waiting on this one.
func (b *Battle) airRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	if b.Over {
		return nil
	}
	defending := st.Defending
	rule := RuleAirBattleAttackersCanRetreat
	if defending {
		rule = RuleAirBattleDefendersCanRetreat
	}
	if !br.Rules.Bool(rule) {
		return nil
	}
	s := br.State
	units := b.units(s, defending)
	if len(units) == 0 {
		return nil
	}
	player := b.player(defending)
	ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
		Player:  player,
		Units:   unitIDs(units),
		Options: []TerritoryID{b.Territory},
		Planes:  true,
		Message: fmt.Sprintf("%s, withdraw from the air battle over %s?", player, b.Territory),
	})
	if err != nil || ans == "" {
		return err
	}
	ids := unitIDs(units)
	*b.roster(defending) = nil
	if defending {
		b.DefendingRetreated = appendUnique(b.DefendingRetreated, ids...)
	} else {
		b.AttackingRetreated = appendUnique(b.AttackingRetreated, ids...)
		for _, dep := range tr.blocked(b) {
			dep.withdraw(s, ids)
		}
	}
	br.history().Detail(fmt.Sprintf("%s withdraw from the air battle", describeUnits(units)), ids)
	br.history().Sound(SoundRetreat, player)
	return b.airEnd(br, tr)
}

// withdraw removes units from the attack no matter where they came from.
func (b *Battle) withdraw(s *State, ids []UnitID) {
	for from, have := range b.From {
		if left := Filter(s.Resolve(have), InList(ids)); len(left) > 0 {
			b.removeAttack(s, from, left)
		}
	}
	b.Attacking = removeIDs(b.Attacking, ids)
}

func (b *Battle) airEnd(br *Bridge, tr *Tracker) error {
	if err := b.endBattle(br, tr); err != nil {
		return err
	}
	s := br.State
	att, def := b.units(s, false), b.units(s, true)
	switch {
	case b.Kind == KindAirRaid && AnyMatch(att, IsStrategicBomber):
		b.WhoWon, b.Result = WinnerAttacker, ResultWonWithEnemyLeft
		if len(def) == 0 {
			b.Result = ResultWonWithoutConquering
		}
	case len(att) == 0:
		b.WhoWon, b.Result = WinnerDefender, ResultLost
	case b.Kind != KindAirRaid && len(def) == 0:
		b.WhoWon, b.Result = WinnerAttacker, ResultWonWithoutConquering
	default:
		b.WhoWon, b.Result = WinnerDraw, ResultStalemate
	}
	cue := SoundBattleStalemate
	switch b.WhoWon {
	case WinnerAttacker:
		cue = SoundBattleWon
	case WinnerDefender:
		cue = SoundBattleLost
	}
	br.history().Sound(cue, b.Attacker)
	b.finish(br, tr)
	return nil
}

package combat

import (
	"fmt"
	"maps"
	"slices"
)

// endCheck ends the battle when a side is gone, the round limit is reached
// or neither side can score a hit.
func (b *Battle) endCheck(br *Bridge, tr *Tracker) error {
	if b.Over {
		return nil
	}
	s, rules := br.State, br.Rules
	restricted := rules.Bool(RuleTransportCasualtiesRestrict)
	attacking, defending := b.units(s, false), b.units(s, true)

	switch {
	case !AnyMatch(attacking, IsNotInfrastructure):
		transports := Filter(s.UnitsIn(b.Territory), AlliedWith(s, b.Attacker).And(IsNonCombatTransport))
		if restricted && len(transports) > 0 && b.Round <= 1 {
			b.Attacking = unitIDs(Filter(s.UnitsIn(b.Territory), OwnedBy(b.Attacker)))
			return nil
		}
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		return b.defenderWins(br, tr, ResultLost)

	case !AnyMatch(defending, IsNotInfrastructure):
		if restricted {
			if err := b.checkUndefendedTransports(br, tr, false); err != nil {
				return err
			}
		}
		if err := b.checkForUnitsThatCanRollLeft(br, tr, false); err != nil {
			return err
		}
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		return b.attackerWins(br, tr)
	}

	noPower := !AnyMatch(attacking, CanFire(false)) && !AnyMatch(defending, CanFire(true))
	if noPower && restricted && AllMatch(attacking, IsNonCombatTransport) && AllMatch(defending, IsNonCombatTransport) &&
		len(b.attackerRetreatTerritories(br, tr)) > 0 {
		b.push(Step{Kind: StepStalemateRetreat})
		return nil
	}
	if noPower || b.MaxRounds > 0 && b.Round >= b.MaxRounds {
		if err := b.endBattle(br, tr); err != nil {
			return err
		}
		return b.nobodyWins(br, tr)
	}
	return nil
}

func (b *Battle) defenderWins(br *Bridge, tr *Tracker, result Result) error {
	s := br.State
	b.WhoWon, b.Result = WinnerDefender, result
	br.event("%s win", b.Defender)

	if br.Rules.Bool(RuleAbandonedTerritoriesTakenOver) && !AnyMatch(b.units(s, true), IsNotInfrastructure) {
		if t := s.Territory(b.Territory); t != nil && !t.Water {
			remaining := Filter(s.UnitsIn(b.Territory), IsNotInfrastructure.And(AlliedWith(s, b.Attacker)))
			if p := playerWithMostUnits(remaining); p != "" {
				br.event("%s takes over %s as there are no defenders left", p, b.Territory)
				if err := tr.takeOver(br, b.Territory, p, remaining); err != nil {
					return err
				}
			}
		}
	}
	if err := b.checkDefendingPlanesCanLand(br, tr); err != nil {
		return err
	}
	if err := tr.captureOrDestroy(br, b.Territory, b.Defender); err != nil {
		return err
	}
	br.history().Sound(SoundBattleLost, b.Attacker)
	b.finish(br, tr)
	return nil
}

func (b *Battle) attackerWins(br *Bridge, tr *Tracker) error {
	s := br.State
	b.WhoWon = WinnerAttacker
	br.event("%s win", b.Attacker)

	attacking := b.units(s, false)
	t := s.Territory(b.Territory)
	b.Result = ResultWonWithoutConquering
	if t != nil && AnyMatch(attacking, Predicate(IsAir).Not()) {
		if !t.Water {
			if s.AtWar(t.Owner, b.Attacker) {
				tr.addToConquered(b.Territory)
			}
			b.Result = ResultConquered
		}
		if err := tr.takeOver(br, b.Territory, b.Attacker, attacking); err != nil {
			return err
		}
	}

	landed := Filter(s.UnitsIn(b.Territory), OwnedBy(b.Attacker).And(IsBeingTransported, IsLand))
	if t != nil && !t.Water && len(landed) > 0 {
		if err := br.Apply(Unload(landed)); err != nil {
			return fmt.Errorf("unload in %s: %w", b.Territory, err)
		}
	}
	br.history().Sound(SoundBattleWon, b.Attacker)
	b.finish(br, tr)
	return nil
}

func (b *Battle) nobodyWins(br *Bridge, tr *Tracker) error {
	b.WhoWon, b.Result = WinnerDraw, ResultStalemate
	br.event("%s and %s draw in %s", b.Attacker, b.Defender, b.Territory)
	if err := b.checkDefendingPlanesCanLand(br, tr); err != nil {
		return err
	}
	br.history().Sound(SoundBattleStalemate, b.Attacker)
	b.finish(br, tr)
	return nil
}

// finish writes the value lost on each side and files the battle record.
func (b *Battle) finish(br *Bridge, tr *Tracker) {
	br.history().Detail(fmt.Sprintf("%s lost %d, %s lost %d", b.Attacker, b.AttackerLostTUV, b.Defender, b.DefenderLostTUV),
		map[string]int{"attacker_lost_tuv": b.AttackerLostTUV, "defender_lost_tuv": b.DefenderLostTUV})
	br.Log.Info().Str("battleId", string(b.ID)).Str("territory", string(b.Territory)).
		Str("winner", string(b.WhoWon)).Str("result", string(b.Result)).Int("rounds", b.Round).Msg("battle finished")
	tr.addRecord(br.State, b)
}

// checkDefendingPlanesCanLand finds defending planes at sea without room
// on a carrier. They fly to adjacent friendly land when there is any;
// otherwise they are lost at the end of the phase.
func (b *Battle) checkDefendingPlanesCanLand(br *Bridge, tr *Tracker) error {
	s := br.State
	site := s.Territory(b.Territory)
	if site == nil || !site.Water || b.Defender == "" {
		return nil
	}
	air := Filter(s.UnitsIn(b.Territory), AlliedWith(s, b.Defender).And(IsAir, func(u *Unit) bool { return !u.WasScrambled }))
	if len(air) == 0 {
		return nil
	}
	capacity := 0
	for _, u := range Filter(s.UnitsIn(b.Territory), AlliedWith(s, b.Defender)) {
		capacity += u.kind.CarrierCapacity
	}
	var stranded []*Unit
	for _, u := range air {
		if c := u.kind.CarrierCost; c > 0 && c <= capacity {
			capacity -= c
			continue
		}
		stranded = append(stranded, u)
	}
	if len(stranded) == 0 {
		return nil
	}
	for _, id := range site.Neighbors {
		t := s.Territory(id)
		if t == nil || t.Water || !s.Allied(t.Owner, b.Defender) || tr.wasConquered(id) {
			continue
		}
		if err := br.Apply(MoveUnits(b.Territory, id, stranded)); err != nil {
			return fmt.Errorf("land defending planes: %w", err)
		}
		br.history().Detail(fmt.Sprintf("%s land in %s", describeUnits(stranded), id), unitIDs(stranded))
		return nil
	}
	tr.addAirCannotLand(unitIDs(stranded))
	br.event("%s in %s have nowhere to land", describeUnits(stranded), b.Territory)
	return nil
}

// playerWithMostUnits returns the owner of most of the units, breaking ties
// by player ID.
func playerWithMostUnits(units []*Unit) PlayerID {
	counts := make(map[PlayerID]int)
	for _, u := range units {
		counts[u.Owner]++
	}
	var best PlayerID
	for _, p := range slices.Sorted(maps.Keys(counts)) {
		if best == "" || counts[p] > counts[best] {
			best = p
		}
	}
	return best
}

package combat

import (
	"context"
	"fmt"
	"slices"
)

// attackerRetreatTerritories lists where the attacker may retreat to. An
// all-air attack and games where retreating units stay put only offer the
// battle site itself.
func (b *Battle) attackerRetreatTerritories(br *Bridge, tr *Tracker) []TerritoryID {
	s, rules := br.State, br.Rules
	attacking := b.units(s, false)
	if len(attacking) == 0 {
		return nil
	}
	if AllMatch(attacking, IsAir) {
		return []TerritoryID{b.Territory}
	}
	if rules.Bool(RuleRetreatingUnitsRemainInPlace) {
		return []TerritoryID{b.Territory}
	}
	site := s.Territory(b.Territory)
	blocking := EnemyOf(s, b.Attacker).And(
		IsNotInfrastructure,
		Predicate(IsBeingTransported).Not(),
		Predicate(IsSubmerged).Not(),
	)
	anyLand := AnyMatch(attacking, IsLand)
	anySea := AnyMatch(attacking, IsSea)
	var out []TerritoryID
	for _, id := range b.AttackingFrom {
		t := s.Territory(id)
		if t == nil || id == b.Territory {
			continue
		}
		if AnyMatch(s.UnitsIn(id), blocking) {
			continue
		}
		if (rules.Bool(RuleWW2V2) || rules.Bool(RuleWW2V3)) && AllMatch(s.Resolve(b.From[id]), IsAir) {
			continue
		}
		if !t.Water && s.AtWar(t.Owner, b.Attacker) || t.Water && tr.foughtOver(id) {
			continue
		}
		if anyLand && site != nil && !site.Water && t.Water {
			continue
		}
		if anySea && !t.Water {
			continue
		}
		out = append(out, id)
	}
	return out
}

// onlyDefenselessTransportsLeft reports whether the defense is down to
// transports that cannot fight, which the attacker may not walk away from
// under restricted transport casualties.
func (b *Battle) onlyDefenselessTransportsLeft(s *State, rules *Rules) bool {
	if !rules.Bool(RuleTransportCasualtiesRestrict) {
		return false
	}
	def := b.units(s, true)
	return len(def) > 0 && AllMatch(def, IsNonCombatTransport)
}

func (b *Battle) canAttackerRetreat(br *Bridge, tr *Tracker) bool {
	if b.onlyDefenselessTransportsLeft(br.State, br.Rules) || b.Amphibious {
		return false
	}
	return len(b.attackerRetreatTerritories(br, tr)) > 0
}

func canSubsSubmerge(rules *Rules) bool { return rules.Bool(RuleSubmersibleSubs) }

func (b *Battle) canAttackerRetreatSubs(br *Bridge, tr *Tracker) bool {
	if AnyMatch(b.unitsWithWaiting(br.State, true), IsDestroyer) {
		return false
	}
	return b.canAttackerRetreat(br, tr) || canSubsSubmerge(br.Rules)
}

func (b *Battle) canDefenderRetreatSubs(br *Bridge) bool {
	if AnyMatch(b.unitsWithWaiting(br.State, false), IsDestroyer) {
		return false
	}
	return len(b.emptyOrFriendlySeaNeighbors(br.State)) > 0 || canSubsSubmerge(br.Rules)
}

// emptyOrFriendlySeaNeighbors lists adjacent sea zones without enemies of
// the defender.
func (b *Battle) emptyOrFriendlySeaNeighbors(s *State) []TerritoryID {
	site := s.Territory(b.Territory)
	if site == nil {
		return nil
	}
	var out []TerritoryID
	for _, id := range site.Neighbors {
		t := s.Territory(id)
		if t == nil || !t.Water {
			continue
		}
		if AnyMatch(s.UnitsIn(id), EnemyOf(s, b.Defender)) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// queryRetreat asks the deciding player for a retreat destination and
// checks the answer against the options. "" means stay.
func (b *Battle) queryRetreat(ctx context.Context, br *Bridge, st *Step, q RetreatQuery) (TerritoryID, error) {
	q.BattleID, q.Territory = b.ID, b.Territory
	maxTries := br.Rules.MaxSelectionTries()
	for {
		q.Attempt, q.LastError = st.Attempt, st.LastError
		ans, err := br.decisions().Retreat(ctx, q)
		if err != nil {
			return "", err
		}
		if ans == "" || slices.Contains(q.Options, ans) {
			return ans, nil
		}
		verr := &SelectionError{Player: q.Player, Reason: fmt.Sprintf("cannot retreat to %s", ans)}
		st.Attempt++
		st.LastError = verr.Error()
		br.Log.Warn().Str("battleId", string(b.ID)).Str("player", string(q.Player)).
			Int("attempt", st.Attempt).Err(verr).Msg("rejected retreat")
		if st.Attempt >= maxTries {
			return "", &ProtocolError{BattleID: string(b.ID), Player: q.Player, Attempts: st.Attempt, Last: verr}
		}
	}
}

func (b *Battle) subsRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	s := br.State
	if b.Over {
		return nil
	}
	defending := st.Defending
	subs := Filter(b.units(s, defending), CanEvade)
	if len(subs) == 0 {
		return nil
	}
	var options []TerritoryID
	submerge := canSubsSubmerge(br.Rules)
	if defending {
		if !br.Rules.Bool(RuleDefendingSubsMaySubmerge) || !b.canDefenderRetreatSubs(br) {
			return nil
		}
		options = b.emptyOrFriendlySeaNeighbors(s)
	} else {
		if !b.canAttackerRetreatSubs(br, tr) {
			return nil
		}
		if !submerge {
			options = b.attackerRetreatTerritories(br, tr)
		}
	}
	if submerge {
		options = append(options, b.Territory)
	}
	if len(options) == 0 {
		return nil
	}
	player := b.player(defending)
	ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
		Player:   player,
		Units:    unitIDs(subs),
		Options:  options,
		Submerge: submerge,
		Message:  fmt.Sprintf("%s, retreat or submerge subs in %s?", player, b.Territory),
	})
	switch {
	case err != nil:
		return err
	case ans == "":
		return nil
	case ans == b.Territory && submerge:
		return b.submergeUnits(br, tr, subs, defending)
	}
	return b.retreatUnits(br, tr, subs, ans, defending)
}

func (b *Battle) planesRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	s, rules := br.State, br.Rules
	if b.Over || !b.Amphibious {
		return nil
	}
	if !rules.Bool(RuleWW2V2) && !rules.Bool(RuleAttackerRetreatPlanes) && !rules.Bool(RulePartialAmphibiousRetreat) {
		return nil
	}
	planes := Filter(b.units(s, false), IsAir)
	if len(planes) == 0 {
		return nil
	}
	ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
		Player:  b.Attacker,
		Units:   unitIDs(planes),
		Options: []TerritoryID{b.Territory},
		Planes:  true,
		Message: fmt.Sprintf("%s, retreat planes from %s?", b.Attacker, b.Territory),
	})
	if err != nil || ans == "" {
		return err
	}
	return b.retreatUnits(br, tr, planes, ans, false)
}

func (b *Battle) partialAmphibiousRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	s := br.State
	if b.Over || !b.Amphibious || !br.Rules.Bool(RulePartialAmphibiousRetreat) {
		return nil
	}
	amphibious := idSet(b.AmphibiousLand)
	notAmphibious := func(u *Unit) bool { return !amphibious[u.ID] && !u.WasAmphibious }
	if !AnyMatch(b.units(s, false), Predicate(IsLand).And(notAmphibious)) {
		return nil
	}
	units := Filter(b.units(s, false), notAmphibious)
	options := b.attackerRetreatTerritories(br, tr)
	if len(options) == 0 {
		return nil
	}
	ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
		Player:  b.Attacker,
		Units:   unitIDs(units),
		Options: options,
		Partial: true,
		Message: fmt.Sprintf("%s, retreat units that did not land from the sea in %s?", b.Attacker, b.Territory),
	})
	if err != nil || ans == "" {
		return err
	}
	return b.retreatUnits(br, tr, units, ans, false)
}

func (b *Battle) attackerRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	s := br.State
	if b.Over || !b.canAttackerRetreat(br, tr) {
		return nil
	}
	units := b.units(s, false)
	ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
		Player:  b.Attacker,
		Units:   unitIDs(units),
		Options: b.attackerRetreatTerritories(br, tr),
		Message: fmt.Sprintf("%s, retreat from %s?", b.Attacker, b.Territory),
	})
	if err != nil || ans == "" {
		return err
	}
	return b.retreatUnits(br, tr, units, ans, false)
}

// stalemateRetreat offers the attacker a way out of a battle neither side
// can win. Staying ends the battle as a stalemate.
func (b *Battle) stalemateRetreat(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	if b.Over {
		return nil
	}
	s := br.State
	options := b.attackerRetreatTerritories(br, tr)
	if len(options) > 0 {
		units := b.units(s, false)
		ans, err := b.queryRetreat(ctx, br, st, RetreatQuery{
			Player:  b.Attacker,
			Units:   unitIDs(units),
			Options: options,
			Message: fmt.Sprintf("%s, neither side can hit in %s. Retreat?", b.Attacker, b.Territory),
		})
		if err != nil {
			return err
		}
		if ans != "" {
			return b.retreatUnits(br, tr, units, ans, false)
		}
	}
	if err := b.endBattle(br, tr); err != nil {
		return err
	}
	return b.nobodyWins(br, tr)
}

// retreatUnits moves units and their cargo out of the battle. The
// attacker's own planes leave the battle but stay in the territory to land
// later. Cargo already landed in a battle that waits on this one goes
// with its transport.
func (b *Battle) retreatUnits(br *Bridge, tr *Tracker, units []*Unit, to TerritoryID, defending bool) error {
	s := br.State
	units = append(slices.Clone(units), Filter(dependentUnits(s, units), func(u *Unit) bool { return u.Territory == b.Territory })...)
	moving := Filter(units, func(u *Unit) bool { return !u.kind.Air || u.Owner != b.Attacker })

	changes := []Change{}
	if to != b.Territory && len(moving) > 0 {
		changes = append(changes, MoveUnits(b.Territory, to, moving))
	}
	for _, dep := range tr.blocked(b) {
		cargo := Filter(dependentUnits(s, moving), func(u *Unit) bool { return u.Territory == dep.Territory })
		if len(cargo) == 0 {
			continue
		}
		dep.removeAttack(s, b.Territory, cargo)
		if to != dep.Territory {
			changes = append(changes, MoveUnits(dep.Territory, to, cargo))
		}
	}
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("retreat from %s: %w", b.Territory, err)
	}
	ids := unitIDs(units)
	*b.roster(defending) = removeIDs(*b.roster(defending), ids)
	b.AmphibiousLand = removeIDs(b.AmphibiousLand, ids)
	if defending {
		b.DefendingRetreated = appendUnique(b.DefendingRetreated, ids...)
	} else {
		b.AttackingRetreated = appendUnique(b.AttackingRetreated, ids...)
	}
	if len(moving) > 0 {
		br.history().Detail(fmt.Sprintf("%s retreated to %s", describeUnits(moving), to), unitIDs(moving))
	} else {
		br.event("%s retreated", describeUnits(units))
	}
	br.history().Sound(SoundRetreat, b.player(defending))
	return b.afterWithdrawal(br, tr, defending)
}

// submergeUnits takes subs out of the fight without moving them.
func (b *Battle) submergeUnits(br *Bridge, tr *Tracker, units []*Unit, defending bool) error {
	if len(units) == 0 {
		return nil
	}
	if err := br.Apply(UnitFlag(units, FlagSubmerged, true)); err != nil {
		return fmt.Errorf("submerge in %s: %w", b.Territory, err)
	}
	ids := unitIDs(units)
	*b.roster(defending) = removeIDs(*b.roster(defending), ids)
	if defending {
		b.DefendingRetreated = appendUnique(b.DefendingRetreated, ids...)
	} else {
		b.AttackingRetreated = appendUnique(b.AttackingRetreated, ids...)
	}
	br.history().Detail(fmt.Sprintf("%s submerged in %s", describeUnits(units), b.Territory), ids)
	return b.afterWithdrawal(br, tr, defending)
}

// afterWithdrawal ends the battle once a side has nothing left in it.
func (b *Battle) afterWithdrawal(br *Bridge, tr *Tracker, defending bool) error {
	if b.Over || len(*b.roster(defending)) > 0 {
		return nil
	}
	if err := b.endBattle(br, tr); err != nil {
		return err
	}
	if defending {
		return b.attackerWins(br, tr)
	}
	return b.defenderWins(br, tr, ResultRetreated)
}

package combat

// aaGuns returns the side's anti-aircraft units that fire this round.
func (b *Battle) aaGuns(s *State, defending bool) []*Unit {
	guns := Filter(b.unitsWithWaiting(s, defending), IsAA(!defending, false).And(func(u *Unit) bool {
		return AAFiresInRound(u, b.Round)
	}))
	if len(ValidAATargets(guns, b.units(s, !defending))) == 0 {
		return nil
	}
	return guns
}

func (b *Battle) fireAA(br *Bridge, defending bool) {
	s := br.State
	guns := b.aaGuns(s, defending)
	enemies := b.units(s, !defending)
	var steps []Step
	for _, aaType := range AATypes(guns) {
		typed := GunsOfAAType(guns, aaType)
		targets := ValidAATargets(typed, enemies)
		if len(targets) == 0 {
			continue
		}
		for _, group := range suicideGroups(typed) {
			steps = append(steps, Step{Kind: StepRoll, Volley: &Volley{
				Defending:  defending,
				Firing:     unitIDs(group),
				Targets:    unitIDs(targets),
				Return:     ReturnAll,
				AA:         true,
				AAType:     aaType,
				Annotation: b.annotation(defending, "fire "+aaType),
			}})
		}
	}
	if len(steps) > 0 {
		br.history().Sound(SoundBattleAA, b.player(defending))
	}
	b.push(steps...)
}

// suicideGroups splits firing units so that suicide-on-hit units of each
// type roll on their own; everything else rolls together.
func suicideGroups(units []*Unit) [][]*Unit {
	var groups [][]*Unit
	byType := make(map[string]int)
	var rest []*Unit
	for _, u := range units {
		if !u.kind.SuicideOnHit {
			rest = append(rest, u)
			continue
		}
		i, ok := byType[u.Type]
		if !ok {
			i = len(groups)
			byType[u.Type] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], u)
	}
	if len(rest) > 0 {
		groups = append(groups, rest)
	}
	return groups
}

// splitByOwner puts allied air on its own when allied air fights
// independently.
func (b *Battle) splitByOwner(rules *Rules, units []*Unit, defending bool) [][]*Unit {
	if !rules.Bool(RuleAlliedAirIndependent) {
		return [][]*Unit{units}
	}
	own := b.player(defending)
	var main []*Unit
	var owners []PlayerID
	allied := make(map[PlayerID][]*Unit)
	for _, u := range units {
		if !u.kind.Air || u.Owner == own {
			main = append(main, u)
			continue
		}
		if _, ok := allied[u.Owner]; !ok {
			owners = append(owners, u.Owner)
		}
		allied[u.Owner] = append(allied[u.Owner], u)
	}
	var out [][]*Unit
	if len(main) > 0 {
		out = append(out, main)
	}
	for _, p := range owners {
		out = append(out, allied[p])
	}
	return out
}

// fireGroups builds one volley per target group and firing split.
func (b *Battle) fireGroups(br *Bridge, defending bool, firing, targets []*Unit, ret ReturnFire, what string) []Step {
	if len(firing) == 0 || len(targets) == 0 {
		return nil
	}
	destroyer := AnyMatch(b.unitsWithWaiting(br.State, defending), IsDestroyer)
	var steps []Step
	for _, g := range GroupTargets(firing, targets, destroyer) {
		if len(g.Targets) == 0 {
			continue
		}
		for _, owned := range b.splitByOwner(br.Rules, g.Firing, defending) {
			for _, part := range suicideGroups(owned) {
				steps = append(steps, Step{Kind: StepRoll, Volley: &Volley{
					Defending:  defending,
					Firing:     unitIDs(part),
					Targets:    unitIDs(g.Targets),
					Return:     ret,
					Annotation: b.annotation(defending, what),
				}})
			}
		}
	}
	return steps
}

func (b *Battle) navalBombard(br *Bridge) {
	s := br.State
	firing := s.Resolve(b.Bombarding)
	targets := Filter(b.units(s, true), IsNotInfrastructure)
	ret := ReturnNone
	if br.Rules.Bool(RuleNavalBombardReturnFire) {
		ret = ReturnAll
	}
	b.push(b.fireGroups(br, false, firing, targets, ret, "bombard")...)
}

func (b *Battle) suicideFire(br *Bridge, defending bool) {
	s, rules := br.State, br.Rules
	if defending && rules.Bool(RuleDefendingSuicideDoNotFire) {
		return
	}
	firing := Filter(b.units(s, defending), IsSuicide(defending))
	if len(firing) == 0 {
		return
	}
	targets := Filter(b.units(s, !defending), IsNotInfrastructure.And(IsSuicide(!defending).Not()))
	if rules.Bool(RuleAirAttackSubRestricted) && !AnyMatch(b.unitsWithWaiting(s, defending), IsDestroyer) {
		targets = Filter(targets, Predicate(IsSub).Not())
	}
	if AllMatch(firing, IsSub) {
		targets = Filter(targets, Predicate(IsAir).Not())
	}
	ret := ReturnAll
	if rules.Bool(RuleSuicideCasualtiesRestricted) {
		ret = ReturnNone
	}
	b.push(b.fireGroups(br, defending, firing, targets, ret, "suicide attack")...)
}

func (b *Battle) fireSubs(br *Bridge, defending bool, ret ReturnFire) {
	s := br.State
	side := b.units(s, false)
	if defending {
		side = b.unitsWithWaiting(s, true)
	}
	firing := Filter(side, IsSub)
	targets := Filter(b.units(s, !defending), Predicate(IsAir).Not())
	b.push(b.fireGroups(br, defending, firing, targets, ret, "fire subs")...)
}

// airBlockedBySubs reports whether enemy subs at sea cannot be hit by the
// side's air because the side has no destroyer.
func (b *Battle) airBlockedBySubs(s *State, defending bool) bool {
	t := s.Territory(b.Territory)
	if t == nil || !t.Water {
		return false
	}
	return AnyMatch(b.units(s, !defending), IsSub) && !AnyMatch(b.unitsWithWaiting(s, defending), IsDestroyer)
}

func (b *Battle) fireAirOnNonSubs(br *Bridge, defending bool) {
	s := br.State
	if !b.airBlockedBySubs(s, defending) {
		return
	}
	firing := Filter(b.unitsWithWaiting(s, defending), IsAir)
	targets := Filter(b.units(s, !defending), Predicate(IsSub).Not())
	b.push(b.fireGroups(br, defending, firing, targets, ReturnAll, "fire air")...)
}

func (b *Battle) fireNonSubs(br *Bridge, defending bool) {
	s := br.State
	firing := Filter(b.unitsWithWaiting(s, defending), Predicate(IsSub).Not())
	if br.Rules.Bool(RuleAirAttackSubRestricted) && b.airBlockedBySubs(s, defending) {
		firing = Filter(firing, Predicate(IsAir).Not())
	}
	b.push(b.fireGroups(br, defending, firing, b.units(s, !defending), ReturnAll, "fire")...)
}

// removeCasualties takes killed units out of the active roster. Units that
// may still fire back wait to die; the rest leave the board at once.
func (b *Battle) removeCasualties(br *Bridge, tr *Tracker, killed []*Unit, ret ReturnFire, defending bool) error {
	if len(killed) == 0 {
		return nil
	}
	var wait, now []*Unit
	switch ret {
	case ReturnAll:
		wait = killed
	case ReturnSubs:
		wait = Filter(killed, IsSub)
		now = Filter(killed, Predicate(IsSub).Not())
	default:
		now = killed
	}
	ids := unitIDs(wait)
	*b.roster(defending) = removeIDs(*b.roster(defending), ids)
	*b.waiting(defending) = appendUnique(*b.waiting(defending), ids...)
	return b.remove(br, tr, now)
}

// removeSuicideOnHit removes one suicide-on-hit firing unit per hit scored.
func (b *Battle) removeSuicideOnHit(br *Bridge, tr *Tracker, firing []*Unit, hits int) error {
	suicide := Filter(firing, IsSuicideOnHit)
	if len(suicide) == 0 || hits == 0 {
		return nil
	}
	return b.remove(br, tr, suicide[:min(hits, len(suicide))])
}

func (b *Battle) checkSuicideUnits(br *Bridge, tr *Tracker) error {
	s := br.State
	dead := Filter(b.units(s, false), IsSuicide(false))
	if !br.Rules.Bool(RuleDefendingSuicideDoNotFire) {
		dead = append(dead, Filter(b.units(s, true), IsSuicide(true))...)
	}
	return b.remove(br, tr, dead)
}

func (b *Battle) undefendedTransports(br *Bridge, tr *Tracker) error {
	if err := b.checkUndefendedTransports(br, tr, true); err != nil {
		return err
	}
	if err := b.checkUndefendedTransports(br, tr, false); err != nil {
		return err
	}
	if err := b.checkForUnitsThatCanRollLeft(br, tr, false); err != nil {
		return err
	}
	return b.checkForUnitsThatCanRollLeft(br, tr, true)
}

// checkUndefendedTransports sinks a side's non-combat transports when they
// are all it has at sea and the enemy has ships or planes that can attack.
// The attacker is spared when it can still retreat.
func (b *Battle) checkUndefendedTransports(br *Bridge, tr *Tracker, defending bool) error {
	s := br.State
	if !defending && (len(b.attackerRetreatTerritories(br, tr)) > 0 || AnyMatch(b.units(s, false), IsAir)) {
		return nil
	}
	player := b.player(defending)
	if player == "" {
		return nil
	}
	atSea := Predicate(IsLand).Not().And(Predicate(IsSubmerged).Not())
	here := s.UnitsIn(b.Territory)
	transports := Filter(here, AlliedWith(s, player).And(IsNonCombatTransport, IsSea))
	if len(transports) == 0 {
		return nil
	}
	if CountMatches(here, AlliedWith(s, player).And(atSea)) != len(transports) {
		return nil
	}
	if !AnyMatch(here, EnemyOf(s, player).And(atSea, CanFire(!defending))) {
		return nil
	}
	br.event("%s transports in %s are undefended", player, b.Territory)
	return b.remove(br, tr, transports)
}

// checkForUnitsThatCanRollLeft removes a side that can no longer fire or
// support while the enemy still can. An attacker that may retreat is left
// to decide for itself.
func (b *Battle) checkForUnitsThatCanRollLeft(br *Bridge, tr *Tracker, defending bool) error {
	s := br.State
	attacking := b.units(s, false)
	if !defending && (len(b.attackerRetreatTerritories(br, tr)) > 0 || AnyMatch(attacking, IsAir)) {
		return nil
	}
	if len(attacking) == 0 || len(b.units(s, true)) == 0 {
		return nil
	}
	t := s.Territory(b.Territory)
	inPlace := Predicate(IsSubmerged).Not().And(func(u *Unit) bool {
		if t != nil && t.Water {
			return !u.kind.Land()
		}
		return !u.kind.Sea
	})
	canRoll := func(d bool) Predicate {
		return inPlace.And(func(u *Unit) bool { return u.kind.BaseStrength(d) > 0 || len(u.kind.Supports) > 0 })
	}
	mine := b.units(s, defending)
	if AnyMatch(mine, canRoll(defending)) || !AnyMatch(b.units(s, !defending), canRoll(!defending)) {
		return nil
	}
	return b.remove(br, tr, Filter(mine, inPlace.And(IsNotInfrastructure)))
}

// submergeSubsVsOnlyAir submerges subs facing nothing but planes.
func (b *Battle) submergeSubsVsOnlyAir(br *Bridge, tr *Tracker) error {
	s := br.State
	att, def := b.units(s, false), b.units(s, true)
	switch {
	case len(att) > 0 && AllMatch(att, IsAir) && AnyMatch(def, IsSub):
		return b.submergeUnits(br, tr, Filter(def, IsSub), true)
	case len(def) > 0 && AllMatch(def, IsAir) && AnyMatch(att, IsSub):
		return b.submergeUnits(br, tr, Filter(att, IsSub), false)
	}
	return nil
}

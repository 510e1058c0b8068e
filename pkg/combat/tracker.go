package combat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Attack is one move order committing units against a territory. The
// units must already be in To; bombarding ships stay where they are.
type Attack struct {
	Attacker   PlayerID
	From       TerritoryID
	To         TerritoryID
	Units      []*Unit
	Bombarding []*Unit
	Bombing    bool
	// Targets maps a bomber to the unit it aims at.
	Targets map[UnitID]UnitID
}

// Tracker holds every battle pending this turn, the order they must be
// fought in and what the finished ones changed. Battles refer to each
// other only by ID, so the whole tracker serializes to JSON.
type Tracker struct {
	Battles map[BattleID]*Battle `json:"battles"`
	// Dependencies maps a battle to the battles that must finish first.
	Dependencies  map[BattleID][]BattleID `json:"dependencies,omitempty"`
	Conquered     []TerritoryID           `json:"conquered,omitempty"`
	Blitzed       []TerritoryID           `json:"blitzed,omitempty"`
	FoughtOver    []TerritoryID           `json:"fought_over,omitempty"`
	AirCannotLand []UnitID                `json:"air_cannot_land,omitempty"`
	BombingLosses map[TerritoryID]int     `json:"bombing_losses,omitempty"`
	Records       []Record                `json:"records,omitempty"`
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		Battles:       make(map[BattleID]*Battle),
		Dependencies:  make(map[BattleID][]BattleID),
		BombingLosses: make(map[TerritoryID]int),
	}
}

// kindOrder puts battles that others usually wait on first.
var kindOrder = map[BattleKind]int{
	KindAirRaid:     0,
	KindBombingRaid: 1,
	KindAirBattle:   2,
	KindNormal:      3,
	KindNonFighting: 4,
	KindFinished:    5,
}

func compareBattles(a, b *Battle) int {
	if c := cmp.Compare(a.Territory, b.Territory); c != 0 {
		return c
	}
	if c := cmp.Compare(kindOrder[a.Kind], kindOrder[b.Kind]); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Battle returns a pending battle by ID, or nil.
func (tr *Tracker) Battle(id BattleID) *Battle {
	if tr == nil {
		return nil
	}
	return tr.Battles[id]
}

// Pending returns every pending battle ordered by territory and kind.
func (tr *Tracker) Pending() []*Battle {
	if tr == nil {
		return nil
	}
	return slices.SortedFunc(maps.Values(tr.Battles), compareBattles)
}

// PendingIn returns the pending battle of the given kind in a territory.
func (tr *Tracker) PendingIn(territory TerritoryID, kinds ...BattleKind) *Battle {
	for _, b := range tr.Pending() {
		if b.Territory == territory && slices.Contains(kinds, b.Kind) {
			return b
		}
	}
	return nil
}

func (tr *Tracker) resolveIDs(ids []BattleID) []*Battle {
	var out []*Battle
	for _, id := range ids {
		if b := tr.Battles[id]; b != nil {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, compareBattles)
	return out
}

// Blocking returns the pending battles b waits on.
func (tr *Tracker) Blocking(b *Battle) []*Battle {
	if tr == nil || b == nil {
		return nil
	}
	return tr.resolveIDs(tr.Dependencies[b.ID])
}

// blocked returns the pending battles waiting on b.
func (tr *Tracker) blocked(b *Battle) []*Battle {
	if tr == nil || b == nil {
		return nil
	}
	var ids []BattleID
	for id, deps := range tr.Dependencies {
		if slices.Contains(deps, b.ID) {
			ids = append(ids, id)
		}
	}
	return tr.resolveIDs(ids)
}

func (tr *Tracker) add(b *Battle) {
	tr.Battles[b.ID] = b
}

// dependsOn reports whether from reaches to through dependency edges.
func (tr *Tracker) dependsOn(from, to BattleID) bool {
	seen := make(map[BattleID]bool)
	queue := []BattleID{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == to {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, tr.Dependencies[id]...)
	}
	return false
}

// addDependency records that blocked cannot be fought before blocking.
func (tr *Tracker) addDependency(blocked, blocking *Battle) error {
	if blocked == nil || blocking == nil || slices.Contains(tr.Dependencies[blocked.ID], blocking.ID) {
		return nil
	}
	if blocked.ID == blocking.ID || tr.dependsOn(blocking.ID, blocked.ID) {
		return invariant("add dependency", "%s waiting on %s would form a cycle", blocked, blocking)
	}
	tr.Dependencies[blocked.ID] = append(tr.Dependencies[blocked.ID], blocking.ID)
	return nil
}

// CheckAcyclic verifies that no battle waits on itself through any chain
// of dependencies.
func (tr *Tracker) CheckAcyclic() error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[BattleID]int)
	var visit func(id BattleID) error
	visit = func(id BattleID) error {
		switch state[id] {
		case active:
			return invariant("dependencies", "cycle through battle %s", id)
		case done:
			return nil
		}
		state[id] = active
		for _, dep := range tr.Dependencies[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, id := range slices.Sorted(maps.Keys(tr.Dependencies)) {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func hasCombatDefenders(s *State, territory TerritoryID, attacker PlayerID) bool {
	return AnyMatch(s.UnitsIn(territory), EnemyOf(s, attacker).And(
		IsNotInfrastructure,
		Predicate(IsBeingTransported).Not(),
		Predicate(IsSubmerged).Not(),
	))
}

// RegisterAttack adds the units of a move order to the battle for the
// destination, creating it when needed, and records which battles have to
// be fought first.
func (tr *Tracker) RegisterAttack(s *State, rules *Rules, a Attack) (*Battle, error) {
	if len(a.Units) == 0 {
		return nil, fmt.Errorf("register attack on %s: no units", a.To)
	}
	if s.Territory(a.To) == nil {
		return nil, fmt.Errorf("register attack: unknown territory %q", a.To)
	}
	if a.Attacker == "" {
		a.Attacker = a.Units[0].Owner
	}
	for _, u := range a.Units {
		if u.Territory != a.To {
			return nil, invariant("register attack", "%s is in %s, not %s", u.ID, u.Territory, a.To)
		}
		if other := tr.Engaged(u.ID, a.To); other != nil {
			return nil, invariant("register attack", "%s already fights in %s", u.ID, other)
		}
	}
	var (
		b   *Battle
		err error
	)
	if a.Bombing {
		b, err = tr.registerBombing(s, rules, a)
	} else {
		b, err = tr.registerGround(s, rules, a)
	}
	if err != nil {
		return nil, err
	}
	return b, tr.CheckAcyclic()
}

// Engaged returns the pending battle outside territory whose rosters hold
// the unit, or nil. Air battles and raids share their territory with the
// battle they precede, so they never count against it.
func (tr *Tracker) Engaged(id UnitID, territory TerritoryID) *Battle {
	for _, b := range tr.Pending() {
		if b.Territory == territory {
			continue
		}
		for _, roster := range [][]UnitID{b.Attacking, b.Defending, b.AttackingWaitingToDie, b.DefendingWaitingToDie} {
			if slices.Contains(roster, id) {
				return b
			}
		}
	}
	return nil
}

func (tr *Tracker) pendingOrNew(s *State, rules *Rules, kind BattleKind, territory TerritoryID, attacker PlayerID) *Battle {
	if b := tr.PendingIn(territory, kind); b != nil {
		return b
	}
	b := newBattle(s, rules, kind, territory, attacker)
	tr.add(b)
	return b
}

func (tr *Tracker) registerBombing(s *State, rules *Rules, a Attack) (*Battle, error) {
	raid := tr.pendingOrNew(s, rules, KindBombingRaid, a.To, a.Attacker)
	raid.addAttack(s, a.From, a.Units)
	if len(a.Targets) > 0 && raid.BombingTargets == nil {
		raid.BombingTargets = make(map[UnitID]UnitID)
	}
	maps.Copy(raid.BombingTargets, a.Targets)

	if rules.Bool(RuleRaidsPrecededByAirBattles) && CouldHaveAirBattle(s, a.To, a.Attacker) {
		air := tr.pendingOrNew(s, rules, KindAirRaid, a.To, a.Attacker)
		air.addAttack(s, a.From, Filter(a.Units, IsAir))
		if err := tr.addDependency(raid, air); err != nil {
			return nil, err
		}
	}
	if ground := tr.PendingIn(a.To, KindNormal, KindNonFighting, KindFinished); ground != nil {
		if err := tr.addDependency(ground, raid); err != nil {
			return nil, err
		}
	}
	return raid, nil
}

func (tr *Tracker) registerGround(s *State, rules *Rules, a Attack) (*Battle, error) {
	b := tr.PendingIn(a.To, KindNormal, KindNonFighting, KindFinished)
	if b == nil {
		kind := KindNormal
		if !hasCombatDefenders(s, a.To, a.Attacker) {
			kind = KindFinished
		}
		b = newBattle(s, rules, kind, a.To, a.Attacker)
		tr.add(b)
	}
	b.addAttack(s, a.From, a.Units)
	b.Bombarding = appendUnique(b.Bombarding, unitIDs(a.Bombarding)...)

	if src := s.Territory(a.From); src != nil && src.Water && b.Amphibious {
		if sea := tr.PendingIn(a.From, KindNormal); sea != nil {
			if err := tr.addDependency(b, sea); err != nil {
				return nil, err
			}
			if b.Kind == KindFinished {
				b.Kind = KindNonFighting
			}
		}
	}
	for _, kind := range []BattleKind{KindBombingRaid, KindAirRaid} {
		if pre := tr.PendingIn(a.To, kind); pre != nil {
			if err := tr.addDependency(b, pre); err != nil {
				return nil, err
			}
		}
	}
	air := Filter(a.Units, IsAir)
	if b.Kind == KindNormal && len(air) > 0 && rules.Bool(RuleBattlesPrecededByAirBattles) && CouldHaveAirBattle(s, a.To, a.Attacker) {
		ab := tr.pendingOrNew(s, rules, KindAirBattle, a.To, a.Attacker)
		ab.addAttack(s, a.From, air)
		if err := tr.addDependency(b, ab); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// UndoAttack takes units of a move order back out of every battle in the
// destination. Battles left without attackers disappear together with
// their dependency edges. Attacks are single hops and only fought battles
// mark territories conquered or blitzed, so only the destination can carry
// a mark to revert.
func (tr *Tracker) UndoAttack(s *State, from, to TerritoryID, units []*Unit) {
	if tr == nil {
		return
	}
	ids := unitIDs(units)
	for _, b := range tr.Pending() {
		if b.Territory != to || b.Started {
			continue
		}
		b.removeAttack(s, from, units)
		b.Attacking = removeIDs(b.Attacking, ids)
		b.Bombarding = removeIDs(b.Bombarding, ids)
		if b.IsEmpty() {
			tr.RemoveBattle(b)
		}
	}
	if t := s.Territory(to); t != nil && tr.PendingIn(to, KindNormal, KindNonFighting, KindFinished) == nil {
		if owner := t.Owner; owner == "" || !s.Allied(owner, unitsOwner(units)) {
			tr.Conquered = slices.DeleteFunc(tr.Conquered, func(id TerritoryID) bool { return id == to })
			tr.Blitzed = slices.DeleteFunc(tr.Blitzed, func(id TerritoryID) bool { return id == to })
		}
	}
}

func unitsOwner(units []*Unit) PlayerID {
	if len(units) == 0 {
		return ""
	}
	return units[0].Owner
}

// RemoveBattle drops a battle and every dependency edge touching it.
func (tr *Tracker) RemoveBattle(b *Battle) {
	if tr == nil || b == nil {
		return
	}
	delete(tr.Battles, b.ID)
	delete(tr.Dependencies, b.ID)
	for id, deps := range tr.Dependencies {
		deps = slices.DeleteFunc(deps, func(d BattleID) bool { return d == b.ID })
		if len(deps) == 0 {
			delete(tr.Dependencies, id)
		} else {
			tr.Dependencies[id] = deps
		}
	}
}

// Cancel ends a pending battle without a result.
func (tr *Tracker) Cancel(id BattleID) error {
	b := tr.Battle(id)
	if b == nil {
		return fmt.Errorf("cancel %s: %w", id, ErrBattleNotFound)
	}
	tr.cancel(b)
	return nil
}

func (tr *Tracker) cancel(b *Battle) {
	b.AttackingWaitingToDie, b.DefendingWaitingToDie = nil, nil
	b.Stack = nil
	b.Over = true
	tr.RemoveBattle(b)
}

// unitsLost tells the battles waiting on b that units died there. A
// waiting battle that has lost all its attackers is cancelled.
func (tr *Tracker) unitsLost(s *State, b *Battle, ids []UnitID) {
	if tr == nil || len(ids) == 0 {
		return
	}
	for _, dep := range tr.blocked(b) {
		dep.unitsLostInPrecedingBattle(ids)
		if dep.IsEmpty() && !dep.Started {
			tr.cancel(dep)
		}
	}
}

// Fight runs a pending battle. It refuses with ErrBattleBlocked while the
// battle still waits on others.
func (tr *Tracker) Fight(ctx context.Context, br *Bridge, id BattleID) error {
	b := tr.Battle(id)
	if b == nil {
		return fmt.Errorf("fight %s: %w", id, ErrBattleNotFound)
	}
	if deps := tr.Blocking(b); len(deps) > 0 {
		return fmt.Errorf("%s waits on %s: %w", b, deps[0], ErrBattleBlocked)
	}
	if !b.Kind.Bombing() && !slices.Contains(tr.FoughtOver, b.Territory) {
		tr.FoughtOver = append(tr.FoughtOver, b.Territory)
	}
	return b.Fight(ctx, br, tr)
}

// Ready returns the pending battles that wait on nothing.
func (tr *Tracker) Ready() []*Battle {
	var out []*Battle
	for _, b := range tr.Pending() {
		if len(tr.Blocking(b)) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// FightAll fights battles in dependency order until none are left or one
// suspends or fails.
func (tr *Tracker) FightAll(ctx context.Context, br *Bridge) error {
	for len(tr.Battles) > 0 {
		ready := tr.Ready()
		if len(ready) == 0 {
			return invariant("fight all", "%d battles pending, none ready", len(tr.Battles))
		}
		if err := tr.Fight(ctx, br, ready[0].ID); err != nil {
			return err
		}
	}
	return nil
}

// needsNoFight reports whether a battle can be settled without dice.
func (tr *Tracker) needsNoFight(s *State, b *Battle) bool {
	switch b.Kind {
	case KindFinished, KindNonFighting:
		return true
	case KindNormal:
		return !hasCombatDefenders(s, b.Territory, b.Attacker)
	}
	return false
}

// ResolveConquestOnEmptyTerritories settles every battle against a
// territory without combat defenders whose preceding battles are done.
// Battles still waiting on a naval battle or raid are left pending.
func (tr *Tracker) ResolveConquestOnEmptyTerritories(ctx context.Context, br *Bridge) error {
	for {
		var next *Battle
		for _, b := range tr.Ready() {
			if tr.needsNoFight(br.State, b) {
				next = b
				break
			}
		}
		if next == nil {
			return nil
		}
		blitz := next.Kind == KindFinished && AnyMatch(next.units(br.State, false), IsLand) && !next.Amphibious
		if err := tr.Fight(ctx, br, next.ID); err != nil {
			return err
		}
		if blitz && next.WhoWon == WinnerAttacker && next.Result == ResultConquered && !slices.Contains(tr.Blitzed, next.Territory) {
			tr.Blitzed = append(tr.Blitzed, next.Territory)
		}
	}
}

// EndPhase closes the battle phase: defending planes with nowhere to land
// are lost and the per-turn bookkeeping is reset. Every battle must have
// been fought.
func (tr *Tracker) EndPhase(br *Bridge) error {
	if n := len(tr.Battles); n > 0 {
		return fmt.Errorf("end phase with %d battles pending: %w", n, ErrBattlesPending)
	}
	s := br.State
	stranded := s.Resolve(tr.AirCannotLand)
	byTerritory := make(map[TerritoryID][]*Unit)
	for _, u := range stranded {
		byTerritory[u.Territory] = append(byTerritory[u.Territory], u)
	}
	var changes []Change
	for _, t := range slices.Sorted(maps.Keys(byTerritory)) {
		changes = append(changes, RemoveUnits(t, byTerritory[t]))
	}
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("remove planes that cannot land: %w", err)
	}
	if len(stranded) > 0 {
		br.event("%s could not land and are lost", describeUnits(stranded))
	}
	if br.Cache != nil {
		br.Cache.Clear()
	}
	tr.Conquered, tr.Blitzed, tr.FoughtOver, tr.AirCannotLand = nil, nil, nil, nil
	clear(tr.BombingLosses)
	return nil
}

func (tr *Tracker) foughtOver(id TerritoryID) bool {
	return tr != nil && slices.Contains(tr.FoughtOver, id)
}

func (tr *Tracker) wasConquered(id TerritoryID) bool {
	return tr != nil && slices.Contains(tr.Conquered, id)
}

// WasConquered reports whether the territory changed hands this turn.
func (tr *Tracker) WasConquered(id TerritoryID) bool { return tr.wasConquered(id) }

func (tr *Tracker) addToConquered(id TerritoryID) {
	if tr != nil && !slices.Contains(tr.Conquered, id) {
		tr.Conquered = append(tr.Conquered, id)
	}
}

func (tr *Tracker) addAirCannotLand(ids []UnitID) {
	if tr != nil {
		tr.AirCannotLand = appendUnique(tr.AirCannotLand, ids...)
	}
}

func (tr *Tracker) bombingLost(id TerritoryID) int {
	if tr == nil {
		return 0
	}
	return tr.BombingLosses[id]
}

func (tr *Tracker) addBombingLost(id TerritoryID, n int) {
	if tr == nil || n <= 0 {
		return
	}
	if tr.BombingLosses == nil {
		tr.BombingLosses = make(map[TerritoryID]int)
	}
	tr.BombingLosses[id] += n
}

// IsBlocked reports whether err means a battle still waits on another.
func IsBlocked(err error) bool { return errors.Is(err, ErrBattleBlocked) }

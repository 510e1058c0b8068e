package combat

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// BattleID identifies a battle for the lifetime of a game.
type BattleID string

// NewBattleID returns a fresh random battle identifier.
func NewBattleID() BattleID {
	return BattleID(uuid.NewString())
}

// BattleKind distinguishes the battles a territory can host in one turn.
type BattleKind string

const (
	KindNormal      BattleKind = "normal"
	KindAirBattle   BattleKind = "air_battle"
	KindAirRaid     BattleKind = "air_raid"
	KindBombingRaid BattleKind = "bombing_raid"
	// KindFinished is a conquest of an empty territory that needed no fight.
	KindFinished BattleKind = "finished"
	// KindNonFighting is an empty territory whose conquest waits on a
	// preceding battle.
	KindNonFighting BattleKind = "non_fighting"
)

// Bombing reports whether the kind belongs to a strategic bombing run.
func (k BattleKind) Bombing() bool {
	return k == KindBombingRaid || k == KindAirRaid
}

// Winner names the side that won a battle.
type Winner string

const (
	WinnerNone     Winner = ""
	WinnerAttacker Winner = "attacker"
	WinnerDefender Winner = "defender"
	WinnerDraw     Winner = "draw"
)

// Result describes how a battle ended.
type Result string

const (
	ResultConquered            Result = "conquered"
	ResultWonWithoutConquering Result = "won_without_conquering"
	ResultWonWithEnemyLeft     Result = "won_with_enemy_left"
	ResultLost                 Result = "lost"
	ResultStalemate            Result = "stalemate"
	ResultRetreated            Result = "retreated"
	ResultBombed               Result = "bombed"
	ResultNoBattle             Result = "no_battle"
)

// Battle is one contested territory for one attacker in one turn. It refers
// to units by ID; the units themselves live in the State. Everything needed
// to resume a suspended battle, including the pending steps, is exported so
// a battle round-trips through JSON.
type Battle struct {
	ID        BattleID    `json:"id"`
	Kind      BattleKind  `json:"kind"`
	Territory TerritoryID `json:"territory"`
	Attacker  PlayerID    `json:"attacker"`
	Defender  PlayerID    `json:"defender"`
	Round     int         `json:"round"`
	MaxRounds int         `json:"max_rounds"`

	Attacking             []UnitID `json:"attacking"`
	Defending             []UnitID `json:"defending"`
	AttackingWaitingToDie []UnitID `json:"attacking_waiting_to_die,omitempty"`
	DefendingWaitingToDie []UnitID `json:"defending_waiting_to_die,omitempty"`
	Killed                []UnitID `json:"killed,omitempty"`
	Bombarding            []UnitID `json:"bombarding,omitempty"`
	AmphibiousLand        []UnitID `json:"amphibious_land,omitempty"`
	AttackingRetreated    []UnitID `json:"attacking_retreated,omitempty"`
	DefendingRetreated    []UnitID `json:"defending_retreated,omitempty"`

	AttackingFrom  []TerritoryID            `json:"attacking_from,omitempty"`
	AmphibiousFrom []TerritoryID            `json:"amphibious_from,omitempty"`
	From           map[TerritoryID][]UnitID `json:"from,omitempty"`
	BombingTargets map[UnitID]UnitID        `json:"bombing_targets,omitempty"`
	Amphibious     bool                     `json:"amphibious,omitempty"`

	AttackerLostTUV int `json:"attacker_lost_tuv"`
	DefenderLostTUV int `json:"defender_lost_tuv"`
	BombingTotal    int `json:"bombing_total,omitempty"`

	Stack   []Step `json:"stack,omitempty"`
	Started bool   `json:"started,omitempty"`
	Over    bool   `json:"over,omitempty"`
	WhoWon  Winner `json:"who_won,omitempty"`
	Result  Result `json:"result,omitempty"`
}

func newBattle(s *State, rules *Rules, kind BattleKind, territory TerritoryID, attacker PlayerID) *Battle {
	b := &Battle{
		ID:        NewBattleID(),
		Kind:      kind,
		Territory: territory,
		Attacker:  attacker,
		Round:     1,
		From:      make(map[TerritoryID][]UnitID),
	}
	t := s.Territory(territory)
	water := t != nil && t.Water
	switch kind {
	case KindAirBattle, KindAirRaid:
		b.MaxRounds = rules.Int(RuleAirBattleRounds, 1)
	default:
		b.MaxRounds = rules.MaxRounds(water)
	}
	b.Defender = findDefender(s, t, attacker)
	return b
}

// findDefender returns the territory owner, or for water and unowned land
// the enemy player with the most units there.
func findDefender(s *State, t *Territory, attacker PlayerID) PlayerID {
	if t == nil {
		return ""
	}
	if !t.Water && t.Owner != "" && t.Owner != attacker {
		return t.Owner
	}
	counts := make(map[PlayerID]int)
	for _, u := range s.UnitsIn(t.ID) {
		if s.AtWar(u.Owner, attacker) {
			counts[u.Owner]++
		}
	}
	var best PlayerID
	for _, p := range slices.Sorted(maps.Keys(counts)) {
		if counts[p] > counts[best] {
			best = p
		}
	}
	if best == "" && t.Owner != attacker {
		return t.Owner
	}
	return best
}

func (b *Battle) String() string {
	return fmt.Sprintf("%s battle in %s (%s vs %s, round %d)", b.Kind, b.Territory, b.Attacker, b.Defender, b.Round)
}

// IsEmpty reports whether no attacking units are left in the battle.
func (b *Battle) IsEmpty() bool {
	return len(b.Attacking) == 0 && len(b.AttackingWaitingToDie) == 0
}

func (b *Battle) player(defending bool) PlayerID {
	if defending {
		return b.Defender
	}
	return b.Attacker
}

func (b *Battle) roster(defending bool) *[]UnitID {
	if defending {
		return &b.Defending
	}
	return &b.Attacking
}

func (b *Battle) waiting(defending bool) *[]UnitID {
	if defending {
		return &b.DefendingWaitingToDie
	}
	return &b.AttackingWaitingToDie
}

// units resolves the active roster of a side against the battle territory.
func (b *Battle) units(s *State, defending bool) []*Unit {
	return s.ResolveIn(b.Territory, *b.roster(defending))
}

func (b *Battle) waitingUnits(s *State, defending bool) []*Unit {
	return s.ResolveIn(b.Territory, *b.waiting(defending))
}

// unitsWithWaiting returns the active roster plus units hit this exchange
// that still fire back.
func (b *Battle) unitsWithWaiting(s *State, defending bool) []*Unit {
	return append(b.units(s, defending), b.waitingUnits(s, defending)...)
}

// Reconcile drops unit references that no longer point at a unit in the
// battle territory. It runs before every resume so a battle restored from a
// snapshot never trusts stale rosters.
func (b *Battle) Reconcile(s *State) {
	in := func(ids []UnitID) []UnitID { return unitIDs(s.ResolveIn(b.Territory, ids)) }
	b.Attacking = in(b.Attacking)
	b.Defending = in(b.Defending)
	b.AttackingWaitingToDie = in(b.AttackingWaitingToDie)
	b.DefendingWaitingToDie = in(b.DefendingWaitingToDie)
	b.AmphibiousLand = in(b.AmphibiousLand)
	b.Bombarding = unitIDs(s.Resolve(b.Bombarding))
	for from, ids := range b.From {
		b.From[from] = unitIDs(s.Resolve(ids))
	}
	for bomber := range b.BombingTargets {
		if u := s.Unit(bomber); u == nil || u.Territory != b.Territory {
			delete(b.BombingTargets, bomber)
		}
	}
}

// dependentUnits returns the cargo carried by the given units.
func dependentUnits(s *State, units []*Unit) []*Unit {
	if len(units) == 0 {
		return nil
	}
	carriers := idSet(unitIDs(units))
	var out []*Unit
	for _, id := range slices.Sorted(maps.Keys(s.Units)) {
		u := s.Units[id]
		if u.TransportedBy != "" && carriers[u.TransportedBy] {
			out = append(out, u)
		}
	}
	return out
}

// addAttack joins units arriving from a territory to the attack. Land units
// that came off a sea zone make the battle amphibious.
func (b *Battle) addAttack(s *State, from TerritoryID, units []*Unit) {
	ids := unitIDs(units)
	b.Attacking = appendUnique(b.Attacking, ids...)
	if !slices.Contains(b.AttackingFrom, from) {
		b.AttackingFrom = append(b.AttackingFrom, from)
	}
	if b.From == nil {
		b.From = make(map[TerritoryID][]UnitID)
	}
	b.From[from] = appendUnique(b.From[from], ids...)

	src, dst := s.Territory(from), s.Territory(b.Territory)
	land := Filter(units, IsLand)
	if src != nil && src.Water && dst != nil && !dst.Water && len(land) > 0 {
		if !slices.Contains(b.AmphibiousFrom, from) {
			b.AmphibiousFrom = append(b.AmphibiousFrom, from)
		}
		b.AmphibiousLand = appendUnique(b.AmphibiousLand, unitIDs(land)...)
		b.Amphibious = true
	}
}

// removeAttack undoes addAttack for units arriving from a territory.
func (b *Battle) removeAttack(s *State, from TerritoryID, units []*Unit) {
	ids := unitIDs(units)
	b.Attacking = removeIDs(b.Attacking, ids)
	b.AmphibiousLand = removeIDs(b.AmphibiousLand, ids)
	b.Bombarding = removeIDs(b.Bombarding, ids)
	for _, id := range ids {
		delete(b.BombingTargets, id)
	}
	if left := removeIDs(b.From[from], ids); len(left) > 0 {
		b.From[from] = left
	} else {
		delete(b.From, from)
		b.AttackingFrom = slices.DeleteFunc(b.AttackingFrom, func(t TerritoryID) bool { return t == from })
		b.AmphibiousFrom = slices.DeleteFunc(b.AmphibiousFrom, func(t TerritoryID) bool { return t == from })
	}
	b.Amphibious = len(b.AmphibiousLand) > 0
	if !b.Amphibious {
		b.Bombarding = nil
	}
}

// unitsLostInPrecedingBattle drops units that died in a battle this one
// depends on, such as cargo sunk with its transport. lost already includes
// the cargo.
func (b *Battle) unitsLostInPrecedingBattle(drop []UnitID) {
	b.Attacking = removeIDs(b.Attacking, drop)
	b.AmphibiousLand = removeIDs(b.AmphibiousLand, drop)
	for from, ids := range b.From {
		b.From[from] = removeIDs(ids, drop)
	}
	if len(b.AmphibiousLand) == 0 && b.Amphibious {
		b.Amphibious = false
		b.Bombarding = nil
	}
}

func (b *Battle) dropFromRosters(ids []UnitID) {
	b.Attacking = removeIDs(b.Attacking, ids)
	b.Defending = removeIDs(b.Defending, ids)
	b.AttackingWaitingToDie = removeIDs(b.AttackingWaitingToDie, ids)
	b.DefendingWaitingToDie = removeIDs(b.DefendingWaitingToDie, ids)
	b.AmphibiousLand = removeIDs(b.AmphibiousLand, ids)
	b.Bombarding = removeIDs(b.Bombarding, ids)
	for _, id := range ids {
		delete(b.BombingTargets, id)
	}
}

// remove takes killed units and their cargo off the board, books the lost
// value against the side that owned them and tells battles waiting on this
// one that the units are gone.
func (b *Battle) remove(br *Bridge, tr *Tracker, killed []*Unit) error {
	if len(killed) == 0 {
		return nil
	}
	all := append(slices.Clone(killed), dependentUnits(br.State, killed)...)
	byTerritory := make(map[TerritoryID][]*Unit)
	seen := make(map[UnitID]bool)
	var gone []*Unit
	for _, u := range all {
		if seen[u.ID] || br.State.Unit(u.ID) == nil {
			continue
		}
		seen[u.ID] = true
		byTerritory[u.Territory] = append(byTerritory[u.Territory], u)
		gone = append(gone, u)
	}
	var changes []Change
	for _, t := range slices.Sorted(maps.Keys(byTerritory)) {
		changes = append(changes, RemoveUnits(t, byTerritory[t]))
	}
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("remove casualties in %s: %w", b.Territory, err)
	}
	for _, u := range gone {
		if br.State.Allied(u.Owner, b.Attacker) {
			b.AttackerLostTUV += u.kind.Cost
		} else {
			b.DefenderLostTUV += u.kind.Cost
		}
	}
	ids := unitIDs(gone)
	b.Killed = appendUnique(b.Killed, ids...)
	b.dropFromRosters(ids)
	br.history().Detail(fmt.Sprintf("%s lost in %s", describeUnits(gone), b.Territory), ids)
	if tr != nil {
		tr.unitsLost(br.State, b, ids)
	}
	return nil
}

// describeUnits renders units as "2 infantry, 1 tank" in first-seen order.
func describeUnits(units []*Unit) string {
	counts := make(map[string]int)
	var order []string
	for _, u := range units {
		if counts[u.Type] == 0 {
			order = append(order, u.Type)
		}
		counts[u.Type]++
	}
	parts := make([]string, len(order))
	for i, t := range order {
		parts[i] = fmt.Sprintf("%d %s", counts[t], t)
	}
	if len(parts) == 0 {
		return "no units"
	}
	return strings.Join(parts, ", ")
}

// clearWaitingToDie removes every unit that was hit but allowed to fire
// back. The waiting lists survive a failed removal so the step can be
// repeated.
func (b *Battle) clearWaitingToDie(br *Bridge, tr *Tracker) error {
	dying := append(b.waitingUnits(br.State, false), b.waitingUnits(br.State, true)...)
	if err := b.remove(br, tr, dying); err != nil {
		return err
	}
	b.AttackingWaitingToDie, b.DefendingWaitingToDie = nil, nil
	return nil
}

// endBattle marks the battle finished and takes it off the tracker.
func (b *Battle) endBattle(br *Bridge, tr *Tracker) error {
	if err := b.clearWaitingToDie(br, tr); err != nil {
		return err
	}
	b.Over = true
	b.Stack = nil
	if tr != nil {
		tr.RemoveBattle(b)
	}
	return nil
}

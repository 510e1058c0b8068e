package combat

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// CasualtyContext describes who is choosing casualties and in which fight.
type CasualtyContext struct {
	BattleID   BattleID
	Player     PlayerID
	Territory  TerritoryID
	Defending  bool
	Amphibious bool
	// Friendly and Enemy are all units on each side, used for support when
	// ranking units.
	Friendly []*Unit
	Enemy    []*Unit
	// SingleHit makes every hit kill outright, ignoring extra hit points.
	SingleHit bool
	AA        bool
	Message   string
	// Attempt counts rejected answers so far and survives suspension.
	Attempt   int
	LastError string
}

// IsNonCombatTransport matches transports with no attack or defense, the
// units protected by the restricted transport casualty rule.
func IsNonCombatTransport(u *Unit) bool {
	return u.kind.Transport && u.kind.Attack == 0 && u.kind.Defense == 0
}

func hitPoints(units []*Unit, single bool) int {
	if single {
		return len(units)
	}
	total := 0
	for _, u := range units {
		total += u.RemainingHitPoints()
	}
	return total
}

// allOneTypeOneHitPoint reports whether every target is the same type with
// a single hit point left.
func allOneTypeOneHitPoint(targets []*Unit, single bool) bool {
	for _, u := range targets {
		if u.Type != targets[0].Type || !single && u.RemainingHitPoints() > 1 {
			return false
		}
		if u.WasAmphibious != targets[0].WasAmphibious || u.Hits != targets[0].Hits {
			return false
		}
	}
	return true
}

// SortForCasualties returns targets most expendable first, using the
// bridge's order cache.
func SortForCasualties(b *Bridge, targets []*Unit, cc *CasualtyContext) []*Unit {
	key := KeyFor(cc.Player, cc.Territory, cc.Defending, cc.Amphibious, targets)
	sorted, ok := b.Cache.Get(key, targets)
	if !ok {
		comp := NewUnitComparator(b.State, cc.Territory, cc.Defending, b.Rules.DiceSides())
		friendly := cc.Friendly
		if friendly == nil {
			friendly = targets
		}
		pc := PowerContext{
			Rules:     b.Rules,
			Territory: b.State.Territory(cc.Territory),
			Defending: cc.Defending,
			Friendly:  friendly,
			Enemy:     cc.Enemy,
		}
		sorted = SortWithSupport(targets, comp, pc)
		b.Cache.Put(key, sorted)
	}
	if b.Rules.Bool(RuleTransportCasualtiesRestrict) {
		// restricted transports only die once everything else has
		others := Filter(sorted, Predicate(IsNonCombatTransport).Not())
		sorted = append(others, Filter(sorted, IsNonCombatTransport)...)
	}
	return sorted
}

// DefaultCasualties picks casualties from sorted targets: extra hit points
// of multi-hit units are used up first, then units die in order.
func DefaultCasualties(sorted []*Unit, hits int, single bool) CasualtyDetails {
	var d CasualtyDetails
	taken := 0
	if !single {
		for _, u := range sorted {
			for range u.RemainingHitPoints() - 1 {
				if taken >= hits {
					return d
				}
				d.Damaged = append(d.Damaged, u.ID)
				taken++
			}
		}
	}
	for _, u := range sorted {
		if taken >= hits {
			break
		}
		d.Killed = append(d.Killed, u.ID)
		taken++
	}
	return d
}

// SelectCasualties decides which targets take the hits. Uniform one hit
// point groups and hits that kill everything are resolved without asking.
// Otherwise the owning player is offered the default and the answer is
// validated, retrying up to the rule limit before failing with a
// ProtocolError. ErrAwaitingDecision is passed through so the battle can
// suspend; cc.Attempt carries the retry count across the suspension.
func SelectCasualties(ctx context.Context, b *Bridge, targets []*Unit, hits int, cc *CasualtyContext) (CasualtyDetails, error) {
	if len(targets) == 0 || hits <= 0 {
		return CasualtyDetails{AutoCalculated: true}, nil
	}
	if dup := duplicateUnit(targets); dup != "" {
		return CasualtyDetails{}, invariant("select casualties", "unit %s listed twice", dup)
	}
	totalHP := hitPoints(targets, cc.SingleHit)

	restricted := b.Rules.Bool(RuleTransportCasualtiesRestrict)
	hasTransports := restricted && AnyMatch(targets, IsNonCombatTransport)
	if !hasTransports && allOneTypeOneHitPoint(targets, cc.SingleHit) {
		d := CasualtyDetails{AutoCalculated: true}
		for _, u := range targets[:min(hits, len(targets))] {
			d.Killed = append(d.Killed, u.ID)
		}
		return d, nil
	}

	sorted := SortForCasualties(b, targets, cc)
	def := DefaultCasualties(sorted, hits, cc.SingleHit)
	if hits >= totalHP {
		def.AutoCalculated = true
		return def, nil
	}
	maxTries := b.Rules.MaxSelectionTries()
	for {
		q := CasualtyQuery{
			BattleID:   cc.BattleID,
			Player:     cc.Player,
			Territory:  cc.Territory,
			Hits:       hits,
			Candidates: unitIDs(sorted),
			Default:    def,
			Defending:  cc.Defending,
			AA:         cc.AA,
			Message:    cc.Message,
			Attempt:    cc.Attempt,
			LastError:  cc.LastError,
		}
		ans, err := b.decisions().SelectCasualties(ctx, q)
		if err != nil {
			return CasualtyDetails{}, err
		}
		if b.Rules.Bool(RulePartialAmphibiousRetreat) {
			ans.Killed = killAmphibiousFirst(b.State, ans.Killed, sorted)
		}
		verr := ValidateCasualties(b.State, ans, sorted, hits, cc.SingleHit, restricted)
		if verr == nil {
			ans.AutoCalculated = false
			return ans, nil
		}
		cc.Attempt++
		cc.LastError = verr.Error()
		b.Log.Warn().Str("battleId", string(cc.BattleID)).Str("player", string(cc.Player)).
			Int("attempt", cc.Attempt).Err(verr).Msg("rejected casualty selection")
		if cc.Attempt >= maxTries {
			return CasualtyDetails{}, &ProtocolError{BattleID: string(cc.BattleID), Player: cc.Player, Attempts: cc.Attempt, Last: verr}
		}
	}
}

func duplicateUnit(units []*Unit) UnitID {
	seen := make(map[UnitID]bool, len(units))
	for _, u := range units {
		if seen[u.ID] {
			return u.ID
		}
		seen[u.ID] = true
	}
	return ""
}

// ValidateCasualties checks a selection against the candidates: every
// chosen unit must be a candidate, a killed unit must lose exactly its
// remaining hit points, a damaged unit must survive, and the hit points
// accounted for must equal min(hits, total hit points).
func ValidateCasualties(s *State, d CasualtyDetails, candidates []*Unit, hits int, single, restrictTransports bool) error {
	byID := make(map[UnitID]*Unit, len(candidates))
	for _, u := range candidates {
		byID[u.ID] = u
	}
	reject := func(format string, args ...any) error {
		var owner PlayerID
		if len(candidates) > 0 {
			owner = candidates[0].Owner
		}
		return &SelectionError{Player: owner, Reason: fmt.Sprintf(format, args...)}
	}
	if single && len(d.Damaged) > 0 {
		return reject("units cannot be damaged by this fire")
	}
	damage := make(map[UnitID]int)
	for _, id := range d.Damaged {
		if byID[id] == nil {
			return reject("unit %s cannot be chosen", id)
		}
		damage[id]++
	}
	killed := make(map[UnitID]bool)
	for _, id := range d.Killed {
		u := byID[id]
		if u == nil {
			return reject("unit %s cannot be chosen", id)
		}
		if killed[id] {
			return reject("unit %s chosen twice", id)
		}
		killed[id] = true
		if !single && damage[id]+1 != u.RemainingHitPoints() {
			return reject("unit %s has %d hit points but takes %d", id, u.RemainingHitPoints(), damage[id]+1)
		}
	}
	for id, n := range damage {
		if !killed[id] && n >= byID[id].RemainingHitPoints() {
			return reject("unit %s takes %d hits and would have to die", id, n)
		}
	}
	want := min(hits, hitPoints(candidates, single))
	if d.Size() != want {
		return reject("wrong number of casualties: selected %d, need %d", d.Size(), want)
	}
	if restrictTransports {
		others := Filter(candidates, Predicate(IsNonCombatTransport).Not())
		if hits < hitPoints(others, single) {
			for _, id := range slices.Concat(d.Killed, d.Damaged) {
				if IsNonCombatTransport(byID[id]) {
					return reject("transports can only be chosen after every other unit")
				}
			}
		}
	}
	return nil
}

// killAmphibiousFirst swaps killed land units that did not come by sea for
// amphibious units of the same type that are still alive.
func killAmphibiousFirst(s *State, killed []UnitID, targets []*Unit) []UnitID {
	isKilled := idSet(killed)
	var spare []*Unit
	for _, u := range targets {
		if u.WasAmphibious && !isKilled[u.ID] {
			spare = append(spare, u)
		}
	}
	if len(spare) == 0 {
		return killed
	}
	out := slices.Clone(killed)
	for i, id := range out {
		u := s.Unit(id)
		if u == nil || !u.kind.Land() || u.WasAmphibious || u.RemainingHitPoints() != 1 {
			continue
		}
		j := slices.IndexFunc(spare, func(a *Unit) bool { return a.Type == u.Type && a.Hits == u.Hits })
		if j < 0 {
			continue
		}
		out[i] = spare[j].ID
		spare = slices.Delete(spare, j, j+1)
	}
	return out
}

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

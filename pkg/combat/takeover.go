package combat

import (
	"cmp"
	"fmt"
	"slices"
)

// TakeOver hands a territory to player after the arriving units won it.
// It is exported for callers that conquer outside a battle, such as an
// unopposed move into enemy land during the combat move.
func (tr *Tracker) TakeOver(br *Bridge, territory TerritoryID, player PlayerID, arriving []*Unit) error {
	return tr.takeOver(br, territory, player, arriving)
}

// takeOver applies everything that happens when a territory changes hands.
// A capital is looted before convoy routes are looked at.
func (tr *Tracker) takeOver(br *Bridge, id TerritoryID, player PlayerID, arriving []*Unit) error {
	s := br.State
	t := s.Territory(id)
	if t == nil {
		return nil
	}
	if t.Water {
		return tr.takeConvoyZone(br, t, player, arriving)
	}
	if !AnyMatch(arriving, Predicate(IsAir).Not().And(IsNotInfrastructure)) {
		return nil
	}

	newOwner := player
	if t.OriginalOwner != "" && t.OriginalOwner != player && s.Allied(t.OriginalOwner, player) {
		if all, held := s.Capitals(t.OriginalOwner); len(all) == 0 || len(held) > 0 || t.CapitalOf == t.OriginalOwner {
			newOwner = t.OriginalOwner
		}
	}
	old := t.Owner

	var changes []Change
	if t.CapitalOf != "" && t.CapitalOf == old && s.AtWar(old, player) {
		_, held := s.Capitals(old)
		retain := br.Rules.Int(RuleRetainCapitalCount, 1)
		if len(held)-1 < retain {
			if p := s.Player(old); p != nil && p.Resources > 0 {
				changes = append(changes, Resources(old, -p.Resources), Resources(player, p.Resources))
				br.event("%s captures %s's capital and takes %d", player, old, p.Resources)
			}
			br.history().Sound(SoundCapitalCaptured, player)
		}
	}
	if old != newOwner {
		changes = append(changes, TerritoryOwner(t, newOwner))
	}
	combatants := Filter(arriving, Predicate(IsLand).Or(IsAir))
	changes = append(changes, UnitFlag(combatants, FlagWasInCombat, true))
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("take over %s: %w", id, err)
	}

	if old != newOwner {
		if newOwner == player {
			br.event("%s takes %s from %s", player, id, old)
		} else {
			br.event("%s liberates %s for %s", player, id, newOwner)
		}
		tr.convoyNotices(br, t, newOwner)
		if t.CapitalOf == "" || t.CapitalOf == newOwner {
			br.history().Sound(SoundTerritoryCaptured, player)
		}
		if t.CapitalOf == newOwner && newOwner != player {
			if err := tr.liberate(br, newOwner, player); err != nil {
				return err
			}
		}
	}
	return tr.captureOrDestroy(br, id, newOwner)
}

// liberate returns territories conquered from owner by liberator's side
// once owner's capital is free again.
func (tr *Tracker) liberate(br *Bridge, owner, liberator PlayerID) error {
	s := br.State
	var changes []Change
	for _, t := range sortedTerritories(s) {
		if t.Water || t.OriginalOwner != owner || t.Owner == owner || !s.Allied(t.Owner, liberator) {
			continue
		}
		changes = append(changes, TerritoryOwner(t, owner))
	}
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("return territories to %s: %w", owner, err)
	}
	if len(changes) > 0 {
		br.event("%d territories return to %s", len(changes), owner)
	}
	return nil
}

// takeConvoyZone changes the owner of a convoy zone that enemy warships
// now hold.
func (tr *Tracker) takeConvoyZone(br *Bridge, t *Territory, player PlayerID, arriving []*Unit) error {
	s := br.State
	if len(t.ConvoyFor) == 0 || t.Owner == player || !s.AtWar(t.Owner, player) {
		return nil
	}
	if !AnyMatch(arriving, Predicate(IsSea).And(CanFire(false))) {
		return nil
	}
	old := t.Owner
	if err := br.Apply(TerritoryOwner(t, player)); err != nil {
		return fmt.Errorf("take convoy zone %s: %w", t.ID, err)
	}
	for _, id := range t.ConvoyFor {
		if land := s.Territory(id); land != nil && land.Owner == old {
			br.event("%s's convoy to %s is cut, %d production lost", old, id, land.Production)
		}
	}
	return nil
}

// convoyNotices reports convoy zones that now supply a new owner.
func (tr *Tracker) convoyNotices(br *Bridge, t *Territory, newOwner PlayerID) {
	s := br.State
	for _, zone := range sortedTerritories(s) {
		if !zone.Water || !slices.Contains(zone.ConvoyFor, t.ID) {
			continue
		}
		if s.Allied(zone.Owner, newOwner) || zone.Owner == "" {
			br.event("convoy through %s now supplies %s from %s", zone.ID, newOwner, t.ID)
		} else {
			br.event("%s cannot ship production from %s while %s holds %s", newOwner, t.ID, zone.Owner, zone.ID)
		}
	}
}

// captureOrDestroy deals with enemy units left in a territory player now
// holds. Infrastructure changes hands unless the rules destroy what cannot
// be captured.
func (tr *Tracker) captureOrDestroy(br *Bridge, id TerritoryID, player PlayerID) error {
	s, rules := br.State, br.Rules
	t := s.Territory(id)
	if t == nil || t.Water || player == "" {
		return nil
	}
	enemy := Filter(s.UnitsIn(id), EnemyOf(s, player).And(Predicate(IsBeingTransported).Not()))
	var capture, destroy []*Unit
	for _, u := range enemy {
		capturable := u.kind.Infrastructure || rules.Bool(RuleCaptureUnitsOnEntering) && u.kind.CanBeCaptured
		switch {
		case !capturable:
		case rules.Bool(RuleDestroyedInsteadOfCaptured) && !u.kind.CanBeCaptured:
			destroy = append(destroy, u)
		default:
			capture = append(capture, u)
		}
	}
	changes := []Change{UnitOwner(capture, player)}
	if len(destroy) > 0 {
		changes = append(changes, RemoveUnits(id, destroy))
	}
	if err := br.Apply(Composite(changes...)); err != nil {
		return fmt.Errorf("capture units in %s: %w", id, err)
	}
	if len(capture) > 0 {
		br.history().Detail(fmt.Sprintf("%s captures %s in %s", player, describeUnits(capture), id), unitIDs(capture))
	}
	if len(destroy) > 0 {
		br.history().Detail(fmt.Sprintf("%s destroyed in %s", describeUnits(destroy), id), unitIDs(destroy))
	}
	return nil
}

func sortedTerritories(s *State) []*Territory {
	out := make([]*Territory, 0, len(s.Territories))
	for _, t := range s.Territories {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Territory) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

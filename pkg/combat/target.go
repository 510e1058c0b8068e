package combat

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

// TargetGroup is a set of firing units that may all hit exactly the same
// enemy unit types, together with the enemy units of those types.
type TargetGroup struct {
	FiringTypes []string
	TargetTypes []string
	Firing      []*Unit
	Targets     []*Unit
}

func (g TargetGroup) key() string { return strings.Join(g.TargetTypes, ",") }

// LegalTargetTypes returns the enemy types a firing type may hit: every
// enemy type minus the ones it cannot target and the ones that cannot be
// targeted by it. A destroyer on the firing side cancels the second
// exclusion.
func LegalTargetTypes(firing *UnitType, enemyTypes []*UnitType, firingHasDestroyer bool) []string {
	var out []string
	for _, et := range enemyTypes {
		if slices.Contains(firing.CanNotTarget, et.Name) {
			continue
		}
		if !firingHasDestroyer && slices.Contains(et.CanNotBeTargetedBy, firing.Name) {
			continue
		}
		out = append(out, et.Name)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// GroupTargets partitions the firing units into groups with identical legal
// target sets. Every firing unit lands in exactly one group; a group whose
// target set is empty is still returned so the partition stays complete.
// Groups are ordered by fewest target types first.
func GroupTargets(firing, enemies []*Unit, firingHasDestroyer bool) []TargetGroup {
	enemyTypes := make(map[string]*UnitType)
	for _, e := range enemies {
		enemyTypes[e.Type] = e.kind
	}
	sortedEnemyTypes := make([]*UnitType, 0, len(enemyTypes))
	for _, name := range slices.Sorted(maps.Keys(enemyTypes)) {
		sortedEnemyTypes = append(sortedEnemyTypes, enemyTypes[name])
	}

	byKey := make(map[string]*TargetGroup)
	var order []string
	legal := make(map[string][]string)
	for _, u := range firing {
		lt, ok := legal[u.Type]
		if !ok {
			lt = LegalTargetTypes(u.kind, sortedEnemyTypes, firingHasDestroyer)
			legal[u.Type] = lt
		}
		k := strings.Join(lt, ",")
		g := byKey[k]
		if g == nil {
			g = &TargetGroup{TargetTypes: lt}
			byKey[k] = g
			order = append(order, k)
		}
		if !slices.Contains(g.FiringTypes, u.Type) {
			g.FiringTypes = append(g.FiringTypes, u.Type)
		}
		g.Firing = append(g.Firing, u)
	}

	groups := make([]TargetGroup, 0, len(order))
	for _, k := range order {
		g := byKey[k]
		g.Targets = Filter(enemies, OfType(g.TargetTypes...))
		groups = append(groups, *g)
	}
	slices.SortStableFunc(groups, func(a, b TargetGroup) int {
		if d := cmp.Compare(len(a.TargetTypes), len(b.TargetTypes)); d != 0 {
			return d
		}
		return cmp.Compare(a.key(), b.key())
	})
	return groups
}

package combat

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
)

const aaCasualtyAnnotation = "Deciding which planes should die due to AA fire"

// AACasualties picks the planes hit by anti-aircraft fire. Players choose
// when the rule allows it; otherwise low luck kills planes group by group,
// individually rolled guns kill the plane each die was aimed at, and
// everything else is drawn at random. AA hits always kill outright.
func AACasualties(ctx context.Context, b *Bridge, planes []*Unit, roll *AARoll, cc *CasualtyContext) (CasualtyDetails, error) {
	if len(planes) == 0 || roll == nil || roll.Hits <= 0 {
		return CasualtyDetails{AutoCalculated: true}, nil
	}
	if dup := duplicateUnit(planes); dup != "" {
		return CasualtyDetails{}, invariant("aa casualties", "unit %s listed twice", dup)
	}
	rules := b.Rules
	if rules.Bool(RuleChooseAACasualties) {
		cc.SingleHit = true
		return SelectCasualties(ctx, b, planes, roll.Hits, cc)
	}
	var (
		d   CasualtyDetails
		err error
	)
	switch {
	case rules.LowLuckAA():
		d, err = lowLuckAACasualties(b.Random, planes, roll)
	case rules.Bool(RuleRollAAIndividually) || !rules.Bool(RuleRandomAACasualties):
		d, err = individuallyFiredAACasualties(b.Random, planes, roll)
	default:
		d, err = randomAACasualties(b.Random, planes, roll.Hits)
	}
	if err != nil {
		return CasualtyDetails{}, err
	}
	d.AutoCalculated = true
	return d, nil
}

// randomAACasualties draws every casualty in one batch. Each value moves a
// cursor through the remaining planes.
func randomAACasualties(rnd RandomSource, planes []*Unit, hits int) (CasualtyDetails, error) {
	var d CasualtyDetails
	if hits >= len(planes) {
		d.Killed = unitIDs(planes)
		return d, nil
	}
	vals, err := rnd.Draw(len(planes), hits, aaCasualtyAnnotation)
	if err != nil {
		return d, fmt.Errorf("random aa casualties: %w", err)
	}
	left := slices.Clone(planes)
	d.Killed = pickByCursor(&left, vals)
	return d, nil
}

func pickByCursor(left *[]*Unit, vals []int) []UnitID {
	var out []UnitID
	pos := 0
	for _, v := range vals {
		if len(*left) == 0 {
			break
		}
		pos += v
		i := pos % len(*left)
		out = append(out, (*left)[i].ID)
		*left = slices.Delete(*left, i, i+1)
	}
	return out
}

// individuallyFiredAACasualties kills the plane each hitting die was aimed
// at. That only works with one shot per plane at a single strength;
// anything else falls back to a random pick.
func individuallyFiredAACasualties(rnd RandomSource, planes []*Unit, roll *AARoll) (CasualtyDetails, error) {
	if roll.Shots != len(planes) || !roll.AllSameAttack || len(roll.Dice) != len(planes) {
		return randomAACasualties(rnd, planes, roll.Hits)
	}
	var d CasualtyDetails
	if roll.Hits >= len(planes) {
		d.Killed = unitIDs(planes)
		return d, nil
	}
	for i, die := range roll.Dice {
		if die.Hit {
			d.Killed = append(d.Killed, planes[i].ID)
		}
	}
	return d, nil
}

// lowLuckAACasualties splits each kind of plane into groups that statistically
// lose one plane per group and kills one plane in every group. Leftover
// planes and uneven strengths are settled at random.
func lowLuckAACasualties(rnd RandomSource, planes []*Unit, roll *AARoll) (CasualtyDetails, error) {
	hits := roll.Hits
	highest, sides := roll.HighestAttack, roll.DieSides
	if highest < 1 {
		return CasualtyDetails{}, nil
	}
	groupSize := sides
	if roll.AllSameAttack {
		groupSize = sides / highest
	}
	groupCount := (len(planes) + groupSize - 1) / groupSize
	if !roll.AllSameAttack || hits > groupCount || sides%highest != 0 {
		return randomAACasualties(rnd, planes, hits)
	}

	groups, rest := lowLuckAirGroups(planes, groupSize)
	var d CasualtyDetails
	if hits < len(groups)+(len(rest)+groupSize-1)/groupSize {
		var candidates []*Unit
		for _, g := range groups {
			candidates = append(candidates, g[0])
		}
		switch {
		case len(rest) == 1:
			candidates = append(candidates, rest[0])
		case len(rest) > 1:
			remainders := slices.Clone(rest)
			vals, err := rnd.Draw(len(remainders), (len(remainders)+groupSize-1)/groupSize, aaCasualtyAnnotation)
			if err != nil {
				return d, fmt.Errorf("low luck aa remainder: %w", err)
			}
			for _, id := range pickByCursor(&remainders, vals) {
				candidates = append(candidates, unitByID(rest, id))
			}
		}
		vals, err := rnd.Draw(len(candidates), hits, aaCasualtyAnnotation)
		if err != nil {
			return d, fmt.Errorf("low luck aa casualties: %w", err)
		}
		d.Killed = pickByCursor(&candidates, vals)
		return d, nil
	}

	for _, g := range groups {
		d.Killed = append(d.Killed, g[0].ID)
		hits--
	}
	switch {
	case hits == len(rest):
		d.Killed = append(d.Killed, unitIDs(rest)...)
	case hits > 0:
		vals, err := rnd.Draw(len(rest), hits, aaCasualtyAnnotation)
		if err != nil {
			return d, fmt.Errorf("low luck aa casualties: %w", err)
		}
		left := slices.Clone(rest)
		d.Killed = append(d.Killed, pickByCursor(&left, vals)...)
	}
	if d.Size() != roll.Hits {
		return d, invariant("aa casualties", "expected %d casualties, picked %d", roll.Hits, d.Size())
	}
	return d, nil
}

// lowLuckAirGroups categorizes planes by type, owner and damage, then cuts
// each category into full groups of groupSize plus a remainder.
func lowLuckAirGroups(planes []*Unit, groupSize int) (groups [][]*Unit, rest []*Unit) {
	type category struct {
		typ   string
		owner PlayerID
		hits  int
	}
	byCat := make(map[category][]*Unit)
	for _, u := range planes {
		c := category{u.Type, u.Owner, u.Hits}
		byCat[c] = append(byCat[c], u)
	}
	cats := slices.SortedFunc(maps.Keys(byCat), func(a, b category) int {
		if c := cmp.Compare(a.typ, b.typ); c != 0 {
			return c
		}
		if c := cmp.Compare(a.owner, b.owner); c != 0 {
			return c
		}
		return cmp.Compare(a.hits, b.hits)
	})
	for _, c := range cats {
		units := byCat[c]
		split := len(units) - len(units)%groupSize
		for i := 0; i < split; i += groupSize {
			groups = append(groups, units[i:i+groupSize])
		}
		rest = append(rest, units[split:]...)
	}
	return groups, rest
}

func unitByID(units []*Unit, id UnitID) *Unit {
	for _, u := range units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

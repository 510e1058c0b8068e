package combat

import (
	"fmt"
	"maps"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Rule keys understood by the engine. Unset boolean rules are off; unset
// numeric rules use the default documented next to the key.
const (
	RuleDiceSides          = "Dice Sides"           // default 6
	RuleLandBattleRounds   = "Land Battle Rounds"   // default -1, fight until one side is gone
	RuleSeaBattleRounds    = "Sea Battle Rounds"    // default -1
	RuleAirBattleRounds    = "Air Battle Rounds"    // default 1
	RuleRetainCapitalCount = "Retain Capital Count" // default 1, capitals a player must hold to keep its resources
	RuleMaxSelectionTries  = "Max Selection Tries"  // default 3

	RuleLowLuck                      = "Low Luck"
	RuleLowLuckAAOnly                = "Low Luck for AntiAircraft"
	RuleChooseAACasualties           = "Choose AA Casualties"
	RuleRollAAIndividually           = "Roll AA Individually"
	RuleRandomAACasualties           = "Random AA Casualties"
	RuleLHTRHeavyBombers             = "LHTR Heavy Bombers"
	RuleWW2V2                        = "WW2V2"
	RuleDefendingSubsSneakAttack     = "Defending Subs Sneak Attack"
	RuleSubRetreatBeforeBattle       = "Sub Retreat Before Battle"
	RuleSubmersibleSubs              = "Submersible Subs"
	RuleDefendingSubsMaySubmerge     = "Submarines Defending May Submerge Or Retreat"
	RuleAirAttackSubRestricted       = "Air Attack Sub Restricted"
	RuleTransportCasualtiesRestrict  = "Transport Casualties Restricted"
	RulePartialAmphibiousRetreat     = "Partial Amphibious Retreat"
	RuleAttackerRetreatPlanes        = "Attacker Retreat Planes"
	RuleNavalBombardReturnFire       = "Naval Bombard Casualties Return Fire"
	RuleAlliedAirIndependent         = "Allied Air Independent"
	RuleCaptureUnitsOnEntering       = "Capture Units On Entering Territory"
	RuleScrambleRulesInEffect        = "Scramble Rules In Effect"
	RuleRaidsPrecededByAirBattles    = "Raids May Be Preceeded By Air Battles"
	RuleBattlesPrecededByAirBattles  = "Battles May Be Preceeded By Air Battles"
	RuleBombingDamagesUnits          = "Damage From Bombing Done To Units Instead Of Territories"
	RuleRetreatingUnitsRemainInPlace = "Retreating Units Remain In Place"
	RuleWW2V3                        = "WW2V3"

	RuleSuicideCasualtiesRestricted   = "Suicide and Munition Casualties Restricted"
	RuleDefendingSuicideDoNotFire     = "Defending Suicide and Munition Units Do Not Fire"
	RuleAbandonedTerritoriesTakenOver = "Abandoned Territories May Be Taken Over By Enemy Units"
	RuleAirBattleAttackersCanRetreat  = "Air Battle Attackers Can Retreat"
	RuleAirBattleDefendersCanRetreat  = "Air Battle Defenders Can Retreat"
	RuleLimitBombingToProduction      = "Limit SBR Damage To Factory Production"
	RuleLimitBombingToUnitDamage      = "Limit SBR Damage Per Turn"
	RuleDestroyedInsteadOfCaptured    = "Units Can Be Destroyed Instead Of Captured"
)

// Rules is a read-only set of named game rule toggles and numbers.
type Rules struct {
	props map[string]any
}

// NewRules returns rules backed by a copy of props.
func NewRules(props map[string]any) *Rules {
	return &Rules{props: maps.Clone(props)}
}

// DefaultRules returns rules with every property at its default.
func DefaultRules() *Rules {
	return &Rules{}
}

// ParseRules decodes a YAML (or JSON) mapping of rule names to values.
func ParseRules(data []byte) (*Rules, error) {
	props := make(map[string]any)
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &Rules{props: props}, nil
}

// With returns a copy with key set to value.
func (r *Rules) With(key string, value any) *Rules {
	c := &Rules{props: maps.Clone(r.props)}
	if c.props == nil {
		c.props = make(map[string]any)
	}
	c.props[key] = value
	return c
}

// Props returns a copy of the raw property map.
func (r *Rules) Props() map[string]any {
	if r == nil {
		return nil
	}
	return maps.Clone(r.props)
}

// Bool returns a boolean rule, false when unset or malformed.
func (r *Rules) Bool(key string) bool {
	if r == nil {
		return false
	}
	switch v := r.props[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Int returns a numeric rule or def when unset or malformed.
func (r *Rules) Int(key string, def int) int {
	if r == nil {
		return def
	}
	switch v := r.props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// DiceSides returns the number of faces on a die.
func (r *Rules) DiceSides() int {
	if n := r.Int(RuleDiceSides, 6); n > 0 {
		return n
	}
	return 6
}

// LowLuck reports whether low luck applies to normal combat fire.
func (r *Rules) LowLuck() bool { return r.Bool(RuleLowLuck) }

// LowLuckAA reports whether low luck applies to anti-aircraft fire.
func (r *Rules) LowLuckAA() bool { return r.Bool(RuleLowLuck) || r.Bool(RuleLowLuckAAOnly) }

// MaxRounds returns the round limit for a battle fought in a territory,
// or -1 for no limit.
func (r *Rules) MaxRounds(water bool) int {
	if water {
		return r.Int(RuleSeaBattleRounds, -1)
	}
	return r.Int(RuleLandBattleRounds, -1)
}

// MaxSelectionTries returns how many invalid decisions are tolerated.
func (r *Rules) MaxSelectionTries() int {
	if n := r.Int(RuleMaxSelectionTries, 3); n > 0 {
		return n
	}
	return 1
}

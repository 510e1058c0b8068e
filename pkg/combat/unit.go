package combat

import (
	"slices"

	"github.com/google/uuid"
)

// PlayerID identifies a nation taking part in the game.
type PlayerID string

// TerritoryID identifies a land territory or sea zone.
type TerritoryID string

// UnitID identifies a single unit for the lifetime of a game.
type UnitID string

// NewUnitID returns a fresh random unit identifier.
func NewUnitID() UnitID {
	return UnitID(uuid.NewString())
}

// SupportRule describes the bonus a supporting unit type gives to other units
// in the same battle (e.g. artillery boosting infantry). Offence and Defence
// refer to the side the recipient fights on.
type SupportRule struct {
	Name       string   `json:"name" yaml:"name"`
	Bonus      int      `json:"bonus" yaml:"bonus"`
	Number     int      `json:"number" yaml:"number"`           // recipients per supporting unit
	Rolls      bool     `json:"rolls,omitempty" yaml:"rolls"`   // bonus adds rolls instead of strength
	Offence    bool     `json:"offence,omitempty" yaml:"offence"`
	Defence    bool     `json:"defence,omitempty" yaml:"defence"`
	Allied     bool     `json:"allied,omitempty" yaml:"allied"` // applies to friendly units
	Enemy      bool     `json:"enemy,omitempty" yaml:"enemy"`   // applies to enemy units
	Recipients []string `json:"recipients" yaml:"recipients"`
	BonusType  string   `json:"bonus_type,omitempty" yaml:"bonus_type"`
}

func (r SupportRule) bonusType() string {
	if r.BonusType != "" {
		return r.BonusType
	}
	return r.Name
}

func (r SupportRule) supports(typeName string) bool {
	return slices.Contains(r.Recipients, typeName)
}

// AAProfile holds the anti-aircraft attributes of a unit type.
type AAProfile struct {
	Type                 string   `json:"type,omitempty" yaml:"type"`
	Attack               int      `json:"attack" yaml:"attack"`
	OffensiveAttack      int      `json:"offensive_attack,omitempty" yaml:"offensive_attack"`
	MaxDieSides          int      `json:"max_die_sides,omitempty" yaml:"max_die_sides"`
	OffensiveMaxDieSides int      `json:"offensive_max_die_sides,omitempty" yaml:"offensive_max_die_sides"`
	MaxAttacks           int      `json:"max_attacks" yaml:"max_attacks"` // -1 means one shot per target
	MaxRounds            int      `json:"max_rounds" yaml:"max_rounds"`   // -1 means every round
	Targets              []string `json:"targets,omitempty" yaml:"targets"`
	MayOverStack         bool     `json:"may_over_stack,omitempty" yaml:"may_over_stack"`
	ForCombat            bool     `json:"for_combat,omitempty" yaml:"for_combat"`
	ForBombing           bool     `json:"for_bombing,omitempty" yaml:"for_bombing"`
}

func (p *AAProfile) aaType() string {
	if p.Type == "" {
		return "AA"
	}
	return p.Type
}

// UnitType describes the combat attributes shared by every unit of a kind.
type UnitType struct {
	Name         string `json:"name" yaml:"name"`
	Attack       int    `json:"attack" yaml:"attack"`
	Defense      int    `json:"defense" yaml:"defense"`
	AttackRolls  int    `json:"attack_rolls,omitempty" yaml:"attack_rolls"`
	DefenseRolls int    `json:"defense_rolls,omitempty" yaml:"defense_rolls"`
	HitPoints    int    `json:"hit_points,omitempty" yaml:"hit_points"`
	Movement     int    `json:"movement" yaml:"movement"`
	Cost         int    `json:"cost" yaml:"cost"`

	Air            bool `json:"air,omitempty" yaml:"air"`
	Sea            bool `json:"sea,omitempty" yaml:"sea"`
	Infrastructure bool `json:"infrastructure,omitempty" yaml:"infrastructure"`
	FirstStrike    bool `json:"first_strike,omitempty" yaml:"first_strike"`
	CanEvade       bool `json:"can_evade,omitempty" yaml:"can_evade"`
	Destroyer      bool `json:"destroyer,omitempty" yaml:"destroyer"`
	Transport      bool `json:"transport,omitempty" yaml:"transport"`
	Repairable     bool `json:"repairable,omitempty" yaml:"repairable"`
	CanBeCaptured  bool `json:"can_be_captured,omitempty" yaml:"can_be_captured"`
	ChooseBestRoll bool `json:"choose_best_roll,omitempty" yaml:"choose_best_roll"`

	SuicideOnAttack  bool `json:"suicide_on_attack,omitempty" yaml:"suicide_on_attack"`
	SuicideOnDefense bool `json:"suicide_on_defense,omitempty" yaml:"suicide_on_defense"`
	SuicideOnHit     bool `json:"suicide_on_hit,omitempty" yaml:"suicide_on_hit"`

	Bombard         int `json:"bombard,omitempty" yaml:"bombard"`
	AmphibiousBonus int `json:"amphibious_bonus,omitempty" yaml:"amphibious_bonus"`
	CarrierCapacity int `json:"carrier_capacity,omitempty" yaml:"carrier_capacity"`
	CarrierCost     int `json:"carrier_cost,omitempty" yaml:"carrier_cost"`

	StrategicBomber bool `json:"strategic_bomber,omitempty" yaml:"strategic_bomber"`
	BombingBonus    int  `json:"bombing_bonus,omitempty" yaml:"bombing_bonus"`
	CanBeDamaged    bool `json:"can_be_damaged,omitempty" yaml:"can_be_damaged"`
	MaxDamage       int  `json:"max_damage,omitempty" yaml:"max_damage"`
	AirAttack       int  `json:"air_attack,omitempty" yaml:"air_attack"`
	AirDefense      int  `json:"air_defense,omitempty" yaml:"air_defense"`

	CanNotTarget       []string      `json:"can_not_target,omitempty" yaml:"can_not_target"`
	CanNotBeTargetedBy []string      `json:"can_not_be_targeted_by,omitempty" yaml:"can_not_be_targeted_by"`
	Supports           []SupportRule `json:"supports,omitempty" yaml:"supports"`
	AA                 *AAProfile    `json:"aa,omitempty" yaml:"aa"`
}

// Land reports whether the type is neither air nor sea.
func (t *UnitType) Land() bool { return !t.Air && !t.Sea }

// MaxHitPoints returns the hit points of a fresh unit, at least 1.
func (t *UnitType) MaxHitPoints() int {
	if t.HitPoints < 1 {
		return 1
	}
	return t.HitPoints
}

// Rolls returns how many dice the type throws before support is applied.
func (t *UnitType) Rolls(defending bool) int {
	r := t.AttackRolls
	if defending {
		r = t.DefenseRolls
	}
	if r == 0 {
		return 1
	}
	return r
}

// BaseStrength returns the raw attack or defense value.
func (t *UnitType) BaseStrength(defending bool) int {
	if defending {
		return t.Defense
	}
	return t.Attack
}

// Unit is a single unit on the board. Combat state lives here; the type's
// static attributes are resolved through Kind.
type Unit struct {
	ID            UnitID      `json:"id"`
	Type          string      `json:"type"`
	Owner         PlayerID    `json:"owner"`
	Territory     TerritoryID `json:"territory,omitempty"`
	Hits          int         `json:"hits,omitempty"`
	BombingDamage int         `json:"bombing_damage,omitempty"`
	Submerged     bool        `json:"submerged,omitempty"`
	WasAmphibious bool        `json:"was_amphibious,omitempty"`
	WasInCombat   bool        `json:"was_in_combat,omitempty"`
	WasScrambled  bool        `json:"was_scrambled,omitempty"`
	TransportedBy UnitID      `json:"transported_by,omitempty"`

	kind *UnitType
}

// NewUnit creates a unit of the given type with a fresh ID.
func NewUnit(t *UnitType, owner PlayerID) *Unit {
	return &Unit{ID: NewUnitID(), Type: t.Name, Owner: owner, kind: t}
}

// Kind returns the unit's type. It is only valid once the unit has been
// bound to a State or created with NewUnit.
func (u *Unit) Kind() *UnitType { return u.kind }

// RemainingHitPoints returns how many more hits the unit can absorb.
func (u *Unit) RemainingHitPoints() int {
	left := u.kind.MaxHitPoints() - u.Hits
	if left < 0 {
		return 0
	}
	return left
}

func (u *Unit) clone() *Unit {
	c := *u
	return &c
}

func unitIDs(units []*Unit) []UnitID {
	ids := make([]UnitID, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

func idSet(ids []UnitID) map[UnitID]bool {
	m := make(map[UnitID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func removeIDs(list []UnitID, remove []UnitID) []UnitID {
	if len(remove) == 0 {
		return list
	}
	drop := idSet(remove)
	out := list[:0:0]
	for _, id := range list {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func appendUnique(list []UnitID, add ...UnitID) []UnitID {
	have := idSet(list)
	for _, id := range add {
		if !have[id] {
			list = append(list, id)
			have[id] = true
		}
	}
	return list
}

package combat

import "slices"

// Predicate tests a unit. Predicates compose with And, Or and Not.
type Predicate func(u *Unit) bool

// And returns a predicate matching units that satisfy p and every other.
func (p Predicate) And(others ...Predicate) Predicate {
	return func(u *Unit) bool {
		if !p(u) {
			return false
		}
		for _, o := range others {
			if !o(u) {
				return false
			}
		}
		return true
	}
}

// Or returns a predicate matching units that satisfy p or any other.
func (p Predicate) Or(others ...Predicate) Predicate {
	return func(u *Unit) bool {
		if p(u) {
			return true
		}
		for _, o := range others {
			if o(u) {
				return true
			}
		}
		return false
	}
}

// Not negates p.
func (p Predicate) Not() Predicate {
	return func(u *Unit) bool { return !p(u) }
}

// Filter returns the units matching p, preserving order.
func Filter(units []*Unit, p Predicate) []*Unit {
	var out []*Unit
	for _, u := range units {
		if p(u) {
			out = append(out, u)
		}
	}
	return out
}

// AnyMatch reports whether at least one unit matches.
func AnyMatch(units []*Unit, p Predicate) bool {
	return slices.ContainsFunc(units, p)
}

// AllMatch reports whether every unit matches. It is true for no units.
func AllMatch(units []*Unit, p Predicate) bool {
	for _, u := range units {
		if !p(u) {
			return false
		}
	}
	return true
}

// CountMatches returns the number of matching units.
func CountMatches(units []*Unit, p Predicate) int {
	n := 0
	for _, u := range units {
		if p(u) {
			n++
		}
	}
	return n
}

func IsAir(u *Unit) bool { return u.kind.Air }
func IsSea(u *Unit) bool { return u.kind.Sea }
func IsLand(u *Unit) bool { return u.kind.Land() }
func IsInfrastructure(u *Unit) bool { return u.kind.Infrastructure }
func IsFirstStrike(u *Unit) bool { return u.kind.FirstStrike }
func CanEvade(u *Unit) bool { return u.kind.CanEvade }
func IsDestroyer(u *Unit) bool { return u.kind.Destroyer }
func IsTransport(u *Unit) bool { return u.kind.Transport }
func IsSubmerged(u *Unit) bool { return u.Submerged }
func WasAmphibious(u *Unit) bool { return u.WasAmphibious }
func IsSuicideOnHit(u *Unit) bool { return u.kind.SuicideOnHit }
func IsStrategicBomber(u *Unit) bool { return u.kind.StrategicBomber }

// IsSub matches submarine-like units: they strike first or can evade.
func IsSub(u *Unit) bool { return u.kind.FirstStrike || u.kind.CanEvade }

// IsBeingTransported matches cargo still loaded on a transport.
func IsBeingTransported(u *Unit) bool { return u.TransportedBy != "" }

// IsNotInfrastructure matches units that count as combatants.
var IsNotInfrastructure = Predicate(IsInfrastructure).Not()

// HasMultipleHitPoints matches units that can absorb more than one hit.
func HasMultipleHitPoints(u *Unit) bool { return u.kind.MaxHitPoints() > 1 }

// IsDamaged matches units that have taken at least one hit.
func IsDamaged(u *Unit) bool { return u.Hits > 0 }

// IsSuicide matches units destroyed after firing on the given side.
func IsSuicide(defending bool) Predicate {
	return func(u *Unit) bool {
		if defending {
			return u.kind.SuicideOnDefense
		}
		return u.kind.SuicideOnAttack
	}
}

// CanFire matches units with a non-zero base strength on the given side.
func CanFire(defending bool) Predicate {
	return func(u *Unit) bool { return u.kind.BaseStrength(defending) > 0 }
}

// IsAA matches units with an anti-aircraft profile usable in the given role.
func IsAA(offensive, bombing bool) Predicate {
	return func(u *Unit) bool {
		aa := u.kind.AA
		if aa == nil {
			return false
		}
		if bombing && !aa.ForBombing || !bombing && !aa.ForCombat {
			return false
		}
		if offensive {
			return aa.OffensiveAttack > 0
		}
		return aa.Attack > 0
	}
}

// OwnedBy matches units owned by player.
func OwnedBy(player PlayerID) Predicate {
	return func(u *Unit) bool { return u.Owner == player }
}

// AlliedWith matches units whose owner is allied with player.
func AlliedWith(s *State, player PlayerID) Predicate {
	return func(u *Unit) bool { return s.Allied(u.Owner, player) }
}

// EnemyOf matches units whose owner is at war with player.
func EnemyOf(s *State, player PlayerID) Predicate {
	return func(u *Unit) bool { return s.AtWar(u.Owner, player) }
}

// OfType matches units of any of the named types.
func OfType(names ...string) Predicate {
	return func(u *Unit) bool { return slices.Contains(names, u.Type) }
}

// TransportedBy matches units loaded on one of the given transports.
func TransportedBy(transports []*Unit) Predicate {
	ids := idSet(unitIDs(transports))
	return func(u *Unit) bool { return u.TransportedBy != "" && ids[u.TransportedBy] }
}

// InList matches units whose ID is in ids.
func InList(ids []UnitID) Predicate {
	set := idSet(ids)
	return func(u *Unit) bool { return set[u.ID] }
}

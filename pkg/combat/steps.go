package combat

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// StepKind names one pending action of a battle. A battle's progress is a
// stack of steps; every step can be serialized, so a suspended battle
// resumes at exactly the step that was waiting.
type StepKind string

const (
	// normal battle round, in execution order
	StepStartRound           StepKind = "start_round"
	StepFireAA               StepKind = "fire_aa"
	StepClearWaitingToDie    StepKind = "clear_waiting_to_die"
	StepRemoveNonCombatants  StepKind = "remove_non_combatants"
	StepNavalBombard         StepKind = "naval_bombard"
	StepSuicideFire          StepKind = "suicide_fire"
	StepSubsRetreat          StepKind = "subs_retreat"
	StepCheckSuicide         StepKind = "check_suicide"
	StepUndefendedTransports StepKind = "undefended_transports"
	StepSubmergeVsAir        StepKind = "submerge_vs_air"
	StepFireSubs             StepKind = "fire_subs"
	StepFireAirOnNonSubs     StepKind = "fire_air_on_non_subs"
	StepFireNonSubs          StepKind = "fire_non_subs"
	StepEndCheck             StepKind = "end_check"
	StepPlanesRetreat        StepKind = "planes_retreat"
	StepPartialRetreat       StepKind = "partial_amphibious_retreat"
	StepAttackerRetreat      StepKind = "attacker_retreat"
	StepStalemateRetreat     StepKind = "stalemate_retreat"
	StepNextRound            StepKind = "next_round"

	// one volley: dice, then casualties, then removal
	StepRoll             StepKind = "roll"
	StepSelectCasualties StepKind = "select_casualties"
	StepApplyCasualties  StepKind = "apply_casualties"

	// strategic bombing raid
	StepRaidAA   StepKind = "raid_aa"
	StepRaidBomb StepKind = "raid_bomb"
	StepRaidEnd  StepKind = "raid_end"

	// air battle
	StepAirRound     StepKind = "air_round"
	StepAirFire      StepKind = "air_fire"
	StepAirCleanup   StepKind = "air_cleanup"
	StepAirEndCheck  StepKind = "air_end_check"
	StepAirRetreat   StepKind = "air_retreat"
	StepAirNextRound StepKind = "air_next_round"
)

// ReturnFire says whether units hit by a volley still fire back before
// they are removed.
type ReturnFire string

const (
	ReturnAll  ReturnFire = "all"
	ReturnSubs ReturnFire = "subs"
	ReturnNone ReturnFire = "none"
)

// Step is one entry on a battle's execution stack.
type Step struct {
	Kind      StepKind   `json:"kind"`
	Defending bool       `json:"defending,omitempty"`
	Return    ReturnFire `json:"return_fire,omitempty"`
	Volley    *Volley    `json:"volley,omitempty"`
	// Attempt and LastError carry rejected answers across a suspension.
	Attempt   int    `json:"attempt,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Volley is one group of units firing at one set of targets. The dice and
// the chosen casualties are stored as soon as they are known, so resuming
// never rolls the same volley twice.
type Volley struct {
	Defending  bool       `json:"defending"`
	Firing     []UnitID   `json:"firing"`
	Targets    []UnitID   `json:"targets"`
	Return     ReturnFire `json:"return_fire"`
	AA         bool       `json:"aa,omitempty"`
	AAType     string     `json:"aa_type,omitempty"`
	Air        bool       `json:"air,omitempty"`
	Annotation string     `json:"annotation"`

	Roll       *DiceRoll        `json:"roll,omitempty"`
	AARoll     *AARoll          `json:"aa_roll,omitempty"`
	Casualties *CasualtyDetails `json:"casualties,omitempty"`
}

func (v *Volley) hits() int {
	switch {
	case v.AARoll != nil:
		return v.AARoll.Hits
	case v.Roll != nil:
		return v.Roll.Hits
	}
	return 0
}

// push adds steps so that they execute in the order given.
func (b *Battle) push(steps ...Step) {
	for _, st := range slices.Backward(steps) {
		b.Stack = append(b.Stack, st)
	}
}

// Pending returns the kind of the step that runs next, or "" when the
// stack is empty.
func (b *Battle) Pending() StepKind {
	if len(b.Stack) == 0 {
		return ""
	}
	return b.Stack[len(b.Stack)-1].Kind
}

// run executes steps until the stack is empty or a step fails. A failed
// step goes back on the stack with whatever it pushed discarded, so
// resuming repeats only the step that was interrupted.
func (b *Battle) run(ctx context.Context, br *Bridge, tr *Tracker) error {
	for len(b.Stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		depth := len(b.Stack) - 1
		st := b.Stack[depth]
		b.Stack = b.Stack[:depth]
		br.Log.Debug().Str("battleId", string(b.ID)).Str("step", string(st.Kind)).
			Int("round", b.Round).Bool("defending", st.Defending).Msg("battle step")
		if err := b.exec(ctx, br, tr, &st); err != nil {
			if b.Over {
				return err
			}
			b.Stack = append(b.Stack[:min(depth, len(b.Stack))], st)
			if !errors.Is(err, ErrAwaitingDecision) {
				br.Log.Error().Err(err).Str("battleId", string(b.ID)).Str("step", string(st.Kind)).Msg("battle step failed")
			}
			return err
		}
		if b.Over {
			b.Stack = nil
		}
	}
	return nil
}

func (b *Battle) exec(ctx context.Context, br *Bridge, tr *Tracker, st *Step) error {
	switch st.Kind {
	case StepStartRound:
		b.startRound(br)
	case StepFireAA:
		b.fireAA(br, st.Defending)
	case StepClearWaitingToDie:
		return b.clearWaitingToDie(br, tr)
	case StepRemoveNonCombatants:
		b.removeNonCombatants(br)
	case StepNavalBombard:
		b.navalBombard(br)
	case StepSuicideFire:
		b.suicideFire(br, st.Defending)
	case StepSubsRetreat:
		return b.subsRetreat(ctx, br, tr, st)
	case StepCheckSuicide:
		return b.checkSuicideUnits(br, tr)
	case StepUndefendedTransports:
		return b.undefendedTransports(br, tr)
	case StepSubmergeVsAir:
		return b.submergeSubsVsOnlyAir(br, tr)
	case StepFireSubs:
		b.fireSubs(br, st.Defending, st.Return)
	case StepFireAirOnNonSubs:
		b.fireAirOnNonSubs(br, st.Defending)
	case StepFireNonSubs:
		b.fireNonSubs(br, st.Defending)
	case StepEndCheck:
		return b.endCheck(br, tr)
	case StepPlanesRetreat:
		return b.planesRetreat(ctx, br, tr, st)
	case StepPartialRetreat:
		return b.partialAmphibiousRetreat(ctx, br, tr, st)
	case StepAttackerRetreat:
		return b.attackerRetreat(ctx, br, tr, st)
	case StepStalemateRetreat:
		return b.stalemateRetreat(ctx, br, tr, st)
	case StepNextRound:
		if !b.Over {
			b.Round++
			b.push(Step{Kind: StepStartRound})
		}
	case StepRoll:
		return b.roll(br, st)
	case StepSelectCasualties:
		return b.selectCasualties(ctx, br, st)
	case StepApplyCasualties:
		return b.applyCasualties(br, tr, st)
	case StepRaidAA:
		b.raidAA(br)
	case StepRaidBomb:
		return b.raidBomb(br, tr)
	case StepRaidEnd:
		return b.raidEnd(br, tr)
	case StepAirRound:
		b.airRound(br)
	case StepAirFire:
		b.airFire(br, st.Defending)
	case StepAirCleanup:
		return b.airCleanup(br, tr)
	case StepAirEndCheck:
		return b.airEndCheck(br, tr)
	case StepAirRetreat:
		return b.airRetreat(ctx, br, tr, st)
	case StepAirNextRound:
		if !b.Over {
			b.Round++
			b.push(Step{Kind: StepAirRound})
		}
	default:
		return invariant("battle step", "unknown step kind %q in %s", st.Kind, b.ID)
	}
	return nil
}

// liveFiring resolves the firing units of a volley that are still on the
// board. Bombarding ships sit outside the battle territory.
func (b *Battle) liveFiring(s *State, v *Volley) []*Unit {
	return s.Resolve(v.Firing)
}

// liveTargets resolves the targets of a volley that are still in the enemy
// roster. Units already hit this exchange cannot be chosen again.
func (b *Battle) liveTargets(s *State, v *Volley) []*Unit {
	active := idSet(*b.roster(!v.Defending))
	return Filter(s.ResolveIn(b.Territory, v.Targets), func(u *Unit) bool { return active[u.ID] })
}

func (b *Battle) powerContext(br *Bridge, defending bool) PowerContext {
	friendly := b.unitsWithWaiting(br.State, defending)
	if !defending {
		friendly = append(friendly, br.State.Resolve(b.Bombarding)...)
	}
	return PowerContext{
		Rules:     br.Rules,
		Territory: br.State.Territory(b.Territory),
		Defending: defending,
		Friendly:  friendly,
		Enemy:     b.unitsWithWaiting(br.State, !defending),
	}
}

func (b *Battle) roll(br *Bridge, st *Step) error {
	v := st.Volley
	if v == nil {
		return invariant("roll", "volley missing in %s", b.ID)
	}
	firing := b.liveFiring(br.State, v)
	targets := b.liveTargets(br.State, v)
	if len(firing) == 0 || len(targets) == 0 {
		return nil
	}
	player := b.player(v.Defending)
	if v.AA {
		r, err := RollAA(br.State, br.Rules, firing, targets, !v.Defending, br.Random, v.Annotation)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Annotation, err)
		}
		v.AARoll = &r
		br.history().Detail(fmt.Sprintf("%s: %d hits", v.Annotation, r.Hits), r)
	} else {
		pc := b.powerContext(br, v.Defending)
		pc.AirBattle = v.Air
		r, err := RollDice(firing, pc, br.Random, player, v.Annotation)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Annotation, err)
		}
		v.Roll = &r
		br.history().Detail(fmt.Sprintf("%s: %d hits", v.Annotation, r.Hits), r)
	}
	if v.hits() == 0 {
		return nil
	}
	b.push(Step{Kind: StepSelectCasualties, Volley: v})
	return nil
}

func (b *Battle) selectCasualties(ctx context.Context, br *Bridge, st *Step) error {
	v := st.Volley
	targets := b.liveTargets(br.State, v)
	hits := v.hits()
	if len(targets) == 0 || hits == 0 {
		return nil
	}
	defending := !v.Defending
	cc := CasualtyContext{
		BattleID:   b.ID,
		Player:     b.player(defending),
		Territory:  b.Territory,
		Defending:  defending,
		Amphibious: b.Amphibious,
		Friendly:   b.unitsWithWaiting(br.State, defending),
		Enemy:      b.unitsWithWaiting(br.State, !defending),
		SingleHit:  v.AA,
		AA:         v.AA,
		Message:    fmt.Sprintf("%s: %d hits", v.Annotation, hits),
		Attempt:    st.Attempt,
		LastError:  st.LastError,
	}
	var (
		d   CasualtyDetails
		err error
	)
	if v.AA {
		d, err = AACasualties(ctx, br, targets, v.AARoll, &cc)
	} else {
		d, err = SelectCasualties(ctx, br, targets, hits, &cc)
	}
	st.Attempt, st.LastError = cc.Attempt, cc.LastError
	if err != nil {
		return err
	}
	v.Casualties = &d
	b.push(Step{Kind: StepApplyCasualties, Volley: v})
	return nil
}

func (b *Battle) applyCasualties(br *Bridge, tr *Tracker, st *Step) error {
	v := st.Volley
	if v.Casualties == nil {
		return invariant("apply casualties", "no casualties chosen for %q in %s", v.Annotation, b.ID)
	}
	killed := br.State.Resolve(v.Casualties.Killed)
	isKilled := idSet(v.Casualties.Killed)
	damage := make(map[*Unit]int)
	for _, u := range br.State.Resolve(v.Casualties.Damaged) {
		if !isKilled[u.ID] {
			damage[u]++
		}
	}
	if len(damage) > 0 {
		hits := make(map[*Unit]int, len(damage))
		for u, n := range damage {
			hits[u] = u.Hits + n
		}
		if err := br.Apply(UnitsHit(hits)); err != nil {
			return err
		}
	}
	if len(killed) > 0 {
		br.history().Detail(fmt.Sprintf("%s: %s killed", v.Annotation, describeUnits(killed)), v.Casualties.Killed)
	}
	if err := b.removeCasualties(br, tr, killed, v.Return, !v.Defending); err != nil {
		return err
	}
	return b.removeSuicideOnHit(br, tr, b.liveFiring(br.State, v), v.hits())
}

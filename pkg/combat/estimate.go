package combat

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Odds summarizes repeated simulations of one attack.
type Odds struct {
	Runs         int `json:"runs"`
	AttackerWins int `json:"attacker_wins"`
	DefenderWins int `json:"defender_wins"`
	Draws        int `json:"draws"`

	AttackerWinRate    float64 `json:"attacker_win_rate"`
	DefenderWinRate    float64 `json:"defender_win_rate"`
	DrawRate           float64 `json:"draw_rate"`
	AvgAttackerLostTUV float64 `json:"avg_attacker_lost_tuv"`
	AvgDefenderLostTUV float64 `json:"avg_defender_lost_tuv"`
	// TUVSwing is the average defender loss minus attacker loss; positive
	// favours the attacker.
	TUVSwing   float64 `json:"tuv_swing"`
	AvgRounds  float64 `json:"avg_rounds"`
	Unresolved int     `json:"unresolved,omitempty"`
}

// EstimateOptions tunes Estimate.
type EstimateOptions struct {
	Runs    int
	Seed    int64
	Workers int
	// Decisions answers casualty and retreat questions in every run. The
	// default accepts default casualties and never retreats. It must be
	// safe for concurrent use.
	Decisions DecisionSource
}

type runResult struct {
	winner      Winner
	attackerTUV int
	defenderTUV int
	rounds      int
	err         error
}

// Estimate simulates attacks many times, each run on its own deep copy of
// the state with its own tracker and a random source seeded from
// opts.Seed. Attacking units not yet in their target territory are moved
// there in the copy. Win rates describe the battle of the last attack; lost
// value adds up every battle. The live state is only read.
func Estimate(ctx context.Context, s *State, rules *Rules, attacks []Attack, opts EstimateOptions) (Odds, error) {
	if len(attacks) == 0 {
		return Odds{}, fmt.Errorf("estimate: no attacks")
	}
	runs := max(opts.Runs, 1)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	decisions := opts.Decisions
	if decisions == nil {
		decisions = DefaultDecider{}
	}

	results := make([]runResult, runs)
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i := range runs {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = simulate(ctx, s.Clone(), rules, attacks, opts.Seed+int64(idx), decisions)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return Odds{}, err
	}

	odds := Odds{Runs: runs}
	var attTUV, defTUV, rounds int
	for _, r := range results {
		if r.err != nil {
			if errors.Is(r.err, ErrAwaitingDecision) {
				odds.Unresolved++
				continue
			}
			return Odds{}, r.err
		}
		switch r.winner {
		case WinnerAttacker:
			odds.AttackerWins++
		case WinnerDefender:
			odds.DefenderWins++
		default:
			odds.Draws++
		}
		attTUV += r.attackerTUV
		defTUV += r.defenderTUV
		rounds += r.rounds
	}
	if done := float64(runs - odds.Unresolved); done > 0 {
		odds.AttackerWinRate = float64(odds.AttackerWins) / done
		odds.DefenderWinRate = float64(odds.DefenderWins) / done
		odds.DrawRate = float64(odds.Draws) / done
		odds.AvgAttackerLostTUV = float64(attTUV) / done
		odds.AvgDefenderLostTUV = float64(defTUV) / done
		odds.TUVSwing = odds.AvgDefenderLostTUV - odds.AvgAttackerLostTUV
		odds.AvgRounds = float64(rounds) / done
	}
	return odds, nil
}

// simulate fights one copy of the attacks to the end.
func simulate(ctx context.Context, s *State, rules *Rules, attacks []Attack, seed int64, decisions DecisionSource) runResult {
	tr := NewTracker()
	var last *Battle
	for _, attack := range attacks {
		a := attack
		a.Units = s.Resolve(unitIDs(attack.Units))
		a.Bombarding = s.Resolve(unitIDs(attack.Bombarding))
		for _, u := range a.Units {
			if u.Territory == a.To {
				continue
			}
			if err := s.Apply(MoveUnits(u.Territory, a.To, []*Unit{u})); err != nil {
				return runResult{err: fmt.Errorf("estimate: %w", err)}
			}
		}
		b, err := tr.RegisterAttack(s, rules, a)
		if err != nil {
			return runResult{err: err}
		}
		last = b
	}
	br := NewBridge(s, rules, NewSeededRandom(seed))
	br.History = nil
	br.Decisions = decisions
	if err := tr.FightAll(ctx, br); err != nil {
		return runResult{err: err}
	}
	// a battle cancelled because its attackers died earlier counts as lost
	r := runResult{winner: WinnerDefender}
	for _, rec := range tr.Records {
		r.attackerTUV += rec.AttackerLostTUV
		r.defenderTUV += rec.DefenderLostTUV
		if rec.BattleID == last.ID {
			r.winner = rec.Winner
			r.rounds = rec.Rounds
		}
	}
	return r
}

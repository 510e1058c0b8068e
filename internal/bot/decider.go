// Package bot answers battle decisions for nations that no human commands.
package bot

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/pkg/combat"
)

// Difficulty levels a bot seat can be created with.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyRandom = "random"
)

// Decider is a combat.DecisionSource for a bot. It takes the default
// casualties and, when RetreatBelow is set, simulates the rest of the
// battle and retreats once its win rate drops under that threshold.
type Decider struct {
	State *combat.State
	Rules *combat.Rules

	Difficulty   string
	RetreatBelow float64
	Runs         int
	// Seed for estimates; 0 draws a fresh one for every question.
	Seed int64
}

// ForDifficulty returns the decider for a bot difficulty level on a board.
func ForDifficulty(difficulty string, s *combat.State, rules *combat.Rules) *Decider {
	d := &Decider{State: s, Rules: rules, Difficulty: difficulty}
	switch difficulty {
	case DifficultyMedium:
		d.RetreatBelow, d.Runs = 0.3, 100
	case DifficultyHard:
		d.RetreatBelow, d.Runs = 0.5, 400
	case DifficultyRandom:
	default:
		d.Difficulty = DifficultyEasy
	}
	return d
}

// SelectCasualties returns the default choice. The random bot shuffles the
// candidates and only keeps its own pick when it is valid.
func (d *Decider) SelectCasualties(_ context.Context, q combat.CasualtyQuery) (combat.CasualtyDetails, error) {
	if d.Difficulty != DifficultyRandom || q.Attempt > 0 || d.State == nil {
		return q.Default, nil
	}
	units := d.State.Resolve(q.Candidates)
	botShuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })
	single := len(q.Default.Damaged) == 0
	pick := combat.DefaultCasualties(units, q.Hits, single)
	if combat.ValidateCasualties(d.State, pick, units, q.Hits, single, false) != nil {
		return q.Default, nil
	}
	return pick, nil
}

// Retreat decides whether the units in q leave the battle.
func (d *Decider) Retreat(ctx context.Context, q combat.RetreatQuery) (combat.TerritoryID, error) {
	if len(q.Options) == 0 || q.Submerge {
		return "", nil
	}
	if d.Difficulty == DifficultyRandom {
		i := botIntn(len(q.Options) + 1)
		if i == len(q.Options) {
			return "", nil
		}
		return q.Options[i], nil
	}
	if d.RetreatBelow <= 0 || d.State == nil {
		return "", nil
	}

	odds, err := d.Odds(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("battleId", string(q.BattleID)).Msg("Bot could not estimate battle, staying")
		return "", nil
	}
	if odds.AttackerWinRate >= d.RetreatBelow {
		return "", nil
	}
	log.Info().Str("battleId", string(q.BattleID)).Str("player", string(q.Player)).
		Float64("winRate", odds.AttackerWinRate).Str("to", string(q.Options[0])).
		Msg("Bot retreats")
	return q.Options[0], nil
}

// Odds simulates the units of q fighting on against everything hostile in
// their territory.
func (d *Decider) Odds(ctx context.Context, q combat.RetreatQuery) (combat.Odds, error) {
	units := d.State.ResolveIn(q.Territory, q.Units)
	attack := combat.Attack{Attacker: q.Player, From: q.Territory, To: q.Territory, Units: units}
	seed := d.Seed
	if seed == 0 {
		seed = botInt63()
	}
	return combat.Estimate(ctx, d.State, d.Rules, []combat.Attack{attack}, combat.EstimateOptions{
		Runs: max(d.Runs, 1),
		Seed: seed,
	})
}

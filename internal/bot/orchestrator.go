package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/pkg/combat"
)

// Decision kinds as the server names them.
const (
	KindCasualties = "casualties"
	KindRetreat    = "retreat"
)

// Orchestrator plays one seat of a remote game: it joins as a nation,
// watches the game socket and answers every question put to it until the
// game ends.
type Orchestrator struct {
	client      *Client
	gameID      string
	nation      string
	decider     combat.DecisionSource
	fightOnJoin bool
}

// NewOrchestrator creates an Orchestrator. The decider has no board, so it
// answers from the question alone.
func NewOrchestrator(client *Client, gameID, nation, difficulty string, fightOnJoin bool) *Orchestrator {
	return &Orchestrator{
		client:      client,
		gameID:      gameID,
		nation:      nation,
		decider:     ForDifficulty(difficulty, nil, nil),
		fightOnJoin: fightOnJoin,
	}
}

// Run logs in, takes the seat and answers questions until the game ends,
// the socket closes or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.client.Login(ctx); err != nil {
		return fmt.Errorf("login %s: %w", o.client.Name(), err)
	}
	if err := o.client.JoinGame(ctx, o.gameID, o.nation); err != nil {
		return fmt.Errorf("join %s: %w", o.gameID, err)
	}
	log.Info().Str("bot", o.client.Name()).Str("gameId", o.gameID).Str("nation", o.nation).Msg("Seat taken")

	if err := o.client.ConnectWS(ctx); err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer o.client.CloseWS()
	if err := o.client.SubscribeGame(o.gameID); err != nil {
		return fmt.Errorf("ws subscribe: %w", err)
	}

	if o.fightOnJoin {
		if err := o.client.FightAll(ctx, o.gameID); err != nil {
			log.Warn().Err(err).Str("gameId", o.gameID).Msg("Fight request failed, waiting for events")
		}
	}
	return o.playLoop(ctx)
}

func (o *Orchestrator) playLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping bot")
			return ctx.Err()
		case event, ok := <-o.client.Events():
			if !ok {
				return fmt.Errorf("ws connection closed")
			}
			switch event.Type {
			case "game_ended":
				log.Info().Str("gameId", o.gameID).Msg("Game ended")
				return nil
			case "forbidden":
				return fmt.Errorf("not allowed to watch game %s", o.gameID)
			case "decision_requested":
				var d Decision
				if err := json.Unmarshal(event.Data, &d); err != nil {
					log.Warn().Err(err).Msg("Undecodable decision event")
					continue
				}
				if d.UserID != o.client.UserID() {
					continue
				}
				if err := o.answer(ctx, d); err != nil {
					log.Warn().Err(err).Str("battleId", d.BattleID).Str("kind", d.Kind).Msg("Answer rejected")
				}
			default:
				log.Debug().Str("type", event.Type).Msg("Ignoring event")
			}
		}
	}
}

// answer replies to one question with the decider's choice.
func (o *Orchestrator) answer(ctx context.Context, d Decision) error {
	switch d.Kind {
	case KindCasualties:
		var q combat.CasualtyQuery
		if err := json.Unmarshal(d.Query, &q); err != nil {
			return fmt.Errorf("decode casualty query: %w", err)
		}
		sel, err := o.decider.SelectCasualties(ctx, q)
		if err != nil {
			return err
		}
		log.Info().Str("battleId", d.BattleID).Int("killed", len(sel.Killed)).Int("damaged", len(sel.Damaged)).
			Msg("Submitting casualties")
		return o.client.SubmitCasualties(ctx, d.GameID, d.BattleID, sel)
	case KindRetreat:
		var q combat.RetreatQuery
		if err := json.Unmarshal(d.Query, &q); err != nil {
			return fmt.Errorf("decode retreat query: %w", err)
		}
		to, err := o.decider.Retreat(ctx, q)
		if err != nil {
			return err
		}
		log.Info().Str("battleId", d.BattleID).Str("to", string(to)).Msg("Submitting retreat")
		return o.client.SubmitRetreat(ctx, d.GameID, d.BattleID, to)
	}
	return fmt.Errorf("unknown decision kind %q", d.Kind)
}

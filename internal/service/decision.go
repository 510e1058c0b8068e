package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/freeeve/warcore/internal/bot"
	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/internal/repository"
	"github.com/freeeve/warcore/pkg/combat"
)

// Answer is a stored reply to a decision request. Exactly one of
// Casualties or Retreat applies, depending on Kind; an empty Retreat means
// the units stay.
type Answer struct {
	Kind       string                  `json:"kind"`
	Casualties *combat.CasualtyDetails `json:"casualties,omitempty"`
	Retreat    combat.TerritoryID      `json:"retreat,omitempty"`
}

// DefaultAnswer is what the server answers for a player who let the
// deadline pass: the offered casualties, or no retreat.
func DefaultAnswer(req model.DecisionRequest) (Answer, error) {
	switch req.Kind {
	case model.DecisionCasualties:
		var q combat.CasualtyQuery
		if err := json.Unmarshal(req.Query, &q); err != nil {
			return Answer{}, fmt.Errorf("decode casualty query: %w", err)
		}
		return Answer{Kind: model.DecisionCasualties, Casualties: &q.Default}, nil
	case model.DecisionRetreat:
		return Answer{Kind: model.DecisionRetreat}, nil
	}
	return Answer{}, fmt.Errorf("unknown decision kind %q", req.Kind)
}

// RemoteDecider answers engine questions for one game. Nations held by bots
// or by nobody are answered at once; nations held by people are answered
// from stored answers. Without an answer the question is kept as Pending
// and ErrAwaitingDecision suspends the battle.
type RemoteDecider struct {
	game  *model.Game
	cache repository.BattleCache
	bots  map[combat.PlayerID]combat.DecisionSource

	state *combat.State
	rules *combat.Rules

	// Pending is the question the last suspension stopped at.
	Pending *model.DecisionRequest
}

// NewRemoteDecider creates the decision source for a game session.
func NewRemoteDecider(game *model.Game, cache repository.BattleCache, s *combat.State, rules *combat.Rules) *RemoteDecider {
	return &RemoteDecider{
		game:  game,
		cache: cache,
		bots:  make(map[combat.PlayerID]combat.DecisionSource),
		state: s,
		rules: rules,
	}
}

// source returns the bot deciding for a nation, or nil when a person does.
func (d *RemoteDecider) source(nation combat.PlayerID) combat.DecisionSource {
	if src, ok := d.bots[nation]; ok {
		return src
	}
	p := d.game.PlayerFor(string(nation))
	if p != nil && !p.IsBot {
		return nil
	}
	difficulty := bot.DifficultyEasy
	if p != nil && p.BotDifficulty != "" {
		difficulty = p.BotDifficulty
	}
	src := bot.ForDifficulty(difficulty, d.state, d.rules)
	d.bots[nation] = src
	return src
}

// answer takes a stored answer of the wanted kind. A stale answer of
// another kind is dropped.
func (d *RemoteDecider) answer(ctx context.Context, battleID combat.BattleID, kind string) (*Answer, error) {
	raw, err := d.cache.TakeAnswer(ctx, d.game.ID, string(battleID))
	if err != nil || raw == nil {
		return nil, err
	}
	var ans Answer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return nil, fmt.Errorf("decode answer for battle %s: %w", battleID, err)
	}
	if ans.Kind != kind {
		return nil, nil
	}
	return &ans, nil
}

func (d *RemoteDecider) suspend(battleID combat.BattleID, kind string, nation combat.PlayerID, query any) error {
	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encode %s query: %w", kind, err)
	}
	req := &model.DecisionRequest{
		GameID:   d.game.ID,
		BattleID: string(battleID),
		Kind:     kind,
		Nation:   string(nation),
		Query:    data,
	}
	if p := d.game.PlayerFor(string(nation)); p != nil {
		req.UserID = p.UserID
	}
	d.Pending = req
	return combat.ErrAwaitingDecision
}

func (d *RemoteDecider) SelectCasualties(ctx context.Context, q combat.CasualtyQuery) (combat.CasualtyDetails, error) {
	if src := d.source(q.Player); src != nil {
		return src.SelectCasualties(ctx, q)
	}
	ans, err := d.answer(ctx, q.BattleID, model.DecisionCasualties)
	if err != nil {
		return combat.CasualtyDetails{}, err
	}
	if ans != nil && ans.Casualties != nil {
		return *ans.Casualties, nil
	}
	return combat.CasualtyDetails{}, d.suspend(q.BattleID, model.DecisionCasualties, q.Player, q)
}

func (d *RemoteDecider) Retreat(ctx context.Context, q combat.RetreatQuery) (combat.TerritoryID, error) {
	if src := d.source(q.Player); src != nil {
		return src.Retreat(ctx, q)
	}
	ans, err := d.answer(ctx, q.BattleID, model.DecisionRetreat)
	if err != nil {
		return "", err
	}
	if ans != nil {
		return ans.Retreat, nil
	}
	return "", d.suspend(q.BattleID, model.DecisionRetreat, q.Player, q)
}

package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	rediscache "github.com/freeeve/warcore/internal/repository/redis"
)

// DecisionTimer listens for Redis keyspace notifications on expired decision
// deadlines and answers the overdue question with its default. A polling
// fallback catches expirations when keyspace notifications are unavailable.
type DecisionTimer struct {
	rdb       *redis.Client
	battleSvc *BattleService
	interval  time.Duration
}

// NewDecisionTimer creates a DecisionTimer.
func NewDecisionTimer(rdb *redis.Client, battleSvc *BattleService) *DecisionTimer {
	return &DecisionTimer{rdb: rdb, battleSvc: battleSvc, interval: 10 * time.Second}
}

// Start begins listening for expired key events and runs the polling fallback.
// It blocks until ctx is done.
func (t *DecisionTimer) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollOverdue(ctx)
}

func (t *DecisionTimer) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Decision timer started, listening for expired deadlines")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *DecisionTimer) pollOverdue(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Decision deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Decision deadline poller stopped")
			return
		case <-ticker.C:
			n, err := t.battleSvc.DecideOverdue(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to check overdue decisions")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Poller answered overdue decisions")
			}
		}
	}
}

// handleExpiry acts only on decision deadline keys.
func (t *DecisionTimer) handleExpiry(ctx context.Context, key string) {
	gameID, battleID, ok := rediscache.ParseDeadlineKey(key)
	if !ok {
		return
	}
	log.Info().Str("gameId", gameID).Str("battleId", battleID).Msg("Decision deadline expired")
	if _, err := t.battleSvc.DecideByDefault(ctx, gameID, battleID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Str("battleId", battleID).
			Msg("Default decision failed after deadline expiry")
	}
}

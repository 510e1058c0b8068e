package combat

import (
	"errors"
	"fmt"
)

var (
	// ErrAwaitingDecision is returned by a DecisionSource that has no answer
	// yet. The battle suspends at the current step and can be resumed later.
	ErrAwaitingDecision = errors.New("awaiting player decision")

	// ErrBattleBlocked is returned when a battle still depends on another
	// pending battle.
	ErrBattleBlocked = errors.New("battle is blocked by a pending battle")

	// ErrBattlesPending is returned when a phase ends with battles unfought.
	ErrBattlesPending = errors.New("battles still pending")

	ErrBattleNotFound  = errors.New("battle not found")
	ErrBattleOver      = errors.New("battle is already over")
	ErrRandomExhausted = errors.New("scripted random source exhausted")
)

// InvariantError reports internal state that must never happen. Callers
// should stop processing the game rather than continue with corrupted state.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

func invariant(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// SelectionError describes why a player's casualty or retreat choice was
// rejected. The message is shown to the deciding player.
type SelectionError struct {
	Player PlayerID
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection by %s: %s", e.Player, e.Reason)
}

// ProtocolError is returned when a decision source keeps answering with
// invalid selections after all retries are used. It ends processing of the
// battle, not the whole engine.
type ProtocolError struct {
	BattleID string
	Player   PlayerID
	Attempts int
	Last     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("battle %s: %s gave %d invalid answers: %v", e.BattleID, e.Player, e.Attempts, e.Last)
}

func (e *ProtocolError) Unwrap() error { return e.Last }

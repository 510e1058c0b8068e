package combat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Mutator applies changes to the authoritative game state. *State
// implements it; a game server may wrap it to record changes for undo.
type Mutator interface {
	Apply(c Change) error
}

// HistorySink receives the narrative battle log and sound cues. The engine
// only writes to it.
type HistorySink interface {
	Event(text string)
	Detail(text string, data any)
	Sound(cue string, player PlayerID)
}

// HistoryEntry is one line recorded by MemoryHistory.
type HistoryEntry struct {
	Kind   string   `json:"kind"`
	Text   string   `json:"text"`
	Player PlayerID `json:"player,omitempty"`
	Data   any      `json:"data,omitempty"`
}

// MemoryHistory keeps history in memory. It is safe for concurrent use.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *MemoryHistory) add(e HistoryEntry) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
}

func (h *MemoryHistory) Event(text string) { h.add(HistoryEntry{Kind: "event", Text: text}) }

func (h *MemoryHistory) Detail(text string, data any) {
	h.add(HistoryEntry{Kind: "detail", Text: text, Data: data})
}

func (h *MemoryHistory) Sound(cue string, player PlayerID) {
	h.add(HistoryEntry{Kind: "sound", Text: cue, Player: player})
}

// Entries returns a copy of everything recorded so far.
func (h *MemoryHistory) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries...)
}

// Drain returns and forgets the recorded entries.
func (h *MemoryHistory) Drain() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.entries
	h.entries = nil
	return out
}

type nopHistory struct{}

func (nopHistory) Event(string) {}
func (nopHistory) Detail(string, any) {}
func (nopHistory) Sound(string, PlayerID) {}

// Sound cues emitted by the engine.
const (
	SoundBattleAA          = "battle_aa"
	SoundBattleLand        = "battle_land"
	SoundBattleSea         = "battle_sea"
	SoundBattleAir         = "battle_air"
	SoundBombing           = "bombing_strategic"
	SoundRetreat           = "battle_retreat"
	SoundCapitalCaptured   = "capital_captured"
	SoundTerritoryCaptured = "territory_captured"
	SoundBattleStalemate   = "battle_stalemate"
	SoundBattleWon         = "battle_won"
	SoundBattleLost        = "battle_lost"
)

// CasualtyDetails is a casualty choice. Damaged lists one entry per hit
// point lost without dying, so a unit may appear more than once; a killed
// unit absorbs its last remaining hit point.
type CasualtyDetails struct {
	Killed         []UnitID `json:"killed"`
	Damaged        []UnitID `json:"damaged"`
	AutoCalculated bool     `json:"auto_calculated,omitempty"`
}

// Size returns the number of hits the selection accounts for.
func (d CasualtyDetails) Size() int { return len(d.Killed) + len(d.Damaged) }

// CasualtyQuery asks a player which of their units take the hits.
type CasualtyQuery struct {
	BattleID   BattleID        `json:"battle_id"`
	Player     PlayerID        `json:"player"`
	Territory  TerritoryID     `json:"territory"`
	Hits       int             `json:"hits"`
	Candidates []UnitID        `json:"candidates"`
	Default    CasualtyDetails `json:"default"`
	Defending  bool            `json:"defending"`
	AA         bool            `json:"aa,omitempty"`
	Message    string          `json:"message"`
	// Attempt counts earlier rejected answers; LastError explains the last one.
	Attempt   int    `json:"attempt,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// RetreatQuery asks a player whether and where a group of units retreats.
// Submerge offers the battle territory itself to submerging units.
type RetreatQuery struct {
	BattleID  BattleID      `json:"battle_id"`
	Player    PlayerID      `json:"player"`
	Territory TerritoryID   `json:"territory"`
	Units     []UnitID      `json:"units"`
	Options   []TerritoryID `json:"options"`
	Submerge  bool          `json:"submerge,omitempty"`
	Planes    bool          `json:"planes,omitempty"`
	Partial   bool          `json:"partial,omitempty"`
	Message   string        `json:"message"`
	Attempt   int           `json:"attempt,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// DecisionSource answers casualty and retreat questions for players. An
// implementation without an answer yet returns ErrAwaitingDecision; the
// battle suspends and asks the same question again when resumed. Retreat
// returns "" to stay and fight.
type DecisionSource interface {
	SelectCasualties(ctx context.Context, q CasualtyQuery) (CasualtyDetails, error)
	Retreat(ctx context.Context, q RetreatQuery) (TerritoryID, error)
}

// DefaultDecider accepts every default and never retreats.
type DefaultDecider struct{}

func (DefaultDecider) SelectCasualties(_ context.Context, q CasualtyQuery) (CasualtyDetails, error) {
	return q.Default, nil
}

func (DefaultDecider) Retreat(context.Context, RetreatQuery) (TerritoryID, error) { return "", nil }

// ScriptedDecider replays queued answers. When a queue is empty it returns
// the default selection and no retreat, or ErrAwaitingDecision when Suspend
// is set.
type ScriptedDecider struct {
	Casualties []CasualtyDetails
	Retreats   []TerritoryID
	Suspend    bool

	CasualtyQueries []CasualtyQuery
	RetreatQueries  []RetreatQuery
}

func (d *ScriptedDecider) SelectCasualties(_ context.Context, q CasualtyQuery) (CasualtyDetails, error) {
	d.CasualtyQueries = append(d.CasualtyQueries, q)
	if len(d.Casualties) == 0 {
		if d.Suspend {
			return CasualtyDetails{}, ErrAwaitingDecision
		}
		return q.Default, nil
	}
	ans := d.Casualties[0]
	d.Casualties = d.Casualties[1:]
	return ans, nil
}

func (d *ScriptedDecider) Retreat(_ context.Context, q RetreatQuery) (TerritoryID, error) {
	d.RetreatQueries = append(d.RetreatQueries, q)
	if len(d.Retreats) == 0 {
		if d.Suspend {
			return "", ErrAwaitingDecision
		}
		return "", nil
	}
	ans := d.Retreats[0]
	d.Retreats = d.Retreats[1:]
	return ans, nil
}

// Bridge bundles the collaborators a battle needs while it runs.
type Bridge struct {
	State     *State
	Mutator   Mutator
	Random    RandomSource
	History   HistorySink
	Decisions DecisionSource
	Rules     *Rules
	Cache     *OrderCache
	Log       zerolog.Logger
}

// NewBridge returns a bridge over the state that applies changes to it
// directly, records history in memory and accepts every default.
func NewBridge(s *State, rules *Rules, rnd RandomSource) *Bridge {
	return &Bridge{
		State:     s,
		Mutator:   s,
		Random:    rnd,
		History:   &MemoryHistory{},
		Decisions: DefaultDecider{},
		Rules:     rules,
		Cache:     NewOrderCache(),
		Log:       zerolog.Nop(),
	}
}

func (b *Bridge) history() HistorySink {
	if b.History == nil {
		return nopHistory{}
	}
	return b.History
}

func (b *Bridge) decisions() DecisionSource {
	if b.Decisions == nil {
		return DefaultDecider{}
	}
	return b.Decisions
}

// Apply hands a change to the mutator, skipping empty changes.
func (b *Bridge) Apply(c Change) error {
	if c.Empty() {
		return nil
	}
	m := b.Mutator
	if m == nil {
		m = b.State
	}
	if err := m.Apply(c); err != nil {
		return fmt.Errorf("apply %s change: %w", c.Kind, err)
	}
	return nil
}

func (b *Bridge) event(format string, args ...any) {
	b.history().Event(fmt.Sprintf(format, args...))
}

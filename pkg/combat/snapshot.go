package combat

import (
	"encoding/json"
	"fmt"
)

// Snapshot is everything needed to resume combat in a game: the board, the
// pending battles with their execution stacks and the rules in force.
type Snapshot struct {
	State   *State         `json:"state"`
	Tracker *Tracker       `json:"tracker"`
	Rules   map[string]any `json:"rules,omitempty"`
}

// Snapshot serializes the tracker, including every battle's pending steps.
func (tr *Tracker) Snapshot() ([]byte, error) {
	data, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("snapshot tracker: %w", err)
	}
	return data, nil
}

// RestoreTracker rebuilds a tracker from Snapshot output.
func RestoreTracker(data []byte) (*Tracker, error) {
	tr := NewTracker()
	if err := json.Unmarshal(data, tr); err != nil {
		return nil, fmt.Errorf("restore tracker: %w", err)
	}
	tr.init()
	if err := tr.CheckAcyclic(); err != nil {
		return nil, fmt.Errorf("restore tracker: %w", err)
	}
	return tr, nil
}

func (tr *Tracker) init() {
	if tr.Battles == nil {
		tr.Battles = make(map[BattleID]*Battle)
	}
	if tr.Dependencies == nil {
		tr.Dependencies = make(map[BattleID][]BattleID)
	}
	if tr.BombingLosses == nil {
		tr.BombingLosses = make(map[TerritoryID]int)
	}
	for id, b := range tr.Battles {
		if b == nil {
			delete(tr.Battles, id)
			continue
		}
		if b.From == nil {
			b.From = make(map[TerritoryID][]UnitID)
		}
	}
}

// Clone returns an independent deep copy of the tracker.
func (tr *Tracker) Clone() (*Tracker, error) {
	data, err := tr.Snapshot()
	if err != nil {
		return nil, err
	}
	return RestoreTracker(data)
}

// MarshalGame serializes a complete combat snapshot.
func MarshalGame(s *State, tr *Tracker, rules *Rules) ([]byte, error) {
	data, err := json.Marshal(Snapshot{State: s, Tracker: tr, Rules: rules.Props()})
	if err != nil {
		return nil, fmt.Errorf("marshal game: %w", err)
	}
	return data, nil
}

// UnmarshalGame restores MarshalGame output. Unit types are rebound and
// every battle is reconciled against the restored board, so references to
// units that are gone are dropped before anything resumes.
func UnmarshalGame(data []byte) (*State, *Tracker, *Rules, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, nil, fmt.Errorf("unmarshal game: %w", err)
	}
	if snap.State == nil {
		return nil, nil, nil, fmt.Errorf("unmarshal game: no state")
	}
	s := snap.State
	s.init()
	if err := s.Bind(); err != nil {
		return nil, nil, nil, fmt.Errorf("unmarshal game: %w", err)
	}
	tr := snap.Tracker
	if tr == nil {
		tr = NewTracker()
	}
	tr.init()
	if err := tr.CheckAcyclic(); err != nil {
		return nil, nil, nil, fmt.Errorf("unmarshal game: %w", err)
	}
	for _, b := range tr.Battles {
		b.Reconcile(s)
	}
	return s, tr, NewRules(snap.Rules), nil
}

func (s *State) init() {
	if s.Types == nil {
		s.Types = make(map[string]*UnitType)
	}
	if s.Players == nil {
		s.Players = make(map[PlayerID]*Player)
	}
	if s.Territories == nil {
		s.Territories = make(map[TerritoryID]*Territory)
	}
	if s.Units == nil {
		s.Units = make(map[UnitID]*Unit)
	}
}

package combat

import "fmt"

// Record summarizes one finished battle for history and statistics.
type Record struct {
	BattleID        BattleID    `json:"battle_id"`
	Kind            BattleKind  `json:"kind"`
	Territory       TerritoryID `json:"territory"`
	Attacker        PlayerID    `json:"attacker"`
	Defender        PlayerID    `json:"defender"`
	Winner          Winner      `json:"winner"`
	Result          Result      `json:"result"`
	Rounds          int         `json:"rounds"`
	AttackerLostTUV int         `json:"attacker_lost_tuv"`
	DefenderLostTUV int         `json:"defender_lost_tuv"`
	BombingTotal    int         `json:"bombing_total,omitempty"`
	Killed          []UnitID    `json:"killed,omitempty"`
	// Owner is who holds the territory once the battle is over.
	Owner PlayerID `json:"owner,omitempty"`
}

// RecordOf builds the record of a finished battle.
func RecordOf(s *State, b *Battle) Record {
	r := Record{
		BattleID:        b.ID,
		Kind:            b.Kind,
		Territory:       b.Territory,
		Attacker:        b.Attacker,
		Defender:        b.Defender,
		Winner:          b.WhoWon,
		Result:          b.Result,
		Rounds:          b.Round,
		AttackerLostTUV: b.AttackerLostTUV,
		DefenderLostTUV: b.DefenderLostTUV,
		BombingTotal:    b.BombingTotal,
		Killed:          append([]UnitID(nil), b.Killed...),
	}
	if t := s.Territory(b.Territory); t != nil {
		r.Owner = t.Owner
	}
	return r
}

// Description renders the record as one line of battle history.
func (r Record) Description() string {
	var what string
	switch r.Result {
	case ResultConquered:
		what = fmt.Sprintf("%s conquers %s", r.Attacker, r.Territory)
	case ResultBombed:
		what = fmt.Sprintf("%s bombs %s for %d", r.Attacker, r.Territory, r.BombingTotal)
	case ResultRetreated:
		what = fmt.Sprintf("%s retreats from %s", r.Attacker, r.Territory)
	case ResultNoBattle:
		what = fmt.Sprintf("no battle in %s", r.Territory)
	default:
		what = fmt.Sprintf("%s vs %s in %s: %s %s", r.Attacker, r.Defender, r.Territory, r.Winner, r.Result)
	}
	return fmt.Sprintf("%s (attacker lost %d, defender lost %d)", what, r.AttackerLostTUV, r.DefenderLostTUV)
}

func (tr *Tracker) addRecord(s *State, b *Battle) {
	if tr == nil {
		return
	}
	tr.Records = append(tr.Records, RecordOf(s, b))
}

// TakeRecords returns the records of battles finished since the last call
// and forgets them.
func (tr *Tracker) TakeRecords() []Record {
	if tr == nil {
		return nil
	}
	out := tr.Records
	tr.Records = nil
	return out
}

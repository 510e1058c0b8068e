package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freeeve/warcore/internal/model"
)

// BattleRepo stores the records of finished battles.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

const recordColumns = `id, game_id, battle_id, kind, territory, attacker, defender, winner, result, description,
	attacker_lost_tuv, defender_lost_tuv, rounds, killed, created_at`

func scanRecord(row rowScanner) (model.BattleRecord, error) {
	var rec model.BattleRecord
	var killed pq.StringArray
	err := row.Scan(&rec.ID, &rec.GameID, &rec.BattleID, &rec.Kind, &rec.Territory, &rec.Attacker, &rec.Defender,
		&rec.Winner, &rec.Result, &rec.Description, &rec.AttackerLostTUV, &rec.DefenderLostTUV, &rec.Rounds,
		&killed, &rec.CreatedAt)
	rec.Killed = []string(killed)
	return rec, err
}

// SaveRecords inserts battle records in one transaction. A record for a
// battle that is already stored is skipped, so a retried write is harmless.
func (r *BattleRepo) SaveRecords(ctx context.Context, records []model.BattleRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO battle_records (game_id, battle_id, kind, territory, attacker, defender, winner, result, description,
		                             attacker_lost_tuv, defender_lost_tuv, rounds, killed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (game_id, battle_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		killed := rec.Killed
		if killed == nil {
			killed = []string{}
		}
		_, err := stmt.ExecContext(ctx, rec.GameID, rec.BattleID, rec.Kind, rec.Territory, rec.Attacker, rec.Defender,
			rec.Winner, rec.Result, rec.Description, rec.AttackerLostTUV, rec.DefenderLostTUV, rec.Rounds,
			pq.Array(killed))
		if err != nil {
			return fmt.Errorf("insert record for battle %s: %w", rec.BattleID, err)
		}
	}
	return tx.Commit()
}

// ListByGame returns every stored record of a game, oldest first.
func (r *BattleRepo) ListByGame(ctx context.Context, gameID string) ([]model.BattleRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM battle_records WHERE game_id = $1 ORDER BY created_at, battle_id`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list battle records: %w", err)
	}
	defer rows.Close()

	var out []model.BattleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindByBattleID returns the record of one battle, or nil.
func (r *BattleRepo) FindByBattleID(ctx context.Context, gameID, battleID string) (*model.BattleRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM battle_records WHERE game_id = $1 AND battle_id = $2`,
		gameID, battleID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find battle record: %w", err)
	}
	return &rec, nil
}

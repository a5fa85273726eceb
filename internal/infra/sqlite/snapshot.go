package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperdag-network/repid/internal/domain"
)

// ─── Save ───────────────────────────────────────────────────────────────────

// SaveSnapshot atomically replaces the persisted state with the given
// snapshots. The whole write happens in one transaction so a crash mid-save
// never leaves a half-written database.
func (db *DB) SaveSnapshot(snapshots []domain.AgentSnapshot) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"agents", "validation_history", "update_history"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, snap := range snapshots {
		if _, err := tx.Exec(`
			INSERT INTO agents (agent_id, score, last_update, total_validations, total_correct)
			VALUES (?, ?, ?, ?, ?)
		`, snap.AgentID, snap.Score, snap.LastUpdate.Format(time.RFC3339Nano),
			snap.TotalValidations, snap.TotalCorrect); err != nil {
			return fmt.Errorf("save agent %s: %w", snap.AgentID, err)
		}

		for _, v := range snap.Validations {
			if _, err := tx.Exec(`
				INSERT INTO validation_history (agent_id, correct, confidence, difficulty, is_edge_case, timestamp)
				VALUES (?, ?, ?, ?, ?, ?)
			`, snap.AgentID, boolInt(v.Correct), v.Confidence, v.Difficulty,
				boolInt(v.IsEdgeCase), v.Timestamp.Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("save validation history for %s: %w", snap.AgentID, err)
			}
		}

		for _, u := range snap.Updates {
			if _, err := tx.Exec(`
				INSERT INTO update_history (id, agent_id, old_repid, new_repid, change, reason, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, u.ID, snap.AgentID, u.OldRepID, u.NewRepID, u.Change, u.Reason,
				u.Timestamp.Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("save update history for %s: %w", snap.AgentID, err)
			}
		}
	}

	return tx.Commit()
}

// ─── Load ───────────────────────────────────────────────────────────────────

// LoadSnapshots reads every persisted agent back into snapshot form,
// histories in their original chronological order.
func (db *DB) LoadSnapshots() ([]domain.AgentSnapshot, error) {
	rows, err := db.db.Query(`
		SELECT agent_id, score, last_update, total_validations, total_correct
		FROM agents ORDER BY agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	defer rows.Close()

	var snaps []domain.AgentSnapshot
	for rows.Next() {
		var snap domain.AgentSnapshot
		var lastUpdate string
		if err := rows.Scan(&snap.AgentID, &snap.Score, &lastUpdate,
			&snap.TotalValidations, &snap.TotalCorrect); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		snap.LastUpdate, err = time.Parse(time.RFC3339Nano, lastUpdate)
		if err != nil {
			return nil, fmt.Errorf("parse last_update for %s: %w", snap.AgentID, err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		if snaps[i].Validations, err = db.loadValidations(snaps[i].AgentID); err != nil {
			return nil, err
		}
		if snaps[i].Updates, err = db.loadUpdates(snaps[i].AgentID); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func (db *DB) loadValidations(agentID string) ([]domain.ValidationResult, error) {
	rows, err := db.db.Query(`
		SELECT correct, confidence, difficulty, is_edge_case, timestamp
		FROM validation_history WHERE agent_id = ? ORDER BY id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("load validations for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []domain.ValidationResult
	for rows.Next() {
		var v domain.ValidationResult
		var correct, edge int
		var ts string
		if err := rows.Scan(&correct, &v.Confidence, &v.Difficulty, &edge, &ts); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		v.Correct = correct == 1
		v.IsEdgeCase = edge == 1
		if v.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse validation timestamp: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) loadUpdates(agentID string) ([]domain.RepIDUpdate, error) {
	rows, err := db.db.Query(`
		SELECT id, old_repid, new_repid, change, reason, timestamp
		FROM update_history WHERE agent_id = ? ORDER BY rowid
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("load updates for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []domain.RepIDUpdate
	for rows.Next() {
		u := domain.RepIDUpdate{AgentID: agentID}
		var ts string
		if err := rows.Scan(&u.ID, &u.OldRepID, &u.NewRepID, &u.Change, &u.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		if u.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse update timestamp: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AgentCount returns how many agents are persisted.
func (db *DB) AgentCount() (int, error) {
	var count int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM agents`).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

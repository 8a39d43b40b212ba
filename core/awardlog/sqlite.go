package awardlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS awards (
        id TEXT PRIMARY KEY,
        run_id TEXT NOT NULL,
        tick INTEGER NOT NULL,
        package_id INTEGER NOT NULL,
        agent_id INTEGER NOT NULL,
        record TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS awards_run_tick ON awards (run_id, tick);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO awards (id, run_id, tick, package_id, agent_id, record) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Tick, int64(rec.PackageID), int64(rec.AgentID), string(b))
	return err
}

// Query returns records matching q ordered by tick.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT record FROM awards WHERE 1=1`
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.AgentID != nil {
		query += ` AND agent_id = ?`
		args = append(args, int64(*q.AgentID))
	}
	if q.PackageID != nil {
		query += ` AND package_id = ?`
		args = append(args, int64(*q.PackageID))
	}
	if q.FromTick > 0 {
		query += ` AND tick >= ?`
		args = append(args, q.FromTick)
	}
	if q.ToTick > 0 {
		query += ` AND tick <= ?`
		args = append(args, q.ToTick)
	}
	query += ` ORDER BY tick, rowid`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/smarthubscraper/pkg/models"
	_ "modernc.org/sqlite"
)

// fixed width UTC so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS poll_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL UNIQUE,
		polled_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		usage REAL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_poll_polled_at ON poll_log(polled_at);
	CREATE INDEX IF NOT EXISTS idx_poll_outcome ON poll_log(outcome);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertPoll records a poll cycle and sets its ID
func (db *DB) InsertPoll(rec *models.PollRecord) error {
	query := `
	INSERT INTO poll_log (cycle_id, polled_at, outcome, status_code, usage, detail)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	var usage sql.NullFloat64
	if rec.Usage != nil {
		usage = sql.NullFloat64{Float64: *rec.Usage, Valid: true}
	}

	res, err := db.conn.Exec(query,
		rec.CycleID,
		rec.PolledAt.UTC().Format(timeLayout),
		rec.Outcome,
		rec.StatusCode,
		usage,
		rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting poll record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading poll record id: %w", err)
	}
	rec.ID = int(id)
	return nil
}

// ListPolls returns the most recent poll cycles, newest first.
// A limit of 0 returns all of them.
func (db *DB) ListPolls(limit int) ([]models.PollRecord, error) {
	query := `
	SELECT id, cycle_id, polled_at, outcome, status_code, usage, detail
	FROM poll_log
	ORDER BY polled_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying poll log: %w", err)
	}
	defer rows.Close()

	var results []models.PollRecord
	for rows.Next() {
		rec, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}

	return results, rows.Err()
}

// LastPoll returns the most recent poll cycle, or nil if none were recorded
func (db *DB) LastPoll() (*models.PollRecord, error) {
	polls, err := db.ListPolls(1)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, nil
	}
	return &polls[0], nil
}

func scanPoll(rows *sql.Rows) (*models.PollRecord, error) {
	var rec models.PollRecord
	var polledAt string
	var usage sql.NullFloat64

	if err := rows.Scan(&rec.ID, &rec.CycleID, &polledAt, &rec.Outcome, &rec.StatusCode, &usage, &rec.Detail); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	t, err := time.Parse(timeLayout, polledAt)
	if err != nil {
		return nil, fmt.Errorf("parsing polled_at: %w", err)
	}
	rec.PolledAt = t

	if usage.Valid {
		v := usage.Float64
		rec.Usage = &v
	}

	return &rec, nil
}

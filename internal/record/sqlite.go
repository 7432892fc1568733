package record

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"simmer-sim/internal/simulation"
	"simmer-sim/internal/telemetry"
)

// SQLiteStore persists the exchanges of one or more runs.
type SQLiteStore struct {
	db    *sql.DB
	runID string
}

// Entry is one stored exchange.
type Entry struct {
	RunID    string
	Seq      int64
	Tick     uint64
	SimTime  time.Duration
	Message  string
	Readings []float64
	Error    string
}

// OpenSQLite opens (or creates) the trace database at path and starts a new run.
func OpenSQLite(path string, seed uint64, random bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	// One connection keeps seq assignment serialised.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			seed        BIGINT,
			rand_error  BOOLEAN,
			started_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS exchanges (
			run_id      TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			tick        BIGINT,
			sim_time_ns BIGINT,
			message     TEXT,
			telemetry   BLOB,
			error       TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create trace schema: %w", err)
	}

	s := &SQLiteStore{db: db, runID: uuid.NewString()}
	// SQLite stores integers as signed 64-bit values.
	if _, err := db.Exec("INSERT INTO runs (run_id, seed, rand_error) VALUES (?, ?, ?)", s.runID, int64(seed), random); err != nil {
		db.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}
	return s, nil
}

// RunID identifies the run this store appends to.
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// Record implements simulation.Recorder.
func (s *SQLiteStore) Record(ex simulation.Exchange) error {
	var errText sql.NullString
	if ex.Err != nil {
		errText = sql.NullString{String: ex.Err.Error(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO exchanges (run_id, seq, tick, sim_time_ns, message, telemetry, error)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM exchanges WHERE run_id = ?), ?, ?, ?, ?, ?)`,
		s.runID, s.runID, int64(ex.Tick), int64(ex.Time), ex.Message, telemetry.Encode(ex.Readings), errText)
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// Entries returns the exchanges of a run in the order they were recorded.
func (s *SQLiteStore) Entries(runID string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT seq, tick, sim_time_ns, message, telemetry, error
		FROM exchanges WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       = Entry{RunID: runID}
			tick    int64
			simTime int64
			blob    []byte
			errText sql.NullString
		)
		if err := rows.Scan(&e.Seq, &tick, &simTime, &e.Message, &blob, &errText); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.Tick = uint64(tick)
		e.SimTime = time.Duration(simTime)
		e.Error = errText.String
		if e.Readings, err = telemetry.Decode(blob); err != nil {
			return nil, fmt.Errorf("exchange %d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Runs lists the stored run ids, oldest first.
func (s *SQLiteStore) Runs() ([]string, error) {
	rows, err := s.db.Query("SELECT run_id FROM runs ORDER BY started_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("trace database already closed")
	}
	err := s.db.Close()
	s.db = nil
	return err
}

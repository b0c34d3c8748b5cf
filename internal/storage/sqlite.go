package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage persists analysis runs in SQLite, keyed by (publisher_name, publisher_id)
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	dsn := dbPath
	if !strings.HasPrefix(dbPath, ":memory:") {
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single-threaded workload; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		publisher_name TEXT NOT NULL,
		publisher_id TEXT NOT NULL,
		publisher_domain TEXT,
		sample_direct_line TEXT,
		manual INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(publisher_name, publisher_id)
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		domain TEXT NOT NULL,
		rank INTEGER NOT NULL,
		org_buying INTEGER DEFAULT 0,
		role TEXT,
		qualifier TEXT,
		note TEXT,
		checked_at TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, domain)
	);

	CREATE TABLE IF NOT EXISTS skips (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		domain TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		checked_at TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, domain)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_publisher ON runs(publisher_name, publisher_id);
	CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id);
	CREATE INDEX IF NOT EXISTS idx_skips_run ON skips(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores run, replacing any earlier run for the same publisher name and id
func (s *Storage) SaveRun(run *Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Drop the previous run for this key along with its rows
	var previousID string
	err = tx.QueryRow("SELECT run_id FROM runs WHERE publisher_name = ? AND publisher_id = ?",
		run.PublisherName, run.PublisherID).Scan(&previousID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up previous run: %w", err)
	}
	if previousID != "" {
		for _, table := range []string{"opportunities", "skips", "runs"} {
			if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", previousID); err != nil {
				return fmt.Errorf("failed to delete previous %s: %w", table, err)
			}
		}
	}

	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, publisher_name, publisher_id, publisher_domain, sample_direct_line, manual, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.PublisherName, run.PublisherID, run.PublisherDomain, run.SampleDirectLine,
		run.Manual, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, o := range run.Results {
		_, err := tx.Exec(`
			INSERT INTO opportunities (run_id, position, domain, rank, org_buying, role, qualifier, note, checked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.RunID, i, o.Domain, o.Rank, o.OrgBuying, string(o.Role), o.Qualifier, o.Note, o.CheckedAt)
		if err != nil {
			return fmt.Errorf("failed to insert opportunity %s: %w", o.Domain, err)
		}
	}

	for i, sk := range run.Skipped {
		_, err := tx.Exec(`
			INSERT INTO skips (run_id, position, domain, reason, detail, checked_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.RunID, i, sk.Domain, sk.Reason, sk.Detail, sk.CheckedAt)
		if err != nil {
			return fmt.Errorf("failed to insert skip %s: %w", sk.Domain, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// LoadRun retrieves the run for a publisher, returns nil if not found
func (s *Storage) LoadRun(publisherName, publisherID string) (*Run, error) {
	var run Run
	err := s.db.QueryRow(`
		SELECT run_id, publisher_name, publisher_id, publisher_domain, sample_direct_line, manual, created_at, updated_at
		FROM runs
		WHERE publisher_name = ? AND publisher_id = ?
	`, publisherName, publisherID).Scan(&run.RunID, &run.PublisherName, &run.PublisherID, &run.PublisherDomain,
		&run.SampleDirectLine, &run.Manual, &run.CreatedAt, &run.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Results, err = s.loadOpportunities(run.RunID); err != nil {
		return nil, err
	}
	if run.Skipped, err = s.loadSkips(run.RunID); err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *Storage) loadOpportunities(runID string) ([]Opportunity, error) {
	rows, err := s.db.Query(`
		SELECT domain, rank, org_buying, role, qualifier, note, checked_at
		FROM opportunities
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunities: %w", err)
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var o Opportunity
		var role string
		if err := rows.Scan(&o.Domain, &o.Rank, &o.OrgBuying, &role, &o.Qualifier, &o.Note, &o.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		o.Role = Role(role)
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}
	return out, nil
}

func (s *Storage) loadSkips(runID string) ([]Skip, error) {
	rows, err := s.db.Query(`
		SELECT domain, reason, detail, checked_at
		FROM skips
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skips: %w", err)
	}
	defer rows.Close()

	var out []Skip
	for rows.Next() {
		var sk Skip
		if err := rows.Scan(&sk.Domain, &sk.Reason, &sk.Detail, &sk.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skip: %w", err)
		}
		out = append(out, sk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating skips: %w", err)
	}
	return out, nil
}

// ListRuns returns a summary of every stored run, most recently updated first
func (s *Storage) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.publisher_name, r.publisher_id, r.updated_at,
			(SELECT COUNT(*) FROM opportunities o WHERE o.run_id = r.run_id),
			(SELECT COUNT(*) FROM skips k WHERE k.run_id = r.run_id)
		FROM runs r
		ORDER BY r.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.PublisherName, &rs.PublisherID, &rs.UpdatedAt, &rs.Opportunities, &rs.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, rs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

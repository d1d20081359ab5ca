package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,                    -- UUID of the batch run
	mode TEXT NOT NULL,                     -- manual or auto
	target TEXT,
	query_count INTEGER DEFAULT 0,
	result_count INTEGER DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT,
	started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	title TEXT,
	url TEXT NOT NULL,
	description TEXT,
	timestamp TEXT NOT NULL,                -- ISO-8601 creation time of the record
	dork TEXT NOT NULL,
	category TEXT
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);

CREATE TABLE IF NOT EXISTS quota_usage (
	day TEXT PRIMARY KEY,                   -- UTC date, YYYY-MM-DD
	count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS opengraph_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	title TEXT,
	description TEXT,
	image TEXT,
	site_name TEXT,
	fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	expires_at TIMESTAMP,
	fetch_success BOOLEAN DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_opengraph_expires ON opengraph_cache(expires_at);
`

// openDB opens (creating if needed) the history database at path
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	slog.Debug("Initializing database", "path", path)

	db, err := sql.Open("sqlite", path) // Use "sqlite" driver name
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; this also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Debug("Database initialized successfully")
	return db, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// newRunRecord starts a history record for a batch
func newRunRecord(mode, target string, queryCount int) RunRecord {
	return RunRecord{
		ID:         uuid.NewString(),
		Mode:       mode,
		Target:     target,
		QueryCount: queryCount,
		StartedAt:  time.Now(),
	}
}

// saveRun stores a finished run and its results in one transaction
func saveRun(db *sql.DB, run RunRecord, results []ResultRecord) error {
	slog.Debug("Saving run", "run_id", run.ID, "resultCount", len(results))

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO runs (id, mode, target, query_count, result_count, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result_count = excluded.result_count,
			status = excluded.status,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		run.ID, run.Mode, run.Target, run.QueryCount, len(results), run.Status, run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	// Results are kept one row per returned item, repeats included; re-saving a run replaces its set
	if _, err := tx.Exec("DELETE FROM results WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO results (run_id, title, url, description, timestamp, dork, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		if _, err := stmt.Exec(run.ID, r.Title, r.URL, r.Description, r.Timestamp, r.Dork, r.Category); err != nil {
			return fmt.Errorf("failed to store result %q: %w", r.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	slog.Info("Stored run", "run_id", run.ID, "status", run.Status, "results", len(results))
	return nil
}

// getRunResults returns the results of a run in insertion order
func getRunResults(db *sql.DB, runID string) ([]ResultRecord, error) {
	rows, err := db.Query(`
		SELECT title, url, description, timestamp, dork, category
		FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ResultRecord
	for rows.Next() {
		var r ResultRecord
		if err := rows.Scan(&r.Title, &r.URL, &r.Description, &r.Timestamp, &r.Dork, &r.Category); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// listRuns returns the most recent runs first
func listRuns(db *sql.DB, limit int) ([]RunRecord, error) {
	slog.Debug("Querying database for runs", "limit", limit)
	rows, err := db.Query(`
		SELECT id, mode, target, query_count, result_count, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var target, runErr sql.NullString
		err := rows.Scan(&run.ID, &run.Mode, &target, &run.QueryCount, &run.ResultCount, &run.Status, &runErr, &run.StartedAt, &run.FinishedAt)
		if err != nil {
			slog.Error("Error scanning row", "error", err)
			continue
		}
		run.Target = target.String
		run.Error = runErr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// loadQuotaUsage returns the number of requests recorded for the given UTC day
func loadQuotaUsage(db *sql.DB, day time.Time) (int, error) {
	var count int
	err := db.QueryRow("SELECT count FROM quota_usage WHERE day = ?", utcDay(day).Format(time.DateOnly)).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query quota usage: %w", err)
	}
	return count, nil
}

// saveQuotaUsage records the request count for a UTC day
func saveQuotaUsage(db *sql.DB, day time.Time, count int) error {
	_, err := db.Exec(`
		INSERT INTO quota_usage (day, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at`,
		utcDay(day).Format(time.DateOnly), count, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store quota usage: %w", err)
	}
	slog.Debug("Stored quota usage", "day", utcDay(day).Format(time.DateOnly), "count", count)
	return nil
}

// getOpenGraphData retrieves unexpired cached OpenGraph data for a URL
func getOpenGraphData(db *sql.DB, url string) (*OpenGraphCache, error) {
	query := `
		SELECT id, url, title, description, image, site_name, fetched_at, expires_at, fetch_success
		FROM opengraph_cache
		WHERE url = ? AND expires_at > ?`

	var cache OpenGraphCache
	err := db.QueryRow(query, url, time.Now()).Scan(
		&cache.ID,
		&cache.URL,
		&cache.Title,
		&cache.Description,
		&cache.Image,
		&cache.SiteName,
		&cache.FetchedAt,
		&cache.ExpiresAt,
		&cache.FetchSuccess,
	)

	if err == sql.ErrNoRows {
		slog.Debug("No cached OpenGraph data found", "url", url)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query OpenGraph cache: %w", err)
	}
	return &cache, nil
}

// cacheOpenGraphData stores OpenGraph data; failures expire sooner than successes
func cacheOpenGraphData(db *sql.DB, ogData *OpenGraphData, fetchSuccess bool) error {
	expiresAt := time.Now().Add(24 * time.Hour)
	if fetchSuccess {
		expiresAt = time.Now().Add(7 * 24 * time.Hour)
	}

	_, err := db.Exec(`
		INSERT INTO opengraph_cache (url, title, description, image, site_name, fetched_at, expires_at, fetch_success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			image = excluded.image,
			site_name = excluded.site_name,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at,
			fetch_success = excluded.fetch_success`,
		ogData.URL, ogData.Title, ogData.Description, ogData.Image, ogData.SiteName,
		time.Now(), expiresAt, fetchSuccess)
	if err != nil {
		return fmt.Errorf("failed to cache OpenGraph data: %w", err)
	}
	return nil
}

// cleanupExpiredOpenGraphCache removes expired OpenGraph cache entries
func cleanupExpiredOpenGraphCache(db *sql.DB) error {
	result, err := db.Exec("DELETE FROM opengraph_cache WHERE expires_at < ?", time.Now())
	if err != nil {
		return fmt.Errorf("failed to cleanup expired cache: %w", err)
	}

	if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
		slog.Debug("Cleaned up expired OpenGraph cache entries", "count", rowsAffected)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/friendcrawl/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "friendcrawl.db"

// PlayerDB is a SQLite copy of a player store plus run history.
type PlayerDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures PlayerDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*PlayerDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pdb := &PlayerDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := pdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return pdb, nil
}

// Path returns the database file path.
func (p *PlayerDB) Path() string {
	return p.dbPath
}

// Close closes the database connection.
func (p *PlayerDB) Close() error {
	return p.db.Close()
}

func (p *PlayerDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		visibility TEXT NOT NULL,
		visibility_state INTEGER NOT NULL DEFAULT 0,
		owns_target TEXT NOT NULL,
		crawled INTEGER NOT NULL DEFAULT 0,
		friends_hidden INTEGER NOT NULL DEFAULT 0,
		games_hidden INTEGER NOT NULL DEFAULT 0,
		expand_failures INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT NOT NULL,
		last_processed TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_players_owns ON players(owns_target);
	CREATE INDEX IF NOT EXISTS idx_players_visibility ON players(visibility);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		state TEXT NOT NULL,
		reason TEXT,
		expansions INTEGER NOT NULL DEFAULT 0,
		discovered INTEGER NOT NULL DEFAULT 0,
		players INTEGER NOT NULL DEFAULT 0,
		owners INTEGER NOT NULL DEFAULT 0,
		state_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := p.db.ExecContext(context.Background(), schema)
	return err
}

// UpsertPlayers writes records in one transaction, replacing existing rows.
func (p *PlayerDB) UpsertPlayers(ctx context.Context, records []model.PlayerRecord) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO players (id, seq, visibility, visibility_state, owns_target, crawled,
		friends_hidden, games_hidden, expand_failures, last_updated, last_processed)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		seq = excluded.seq,
		visibility = excluded.visibility,
		visibility_state = excluded.visibility_state,
		owns_target = excluded.owns_target,
		crawled = excluded.crawled,
		friends_hidden = excluded.friends_hidden,
		games_hidden = excluded.games_hidden,
		expand_failures = excluded.expand_failures,
		last_updated = excluded.last_updated,
		last_processed = excluded.last_processed
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var lastProcessed sql.NullString
		if !rec.LastProcessed.IsZero() {
			lastProcessed = sql.NullString{String: formatTimestamp(rec.LastProcessed), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.Seq,
			rec.Visibility.String(),
			rec.VisibilityState,
			rec.OwnsTarget.String(),
			rec.Crawled,
			rec.FriendsHidden,
			rec.GamesHidden,
			rec.ExpandFailures,
			formatTimestamp(rec.LastUpdated),
			lastProcessed,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert player %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit players: %w", err)
	}
	return len(records), nil
}

// GetPlayer returns the row for id, or nil if there is none.
func (p *PlayerDB) GetPlayer(ctx context.Context, id string) (*model.PlayerRecord, error) {
	var (
		rec                       model.PlayerRecord
		visibility, owns, updated string
		processed                 sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
	SELECT id, seq, visibility, visibility_state, owns_target, crawled,
		friends_hidden, games_hidden, expand_failures, last_updated, last_processed
	FROM players WHERE id = ?
	`, id).Scan(
		&rec.ID,
		&rec.Seq,
		&visibility,
		&rec.VisibilityState,
		&owns,
		&rec.Crawled,
		&rec.FriendsHidden,
		&rec.GamesHidden,
		&rec.ExpandFailures,
		&updated,
		&processed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if err := rec.Visibility.UnmarshalText([]byte(visibility)); err != nil {
		return nil, err
	}
	if err := rec.OwnsTarget.UnmarshalText([]byte(owns)); err != nil {
		return nil, err
	}
	rec.LastUpdated = parseTimestamp(updated)
	if processed.Valid {
		rec.LastProcessed = parseTimestamp(processed.String)
	}
	return &rec, nil
}

// CountPlayers returns the number of player rows.
func (p *PlayerDB) CountPlayers(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM players").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}

// Owners returns the ids of players owning the target app in discovery order.
func (p *PlayerDB) Owners(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id FROM players WHERE owns_target = ? ORDER BY seq", model.OwnershipTrue.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Run kinds.
const (
	RunKindCrawl  = "crawl"
	RunKindExport = "export"
)

// Run is one row of run history.
type Run struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	State      string
	Reason     string
	Expansions int
	Discovered int
	Players    int
	Owners     int
	StatePath  string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun inserts or updates a run row. A run without an ID gets one.
func (p *PlayerDB) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}

	var finished sql.NullString
	if !run.FinishedAt.IsZero() {
		finished = sql.NullString{String: formatTimestamp(run.FinishedAt), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
	INSERT INTO runs (id, kind, started_at, finished_at, state, reason,
		expansions, discovered, players, owners, state_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		state = excluded.state,
		reason = excluded.reason,
		expansions = excluded.expansions,
		discovered = excluded.discovered,
		players = excluded.players,
		owners = excluded.owners
	`,
		run.ID,
		run.Kind,
		formatTimestamp(run.StartedAt),
		finished,
		run.State,
		run.Reason,
		run.Expansions,
		run.Discovered,
		run.Players,
		run.Owners,
		run.StatePath,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs, newest first. A limit of zero returns all.
func (p *PlayerDB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, kind, started_at, finished_at, state, reason,
		expansions, discovered, players, owners, state_path
	FROM runs ORDER BY started_at DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run                       Run
			started                   string
			finished, reason, statePt sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.Kind,
			&started,
			&finished,
			&run.State,
			&reason,
			&run.Expansions,
			&run.Discovered,
			&run.Players,
			&run.Owners,
			&statePt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = parseTimestamp(started)
		if finished.Valid {
			run.FinishedAt = parseTimestamp(finished.String)
		}
		run.Reason = reason.String
		run.StatePath = statePt.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats lists the layouts accepted when reading timestamps back.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp returns the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

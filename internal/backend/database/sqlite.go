package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/rating"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" opens its own database.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		prompt_text TEXT NOT NULL,
		filepath TEXT,
		orig_filepath TEXT,
		status TEXT NOT NULL DEFAULT 'unmarked',
		deleted INTEGER NOT NULL DEFAULT 0,
		upscale TEXT NOT NULL DEFAULT 'none',
		upscale_of TEXT,
		score_mu REAL NOT NULL,
		score_sigma REAL NOT NULL,
		width INTEGER,
		height INTEGER,
		seed INTEGER
	)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// The file is created on first connect, so a successful ping is enough.
	err := s.db.Ping()
	return err == nil
}

const entryColumns = `id, prompt_text, filepath, orig_filepath, status, deleted, upscale,
	upscale_of, score_mu, score_sigma, width, height, seed`

func (s *SQLiteDatabase) CreateEntry(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	if e.ID == "" {
		e.ID = generateID()
	}
	if err := e.Validate(); err != nil {
		return entry.Entry{}, err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entryArgs(e)...)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
	}
	return e.Clone(), nil
}

func (s *SQLiteDatabase) GetEntryByID(ctx context.Context, id string) (entry.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entry.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

func (s *SQLiteDatabase) GetEntries(ctx context.Context) ([]entry.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entryColumns+" FROM entries ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // read-only query, nothing to recover
	}()

	var entries []entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteDatabase) UpdateEntry(ctx context.Context, e entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	args := append(entryArgs(e)[1:], e.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET prompt_text = ?, filepath = ?,
		orig_filepath = ?, status = ?, deleted = ?, upscale = ?, upscale_of = ?, score_mu = ?,
		score_sigma = ?, width = ?, height = ?, seed = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry %s: %w", e.ID, err)
	}
	return requireRow(res, e.ID)
}

func (s *SQLiteDatabase) PurgeEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func entryArgs(e entry.Entry) []any {
	upscale := e.Upscale
	if upscale == "" {
		upscale = entry.UpscaleNone
	}
	var seed sql.NullInt64
	if e.Seed != nil {
		seed = sql.NullInt64{Int64: *e.Seed, Valid: true}
	}
	return []any{
		e.ID,
		e.PromptText,
		nullString(e.Filepath),
		nullString(e.OrigFilepath),
		e.Status.String(),
		e.Deleted,
		string(upscale),
		nullString(e.UpscaleOf),
		e.Quality.Mu,
		e.Quality.Sigma,
		nullInt(e.Width),
		nullInt(e.Height),
		seed,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (entry.Entry, error) {
	var (
		e                                 entry.Entry
		filepath, origFilepath, upscaleOf sql.NullString
		status, upscale                   string
		width, height, seed               sql.NullInt64
		mu, sigma                         float64
	)
	err := row.Scan(&e.ID, &e.PromptText, &filepath, &origFilepath, &status, &e.Deleted,
		&upscale, &upscaleOf, &mu, &sigma, &width, &height, &seed)
	if err != nil {
		return entry.Entry{}, err
	}

	e.Status, err = entry.ParseStatus(status)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.Filepath = filepath.String
	e.OrigFilepath = origFilepath.String
	e.UpscaleOf = upscaleOf.String
	e.Upscale = entry.ParseUpscaleState(upscale)
	e.Quality = rating.Belief{Mu: mu, Sigma: sigma}
	e.Width = int(width.Int64)
	e.Height = int(height.Int64)
	if seed.Valid {
		e.SetSeed(seed.Int64)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

// Package artifact records the audio files produced by the speech server in
// a SQLite ledger, so they can be fetched again by id.
package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no artifact has the requested id.
var ErrNotFound = errors.New("artifact: not found")

// Artifact is one synthesized audio file.
type Artifact struct {
	ID        string
	Path      string
	Voice     string
	Language  string
	Chars     int
	Samples   int
	Duration  time.Duration
	Elapsed   time.Duration
	CreatedAt time.Time
}

// timeLayout is fixed width so that created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Ledger is a SQLite-backed artifact index. It is safe for concurrent use.
type Ledger struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("artifact: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("artifact: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact: ping sqlite: %w", err)
	}

	l := &Ledger{db: db, log: log, clock: time.Now}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact: init schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    voice TEXT,
    language TEXT,
    chars INTEGER,
    samples INTEGER,
    duration_ms INTEGER,
    elapsed_ms INTEGER,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);
`
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// NewID returns a fresh artifact id.
func NewID() string {
	return uuid.NewString()
}

// Record stores a. An empty ID is filled with NewID and a zero CreatedAt
// with the current time. The stored artifact is returned.
func (l *Ledger) Record(ctx context.Context, a Artifact) (Artifact, error) {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.clock()
	}
	a.CreatedAt = a.CreatedAt.UTC()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO artifacts(id, path, voice, language, chars, samples, duration_ms, elapsed_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Path, a.Voice, a.Language, a.Chars, a.Samples,
		a.Duration.Milliseconds(), a.Elapsed.Milliseconds(), a.CreatedAt.Format(timeLayout))
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: record %s: %w", a.ID, err)
	}
	l.log.Debug("artifact recorded", slog.String("id", a.ID), slog.String("path", a.Path))
	return a, nil
}

const selectColumns = `SELECT id, path, voice, language, chars, samples, duration_ms, elapsed_ms, created_at FROM artifacts`

// Get returns the artifact with the given id, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (Artifact, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: get %s: %w", id, err)
	}
	return a, nil
}

// List returns up to limit artifacts, newest first. A non-positive limit
// means 100.
func (l *Ledger) List(ctx context.Context, limit int) ([]Artifact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("artifact: list: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("artifact: list: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes the artifact row. The audio file is left in place.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("artifact: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Artifact, error) {
	var (
		a                     Artifact
		voice, lang           sql.NullString
		chars, samples        sql.NullInt64
		durationMS, elapsedMS sql.NullInt64
		created               string
	)
	if err := s.Scan(&a.ID, &a.Path, &voice, &lang, &chars, &samples, &durationMS, &elapsedMS, &created); err != nil {
		return Artifact{}, err
	}
	a.Voice = voice.String
	a.Language = lang.String
	a.Chars = int(chars.Int64)
	a.Samples = int(samples.Int64)
	a.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	a.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
	if ts, err := time.Parse(timeLayout, created); err == nil {
		a.CreatedAt = ts
	}
	return a, nil
}

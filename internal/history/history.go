// Package history persists run records in a local SQLite database so past
// runs can be listed and aggregated.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// maxPromptLen bounds how much of the prompt is stored per record.
const maxPromptLen = 1024

// timeFormat is RFC 3339 with a fixed nine-digit fraction so the stored
// strings sort lexicographically in time order. RFC3339Nano trims
// trailing zeros, which breaks string comparison across rows.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite connection and path.
type Store struct {
	sql  *sql.DB
	path string
}

// Record is one persisted run.
type Record struct {
	ID           string
	Provider     string
	Kind         string
	Model        string
	Prompt       string
	ExitCode     int
	InputTokens  int64
	OutputTokens int64
	Cost         *float64
	DurationMs   int64
	Error        string
	CreatedAt    time.Time
}

// Totals aggregates history for one provider or all providers.
type Totals struct {
	Runs         int64
	Failures     int64
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "daybreak", "history.db")
}

// Open opens or creates the database, applies pragmas, and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	resolved := expandPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{sql: sqlDB, path: resolved}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// Append inserts a run record. A missing ID is generated.
func (s *Store) Append(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.Prompt) > maxPromptLen {
		rec.Prompt = rec.Prompt[:maxPromptLen]
	}

	var cost sql.NullFloat64
	if rec.Cost != nil {
		cost = sql.NullFloat64{Float64: *rec.Cost, Valid: true}
	}

	_, err := s.sql.ExecContext(ctx, `
		INSERT INTO runs (id, provider, kind, model, prompt, exit_code, input_tokens, output_tokens, cost, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.Kind, rec.Model, rec.Prompt, rec.ExitCode,
		rec.InputTokens, rec.OutputTokens, cost, rec.DurationMs, rec.Error,
		rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return rec.ID, nil
}

// Recent returns the newest records, optionally filtered by provider.
func (s *Store) Recent(ctx context.Context, provider string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, provider, kind, model, prompt, exit_code, input_tokens, output_tokens, cost, duration_ms, error, created_at
		FROM runs`
	args := []any{}
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var cost sql.NullFloat64
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.Kind, &rec.Model, &rec.Prompt,
			&rec.ExitCode, &rec.InputTokens, &rec.OutputTokens, &cost, &rec.DurationMs,
			&rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if cost.Valid {
			v := cost.Float64
			rec.Cost = &v
		}
		if t, err := time.Parse(timeFormat, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ProviderTotals aggregates runs per provider since the given time. A zero
// time aggregates everything.
func (s *Store) ProviderTotals(ctx context.Context, since time.Time) (map[string]Totals, error) {
	query := `
		SELECT provider,
		       COUNT(*),
		       SUM(CASE WHEN exit_code != 0 OR error != '' THEN 1 ELSE 0 END),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM runs`
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC().Format(timeFormat))
	}
	query += ` GROUP BY provider`

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]Totals)
	for rows.Next() {
		var name string
		var t Totals
		if err := rows.Scan(&name, &t.Runs, &t.Failures, &t.InputTokens, &t.OutputTokens, &t.Cost); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		totals[name] = t
	}
	return totals, rows.Err()
}

// Prune deletes records older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sql.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`,
		before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}

	return path
}

// Package history persists the outcome of playbook dispatches and
// provisioning runs in a local SQLite database, so an operator can review
// what was executed against the fleet and when.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the history database at path and
// runs pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// One operator, one CLI process. A single connection sidesteps
	// table-lock contention inside the process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordDispatch stores the outcome of one playbook dispatch.
func (s *Store) RecordDispatch(ctx context.Context, server, playbook, status string, duration time.Duration, message string) error {
	query := `
		INSERT INTO dispatches (id, server, playbook, status, duration_ms, message, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		server,
		playbook,
		status,
		duration.Milliseconds(),
		message,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// RecordProvision stores the outcome of one provisioning run.
func (s *Store) RecordProvision(ctx context.Context, provider, name, status, resourceID string, duration time.Duration, message string) error {
	query := `
		INSERT INTO provisions (id, provider, name, status, resource_id, duration_ms, message, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		provider,
		name,
		status,
		resourceID,
		duration.Milliseconds(),
		message,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record provision: %w", err)
	}
	return nil
}

// ListDispatches returns the most recent dispatches, newest first. An
// empty server selects all servers.
func (s *Store) ListDispatches(ctx context.Context, server string, limit int) ([]*DispatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, server, playbook, status, duration_ms, message, ran_at
		FROM dispatches
		WHERE (? = '' OR server = ?)
		ORDER BY ran_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, server, server, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	records := []*DispatchRecord{}
	for rows.Next() {
		rec := &DispatchRecord{}
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.Server, &rec.Playbook, &rec.Status, &durationMS, &rec.Message, &rec.RanAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dispatches: %w", err)
	}
	return records, nil
}

// ListProvisions returns the most recent provisioning runs, newest first.
func (s *Store) ListProvisions(ctx context.Context, limit int) ([]*ProvisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, provider, name, status, resource_id, duration_ms, message, ran_at
		FROM provisions
		ORDER BY ran_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list provisions: %w", err)
	}
	defer rows.Close()

	records := []*ProvisionRecord{}
	for rows.Next() {
		rec := &ProvisionRecord{}
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.Name, &rec.Status, &rec.ResourceID, &durationMS, &rec.Message, &rec.RanAt); err != nil {
			return nil, fmt.Errorf("failed to scan provision: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provisions: %w", err)
	}
	return records, nil
}

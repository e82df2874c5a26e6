// Package postgres implements the patient store using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"carelytics/internal/domain"
)

// advisoryKey identifies the patients table lock among pg advisory locks.
const advisoryKey int64 = 0x70617469656e74

// DB wraps a *sql.DB and implements domain.PatientStore and domain.Locker.
type DB struct {
	sql *sql.DB
}

var _ domain.Locker = (*DB)(nil)

// Open connects to PostgreSQL, pings, and creates the patients table.
func Open(ctx context.Context, connStr string) (*DB, error) {
	s, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	d := &DB{sql: s}
	if err := d.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Lock takes a session advisory lock so that several processes sharing the
// database serialize their load and save cycles.
func (d *DB) Lock(ctx context.Context) (func() error, error) {
	conn, err := d.sql.Conn(ctx)
	if err != nil {
		return nil, domain.IOError("lock", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1);", advisoryKey); err != nil {
		_ = conn.Close()
		return nil, domain.IOError("lock", err)
	}
	return func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1);", advisoryKey)
		return err
	}, nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY CHECK (id <> ''),
			name TEXT NOT NULL,
			city TEXT NOT NULL,
			age INTEGER NOT NULL CHECK (age > 0 AND age < 120),
			gender TEXT NOT NULL CHECK (gender IN ('male','female','others')),
			height DOUBLE PRECISION NOT NULL CHECK (height > 0),
			weight DOUBLE PRECISION NOT NULL CHECK (weight > 0)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

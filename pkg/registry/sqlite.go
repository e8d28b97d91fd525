package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SQLite is a Store in a local SQLite file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	o := buildOptions(opts)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; serialize instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	o.logger.Debug("opened registry", "backend", "sqlite", "path", path)
	return &SQLite{db: db, logger: o.logger}, nil
}

// Migrate implements Store.
func (s *SQLite) Migrate(_ context.Context) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return runMigrations("sqlite", "sqlite3", driver, false)
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// KnownHost implements Store.
func (s *SQLite) KnownHost(ctx context.Context, host string) (bool, error) {
	const q = `SELECT 1 FROM instances WHERE name = ?`
	var one int
	err := s.db.QueryRowContext(ctx, q, normalize(host)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query instance %s: %w", host, err)
	}
	return true, nil
}

// RecordUnknown implements Store.
func (s *SQLite) RecordUnknown(ctx context.Context, host string) error {
	const q = `
		INSERT INTO unknown_hosts (name, failures, first_seen)
		SELECT ?1, 0, ?2
		WHERE NOT EXISTS (SELECT 1 FROM bad_hosts WHERE name = ?1)
		  AND NOT EXISTS (SELECT 1 FROM instances WHERE name = ?1)
		ON CONFLICT (name) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, normalize(host), time.Now().UTC()); err != nil {
		return fmt.Errorf("record unknown host %s: %w", host, err)
	}
	return nil
}

// Instance implements Store.
func (s *SQLite) Instance(ctx context.Context, host string) (*instance.Instance, error) {
	const q = `
		SELECT name, local_domain, software, software_version, registrations_open,
		       users, active_month, active_halfyear, local_posts, uptime, dead, up, last_update
		FROM instances WHERE name = ?`
	var r row
	err := s.db.QueryRowContext(ctx, q, normalize(host)).Scan(
		&r.name, &r.localDomain, &r.software, &r.version, &r.registrationsOpen,
		&r.users, &r.activeMonth, &r.activeHalfyear, &r.localPosts, &r.uptime, &r.dead, &r.up, &r.lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance %s: %w", host, err)
	}
	return r.instance(), nil
}

// UnknownHosts implements Store.
func (s *SQLite) UnknownHosts(ctx context.Context, limit int) ([]UnknownHost, error) {
	q := `SELECT name, failures FROM unknown_hosts ORDER BY first_seen, name`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query unknown hosts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only
	var out []UnknownHost
	for rows.Next() {
		var h UnknownHost
		if err := rows.Scan(&h.Name, &h.Failures); err != nil {
			return nil, fmt.Errorf("scan unknown host: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PromoteHost implements Store.
func (s *SQLite) PromoteHost(ctx context.Context, host string) error {
	h := normalize(host)
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO instances (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, h); err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM unknown_hosts WHERE name = ?`, h); err != nil {
			return fmt.Errorf("delete unknown host: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bad_hosts WHERE name = ?`, h); err != nil {
			return fmt.Errorf("delete bad host: %w", err)
		}
		return nil
	})
}

// RecordFailure implements Store.
func (s *SQLite) RecordFailure(ctx context.Context, host string, maxFailures int) (bool, error) {
	h := normalize(host)
	var bad bool
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var failures int
		err := tx.QueryRowContext(ctx, `SELECT failures FROM unknown_hosts WHERE name = ?`, h).Scan(&failures)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query failures: %w", err)
		}
		if failures < maxFailures {
			const q = `
				INSERT INTO unknown_hosts (name, failures, first_seen) VALUES (?, 1, ?)
				ON CONFLICT (name) DO UPDATE SET failures = failures + 1`
			if _, err := tx.ExecContext(ctx, q, h, time.Now().UTC()); err != nil {
				return fmt.Errorf("count failure: %w", err)
			}
			return nil
		}
		bad = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO bad_hosts (name, added) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`, h, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert bad host: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM unknown_hosts WHERE name = ?`, h); err != nil {
			return fmt.Errorf("delete unknown host: %w", err)
		}
		return nil
	})
	return bad, err
}

// StaleInstances implements Store.
func (s *SQLite) StaleInstances(ctx context.Context, before time.Time, limit int) ([]string, error) {
	const q = `
		SELECT name FROM instances
		WHERE last_update IS NULL OR last_update < ?
		ORDER BY RANDOM() LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale instances: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan stale instance: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// UpdateInstance implements Store.
func (s *SQLite) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	const q = `
		INSERT INTO instances (name, local_domain, software, software_version, registrations_open,
		                       users, active_month, active_halfyear, local_posts, uptime, dead, up, last_update, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (name) DO UPDATE SET
			local_domain = excluded.local_domain,
			software = excluded.software,
			software_version = excluded.software_version,
			registrations_open = excluded.registrations_open,
			users = excluded.users,
			active_month = excluded.active_month,
			active_halfyear = excluded.active_halfyear,
			local_posts = excluded.local_posts,
			uptime = excluded.uptime,
			dead = excluded.dead,
			up = excluded.up,
			last_update = excluded.last_update,
			error = NULL`
	_, err := s.db.ExecContext(ctx, q, instanceArgs(inst)...)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", inst.Host, err)
	}
	return nil
}

// MarkDead implements Store.
func (s *SQLite) MarkDead(ctx context.Context, host, reason string, at time.Time) error {
	const q = `UPDATE instances SET dead = 1, up = 0, error = ?, last_update = ? WHERE name = ?`
	if _, err := s.db.ExecContext(ctx, q, reason, at.UTC(), normalize(host)); err != nil {
		return fmt.Errorf("mark %s dead: %w", host, err)
	}
	return nil
}

func (s *SQLite) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

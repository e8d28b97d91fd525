package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver for migrations

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
)

// Postgres is a Store in a shared PostgreSQL database.
type Postgres struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	o := buildOptions(opts)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	o.logger.Debug("opened registry", "backend", "postgres")
	return &Postgres{pool: pool, dsn: dsn, logger: o.logger}, nil
}

// Migrate implements Store.
func (p *Postgres) Migrate(ctx context.Context) error {
	db, err := sql.Open("pgx", p.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("ping migration connection: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		db.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	return runMigrations("postgres", "pgx5", driver, true)
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// KnownHost implements Store.
func (p *Postgres) KnownHost(ctx context.Context, host string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM instances WHERE name = $1)`
	var ok bool
	if err := p.pool.QueryRow(ctx, q, normalize(host)).Scan(&ok); err != nil {
		return false, fmt.Errorf("query instance %s: %w", host, err)
	}
	return ok, nil
}

// RecordUnknown implements Store.
func (p *Postgres) RecordUnknown(ctx context.Context, host string) error {
	const q = `
		INSERT INTO unknown_hosts (name, failures, first_seen)
		SELECT $1, 0, NOW()
		WHERE NOT EXISTS (SELECT 1 FROM bad_hosts WHERE name = $1)
		  AND NOT EXISTS (SELECT 1 FROM instances WHERE name = $1)
		ON CONFLICT (name) DO NOTHING`
	if _, err := p.pool.Exec(ctx, q, normalize(host)); err != nil {
		return fmt.Errorf("record unknown host %s: %w", host, err)
	}
	return nil
}

// Instance implements Store.
func (p *Postgres) Instance(ctx context.Context, host string) (*instance.Instance, error) {
	const q = `
		SELECT name, local_domain, software, software_version, registrations_open,
		       users, active_month, active_halfyear, local_posts, uptime, dead, up, last_update
		FROM instances WHERE name = $1`
	var r row
	err := p.pool.QueryRow(ctx, q, normalize(host)).Scan(
		&r.name, &r.localDomain, &r.software, &r.version, &r.registrationsOpen,
		&r.users, &r.activeMonth, &r.activeHalfyear, &r.localPosts, &r.uptime, &r.dead, &r.up, &r.lastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance %s: %w", host, err)
	}
	return r.instance(), nil
}

// UnknownHosts implements Store.
func (p *Postgres) UnknownHosts(ctx context.Context, limit int) ([]UnknownHost, error) {
	q := `SELECT name, failures FROM unknown_hosts ORDER BY first_seen, name`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query unknown hosts: %w", err)
	}
	hosts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (UnknownHost, error) {
		var h UnknownHost
		err := r.Scan(&h.Name, &h.Failures)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan unknown hosts: %w", err)
	}
	return hosts, nil
}

// PromoteHost implements Store.
func (p *Postgres) PromoteHost(ctx context.Context, host string) error {
	h := normalize(host)
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO instances (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, h); err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM unknown_hosts WHERE name = $1`, h); err != nil {
			return fmt.Errorf("delete unknown host: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bad_hosts WHERE name = $1`, h); err != nil {
			return fmt.Errorf("delete bad host: %w", err)
		}
		return nil
	})
}

// RecordFailure implements Store.
func (p *Postgres) RecordFailure(ctx context.Context, host string, maxFailures int) (bool, error) {
	h := normalize(host)
	var bad bool
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var failures int
		err := tx.QueryRow(ctx, `SELECT failures FROM unknown_hosts WHERE name = $1 FOR UPDATE`, h).Scan(&failures)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("query failures: %w", err)
		}
		if failures < maxFailures {
			const q = `
				INSERT INTO unknown_hosts (name, failures, first_seen) VALUES ($1, 1, NOW())
				ON CONFLICT (name) DO UPDATE SET failures = unknown_hosts.failures + 1`
			if _, err := tx.Exec(ctx, q, h); err != nil {
				return fmt.Errorf("count failure: %w", err)
			}
			return nil
		}
		bad = true
		if _, err := tx.Exec(ctx, `INSERT INTO bad_hosts (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, h); err != nil {
			return fmt.Errorf("insert bad host: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM unknown_hosts WHERE name = $1`, h); err != nil {
			return fmt.Errorf("delete unknown host: %w", err)
		}
		return nil
	})
	return bad, err
}

// StaleInstances implements Store.
func (p *Postgres) StaleInstances(ctx context.Context, before time.Time, limit int) ([]string, error) {
	const q = `
		SELECT name FROM instances
		WHERE last_update IS NULL OR last_update < $1
		ORDER BY random() LIMIT $2`
	rows, err := p.pool.Query(ctx, q, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale instances: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan stale instances: %w", err)
	}
	return names, nil
}

// UpdateInstance implements Store.
func (p *Postgres) UpdateInstance(ctx context.Context, inst *instance.Instance) error {
	const q = `
		INSERT INTO instances (name, local_domain, software, software_version, registrations_open,
		                       users, active_month, active_halfyear, local_posts, uptime, dead, up, last_update, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULL)
		ON CONFLICT (name) DO UPDATE SET
			local_domain = EXCLUDED.local_domain,
			software = EXCLUDED.software,
			software_version = EXCLUDED.software_version,
			registrations_open = EXCLUDED.registrations_open,
			users = EXCLUDED.users,
			active_month = EXCLUDED.active_month,
			active_halfyear = EXCLUDED.active_halfyear,
			local_posts = EXCLUDED.local_posts,
			uptime = EXCLUDED.uptime,
			dead = EXCLUDED.dead,
			up = EXCLUDED.up,
			last_update = EXCLUDED.last_update,
			error = NULL`
	if _, err := p.pool.Exec(ctx, q, instanceArgs(inst)...); err != nil {
		return fmt.Errorf("update instance %s: %w", inst.Host, err)
	}
	return nil
}

// MarkDead implements Store.
func (p *Postgres) MarkDead(ctx context.Context, host, reason string, at time.Time) error {
	const q = `UPDATE instances SET dead = TRUE, up = FALSE, error = $1, last_update = $2 WHERE name = $3`
	if _, err := p.pool.Exec(ctx, q, reason, at, normalize(host)); err != nil {
		return fmt.Errorf("mark %s dead: %w", host, err)
	}
	return nil
}

// Package registry stores known fediverse hosts, the hosts seen but not yet
// vouched for, and hosts that repeatedly failed probing. It backs the host oracle.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
)

// ErrNotFound is returned when a host is not in the instances table.
var ErrNotFound = errors.New("instance not found")

// UnknownHost is a host that appeared in a profile but is not a known instance.
type UnknownHost struct {
	Name     string
	Failures int
}

// Store is the registry storage contract. Implementations are safe for concurrent use.
type Store interface {
	// KnownHost reports whether host is a known instance.
	KnownHost(ctx context.Context, host string) (bool, error)
	// RecordUnknown queues host for probing unless it is already known, queued or bad.
	RecordUnknown(ctx context.Context, host string) error
	// Instance returns stored metadata, or ErrNotFound.
	Instance(ctx context.Context, host string) (*instance.Instance, error)
	// UnknownHosts lists queued hosts, at most limit (0 means all).
	UnknownHosts(ctx context.Context, limit int) ([]UnknownHost, error)
	// PromoteHost makes host a known instance and drops it from the unknown and bad lists.
	PromoteHost(ctx context.Context, host string) error
	// RecordFailure counts a failed probe. A host that already has maxFailures
	// failures moves to the bad list instead, and bad is true.
	RecordFailure(ctx context.Context, host string, maxFailures int) (bad bool, err error)
	// StaleInstances lists known hosts not updated since before, at most limit, in random order.
	StaleInstances(ctx context.Context, before time.Time, limit int) ([]string, error)
	// UpdateInstance upserts probed metadata.
	UpdateInstance(ctx context.Context, inst *instance.Instance) error
	// MarkDead records a failed refresh of a known instance.
	MarkDead(ctx context.Context, host, reason string, at time.Time) error
	// Migrate applies schema migrations.
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	SQLitePath  string // used when PostgresDSN is empty
	PostgresDSN string
}

// Open connects to the configured backend and migrates it.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	var (
		s   Store
		err error
	)
	if cfg.PostgresDSN != "" {
		s, err = NewPostgres(ctx, cfg.PostgresDSN, opts...)
	} else {
		s, err = NewSQLite(cfg.SQLitePath, opts...)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck,gosec // already failing
		return nil, err
	}
	return s, nil
}

func normalize(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

var (
	_ instance.Lookup = (*SQLite)(nil)
	_ instance.Lookup = (*Postgres)(nil)
)

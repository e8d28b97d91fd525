package registry

import (
	"context"
	"log/slog"

	"github.com/codeGROOVE-dev/fediscan/pkg/hostcheck"
	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
)

// Oracle answers host questions from a Store. Hosts it does not know are
// queued for probing by the next refresh.
type Oracle struct {
	ctx    context.Context //nolint:containedctx // hostcheck.Oracle has no context parameter
	store  Store
	logger *slog.Logger
}

var _ hostcheck.Oracle = (*Oracle)(nil)

// NewOracle returns an Oracle bound to ctx for the lifetime of one scan.
func NewOracle(ctx context.Context, store Store, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{ctx: ctx, store: store, logger: logger}
}

// KnownHost implements hostcheck.Oracle.
func (o *Oracle) KnownHost(host string) (bool, error) {
	known, err := o.store.KnownHost(o.ctx, host)
	if err != nil {
		metrics.OracleLookups.WithLabelValues("error").Inc()
		return false, err
	}
	if known {
		metrics.OracleLookups.WithLabelValues("known").Inc()
		return true, nil
	}
	metrics.OracleLookups.WithLabelValues("unknown").Inc()
	if err := o.store.RecordUnknown(o.ctx, host); err != nil {
		o.logger.Warn("could not queue unknown host", "host", host, "error", err)
	}
	return false, nil
}

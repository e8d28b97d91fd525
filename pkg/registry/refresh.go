package registry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
)

// Defaults for a Refresher.
const (
	DefaultWorkers     = 4
	DefaultMaxFailures = 3
	DefaultStaleAfter  = 24 * time.Hour
	DefaultStaleLimit  = 200
)

// Prober reads nodeinfo for a host. *instance.Prober implements it.
type Prober interface {
	Probe(ctx context.Context, host string) (*instance.Info, error)
}

// Report summarizes one refresh pass.
type Report struct {
	Promoted []string `json:"promoted,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Bad      []string `json:"bad,omitempty"`
	Updated  []string `json:"updated,omitempty"`
	Dead     []string `json:"dead,omitempty"`
}

// Refresher probes queued and stale hosts and writes the results back.
type Refresher struct {
	store       Store
	prober      Prober
	logger      *slog.Logger
	now         func() time.Time
	workers     int
	maxFailures int
	staleAfter  time.Duration
	staleLimit  int

	mu     sync.Mutex
	report Report
}

// RefreshOption configures a Refresher.
type RefreshOption func(*Refresher)

// WithRefreshLogger sets a custom logger.
func WithRefreshLogger(logger *slog.Logger) RefreshOption {
	return func(r *Refresher) { r.logger = logger }
}

// WithWorkers bounds concurrent probes.
func WithWorkers(n int) RefreshOption {
	return func(r *Refresher) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMaxFailures sets how many failed probes an unknown host survives.
func WithMaxFailures(n int) RefreshOption {
	return func(r *Refresher) { r.maxFailures = n }
}

// WithStaleAfter sets the age after which instances are refreshed.
func WithStaleAfter(d time.Duration) RefreshOption {
	return func(r *Refresher) { r.staleAfter = d }
}

// WithStaleLimit caps instances refreshed per pass.
func WithStaleLimit(n int) RefreshOption {
	return func(r *Refresher) { r.staleLimit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RefreshOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher. prober must fetch live responses: a cached
// failure would count against a host that has since recovered.
func NewRefresher(store Store, prober Prober, opts ...RefreshOption) *Refresher {
	r := &Refresher{
		store:       store,
		prober:      prober,
		logger:      slog.Default(),
		now:         time.Now,
		workers:     DefaultWorkers,
		maxFailures: DefaultMaxFailures,
		staleAfter:  DefaultStaleAfter,
		staleLimit:  DefaultStaleLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes unknown hosts, then stale instances.
func (r *Refresher) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	r.report = Report{}
	r.mu.Unlock()

	err := errors.Join(r.unknown(ctx), r.stale(ctx))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range []*[]string{&r.report.Promoted, &r.report.Failed, &r.report.Bad, &r.report.Updated, &r.report.Dead} {
		slices.Sort(*l)
	}
	r.logger.Info("registry refreshed",
		"promoted", len(r.report.Promoted), "failed", len(r.report.Failed), "bad", len(r.report.Bad),
		"updated", len(r.report.Updated), "dead", len(r.report.Dead))
	return r.report, err
}

func (r *Refresher) unknown(ctx context.Context) error {
	hosts, err := r.store.UnknownHosts(ctx, 0)
	if err != nil {
		return err
	}
	r.logger.Debug("probing unknown hosts", "count", len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, h := range hosts {
		g.Go(func() error {
			return r.probeUnknown(gctx, h.Name)
		})
	}
	return g.Wait()
}

func (r *Refresher) probeUnknown(ctx context.Context, host string) error {
	info, err := r.prober.Probe(ctx, host)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		r.logger.Debug("unknown host failed probe", "host", host, "error", err)
		bad, ferr := r.store.RecordFailure(ctx, host, r.maxFailures)
		if ferr != nil {
			return ferr
		}
		if bad {
			r.add(&r.report.Bad, host)
		} else {
			r.add(&r.report.Failed, host)
		}
		return nil
	}
	if err := r.store.PromoteHost(ctx, host); err != nil {
		return err
	}
	inst := instance.Naked(host)
	inst.Apply(info, r.now())
	if err := r.store.UpdateInstance(ctx, inst); err != nil {
		return err
	}
	r.add(&r.report.Promoted, inst.Host)
	return nil
}

func (r *Refresher) stale(ctx context.Context) error {
	hosts, err := r.store.StaleInstances(ctx, r.now().Add(-r.staleAfter), r.staleLimit)
	if err != nil {
		return err
	}
	r.logger.Debug("refreshing stale instances", "count", len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, h := range hosts {
		g.Go(func() error {
			return r.refreshInstance(gctx, h)
		})
	}
	return g.Wait()
}

func (r *Refresher) refreshInstance(ctx context.Context, host string) error {
	info, err := r.prober.Probe(ctx, host)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		r.logger.Debug("instance failed refresh", "host", host, "error", err)
		if err := r.store.MarkDead(ctx, host, err.Error(), r.now()); err != nil {
			return err
		}
		r.add(&r.report.Dead, host)
		return nil
	}
	inst, err := r.store.Instance(ctx, host)
	if errors.Is(err, ErrNotFound) {
		inst = instance.Naked(host)
	} else if err != nil {
		return err
	}
	inst.Apply(info, r.now())
	if err := r.store.UpdateInstance(ctx, inst); err != nil {
		return err
	}
	r.add(&r.report.Updated, host)
	return nil
}

func (r *Refresher) add(list *[]string, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*list = append(*list, host)
}

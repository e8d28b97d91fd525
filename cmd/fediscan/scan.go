package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/fediscan/pkg/extract"
	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/hostcheck"
	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
	"github.com/codeGROOVE-dev/fediscan/pkg/profile"
	"github.com/codeGROOVE-dev/fediscan/pkg/registry"
	"github.com/codeGROOVE-dev/fediscan/pkg/results"
	"github.com/codeGROOVE-dev/fediscan/pkg/twitter"
	"github.com/codeGROOVE-dev/fediscan/pkg/webfinger"
)

var (
	scanCSV     bool
	scanResolve bool
	scanGroup   bool
	scanList    string
	scanOffline bool
	scanSelf    string
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Extract fediverse identities from a users JSON document",
	Long: `Scan reads one or more Twitter API v2 users responses (with the pinned tweet
expansion) from a file or stdin and prints the identities found.

Hosts that are neither branded nor in the instance registry are queued for the
next "fediscan refresh".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.BoolVar(&scanCSV, "csv", false, "print confirmed identities as a Mastodon follow import CSV")
	f.BoolVar(&scanResolve, "resolve", false, "check every confirmed identity with WebFinger")
	f.BoolVar(&scanGroup, "group", false, "group identities by instance and add software stats")
	f.StringVar(&scanList, "list", profile.Following.ID, "name of the list being scanned, for the report")
	f.BoolVar(&scanOffline, "offline", false, "do not use the instance registry; only branded hosts count")
	f.StringVar(&scanSelf, "self", "", "handle or ID of your own account; report the hosts in it the registry does not know yet")
}

type resolvedID struct {
	ID     string       `json:"id"`
	Status fedid.Status `json:"status"`
	URL    string       `json:"url"`
}

type groupReport struct {
	Host     string   `json:"host"`
	Icon     string   `json:"icon"`
	Software string   `json:"software,omitempty"`
	Stats    string   `json:"stats,omitempty"`
	Uptime   string   `json:"uptime,omitempty"`
	Dead     bool     `json:"dead,omitempty"`
	Members  []string `json:"members"`
}

type scanReport struct {
	List             profile.List           `json:"list"`
	Scanned          int                    `json:"scanned"`
	Confirmed        []*results.User        `json:"confirmed"`
	Possible         []*results.User        `json:"possible"`
	UnconfirmedHosts []string               `json:"unconfirmed_hosts,omitempty"`
	Unresolved       []string               `json:"unresolved,omitempty"`
	Resolved         []resolvedID           `json:"resolved,omitempty"`
	Groups           []groupReport          `json:"groups,omitempty"`
	Services         []instance.ServiceStat `json:"services,omitempty"`
	Relevant         []instance.Relevance   `json:"relevant,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	in, origin, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only

	resp, err := twitter.NewDecoder(twitter.WithLogger(logger)).DecodeAll(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", origin, err)
	}
	for _, p := range resp.Problems {
		logger.Warn("inconsistent users document", "error", p)
	}

	var (
		oracle hostcheck.Oracle
		store  registry.Store
	)
	if !scanOffline {
		store, err = openRegistry(ctx)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best effort
		oracle = registry.NewOracle(ctx, store, logger)
	}

	ex := extract.New(oracle, extract.WithLogger(logger))
	set := ex.ExtractBatch(ctx, resp.Records)
	confirmed, possible := set.Results()

	if scanCSV {
		return results.WriteCSV(os.Stdout, confirmed)
	}

	list, ok := profile.Pseudolist(scanList)
	if !ok {
		list = profile.List{ID: scanList, Name: scanList, Origin: profile.OriginOwned}
	}
	report := scanReport{
		List:             list,
		Scanned:          set.Scanned,
		Confirmed:        confirmed,
		Possible:         possible,
		UnconfirmedHosts: unconfirmedHosts(ex, set, resp.Records, scanSelf),
		Unresolved:       resp.Unresolved,
	}

	if scanResolve {
		fetcher, cleanup := newFetcher()
		defer cleanup()
		report.Resolved, err = resolveAll(ctx, webfinger.New(fetcher, webfinger.WithLogger(logger)), results.Identities(confirmed))
		if err != nil {
			return err
		}
	}

	if scanGroup {
		var lookup instance.Lookup
		if store != nil {
			lookup = store
		}
		groups := instance.GroupByInstance(ctx, confirmed, lookup, logger)
		report.Groups = groupReports(groups)
		report.Services = instance.ServiceStats(groups)
		report.Relevant = instance.MostRelevant(groups)
	}

	return outputJSON(os.Stdout, report)
}

// unconfirmedHosts lists hosts in the self record that only a permissive
// oracle would accept. It reuses the users already extracted into set.
func unconfirmedHosts(ex *extract.Extractor, set *results.Set, recs []*profile.Record, self string) []string {
	self = strings.TrimPrefix(strings.TrimSpace(self), "@")
	if self == "" {
		return nil
	}
	i := slices.IndexFunc(recs, func(r *profile.Record) bool {
		return r != nil && (r.ID == self || strings.EqualFold(r.Handle, self))
	})
	if i < 0 {
		logger.Warn("self account not in input", "self", self)
		return nil
	}
	rec := recs[i]
	user, _ := set.Get(rec.ID)

	var hosts []string
	for _, id := range ex.Unconfirmed(rec, user) {
		hosts = append(hosts, id.Host)
	}
	slices.Sort(hosts)
	return slices.Compact(hosts)
}

// resolveAll checks ids concurrently. Identities are memoized, so each is looked
// up at most once however often it appears.
func resolveAll(ctx context.Context, lookup fedid.Lookup, ids []*fedid.Identity) ([]resolvedID, error) {
	out := make([]resolvedID, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, viper.GetInt("workers")))
	for i, id := range ids {
		g.Go(func() error {
			out[i] = resolvedID{ID: id.String(), Status: id.Existence(gctx, lookup), URL: id.ProfileURL(gctx, lookup)}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve identities: %w", err)
	}
	return out, nil
}

func groupReports(groups []instance.Group) []groupReport {
	out := make([]groupReport, 0, len(groups))
	for _, g := range groups {
		r := groupReport{
			Host:     g.Instance.Host,
			Icon:     g.Instance.Icon(),
			Software: g.Instance.Software,
			Stats:    g.Instance.Stats(),
			Uptime:   g.Instance.UptimeString(),
			Dead:     g.Instance.Dead,
		}
		for _, m := range g.Members {
			r.Members = append(r.Members, m.ID.String())
		}
		out = append(out, r)
	}
	return out
}

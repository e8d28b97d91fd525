// Package metrics holds the Prometheus collectors shared by fediscan packages.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProfilesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fediscan_profiles_scanned_total",
		Help: "Total profile records examined.",
	})

	IdentitiesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_identities_found_total",
		Help: "Identities accepted, by extraction strategy.",
	}, []string{"strategy"})

	CandidatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_candidates_rejected_total",
		Help: "Candidates rejected by host or local-part validation, by strategy.",
	}, []string{"strategy"})

	OracleLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_oracle_lookups_total",
		Help: "Known-host oracle answers by result (known, unknown, error).",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_http_requests_total",
		Help: "HTTP GETs by outcome (cache_hit, fetched, http_error, net_error).",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fediscan_http_request_duration_seconds",
		Help:    "Outbound HTTP request duration in seconds, cache misses only.",
		Buckets: prometheus.DefBuckets,
	})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_resolutions_total",
		Help: "WebFinger existence lookups by status.",
	}, []string{"status"})

	InstanceProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fediscan_instance_probes_total",
		Help: "Nodeinfo probes by result (ok, not_fediverse, error).",
	}, []string{"result"})
)

// WriteTextfile writes every registered metric to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

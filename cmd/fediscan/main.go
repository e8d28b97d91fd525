// Command fediscan finds fediverse identities in social network profiles.
//
// Usage:
//
//	fediscan scan users.json            # extract identities from an API v2 users response
//	fediscan scan --resolve --group < users.json
//	fediscan resolve alice@example.social
//	fediscan handles follows.txt        # validate a handle list
//	fediscan refresh                    # probe unknown and stale instances
//	fediscan migrate                    # create or upgrade the instance registry
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codeGROOVE-dev/fediscan/pkg/httpcache"
	"github.com/codeGROOVE-dev/fediscan/pkg/metrics"
	"github.com/codeGROOVE-dev/fediscan/pkg/registry"
)

var (
	cfgFile     string
	debug       bool
	metricsFile string
	logger      = slog.Default()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fediscan",
	Short: "Find fediverse identities in social network profiles",
	Long: `fediscan scans profile records (names, bios, locations, links and pinned
posts) for fediverse identities such as @alice@example.social, and can verify
them against the instances that host them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return loadConfig(cmd)
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if metricsFile == "" {
			return nil
		}
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.Debug("metrics written", "path", metricsFile)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.fediscan/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.String("registry", "", "sqlite registry path (default ~/.fediscan/registry.db)")
	pf.String("postgres-dsn", "", "use a PostgreSQL registry instead of sqlite")
	pf.Duration("cache-ttl", 7*24*time.Hour, "HTTP cache time-to-live; 0 disables caching")
	pf.Duration("timeout", 10*time.Minute, "overall deadline for a command")
	pf.Int("workers", registry.DefaultWorkers, "concurrent network operations")
	pf.Duration("rate-interval", time.Second, "minimum spacing between requests to one host")

	rootCmd.AddCommand(scanCmd, resolveCmd, handlesCmd, refreshCmd, migrateCmd)
}

func loadConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir() //nolint:errcheck // empty home falls back to defaults
		viper.AddConfigPath(filepath.Join(home, ".fediscan"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("FEDISCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{"registry", "postgres-dsn", "cache-ttl", "timeout", "workers", "rate-interval"} {
		if err := viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" { //nolint:errorlint // viper returns the value type
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		logger.Debug("loaded config", "path", viper.ConfigFileUsed())
	}
	return nil
}

// commandContext applies the configured overall timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := viper.GetDuration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func openRegistry(ctx context.Context) (registry.Store, error) {
	path := viper.GetString("registry")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		path = filepath.Join(home, ".fediscan", "registry.db")
	}
	return registry.Open(ctx, registry.Config{
		SQLitePath:  path,
		PostgresDSN: viper.GetString("postgres_dsn"),
	}, registry.WithLogger(logger))
}

// newFetcher returns a fetcher backed by the response cache and a cleanup func
// for the cache.
func newFetcher() (*httpcache.Fetcher, func()) {
	cleanup := func() {}
	var cache httpcache.Cacher
	if ttl := viper.GetDuration("cache_ttl"); ttl > 0 {
		c, err := httpcache.New(ttl)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			cache = c
			cleanup = func() {
				if err := c.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}
			logger.Debug("HTTP cache initialized", "ttl", ttl.String())
		}
	}
	return fetcherWith(cache), cleanup
}

// liveFetcher returns an uncached fetcher. Instance checks record liveness, so
// they must see the host as it is now, not a response from an earlier run.
func liveFetcher() *httpcache.Fetcher {
	return fetcherWith(nil)
}

func fetcherWith(cache httpcache.Cacher) *httpcache.Fetcher {
	return httpcache.NewFetcher(cache,
		httpcache.WithLogger(logger),
		httpcache.WithRateInterval(viper.GetDuration("rate_interval")))
}

// openInput returns stdin for "" or "-", else the named file.
func openInput(args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("open input: %w", err)
	}
	return f, args[0], nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

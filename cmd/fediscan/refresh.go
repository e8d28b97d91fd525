package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codeGROOVE-dev/fediscan/pkg/instance"
	"github.com/codeGROOVE-dev/fediscan/pkg/registry"
)

var (
	refreshMaxFailures int
	refreshStaleLimit  int
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Probe queued hosts and refresh stale instance metadata",
	Long: `Refresh reads nodeinfo from every host queued by earlier scans. Hosts that
speak ActivityPub become known instances; hosts that keep failing are dropped.
It then re-probes known instances whose metadata is older than a day and marks
unreachable ones dead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best effort

		r := registry.NewRefresher(store, instance.NewProber(liveFetcher(), instance.WithLogger(logger)),
			registry.WithRefreshLogger(logger),
			registry.WithWorkers(viper.GetInt("workers")),
			registry.WithMaxFailures(refreshMaxFailures),
			registry.WithStaleLimit(refreshStaleLimit))
		report, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("refresh registry: %w", err)
		}
		return outputJSON(os.Stdout, report)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the instance registry schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		// Open migrates.
		store, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		logger.Info("registry is up to date")
		return store.Close()
	},
}

func init() {
	refreshCmd.Flags().IntVar(&refreshMaxFailures, "max-failures", registry.DefaultMaxFailures, "failed probes before a host is dropped")
	refreshCmd.Flags().IntVar(&refreshStaleLimit, "stale-limit", registry.DefaultStaleLimit, "instances refreshed per run")
}

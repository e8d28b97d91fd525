package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
	"github.com/codeGROOVE-dev/fediscan/pkg/webfinger"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <local@host> [local@host] ...",
	Short: "Check identities with WebFinger and print their profile URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]*fedid.Identity, 0, len(args))
		for _, a := range args {
			id, err := fedid.Parse(a)
			if err != nil {
				return fmt.Errorf("invalid identity %q: %w", a, err)
			}
			ids = append(ids, id)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		fetcher, cleanup := newFetcher()
		defer cleanup()

		resolved, err := resolveAll(ctx, webfinger.New(fetcher, webfinger.WithLogger(logger)), ids)
		if err != nil {
			return err
		}
		return outputJSON(os.Stdout, resolved)
	},
}

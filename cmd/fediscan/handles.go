package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/fediscan/pkg/twitter"
)

var handlesCmd = &cobra.Command{
	Use:   "handles [file]",
	Short: "Parse a list of usernames, one per line",
	Long: `Handles reads usernames ("alice", "@alice", "https://x.com/alice") one per line
and reports which lines could not be parsed, by origin and line number.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		in, origin, err := openInput(args)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck // read-only

		handles, invalid, err := twitter.ParseHandles(in, origin)
		if err != nil {
			return err
		}
		for _, h := range invalid {
			logger.Warn("invalid handle", "origin", h.Origin, "line", h.Line, "text", h.Text)
		}
		return outputJSON(os.Stdout, struct {
			Handles []twitter.Handle `json:"handles"`
			Invalid []twitter.Handle `json:"invalid,omitempty"`
		}{handles, invalid})
	},
}

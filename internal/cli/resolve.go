package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"deliverycost/internal/destination"
	"deliverycost/internal/geo"
)

func resolveCmd(_ *globals) *cobra.Command {
	var fuzzy float64

	c := &cobra.Command{
		Use:   "resolve <destination>",
		Short: "Resolve a free-text destination to a wilaya and commune",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := geo.Default()
			if err != nil {
				return err
			}
			var opts []destination.Option
			if fuzzy > 0 {
				opts = append(opts, destination.WithTypoTolerance(fuzzy))
			}
			res, err := destination.NewMatcher(dir, opts...).ResolveText(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	c.Flags().Float64Var(&fuzzy, "fuzzy", 0, "typo tolerance threshold between 0 and 1 (0 disables)")
	return c
}

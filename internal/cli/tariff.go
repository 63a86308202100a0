package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func tariffCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tariff <service> <wilaya> [commune]",
		Short: "Show one tariff, or every tariff of a wilaya when no commune is given",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(args[1])
			if err != nil || code < 1 {
				return fmt.Errorf("wilaya must be a positive number, got %q", args[1])
			}
			st, err := g.stack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer st.Close(cmd.Context())

			if len(args) == 2 {
				recs, err := st.Engine.ListTariffs(cmd.Context(), args[0], code)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), recs)
			}
			rec, err := st.Engine.GetTariff(cmd.Context(), args[0], code, args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

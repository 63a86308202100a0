package cli

import (
	"github.com/spf13/cobra"

	"deliverycost/internal/engine"
)

func quoteCmd(g *globals) *cobra.Command {
	var q engine.Quote

	c := &cobra.Command{
		Use:   "quote",
		Short: "Price a parcel against the configured tariff sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := g.stack(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer st.Close(cmd.Context())

			priced, err := st.Engine.Price(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), priced)
		},
	}

	c.Flags().StringVarP(&q.Service, "service", "s", "", "delivery service (required)")
	c.Flags().StringVarP(&q.Destination, "destination", "d", "", "free-text destination (required)")
	c.Flags().Float64VarP(&q.Weight, "weight", "w", 0, "actual weight in kg")
	c.Flags().Float64Var(&q.Dimensions.Length, "length", 0, "length in cm")
	c.Flags().Float64Var(&q.Dimensions.Width, "width", 0, "width in cm")
	c.Flags().Float64Var(&q.Dimensions.Height, "height", 0, "height in cm")
	c.Flags().Float64Var(&q.DeclaredValue, "declared", 0, "declared value for cash on delivery")
	c.Flags().StringVarP(&q.DeliveryType, "type", "t", "home", "home or office")

	_ = c.MarkFlagRequired("service")
	_ = c.MarkFlagRequired("destination")
	return c
}

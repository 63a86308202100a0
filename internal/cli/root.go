// Package cli implements pricectl, the operator command line for the
// pricing engine.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deliverycost/internal/bootstrap"
	"deliverycost/internal/config"
	"deliverycost/internal/logging"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:          "pricectl",
		Short:        "Resolve destinations, price parcels and manage tariff data",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(resolveCmd(g), quoteCmd(g), tariffCmd(g), importCmd(g))
	return cmd
}

func (g *globals) logger(cmd *cobra.Command) *zap.Logger {
	return logging.NewWriter(logging.Config{Level: g.logLevel, Format: "console"}, cmd.ErrOrStderr())
}

// stack builds the engine from the environment, the same way the API
// server does.
func (g *globals) stack(ctx context.Context, cmd *cobra.Command) (*bootstrap.Stack, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.Build(ctx, cfg, bootstrap.Options{Logger: g.logger(cmd)})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

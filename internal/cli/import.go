package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deliverycost/internal/bootstrap"
	"deliverycost/internal/config"
	"deliverycost/internal/db"
	"deliverycost/internal/geo"
	"deliverycost/internal/tariff"
	"deliverycost/internal/tariff/flatfile"
	tariffmongo "deliverycost/internal/tariff/mongo"
	"deliverycost/internal/tariff/postgres"
)

func importCmd(g *globals) *cobra.Command {
	var (
		service string
		target  string
		strict  bool
	)

	c := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Validate a carrier CSV export and optionally load it into a tariff store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			recs, err := flatfile.Parse(f, service)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			dir, err := geo.Default()
			if err != nil {
				return err
			}
			unknown := unknownCommunes(dir, recs)
			for _, r := range unknown {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not a known commune of wilaya %02d\n", r.Commune, r.WilayaCode)
			}
			if strict && len(unknown) > 0 {
				return fmt.Errorf("%d unknown communes", len(unknown))
			}

			out := cmd.OutOrStdout()
			if target == "" {
				fmt.Fprintf(out, "%d %s tariffs valid\n", len(recs), service)
				return nil
			}
			n, err := g.upsert(cmd, target, recs)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d %s tariffs written to %s\n", n, service, target)
			return nil
		},
	}

	c.Flags().StringVarP(&service, "service", "s", "", "delivery service the export belongs to (required)")
	c.Flags().StringVar(&target, "to", "", "store to write to: postgres or mongo (validate only when empty)")
	c.Flags().BoolVar(&strict, "strict", false, "fail on communes missing from the reference data")

	_ = c.MarkFlagRequired("service")
	return c
}

func unknownCommunes(dir *geo.Directory, recs []tariff.Record) []tariff.Record {
	var out []tariff.Record
	for _, r := range recs {
		if _, ok := dir.Commune(r.WilayaCode, r.Commune); !ok {
			out = append(out, r)
		}
	}
	return out
}

func (g *globals) upsert(cmd *cobra.Command, target string, recs []tariff.Record) (int, error) {
	ctx := cmd.Context()
	cfg := config.Load()
	log := g.logger(cmd)

	switch strings.ToLower(target) {
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return 0, err
		}
		defer pool.Close()
		src := postgres.New(pool)
		if err := src.Migrate(ctx); err != nil {
			return 0, err
		}
		return src.Upsert(ctx, recs)

	case config.SourceMongo:
		m, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := m.Disconnect(ctx); err != nil {
				log.Warn("mongo disconnect", zap.Error(err))
			}
		}()
		src := tariffmongo.New(m.Database, bootstrap.MongoCollection)
		if err := src.EnsureIndexes(ctx); err != nil {
			return 0, err
		}
		return src.Upsert(ctx, recs)
	}
	return 0, fmt.Errorf("unknown import target %q (want postgres or mongo)", target)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shelfmatch/internal/ingest"
	"github.com/sells-group/shelfmatch/internal/model"
)

var (
	unifyInput string
	unifyOut   string
	unifyShops int
)

var unifyCmd = &cobra.Command{
	Use:   "unify",
	Short: "Unify a listings file into products",
	Long: `Reads listings (CSV, TSV, XLSX or JSON array), runs the full pipeline and
writes the unified products.

Examples:
  # Offline run with the hash embedder
  SHELFMATCH_EMBEDDING_PROVIDER=hash shelfmatch unify --input listings.csv

  # Five shops, write JSON
  shelfmatch unify --input listings.xlsx --shops 5 --out result.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("shops") {
			cfg.Pipeline.ShopCount = unifyShops
		}

		listings, err := ingest.ReadListings(ctx, unifyInput)
		if err != nil {
			return eris.Wrap(err, "unify: read listings")
		}
		zap.L().Info("listings loaded", zap.String("input", unifyInput), zap.Int("listings", len(listings)))

		env, err := initPipeline(ctx)
		if err != nil {
			return eris.Wrap(err, "unify: init pipeline")
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, listings)
		if err != nil {
			return eris.Wrap(err, "unify: run")
		}

		if env.Store != nil {
			if err := env.Store.SaveRun(ctx, result); err != nil {
				return eris.Wrap(err, "unify: save run")
			}
			zap.L().Info("run saved", zap.String("run_id", result.RunID), zap.String("driver", cfg.Store.Driver))
		}

		if unifyOut != "" {
			if err := writeResultJSON(unifyOut, result); err != nil {
				return err
			}
			zap.L().Info("result written", zap.String("path", unifyOut))
		}

		formatRunSummary(os.Stdout, result)
		return nil
	},
}

func init() {
	unifyCmd.Flags().StringVar(&unifyInput, "input", "", "listings file (.csv, .tsv, .xlsx, .json)")
	unifyCmd.Flags().StringVar(&unifyOut, "out", "", "write the run result as JSON to this path")
	unifyCmd.Flags().IntVar(&unifyShops, "shops", 0, "number of shops; caps product size (overrides pipeline.shop_count)")
	_ = unifyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(unifyCmd)
}

// writeResultJSON writes result as indented JSON to path.
func writeResultJSON(path string, result *model.RunResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "unify: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return eris.Wrap(err, "unify: encode result")
	}
	return nil
}

// formatRunSummary writes the run statistics to w.
func formatRunSummary(out io.Writer, r *model.RunResult) {
	s := r.Stats
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.RunID)
	_, _ = fmt.Fprintf(w, "Listings:\t%d\n", s.Listings)
	_, _ = fmt.Fprintf(w, "Buckets:\t%d\n", s.Buckets)
	_, _ = fmt.Fprintf(w, "Products:\t%d\n", s.Products)
	_, _ = fmt.Fprintf(w, "  Singletons:\t%d\n", s.Singletons)
	_, _ = fmt.Fprintf(w, "Unknown brand:\t%d\n", s.UnknownBrand)
	_, _ = fmt.Fprintf(w, "No size:\t%d\n", s.NoSize)
	if s.FallbackBuckets > 0 {
		_, _ = fmt.Fprintf(w, "Fallback buckets:\t%d\n", s.FallbackBuckets)
	}
	if s.BypassedBuckets > 0 {
		_, _ = fmt.Fprintf(w, "Bypassed buckets:\t%d\n", s.BypassedBuckets)
	}
	if s.SameShopSplits > 0 {
		_, _ = fmt.Fprintf(w, "Same-shop splits:\t%d\n", s.SameShopSplits)
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.Duration().Round(time.Millisecond))
	_ = w.Flush()
}

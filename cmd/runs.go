package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelfmatch/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored unification runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if st == nil {
			return eris.New("runs: no store configured (set SHELFMATCH_STORE_DRIVER)")
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs: list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tLISTINGS\tPRODUCTS\tSINGLETONS\tFALLBACK")
	_, _ = fmt.Fprintln(w, "--\t-------\t--------\t--------\t--------\t----------\t--------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Stats.Listings,
			r.Stats.Products,
			r.Stats.Singletons,
			r.Stats.FallbackBuckets,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

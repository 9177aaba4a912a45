package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/shelfmatch/internal/brand"
)

var brandsCheck string

var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "Validate a brand dictionary",
	Long:  "Loads a brand dictionary (YAML or one brand per line) and reports brand and pattern counts plus spellings claimed by more than one brand. Without --check the configured dictionary is used.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := brandsCheck
		if path == "" {
			path = cfg.Brands.Path
		}
		dict, err := loadDictionary(path)
		if err != nil {
			return err
		}
		formatDictionaryReport(os.Stdout, path, dict)
		return nil
	},
}

func init() {
	brandsCmd.Flags().StringVar(&brandsCheck, "check", "", "dictionary file to validate")
	rootCmd.AddCommand(brandsCmd)
}

// formatDictionaryReport writes dictionary counts and duplicate spellings to w.
func formatDictionaryReport(out io.Writer, path string, d *brand.Dictionary) {
	if path == "" {
		path = "(built-in)"
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Dictionary:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Brands:\t%d\n", d.Len())
	_, _ = fmt.Fprintf(w, "Patterns:\t%d\n", d.Patterns())
	_, _ = fmt.Fprintf(w, "Duplicates:\t%d\n", len(d.Duplicates()))
	for _, dup := range d.Duplicates() {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", dup.Pattern, strings.Join(dup.Brands, ", "))
	}
	_ = w.Flush()
}

package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelfmatch/internal/brand"
	"github.com/sells-group/shelfmatch/internal/group"
	"github.com/sells-group/shelfmatch/internal/normalize"
	"github.com/sells-group/shelfmatch/internal/parse"
)

var parseCmd = &cobra.Command{
	Use:   "parse <title>...",
	Short: "Show how titles are normalized and parsed",
	Long:  "Prints the normalized title, brand, components and constraint key of each title. Useful when tuning the brand dictionary or parse rules.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dict, err := loadDictionary(cfg.Brands.Path)
		if err != nil {
			return err
		}
		return writeTitleReports(os.Stdout, brand.NewExtractor(dict), parse.New(), args)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

// titleReport is the parse breakdown of one title.
type titleReport struct {
	Title       string   `json:"title"`
	Normalized  string   `json:"normalized"`
	Brand       string   `json:"brand"`
	BrandSource string   `json:"brand_source"`
	Residual    string   `json:"residual"`
	BaseProduct string   `json:"base_product"`
	Size        string   `json:"size"`
	Package     string   `json:"package"`
	Variants    []string `json:"variants,omitempty"`
	Key         string   `json:"key"`
}

func describeTitle(ex *brand.Extractor, p *parse.Parser, title string) titleReport {
	norm := normalize.Title(title)
	res := ex.Extract(title, norm)
	pc := p.Parse(res.Residual)
	pc.Brand = res.Brand
	pc.Normalized = norm

	key := group.Key(pc)
	return titleReport{
		Title:       title,
		Normalized:  norm.String(),
		Brand:       res.Brand,
		BrandSource: string(res.Source),
		Residual:    res.Residual.String(),
		BaseProduct: pc.BaseProduct,
		Size:        key.Size,
		Package:     key.Package,
		Variants:    pc.Variants,
		Key:         key.String(),
	}
}

func writeTitleReports(out io.Writer, ex *brand.Extractor, p *parse.Parser, titles []string) error {
	reports := make([]titleReport, len(titles))
	for i, t := range titles {
		reports[i] = describeTitle(ex, p, t)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return eris.Wrap(err, "parse: encode")
	}
	return nil
}

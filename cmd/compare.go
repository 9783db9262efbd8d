package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/model"
)

var (
	compareLimit    int
	compareExact    bool
	compareDetailed bool
	compareJSON     bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <query>",
	Short: "Compare prices for a product across all marketplaces",
	Long:  "Accepts free text, a JAN code or a marketplace identifier such as an ASIN. Marketplace identifiers are resolved to JAN codes first when a Perplexity key is configured.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")
		var records []model.ProductRecord
		switch {
		case compareDetailed:
			records = env.engine.DetailedProducts(cmd.Context(), query, compareLimit)
		case compareExact:
			records = env.engine.CompareExact(cmd.Context(), query, compareLimit)
		default:
			records = env.engine.Compare(cmd.Context(), query, compareLimit)
		}

		recordSearchHistory(cmd, env, query, records)

		if compareJSON {
			return printJSON(records)
		}
		printRecordsTable(records)
		return nil
	},
}

func recordSearchHistory(cmd *cobra.Command, env *appEnv, query string, records []model.ProductRecord) {
	cheapest := 0
	for _, rec := range records {
		if rec.Price > 0 && (cheapest == 0 || rec.Price < cheapest) {
			cheapest = rec.Price
		}
	}
	if err := env.store.RecordSearch(cmd.Context(), query, len(records), cheapest); err != nil {
		zap.L().Debug("record search failed", zap.Error(err))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecordsTable(records []model.ProductRecord) {
	if len(records) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPRICE\tSHOP\tAVAILABLE\tTITLE")
	for _, rec := range records {
		title := rec.Title
		if len([]rune(title)) > 48 {
			title = string([]rune(title)[:45]) + "..."
		}
		marker := ""
		if rec.Placeholder {
			marker = " (estimated)"
		}
		fmt.Fprintf(w, "%s\t¥%d%s\t%s\t%t\t%s\n",
			rec.Source, rec.Price, marker, rec.ShopName, rec.Availability, title)
	}
	w.Flush()
}

func init() {
	compareCmd.Flags().IntVar(&compareLimit, "limit", 10, "max results per source")
	compareCmd.Flags().BoolVar(&compareExact, "exact", false, "compare the literal identifier, skipping keyword expansion")
	compareCmd.Flags().BoolVar(&compareDetailed, "detailed", false, "show all offers price-sorted without the proximity filter")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(compareCmd)
}

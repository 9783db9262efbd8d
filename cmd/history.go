package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.store.RecentSearches(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no searches yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tQUERY\tRESULTS\tCHEAPEST")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t¥%d\n",
				rec.SearchedAt.Format("2006-01-02 15:04"), rec.Query,
				rec.ResultCount, rec.CheapestPrice)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of searches to show")
	rootCmd.AddCommand(historyCmd)
}

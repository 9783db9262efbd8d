package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the stock watchlist",
}

var watchAddTitle string

var watchAddCmd = &cobra.Command{
	Use:   "add <source> <marketplace-id>",
	Short: "Watch a listing for price and availability changes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		item, err := env.store.AddWatch(cmd.Context(), model.WatchItem{
			Source:        model.Source(args[0]),
			MarketplaceID: args[1],
			Title:         watchAddTitle,
		})
		if err != nil {
			return err
		}
		fmt.Println(item.ID)
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.store.ListWatches(cmd.Context(), store.WatchFilter{Limit: 500})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("no watches")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tITEM\tLAST PRICE\tAVAILABLE\tCHECKED")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t¥%d\t%t\t%s\n",
				item.ID, item.Source, item.MarketplaceID,
				item.LastPrice, item.LastAvailable,
				item.CheckedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Stop watching a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return env.store.RemoveWatch(cmd.Context(), args[0])
	},
}

var watchCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Re-check all stale watches once",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		changes, err := env.monitor.CheckAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("no changes")
			return nil
		}
		for _, c := range changes {
			fmt.Printf("%s %s: ¥%d -> ¥%d (available: %t)\n",
				c.Watch.Source, c.Watch.MarketplaceID,
				c.Watch.LastPrice, c.NewPrice, c.NewAvailable)
		}
		return nil
	},
}

func init() {
	watchAddCmd.Flags().StringVar(&watchAddTitle, "title", "", "display title for the watch")
	watchCmd.AddCommand(watchAddCmd, watchListCmd, watchRemoveCmd, watchCheckCmd)
	rootCmd.AddCommand(watchCmd)
}

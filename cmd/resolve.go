package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resolveTitle string

var resolveCmd = &cobra.Command{
	Use:   "resolve <marketplace-id>",
	Short: "Resolve a marketplace identifier to a JAN code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		jan, ok := env.resolver.ResolveJAN(cmd.Context(), args[0], resolveTitle)
		if !ok {
			return eris.Errorf("could not resolve %s to a JAN code", args[0])
		}
		fmt.Println(jan)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "product title hint for the lookup")
	rootCmd.AddCommand(resolveCmd)
}

package main

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/model"
)

var (
	batchFile   string
	batchExpand int
	batchLimit  int
)

var batchCmd = &cobra.Command{
	Use:   "batch [queries...]",
	Short: "Compare prices for many queries in one run",
	Long:  "Queries come from arguments or --file (one per line). Queries are processed in chunks with a pause between chunks to stay polite to the upstream APIs. With --expand N each query additionally contributes up to N AI-generated related keywords.",
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := collectQueries(args)
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return eris.New("no queries given")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if batchExpand > 0 {
			var expanded []string
			for _, q := range queries {
				expanded = append(expanded, q)
				expanded = append(expanded, env.expander.Expand(cmd.Context(), q, batchExpand)...)
			}
			queries = expanded
		}

		chunkSize := env.cfg.Compare.BatchSize
		if chunkSize <= 0 {
			chunkSize = 20
		}

		all, err := runBatch(cmd.Context(), env.engine, queries, chunkSize, batchLimit, time.Second)
		if err != nil {
			return err
		}
		return printJSON(all)
	},
}

type batchComparer interface {
	Compare(ctx context.Context, query string, limit int) []model.ProductRecord
}

// runBatch compares each query on its own so one query's cheap results never
// threshold-filter another's. Chunking only paces the upstream calls.
func runBatch(ctx context.Context, e batchComparer, queries []string, chunkSize, limit int, pause time.Duration) ([]model.ProductRecord, error) {
	var all []model.ProductRecord
	for start := 0; start < len(queries); start += chunkSize {
		end := start + chunkSize
		if end > len(queries) {
			end = len(queries)
		}
		chunk := queries[start:end]
		zap.L().Info("processing batch chunk",
			zap.Int("from", start), zap.Int("size", len(chunk)))
		for _, q := range chunk {
			all = append(all, e.Compare(ctx, q, limit)...)
		}

		if end < len(queries) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return all, nil
}

func collectQueries(args []string) ([]string, error) {
	queries := append([]string{}, args...)
	if batchFile == "" {
		return queries, nil
	}
	f, err := os.Open(batchFile)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", batchFile)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	return queries, eris.Wrap(scanner.Err(), "read queries")
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one query per line")
	batchCmd.Flags().IntVar(&batchExpand, "expand", 0, "add up to N related keywords per query")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 5, "max results per source per query")
	rootCmd.AddCommand(batchCmd)
}

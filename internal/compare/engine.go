// Package compare aggregates price quotes across marketplace sources. Each
// source is queried concurrently and in isolation: one source failing, or
// even panicking, never takes down the whole comparison.
package compare

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/resellkit/pricescope/internal/classify"
	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resolve"
	"github.com/resellkit/pricescope/internal/source"
)

// DefaultThreshold keeps quotes within 90% above the cheapest one.
const DefaultThreshold = 0.9

type Engine struct {
	sources   []source.Client
	resolver  *resolve.Resolver
	threshold float64
}

// New builds an engine over the given sources. resolver may be nil, in which
// case marketplace identifiers are searched as-is instead of being resolved
// to JAN codes first.
func New(sources []source.Client, resolver *resolve.Resolver, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{sources: sources, resolver: resolver, threshold: threshold}
}

// Compare fans the query out to every source and returns usable quotes
// sorted by ascending price, filtered to those within the price threshold of
// the cheapest. The result is never nil.
func (e *Engine) Compare(ctx context.Context, query string, limit int) []model.ProductRecord {
	metrics.CompareRequests.WithLabelValues("compare").Inc()
	if strings.TrimSpace(query) == "" {
		return []model.ProductRecord{}
	}
	records := e.collect(ctx, e.searchQueries(ctx, query), limit)
	sortByPrice(records)
	return e.filterByThreshold(records)
}

// CompareExact compares quotes for one exact product identified by a JAN
// code or marketplace ID. The identifier is searched literally, with no
// keyword expansion; the threshold filter applies as in Compare.
func (e *Engine) CompareExact(ctx context.Context, identifier string, limit int) []model.ProductRecord {
	metrics.CompareRequests.WithLabelValues("compare_exact").Inc()
	if strings.TrimSpace(identifier) == "" {
		return []model.ProductRecord{}
	}
	records := e.collect(ctx, e.searchQueries(ctx, identifier), limit)
	sortByPrice(records)
	return e.filterByThreshold(records)
}

// CompareMulti runs one independent comparison cycle per query, concatenates
// the results, then sorts and threshold-filters the union once. A failure in
// one cycle does not affect the others.
func (e *Engine) CompareMulti(ctx context.Context, queries []string, limit int) []model.ProductRecord {
	metrics.CompareRequests.WithLabelValues("compare_multi").Inc()
	records := []model.ProductRecord{}
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		records = append(records, e.collect(ctx, e.searchQueries(ctx, q), limit)...)
	}
	sortByPrice(records)
	return e.filterByThreshold(records)
}

// DetailedProducts returns the richest records for a query, sorted by
// ascending price and without the threshold filter. Ranking score breaks
// ties among equal prices only.
func (e *Engine) DetailedProducts(ctx context.Context, query string, limit int) []model.ProductRecord {
	metrics.CompareRequests.WithLabelValues("detailed").Inc()
	if strings.TrimSpace(query) == "" {
		return []model.ProductRecord{}
	}
	records := e.collect(ctx, e.searchQueries(ctx, query), limit)
	sortByPrice(records)
	return records
}

// searchQueries upgrades a marketplace identifier to its JAN code when a
// resolver is wired. The original identifier stays in the list after the JAN
// so sources that only know their own IDs still find the product.
func (e *Engine) searchQueries(ctx context.Context, query string) []string {
	if e.resolver == nil || classify.Classify(query) != classify.MarketplaceID {
		return []string{query}
	}
	if jan, ok := e.resolver.ResolveJAN(ctx, query, ""); ok && jan != query {
		zap.L().Debug("identifier resolved for comparison",
			zap.String("id", query), zap.String("jan", jan))
		return []string{jan, query}
	}
	return []string{query}
}

// collect runs one fan-out per query and unions the results, keeping the
// first occurrence of each record. Query order is priority order.
func (e *Engine) collect(ctx context.Context, queries []string, limit int) []model.ProductRecord {
	records := []model.ProductRecord{}
	seen := map[string]bool{}
	for _, query := range queries {
		for _, rec := range e.collectOne(ctx, query, limit) {
			key := dedupeKey(rec)
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, rec)
		}
	}
	return records
}

func (e *Engine) collectOne(ctx context.Context, query string, limit int) []model.ProductRecord {
	if limit <= 0 {
		limit = source.DefaultLimit
	}
	var (
		mu      sync.Mutex
		records = []model.ProductRecord{}
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(e.sources) + 1)
	for _, src := range e.sources {
		g.Go(func() error {
			for _, rec := range e.fetchIsolated(ctx, src, query, limit) {
				if !rec.Usable() {
					continue
				}
				normalizeShopName(&rec)
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return records
}

func dedupeKey(rec model.ProductRecord) string {
	if rec.Marketplace != "" {
		return string(rec.Source) + "\x00" + rec.Marketplace
	}
	return string(rec.Source) + "\x00" + rec.ShopName + "\x00" + rec.Title
}

// fetchIsolated shields the fan-out from a misbehaving source client.
func (e *Engine) fetchIsolated(ctx context.Context, src source.Client, query string, limit int) (records []model.ProductRecord) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SourceFailures.WithLabelValues(string(src.Source())).Inc()
			zap.L().Error("source client panicked",
				zap.String("source", string(src.Source())), zap.Any("panic", r))
			records = nil
		}
	}()
	return src.FetchQuotes(ctx, query, limit)
}

// normalizeShopName applies the shop name fallback chain: explicit name,
// then the source's display name, then the unknown-shop marker.
func normalizeShopName(rec *model.ProductRecord) {
	if rec.ShopName != "" {
		return
	}
	if name := rec.Source.DisplayName(); name != "" {
		rec.ShopName = name
		return
	}
	rec.ShopName = model.UnknownShop
}

func sortByPrice(records []model.ProductRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Price != records[j].Price {
			return records[i].Price < records[j].Price
		}
		return records[i].RankingScore() > records[j].RankingScore()
	})
}

// filterByThreshold drops quotes priced more than threshold above the
// cheapest priced quote. Zero-price records pass through untouched since
// they carry no comparable price.
func (e *Engine) filterByThreshold(records []model.ProductRecord) []model.ProductRecord {
	min := 0
	for _, rec := range records {
		if rec.Price > 0 && (min == 0 || rec.Price < min) {
			min = rec.Price
		}
	}
	if min == 0 {
		return records
	}
	cutoff := float64(min) * (1 + e.threshold)
	out := records[:0]
	for _, rec := range records {
		if rec.Price == 0 || float64(rec.Price) <= cutoff {
			out = append(out, rec)
		}
	}
	return out
}

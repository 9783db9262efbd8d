package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/internal/compare"
	"github.com/resellkit/pricescope/internal/config"
	"github.com/resellkit/pricescope/internal/keywords"
	"github.com/resellkit/pricescope/internal/monitor"
	"github.com/resellkit/pricescope/internal/resolve"
	"github.com/resellkit/pricescope/internal/source"
	"github.com/resellkit/pricescope/internal/source/amazon"
	"github.com/resellkit/pricescope/internal/source/rakuten"
	"github.com/resellkit/pricescope/internal/source/yahoo"
	"github.com/resellkit/pricescope/internal/store"
	"github.com/resellkit/pricescope/pkg/anthropic"
	"github.com/resellkit/pricescope/pkg/perplexity"
)

// appEnv wires the full dependency graph once per command invocation.
type appEnv struct {
	cfg          *config.Config
	searchCaches []*cache.SearchCache
	idCache      *cache.IdentifierCache
	store       *store.SQLiteStore
	sources     []source.Client
	resolver    *resolve.Resolver
	engine      *compare.Engine
	expander    *keywords.Expander
	monitor     *monitor.Monitor
}

func initEnv(ctx context.Context) (*appEnv, error) {
	floors := source.NewFloors(cfg.Compare.Floors, cfg.Compare.BaseFloor)

	searchTTL := time.Duration(cfg.Cache.SearchTTLHours) * time.Hour
	if searchTTL <= 0 {
		searchTTL = cache.DefaultSearchTTL
	}
	idTTL := time.Duration(cfg.Cache.IdentifierTTLDays) * 24 * time.Hour
	if idTTL <= 0 {
		idTTL = cache.DefaultIdentifierTTL
	}
	// each source client owns its cache file exclusively
	amazonCache := cache.NewSearchCache(filepath.Join(cfg.Cache.Dir, "amazon-search.json"), searchTTL)
	rakutenCache := cache.NewSearchCache(filepath.Join(cfg.Cache.Dir, "rakuten-search.json"), searchTTL)
	yahooCache := cache.NewSearchCache(filepath.Join(cfg.Cache.Dir, "yahoo-search.json"), searchTTL)
	idCache := cache.NewIdentifierCache(filepath.Join(cfg.Cache.Dir, "identifiers.json"), idTTL)

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sources := []source.Client{
		amazon.New(amazon.Config{
			AccessKey:  cfg.Amazon.AccessKey,
			SecretKey:  cfg.Amazon.SecretKey,
			PartnerTag: cfg.Amazon.PartnerTag,
			Endpoint:   cfg.Amazon.Endpoint,
			SiteURL:    cfg.Amazon.SiteURL,
			Region:     cfg.Amazon.Region,
		}, amazonCache, floors),
		rakuten.New(rakuten.Config{
			ApplicationID: cfg.Rakuten.ApplicationID,
			AffiliateID:   cfg.Rakuten.AffiliateID,
			Endpoint:      cfg.Rakuten.Endpoint,
		}, rakutenCache, floors),
		yahoo.New(yahoo.Config{
			ClientID: cfg.Yahoo.ClientID,
			Endpoint: cfg.Yahoo.Endpoint,
			SiteURL:  cfg.Yahoo.SiteURL,
		}, yahooCache, floors),
	}

	var resolver *resolve.Resolver
	if cfg.Perplexity.Key != "" {
		ai := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
		resolver = resolve.New(ai, idCache)
	} else {
		// cache-only resolution still works without a key
		resolver = resolve.New(nil, idCache)
	}

	var expander *keywords.Expander
	if cfg.Anthropic.Key != "" {
		expander = keywords.NewExpander(anthropic.NewClient(cfg.Anthropic.Key))
	} else {
		expander = keywords.NewExpander(nil)
	}

	engine := compare.New(sources, resolver, cfg.Compare.Threshold)

	return &appEnv{
		cfg:          cfg,
		searchCaches: []*cache.SearchCache{amazonCache, rakutenCache, yahooCache},
		idCache:      idCache,
		store:        st,
		sources:      sources,
		resolver:     resolver,
		engine:       engine,
		expander:     expander,
		monitor:      monitor.New(st, sources),
	}, nil
}

func (e *appEnv) Close() {
	for _, sc := range e.searchCaches {
		if err := sc.Close(); err != nil {
			zap.L().Warn("search cache flush failed", zap.Error(err))
		}
	}
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

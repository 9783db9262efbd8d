// Package yahoo implements the Yahoo! Shopping source client against the
// itemSearch V3 API, with a public search page scrape as the middle tier of
// the ladder.
package yahoo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/internal/classify"
	"github.com/resellkit/pricescope/internal/fetch"
	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resilience"
	"github.com/resellkit/pricescope/internal/source"
)

const (
	defaultEndpoint = "https://shopping.yahooapis.jp/ShoppingWebService/V3/itemSearch"
	defaultSiteURL  = "https://shopping.yahoo.co.jp"
)

type Config struct {
	ClientID string
	Endpoint string
	SiteURL  string
	Timeout  time.Duration
}

type Client struct {
	cfg     Config
	httpc   *http.Client
	fetcher *fetch.Client
	cache   *cache.SearchCache
	floors  *source.Floors
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

func New(cfg Config, searchCache *cache.SearchCache, floors *source.Floors) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = defaultSiteURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		fetcher: fetch.NewClient(cfg.Timeout),
		cache:   searchCache,
		floors:  floors,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (c *Client) Source() model.Source { return model.SourceYahoo }

func (c *Client) SearchByText(ctx context.Context, query string, limit int) []model.ProductRecord {
	if limit <= 0 {
		limit = source.DefaultLimit
	}
	key := "yahoo:q:" + query
	if results, ok := c.cache.Get(key); ok {
		metrics.StepHit("yahoo", "cache")
		return clip(results, limit)
	}
	metrics.StepMiss("yahoo", "cache")

	records := c.apiSearch(ctx, query, limit)
	if len(records) == 0 {
		records = c.scrapeSearch(ctx, query, limit)
	}
	if len(records) == 0 {
		metrics.StepHit("yahoo", "placeholder")
		searchURL := c.cfg.SiteURL + "/search?p=" + url.QueryEscape(query)
		return []model.ProductRecord{source.Placeholder(query, model.SourceYahoo, searchURL, c.floors)}
	}
	c.cache.Put(key, records)
	return clip(records, limit)
}

// FetchByID resolves a Yahoo! Shopping item code. The V3 API has no direct
// lookup, so this searches for the code and keeps the exact match.
func (c *Client) FetchByID(ctx context.Context, id string) (*model.ProductRecord, error) {
	key := "yahoo:id:" + id
	if results, ok := c.cache.Get(key); ok && len(results) > 0 {
		metrics.StepHit("yahoo", "cache")
		rec := results[0]
		return &rec, nil
	}
	metrics.StepMiss("yahoo", "cache")

	hits, err := c.call(ctx, "api_get_item", url.Values{"query": {id}, "results": {"10"}})
	if err != nil {
		metrics.StepError("yahoo", "api")
		return nil, eris.Wrap(err, "yahoo: fetch item")
	}
	for _, hit := range hits {
		if hit.Code != id {
			continue
		}
		if rec, ok := c.normalizeHit(hit, id); ok {
			metrics.StepHit("yahoo", "api")
			c.cache.Put(key, []model.ProductRecord{rec})
			return &rec, nil
		}
	}
	metrics.StepMiss("yahoo", "api")
	return nil, eris.Wrap(resilience.ErrNotFound, "yahoo: fetch item")
}

func (c *Client) FetchQuotes(ctx context.Context, query string, limit int) []model.ProductRecord {
	return c.SearchByText(ctx, query, limit)
}

func (c *Client) apiSearch(ctx context.Context, query string, limit int) []model.ProductRecord {
	if c.cfg.ClientID == "" {
		return nil
	}
	params := url.Values{}
	params.Set("results", strconv.Itoa(limit))
	if classify.IsJAN(query) {
		params.Set("jan_code", query)
	} else {
		params.Set("query", query)
	}
	if floor := c.floors.For(query); floor > source.DefaultBaseFloor {
		params.Set("price_from", strconv.Itoa(floor))
	}

	hits, err := c.call(ctx, "api_search", params)
	if err != nil {
		metrics.StepError("yahoo", "api")
		zap.L().Warn("yahoo api search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	records := make([]model.ProductRecord, 0, len(hits))
	for _, hit := range hits {
		if rec, ok := c.normalizeHit(hit, query); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		metrics.StepMiss("yahoo", "api")
		return nil
	}
	metrics.StepHit("yahoo", "api")
	return records
}

func (c *Client) call(ctx context.Context, operation string, params url.Values) ([]searchHit, error) {
	if c.cfg.ClientID == "" {
		return nil, nil
	}
	params.Set("appid", c.cfg.ClientID)
	params.Set("in_stock", "true")

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("yahoo", operation)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]searchHit, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "yahoo: rate limit wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "yahoo: build request")
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "yahoo: api request"), 0)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "yahoo: read response"), resp.StatusCode)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(eris.Errorf("yahoo: api status %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("yahoo: api status %d", resp.StatusCode)
		}
		var out searchResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, eris.Wrap(err, "yahoo: decode response")
		}
		return out.Hits, nil
	})
}

type searchResponse struct {
	TotalResultsAvailable int         `json:"totalResultsAvailable"`
	Hits                  []searchHit `json:"hits"`
}

type searchHit struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	URL     string `json:"url"`
	Price   int    `json:"price"`
	InStock *bool  `json:"inStock"`
	JanCode string `json:"janCode"`
	Image   struct {
		Medium string `json:"medium"`
	} `json:"image"`
	Seller struct {
		Name string `json:"name"`
	} `json:"seller"`
	Review struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"review"`
	Score    int `json:"score"`
	Shipping struct {
		Code int `json:"code"`
	} `json:"shipping"`
}

func (c *Client) normalizeHit(hit searchHit, query string) (model.ProductRecord, bool) {
	if hit.Name == "" || hit.Price <= 0 {
		return model.ProductRecord{}, false
	}
	if !c.floors.Believable(query, hit.Price) {
		return model.ProductRecord{}, false
	}
	// available unless the response says otherwise
	available := true
	if hit.InStock != nil {
		available = *hit.InStock
	}
	rec := model.ProductRecord{
		Source:       model.SourceYahoo,
		Title:        hit.Name,
		Price:        hit.Price,
		URL:          hit.URL,
		ImageURL:     hit.Image.Medium,
		ShopName:     hit.Seller.Name,
		Marketplace:  hit.Code,
		Availability: available,
		Rating:       hit.Review.Rate,
		ReviewCount:  hit.Review.Count,
		Relevance:    float64(hit.Score),
	}
	if hit.JanCode != "" {
		rec.SetExtra("jan", hit.JanCode)
	}
	// shipping code 1 means free shipping
	if hit.Shipping.Code == 1 {
		free := 0
		rec.ShippingFee = &free
	}
	return rec, true
}

func clip(records []model.ProductRecord, limit int) []model.ProductRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// Package amazon implements the Amazon.co.jp source client. Lookups walk the
// standard ladder: the shared search cache, the PA-API v5 endpoints when
// credentials are configured, the public search and product pages, and a
// deterministic placeholder as the last resort.
package amazon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
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
	defaultEndpoint = "https://webservices.amazon.co.jp"
	defaultSiteURL  = "https://www.amazon.co.jp"
	defaultRegion   = "us-west-2"
	marketplace     = "www.amazon.co.jp"

	searchItemsTarget = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.SearchItems"
	getItemsTarget    = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems"
)

var itemResources = []string{
	"ItemInfo.Title",
	"Offers.Listings.Price",
	"Offers.Listings.Availability.Type",
	"Images.Primary.Large",
	"CustomerReviews.Count",
	"CustomerReviews.StarRating",
}

// Config carries credentials and endpoints. Endpoint and SiteURL exist so
// tests can point the client at local servers.
type Config struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
	Endpoint   string
	SiteURL    string
	Region     string
	Timeout    time.Duration
}

type Client struct {
	cfg     Config
	httpc   *http.Client
	fetcher *fetch.Client
	cache   *cache.SearchCache
	floors  *source.Floors
	limiter *rate.Limiter
	signer  *signer
	retry   resilience.RetryConfig
}

func New(cfg Config, searchCache *cache.SearchCache, floors *source.Floors) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = defaultSiteURL
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
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
		signer:  newSigner(cfg.AccessKey, cfg.SecretKey, cfg.Region),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (c *Client) Source() model.Source { return model.SourceAmazon }

func (c *Client) hasCredentials() bool {
	return c.cfg.AccessKey != "" && c.cfg.SecretKey != "" && c.cfg.PartnerTag != ""
}

// SearchByText runs a keyword search through the resolution ladder. The
// returned slice is never nil and never empty.
func (c *Client) SearchByText(ctx context.Context, query string, limit int) []model.ProductRecord {
	if limit <= 0 {
		limit = source.DefaultLimit
	}
	key := "amazon:q:" + query
	if results, ok := c.cache.Get(key); ok {
		metrics.StepHit("amazon", "cache")
		return clip(results, limit)
	}
	metrics.StepMiss("amazon", "cache")

	records := c.apiSearch(ctx, query, limit)
	if len(records) == 0 {
		records = c.scrapeSearch(ctx, query, limit)
	}
	if len(records) == 0 {
		metrics.StepHit("amazon", "placeholder")
		searchURL := c.cfg.SiteURL + "/s?k=" + url.QueryEscape(query)
		return []model.ProductRecord{source.Placeholder(query, model.SourceAmazon, searchURL, c.floors)}
	}
	c.cache.Put(key, records)
	return clip(records, limit)
}

// FetchByID looks up a single ASIN. Returns nil with resilience.ErrNotFound
// when the item cannot be located anywhere.
func (c *Client) FetchByID(ctx context.Context, id string) (*model.ProductRecord, error) {
	key := "amazon:id:" + id
	if results, ok := c.cache.Get(key); ok && len(results) > 0 {
		metrics.StepHit("amazon", "cache")
		rec := results[0]
		return &rec, nil
	}
	metrics.StepMiss("amazon", "cache")

	rec, err := c.apiGetItem(ctx, id)
	if rec == nil {
		rec = c.scrapeProduct(ctx, id)
	}
	if rec == nil {
		if err == nil {
			err = resilience.ErrNotFound
		}
		return nil, eris.Wrap(err, "amazon: fetch item")
	}
	c.cache.Put(key, []model.ProductRecord{*rec})
	return rec, nil
}

// FetchQuotes answers price quotes for an arbitrary query. ASIN-shaped
// queries go through the direct item path first.
func (c *Client) FetchQuotes(ctx context.Context, query string, limit int) []model.ProductRecord {
	if classify.IsASIN(query) {
		if rec, err := c.FetchByID(ctx, query); err == nil && rec != nil {
			return []model.ProductRecord{*rec}
		}
	}
	return c.SearchByText(ctx, query, limit)
}

func (c *Client) apiSearch(ctx context.Context, query string, limit int) []model.ProductRecord {
	if !c.hasCredentials() {
		return nil
	}
	payload := map[string]any{
		"Keywords":    query,
		"ItemCount":   limit,
		"PartnerTag":  c.cfg.PartnerTag,
		"PartnerType": "Associates",
		"Marketplace": marketplace,
		"Resources":   itemResources,
	}
	var out searchItemsResponse
	err := resilience.Do(ctx, c.retryConfig("api_search"), func(ctx context.Context) error {
		return c.callAPI(ctx, "/paapi5/searchitems", searchItemsTarget, payload, &out)
	})
	if err != nil {
		metrics.StepError("amazon", "api")
		zap.L().Warn("amazon api search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	records := make([]model.ProductRecord, 0, len(out.SearchResult.Items))
	for _, item := range out.SearchResult.Items {
		if rec, ok := c.normalizeItem(item, query); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		metrics.StepMiss("amazon", "api")
		return nil
	}
	metrics.StepHit("amazon", "api")
	return records
}

func (c *Client) apiGetItem(ctx context.Context, asin string) (*model.ProductRecord, error) {
	if !c.hasCredentials() {
		return nil, nil
	}
	payload := map[string]any{
		"ItemIds":     []string{asin},
		"PartnerTag":  c.cfg.PartnerTag,
		"PartnerType": "Associates",
		"Marketplace": marketplace,
		"Resources":   itemResources,
	}
	var out getItemsResponse
	err := resilience.Do(ctx, c.retryConfig("api_get_item"), func(ctx context.Context) error {
		return c.callAPI(ctx, "/paapi5/getitems", getItemsTarget, payload, &out)
	})
	if err != nil {
		metrics.StepError("amazon", "api")
		zap.L().Warn("amazon api get item failed", zap.String("asin", asin), zap.Error(err))
		return nil, err
	}
	if len(out.ItemsResult.Items) == 0 {
		metrics.StepMiss("amazon", "api")
		return nil, resilience.ErrNotFound
	}
	metrics.StepHit("amazon", "api")
	rec, ok := c.normalizeItem(out.ItemsResult.Items[0], asin)
	if !ok {
		return nil, resilience.ErrNotFound
	}
	return &rec, nil
}

func (c *Client) callAPI(ctx context.Context, path, target string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "amazon: rate limit wait")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "amazon: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "amazon: build request")
	}
	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("content-encoding", "amz-1.0")
	req.Header.Set("x-amz-target", target)
	c.signer.sign(req, body)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "amazon: api request"), 0)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "amazon: read response"), resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return eris.Wrap(resilience.ErrNotFound, "amazon: api item")
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(eris.Errorf("amazon: api status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("amazon: api status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "amazon: decode response")
	}
	return nil
}

func (c *Client) retryConfig(operation string) resilience.RetryConfig {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("amazon", operation)
	return cfg
}

type apiItem struct {
	ASIN          string `json:"ASIN"`
	DetailPageURL string `json:"DetailPageURL"`
	ItemInfo      struct {
		Title struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
	} `json:"ItemInfo"`
	Images struct {
		Primary struct {
			Large struct {
				URL string `json:"URL"`
			} `json:"Large"`
		} `json:"Primary"`
	} `json:"Images"`
	Offers struct {
		Listings []struct {
			Price struct {
				Amount float64 `json:"Amount"`
			} `json:"Price"`
			Availability struct {
				Type string `json:"Type"`
			} `json:"Availability"`
		} `json:"Listings"`
	} `json:"Offers"`
	CustomerReviews struct {
		Count      int `json:"Count"`
		StarRating struct {
			Value float64 `json:"Value"`
		} `json:"StarRating"`
	} `json:"CustomerReviews"`
}

type searchItemsResponse struct {
	SearchResult struct {
		Items []apiItem `json:"Items"`
	} `json:"SearchResult"`
}

type getItemsResponse struct {
	ItemsResult struct {
		Items []apiItem `json:"Items"`
	} `json:"ItemsResult"`
}

func (c *Client) normalizeItem(item apiItem, query string) (model.ProductRecord, bool) {
	title := item.ItemInfo.Title.DisplayValue
	if title == "" || item.ASIN == "" {
		return model.ProductRecord{}, false
	}
	rec := model.ProductRecord{
		Source:      model.SourceAmazon,
		Title:       title,
		URL:         c.withAffiliateTag(item.DetailPageURL),
		ImageURL:    item.Images.Primary.Large.URL,
		ShopName:    model.SourceAmazon.DisplayName(),
		Marketplace: item.ASIN,
		Rating:      item.CustomerReviews.StarRating.Value,
		ReviewCount: item.CustomerReviews.Count,
	}
	if len(item.Offers.Listings) > 0 {
		listing := item.Offers.Listings[0]
		rec.Price = int(listing.Price.Amount)
		rec.Availability = listing.Availability.Type == "Now"
	}
	if !c.floors.Believable(query, rec.Price) {
		return model.ProductRecord{}, false
	}
	return rec, true
}

// withAffiliateTag appends the partner tag to product links so resulting
// orders attribute correctly. Links that already carry a tag are left alone.
func (c *Client) withAffiliateTag(raw string) string {
	if c.cfg.PartnerTag == "" || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("tag") != "" {
		return raw
	}
	q.Set("tag", c.cfg.PartnerTag)
	u.RawQuery = q.Encode()
	return u.String()
}

func clip(records []model.ProductRecord, limit int) []model.ProductRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

// Package rakuten implements the Rakuten Ichiba source client on top of the
// Ichiba item search API. Rakuten has no scraping tier; a miss on the API
// falls straight through to the deterministic placeholder.
package rakuten

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/internal/classify"
	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resilience"
	"github.com/resellkit/pricescope/internal/source"
)

const (
	defaultEndpoint = "https://app.rakuten.co.jp/services/api/IchibaItem/Search/20220601"

	// excludeKeyword keeps used listings out of arbitrage quotes.
	excludeKeyword = "中古"
)

type Config struct {
	ApplicationID string
	AffiliateID   string
	Endpoint      string
	Timeout       time.Duration
}

type Client struct {
	cfg     Config
	httpc   *http.Client
	cache   *cache.SearchCache
	floors  *source.Floors
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

func New(cfg Config, searchCache *cache.SearchCache, floors *source.Floors) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		cache:   searchCache,
		floors:  floors,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (c *Client) Source() model.Source { return model.SourceRakuten }

func (c *Client) SearchByText(ctx context.Context, query string, limit int) []model.ProductRecord {
	if limit <= 0 {
		limit = source.DefaultLimit
	}
	key := "rakuten:q:" + query
	if results, ok := c.cache.Get(key); ok {
		metrics.StepHit("rakuten", "cache")
		return clip(results, limit)
	}
	metrics.StepMiss("rakuten", "cache")

	records := c.apiSearch(ctx, query, limit)
	if len(records) == 0 {
		metrics.StepHit("rakuten", "placeholder")
		searchURL := "https://search.rakuten.co.jp/search/mall/" + url.PathEscape(query) + "/"
		return []model.ProductRecord{source.Placeholder(query, model.SourceRakuten, searchURL, c.floors)}
	}
	c.cache.Put(key, records)
	return clip(records, limit)
}

// FetchByID resolves a Rakuten item code such as "shopname:10001234".
func (c *Client) FetchByID(ctx context.Context, id string) (*model.ProductRecord, error) {
	key := "rakuten:id:" + id
	if results, ok := c.cache.Get(key); ok && len(results) > 0 {
		metrics.StepHit("rakuten", "cache")
		rec := results[0]
		return &rec, nil
	}
	metrics.StepMiss("rakuten", "cache")

	params := url.Values{}
	params.Set("itemCode", id)
	items, err := c.call(ctx, "api_get_item", params)
	if err != nil {
		metrics.StepError("rakuten", "api")
		return nil, eris.Wrap(err, "rakuten: fetch item")
	}
	if len(items) == 0 {
		metrics.StepMiss("rakuten", "api")
		return nil, eris.Wrap(resilience.ErrNotFound, "rakuten: fetch item")
	}
	metrics.StepHit("rakuten", "api")
	rec, ok := c.normalizeItem(items[0], id)
	if !ok {
		return nil, eris.Wrap(resilience.ErrNotFound, "rakuten: fetch item")
	}
	c.cache.Put(key, []model.ProductRecord{rec})
	return &rec, nil
}

// FetchQuotes treats JAN-shaped queries as exact identifier searches, which
// on Ichiba is still a keyword search against the catalog JAN field.
func (c *Client) FetchQuotes(ctx context.Context, query string, limit int) []model.ProductRecord {
	return c.SearchByText(ctx, query, limit)
}

func (c *Client) apiSearch(ctx context.Context, query string, limit int) []model.ProductRecord {
	if c.cfg.ApplicationID == "" {
		return nil
	}
	params := url.Values{}
	params.Set("keyword", query)
	params.Set("hits", strconv.Itoa(limit))
	if !classify.IsJAN(query) {
		// identifier searches must not exclude anything or the exact
		// listing can be filtered away
		params.Set("NGKeyword", excludeKeyword)
	}
	if floor := c.floors.For(query); floor > source.DefaultBaseFloor {
		params.Set("minPrice", strconv.Itoa(floor))
	}

	items, err := c.call(ctx, "api_search", params)
	if err != nil {
		metrics.StepError("rakuten", "api")
		zap.L().Warn("rakuten api search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	records := make([]model.ProductRecord, 0, len(items))
	for _, item := range items {
		if rec, ok := c.normalizeItem(item, query); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		metrics.StepMiss("rakuten", "api")
		return nil
	}
	metrics.StepHit("rakuten", "api")
	return records
}

func (c *Client) call(ctx context.Context, operation string, params url.Values) ([]ichibaItem, error) {
	if c.cfg.ApplicationID == "" {
		return nil, nil
	}
	params.Set("applicationId", c.cfg.ApplicationID)
	params.Set("format", "json")
	params.Set("formatVersion", "1")
	if c.cfg.AffiliateID != "" {
		params.Set("affiliateId", c.cfg.AffiliateID)
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("rakuten", operation)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]ichibaItem, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rakuten: rate limit wait")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "rakuten: build request")
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "rakuten: api request"), 0)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "rakuten: read response"), resp.StatusCode)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(eris.Errorf("rakuten: api status %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("rakuten: api status %d", resp.StatusCode)
		}
		var out ichibaResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, eris.Wrap(err, "rakuten: decode response")
		}
		items := make([]ichibaItem, 0, len(out.Items))
		for _, wrapped := range out.Items {
			items = append(items, wrapped.Item)
		}
		return items, nil
	})
}

// The Ichiba response wraps every element of Items in a one-key object.
type ichibaResponse struct {
	Items []struct {
		Item ichibaItem `json:"Item"`
	} `json:"Items"`
}

type ichibaItem struct {
	ItemName        string     `json:"itemName"`
	ItemPrice       flexNumber `json:"itemPrice"`
	ItemURL         string     `json:"itemUrl"`
	AffiliateURL    string     `json:"affiliateUrl"`
	ItemCode        string     `json:"itemCode"`
	ShopName        string     `json:"shopName"`
	Availability    *int       `json:"availability"`
	PostageFlag     int        `json:"postageFlag"`
	ReviewAverage   flexNumber `json:"reviewAverage"`
	ReviewCount     int        `json:"reviewCount"`
	MediumImageURLs []struct {
		ImageURL string `json:"imageUrl"`
	} `json:"mediumImageUrls"`
}

// flexNumber accepts both bare and quoted numerics. Which form Ichiba
// returns varies by shop and field.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	*n = flexNumber(strings.Trim(string(b), `"`))
	return nil
}

func (c *Client) normalizeItem(item ichibaItem, query string) (model.ProductRecord, bool) {
	if item.ItemName == "" {
		return model.ProductRecord{}, false
	}
	price := numberToInt(item.ItemPrice)
	if price <= 0 || !c.floors.Believable(query, price) {
		return model.ProductRecord{}, false
	}
	link := item.ItemURL
	if item.AffiliateURL != "" {
		link = item.AffiliateURL
	}
	// available unless the response says otherwise
	available := true
	if item.Availability != nil {
		available = *item.Availability == 1
	}
	rec := model.ProductRecord{
		Source:       model.SourceRakuten,
		Title:        item.ItemName,
		Price:        price,
		URL:          link,
		ShopName:     item.ShopName,
		Marketplace:  item.ItemCode,
		Availability: available,
		Rating:       numberToFloat(item.ReviewAverage),
		ReviewCount:  item.ReviewCount,
	}
	if len(item.MediumImageURLs) > 0 {
		rec.ImageURL = item.MediumImageURLs[0].ImageURL
	}
	// postageFlag 0 means postage is included in the item price
	if item.PostageFlag == 0 {
		free := 0
		rec.ShippingFee = &free
	}
	return rec, true
}

func numberToInt(n flexNumber) int {
	if n == "" || n == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

func numberToFloat(n flexNumber) float64 {
	if n == "" || n == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

func clip(records []model.ProductRecord, limit int) []model.ProductRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

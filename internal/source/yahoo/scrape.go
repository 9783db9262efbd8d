package yahoo

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resilience"
)

// scrapeSearch parses the public search page. Yahoo! Shopping renders hits
// as list items whose class names shift between deploys, so the selectors
// match on class substrings rather than exact names.
func (c *Client) scrapeSearch(ctx context.Context, query string, limit int) []model.ProductRecord {
	pageURL := c.cfg.SiteURL + "/search?p=" + url.QueryEscape(query)

	var body []byte
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("yahoo", "scrape_search")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		body, err = c.fetcher.Page(ctx, pageURL)
		return err
	})
	if err != nil {
		metrics.StepError("yahoo", "scrape")
		zap.L().Warn("yahoo scrape search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		metrics.StepError("yahoo", "scrape")
		return nil
	}

	var records []model.ProductRecord
	doc.Find("li[class*=SearchResult]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rec, ok := c.parseSearchResult(sel, query)
		if ok {
			records = append(records, rec)
		}
		return len(records) < limit
	})
	if len(records) == 0 {
		metrics.StepMiss("yahoo", "scrape")
		return nil
	}
	metrics.StepHit("yahoo", "scrape")
	return records
}

func (c *Client) parseSearchResult(sel *goquery.Selection, query string) (model.ProductRecord, bool) {
	title := strings.TrimSpace(sel.Find("[class*=Title], h3").First().Text())
	if title == "" {
		return model.ProductRecord{}, false
	}
	price := model.ParsePrice(sel.Find("[class*=Price]").First().Text())
	if price == 0 || !c.floors.Believable(query, price) {
		return model.ProductRecord{}, false
	}
	link, _ := sel.Find("a").First().Attr("href")
	if !strings.HasPrefix(link, "http") {
		link = c.cfg.SiteURL + link
	}
	image, _ := sel.Find("img").First().Attr("src")
	shop := strings.TrimSpace(sel.Find("[class*=Store], [class*=Seller]").First().Text())
	rec := model.ProductRecord{
		Source:       model.SourceYahoo,
		Title:        title,
		Price:        price,
		URL:          link,
		ImageURL:     image,
		ShopName:     shop,
		Availability: true,
	}
	return rec, true
}

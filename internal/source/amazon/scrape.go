package amazon

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

// scrapeSearch parses the public search results page. Amazon renders search
// hits as data-component-type="s-search-result" blocks with the ASIN in a
// data-asin attribute.
func (c *Client) scrapeSearch(ctx context.Context, query string, limit int) []model.ProductRecord {
	pageURL := c.cfg.SiteURL + "/s?k=" + url.QueryEscape(query)
	doc, err := c.fetchDocument(ctx, pageURL, "scrape_search")
	if doc == nil {
		if err != nil {
			metrics.StepError("amazon", "scrape")
			zap.L().Warn("amazon scrape search failed", zap.String("query", query), zap.Error(err))
		}
		return nil
	}

	var records []model.ProductRecord
	doc.Find(`div[data-component-type="s-search-result"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rec, ok := c.parseSearchResult(sel, query)
		if ok {
			records = append(records, rec)
		}
		return len(records) < limit
	})
	if len(records) == 0 {
		metrics.StepMiss("amazon", "scrape")
		return nil
	}
	metrics.StepHit("amazon", "scrape")
	return records
}

func (c *Client) parseSearchResult(sel *goquery.Selection, query string) (model.ProductRecord, bool) {
	asin, _ := sel.Attr("data-asin")
	title := strings.TrimSpace(sel.Find("h2 span").First().Text())
	if asin == "" || title == "" {
		return model.ProductRecord{}, false
	}
	price := model.ParsePrice(sel.Find(".a-price .a-offscreen").First().Text())
	if price == 0 || !c.floors.Believable(query, price) {
		return model.ProductRecord{}, false
	}
	link := c.cfg.SiteURL + "/dp/" + asin
	if href, ok := sel.Find("h2 a").First().Attr("href"); ok {
		link = c.resolveLink(href)
	}
	image, _ := sel.Find("img.s-image").First().Attr("src")
	rec := model.ProductRecord{
		Source:       model.SourceAmazon,
		Title:        title,
		Price:        price,
		URL:          c.withAffiliateTag(link),
		ImageURL:     image,
		ShopName:     model.SourceAmazon.DisplayName(),
		Marketplace:  asin,
		Availability: true,
	}
	return rec, true
}

// scrapeProduct parses a product detail page for one ASIN. Returns nil when
// the page is blocked or carries no usable title.
func (c *Client) scrapeProduct(ctx context.Context, asin string) *model.ProductRecord {
	pageURL := c.cfg.SiteURL + "/dp/" + asin
	doc, err := c.fetchDocument(ctx, pageURL, "scrape_product")
	if doc == nil {
		if err != nil {
			metrics.StepError("amazon", "scrape")
			zap.L().Warn("amazon scrape product failed", zap.String("asin", asin), zap.Error(err))
		}
		return nil
	}

	title := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if title == "" {
		metrics.StepMiss("amazon", "scrape")
		return nil
	}
	price := model.ParsePrice(doc.Find(".a-price .a-offscreen").First().Text())
	image, _ := doc.Find("#landingImage").First().Attr("src")
	availability := strings.Contains(doc.Find("#availability").Text(), "在庫")

	metrics.StepHit("amazon", "scrape")
	return &model.ProductRecord{
		Source:       model.SourceAmazon,
		Title:        title,
		Price:        price,
		URL:          c.withAffiliateTag(pageURL),
		ImageURL:     image,
		ShopName:     model.SourceAmazon.DisplayName(),
		Marketplace:  asin,
		Availability: availability,
	}
}

func (c *Client) fetchDocument(ctx context.Context, pageURL, operation string) (*goquery.Document, error) {
	var body []byte
	err := resilience.Do(ctx, c.retryConfig(operation), func(ctx context.Context) error {
		var err error
		body, err = c.fetcher.Page(ctx, pageURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (c *Client) resolveLink(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return c.cfg.SiteURL + href
}

// Package model holds the canonical record types shared by every source
// client and the aggregation engine. Upstream shapes (PA-API objects,
// Rakuten's wrapped items, Yahoo's hits) are collapsed into ProductRecord
// at the source boundary; nothing downstream branches on origin shape.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/width"
)

// Source identifies the marketplace a record came from.
type Source string

const (
	SourceAmazon  Source = "amazon"
	SourceRakuten Source = "rakuten"
	SourceYahoo   Source = "yahoo"
)

// DisplayName returns the storefront name shown when an offer carries no
// explicit shop name.
func (s Source) DisplayName() string {
	switch s {
	case SourceAmazon:
		return "Amazon.co.jp"
	case SourceRakuten:
		return "楽天市場"
	case SourceYahoo:
		return "Yahoo!ショッピング"
	default:
		return string(s)
	}
}

// UnknownShop is the last resort of the shop-name fallback chain.
const UnknownShop = "Unknown Shop"

// ProductRecord is one offer for one product on one marketplace.
// Price is whole yen; 0 means unknown, never free.
type ProductRecord struct {
	Source       Source            `json:"source"`
	Title        string            `json:"title"`
	Price        int               `json:"price"`
	URL          string            `json:"url,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	ShopName     string            `json:"shop_name,omitempty"`
	Availability bool              `json:"availability"`
	Rating       float64           `json:"rating,omitempty"`
	ReviewCount  int               `json:"review_count,omitempty"`
	ShippingFee  *int              `json:"shipping_fee,omitempty"`
	Relevance    float64           `json:"relevance,omitempty"`
	Marketplace  string            `json:"marketplace_id,omitempty"`
	Placeholder  bool              `json:"placeholder,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// RankingScore orders records for display among equal prices. It is never
// an input to the price-threshold filter.
func (p ProductRecord) RankingScore() float64 {
	if p.Rating > 0 && p.ReviewCount > 0 {
		return float64(p.ReviewCount) * p.Rating
	}
	if p.Relevance > 0 {
		return p.Relevance
	}
	return 0
}

// Usable reports whether the record carries enough signal to show a caller.
// Placeholder records are always usable; they exist so total failure still
// returns something.
func (p ProductRecord) Usable() bool {
	if p.Placeholder {
		return true
	}
	return strings.TrimSpace(p.Title) != "" || p.Price > 0
}

// SetExtra adds a source-specific metadata entry, allocating lazily.
func (p *ProductRecord) SetExtra(key, value string) {
	if p.Extra == nil {
		p.Extra = make(map[string]string, 2)
	}
	p.Extra[key] = value
}

// ParsePrice extracts a non-negative integer price from the loose shapes
// upstreams emit: "¥12,345", "１２８００円", "12345.0", "--". Full-width
// characters are narrowed before digit extraction. Unparseable input is 0.
func ParsePrice(raw string) int {
	folded := width.Fold.String(raw)
	var b strings.Builder
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		// Drop a decimal fraction rather than concatenating its digits.
		if r == '.' {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	// Guard against values that overflow int on 32-bit; prices this long
	// are parsing noise anyway.
	digits := b.String()
	if len(digits) > 9 {
		return 0
	}
	n := 0
	for _, r := range digits {
		n = n*10 + int(r-'0')
	}
	return n
}

// SynthesizeTitle builds the documented fallback title for a source that
// returned an item without one.
func SynthesizeTitle(query string, src Source) string {
	return query + " (" + src.DisplayName() + ")"
}

// SearchCacheEntry is a cached set of results for one normalized query.
type SearchCacheEntry struct {
	Results   []ProductRecord `json:"results"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// IdentifierCacheEntry is a cached marketplace-ID → JAN resolution.
type IdentifierCacheEntry struct {
	JAN        string    `json:"jan_code"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// WatchItem is one monitored product in the stock-recheck watchlist.
type WatchItem struct {
	ID            string    `json:"id"`
	Source        Source    `json:"source"`
	MarketplaceID string    `json:"marketplace_id"`
	Title         string    `json:"title,omitempty"`
	LastPrice     int       `json:"last_price"`
	LastAvailable bool      `json:"last_available"`
	CheckedAt     time.Time `json:"checked_at"`
	CreatedAt     time.Time `json:"created_at"`
}

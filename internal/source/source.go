// Package source defines the contract every marketplace client implements
// and the pieces they share: the resolution ladder's terminal placeholder,
// category price floors, and price/title extraction helpers.
//
// Each client resolves a request through the same ladder, most
// authoritative first, moving down only when a step yields nothing usable:
//
//  1. own search cache (fresh entries returned immediately)
//  2. official API, when credentials are configured
//  3. scraping the public search or item page
//  4. deterministic synthetic placeholder
package source

import (
	"context"

	"github.com/resellkit/pricescope/internal/model"
)

// Client is the uniform capability set of one marketplace.
type Client interface {
	// Source identifies the marketplace.
	Source() model.Source

	// SearchByText is a best-effort relevance search.
	SearchByText(ctx context.Context, query string, limit int) []model.ProductRecord

	// FetchByID looks up a marketplace-native identifier. Returns
	// resilience.ErrNotFound (possibly wrapped) when the ID is
	// well-formed but absent from this marketplace.
	FetchByID(ctx context.Context, id string) (*model.ProductRecord, error)

	// FetchQuotes is like SearchByText but tuned for price comparison:
	// looser validity, always tries to fill up to limit, and falls back
	// to a synthetic placeholder rather than returning nothing.
	FetchQuotes(ctx context.Context, query string, limit int) []model.ProductRecord
}

// DefaultLimit is the result count used when a caller passes limit <= 0.
const DefaultLimit = 10

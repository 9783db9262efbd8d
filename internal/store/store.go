// Package store persists the stock watchlist and search history.
package store

import (
	"context"
	"time"

	"github.com/resellkit/pricescope/internal/model"
)

// Store is the persistence contract for watches and search history.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	AddWatch(ctx context.Context, item model.WatchItem) (*model.WatchItem, error)
	GetWatch(ctx context.Context, id string) (*model.WatchItem, error)
	ListWatches(ctx context.Context, filter WatchFilter) ([]model.WatchItem, error)
	UpdateWatchState(ctx context.Context, id string, price int, available bool) error
	RemoveWatch(ctx context.Context, id string) error

	RecordSearch(ctx context.Context, query string, resultCount, cheapestPrice int) error
	RecentSearches(ctx context.Context, limit int) ([]SearchRecord, error)
}

// WatchFilter narrows ListWatches.
type WatchFilter struct {
	Source model.Source
	// StaleBefore keeps only watches last checked before this time.
	// Zero means no staleness filter.
	StaleBefore time.Time
	Limit       int
}

// SearchRecord is one row of search history.
type SearchRecord struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	ResultCount   int       `json:"result_count"`
	CheapestPrice int       `json:"cheapest_price"`
	SearchedAt    time.Time `json:"searched_at"`
}

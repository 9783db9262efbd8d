package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resellkit/pricescope/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "pricescope.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddWatch(ctx, model.WatchItem{
		Source:        model.SourceAmazon,
		MarketplaceID: "B09XYZ1234",
		Title:         "ソニー WH-1000XM5",
		LastPrice:     39800,
		LastAvailable: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	got, err := s.GetWatch(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "B09XYZ1234", got.MarketplaceID)
	assert.Equal(t, model.SourceAmazon, got.Source)
	assert.Equal(t, 39800, got.LastPrice)
	assert.True(t, got.LastAvailable)

	require.NoError(t, s.UpdateWatchState(ctx, added.ID, 36800, false))
	got, err = s.GetWatch(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, 36800, got.LastPrice)
	assert.False(t, got.LastAvailable)

	require.NoError(t, s.RemoveWatch(ctx, added.ID))
	_, err = s.GetWatch(ctx, added.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListWatches_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	_, err := s.AddWatch(ctx, model.WatchItem{
		Source: model.SourceAmazon, MarketplaceID: "B000000001", CheckedAt: old,
	})
	require.NoError(t, err)
	_, err = s.AddWatch(ctx, model.WatchItem{
		Source: model.SourceRakuten, MarketplaceID: "shop:100",
	})
	require.NoError(t, err)

	all, err := s.ListWatches(ctx, WatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	amazonOnly, err := s.ListWatches(ctx, WatchFilter{Source: model.SourceAmazon})
	require.NoError(t, err)
	require.Len(t, amazonOnly, 1)
	assert.Equal(t, "B000000001", amazonOnly[0].MarketplaceID)

	stale, err := s.ListWatches(ctx, WatchFilter{StaleBefore: time.Now().UTC().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "B000000001", stale[0].MarketplaceID)
}

func TestAddWatch_DuplicateSourceItemRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddWatch(ctx, model.WatchItem{Source: model.SourceYahoo, MarketplaceID: "code1"})
	require.NoError(t, err)
	_, err = s.AddWatch(ctx, model.WatchItem{Source: model.SourceYahoo, MarketplaceID: "code1"})
	assert.Error(t, err)
}

func TestUpdateWatchState_MissingWatch(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateWatchState(context.Background(), "no-such-id", 100, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSearch(ctx, "ワイヤレスイヤホン", 12, 3980))
	require.NoError(t, s.RecordSearch(ctx, "加湿器", 5, 6480))

	records, err := s.RecentSearches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.SearchedAt.IsZero())
	}
}

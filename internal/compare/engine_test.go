package compare

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resolve"
	"github.com/resellkit/pricescope/internal/source"
)

type stubSource struct {
	src     model.Source
	records []model.ProductRecord
	byQuery map[string][]model.ProductRecord
	panics  bool

	mu      sync.Mutex
	queries []string
}

func (s *stubSource) Source() model.Source { return s.src }

func (s *stubSource) SearchByText(ctx context.Context, query string, limit int) []model.ProductRecord {
	return s.FetchQuotes(ctx, query, limit)
}

func (s *stubSource) FetchByID(context.Context, string) (*model.ProductRecord, error) {
	return nil, nil
}

func (s *stubSource) FetchQuotes(_ context.Context, query string, _ int) []model.ProductRecord {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.panics {
		panic("source exploded")
	}
	if s.byQuery != nil {
		return s.byQuery[query]
	}
	return s.records
}

func rec(src model.Source, title string, price int) model.ProductRecord {
	return model.ProductRecord{Source: src, Title: title, Price: price, ShopName: "shop", Availability: true}
}

func TestCompare_MergesSortsAndFilters(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon, records: []model.ProductRecord{rec(model.SourceAmazon, "item A", 2500)}},
		&stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "item R", 1000)}},
		&stubSource{src: model.SourceYahoo, records: []model.ProductRecord{rec(model.SourceYahoo, "item Y", 1200)}},
	}, nil, 0)

	got := e.Compare(context.Background(), "item", 10)
	require.Len(t, got, 2, "2500 exceeds 1000*1.9 and is dropped")
	assert.Equal(t, 1000, got[0].Price)
	assert.Equal(t, 1200, got[1].Price)
}

func TestCompare_EmptyWhenAllSourcesReturnNothing(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon},
		&stubSource{src: model.SourceRakuten},
	}, nil, 0)

	got := e.Compare(context.Background(), "nothing", 10)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCompare_PanickingSourceIsIsolated(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon, panics: true},
		&stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "survivor", 1500)}},
	}, nil, 0)

	got := e.Compare(context.Background(), "survivor", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "survivor", got[0].Title)
}

func TestCompare_DropsUnusableRecords(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceYahoo, records: []model.ProductRecord{
			{Source: model.SourceYahoo},
			rec(model.SourceYahoo, "usable", 800),
		}},
	}, nil, 0)

	got := e.Compare(context.Background(), "q", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "usable", got[0].Title)
}

func TestCompare_ShopNameFallbackChain(t *testing.T) {
	noShop := rec(model.SourceAmazon, "no shop", 1000)
	noShop.ShopName = ""
	noSource := model.ProductRecord{Source: model.Source(""), Title: "orphan", Price: 1100}

	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon, records: []model.ProductRecord{noShop, noSource}},
	}, nil, 0)

	got := e.Compare(context.Background(), "q", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Amazon.co.jp", got[0].ShopName)
	assert.Equal(t, model.UnknownShop, got[1].ShopName)
}

func TestCompareExact_AppliesThresholdFilter(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon, records: []model.ProductRecord{rec(model.SourceAmazon, "item", 9800)}},
		&stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "item", 2000)}},
	}, nil, 0)

	got := e.CompareExact(context.Background(), "4902370536485", 10)
	require.Len(t, got, 1, "9800 exceeds 2000*1.9 and is dropped")
	assert.Equal(t, 2000, got[0].Price)
}

func TestCompareExact_KeepsQuotesWithinThreshold(t *testing.T) {
	e := New([]source.Client{
		&stubSource{src: model.SourceAmazon, records: []model.ProductRecord{rec(model.SourceAmazon, "item", 3500)}},
		&stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "item", 2000)}},
	}, nil, 0)

	got := e.CompareExact(context.Background(), "4902370536485", 10)
	require.Len(t, got, 2)
	assert.Equal(t, 2000, got[0].Price)
	assert.Equal(t, 3500, got[1].Price)
}

func TestCompareMulti_UnionInQueryOrder(t *testing.T) {
	s := &stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "item", 1000)}}
	e := New([]source.Client{s}, nil, 0)

	got := e.CompareMulti(context.Background(), []string{"first", "second"}, 5)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"first", "second"}, s.queries)
}

func TestCompareMulti_ThresholdAppliesToUnion(t *testing.T) {
	s := &stubSource{src: model.SourceRakuten, byQuery: map[string][]model.ProductRecord{
		"first":  {rec(model.SourceRakuten, "pricey", 2500)},
		"second": {rec(model.SourceRakuten, "cheap", 1000)},
	}}
	e := New([]source.Client{s}, nil, 0)

	got := e.CompareMulti(context.Background(), []string{"first", "second"}, 5)
	require.Len(t, got, 1, "2500 exceeds the union minimum 1000*1.9")
	assert.Equal(t, "cheap", got[0].Title)
}

func TestCompare_EmptyQuerySkipsFanOut(t *testing.T) {
	s := &stubSource{src: model.SourceAmazon, records: []model.ProductRecord{rec(model.SourceAmazon, "item", 1000)}}
	e := New([]source.Client{s}, nil, 0)

	got := e.Compare(context.Background(), "   ", 5)
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, s.queries)
}

func TestDetailedProducts_SortedByPriceNoFilter(t *testing.T) {
	popular := rec(model.SourceYahoo, "popular", 3000)
	popular.Rating = 4.5
	popular.ReviewCount = 200
	cheap := rec(model.SourceYahoo, "cheap", 1000)

	e := New([]source.Client{
		&stubSource{src: model.SourceYahoo, records: []model.ProductRecord{popular, cheap}},
	}, nil, 0)

	got := e.DetailedProducts(context.Background(), "q", 10)
	require.Len(t, got, 2, "3000 would fail the 1000*1.9 cutoff but no filter applies here")
	assert.Equal(t, "cheap", got[0].Title)
	assert.Equal(t, "popular", got[1].Title)
}

func TestDetailedProducts_RankingBreaksPriceTies(t *testing.T) {
	popular := rec(model.SourceYahoo, "popular", 2000)
	popular.Rating = 4.5
	popular.ReviewCount = 200
	plain := rec(model.SourceYahoo, "plain", 2000)

	e := New([]source.Client{
		&stubSource{src: model.SourceYahoo, records: []model.ProductRecord{plain, popular}},
	}, nil, 0)

	got := e.DetailedProducts(context.Background(), "q", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "popular", got[0].Title)
}

func TestCompare_ResolvesMarketplaceIDToJAN(t *testing.T) {
	idCache := cache.NewIdentifierCache(filepath.Join(t.TempDir(), "jan.json"), cache.DefaultIdentifierTTL)
	idCache.Put("B09XYZ1234", "4902370536485")
	resolver := resolve.New(nil, idCache)

	s := &stubSource{src: model.SourceRakuten, records: []model.ProductRecord{rec(model.SourceRakuten, "item", 1000)}}
	e := New([]source.Client{s}, resolver, 0)

	got := e.Compare(context.Background(), "B09XYZ1234", 5)
	require.Len(t, s.queries, 2, "JAN first, then the original identifier")
	assert.Equal(t, []string{"4902370536485", "B09XYZ1234"}, s.queries)
	assert.Len(t, got, 1, "identical records from both cycles collapse to one")
}

func TestCompare_UnresolvedIdentifierSearchedAsIs(t *testing.T) {
	idCache := cache.NewIdentifierCache(filepath.Join(t.TempDir(), "jan.json"), cache.DefaultIdentifierTTL)
	resolver := resolve.New(nil, idCache)

	s := &stubSource{src: model.SourceRakuten}
	e := New([]source.Client{s}, resolver, 0)

	e.Compare(context.Background(), "B09XYZ1234", 5)
	require.Len(t, s.queries, 1)
	assert.Equal(t, "B09XYZ1234", s.queries[0])
}

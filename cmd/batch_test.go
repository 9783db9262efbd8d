package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resellkit/pricescope/internal/model"
)

type stubComparer struct {
	byQuery map[string][]model.ProductRecord
	queries []string
}

func (s *stubComparer) Compare(_ context.Context, query string, _ int) []model.ProductRecord {
	s.queries = append(s.queries, query)
	return s.byQuery[query]
}

func TestRunBatch_QueriesComparedIndependently(t *testing.T) {
	s := &stubComparer{byQuery: map[string][]model.ProductRecord{
		"usb cable": {{Source: model.SourceRakuten, Title: "cable", Price: 500, ShopName: "shop", Availability: true}},
		"laptop":    {{Source: model.SourceRakuten, Title: "laptop", Price: 100000, ShopName: "shop", Availability: true}},
	}}

	got, err := runBatch(context.Background(), s, []string{"usb cable", "laptop"}, 20, 5, 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "cheap and expensive queries both keep their results")
	assert.Equal(t, "cable", got[0].Title)
	assert.Equal(t, "laptop", got[1].Title)
	assert.Equal(t, []string{"usb cable", "laptop"}, s.queries)
}

func TestRunBatch_ChunksAndPauses(t *testing.T) {
	s := &stubComparer{byQuery: map[string][]model.ProductRecord{}}

	start := time.Now()
	_, err := runBatch(context.Background(), s, []string{"a", "b", "c"}, 2, 5, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.queries)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "one pause between the two chunks")
}

func TestRunBatch_CanceledBetweenChunks(t *testing.T) {
	s := &stubComparer{byQuery: map[string][]model.ProductRecord{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runBatch(ctx, s, []string{"a", "b"}, 1, 5, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, s.queries, "second chunk never runs")
}

package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/pkg/perplexity"
)

type stubAI struct {
	answers []string
	err     error
	calls   int
}

func (s *stubAI) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubAI) Ask(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.calls > len(s.answers) {
		return "", errors.New("no more answers")
	}
	return s.answers[s.calls-1], nil
}

func newResolver(t *testing.T, ai perplexity.Client) *Resolver {
	t.Helper()
	idCache := cache.NewIdentifierCache(filepath.Join(t.TempDir(), "jan.json"), cache.DefaultIdentifierTTL)
	r := New(ai, idCache)
	r.retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestResolveJAN_FirstAnswer(t *testing.T) {
	ai := &stubAI{answers: []string{"JAN: 4902370536485"}}
	r := newResolver(t, ai)

	jan, ok := r.ResolveJAN(context.Background(), "B09XYZ1234", "ソニー ヘッドホン")
	require.True(t, ok)
	assert.Equal(t, "4902370536485", jan)
	assert.Equal(t, 1, ai.calls)

	// second resolution comes from the cache
	jan, ok = r.ResolveJAN(context.Background(), "B09XYZ1234", "")
	require.True(t, ok)
	assert.Equal(t, "4902370536485", jan)
	assert.Equal(t, 1, ai.calls)
}

func TestResolveJAN_JapaneseRetry(t *testing.T) {
	ai := &stubAI{answers: []string{
		"I could not locate a definitive code for this listing.",
		"JAN: 45678912",
	}}
	r := newResolver(t, ai)

	jan, ok := r.ResolveJAN(context.Background(), "B000TEST01", "テスト商品")
	require.True(t, ok)
	assert.Equal(t, "45678912", jan)
	assert.Equal(t, 2, ai.calls)
}

func TestResolveJAN_Unresolved(t *testing.T) {
	ai := &stubAI{answers: []string{"NOT_FOUND", "NOT_FOUND"}}
	r := newResolver(t, ai)

	jan, ok := r.ResolveJAN(context.Background(), "B000NOPE00", "")
	assert.False(t, ok)
	assert.Empty(t, jan)
}

func TestResolveJAN_AIErrorNeverPropagates(t *testing.T) {
	ai := &stubAI{err: errors.New("api down")}
	r := newResolver(t, ai)

	jan, ok := r.ResolveJAN(context.Background(), "B000DOWN00", "")
	assert.False(t, ok)
	assert.Empty(t, jan)
}

func TestResolveJAN_NilClient(t *testing.T) {
	r := newResolver(t, nil)
	_, ok := r.ResolveJAN(context.Background(), "B000NOAI00", "")
	assert.False(t, ok)
}

func TestParseJANAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
		ok     bool
	}{
		{"thirteen digits", "JAN: 4902370536485", "4902370536485", true},
		{"eight digits", "JAN: 45678912", "45678912", true},
		{"full-width colon", "JAN：4902370536485", "4902370536485", true},
		{"embedded in prose", "The answer is JAN: 4902370536485 according to the maker.", "4902370536485", true},
		{"not found marker", "NOT_FOUND", "", false},
		{"bare number without prefix", "4902370536485", "", false},
		{"wrong length", "JAN: 12345", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseJANAnswer(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

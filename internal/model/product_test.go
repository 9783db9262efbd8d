package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"plain", "12345", 12345},
		{"yen_symbol_commas", "¥12,345", 12345},
		{"yen_suffix", "12,800円", 12800},
		{"full_width", "１２８００円", 12800},
		{"decimal", "12345.0", 12345},
		{"decimal_truncates", "1980.50", 1980},
		{"dashes_only", "--", 0},
		{"empty", "", 0},
		{"whitespace", "  8,980  ", 8980},
		{"call_for_price", "お問い合わせください", 0},
		{"absurdly_long", "12345678901234567890", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.in))
		})
	}
}

func TestRankingScore(t *testing.T) {
	r := ProductRecord{Rating: 4.5, ReviewCount: 100}
	assert.InDelta(t, 450.0, r.RankingScore(), 0.001)

	r = ProductRecord{Relevance: 72}
	assert.InDelta(t, 72.0, r.RankingScore(), 0.001)

	// Rating without reviews falls through to relevance, then zero.
	r = ProductRecord{Rating: 4.5}
	assert.Zero(t, r.RankingScore())
}

func TestUsable(t *testing.T) {
	assert.False(t, ProductRecord{}.Usable())
	assert.False(t, ProductRecord{Title: "   "}.Usable())
	assert.True(t, ProductRecord{Title: "EA628W-25B"}.Usable())
	assert.True(t, ProductRecord{Price: 1980}.Usable())
	assert.True(t, ProductRecord{Placeholder: true}.Usable())
}

func TestSourceDisplayName(t *testing.T) {
	assert.Equal(t, "Amazon.co.jp", SourceAmazon.DisplayName())
	assert.Equal(t, "楽天市場", SourceRakuten.DisplayName())
	assert.Equal(t, "Yahoo!ショッピング", SourceYahoo.DisplayName())
	assert.Equal(t, "mercari", Source("mercari").DisplayName())
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"49123456", JANCode},
		{"4901480012345", JANCode},
		{"４９０１４８００１２３４５", JANCode}, // full-width digits
		{"490148001234", FreeText},   // 12 digits is neither format
		{"B000HZD168", MarketplaceID},
		{"EA628W-25B", MarketplaceID},
		{"ABC-123", MarketplaceID},
		{"XJ900", MarketplaceID},
		{"ノートパソコン", FreeText},
		{"hp laptop 16GB", FreeText},
		{"", FreeText},
		{"  ", FreeText},
		{"A-B-C", FreeText}, // two hyphens exceed the model-number shape
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in), "Classify(%q)", tt.in)
		})
	}
}

func TestIsASIN(t *testing.T) {
	assert.True(t, IsASIN("B000HZD168"))
	assert.True(t, IsASIN(" B000HZD168 "))
	assert.False(t, IsASIN("B000HZD16"))   // 9 chars
	assert.False(t, IsASIN("B000-HZD168")) // hyphen not allowed
}

func TestIsJAN(t *testing.T) {
	assert.True(t, IsJAN("4901480012345"))
	assert.True(t, IsJAN("49123456"))
	assert.False(t, IsJAN("EA628W-25B"))
	assert.False(t, IsJAN("123456789"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "jan_code", JANCode.String())
	assert.Equal(t, "marketplace_id", MarketplaceID.String())
	assert.Equal(t, "free_text", FreeText.String())
}

package source

import (
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/text/width"

	"strings"
)

// FloorRule pairs a category keyword pattern with the lowest believable
// price for that category. Scraped "call for price" placeholders and parse
// noise land below these floors and get dropped or bumped.
type FloorRule struct {
	Pattern  string `mapstructure:"pattern"`
	MinPrice int    `mapstructure:"min_price"`
}

// Floors evaluates category price floors against query text.
type Floors struct {
	rules []compiledFloor
	base  int
}

type compiledFloor struct {
	re       *regexp.Regexp
	minPrice int
}

// DefaultFloorRules are the categories whose scraped prices are worth
// sanity-checking. Values drift with the market; override them in config.
func DefaultFloorRules() []FloorRule {
	return []FloorRule{
		{Pattern: `(パソコン|ノート|laptop|computer|pc)`, MinPrice: 25000},
		{Pattern: `(カメラ|camera|デジカメ|一眼)`, MinPrice: 15000},
		{Pattern: `(テレビ|tv|television)`, MinPrice: 15000},
		{Pattern: `(スマホ|スマートフォン|smartphone|phone|携帯)`, MinPrice: 10000},
	}
}

// DefaultBaseFloor applies to queries matching no category rule.
const DefaultBaseFloor = 500

// NewFloors compiles floor rules. Invalid patterns are logged and skipped
// so a bad config row degrades one rule, not the whole filter.
func NewFloors(rules []FloorRule, base int) *Floors {
	if base <= 0 {
		base = DefaultBaseFloor
	}
	f := &Floors{base: base}
	for _, r := range rules {
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			zap.L().Warn("invalid price floor pattern skipped",
				zap.String("pattern", r.Pattern), zap.Error(err))
			continue
		}
		f.rules = append(f.rules, compiledFloor{re: re, minPrice: r.MinPrice})
	}
	return f
}

// DefaultFloors returns floors built from the default rules.
func DefaultFloors() *Floors {
	return NewFloors(DefaultFloorRules(), DefaultBaseFloor)
}

// For returns the minimum believable price for a query. The first matching
// rule wins.
func (f *Floors) For(query string) int {
	q := strings.ToLower(width.Fold.String(query))
	for _, r := range f.rules {
		if r.re.MatchString(q) {
			return r.minPrice
		}
	}
	return f.base
}

// Believable reports whether a scraped or API price clears the floor for
// this query. Zero prices pass; they mean "unknown", not "suspiciously
// cheap", and the normalizer handles them separately.
func (f *Floors) Believable(query string, price int) bool {
	if price == 0 {
		return true
	}
	return price >= f.For(query)
}

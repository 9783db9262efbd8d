// Package keywords expands a seed product query into related Japanese search
// keywords. Expansion is AI-backed with a static suffix fallback, so batch
// searches keep working when no API key is configured.
package keywords

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/pkg/anthropic"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 512
	cacheSize        = 1024
	cacheTTL         = 24 * time.Hour
)

const systemPrompt = `You generate Japanese e-commerce search keywords.
Given a seed product query, respond with one related search keyword per
line. Keywords must be usable verbatim on Amazon.co.jp, Rakuten or Yahoo!
Shopping. No numbering, no bullets, no commentary.`

// staticSuffixes cover the common refinement axes when no AI is available.
var staticSuffixes = []string{
	"新品",
	"送料無料",
	"正規品",
	"セット",
	"限定",
}

type Expander struct {
	ai    anthropic.Client
	model string
	cache *lru.LRU[string, []string]
}

func NewExpander(ai anthropic.Client) *Expander {
	return &Expander{
		ai:    ai,
		model: defaultModel,
		cache: lru.NewLRU[string, []string](cacheSize, nil, cacheTTL),
	}
}

// Expand returns up to n related keywords for query, never including the
// query itself. Failures degrade to the static suffix list rather than
// erroring.
func (e *Expander) Expand(ctx context.Context, query string, n int) []string {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil
	}
	if cached, ok := e.cache.Get(query); ok {
		return clip(cached, n)
	}

	keywords := e.generate(ctx, query)
	if len(keywords) == 0 {
		keywords = fallback(query)
	}
	e.cache.Add(query, keywords)
	return clip(keywords, n)
}

func (e *Expander) generate(ctx context.Context, query string) []string {
	if e.ai == nil {
		return nil
	}
	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: defaultMaxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		zap.L().Warn("keyword expansion failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	resp.Usage.Log(e.model, "keyword_expansion")
	return ParseKeywordList(resp.Text, query)
}

// ParseKeywordList extracts keywords from a line-per-keyword completion,
// tolerating the bullet and numbering styles models slip into anyway.
func ParseKeywordList(text, seed string) []string {
	var out []string
	seen := map[string]bool{strings.ToLower(seed): true}
	for _, line := range strings.Split(text, "\n") {
		kw := strings.TrimSpace(line)
		kw = strings.TrimLeft(kw, "-*・0123456789.)) ")
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[strings.ToLower(kw)] {
			continue
		}
		seen[strings.ToLower(kw)] = true
		out = append(out, kw)
	}
	return out
}

func fallback(query string) []string {
	out := make([]string, 0, len(staticSuffixes))
	for _, suffix := range staticSuffixes {
		out = append(out, query+" "+suffix)
	}
	return out
}

func clip(keywords []string, n int) []string {
	if len(keywords) > n {
		return keywords[:n]
	}
	return keywords
}

// Package resolve turns marketplace-specific identifiers into JAN codes so
// the same product can be searched across every source. Lookups are answered
// by a web-grounded AI completion and cached for a week.
package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/cache"
	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/resilience"
	"github.com/resellkit/pricescope/pkg/perplexity"
)

const englishSystemPrompt = `You are a product identifier lookup assistant.
Given a marketplace product identifier such as an Amazon ASIN, find the
product's JAN code (Japanese Article Number, 8 or 13 digits).
Respond with exactly "JAN: <code>" when you find it, or "NOT_FOUND" when you
cannot. No other text.`

const japaneseSystemPrompt = `あなたは商品識別コードの検索アシスタントです。
ASINなどのマーケットプレイス商品IDから、その商品のJANコード(8桁または13桁)を
調べてください。見つかった場合は「JAN: <コード>」の形式のみで、見つからない
場合は「NOT_FOUND」とだけ答えてください。`

var janPattern = regexp.MustCompile(`JAN[:：]\s*([0-9]{13}|[0-9]{8})\b`)

type Resolver struct {
	ai    perplexity.Client
	cache *cache.IdentifierCache
	retry resilience.RetryConfig
}

func New(ai perplexity.Client, idCache *cache.IdentifierCache) *Resolver {
	return &Resolver{
		ai:    ai,
		cache: idCache,
		retry: resilience.DefaultRetryConfig(),
	}
}

// ResolveJAN maps a marketplace identifier to a JAN code. title may be empty;
// when present it is passed along as extra context. Never returns an error:
// any failure resolves to ("", false) so callers can fall back to searching
// by the raw identifier.
func (r *Resolver) ResolveJAN(ctx context.Context, marketplaceID, title string) (string, bool) {
	if marketplaceID == "" {
		return "", false
	}
	if jan, ok := r.cache.Get(marketplaceID); ok {
		metrics.IdentifierResolutions.WithLabelValues("cache_hit").Inc()
		return jan, true
	}
	if r.ai == nil {
		return "", false
	}

	user := "Identifier: " + marketplaceID
	if title != "" {
		user += "\nProduct title: " + title
	}

	jan, ok := r.lookup(ctx, englishSystemPrompt, user)
	outcome := "resolved"
	if !ok {
		jan, ok = r.lookup(ctx, japaneseSystemPrompt, fmt.Sprintf("商品ID: %s\n商品名: %s", marketplaceID, title))
		outcome = "retry_resolved"
	}
	if !ok {
		metrics.IdentifierResolutions.WithLabelValues("unresolved").Inc()
		zap.L().Debug("identifier unresolved", zap.String("id", marketplaceID))
		return "", false
	}
	metrics.IdentifierResolutions.WithLabelValues(outcome).Inc()
	r.cache.Put(marketplaceID, jan)
	return jan, true
}

func (r *Resolver) lookup(ctx context.Context, system, user string) (string, bool) {
	answer, err := resilience.DoVal(ctx, r.retryConfig(), func(ctx context.Context) (string, error) {
		return r.ai.Ask(ctx, system, user)
	})
	if err != nil {
		zap.L().Warn("identifier lookup failed", zap.Error(err))
		return "", false
	}
	return ParseJANAnswer(answer)
}

func (r *Resolver) retryConfig() resilience.RetryConfig {
	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("resolve", "jan_lookup")
	return cfg
}

// ParseJANAnswer extracts a JAN code from a completion answer. Only the
// strict "JAN: <8 or 13 digits>" form counts; anything else, including a
// bare number in prose, is rejected.
func ParseJANAnswer(answer string) (string, bool) {
	if strings.Contains(answer, "NOT_FOUND") {
		return "", false
	}
	m := janPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", false
	}
	return m[1], true
}

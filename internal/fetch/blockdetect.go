package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot challenge detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCaptcha    BlockType = "captcha"
	BlockChallenge  BlockType = "challenge"
	BlockRateLimit  BlockType = "rate_limit"
	BlockEmptyShell BlockType = "js_shell"
)

// Substring markers of known marketplace challenge pages. Amazon serves its
// robot check with a support address and an image-captcha prompt; the rest
// are generic CDN challenge markers.
var challengeMarkers = []struct {
	marker string
	kind   BlockType
}{
	{"api-services-support@amazon.com", BlockCaptcha},
	{"type the characters you see in this image", BlockCaptcha},
	{"enter the characters you see below", BlockCaptcha},
	{"recaptcha", BlockCaptcha},
	{"hcaptcha", BlockCaptcha},
	{"checking your browser", BlockChallenge},
	{"cf-browser-verification", BlockChallenge},
	{"アクセスが集中しています", BlockRateLimit},
}

// DetectBlock checks an HTTP response for signs of anti-bot protection.
// A detected challenge is a retryable condition: the caller re-fetches with
// a fresh fingerprint.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true, BlockChallenge
		}
	}
	if resp.StatusCode == 429 {
		return true, BlockRateLimit
	}

	lower := strings.ToLower(string(body))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, strings.ToLower(m.marker)) {
			return true, m.kind
		}
	}

	// A near-empty body that immediately bounces through JS is a challenge
	// shell, not a result page.
	if len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
		return true, BlockEmptyShell
	}

	return false, BlockNone
}

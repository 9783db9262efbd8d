// Package fetch is the scrape-fallback HTTP layer: it downloads a public
// marketplace page with a rotating realistic browser fingerprint and
// classifies challenge pages and bad statuses as retryable conditions so
// the source clients' backoff policy can drive re-attempts.
package fetch

import (
	"context"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/resellkit/pricescope/internal/resilience"
)

// Rotating desktop user agents. One is picked per request so consecutive
// retries present different fingerprints.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

const maxBodyBytes = 2 << 20

// Client fetches marketplace pages for the scrape-fallback path.
type Client struct {
	http *http.Client
}

// NewClient creates a fetch client with browser-like connection settings.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
	}
}

// Page fetches targetURL and returns the body. Challenge pages, non-200
// statuses and transport failures come back wrapped as transient errors so
// resilience.Do retries them with a fresh fingerprint; anything else is
// terminal for the scrape step.
func (c *Client) Page(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	applyFingerprint(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"), resp.StatusCode)
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: challenge detected (%s)", kind), resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, eris.Wrapf(resilience.ErrNotFound, "fetch: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: status %d", resp.StatusCode), resp.StatusCode)
	}

	return body, nil
}

// applyFingerprint sets a rotated user agent and the header set a real
// Japanese-locale browser sends.
func applyFingerprint(req *http.Request) {
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "max-age=0")
}

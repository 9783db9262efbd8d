package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resellkit/pricescope/internal/resilience"
)

func TestPage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "ja-JP")
		_, _ = w.Write([]byte("<html><body><div>結果</div></body></html>"))
	}))
	defer srv.Close()

	body, err := NewClient(0).Page(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "結果")
}

func TestPage_CaptchaIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>To discuss automated access contact api-services-support@amazon.com</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(0).Page(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "challenge must be retryable")
}

func TestPage_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(0).Page(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestPage_NotFoundIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(0).Page(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		want    bool
		kind    BlockType
	}{
		{"clean", 200, nil, strings.Repeat("<div>item</div>", 200), false, BlockNone},
		{"amazon_captcha", 200, nil, "Type the characters you see in this image", true, BlockCaptcha},
		{"recaptcha", 200, nil, `<div class="g-recaptcha">`, true, BlockCaptcha},
		{"rate_limit_status", 429, nil, "", true, BlockRateLimit},
		{"jp_rate_limit_page", 200, nil, "ただいまアクセスが集中しています", true, BlockRateLimit},
		{"cloudflare_403", 403, map[string]string{"cf-ray": "abc"}, "", true, BlockChallenge},
		{"js_shell", 200, nil, `<noscript>enable javascript</noscript>`, true, BlockEmptyShell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.headers {
				resp.Header.Set(k, v)
			}
			blocked, kind := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want, blocked)
			if tt.want {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}

package amazon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PA-API v5 requests are signed with AWS Signature Version 4. Only the
// header-based variant is needed here; the request body is always JSON.

const signAlgorithm = "AWS4-HMAC-SHA256"

type signer struct {
	accessKey string
	secretKey string
	region    string
	service   string
	now       func() time.Time
}

func newSigner(accessKey, secretKey, region string) *signer {
	return &signer{
		accessKey: accessKey,
		secretKey: secretKey,
		region:    region,
		service:   "ProductAdvertisingAPI",
		now:       time.Now,
	}
}

// sign adds the x-amz-date and Authorization headers to req. body must be
// the exact payload the request carries.
func (s *signer) sign(req *http.Request, body []byte) {
	t := s.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")

	req.Header.Set("x-amz-date", amzDate)
	if req.Header.Get("host") == "" {
		req.Header.Set("host", req.Host)
	}

	canonReq, signedHeaders := canonicalRequest(req, body)
	scope := strings.Join([]string{dateStamp, s.region, s.service, "aws4_request"}, "/")
	toSign := strings.Join([]string{
		signAlgorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonReq)),
	}, "\n")

	key := signingKey(s.secretKey, dateStamp, s.region, s.service)
	signature := hex.EncodeToString(hmacSHA256(key, toSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signAlgorithm, s.accessKey, scope, signedHeaders, signature))
}

func canonicalRequest(req *http.Request, body []byte) (canonical, signedHeaders string) {
	var names []string
	for name := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		names = append(names, lower)
	}
	sort.Strings(names)

	var headerLines strings.Builder
	for _, name := range names {
		value := strings.TrimSpace(req.Header.Get(name))
		headerLines.WriteString(name + ":" + value + "\n")
	}
	signedHeaders = strings.Join(names, ";")

	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	canonical = strings.Join([]string{
		req.Method,
		path,
		req.URL.RawQuery,
		headerLines.String(),
		signedHeaders,
		hexSHA256(body),
	}, "\n")
	return canonical, signedHeaders
}

func signingKey(secret, dateStamp, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

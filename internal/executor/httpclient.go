package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Caller is the seam the executor issues HTTP calls through; tests supply
// a fake implementation instead of starting a real listener, the way the
// rest of the pack favors hand-rolled fakes over a mocking library.
type Caller interface {
	Call(ctx context.Context, req CallRequest) (CallResponse, error)
}

// CallRequest is a fully-resolved single endpoint invocation.
type CallRequest struct {
	Method     string
	URL        string
	Headers    map[string]string
	Parameters map[string]any
	Timeout    time.Duration
}

// CallResponse is what a Caller returns for a completed HTTP round trip
// (network/timeout/abort errors are returned as the error instead).
type CallResponse struct {
	StatusCode int
	Body       []byte
}

// httpCaller is the production Caller, a thin net/http wrapper: GET
// requests append Parameters as a query string, other methods JSON-encode
// Parameters as the body with Content-Type: application/json unless the
// caller already set one.
type httpCaller struct {
	client *http.Client
}

// NewHTTPCaller constructs a Caller backed by a *http.Client with the given
// base timeout; per-call timeouts are applied by the executor via context.
func NewHTTPCaller(base time.Duration) Caller {
	if base <= 0 {
		base = 30 * time.Second
	}
	return &httpCaller{client: &http.Client{Timeout: base}}
}

func (c *httpCaller) Call(ctx context.Context, req CallRequest) (CallResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	targetURL := req.URL
	var body io.Reader
	if method == http.MethodGet {
		targetURL = appendQuery(targetURL, req.Parameters)
	} else if len(req.Parameters) > 0 {
		b, err := json.Marshal(req.Parameters)
		if err != nil {
			return CallResponse{}, err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return CallResponse{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if method != http.MethodGet && httpReq.Header.Get("Content-Type") == "" && body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return CallResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResponse{StatusCode: resp.StatusCode}, err
	}
	return CallResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

func appendQuery(rawURL string, params map[string]any) string {
	if len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, toQueryValue(v))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func toQueryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s := string(b)
		return strings.Trim(s, `"`)
	}
}

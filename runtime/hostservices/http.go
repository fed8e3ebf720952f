// Package hostservices provides reference HostServiceHandler
// implementations: an HTTP caller and a key/value storage backend.
package hostservices

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/flowlattice/engine/ratelimit"
	"github.com/flowlattice/engine/runtime"
	"github.com/flowlattice/engine/sandbox"
	"github.com/go-resty/resty/v2"
)

// httpRequest is the typed shape an "http.request" ACTION's params
// decode into via runtime.ValueMapToStruct.
type httpRequest struct {
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Body    any               `mapstructure:"body"`
}

// HTTPHandler wraps a resty.Client as a host service, gated by a
// sandbox.SecurityPolicy host allowlist and an optional rate limiter.
type HTTPHandler struct {
	client  *resty.Client
	policy  sandbox.SecurityPolicy
	limiter *ratelimit.TokenBucket
}

// NewHTTPHandler constructs an HTTPHandler. limiter may be nil to skip
// rate limiting.
func NewHTTPHandler(policy sandbox.SecurityPolicy, limiter *ratelimit.TokenBucket) *HTTPHandler {
	client := resty.New().SetTimeout(time.Duration(policy.MaxRequestTimeoutMs) * time.Millisecond)
	return &HTTPHandler{client: client, policy: policy, limiter: limiter}
}

// Request handles the "http"."request" host service call.
func (h *HTTPHandler) Request(ctx context.Context, params map[string]runtime.VariableValue) (runtime.VariableValue, error) {
	var req httpRequest
	if err := runtime.ValueMapToStruct(params, &req); err != nil {
		return runtime.Null, fmt.Errorf("hostservices/http: invalid request params: %w", err)
	}
	if req.Method == "" {
		req.Method = "GET"
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Host == "" {
		return runtime.Null, fmt.Errorf("hostservices/http: invalid url %q", req.URL)
	}
	if !h.policy.AllowsHost(parsed.Host) {
		return runtime.Null, fmt.Errorf("hostservices/http: host %q is not allowed by the security policy", parsed.Host)
	}

	if h.limiter != nil {
		decision := h.limiter.Allow()
		if !decision.Allowed {
			return runtime.Null, fmt.Errorf("hostservices/http: rate limited, retry after %dms", decision.RetryAfterMs)
		}
	}

	restyReq := h.client.R().SetContext(ctx)
	for k, v := range req.Headers {
		restyReq = restyReq.SetHeader(k, v)
	}
	if req.Body != nil {
		restyReq = restyReq.SetBody(req.Body)
	}

	resp, err := restyReq.Execute(req.Method, req.URL)
	if err != nil {
		return runtime.Null, fmt.Errorf("hostservices/http: request failed: %w", err)
	}
	if int64(len(resp.Body())) > h.policy.MaxResponseBytes {
		return runtime.Null, fmt.Errorf("hostservices/http: response of %d bytes exceeds policy limit of %d", len(resp.Body()), h.policy.MaxResponseBytes)
	}

	result, err := runtime.StructToValueMap(struct {
		StatusCode int               `json:"statusCode"`
		Headers    map[string]string `json:"headers"`
		Body       string            `json:"body"`
	}{
		StatusCode: resp.StatusCode(),
		Headers:    flattenHeaders(resp.Header()),
		Body:       string(resp.Body()),
	})
	if err != nil {
		return runtime.Null, fmt.Errorf("hostservices/http: failed to encode response: %w", err)
	}
	return runtime.Object(result), nil
}

// Register binds this handler's methods into registry under the
// "http" service.
func (h *HTTPHandler) Register(registry *runtime.HostServiceRegistry) {
	registry.Register("http", "request", h.Request)
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

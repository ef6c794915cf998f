package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/diagnosis/fieldops/pkg/logger"
)

// ServiceProxy forwards requests to one upstream service.
type ServiceProxy struct {
	baseURL string
	client  *resty.Client
}

func NewServiceProxy(baseURL string, timeout time.Duration) *ServiceProxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceProxy{
		baseURL: baseURL,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRedirectPolicy(resty.NoRedirectPolicy()),
	}
}

// ProxyRequest sends the request upstream and hands back the raw response.
// The caller closes resp.Body.
func (p *ServiceProxy) ProxyRequest(ctx context.Context, method, pathAndQuery string, body []byte, headers http.Header) (*http.Response, error) {
	req := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil {
		req.SetBody(bytes.NewReader(body))
	}

	// Add request ID for tracing
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		req.SetHeader("X-Request-ID", requestID)
	}
	req.SetHeader("X-Gateway-Forwarded", "true")

	logger.DebugContext(ctx, "Proxying request",
		"method", method,
		"url", p.baseURL+pathAndQuery,
	)

	resp, err := req.Execute(method, pathAndQuery)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp.RawResponse, nil
}

package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/fieldops/pkg/logger"
)

func TestProxyRequest(t *testing.T) {
	var gotReqID, gotForwarded, gotCustom, gotBody, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReqID = r.Header.Get("X-Request-ID")
		gotForwarded = r.Header.Get("X-Gateway-Forwarded")
		gotCustom = r.Header.Get("X-Actor-ID")
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"v-1"}`)
	}))
	defer backend.Close()

	p := NewServiceProxy(backend.URL, time.Second)
	ctx := logger.WithRequestID(context.Background(), "req-42")
	headers := http.Header{"X-Actor-ID": []string{"disp-1"}}

	resp, err := p.ProxyRequest(ctx, http.MethodPost, "/visits?dryRun=1", []byte(`{"a":1}`), headers)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"v-1"}`, string(body))

	assert.Equal(t, "req-42", gotReqID)
	assert.Equal(t, "true", gotForwarded)
	assert.Equal(t, "disp-1", gotCustom)
	assert.Equal(t, "dryRun=1", gotQuery)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestProxyRequestDoesNotFollowRedirects(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer backend.Close()

	p := NewServiceProxy(backend.URL, time.Second)
	resp, err := p.ProxyRequest(context.Background(), http.MethodGet, "/visits", nil, nil)
	if err == nil {
		defer resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
	} else {
		assert.Contains(t, err.Error(), "redirect")
	}
}

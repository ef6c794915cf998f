package handlers_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/fieldops/pkg/auth"
	"github.com/diagnosis/fieldops/services/gateway/internal/handlers"
	"github.com/diagnosis/fieldops/services/gateway/internal/proxy"
)

const secret = "gateway-test-secret"

type upstreamCall struct {
	method  string
	path    string
	query   string
	body    string
	actor   string
	role    string
	authHdr string
}

type upstream struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (u *upstream) last(t *testing.T) upstreamCall {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.calls, "upstream was not called")
	return u.calls[len(u.calls)-1]
}

func (u *upstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func newGateway(t *testing.T, status int, reply string) (*httptest.Server, *upstream) {
	t.Helper()
	up := &upstream{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		up.mu.Lock()
		up.calls = append(up.calls, upstreamCall{
			method:  r.Method,
			path:    r.URL.Path,
			query:   r.URL.RawQuery,
			body:    string(body),
			actor:   r.Header.Get("X-Actor-ID"),
			role:    r.Header.Get("X-Actor-Role"),
			authHdr: r.Header.Get("Authorization"),
		})
		up.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(backend.Close)

	h := handlers.New(proxy.NewServiceProxy(backend.URL, 5*time.Second), secret)
	r := chi.NewRouter()
	h.Routes(r)
	gw := httptest.NewServer(r)
	t.Cleanup(gw.Close)
	return gw, up
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := auth.NewAccessToken(subject, role, "", secret, time.Minute)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, method, url, tok, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestProxyStripsPrefixAndForwardsActor(t *testing.T) {
	gw, up := newGateway(t, http.StatusOK, `{"items":[]}`)

	resp := call(t, http.MethodGet, gw.URL+"/v1/visits?state=SCHEDULED&page=1", token(t, "disp-1", auth.RoleDispatcher), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := up.last(t)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/visits", got.path)
	assert.Equal(t, "state=SCHEDULED&page=1", got.query)
	assert.Equal(t, "disp-1", got.actor)
	assert.Equal(t, auth.RoleDispatcher, got.role)
	assert.Empty(t, got.authHdr)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(body))
}

func TestProxyForwardsBodyAndStatus(t *testing.T) {
	gw, up := newGateway(t, http.StatusConflict, `{"error":"bad","code":"INVALID_STATE_TRANSITION"}`)

	resp := call(t, http.MethodPost, gw.URL+"/v1/visits/v-1/check-in", token(t, "tech-1", auth.RoleTechnician), `{"actorId":"tech-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE_TRANSITION", errorCode(t, resp))

	got := up.last(t)
	assert.Equal(t, "/visits/v-1/check-in", got.path)
	assert.JSONEq(t, `{"actorId":"tech-1"}`, got.body)
}

func TestAuthRequired(t *testing.T) {
	gw, up := newGateway(t, http.StatusOK, `{}`)

	tests := []struct {
		name string
		tok  string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, http.MethodGet, gw.URL+"/v1/visits", tt.tok, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))
		})
	}

	expired, err := auth.NewAccessToken("tech-1", auth.RoleTechnician, "", secret, -time.Minute)
	require.NoError(t, err)
	resp := call(t, http.MethodGet, gw.URL+"/v1/visits", expired, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Zero(t, up.count())
}

func TestRoleChecks(t *testing.T) {
	gw, up := newGateway(t, http.StatusOK, `{}`)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"technician cannot create", http.MethodPost, "/v1/visits", auth.RoleTechnician, http.StatusForbidden},
		{"technician cannot cancel", http.MethodPost, "/v1/visits/v-1/cancel", auth.RoleTechnician, http.StatusForbidden},
		{"technician cannot reschedule", http.MethodPatch, "/v1/visits/v-1", auth.RoleTechnician, http.StatusForbidden},
		{"technician checks in", http.MethodPost, "/v1/visits/v-1/check-in", auth.RoleTechnician, http.StatusOK},
		{"technician adds note", http.MethodPost, "/v1/visits/v-1/notes", auth.RoleTechnician, http.StatusOK},
		{"dispatcher marks no-show", http.MethodPost, "/v1/visits/v-1/no-show", auth.RoleDispatcher, http.StatusOK},
		{"dispatcher checks out", http.MethodPost, "/v1/visits/v-1/check-out", auth.RoleDispatcher, http.StatusOK},
		{"admin creates", http.MethodPost, "/v1/visits", auth.RoleAdmin, http.StatusOK},
		{"unknown role reads", http.MethodGet, "/v1/visits/v-1", "auditor", http.StatusOK},
		{"unknown role cannot check in", http.MethodPost, "/v1/visits/v-1/check-in", "auditor", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := up.count()
			resp := call(t, tt.method, gw.URL+tt.path, token(t, "user-1", tt.role), `{}`)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errorCode(t, resp))
				assert.Equal(t, before, up.count())
			} else {
				assert.Equal(t, before+1, up.count())
			}
		})
	}
}

func TestMyVisitsTodayPinsTechnician(t *testing.T) {
	gw, up := newGateway(t, http.StatusOK, `[]`)

	resp := call(t, http.MethodGet, gw.URL+"/v1/visits/me/today?technicianId=someone-else&dateIso=2026-10-17", token(t, "tech-7", auth.RoleTechnician), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := up.last(t)
	assert.Equal(t, "/visits/me/today", got.path)
	assert.Contains(t, got.query, "technicianId=tech-7")
	assert.Contains(t, got.query, "dateIso=2026-10-17")
	assert.NotContains(t, got.query, "someone-else")

	resp = call(t, http.MethodGet, gw.URL+"/v1/visits/me/today?technicianId=tech-3", token(t, "disp-1", auth.RoleDispatcher), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "technicianId=tech-3", up.last(t).query)
}

func TestUpstreamUnavailable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backendURL := backend.URL
	backend.Close()

	h := handlers.New(proxy.NewServiceProxy(backendURL, time.Second), secret)
	r := chi.NewRouter()
	h.Routes(r)
	gw := httptest.NewServer(r)
	defer gw.Close()

	resp := call(t, http.MethodGet, gw.URL+"/v1/visits", token(t, "disp-1", auth.RoleDispatcher), "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, resp))
}

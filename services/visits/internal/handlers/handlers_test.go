package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/fieldops/pkg/events"
	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/diagnosis/fieldops/services/visits/internal/handlers"
	"github.com/diagnosis/fieldops/services/visits/internal/repository"
	"github.com/diagnosis/fieldops/services/visits/internal/service"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := service.NewVisitService(store, store, nil, events.NewMemoryBus())

	r := chi.NewRouter()
	handlers.New(svc).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func createVisit(t *testing.T, srv *httptest.Server, tech string) domain.Visit {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/visits", map[string]any{
		"customerId":       "cust-1",
		"siteId":           "site-1",
		"technicianId":     tech,
		"scheduledStartAt": "2025-01-10T09:00:00Z",
		"scheduledEndAt":   "2025-01-10T10:00:00Z",
		"priority":         "HIGH",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[domain.Visit](t, resp)
}

func TestCreateAndGetVisit(t *testing.T) {
	srv := newServer(t)
	v := createVisit(t, srv, "tech-1")
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, domain.StatePlanned, v.State)
	assert.Equal(t, domain.PriorityHigh, v.Priority)

	resp := do(t, srv, http.MethodGet, "/visits/"+v.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[domain.Visit](t, resp)
	assert.Equal(t, v.ID, got.ID)

	resp = do(t, srv, http.MethodGet, "/visits/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, resp).Code)
}

func TestCreateVisit_BadInput(t *testing.T) {
	srv := newServer(t)

	resp := do(t, srv, http.MethodPost, "/visits", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, resp).Code)

	resp = do(t, srv, http.MethodPost, "/visits", map[string]any{
		"customerId":       "cust-1",
		"siteId":           "site-1",
		"technicianId":     "tech-1",
		"scheduledStartAt": "2025-01-10T10:00:00Z",
		"scheduledEndAt":   "2025-01-10T09:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/visits", map[string]any{
		"customerId":       "cust-1",
		"siteId":           "site-1",
		"technicianId":     "tech-1",
		"scheduledStartAt": "2025-01-10T09:00:00Z",
		"scheduledEndAt":   "2025-01-10T10:00:00Z",
		"priority":         "URGENT",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)
	v := createVisit(t, srv, "tech-1")

	resp := do(t, srv, http.MethodPost, "/visits/"+v.ID+"/check-in", map[string]any{
		"actorId": "tech-1",
		"when":    "2025-01-10T09:05:00Z",
		"lat":     52.52,
		"lng":     13.40,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	started := decode[domain.Visit](t, resp)
	assert.Equal(t, domain.StateStarted, started.State)

	resp = do(t, srv, http.MethodPost, "/visits/"+v.ID+"/check-in", map[string]any{"actorId": "tech-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode[errorBody](t, resp).Code)

	resp = do(t, srv, http.MethodPost, "/visits/"+v.ID+"/check-out", map[string]any{
		"actorId":     "tech-1",
		"when":        "2025-01-10T09:50:00Z",
		"workSummary": "Replaced filter",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[domain.Visit](t, resp)
	assert.Equal(t, domain.StateDone, done.State)

	resp = do(t, srv, http.MethodGet, "/visits/"+v.ID+"/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evs := decode[[]domain.VisitEvent](t, resp)
	require.Len(t, evs, 3)
	assert.Equal(t, domain.EventVisitScheduled, evs[0].Type)
	assert.Equal(t, domain.EventVisitStarted, evs[1].Type)
	assert.Equal(t, domain.EventVisitCompleted, evs[2].Type)

	resp = do(t, srv, http.MethodPost, "/visits/"+v.ID+"/cancel?actorId=disp-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelAndNoShow(t *testing.T) {
	srv := newServer(t)

	v := createVisit(t, srv, "tech-1")
	resp := do(t, srv, http.MethodPost, "/visits/"+v.ID+"/cancel?actorId=disp-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/visits/"+v.ID, nil)
	assert.Equal(t, domain.StateCancelled, decode[domain.Visit](t, resp).State)

	w := createVisit(t, srv, "tech-1")
	resp = do(t, srv, http.MethodPost, "/visits/"+w.ID+"/no-show?actorId=disp-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/visits/missing/no-show", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateVisit(t *testing.T) {
	srv := newServer(t)
	v := createVisit(t, srv, "tech-1")

	resp := do(t, srv, http.MethodPatch, "/visits/"+v.ID, map[string]any{"technicianId": "tech-2", "purpose": "Inspection"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[domain.Visit](t, resp)
	assert.Equal(t, "tech-2", got.TechnicianID)
	assert.Equal(t, "Inspection", got.Purpose)
	assert.Equal(t, v.ScheduledStartAt, got.ScheduledStartAt)

	resp = do(t, srv, http.MethodPatch, "/visits/"+v.ID, map[string]any{"scheduledEndAt": "2025-01-10T08:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListVisits(t *testing.T) {
	srv := newServer(t)
	createVisit(t, srv, "tech-1")
	createVisit(t, srv, "tech-1")
	b := createVisit(t, srv, "tech-2")

	resp := do(t, srv, http.MethodGet, "/visits?technicianId=tech-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[domain.Page[domain.Visit]](t, resp)
	require.Len(t, page.Items, 1)
	assert.Equal(t, b.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Total)

	resp = do(t, srv, http.MethodGet, "/visits?size=2&page=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decode[domain.Page[domain.Visit]](t, resp)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 3, page.Total)

	resp = do(t, srv, http.MethodGet, "/visits?state=PLANNED&from=2025-01-10T00:00:00Z&to=2025-01-10T23:59:59Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[domain.Page[domain.Visit]](t, resp).Items, 3)

	for _, q := range []string{"state=BOGUS", "from=yesterday", "size=abc", "page=-1"} {
		resp = do(t, srv, http.MethodGet, "/visits?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestMyVisitsToday(t *testing.T) {
	srv := newServer(t)
	createVisit(t, srv, "tech-1")
	createVisit(t, srv, "tech-2")

	resp := do(t, srv, http.MethodGet, "/visits/me/today?technicianId=tech-1&dateIso=2025-01-10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.Visit](t, resp), 1)

	resp = do(t, srv, http.MethodGet, "/visits/me/today?technicianId=tech-1&dateIso=2025-01-11T12:00:00Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]domain.Visit](t, resp))

	resp = do(t, srv, http.MethodGet, "/visits/me/today?technicianId=tech-1&dateIso=10/01/2025", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotesAndEmails(t *testing.T) {
	srv := newServer(t)
	v := createVisit(t, srv, "tech-1")

	resp := do(t, srv, http.MethodPost, "/visits/"+v.ID+"/notes", map[string]any{
		"authorId":   "tech-1",
		"visibility": "CUSTOMER",
		"body":       "Gate code 1234",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]domain.VisitNote](t, resp)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.VisibilityCustomer, notes[0].Visibility)

	resp = do(t, srv, http.MethodGet, "/visits/"+v.ID+"/notes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.VisitNote](t, resp), 1)

	resp = do(t, srv, http.MethodPost, "/visits/"+v.ID+"/notes", map[string]any{"authorId": "tech-1", "body": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/visits/"+v.ID+"/emails", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]domain.VisitEmail](t, resp))

	resp = do(t, srv, http.MethodGet, "/visits/missing/emails", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActorDefaultsToGatewayHeader(t *testing.T) {
	srv := newServer(t)
	v := createVisit(t, srv, "tech-1")

	send := func(method, path string, body any, actor string) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, srv.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Actor-ID", actor)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := send(http.MethodPost, "/visits/"+v.ID+"/check-in", map[string]any{}, "tech-from-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(http.MethodPost, "/visits/"+v.ID+"/check-out", map[string]any{"actorId": "tech-explicit"}, "tech-from-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(http.MethodPost, "/visits/"+v.ID+"/notes", map[string]any{"body": "done"}, "tech-from-token")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notes := decode[[]domain.VisitNote](t, resp)
	require.Len(t, notes, 1)
	assert.Equal(t, "tech-from-token", notes[0].AuthorID)

	resp = do(t, srv, http.MethodGet, "/visits/"+v.ID+"/events", nil)
	evs := decode[[]domain.VisitEvent](t, resp)
	require.Len(t, evs, 3)
	assert.Equal(t, "tech-from-token", evs[1].ActorID)
	assert.Equal(t, "tech-explicit", evs[2].ActorID)

	w := createVisit(t, srv, "tech-1")
	resp = send(http.MethodPost, "/visits/"+w.ID+"/cancel", nil, "disp-from-token")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/visits/"+w.ID+"/events", nil)
	evs = decode[[]domain.VisitEvent](t, resp)
	require.Len(t, evs, 2)
	assert.Equal(t, "disp-from-token", evs[1].ActorID)
}

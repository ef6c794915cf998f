package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/fieldops/pkg/events"
)

// executeCommand runs a command with the given args and captures output.
func executeCommand(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// fakeServer answers every request with reply and records what it saw.
func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), seen...)
	}
}

const visitJSON = `{"id":"v-1","customerId":"cust-1","siteId":"site-1","technicianId":"tech-1","state":"PLANNED","priority":"HIGH","scheduledStartAt":"2025-01-10T09:00:00Z","scheduledEndAt":"2025-01-10T10:00:00Z"}`

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	require.NoError(t, err)
	for _, name := range []string{"list", "check-in", "check-out", "no-show", "watch"} {
		assert.Contains(t, out, name)
	}
}

func TestArgsValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"get without id", []string{"get"}},
		{"note without body", []string{"note", "v-1"}},
		{"list with extra arg", []string{"list", "x"}},
		{"create without times", []string{"create", "--customer", "c", "--server", "http://127.0.0.1:1"}},
		{"bad from", []string{"list", "--from", "yesterday", "--server", "http://127.0.0.1:1"}},
		{"bad date", []string{"today", "tech-1", "--date", "10/01/2025", "--server", "http://127.0.0.1:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestServerURLPrecedence(t *testing.T) {
	t.Setenv("VISITS_SERVER_URL", "http://env:1")
	flagServer = ""
	assert.Equal(t, "http://env:1", getServerURL())

	flagServer = "http://flag:2"
	assert.Equal(t, "http://flag:2", getServerURL())
	flagServer = ""

	t.Setenv("VISITS_SERVER_URL", "")
	assert.Equal(t, "http://localhost:8080", getServerURL())
}

func TestGetPrintsVisit(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, visitJSON)

	out, err := executeCommand("get", "v-1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Visit v-1")
	assert.Contains(t, out, "PLANNED")
	require.Len(t, seen(), 1)
	assert.Equal(t, "/visits/v-1", seen()[0].path)

	out, err = executeCommand("get", "v-1", "--server", srv.URL, "--format", "json")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "v-1", v["id"])
}

func TestListSendsFilters(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, `{"items":[`+visitJSON+`],"page":0,"size":20,"total":1}`)

	out, err := executeCommand("list", "--server", srv.URL, "--technician", "tech-1", "--state", "PLANNED", "--size", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "v-1")
	assert.Contains(t, out, "1 of 1")

	require.Len(t, seen(), 1)
	q := seen()[0].query
	assert.Contains(t, q, "technicianId=tech-1")
	assert.Contains(t, q, "state=PLANNED")
	assert.Contains(t, q, "size=20")
	assert.NotContains(t, q, "customerId")
}

func TestCheckInSendsOnlyGivenCoordinates(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, strings.Replace(visitJSON, "PLANNED", "STARTED", 1))

	out, err := executeCommand("check-in", "v-1", "--server", srv.URL, "--actor", "tech-1", "--lat", "52.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked in: v-1")

	require.Len(t, seen(), 1)
	body := seen()[0].body
	assert.Equal(t, "/visits/v-1/check-in", seen()[0].path)
	assert.Equal(t, "tech-1", body["actorId"])
	assert.Equal(t, 52.5, body["lat"])
	assert.NotContains(t, body, "lng")
	assert.NotContains(t, body, "when")
}

func TestUpdateSendsChangedFlagsOnly(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusOK, visitJSON)

	_, err := executeCommand("update", "v-1", "--server", srv.URL, "--purpose", "")
	require.NoError(t, err)

	require.Len(t, seen(), 1)
	assert.Equal(t, http.MethodPatch, seen()[0].method)
	body := seen()[0].body
	assert.Contains(t, body, "purpose")
	assert.NotContains(t, body, "technicianId")
}

func TestCancelReportsConflict(t *testing.T) {
	srv, seen := fakeServer(t, http.StatusConflict, `{"error":"cannot cancel visit v-1 in state DONE","code":"INVALID_STATE_TRANSITION"}`)

	_, err := executeCommand("cancel", "v-1", "--server", srv.URL, "--actor", "disp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_STATE_TRANSITION")
	require.Len(t, seen(), 1)
	assert.Equal(t, "actorId=disp-1", seen()[0].query)
}

func TestSubscribePrinter(t *testing.T) {
	bus := events.NewMemoryBus()
	var out bytes.Buffer
	require.NoError(t, subscribePrinter(bus, events.VisitAll, "", &out, false))

	require.NoError(t, bus.Publish(context.Background(), events.VisitUpdated, events.VisitEvent{
		VisitID:    "v-1",
		State:      "PLANNED",
		Changes:    []string{"technicianId"},
		OccurredAt: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, bus.Publish(context.Background(), "booking.created", map[string]string{"id": "b-1"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "2025-01-10T08:00:00Z")
	assert.Contains(t, lines[0], "visit.updated")
	assert.Contains(t, lines[0], "changes=[technicianId]")
}

func TestWatchUsesSubscriber(t *testing.T) {
	bus := events.NewMemoryBus()
	orig := newSubscriber
	newSubscriber = func(string) (events.Subscriber, error) { return bus, nil }
	t.Cleanup(func() { newSubscriber = orig })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"watch", "--subject", events.VisitCompleted})
	require.NoError(t, root.ExecuteContext(ctx))
}

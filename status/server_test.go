package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ekvall/kartklickare/config"
	"github.com/ekvall/kartklickare/history"
	"github.com/ekvall/kartklickare/poller"
	"github.com/ekvall/kartklickare/presence"
)

type fakeStatusSource struct {
	status poller.Status
}

func (f *fakeStatusSource) Status() poller.Status { return f.status }

type fakeActivitySource struct {
	activity presence.Activity
}

func (f *fakeActivitySource) LastActivity() presence.Activity { return f.activity }

type fakeHistorySource struct {
	entries   []history.Entry
	err       error
	lastLimit int
}

func (f *fakeHistorySource) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.lastLimit = limit
	return f.entries, f.err
}

func newTestServer(histStore HistorySource) (*Server, *fakeStatusSource, *fakeActivitySource) {
	cfg := config.NewConfig()
	source := &fakeStatusSource{status: poller.Status{
		PlayerName:     "mapper",
		PlayerID:       "user-1",
		Path:           "/game/abc",
		Classification: "offline",
		Details:        "World",
		State:          "Round: 3 / 5",
	}}
	session := &fakeActivitySource{activity: presence.Activity{
		Details:   "World",
		State:     "Round: 3 / 5",
		UpdatedAt: time.Now(),
	}}
	return NewServer(cfg, source, session, histStore), source, session
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(nil)

	rec := doRequest(s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestInfoListsEndpoints(t *testing.T) {
	s, _, _ := newTestServer(nil)

	rec := doRequest(s, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Name      string   `json:"name"`
		Endpoints []string `json:"endpoints"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Name == "" || len(body.Endpoints) != 3 {
		t.Errorf("Unexpected info body: %+v", body)
	}
}

func TestStatusReturnsSnapshotAndActivity(t *testing.T) {
	s, _, _ := newTestServer(nil)

	rec := doRequest(s, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Poller   poller.Status     `json:"poller"`
		Activity presence.Activity `json:"activity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Poller.PlayerName != "mapper" || body.Poller.Classification != "offline" {
		t.Errorf("Unexpected poller snapshot: %+v", body.Poller)
	}
	if body.Activity.Details != "World" {
		t.Errorf("Unexpected activity: %+v", body.Activity)
	}
}

func TestHistoryDisabled(t *testing.T) {
	s, _, _ := newTestServer(nil)

	rec := doRequest(s, http.MethodGet, "/history")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 when history is disabled, got %d", rec.Code)
	}
}

func TestHistoryReturnsEntries(t *testing.T) {
	histStore := &fakeHistorySource{entries: []history.Entry{
		{ID: "a", Path: "/game/1", Classification: "offline", Details: "World", State: "Round: 1"},
		{ID: "b", Path: "/", Classification: "menu", Details: "In Menu"},
	}}
	s, _, _ := newTestServer(histStore)

	rec := doRequest(s, http.MethodGet, "/history?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if histStore.lastLimit != 5 {
		t.Errorf("Expected limit 5 passed through, got %d", histStore.lastLimit)
	}

	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(body.Entries) != 2 || body.Entries[0].ID != "a" {
		t.Errorf("Unexpected entries: %+v", body.Entries)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	s, _, _ := newTestServer(&fakeHistorySource{})

	for _, raw := range []string{"abc", "0", "-3"} {
		rec := doRequest(s, http.MethodGet, "/history?limit="+raw)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", raw, rec.Code)
		}
	}
}

func TestHistoryClampsLimit(t *testing.T) {
	histStore := &fakeHistorySource{}
	s, _, _ := newTestServer(histStore)

	rec := doRequest(s, http.MethodGet, "/history?limit=100000")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if histStore.lastLimit != maxHistoryLimit {
		t.Errorf("Expected limit clamped to %d, got %d", maxHistoryLimit, histStore.lastLimit)
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	s, _, _ := newTestServer(&fakeHistorySource{err: errors.New("database is locked")})

	rec := doRequest(s, http.MethodGet, "/history")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 on store failure, got %d", rec.Code)
	}
}

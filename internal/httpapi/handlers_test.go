package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"callgate/internal/callback"
	"callgate/internal/calls"
	"callgate/internal/diag"
	"callgate/internal/lifecycle"
	"callgate/internal/routing"
	"callgate/internal/telephony"

	"github.com/gin-gonic/gin"
)

type nopNotifier struct{}

func (nopNotifier) Enqueue(n callback.Notification) {}

func newRouter(t *testing.T) (*gin.Engine, *calls.MemoryStore) {
	t.Helper()
	r, store, _ := newRouterWithDiag(t)
	return r, store
}

func newRouterWithDiag(t *testing.T) (*gin.Engine, *calls.MemoryStore, *diag.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	gw := telephony.NewFakeGateway()
	diagRepo := diag.NewMemoryRepo()
	diagSvc := diag.NewService(diagRepo)
	resolver := routing.NewResolver([]routing.Trunk{{Name: "default", Host: "127.0.0.1"}})
	co := lifecycle.NewCoordinator(lifecycle.Config{}, store, gw, resolver, nopNotifier{}, nil, lifecycle.Options{
		Diag: diagSvc,
	})

	h := Handlers{Coordinator: co, Diag: diagSvc}
	r := gin.New()
	r.POST("/calls", h.CreateCall)
	r.GET("/calls/:call_id", h.GetCall)
	r.DELETE("/calls/:call_id", h.CancelCall)
	r.POST("/switch/events", h.SwitchEvent)
	return r, store, diagRepo
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createCall(t *testing.T, r *gin.Engine) calls.Snapshot {
	t.Helper()
	w := postJSON(r, "/calls", `{
		"to": "+85512334667",
		"from": "2442",
		"status_callback_url": "https://rapidpro.ngrok.com/handle/33/",
		"status_callback_method": "POST",
		"sid": "sample-call-sid",
		"account_sid": "sample-account-sid",
		"account_auth_token": "sample-auth-token",
		"api_version": "2010-04-01"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snap calls.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	return snap
}

func TestCreateCall(t *testing.T) {
	r, _ := newRouter(t)

	snap := createCall(t, r)
	if snap.ID == "" || snap.Status != calls.CallStatusQueued {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.To != "+85512334667" || snap.From != "2442" {
		t.Fatalf("unexpected parties %+v", snap)
	}
	if snap.AccountSID != "sample-account-sid" {
		t.Fatalf("expected account sid echoed, got %q", snap.AccountSID)
	}
}

func TestCreateCall_NeverLeaksAuthToken(t *testing.T) {
	r, _ := newRouter(t)
	w := postJSON(r, "/calls", `{"to":"+85512334667","from":"2442","account_auth_token":"sample-auth-token"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sample-auth-token") {
		t.Fatalf("auth token leaked in response: %s", w.Body.String())
	}
}

func TestCreateCall_BadInput(t *testing.T) {
	r, _ := newRouter(t)

	if w := postJSON(r, "/calls", `not-json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
	if w := postJSON(r, "/calls", `{"to":"+85512334667"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing from, got %d", w.Code)
	}
}

func TestCreateCall_UnroutableDestination(t *testing.T) {
	r, _ := newRouter(t)
	w := postJSON(r, "/calls", `{"to":"not a number","from":"2442"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetCall(t *testing.T) {
	r, _ := newRouter(t)
	snap := createCall(t, r)

	req := httptest.NewRequest(http.MethodGet, "/calls/"+snap.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/calls/missing", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelCall(t *testing.T) {
	r, store := newRouter(t)
	snap := createCall(t, r)

	req := httptest.NewRequest(http.MethodDelete, "/calls/"+snap.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got calls.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.Status != calls.CallStatusCanceled {
		t.Fatalf("expected canceled, got %q", got.Status)
	}

	// A second cancel finds the call already terminal.
	req = httptest.NewRequest(http.MethodDelete, "/calls/"+snap.ID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	c, err := store.Get(context.Background(), snap.ID)
	if err != nil || c.Status != calls.CallStatusCanceled {
		t.Fatalf("expected canceled in store, got %+v err %v", c, err)
	}
}

func TestCancelCall_NotFound(t *testing.T) {
	r, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodDelete, "/calls/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func postEvent(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/switch/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSwitchEvent(t *testing.T) {
	r, _ := newRouter(t)
	snap := createCall(t, r)

	w := postEvent(r, url.Values{
		"call_id":    {snap.ID},
		"event_id":   {"ev-1"},
		"event_type": {"ringing"},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSwitchEvent_ShedsWhenQueueFull(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := calls.NewMemoryStore()
	resolver := routing.NewResolver([]routing.Trunk{{Name: "default", Host: "127.0.0.1"}})
	co := lifecycle.NewCoordinator(lifecycle.Config{EventQueueSize: 1}, store, telephony.NewFakeGateway(), resolver, nopNotifier{}, nil, lifecycle.Options{})
	h := Handlers{Coordinator: co}
	r := gin.New()
	r.POST("/switch/events", h.SwitchEvent)

	form := url.Values{"call_id": {"c1"}, "event_id": {"ev-1"}, "event_type": {"ringing"}}
	if w := postEvent(r, form); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	form.Set("event_id", "ev-2")
	w := postEvent(r, form)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestSwitchEvent_Malformed(t *testing.T) {
	r, _, diagRepo := newRouterWithDiag(t)

	w := postEvent(r, url.Values{"event_id": {"ev-1"}, "event_type": {"ringing"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing call_id, got %d", w.Code)
	}

	w = postEvent(r, url.Values{"call_id": {"c1"}, "event_id": {"ev-1"}, "event_type": {"reboot"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event type, got %d", w.Code)
	}

	recs := diagRepo.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 malformed_event records, got %+v", recs)
	}
	for _, rec := range recs {
		if rec.Kind != diag.KindMalformedEvent {
			t.Fatalf("unexpected record kind %q", rec.Kind)
		}
	}
}

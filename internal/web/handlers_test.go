package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/submit"
)

func setupTest(t *testing.T) http.Handler {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	settings := config.DefaultBlueprint().Settings()
	settings.BusinessName = "Acme Plumbing"
	eng, err := engine.New(engine.Options{
		Settings: settings,
		Sessions: session.NewMemoryBackend(),
		Sink:     submit.NewOutboxSink(database, nil),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewServer(database, config.DefaultConfig(), eng, nil, "127.0.0.1:0").Handler
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decodeBody(t, rec)["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// captureLead posts turns until the lead is submitted and returns its ref id.
func captureLead(t *testing.T, h http.Handler, sessionID string) string {
	t.Helper()
	turns := []map[string]any{
		{"sessionId": sessionID, "channel": "web", "requestKindKey": "LaunchRequest", "rawUtterance": "hi"},
		{"sessionId": sessionID, "channel": "web", "slots": map[string]string{"first_name": "Ann", "last_name": "Lee"}},
		{"sessionId": sessionID, "channel": "web", "slots": map[string]string{"phone": "5551234567", "email": "ann@example.com", "zip": "02139"}},
		{"sessionId": sessionID, "channel": "web", "rawUtterance": "Water heater is out"},
	}
	var out map[string]any
	for _, turn := range turns {
		rec := do(t, h, "POST", "/turns", turn)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /turns status = %d: %s", rec.Code, rec.Body.String())
		}
		out = decodeBody(t, rec)
	}
	if out["state"] != "SUBMITTED" {
		t.Fatalf("final state = %v", out["state"])
	}
	return out["refId"].(string)
}

func TestHandleTurn(t *testing.T) {
	h := setupTest(t)

	rec := do(t, h, "POST", "/turns", map[string]any{"sessionId": "s1", "channel": "web"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	out := decodeBody(t, rec)
	if out["sessionId"] != "s1" || out["tag"] != "CAPTURE_FIRST_NAME" {
		t.Errorf("response = %v", out)
	}
	if !strings.Contains(out["outputSpeech"].(string), "Acme Plumbing") {
		t.Errorf("outputSpeech = %v", out["outputSpeech"])
	}
}

func TestHandleTurn_Errors(t *testing.T) {
	h := setupTest(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "{not json", http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong slot type", `{"slots": ["a"]}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{
			"unknown form",
			map[string]any{"sessionId": "f1", "channel": "form-widget", "attributes": map[string]any{"formName": "survey"}},
			http.StatusConflict, "UNKNOWN_FORM",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/turns", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestLeadRoutes(t *testing.T) {
	h := setupTest(t)
	refID := captureLead(t, h, "s-web")
	captureLead(t, h, "s-other")

	rec := do(t, h, "GET", "/leads?session_id=s-web", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /leads status = %d", rec.Code)
	}
	items := decodeBody(t, rec)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["ref_id"] != refID {
		t.Errorf("items = %v", items)
	}

	rec = do(t, h, "GET", "/leads", nil)
	if items := decodeBody(t, rec)["items"].([]any); len(items) != 2 {
		t.Errorf("got %d leads, want 2", len(items))
	}

	rec = do(t, h, "GET", "/leads/"+refID, nil)
	lead := decodeBody(t, rec)
	if lead["refId"] != refID || lead["sessionId"] != "s-web" {
		t.Errorf("lead = %v", lead)
	}
	if tr := lead["transcript"].([]any); len(tr) == 0 {
		t.Error("expected transcript by default")
	}

	rec = do(t, h, "GET", "/leads/"+refID+"?include_transcript=false", nil)
	if tr := decodeBody(t, rec)["transcript"].([]any); len(tr) != 0 {
		t.Errorf("transcript should be omitted, got %d messages", len(tr))
	}

	rec = do(t, h, "GET", "/sessions/s-web/transcript", nil)
	msgs := decodeBody(t, rec)["messages"].([]any)
	if first := msgs[0].(map[string]any); first["role"] != "user" || first["text"] != "hi" {
		t.Errorf("first message = %v", first)
	}

	rec = do(t, h, "DELETE", "/leads/"+refID, nil)
	if out := decodeBody(t, rec); out["deleted"] != true {
		t.Errorf("delete = %v", out)
	}
	rec = do(t, h, "GET", "/leads/"+refID, nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("fetch after delete = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePurge(t *testing.T) {
	h := setupTest(t)
	refID := captureLead(t, h, "s-purge")
	do(t, h, "DELETE", "/leads/"+refID, nil)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/leads/purge", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(url.Values{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("purge without confirm = %d", rec.Code)
	}
	rec = post(url.Values{"confirm": {"true"}, "older_than_days": {"soon"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("purge with bad days = %d", rec.Code)
	}

	rec = post(url.Values{"confirm": {"true"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("purge = %d %s", rec.Code, rec.Body.String())
	}
	if out := decodeBody(t, rec); out["purged"] != float64(1) {
		t.Errorf("purge = %v", out)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := setupTest(t)
	rec := do(t, h, "GET", "/leads", nil)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
}

func TestRouting(t *testing.T) {
	h := setupTest(t)

	if rec := do(t, h, "GET", "/turns", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /turns = %d, want 405", rec.Code)
	}
	if rec := do(t, h, "GET", "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

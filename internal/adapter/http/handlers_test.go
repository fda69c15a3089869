package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adapthttp "tensiometer/internal/adapter/http"
	"tensiometer/internal/adapter/memory"
	"tensiometer/internal/app"
	"tensiometer/internal/domain"
)

// ---------------------------------------------------------------------------
// Test-server helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	ts   *httptest.Server
	auth *app.AuthService
}

func newTestEnv(t *testing.T, repo domain.MeasurementRepository, opts ...func(*adapthttp.Server)) *testEnv {
	t.Helper()

	db := memory.New()
	if repo == nil {
		repo = db
	}
	authSvc := app.NewAuthService(db, db.NewSessionRepo())
	srv := adapthttp.New(app.NewMeasurementService(repo), authSvc)
	for _, opt := range opts {
		opt(srv)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, auth: authSvc}
}

// login provisions username and returns a bearer token for it.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	token, err := e.auth.LoginWithUser(context.Background(), username)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

func expectStatus(t *testing.T, resp *http.Response, want int) map[string]any {
	t.Helper()
	body := decodeBody(t, resp)
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d; body: %v", want, resp.StatusCode, body)
	}
	return body
}

func sampleReading() map[string]any {
	return map[string]any{
		"systolic":        120,
		"diastolic":       80,
		"pulse":           70,
		"measurementDate": "2024-01-15",
		"measurementTime": "08:30",
	}
}

func createReading(t *testing.T, e *testEnv, token string, payload map[string]any) map[string]any {
	t.Helper()
	body := expectStatus(t, e.do(t, http.MethodPost, "/api/measurements", token, payload), http.StatusCreated)
	m, ok := body["measurement"].(map[string]any)
	if !ok {
		t.Fatalf("response missing 'measurement': %v", body)
	}
	return m
}

// ---------------------------------------------------------------------------
// Failing repository
// ---------------------------------------------------------------------------

type failingRepo struct {
	err error
}

func (f failingRepo) CreateMeasurement(context.Context, domain.Measurement) (*domain.Measurement, error) {
	return nil, f.err
}

func (f failingRepo) ListMeasurements(context.Context, int64, int64, int) ([]domain.Measurement, int64, error) {
	return nil, 0, f.err
}

func (f failingRepo) ListMeasurementsInRange(context.Context, int64, time.Time, time.Time) ([]domain.Measurement, error) {
	return nil, f.err
}

func (f failingRepo) UpdateMeasurement(context.Context, int64, string, domain.MeasurementPatch) (*domain.Measurement, error) {
	return nil, f.err
}

func (f failingRepo) DeleteMeasurement(context.Context, int64, string) error {
	return f.err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/health", "", nil), http.StatusOK)
	if body["status"] != "OK" {
		t.Fatalf("expected status=OK, got %v", body["status"])
	}
	if body["message"] != "tensiometer API is running" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestMeasurementsRequireAuth(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"list without token", http.MethodGet, "/api/measurements", ""},
		{"range without token", http.MethodGet, "/api/measurements/range?startDate=2024-01-01&endDate=2024-01-31", ""},
		{"create without token", http.MethodPost, "/api/measurements", ""},
		{"delete with unknown token", http.MethodDelete, "/api/measurements/abc", "not-a-session"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := expectStatus(t, e.do(t, tc.method, tc.path, tc.token, nil), http.StatusUnauthorized)
			if body["message"] != "Unauthorized" {
				t.Errorf("unexpected message %v", body["message"])
			}
		})
	}
}

func TestScenario_CreateListRangeUpdateDelete(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	created := createReading(t, e, token, sampleReading())
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created measurement has no id")
	}
	if created["systolic"] != float64(120) || created["diastolic"] != float64(80) || created["pulse"] != float64(70) {
		t.Errorf("fields not echoed: %v", created)
	}
	if created["measurementTime"] != "08:30" || created["notes"] != "" {
		t.Errorf("time/notes not echoed: %v", created)
	}
	if d, _ := created["measurementDate"].(string); !strings.HasPrefix(d, "2024-01-15") {
		t.Errorf("expected date 2024-01-15, got %v", created["measurementDate"])
	}

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/measurements", token, nil), http.StatusOK)
	items, _ := body["measurements"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 measurement, got %d", len(items))
	}
	pg, _ := body["pagination"].(map[string]any)
	if pg["current"] != float64(1) || pg["pages"] != float64(1) || pg["total"] != float64(1) {
		t.Errorf("unexpected pagination %v", pg)
	}

	body = expectStatus(t, e.do(t, http.MethodGet, "/api/measurements/range?startDate=2024-01-15&endDate=2024-01-15", token, nil), http.StatusOK)
	if items, _ := body["measurements"].([]any); len(items) != 1 {
		t.Fatalf("expected range to contain the reading, got %v", body)
	}

	body = expectStatus(t, e.do(t, http.MethodPut, "/api/measurements/"+id, token, map[string]any{"notes": "after coffee"}), http.StatusOK)
	if body["message"] != "Measurement updated successfully" {
		t.Errorf("unexpected message %v", body["message"])
	}
	updated, _ := body["measurement"].(map[string]any)
	if updated["notes"] != "after coffee" || updated["systolic"] != float64(120) {
		t.Errorf("notes-only update changed the wrong fields: %v", updated)
	}

	body = expectStatus(t, e.do(t, http.MethodDelete, "/api/measurements/"+id, token, nil), http.StatusOK)
	if body["message"] != "Measurement deleted successfully" {
		t.Errorf("unexpected message %v", body["message"])
	}
	body = expectStatus(t, e.do(t, http.MethodDelete, "/api/measurements/"+id, token, nil), http.StatusNotFound)
	if body["message"] != "Measurement not found" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestCreate_IgnoresBodyUserID(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.login(t, "alice")

	payload := sampleReading()
	payload["userId"] = 999
	created := createReading(t, e, alice, payload)

	user, err := e.auth.ValidateSession(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if created["userId"] != float64(user.ID) {
		t.Errorf("expected owner %d, got %v", user.ID, created["userId"])
	}
}

func TestCreate_Validation(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	tests := []struct {
		name   string
		mutate func(map[string]any)
		fields []string
	}{
		{"systolic too high", func(p map[string]any) { p["systolic"] = 301 }, []string{"systolic"}},
		{"diastolic too low", func(p map[string]any) { p["diastolic"] = 29 }, []string{"diastolic"}},
		{"pulse not a number", func(p map[string]any) { p["pulse"] = "fast" }, []string{"pulse"}},
		{"bad time", func(p map[string]any) { p["measurementTime"] = "24:00" }, []string{"measurementTime"}},
		{"bad date", func(p map[string]any) { p["measurementDate"] = "yesterday" }, []string{"measurementDate"}},
		{"notes too long", func(p map[string]any) { p["notes"] = strings.Repeat("n", 501) }, []string{"notes"}},
		{"missing fields", func(p map[string]any) {
			delete(p, "systolic")
			delete(p, "pulse")
		}, []string{"systolic", "pulse"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := sampleReading()
			tc.mutate(payload)

			body := expectStatus(t, e.do(t, http.MethodPost, "/api/measurements", token, payload), http.StatusBadRequest)
			errs, _ := body["errors"].([]any)
			if len(errs) != len(tc.fields) {
				t.Fatalf("expected %d field errors, got %v", len(tc.fields), body["errors"])
			}
			for i, field := range tc.fields {
				fe, _ := errs[i].(map[string]any)
				if fe["field"] != field {
					t.Errorf("error %d: expected field %s, got %v", i, field, fe["field"])
				}
				if msg, _ := fe["message"].(string); msg == "" {
					t.Errorf("error %d: empty message", i)
				}
			}
		})
	}

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/measurements", token, nil), http.StatusOK)
	if items, _ := body["measurements"].([]any); len(items) != 0 {
		t.Fatalf("rejected input was persisted: %v", items)
	}
}

func TestCreate_InvalidJSON(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	body := expectStatus(t, e.do(t, http.MethodPost, "/api/measurements", token, "{not json"), http.StatusBadRequest)
	if body["message"] != "Invalid JSON body" {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestOwnership(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.login(t, "alice")
	bob := e.login(t, "bob")

	created := createReading(t, e, alice, sampleReading())
	id, _ := created["id"].(string)

	expectStatus(t, e.do(t, http.MethodPut, "/api/measurements/"+id, bob, map[string]any{"systolic": 130}), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodDelete, "/api/measurements/"+id, bob, nil), http.StatusNotFound)

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/measurements", bob, nil), http.StatusOK)
	if items, _ := body["measurements"].([]any); len(items) != 0 {
		t.Fatalf("bob sees alice's readings: %v", items)
	}

	body = expectStatus(t, e.do(t, http.MethodGet, "/api/measurements", alice, nil), http.StatusOK)
	items, _ := body["measurements"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected alice's reading to survive, got %v", items)
	}
	if m, _ := items[0].(map[string]any); m["systolic"] != float64(120) {
		t.Errorf("alice's reading was modified: %v", m)
	}
}

func TestUpdate_UnknownAndMalformedID(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-an-id"} {
		body := expectStatus(t, e.do(t, http.MethodPut, "/api/measurements/"+id, token, map[string]any{"pulse": 60}), http.StatusNotFound)
		if body["message"] != "Measurement not found" {
			t.Errorf("unexpected message %v", body["message"])
		}
	}
}

func TestUpdate_ValidationBeforeLookup(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	expectStatus(t, e.do(t, http.MethodPut, "/api/measurements/missing", token, map[string]any{"systolic": 10}), http.StatusBadRequest)
}

func TestList_Pagination(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	for day := 1; day <= 3; day++ {
		p := sampleReading()
		p["measurementDate"] = time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		createReading(t, e, token, p)
	}

	tests := []struct {
		name      string
		query     string
		wantItems int
		wantPage  float64
		wantPages float64
		firstDate string
	}{
		{"first page", "?page=1&limit=2", 2, 1, 2, "2024-01-03"},
		{"second page", "?page=2&limit=2", 1, 2, 2, "2024-01-01"},
		{"past last page", "?page=5&limit=2", 0, 5, 2, ""},
		{"invalid values fall back", "?page=0&limit=-3", 3, 1, 1, "2024-01-03"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := expectStatus(t, e.do(t, http.MethodGet, "/api/measurements"+tc.query, token, nil), http.StatusOK)
			items, ok := body["measurements"].([]any)
			if !ok {
				t.Fatalf("measurements is not an array: %v", body)
			}
			if len(items) != tc.wantItems {
				t.Fatalf("expected %d items, got %d", tc.wantItems, len(items))
			}
			pg, _ := body["pagination"].(map[string]any)
			if pg["current"] != tc.wantPage || pg["pages"] != tc.wantPages || pg["total"] != float64(3) {
				t.Errorf("unexpected pagination %v", pg)
			}
			if tc.firstDate != "" {
				first, _ := items[0].(map[string]any)
				if d, _ := first["measurementDate"].(string); !strings.HasPrefix(d, tc.firstDate) {
					t.Errorf("expected newest first (%s), got %v", tc.firstDate, first["measurementDate"])
				}
			}
		})
	}
}

func TestRange_Parameters(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/measurements/range?startDate=2024-01-01", token, nil), http.StatusBadRequest)
	if body["message"] != "Start date and end date are required" {
		t.Errorf("unexpected message %v", body["message"])
	}

	body = expectStatus(t, e.do(t, http.MethodGet, "/api/measurements/range?startDate=2024-01-01&endDate=soon", token, nil), http.StatusBadRequest)
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 {
		t.Fatalf("expected one field error, got %v", body)
	}

	body = expectStatus(t, e.do(t, http.MethodGet, "/api/measurements/range?startDate=2024-02-01&endDate=2024-01-01", token, nil), http.StatusOK)
	if items, ok := body["measurements"].([]any); !ok || len(items) != 0 {
		t.Errorf("inverted range should be empty, got %v", body["measurements"])
	}
}

func TestStoreFailureIsOpaque(t *testing.T) {
	e := newTestEnv(t, failingRepo{err: errors.New("connection refused")})
	token := e.login(t, "alice")

	resp := e.do(t, http.MethodGet, "/api/measurements", token, nil)
	body := expectStatus(t, resp, http.StatusInternalServerError)
	if body["message"] != "Server error" {
		t.Errorf("unexpected message %v", body["message"])
	}
	if len(body) != 1 {
		t.Errorf("server error leaked detail: %v", body)
	}
}

func TestLoginSetupAndCookieSession(t *testing.T) {
	e := newTestEnv(t, nil)

	body := expectStatus(t, e.do(t, http.MethodPost, "/api/auth/setup", "", map[string]any{"username": "admin", "password": "short"}), http.StatusBadRequest)
	if body["message"] == "" {
		t.Error("expected a setup error message")
	}
	expectStatus(t, e.do(t, http.MethodPost, "/api/auth/setup", "", map[string]any{"username": "admin", "password": "correct horse"}), http.StatusCreated)
	expectStatus(t, e.do(t, http.MethodPost, "/api/auth/setup", "", map[string]any{"username": "other", "password": "correct horse"}), http.StatusConflict)

	expectStatus(t, e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "admin", "password": "wrong"}), http.StatusUnauthorized)

	resp := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "admin", "password": "correct horse"})
	body = expectStatus(t, resp, http.StatusOK)
	if tok, _ := body["token"].(string); tok == "" {
		t.Fatal("login returned no token")
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("login did not set a session cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/measurements", nil)
	req.AddCookie(cookie)
	cresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer cresp.Body.Close() //nolint:errcheck
	if cresp.StatusCode != http.StatusOK {
		t.Fatalf("cookie session rejected: %d", cresp.StatusCode)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t, nil)
	token := e.login(t, "alice")

	expectStatus(t, e.do(t, http.MethodPost, "/api/auth/logout", token, nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/api/measurements", token, nil), http.StatusUnauthorized)
}

func TestForwardAuth(t *testing.T) {
	get := func(t *testing.T, e *testEnv) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/measurements", nil)
		req.Header.Set("Remote-User", "proxyuser")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
		return resp
	}

	untrusted := newTestEnv(t, nil)
	if resp := get(t, untrusted); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("untrusted Remote-User accepted: %d", resp.StatusCode)
	}

	trusted := newTestEnv(t, nil, func(s *adapthttp.Server) { s.WithForwardAuth() })
	if resp := get(t, trusted); resp.StatusCode != http.StatusOK {
		t.Errorf("trusted Remote-User rejected: %d", resp.StatusCode)
	}
}

func TestAuthConfig(t *testing.T) {
	e := newTestEnv(t, nil)

	body := expectStatus(t, e.do(t, http.MethodGet, "/api/auth/config", "", nil), http.StatusOK)
	if body["sso_enabled"] != false {
		t.Errorf("expected sso disabled, got %v", body["sso_enabled"])
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/auth/sso/login", "", nil), http.StatusNotFound)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, nil, func(s *adapthttp.Server) { s.WithCORSOrigin("https://app.example.com") })

	req, _ := http.NewRequest(http.MethodOptions, e.ts.URL+"/api/measurements", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	expectStatus(t, e.do(t, http.MethodGet, "/api/health", "", nil), http.StatusOK)

	resp := e.do(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `tensiometer_http_requests_total{method="GET",route="GET /health",status="200"} 1`) {
		t.Errorf("health request not counted:\n%s", raw)
	}
}

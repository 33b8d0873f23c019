package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/txtfix/internal/config"
	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/store"
)

const brokenInput = "a|b|c\nd|e\nf\ng|h\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{HistoryLimit: 50},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       time.Minute,
		},
		Repair: config.RepairConfig{
			Delimiter: "|", Columns: 3, ChunkSize: 100, OverflowMultiplier: 100,
			InputEncoding: "utf-8", OutputEncoding: "utf-8", MaxLineBytes: 1 << 20,
		},
		Storage:  config.StorageConfig{Dir: t.TempDir(), Retention: time.Hour, SweepInterval: time.Minute},
		Rate:     config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, UploadLimit: 1000},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	svc, err := core.NewService(cfg, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		io.WriteString(fw, content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// startRepair posts brokenInput and returns the job ID.
func startRepair(t *testing.T, s *Server) string {
	t.Helper()
	req := multipartRequest(t, "/api/repair", map[string]string{"columns": "3"}, "export.txt", brokenInput)
	rec := serve(s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/repair status = %d, body %s", rec.Code, rec.Body.String())
	}
	accepted := decode[jobAccepted](t, rec)
	if accepted.JobID == "" || accepted.ProgressURL != "/api/jobs/"+accepted.JobID+"/progress" {
		t.Fatalf("unexpected response %+v", accepted)
	}
	return accepted.JobID
}

func waitResult(t *testing.T, s *Server, id string) core.JobResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/result", nil).WithContext(ctx)
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET result status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[core.JobResult](t, rec)
}

func TestRepairFlow(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	id := startRepair(t, s)

	res := waitResult(t, s, id)
	if res.Phase != core.PhaseComplete {
		t.Fatalf("phase = %s, error %q", res.Phase, res.Error)
	}
	if res.Stats.Accepted != 2 || res.Stats.Rejected != 1 {
		t.Errorf("stats = %+v, want 2 accepted 1 rejected", res.Stats)
	}

	tests := []struct {
		kind, body, name, ctype string
	}{
		{"clean", "a,b,c\nd,e,f\n", "export.csv", "text/csv"},
		{"rejects", "g|h\n", "export.reject.txt", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/download/"+tt.kind, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, tt.name) {
				t.Errorf("Content-Disposition = %q, want %s", cd, tt.name)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.ctype) {
				t.Errorf("Content-Type = %q, want %s", ct, tt.ctype)
			}
		})
	}
}

func TestRepair_BadRequests(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		content  string
		status   int
		code     string
	}{
		{"no file", map[string]string{"columns": "3"}, "", "", http.StatusBadRequest, "FILE002"},
		{"empty file", nil, "empty.txt", "", http.StatusBadRequest, "FILE003"},
		{"chunk below bound", map[string]string{"chunk_size": "5"}, "x.txt", "a|b|c\n", http.StatusBadRequest, "CFG003"},
		{"multiplier above bound", map[string]string{"overflow_multiplier": "5000"}, "x.txt", "a|b|c\n", http.StatusBadRequest, "CFG003"},
		{"zero columns", map[string]string{"columns": "0"}, "x.txt", "a|b|c\n", http.StatusBadRequest, "CFG003"},
		{"non-numeric columns", map[string]string{"columns": "many"}, "x.txt", "a|b|c\n", http.StatusBadRequest, "CFG001"},
		{"unknown encoding", map[string]string{"input_encoding": "klingon"}, "x.txt", "a|b|c\n", http.StatusBadRequest, "CFG002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, "/api/repair", tt.fields, tt.fileName, tt.content))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.status, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec); got.Code != tt.code {
				t.Errorf("code = %s, want %s (%+v)", got.Code, tt.code, got)
			}
		})
	}
}

func TestRepair_TooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.MaxFileSize = 64
	s := newTestServer(t, cfg)

	rec := serve(s, multipartRequest(t, "/api/repair", nil, "big.txt", strings.Repeat("a|b|c\n", 100)))
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", rec.Code)
	}
}

func TestRepair_BrowserRedirect(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	req := multipartRequest(t, "/api/repair", nil, "export.txt", brokenInput)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := serve(s, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/jobs/") {
		t.Fatalf("Location = %q", loc)
	}
	waitResult(t, s, strings.TrimPrefix(loc, "/jobs/"))
}

func TestJobProgress_StreamsUntilComplete(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	id := startRepair(t, s)
	waitResult(t, s, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/progress", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") || !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream = %q", body)
	}
	if !strings.Contains(body, `"phase":"complete"`) {
		t.Errorf("final state missing from stream: %q", body)
	}

	// A client resuming past every line still gets the final state once.
	resumed := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/progress", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/progress?lastEventId=1000000", nil),
	}
	resumed[0].Header.Set("Last-Event-ID", "1000000")
	for _, req := range resumed {
		body := serve(s, req).Body.String()
		if n := strings.Count(body, "event: progress"); n != 1 {
			t.Errorf("%s: %d progress events after resume, want 1: %q", req.URL, n, body)
		}
		if !strings.Contains(body, `"phase":"complete"`) || !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
			t.Errorf("%s: resumed stream = %q", req.URL, body)
		}
	}
}

func TestJobEndpoints_UnknownJob(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/jobs/nope/progress", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/nope/result", http.StatusNotFound},
		{http.MethodPost, "/api/jobs/nope/cancel", http.StatusNotFound},
		{http.MethodGet, "/api/jobs/nope/download/clean", http.StatusNotFound},
		{http.MethodGet, "/api/history/nope", http.StatusNotFound},
		{http.MethodGet, "/jobs/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestDownload_UnknownKind(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	id := startRepair(t, s)
	waitResult(t, s, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/download/secrets", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelFinishedJob(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	id := startRepair(t, s)
	waitResult(t, s, id)

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/"+id+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res := waitResult(t, s, id); res.Phase != core.PhaseComplete {
		t.Errorf("phase after late cancel = %s, want complete", res.Phase)
	}
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	id := startRepair(t, s)
	waitResult(t, s, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil))
	runs := decode[[]store.RunRecord](t, rec)
	if len(runs) != 1 || runs[0].ID != id || runs[0].Accepted != 2 {
		t.Fatalf("history = %+v", runs)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
	if run := decode[store.RunRecord](t, rec); run.FileName != "export.txt" {
		t.Errorf("entry = %+v", run)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/history/export", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("export = %q, want header and one row", rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "id,created_at,file_name,status") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], id) || !strings.Contains(lines[1], "export.txt") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rec := serve(s, multipartRequest(t, "/api/preview", map[string]string{"delimiter": "|"}, "x.txt", brokenInput))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[core.PreviewResult](t, rec)
	if len(res.Lines) != 4 || res.Lines[0].Fields != 3 || res.Lines[1].Fields != 2 {
		t.Errorf("preview = %+v", res)
	}
}

func TestPages(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="columns"`, `value="3"`, `max="50000"`, `<option value="cp1252"`, "No runs yet."} {
		if !strings.Contains(body, want) {
			t.Errorf("home page missing %s", want)
		}
	}

	id := startRepair(t, s)
	waitResult(t, s, id)
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `data-job-id="`+id+`"`) {
		t.Errorf("job page status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestPages_EscapeFileNames(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	req := multipartRequest(t, "/api/repair", nil, "<img src=x onerror=alert(1)>.txt", brokenInput)
	id := decode[jobAccepted](t, serve(s, req)).JobID
	waitResult(t, s, id)

	body := serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if strings.Contains(body, "<img src=x") {
		t.Error("file name rendered unescaped")
	}
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	st := decode[core.ResourceStatus](t, rec)
	if st.Limiter.MaxConcurrent != 2 || st.Goroutines == 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestSecurityHeaders(t *testing.T) {
	for _, csp := range []bool{true, false} {
		cfg := testConfig(t)
		cfg.Security.EnableCSP = csp
		s := newTestServer(t, cfg)

		rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("missing nosniff")
		}
		if got := rec.Header().Get("Content-Security-Policy") != ""; got != csp {
			t.Errorf("CSP present = %v, want %v", got, csp)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"k1"}
	s := newTestServer(t, cfg)

	tests := []struct {
		path, key string
		status    int
	}{
		{"/api/status", "", http.StatusUnauthorized},
		{"/api/status", "wrong", http.StatusForbidden},
		{"/api/status", "k1", http.StatusOK},
		{"/healthz", "", http.StatusOK},
		{"/", "", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		if rec := serve(s, req); rec.Code != tt.status {
			t.Errorf("%s key=%q status = %d, want %d", tt.path, tt.key, rec.Code, tt.status)
		}
	}
}

func TestUploadRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.UploadLimit = 1
	s := newTestServer(t, cfg)

	first := serve(s, multipartRequest(t, "/api/preview", nil, "x.txt", brokenInput))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := serve(s, multipartRequest(t, "/api/preview", nil, "x.txt", brokenInput))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := decode[ErrorResponse](t, second); got.Code != "RATE001" {
		t.Errorf("code = %s, want RATE001", got.Code)
	}

	// Other routes use the general limit.
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/status", nil)); rec.Code != http.StatusOK {
		t.Errorf("status route = %d, want 200", rec.Code)
	}
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"camwatch/internal/config"
	"camwatch/internal/database"
	"camwatch/internal/monitoring"
	"camwatch/internal/notifications"
	"camwatch/internal/snapshot"
)

type staticProvider struct {
	failing []string
}

func (p staticProvider) Snapshot(ctx context.Context, address string) (*snapshot.Snapshot, error) {
	return &snapshot.Snapshot{Failing: p.failing}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	texts []notifications.Message
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) SendText(ctx context.Context, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, msg)
	return nil
}

func (r *recordingSink) SendAttachment(ctx context.Context, att notifications.Attachment) error {
	return nil
}

type testServer struct {
	srv   *Server
	store *database.BoltStore
	sink  *recordingSink
}

func newTestServer(t *testing.T, withSink bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	store, err := database.NewBoltStore(filepath.Join(dir, "camwatch.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if _, err := store.SyncHosts(ctx, []database.Host{
		{ID: "loja-1", Name: "Loja 1", Address: "http://loja1", Enabled: true},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnsureSettings(ctx, &database.Settings{
		CheckInterval:     database.Duration(10 * time.Minute),
		ConfirmationDelay: database.Duration(time.Millisecond),
		Timezone:          "America/Sao_Paulo",
	}); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	var dispatcher *notifications.Dispatcher
	if withSink {
		dispatcher, err = notifications.NewDispatcherWithSinks("", "", sink)
	} else {
		dispatcher, err = notifications.NewDispatcherWithSinks("", "")
	}
	if err != nil {
		t.Fatal(err)
	}

	orch := monitoring.New(store, staticProvider{}, nil, dispatcher, nil, monitoring.Options{MinFailingCameras: 2})
	t.Cleanup(func() { orch.Stop(context.Background()) })

	cfg := &config.Config{
		Logging:    config.LoggingConfig{Level: "debug"},
		Monitoring: config.MonitoringConfig{DataDir: dir},
		Prometheus: config.PrometheusConfig{Enabled: true, MetricsPath: "/metrics"},
	}
	return &testServer{srv: NewServer(cfg, store, orch, dispatcher, nil), store: store, sink: sink}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid response %q: %v", w.Body.String(), err)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("invalid data %q: %v", envelope.Data, err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)
	if w := ts.do(t, http.MethodGet, "/api/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/build", nil); w.Code != http.StatusOK {
		t.Fatalf("build = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestTriggerAndQueryHistory(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/api/hosts/loja-1/trigger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trigger = %d: %s", w.Code, w.Body.String())
	}
	var rec database.CheckRecord
	decode(t, w, &rec)
	if rec.Status != database.StatusOK || rec.Trigger != database.TriggerManual {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Timezone != "America/Sao_Paulo" {
		t.Errorf("timezone = %q", rec.Timezone)
	}

	w = ts.do(t, http.MethodGet, "/api/history?host_id=loja-1&limit=10", nil)
	var records []database.CheckRecord
	decode(t, w, &records)
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("history = %+v", records)
	}

	w = ts.do(t, http.MethodGet, "/api/status", nil)
	decode(t, w, &records)
	if len(records) != 1 {
		t.Fatalf("status = %+v", records)
	}

	w = ts.do(t, http.MethodGet, "/api/hosts", nil)
	var hosts []HostResponse
	decode(t, w, &hosts)
	if len(hosts) != 1 || hosts[0].LastRecord == nil || hosts[0].Run == nil {
		t.Fatalf("hosts = %+v", hosts)
	}
	if hosts[0].Run.Status != database.RunSuccess {
		t.Errorf("run status = %q", hosts[0].Run.Status)
	}

	w = ts.do(t, http.MethodGet, "/api/history/host/loja-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("host history = %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/history/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary = %d", w.Code)
	}
}

func TestTriggerAsync(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/api/hosts/loja-1/trigger?async=true", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("async trigger = %d", w.Code)
	}
	var run database.HostCheck
	decode(t, w, &run)
	if run.Status != database.RunPending || run.ID == "" {
		t.Fatalf("run = %+v", run)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = ts.do(t, http.MethodGet, "/api/hosts/loja-1/run", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("run = %d", w.Code)
		}
		decode(t, w, &run)
		if run.FinishedAt != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("async check never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run.Status != database.RunSuccess || run.RecordID == "" {
		t.Fatalf("finished run = %+v", run)
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, false)

	for _, tt := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/hosts/missing/trigger"},
		{http.MethodPost, "/api/hosts/missing/trigger?async=true"},
		{http.MethodGet, "/api/hosts/missing/run"},
		{http.MethodGet, "/api/hosts/loja-1/run"},
		{http.MethodGet, "/api/history/host/missing"},
		{http.MethodGet, "/api/logs/missing"},
	} {
		if w := ts.do(t, tt.method, tt.path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tt.method, tt.path, w.Code)
		}
	}
}

func TestHistoryBadLimit(t *testing.T) {
	ts := newTestServer(t, false)
	if w := ts.do(t, http.MethodGet, "/api/history?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("limit=abc = %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/history?since=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("since=yesterday = %d", w.Code)
	}
}

func TestUpdateSettings(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPut, "/api/settings", map[string]interface{}{"timezone": "Mars/Olympus"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid timezone = %d", w.Code)
	}
	w = ts.do(t, http.MethodPut, "/api/settings", map[string]interface{}{"check_interval": "10s"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short interval = %d", w.Code)
	}

	w = ts.do(t, http.MethodPut, "/api/settings", map[string]interface{}{
		"check_interval": 900,
		"mention_name":   "Suporte",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}

	stored, err := ts.store.GetSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stored.CheckInterval.Duration() != 15*time.Minute || stored.MentionName != "Suporte" {
		t.Fatalf("stored = %+v", stored)
	}
	if stored.Timezone != "America/Sao_Paulo" {
		t.Errorf("untouched field changed: %q", stored.Timezone)
	}

	w = ts.do(t, http.MethodGet, "/api/settings", nil)
	var got database.Settings
	decode(t, w, &got)
	if got.CheckInterval.Duration() != 15*time.Minute {
		t.Errorf("GET settings = %+v", got)
	}
}

func TestNotificationTest(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodPost, "/api/notifications/test", map[string]string{"message": "hello <ops>"})
	if w.Code != http.StatusOK {
		t.Fatalf("test = %d: %s", w.Code, w.Body.String())
	}
	if len(ts.sink.texts) != 1 || ts.sink.texts[0].Body != "hello &lt;ops&gt;" {
		t.Fatalf("sink got %+v", ts.sink.texts)
	}

	none := newTestServer(t, false)
	if w := none.do(t, http.MethodPost, "/api/notifications/test", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("no sinks = %d", w.Code)
	}
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t, false)
	dir := ts.srv.logDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := "\n# --- snapshot 2024-05-10T12:00:00Z ---\n" +
		`{"timestamp":"2024-05-10 11:58:00","message":"stream lost","level":"warn"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "Loja_1-go2rtc.log"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodGet, "/api/logs/loja-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logs = %d", w.Code)
	}
	var logs []struct {
		Service string                   `json:"service"`
		Columns []string                 `json:"columns"`
		Rows    []map[string]interface{} `json:"rows"`
	}
	decode(t, w, &logs)
	if len(logs) != 1 || logs[0].Service != "go2rtc" || len(logs[0].Rows) != 1 {
		t.Fatalf("logs = %+v", logs)
	}
	if logs[0].Columns[0] != "timestamp" || logs[0].Columns[1] != "message" {
		t.Errorf("columns = %v", logs[0].Columns)
	}
}

package logfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"camwatch/internal/database"
)

func TestCollectSkipsFailingService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/logs/go2rtc":
			w.Write([]byte("2024-05-10 11:58:00.123 WRN stream stalled\n2024-05-10 11:59:00 INF retry\n"))
		case "/api/logs/nginx":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/logs/frigate":
			w.Write([]byte(`{"ts":"2024-05-10T14:57:30Z","message":"camera porta: no frames"}` + "\n"))
		}
	}))
	defer srv.Close()

	loc := time.FixedZone("BRT", -3*3600)
	dir := t.TempDir()
	f := NewFetcher(srv.Client(), Options{Services: []string{"go2rtc", "nginx", "frigate"}, Timeout: time.Second, Dir: dir})
	f.now = func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) }

	res, err := f.Collect(context.Background(), database.Host{Name: "Loja Centro/1", Address: srv.URL + "/"}, loc)
	if err == nil {
		t.Fatal("expected combined error for nginx")
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected 1 service error, got %d: %v", n, err)
	}

	if len(res.Locations) != 2 {
		t.Fatalf("expected 2 log locations, got %+v", res.Locations)
	}
	if res.Locations[0].Service != "go2rtc" || res.Locations[1].Service != "frigate" {
		t.Fatalf("unexpected services %+v", res.Locations)
	}
	if !strings.HasSuffix(res.Locations[0].Path, "Loja_Centro_1-go2rtc.log") {
		t.Errorf("unsafe characters not replaced: %s", res.Locations[0].Path)
	}

	// 11:58 local (naive, UTC-3) is 14:58Z; the frigate entry at 14:57:30Z is earlier.
	want := time.Date(2024, 5, 10, 14, 57, 30, 0, time.UTC)
	if res.FailureStartedAt == nil || !res.FailureStartedAt.Equal(want) {
		t.Fatalf("failure_started_at = %v, want %v", res.FailureStartedAt, want)
	}
	if res.FailureStartedAt.Location() != loc {
		t.Errorf("failure_started_at not normalized to configured zone: %v", res.FailureStartedAt.Location())
	}
}

func TestCollectAppendsSnapshots(t *testing.T) {
	body := "line one"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.Client(), Options{Services: []string{"frigate"}, Dir: dir})
	host := database.Host{Name: "h", Address: srv.URL}

	if _, err := f.Collect(context.Background(), host, time.UTC); err != nil {
		t.Fatal(err)
	}
	body = "line two"
	res, err := f.Collect(context.Background(), host, time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(res.Locations[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), "# --- snapshot ") != 2 {
		t.Fatalf("expected two snapshot markers:\n%s", data)
	}
	if !strings.Contains(string(data), "line one") || !strings.Contains(string(data), "line two") {
		t.Fatalf("previous snapshot overwritten:\n%s", data)
	}

	logs, err := ReadSnapshots(dir, "h", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || len(logs[0].Rows) != 1 || logs[0].Rows[0]["message"] != "line two" {
		t.Fatalf("table should show latest snapshot only: %+v", logs)
	}
	if logs[0].CapturedAt == nil {
		t.Error("captured_at should be parsed from the marker")
	}
}

func TestCollectNothingReachable(t *testing.T) {
	f := NewFetcher(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})}, Options{Services: []string{"go2rtc", "nginx"}, Dir: t.TempDir()})

	res, err := f.Collect(context.Background(), database.Host{Name: "h", Address: "http://h"}, time.UTC)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.Locations) != 0 || res.FailureStartedAt != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

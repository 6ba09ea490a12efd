package snapshot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

const noFrames = "No frames have been received, check error logs"

func TestScanFailingCamerasCards(t *testing.T) {
	page := `<html><body>
<div class="camera-card" data-camera-id="porta"><span>ok</span></div>
<div class="card"><p>` + noFrames + `</p></div>
<div class="card" id="garagem"><div class="camera">nested ` + noFrames + `</div></div>
<div class="card">fine</div>
<script>var s = "` + noFrames + `";</script>
</body></html>`

	failing, total, err := ScanFailingCameras(strings.NewReader(page), noFrames)
	if err != nil {
		t.Fatalf("ScanFailingCameras: %v", err)
	}
	if total != 4 {
		t.Errorf("total cards = %d, want 4", total)
	}
	want := []string{"2", "garagem"}
	if !reflect.DeepEqual(failing, want) {
		t.Fatalf("failing = %v, want %v", failing, want)
	}
}

func TestScanFailingCamerasRepeatedLabel(t *testing.T) {
	page := `<div class="camera-card" data-camera-id="garage">` + noFrames + `</div>
<div class="camera-card" data-camera-id="garage">` + noFrames + `</div>`

	failing, total, err := ScanFailingCameras(strings.NewReader(page), noFrames)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(failing, []string{"garage"}) || total != 2 {
		t.Fatalf("failing = %v total = %d", failing, total)
	}
}

func TestScanFailingCamerasWithoutCards(t *testing.T) {
	page := `<html><body><section><p>` + noFrames + `</p><p>` + noFrames + `</p></section></body></html>`

	failing, _, err := ScanFailingCameras(strings.NewReader(page), noFrames)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(failing, []string{"1", "2"}) {
		t.Fatalf("failing = %v", failing)
	}
}

func TestHTMLProviderSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "camwatch-test" {
			t.Errorf("missing user agent")
		}
		w.Write([]byte(`<div class="card" data-camera-id="3">` + noFrames + `</div><div class="card" data-camera-id="7">` + noFrames + `</div>`))
	}))
	defer srv.Close()

	p := NewHTMLProvider(srv.Client(), Options{Timeout: time.Second, FailureText: noFrames, UserAgent: "camwatch-test"})
	snap, err := p.Snapshot(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !reflect.DeepEqual(snap.Failing, []string{"3", "7"}) {
		t.Fatalf("failing = %v", snap.Failing)
	}
	if snap.CaptureExt != "html" || len(snap.Capture) == 0 {
		t.Fatalf("expected html capture, got %q (%d bytes)", snap.CaptureExt, len(snap.Capture))
	}
}

func TestHTMLProviderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTMLProvider(srv.Client(), Options{Timeout: 50 * time.Millisecond, FailureText: noFrames})
	_, err := p.Snapshot(context.Background(), srv.URL)

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !perr.Timeout() {
		t.Fatalf("expected timeout, got %v", perr)
	}
}

func TestHTMLProviderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTMLProvider(srv.Client(), Options{}).Snapshot(context.Background(), srv.URL)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Op != "navigate" {
		t.Fatalf("expected navigate ProviderError, got %v", err)
	}
}

func TestStatsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"cameras":{"porta":{"camera_fps":5.1},"garagem":{"camera_fps":0.0},"fundos":{"camera_fps":0}},"service":{"uptime":10}}`))
	}))
	defer srv.Close()

	snap, err := NewStatsProvider(srv.Client(), Options{}).Snapshot(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Total != 3 {
		t.Errorf("total = %d", snap.Total)
	}
	if !reflect.DeepEqual(snap.Failing, []string{"fundos", "garagem"}) {
		t.Fatalf("failing = %v", snap.Failing)
	}
}

func TestParseStatsLegacyLayout(t *testing.T) {
	failing, total, err := parseStats([]byte(`{"front":{"camera_fps":0,"process_fps":0},"back":{"camera_fps":4},"detection_fps":3.2,"service":{"uptime":5}}`))
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || !reflect.DeepEqual(failing, []string{"front"}) {
		t.Fatalf("failing = %v total = %d", failing, total)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("selenium", nil, Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

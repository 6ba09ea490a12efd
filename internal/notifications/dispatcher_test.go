package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/database"
)

type fakeSink struct {
	name      string
	mu        sync.Mutex
	calls     []string
	texts     []Message
	failText  error
	failPaths map[string]error
	unsupport map[string]bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) SendText(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "text")
	f.texts = append(f.texts, msg)
	return f.failText
}

func (f *fakeSink) SendAttachment(ctx context.Context, att Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsupport[att.Kind] {
		return ErrUnsupported
	}
	f.calls = append(f.calls, att.Kind+":"+att.Path)
	return f.failPaths[att.Path]
}

func sampleAlert() Alert {
	started := time.Date(2024, 5, 10, 14, 57, 30, 0, time.UTC)
	return Alert{
		HostID:           "loja-1",
		HostName:         "Loja <Centro>",
		CameraIDs:        []string{"10", "2", "5"},
		FailureStartedAt: &started,
		DetectedAt:       time.Date(2024, 5, 10, 15, 5, 0, 0, time.UTC),
		Location:         time.FixedZone("BRT", -3*3600),
		LogLocations:     []database.LogLocation{{Service: "go2rtc", Path: "/data/logs/loja-go2rtc.log"}},
		Screenshots:      []string{"/data/shots/a-initial.png", "/data/shots/a-retry.png"},
		MentionName:      "Ops",
		MentionUserIDs:   []string{"123"},
	}
}

func TestNotifySendsTextThenEachAttachment(t *testing.T) {
	failing := &fakeSink{name: "flaky", failPaths: map[string]error{"/data/shots/a-initial.png": errors.New("too large")}}
	d, err := NewDispatcherWithSinks("", "", failing)
	if err != nil {
		t.Fatal(err)
	}

	err = d.Notify(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected attachment error to be reported, got %v", err)
	}

	want := []string{
		"text",
		"photo:/data/shots/a-initial.png",
		"photo:/data/shots/a-retry.png",
		"document:/data/logs/loja-go2rtc.log",
	}
	if strings.Join(failing.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", failing.calls, want)
	}
}

func TestNotifyContinuesAfterTextFailure(t *testing.T) {
	broken := &fakeSink{name: "broken", failText: errors.New("401")}
	healthy := &fakeSink{name: "healthy", unsupport: map[string]bool{KindDocument: true}}
	d, err := NewDispatcherWithSinks("", "", broken, healthy)
	if err != nil {
		t.Fatal(err)
	}

	err = d.Notify(context.Background(), sampleAlert())
	if err == nil {
		t.Fatal("expected error from broken sink")
	}
	if len(broken.calls) != 4 {
		t.Errorf("attachments should still be attempted after text failure: %v", broken.calls)
	}
	if len(healthy.texts) != 1 || len(healthy.calls) != 3 {
		t.Errorf("healthy sink calls = %v", healthy.calls)
	}
}

func TestNotifyWithoutSinksIsNoop(t *testing.T) {
	d, err := NewDispatcher(&config.NotificationConfig{Telegram: config.TelegramConfig{Enabled: true, BotToken: "x"}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Enabled() {
		t.Fatal("telegram without chat id should not be enabled")
	}
	if err := d.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify without sinks returned %v", err)
	}
	if err := d.Test(context.Background(), "hi"); err == nil {
		t.Fatal("Test without sinks should fail")
	}
}

func TestRenderMessage(t *testing.T) {
	d, err := NewDispatcherWithSinks("", "")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := d.Render(sampleAlert())
	if err != nil {
		t.Fatal(err)
	}

	checks := []string{
		"<code>Loja &lt;Centro&gt;</code>",
		"Failing cameras: 3 (2, 5, 10)",
		"Estimated start: 2024-05-10 11:57:30 BRT",
		"Detected at: 2024-05-10 12:05:00 BRT",
		"Log go2rtc: <code>/data/logs/loja-go2rtc.log</code>",
		`<a href="tg://user?id=123">Ops</a>`,
	}
	for _, want := range checks {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if msg.Title != "Cameras without frames: Loja <Centro>" {
		t.Errorf("title = %q", msg.Title)
	}

	alert := sampleAlert()
	alert.FailureStartedAt = nil
	msg, err = d.Render(alert)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg.Body, "Estimated start") {
		t.Errorf("unknown onset should be omitted:\n%s", msg.Body)
	}
}

func TestMentions(t *testing.T) {
	if got := Mentions("Ops", nil); got != "Ops" {
		t.Errorf("Mentions without ids = %q", got)
	}
	if got := Mentions("", []string{"1", " ", "2"}); got != `<a href="tg://user?id=1">operator</a> <a href="tg://user?id=2">operator</a>` {
		t.Errorf("Mentions = %q", got)
	}
}

func TestDispatcherSkipsDisabledAttachments(t *testing.T) {
	sink := &fakeSink{name: "s"}
	d, err := NewDispatcherWithSinks("", "", sink)
	if err != nil {
		t.Fatal(err)
	}
	d.attachLogs = false

	if err := d.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatal(err)
	}
	for _, c := range sink.calls {
		if strings.HasPrefix(c, "document:") {
			t.Fatalf("log attachment sent while disabled: %v", sink.calls)
		}
	}
}

func TestKindForPath(t *testing.T) {
	if KindForPath("x/shot.PNG") != KindPhoto {
		t.Error("png should be a photo")
	}
	if KindForPath("x/page.html") != KindDocument {
		t.Error("html should be a document")
	}
}

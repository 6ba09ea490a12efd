package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jordan-wright/email"

	"camwatch/internal/config"
)

func TestTelegramSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("chat_id") != "-100" || r.Form.Get("parse_mode") != "HTML" {
			t.Errorf("unexpected form %v", r.Form)
		}
		if !strings.HasPrefix(r.Form.Get("text"), "<b>A &amp; B</b>\n") {
			t.Errorf("title not escaped and bolded: %q", r.Form.Get("text"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink(config.TelegramConfig{BotToken: "TOKEN", ChatID: "-100", APIURL: srv.URL}, srv.Client())
	if err := sink.SendText(context.Background(), Message{Title: "A & B", Body: "body"}); err != nil {
		t.Fatalf("SendText: %v", err)
	}
}

func TestTelegramSendPhotoAndError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botT/sendPhoto":
			file, header, err := r.FormFile("photo")
			if err != nil {
				t.Fatalf("photo field missing: %v", err)
			}
			data, _ := io.ReadAll(file)
			if header.Filename != "shot.png" || string(data) != "png-bytes" {
				t.Errorf("unexpected upload %s %q", header.Filename, data)
			}
			w.Write([]byte(`{"ok":true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
		}
	}))
	defer srv.Close()

	sink := NewTelegramSink(config.TelegramConfig{BotToken: "T", ChatID: "1", APIURL: srv.URL}, srv.Client())
	if err := sink.SendAttachment(context.Background(), Attachment{Path: path, Kind: KindPhoto, Caption: "c"}); err != nil {
		t.Fatalf("SendAttachment photo: %v", err)
	}

	err := sink.SendAttachment(context.Background(), Attachment{Path: path, Kind: KindDocument})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestPushoverSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg PushoverMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Token != "app" || msg.User != "user" || msg.HTML != 1 {
			t.Errorf("unexpected message %+v", msg)
		}
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	sink := NewPushoverSink(config.PushoverConfig{APIToken: "app", UserKey: "user", APIURL: srv.URL}, srv.Client())
	if err := sink.SendText(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := sink.SendAttachment(context.Background(), Attachment{Path: "x.log", Kind: KindDocument}); err != ErrUnsupported {
		t.Fatalf("documents should be unsupported, got %v", err)
	}
}

func TestPushoverAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"errors":["user key is invalid"]}`))
	}))
	defer srv.Close()

	sink := NewPushoverSink(config.PushoverConfig{APIToken: "a", UserKey: "u", APIURL: srv.URL}, srv.Client())
	err := sink.SendText(context.Background(), Message{Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "user key is invalid") {
		t.Fatalf("expected pushover error, got %v", err)
	}
}

func TestEmailSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "h-frigate.log")
	if err := os.WriteFile(path, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}

	var sent []*email.Email
	sink := NewEmailSink(config.EmailConfig{From: "cam@example.com", To: []string{"ops@example.com"}})
	sink.send = func(e *email.Email) error {
		sent = append(sent, e)
		return nil
	}

	if err := sink.SendText(context.Background(), Message{Title: "alert", Body: "a\nb"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.SendAttachment(context.Background(), Attachment{Path: path, Kind: KindDocument, Caption: "h frigate log"}); err != nil {
		t.Fatal(err)
	}

	if len(sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(sent))
	}
	if sent[0].Subject != "alert" || !strings.Contains(string(sent[0].HTML), "a<br>") {
		t.Errorf("unexpected text email %q %q", sent[0].Subject, sent[0].HTML)
	}
	if len(sent[1].Attachments) != 1 || sent[1].Attachments[0].Filename != "h-frigate.log" {
		t.Errorf("attachment missing: %+v", sent[1].Attachments)
	}

	if err := sink.SendAttachment(context.Background(), Attachment{Path: filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// internal/notifications/telegram.go - Telegram Bot API sink
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"camwatch/internal/config"
)

// Telegram caps captions at 1024 characters.
const maxCaption = 1024

type TelegramSink struct {
	config     config.TelegramConfig
	httpClient *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramSink(cfg config.TelegramConfig, httpClient *http.Client) *TelegramSink {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	return &TelegramSink{config: cfg, httpClient: httpClient}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) SendText(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Title != "" {
		text = "<b>" + html.EscapeString(msg.Title) + "</b>\n" + msg.Body
	}

	form := url.Values{}
	form.Set("chat_id", t.config.ChatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req)
}

func (t *TelegramSink) SendAttachment(ctx context.Context, att Attachment) error {
	method, field := "sendDocument", "document"
	if att.Kind == KindPhoto {
		method, field = "sendPhoto", "photo"
	}

	file, err := os.Open(att.Path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", t.config.ChatID)
	if att.Caption != "" {
		caption := att.Caption
		if len(caption) > maxCaption {
			caption = caption[:maxCaption]
		}
		_ = w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile(field, filepath.Base(att.Path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(method), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return t.do(req)
}

func (t *TelegramSink) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.config.APIURL, "/"), t.config.BotToken, method)
}

func (t *TelegramSink) do(req *http.Request) error {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// the URL carries the bot token
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var tr telegramResponse
	if err := sonic.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API error: %s", tr.Description)
	}

	logrus.WithField("chat_id", t.config.ChatID).Debug("Telegram message sent")
	return nil
}

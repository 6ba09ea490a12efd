// internal/notifications/pushover.go - Pushover sink
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"camwatch/internal/config"
)

// Pushover rejects attachments above 2.5MB.
const maxPushoverAttachment = 2621440

type PushoverSink struct {
	config     config.PushoverConfig
	httpClient *http.Client
}

// PushoverMessage represents a message sent to Pushover API
type PushoverMessage struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Title     string `json:"title,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Device    string `json:"device,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	HTML      int    `json:"html,omitempty"`
}

// PushoverResponse represents the API response
type PushoverResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

func NewPushoverSink(cfg config.PushoverConfig, httpClient *http.Client) *PushoverSink {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.pushover.net/1/messages.json"
	}
	return &PushoverSink{config: cfg, httpClient: httpClient}
}

func (p *PushoverSink) Name() string { return "pushover" }

func (p *PushoverSink) SendText(ctx context.Context, msg Message) error {
	message := &PushoverMessage{
		Token:     p.config.APIToken,
		User:      p.config.UserKey,
		Title:     msg.Title,
		Message:   msg.Body,
		Priority:  p.config.Priority,
		Sound:     p.config.Sound,
		Device:    p.config.Device,
		Timestamp: time.Now().Unix(),
		HTML:      1,
	}

	jsonData, err := sonic.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req)
}

// SendAttachment posts an image as its own message. Pushover has no
// document attachments.
func (p *PushoverSink) SendAttachment(ctx context.Context, att Attachment) error {
	if att.Kind != KindPhoto {
		return ErrUnsupported
	}

	info, err := os.Stat(att.Path)
	if err != nil {
		return fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.Size() > maxPushoverAttachment {
		return fmt.Errorf("attachment %s exceeds pushover size limit", filepath.Base(att.Path))
	}

	file, err := os.Open(att.Path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := map[string]string{
		"token":    p.config.APIToken,
		"user":     p.config.UserKey,
		"message":  att.Caption,
		"priority": strconv.Itoa(p.config.Priority),
		"sound":    p.config.Sound,
	}
	if p.config.Device != "" {
		fields["device"] = p.config.Device
	}
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("attachment", filepath.Base(att.Path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return p.do(req)
}

func (p *PushoverSink) do(req *http.Request) error {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pushoverResp PushoverResponse
	if err := sonic.Unmarshal(data, &pushoverResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if pushoverResp.Status != 1 {
		return fmt.Errorf("pushover API error: %v", pushoverResp.Errors)
	}

	logrus.WithFields(logrus.Fields{
		"priority": p.config.Priority,
		"sound":    p.config.Sound,
	}).Debug("Pushover notification sent")
	return nil
}

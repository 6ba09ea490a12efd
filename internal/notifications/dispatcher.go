// internal/notifications/dispatcher.go - Renders alerts and fans them out to sinks
package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"camwatch/internal/config"
	"camwatch/internal/database"
	"camwatch/internal/history"
	"camwatch/internal/metrics"
)

const (
	DefaultTitle    = "Cameras without frames: {{.Host}}"
	DefaultTemplate = `Host: <code>{{html .Host}}</code>
Failing cameras: {{.Count}} ({{html .CameraList}})
{{if .FailureStartedAt}}Estimated start: {{.FailureStartedAt}}
{{end}}Detected at: {{.DetectedAt}}
{{range .Logs}}Log {{html .Service}}: <code>{{html .Path}}</code>
{{end}}{{.Mentions}}`

	timeLayout = "2006-01-02 15:04:05 MST"
)

// Alert is one confirmed failure episode to announce.
type Alert struct {
	HostID           string
	HostName         string
	Address          string
	CameraIDs        []string
	FailureStartedAt *time.Time
	DetectedAt       time.Time
	Location         *time.Location
	LogLocations     []database.LogLocation
	Screenshots      []string
	MentionName      string
	MentionUserIDs   []string
}

type Dispatcher struct {
	sinks             []Sink
	title             *template.Template
	body              *template.Template
	attachScreenshots bool
	attachLogs        bool
	metrics           *metrics.Collector
}

// NewDispatcher builds a dispatcher with every sink whose credentials are
// configured.
func NewDispatcher(cfg *config.NotificationConfig, client *http.Client, collector *metrics.Collector) (*Dispatcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var sinks []Sink
	if cfg.Telegram.Configured() {
		sinks = append(sinks, NewTelegramSink(cfg.Telegram, client))
	}
	if cfg.Pushover.Configured() {
		sinks = append(sinks, NewPushoverSink(cfg.Pushover, client))
	}
	if cfg.Email.Configured() {
		sinks = append(sinks, NewEmailSink(cfg.Email))
	}

	d, err := NewDispatcherWithSinks(cfg.Title, cfg.Template, sinks...)
	if err != nil {
		return nil, err
	}
	d.attachScreenshots = cfg.AttachScreenshotsEnabled()
	d.attachLogs = cfg.AttachLogsEnabled()
	d.metrics = collector

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logrus.WithFields(logrus.Fields{
		"sinks":              names,
		"attach_screenshots": d.attachScreenshots,
		"attach_logs":        d.attachLogs,
	}).Info("Notification dispatcher initialized")

	return d, nil
}

// NewDispatcherWithSinks builds a dispatcher over explicit sinks. Empty
// templates fall back to the defaults.
func NewDispatcherWithSinks(title, body string, sinks ...Sink) (*Dispatcher, error) {
	if title == "" {
		title = DefaultTitle
	}
	if body == "" {
		body = DefaultTemplate
	}

	titleTmpl, err := template.New("title").Parse(title)
	if err != nil {
		return nil, fmt.Errorf("failed to parse title template: %w", err)
	}
	bodyTmpl, err := template.New("message").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}

	return &Dispatcher{
		sinks:             sinks,
		title:             titleTmpl,
		body:              bodyTmpl,
		attachScreenshots: true,
		attachLogs:        true,
	}, nil
}

// Enabled reports whether at least one sink is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.sinks) > 0
}

func (d *Dispatcher) SinkNames() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify delivers the alert text and then every attachment to each sink.
// Delivery is best-effort: each send is independent and failures are logged
// and returned combined for the caller's notes.
func (d *Dispatcher) Notify(ctx context.Context, alert Alert) error {
	if !d.Enabled() {
		logrus.WithField("host", alert.HostName).Debug("No notification sink configured, skipping dispatch")
		return nil
	}

	msg, err := d.Render(alert)
	if err != nil {
		return err
	}
	attachments := d.attachments(alert)

	var errs error
	for _, sink := range d.sinks {
		err := sink.SendText(ctx, msg)
		d.record(sink, "text", err)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s text: %w", sink.Name(), err))
		}

		for _, att := range attachments {
			err := sink.SendAttachment(ctx, att)
			if errors.Is(err, ErrUnsupported) {
				logrus.WithFields(logrus.Fields{"sink": sink.Name(), "kind": att.Kind}).Debug("Attachment kind not supported by sink")
				continue
			}
			d.record(sink, att.Kind, err)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s %s %s: %w", sink.Name(), att.Kind, filepath.Base(att.Path), err))
			}
		}
	}

	if errs != nil {
		logrus.WithFields(logrus.Fields{
			"host":   alert.HostName,
			"errors": len(multierr.Errors(errs)),
		}).WithError(errs).Warn("Some notification deliveries failed")
	}
	return errs
}

// Test sends a plain test message through every sink.
func (d *Dispatcher) Test(ctx context.Context, text string) error {
	if !d.Enabled() {
		return fmt.Errorf("no notification sink is configured")
	}
	msg := Message{Title: "camwatch test notification", Body: html.EscapeString(text)}

	var errs error
	for _, sink := range d.sinks {
		err := sink.SendText(ctx, msg)
		d.record(sink, "test", err)
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Render produces the title and body for an alert.
func (d *Dispatcher) Render(alert Alert) (Message, error) {
	data := templateData(alert)

	var title, body bytes.Buffer
	if err := d.title.Execute(&title, data); err != nil {
		return Message{}, fmt.Errorf("failed to execute template title: %w", err)
	}
	if err := d.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("failed to execute template message: %w", err)
	}
	return Message{Title: strings.TrimSpace(title.String()), Body: strings.TrimSpace(body.String())}, nil
}

func (d *Dispatcher) attachments(alert Alert) []Attachment {
	var out []Attachment
	if d.attachScreenshots {
		for _, path := range alert.Screenshots {
			out = append(out, Attachment{Path: path, Kind: KindForPath(path), Caption: alert.HostName + " " + filepath.Base(path)})
		}
	}
	if d.attachLogs {
		for _, loc := range alert.LogLocations {
			out = append(out, Attachment{Path: loc.Path, Kind: KindDocument, Caption: alert.HostName + " " + loc.Service + " log"})
		}
	}
	return out
}

func (d *Dispatcher) record(sink Sink, kind string, err error) {
	d.metrics.RecordNotification(sink.Name(), kind, err)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"sink":  sink.Name(),
			"kind":  kind,
			"error": err,
		}).Error("Notification delivery failed")
	}
}

func templateData(alert Alert) map[string]interface{} {
	loc := alert.Location
	if loc == nil {
		loc = time.UTC
	}
	ids := history.SortCameraIDs(alert.CameraIDs)

	started := ""
	if alert.FailureStartedAt != nil {
		started = alert.FailureStartedAt.In(loc).Format(timeLayout)
	}

	return map[string]interface{}{
		"Host":             alert.HostName,
		"HostID":           alert.HostID,
		"Address":          alert.Address,
		"Count":            len(ids),
		"Cameras":          ids,
		"CameraList":       strings.Join(ids, ", "),
		"FailureStartedAt": started,
		"DetectedAt":       alert.DetectedAt.In(loc).Format(timeLayout),
		"Timezone":         loc.String(),
		"Logs":             alert.LogLocations,
		"Mentions":         Mentions(alert.MentionName, alert.MentionUserIDs),
	}
}

// Mentions renders Telegram user mentions. Without user ids the bare name is used.
func Mentions(name string, userIDs []string) string {
	label := name
	if label == "" {
		label = "operator"
	}
	var parts []string
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, html.EscapeString(id), html.EscapeString(label)))
	}
	if len(parts) == 0 {
		return html.EscapeString(name)
	}
	return strings.Join(parts, " ")
}

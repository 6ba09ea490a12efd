// internal/monitoring/confirm.go - Two-phase failure confirmation
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"camwatch/internal/database"
	"camwatch/internal/history"
	"camwatch/internal/logfetch"
	"camwatch/internal/snapshot"
)

// Outcome of the confirmation protocol for one host.
type Outcome struct {
	Status      string // database.StatusOK, StatusFailure or StatusError
	Failing     []string
	Initial     []string
	Screenshots []string
	Notes       []string
}

// Confirmer observes a dashboard twice, a delay apart, and only reports a
// failure when both observations show at least threshold failing cameras.
type Confirmer struct {
	provider      snapshot.Provider
	threshold     int
	screenshotDir string
	now           func() time.Time
}

func NewConfirmer(provider snapshot.Provider, threshold int, screenshotDir string) *Confirmer {
	if threshold < 2 {
		threshold = 2
	}
	return &Confirmer{provider: provider, threshold: threshold, screenshotDir: screenshotDir, now: time.Now}
}

func (c *Confirmer) Confirm(ctx context.Context, host database.Host, delay time.Duration, logf func(format string, args ...interface{})) Outcome {
	var out Outcome

	first, err := c.provider.Snapshot(ctx, host.Address)
	if err != nil {
		return c.providerFailure(host, "initial", err, out, logf)
	}
	out.Initial = history.SortCameraIDs(first.Failing)
	logf("Initial scan found %d failing cameras", len(out.Initial))

	if len(out.Initial) < c.threshold {
		out.Status = database.StatusOK
		out.Failing = out.Initial
		return out
	}

	if path := c.saveCapture(host, first, "initial"); path != "" {
		out.Screenshots = append(out.Screenshots, path)
	}

	logf("Waiting %s before confirming", delay)
	if err := wait(ctx, delay); err != nil {
		out.Status = database.StatusError
		out.Notes = append(out.Notes, "check cancelled during confirmation delay")
		logf("Check cancelled while waiting for confirmation")
		return out
	}

	second, err := c.provider.Snapshot(ctx, host.Address)
	if err != nil {
		return c.providerFailure(host, "confirmation", err, out, logf)
	}
	out.Failing = history.SortCameraIDs(second.Failing)
	logf("Confirmation scan found %d failing cameras", len(out.Failing))

	if path := c.saveCapture(host, second, "retry"); path != "" {
		out.Screenshots = append(out.Screenshots, path)
	}

	if len(out.Failing) < c.threshold {
		out.Status = database.StatusOK
		out.Notes = append(out.Notes, fmt.Sprintf("recovered before confirmation; initially failing: %s", strings.Join(out.Initial, ", ")))
		return out
	}

	out.Status = database.StatusFailure
	return out
}

func (c *Confirmer) providerFailure(host database.Host, phase string, err error, out Outcome, logf func(string, ...interface{})) Outcome {
	out.Status = database.StatusError
	out.Failing = nil

	note := fmt.Sprintf("%s snapshot failed: %v", phase, err)
	var perr *snapshot.ProviderError
	if errors.As(err, &perr) && perr.Timeout() {
		note = fmt.Sprintf("%s snapshot timed out: %v", phase, err)
	}
	out.Notes = append(out.Notes, note)
	logf("Dashboard snapshot failed: %v", err)

	logrus.WithFields(logrus.Fields{
		"host":  host.Name,
		"phase": phase,
		"error": err,
	}).Warn("Dashboard snapshot failed")
	return out
}

func (c *Confirmer) saveCapture(host database.Host, snap *snapshot.Snapshot, phase string) string {
	if c.screenshotDir == "" || len(snap.Capture) == 0 {
		return ""
	}
	if err := os.MkdirAll(c.screenshotDir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to create screenshot directory")
		return ""
	}

	ext := snap.CaptureExt
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%s-%s-%s.%s", logfetch.SafeName(host.Name), c.now().Format("20060102T150405"), phase, ext)
	path := filepath.Join(c.screenshotDir, name)
	if err := os.WriteFile(path, snap.Capture, 0644); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to save dashboard capture")
		return ""
	}
	return path
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

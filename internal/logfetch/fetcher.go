// internal/logfetch/fetcher.go - Pulls service logs from a host for diagnosis
package logfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"camwatch/internal/database"
)

const maxLogBytes = 16 << 20

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

type Options struct {
	Services  []string
	Endpoint  string // path template containing {service}
	Timeout   time.Duration
	Dir       string
	UserAgent string
}

type Fetcher struct {
	client *http.Client
	opts   Options
	now    func() time.Time
}

// ServiceOutcome reports what happened for one log service.
type ServiceOutcome struct {
	Service string
	Path    string
	Err     error
}

type Result struct {
	Locations        []database.LogLocation
	FailureStartedAt *time.Time
	Services         []ServiceOutcome
}

func NewFetcher(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "/api/logs/{service}"
	}
	return &Fetcher{client: client, opts: opts, now: time.Now}
}

// SafeName turns a host name into a file name component.
func SafeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Collect fetches every configured service's logs from the host. A service
// that fails is skipped; the returned error combines the per-service errors
// and never invalidates the partial result.
func (f *Fetcher) Collect(ctx context.Context, host database.Host, loc *time.Location) (*Result, error) {
	if loc == nil {
		loc = time.UTC
	}
	capturedAt := f.now().In(loc)
	base := strings.TrimRight(host.Address, "/")
	result := &Result{Locations: []database.LogLocation{}}

	var errs error
	var earliest *time.Time

	for _, service := range f.opts.Services {
		outcome := ServiceOutcome{Service: service}

		text, err := f.fetch(ctx, base+strings.ReplaceAll(f.opts.Endpoint, "{service}", service))
		if err != nil {
			outcome.Err = err
			result.Services = append(result.Services, outcome)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", service, err))
			logrus.WithFields(logrus.Fields{
				"host":    host.Name,
				"service": service,
				"error":   err,
			}).Warn("Log fetch failed, skipping service")
			continue
		}

		path, err := f.appendSnapshot(host.Name, service, text, capturedAt)
		if err != nil {
			outcome.Err = err
			result.Services = append(result.Services, outcome)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", service, err))
			continue
		}
		outcome.Path = path
		result.Services = append(result.Services, outcome)
		result.Locations = append(result.Locations, database.LogLocation{Service: service, Path: path})

		if ts, ok := EarliestTimestamp(ParseLines(text), loc, capturedAt); ok {
			if earliest == nil || ts.Before(*earliest) {
				t := ts
				earliest = &t
			}
		}
	}

	result.FailureStartedAt = earliest
	return result, errs
}

func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

func (f *Fetcher) appendSnapshot(hostName, service, text string, capturedAt time.Time) (string, error) {
	if err := os.MkdirAll(f.opts.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(f.opts.Dir, fmt.Sprintf("%s-%s.log", SafeName(hostName), service))

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s%s ---\n%s\n", snapshotMarker, capturedAt.Format(time.RFC3339), text); err != nil {
		return "", fmt.Errorf("failed to write log file: %w", err)
	}
	return path, nil
}

const snapshotMarker = "\n# --- snapshot "

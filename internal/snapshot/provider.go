// internal/snapshot/provider.go - Dashboard snapshot contract
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Snapshot is one observation of a dashboard.
type Snapshot struct {
	Failing    []string  `json:"failing"`
	Total      int       `json:"total"`
	TakenAt    time.Time `json:"taken_at"`
	Capture    []byte    `json:"-"`
	CaptureExt string    `json:"capture_ext,omitempty"`
}

// Provider renders a host's dashboard and reports the cameras showing the
// "no frames" fault.
type Provider interface {
	Snapshot(ctx context.Context, address string) (*Snapshot, error)
}

// ProviderError is returned when a dashboard could not be observed at all.
type ProviderError struct {
	Address string
	Op      string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Timeout reports whether the observation exceeded its deadline.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// New builds the provider named in configuration.
func New(kind string, client *http.Client, opts Options) (Provider, error) {
	switch kind {
	case "html", "":
		return NewHTMLProvider(client, opts), nil
	case "stats":
		return NewStatsProvider(client, opts), nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider %q", kind)
	}
}

type Options struct {
	Timeout     time.Duration
	FailureText string
	UserAgent   string
}

func fetch(ctx context.Context, client *http.Client, opts Options, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

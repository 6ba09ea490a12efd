// internal/snapshot/stats.go - Frigate /api/stats based detection
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// StatsProvider treats a camera whose capture rate dropped to zero as not
// receiving frames, which is what the dashboard card reports.
type StatsProvider struct {
	client *http.Client
	opts   Options
}

type cameraStats struct {
	CameraFPS    float64 `json:"camera_fps"`
	ProcessFPS   float64 `json:"process_fps"`
	DetectionFPS float64 `json:"detection_fps"`
}

type frigateStats struct {
	Cameras map[string]cameraStats `json:"cameras"`
}

func NewStatsProvider(client *http.Client, opts Options) *StatsProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &StatsProvider{client: client, opts: opts}
}

func (p *StatsProvider) Snapshot(ctx context.Context, address string) (*Snapshot, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	url := strings.TrimRight(address, "/") + "/api/stats"
	resp, err := fetch(ctx, p.client, p.opts, url)
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "stats", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "read", Err: err}
	}

	failing, total, err := parseStats(body)
	if err != nil {
		return nil, &ProviderError{Address: address, Op: "parse", Err: err}
	}

	return &Snapshot{
		Failing:    failing,
		Total:      total,
		TakenAt:    time.Now(),
		Capture:    body,
		CaptureExt: "json",
	}, nil
}

func parseStats(body []byte) ([]string, int, error) {
	var stats frigateStats
	if err := sonic.Unmarshal(body, &stats); err != nil {
		return nil, 0, fmt.Errorf("failed to decode stats: %w", err)
	}
	if stats.Cameras == nil {
		// Older Frigate versions put cameras at the top level next to "service".
		var flat map[string]json.RawMessage
		if err := sonic.Unmarshal(body, &flat); err != nil {
			return nil, 0, fmt.Errorf("failed to decode stats: %w", err)
		}
		stats.Cameras = make(map[string]cameraStats)
		for name, raw := range flat {
			var cam cameraStats
			if err := sonic.Unmarshal(raw, &cam); err != nil {
				continue
			}
			if strings.Contains(string(raw), "camera_fps") {
				stats.Cameras[name] = cam
			}
		}
	}

	var failing []string
	for name, cam := range stats.Cameras {
		if cam.CameraFPS <= 0 {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing, len(stats.Cameras), nil
}

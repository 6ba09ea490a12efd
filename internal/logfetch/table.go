// internal/logfetch/table.go - Tabular view over stored log snapshots
package logfetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const DefaultMaxRows = 500

type ServiceLog struct {
	Service    string                   `json:"service"`
	Path       string                   `json:"path"`
	CapturedAt *time.Time               `json:"captured_at,omitempty"`
	Columns    []string                 `json:"columns"`
	Rows       []map[string]interface{} `json:"rows"`
}

// ReadSnapshots loads the most recent snapshot of every stored log file for
// the host. Columns are the union of the entry keys, timestamp and message
// first.
func ReadSnapshots(dir, hostName string, maxRows int) ([]ServiceLog, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	prefix := SafeName(hostName) + "-"
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Strings(matches)

	logs := []ServiceLog{}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		service := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), ".log")
		body, capturedAt := lastSnapshot(string(data))
		entries := ParseLines(body)
		if len(entries) > maxRows {
			entries = entries[len(entries)-maxRows:]
		}

		sl := ServiceLog{Service: service, Path: path, CapturedAt: capturedAt, Columns: columns(entries), Rows: make([]map[string]interface{}, 0, len(entries))}
		for _, e := range entries {
			sl.Rows = append(sl.Rows, map[string]interface{}(e))
		}
		logs = append(logs, sl)
	}
	return logs, nil
}

func lastSnapshot(data string) (string, *time.Time) {
	marker := strings.TrimPrefix(snapshotMarker, "\n")
	idx := strings.LastIndex(data, marker)
	if idx < 0 {
		return data, nil
	}
	rest := data[idx+len(marker):]
	header, body, _ := strings.Cut(rest, "\n")
	var capturedAt *time.Time
	if ts, err := time.Parse(time.RFC3339, strings.TrimSuffix(header, " ---")); err == nil {
		capturedAt = &ts
	}
	return body, capturedAt
}

func columns(entries []Entry) []string {
	seen := map[string]bool{}
	var cols []string
	for _, first := range []string{"timestamp", "message"} {
		for _, e := range entries {
			if _, ok := e[first]; ok {
				cols = append(cols, first)
				seen[first] = true
				break
			}
		}
	}
	var rest []string
	for _, e := range entries {
		for k := range e {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

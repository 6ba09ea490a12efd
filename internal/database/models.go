// internal/database/models.go
package database

import (
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Check outcomes recorded in history.
const (
	StatusOK      = "ok"
	StatusFailure = "failure"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Run states of a HostCheck.
const (
	RunPending = "pending"
	RunRunning = "running"
	RunSuccess = "success"
	RunFailure = "failure"
	RunError   = "error"
	RunSkipped = "skipped"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

type Host struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings are the runtime knobs editable through the API.
type Settings struct {
	CheckInterval     Duration  `json:"check_interval"`
	ConfirmationDelay Duration  `json:"confirmation_delay"`
	Timezone          string    `json:"timezone"`
	MentionName       string    `json:"mention_name"`
	MentionUserIDs    []string  `json:"mention_user_ids"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Location resolves the configured timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Settings) Validate() error {
	if s.CheckInterval.Duration() < time.Minute {
		return fmt.Errorf("check_interval must be at least 1m")
	}
	if s.ConfirmationDelay.Duration() < 0 {
		return fmt.Errorf("confirmation_delay cannot be negative")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		return fmt.Errorf("timezone %q is not a valid IANA zone", s.Timezone)
	}
	return nil
}

// Duration marshals as a Go duration string and also accepts a number of seconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

type LogLocation struct {
	Service string `json:"service"`
	Path    string `json:"path"`
}

// CheckRecord is one executed check attempt. Records are immutable once appended.
type CheckRecord struct {
	ID               string        `json:"id"`
	Sequence         uint64        `json:"sequence"`
	HostID           string        `json:"host_id"`
	HostName         string        `json:"host_name"`
	Trigger          string        `json:"trigger"`
	Timestamp        time.Time     `json:"timestamp"`
	Timezone         string        `json:"timezone"`
	Status           string        `json:"status"`
	FailingCount     int           `json:"failing_count"`
	FailingCameraIDs []string      `json:"failing_camera_ids"`
	FailureStartedAt *time.Time    `json:"failure_started_at,omitempty"`
	LogLocations     []LogLocation `json:"log_locations"`
	Screenshots      []string      `json:"screenshots"`
	Notified         bool          `json:"notified"`
	Notes            string        `json:"notes,omitempty"`
	DurationMS       float64       `json:"duration_ms"`
}

type RunLogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// HostCheck is the run-state of one check attempt.
type HostCheck struct {
	ID         string       `json:"id"`
	HostID     string       `json:"host_id"`
	Trigger    string       `json:"trigger"`
	Status     string       `json:"status"`
	Log        []RunLogLine `json:"log"`
	Summary    string       `json:"summary,omitempty"`
	RecordID   string       `json:"record_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

type HostFilters struct {
	Enabled *bool
}

type RecordFilters struct {
	HostID string
	Status string
	Since  *time.Time
	Limit  int
}

// DatabaseStats provides information about database size and health
type DatabaseStats struct {
	TotalHosts   int       `json:"total_hosts"`
	TotalRecords int       `json:"total_records"`
	TotalRuns    int       `json:"total_runs"`
	DatabaseSize int64     `json:"database_size_bytes"`
	OldestEntry  time.Time `json:"oldest_entry"`
	NewestEntry  time.Time `json:"newest_entry"`
}

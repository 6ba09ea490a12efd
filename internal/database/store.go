// internal/database/store.go
package database

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store defines the interface for database operations
type Store interface {
	// Host operations
	GetHosts(ctx context.Context, filters HostFilters) ([]Host, error)
	GetHost(ctx context.Context, id string) (*Host, error)
	SyncHosts(ctx context.Context, hosts []Host) (SyncResult, error)

	// Settings
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error
	EnsureSettings(ctx context.Context, defaults *Settings) (*Settings, error)

	// History journal
	AppendRecord(ctx context.Context, record *CheckRecord) error
	ListRecords(ctx context.Context, filters RecordFilters) ([]CheckRecord, error)
	LatestRecords(ctx context.Context) (map[string]CheckRecord, error)

	// Run-state
	SaveRun(ctx context.Context, run *HostCheck) error
	GetRun(ctx context.Context, id string) (*HostCheck, error)
	LatestRun(ctx context.Context, hostID string) (*HostCheck, error)

	GetDatabaseStats(ctx context.Context) (*DatabaseStats, error)

	// Close the database connection
	Close() error
}

type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

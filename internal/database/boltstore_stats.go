// internal/database/boltstore_stats.go - Database size and health
package database

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

// GetDatabaseStats returns information about database size and health
func (s *BoltStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalHosts = tx.Bucket(HostsBucket).Stats().KeyN
		stats.TotalRuns = tx.Bucket(RunsBucket).Stats().KeyN

		return tx.Bucket(RecordsBucket).ForEach(func(k, v []byte) error {
			stats.TotalRecords++

			var record struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			ts := record.Timestamp
			if stats.OldestEntry.IsZero() || ts.Before(stats.OldestEntry) {
				stats.OldestEntry = ts
			}
			if ts.After(stats.NewestEntry) {
				stats.NewestEntry = ts
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}

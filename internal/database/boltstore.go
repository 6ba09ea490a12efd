// internal/database/boltstore.go - BoltDB journal, hosts, settings and run-state
package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	HostsBucket      = []byte("hosts")
	RecordsBucket    = []byte("records")
	RunsBucket       = []byte("runs")
	LatestRunsBucket = []byte("latest_runs")
	MetaBucket       = []byte("meta")

	settingsKey = []byte("settings")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{HostsBucket, RecordsBucket, RunsBucket, LatestRunsBucket, MetaBucket}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) GetHosts(ctx context.Context, filters HostFilters) ([]Host, error) {
	var hosts []Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var host Host
			if err := json.Unmarshal(v, &host); err != nil {
				return fmt.Errorf("failed to unmarshal host %s: %w", k, err)
			}
			if filters.Enabled != nil && host.Enabled != *filters.Enabled {
				return nil
			}
			hosts = append(hosts, host)
			return nil
		})
	})

	return hosts, err
}

func (s *BoltStore) GetHost(ctx context.Context, id string) (*Host, error) {
	var host Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(HostsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("host %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &host)
	})

	if err != nil {
		return nil, err
	}
	return &host, nil
}

// SyncHosts makes the hosts bucket match the given list. Hosts missing from
// the list are removed; their history stays in the journal.
func (s *BoltStore) SyncHosts(ctx context.Context, hosts []Host) (SyncResult, error) {
	var result SyncResult
	now := time.Now()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		wanted := make(map[string]bool, len(hosts))

		for _, host := range hosts {
			wanted[host.ID] = true

			if existing := b.Get([]byte(host.ID)); existing != nil {
				var prev Host
				if err := json.Unmarshal(existing, &prev); err == nil {
					if prev.Name == host.Name && prev.Address == host.Address && prev.Enabled == host.Enabled {
						continue
					}
					host.CreatedAt = prev.CreatedAt
				}
				result.Updated++
			} else {
				host.CreatedAt = now
				result.Created++
			}
			host.UpdatedAt = now

			data, err := json.Marshal(host)
			if err != nil {
				return fmt.Errorf("failed to marshal host: %w", err)
			}
			if err := b.Put([]byte(host.ID), data); err != nil {
				return err
			}
		}

		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if !wanted[string(k)] {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete host %s: %w", k, err)
			}
			result.Removed++
		}
		return nil
	})

	return result, err
}

func (s *BoltStore) GetSettings(ctx context.Context) (*Settings, error) {
	var settings Settings

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(MetaBucket).Get(settingsKey)
		if v == nil {
			return fmt.Errorf("settings: %w", ErrNotFound)
		}
		return json.Unmarshal(v, &settings)
	})
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *BoltStore) SaveSettings(ctx context.Context, settings *Settings) error {
	settings.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		return tx.Bucket(MetaBucket).Put(settingsKey, data)
	})
}

// EnsureSettings stores defaults on first start and returns what is persisted.
func (s *BoltStore) EnsureSettings(ctx context.Context, defaults *Settings) (*Settings, error) {
	current, err := s.GetSettings(ctx)
	if err == nil {
		return current, nil
	}
	if err := s.SaveSettings(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

// AppendRecord adds a record to the journal. The key is the bucket sequence,
// so the on-disk order is append order.
func (s *BoltStore) AppendRecord(ctx context.Context, record *CheckRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(RecordsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate record sequence: %w", err)
		}
		record.Sequence = seq

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// ListRecords returns matching records ordered by timestamp, newest first.
func (s *BoltStore) ListRecords(ctx context.Context, filters RecordFilters) ([]CheckRecord, error) {
	var records []CheckRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(RecordsBucket).ForEach(func(k, v []byte) error {
			var record CheckRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // Skip malformed entries
			}
			if filters.HostID != "" && record.HostID != filters.HostID {
				return nil
			}
			if filters.Status != "" && record.Status != filters.Status {
				return nil
			}
			if filters.Since != nil && record.Timestamp.Before(*filters.Since) {
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return newer(records[i], records[j])
	})

	if filters.Limit > 0 && len(records) > filters.Limit {
		records = records[:filters.Limit]
	}
	return records, nil
}

// LatestRecords returns the newest record of every host that has one.
func (s *BoltStore) LatestRecords(ctx context.Context) (map[string]CheckRecord, error) {
	latest := make(map[string]CheckRecord)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(RecordsBucket).ForEach(func(k, v []byte) error {
			var record CheckRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil
			}
			if current, ok := latest[record.HostID]; !ok || newer(record, current) {
				latest[record.HostID] = record
			}
			return nil
		})
	})

	return latest, err
}

func (s *BoltStore) SaveRun(ctx context.Context, run *HostCheck) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if err := tx.Bucket(RunsBucket).Put([]byte(run.ID), data); err != nil {
			return err
		}
		return tx.Bucket(LatestRunsBucket).Put([]byte(run.HostID), []byte(run.ID))
	})
}

func (s *BoltStore) GetRun(ctx context.Context, id string) (*HostCheck, error) {
	var run HostCheck

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(RunsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltStore) LatestRun(ctx context.Context, hostID string) (*HostCheck, error) {
	var run HostCheck

	err := s.db.View(func(tx *bbolt.Tx) error {
		runID := tx.Bucket(LatestRunsBucket).Get([]byte(hostID))
		if runID == nil {
			return fmt.Errorf("run for host %s: %w", hostID, ErrNotFound)
		}
		v := tx.Bucket(RunsBucket).Get(runID)
		if v == nil {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func newer(a, b CheckRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.Sequence > b.Sequence
}

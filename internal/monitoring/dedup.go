// internal/monitoring/dedup.go - Alert deduplication memory
package monitoring

import (
	"strings"
	"sync"

	"camwatch/internal/history"
)

// AlertMemory remembers, per host, the camera set of the last alert sent.
// It lives only as long as the orchestrator that owns it.
type AlertMemory struct {
	mu   sync.Mutex
	last map[string]string
}

func NewAlertMemory() *AlertMemory {
	return &AlertMemory{last: make(map[string]string)}
}

// Signature is the canonical form of a camera set.
func Signature(ids []string) string {
	return strings.Join(history.SortCameraIDs(ids), ",")
}

// ShouldNotify reports whether ids differ from the last alerted set.
func (m *AlertMemory) ShouldNotify(hostID string, ids []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.last[hostID]
	return !ok || last != Signature(ids)
}

func (m *AlertMemory) Remember(hostID string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[hostID] = Signature(ids)
}

func (m *AlertMemory) Clear(hostID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, hostID)
}

// Snapshot returns a copy of the remembered signatures.
func (m *AlertMemory) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

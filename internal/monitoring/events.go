// internal/monitoring/events.go
package monitoring

import "camwatch/internal/database"

const (
	EventRecord = "record"
	EventRun    = "run"
)

// Event is published whenever a record is appended or a run-state changes.
type Event struct {
	Type   string                `json:"type"`
	Record *database.CheckRecord `json:"record,omitempty"`
	Run    *database.HostCheck   `json:"run,omitempty"`
}

type Listener func(Event)

// Subscribe registers a listener. Listeners are called synchronously and
// must not block.
func (o *Orchestrator) Subscribe(l Listener) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) emit(ev Event) {
	o.listenersMu.RLock()
	listeners := o.listeners
	o.listenersMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

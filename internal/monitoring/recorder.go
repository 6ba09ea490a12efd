// internal/monitoring/recorder.go - Run-state bookkeeping for a check attempt
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"camwatch/internal/database"
)

type runRecorder struct {
	o   *Orchestrator
	loc *time.Location

	mu  sync.Mutex
	run *database.HostCheck
}

func (o *Orchestrator) newRun(hostID, trigger string, loc *time.Location) *database.HostCheck {
	msg := "Scheduled check queued"
	if trigger == database.TriggerManual {
		msg = "Manual check requested"
	}
	now := o.now()
	run := &database.HostCheck{
		ID:        uuid.New().String(),
		HostID:    hostID,
		Trigger:   trigger,
		Status:    database.RunPending,
		CreatedAt: now,
		Log:       []database.RunLogLine{{Timestamp: now.In(loc), Message: msg}},
	}
	o.saveRun(run)
	return run
}

func (o *Orchestrator) recorder(run *database.HostCheck, loc *time.Location) *runRecorder {
	return &runRecorder{o: o, run: run, loc: loc}
}

func (r *runRecorder) start() {
	r.mu.Lock()
	now := r.o.now()
	r.run.Status = database.RunRunning
	r.run.StartedAt = &now
	r.append(now, "Check started")
	r.mu.Unlock()
	r.flush()
}

func (r *runRecorder) logf(format string, args ...interface{}) {
	r.mu.Lock()
	r.append(r.o.now(), fmt.Sprintf(format, args...))
	r.mu.Unlock()
	r.flush()
}

func (r *runRecorder) finish(status, summary, recordID string) {
	r.mu.Lock()
	now := r.o.now()
	r.run.Status = status
	r.run.Summary = summary
	r.run.RecordID = recordID
	r.run.FinishedAt = &now
	r.append(now, summary)
	r.mu.Unlock()
	r.flush()
}

func (r *runRecorder) append(ts time.Time, msg string) {
	r.run.Log = append(r.run.Log, database.RunLogLine{Timestamp: ts.In(r.loc), Message: msg})
}

func (r *runRecorder) flush() {
	r.mu.Lock()
	snapshot := *r.run
	snapshot.Log = append([]database.RunLogLine(nil), r.run.Log...)
	r.mu.Unlock()
	r.o.saveRun(&snapshot)
}

func (o *Orchestrator) saveRun(run *database.HostCheck) {
	err := o.store.SaveRun(context.Background(), run)
	o.metrics.RecordStoreOperation("save_run", err)
	if err != nil {
		logrus.WithError(err).WithField("host_id", run.HostID).Warn("Failed to save run state")
		return
	}
	o.emit(Event{Type: EventRun, Run: run})
}

func runStatus(recordStatus string) string {
	switch recordStatus {
	case database.StatusOK:
		return database.RunSuccess
	case database.StatusFailure:
		return database.RunFailure
	case database.StatusSkipped:
		return database.RunSkipped
	default:
		return database.RunError
	}
}

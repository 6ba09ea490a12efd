// internal/monitoring/orchestrator.go - Check orchestration
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"camwatch/internal/database"
	"camwatch/internal/logfetch"
	"camwatch/internal/metrics"
	"camwatch/internal/notifications"
	"camwatch/internal/snapshot"
)

// LogCollector gathers diagnostic logs for a confirmed failure.
type LogCollector interface {
	Collect(ctx context.Context, host database.Host, loc *time.Location) (*logfetch.Result, error)
}

// Notifier announces a confirmed failure episode. Enabled reports whether
// Notify would reach any sink.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, alert notifications.Alert) error
}

type Options struct {
	MinFailingCameras   int
	MaxConcurrentChecks int
	RunOnStart          bool
	ScreenshotDir       string
	// ShutdownGrace bounds how long Stop waits for running checks. Zero
	// waits until they finish.
	ShutdownGrace time.Duration
	// Used when the store has no settings yet.
	DefaultSettings database.Settings
}

type Orchestrator struct {
	store     database.Store
	confirmer *Confirmer
	logs      LogCollector
	notifier  Notifier
	metrics   *metrics.Collector
	opts      Options
	memory    *AlertMemory
	inflight  singleflight.Group
	now       func() time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	cron     *cron.Cron
	job      cron.Job
	running  bool
	stopping bool

	listenersMu sync.RWMutex
	listeners   []Listener
}

type checkResult struct {
	record *database.CheckRecord
	runID  string
}

func New(store database.Store, provider snapshot.Provider, logs LogCollector, notifier Notifier, collector *metrics.Collector, opts Options) *Orchestrator {
	runCtx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		store:     store,
		confirmer: NewConfirmer(provider, opts.MinFailingCameras, opts.ScreenshotDir),
		logs:      logs,
		notifier:  notifier,
		metrics:   collector,
		opts:      opts,
		memory:    NewAlertMemory(),
		now:       time.Now,
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	o.job = cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).Then(cron.FuncJob(o.scheduledCycle))
	return o
}

// Memory exposes the deduplication memory, mainly for inspection.
func (o *Orchestrator) Memory() *AlertMemory { return o.memory }

// Settings returns the persisted settings, or the defaults when none exist.
func (o *Orchestrator) Settings(ctx context.Context) database.Settings {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logrus.WithError(err).Warn("Failed to read settings, using defaults")
		}
		return o.opts.DefaultSettings
	}
	return *settings
}

// RunCycle checks every enabled host concurrently and waits for all of them.
// Each host's outcome, including failures, ends up in history.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := o.now()
	enabled := true
	hosts, err := o.store.GetHosts(ctx, database.HostFilters{Enabled: &enabled})
	o.metrics.RecordStoreOperation("get_hosts", err)
	if err != nil {
		return fmt.Errorf("failed to load hosts: %w", err)
	}
	settings := o.Settings(ctx)
	loc := settings.Location()

	logrus.WithFields(logrus.Fields{
		"hosts":    len(hosts),
		"interval": settings.CheckInterval.Duration(),
	}).Info("Starting check cycle")

	g := new(errgroup.Group)
	if o.opts.MaxConcurrentChecks > 0 {
		g.SetLimit(o.opts.MaxConcurrentChecks)
	}

	for _, host := range hosts {
		host := host
		run := o.newRun(host.ID, database.TriggerScheduled, loc)
		g.Go(func() error {
			ch, err := o.launch(host, database.TriggerScheduled, settings, run)
			if err != nil {
				o.recorder(run, loc).finish(database.RunSkipped, err.Error(), "")
				return nil
			}
			<-ch
			return nil
		})
	}
	_ = g.Wait()

	elapsed := o.now().Sub(start)
	o.metrics.RecordCycle(elapsed)
	logrus.WithFields(logrus.Fields{
		"hosts":    len(hosts),
		"duration": elapsed.Round(time.Millisecond),
	}).Info("Check cycle complete")
	return nil
}

// Trigger runs one check for the host now and returns its record. Manual
// checks run even when the host is disabled.
func (o *Orchestrator) Trigger(ctx context.Context, hostID string) (*database.CheckRecord, error) {
	host, settings, run, err := o.prepareManual(ctx, hostID)
	if err != nil {
		return nil, err
	}

	ch, err := o.launch(*host, database.TriggerManual, settings, run)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.record, res.err
	case <-ctx.Done():
		// the check keeps running and is still recorded
		return nil, ctx.Err()
	}
}

// TriggerAsync queues a manual check and returns its pending run-state.
func (o *Orchestrator) TriggerAsync(ctx context.Context, hostID string) (*database.HostCheck, error) {
	host, settings, run, err := o.prepareManual(ctx, hostID)
	if err != nil {
		return nil, err
	}
	// the recorder mutates run once launched
	queued := *run
	queued.Log = append([]database.RunLogLine(nil), run.Log...)
	if _, err := o.launch(*host, database.TriggerManual, settings, run); err != nil {
		return nil, err
	}
	return &queued, nil
}

// CurrentRunState returns the latest run-state of the host.
func (o *Orchestrator) CurrentRunState(ctx context.Context, hostID string) (*database.HostCheck, error) {
	run, err := o.store.LatestRun(ctx, hostID)
	if errors.Is(err, database.ErrNotFound) {
		if _, herr := o.store.GetHost(ctx, hostID); errors.Is(herr, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrHostNotFound, hostID)
		}
	}
	return run, err
}

func (o *Orchestrator) prepareManual(ctx context.Context, hostID string) (*database.Host, database.Settings, *database.HostCheck, error) {
	host, err := o.store.GetHost(ctx, hostID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, database.Settings{}, nil, fmt.Errorf("%w: %s", ErrHostNotFound, hostID)
		}
		return nil, database.Settings{}, nil, err
	}
	settings := o.Settings(ctx)
	run := o.newRun(host.ID, database.TriggerManual, settings.Location())
	return host, settings, run, nil
}

type launchResult struct {
	record *database.CheckRecord
	err    error
}

// launch starts the check, or joins the one already running for the host.
// The returned channel yields exactly once.
func (o *Orchestrator) launch(host database.Host, trigger string, settings database.Settings, run *database.HostCheck) (<-chan launchResult, error) {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return nil, ErrStopped
	}
	o.wg.Add(1)
	o.mu.Unlock()

	shared := o.inflight.DoChan(host.ID, func() (interface{}, error) {
		return o.checkHost(host, trigger, settings, run)
	})

	out := make(chan launchResult, 1)
	go func() {
		defer o.wg.Done()
		res := <-shared
		cr, _ := res.Val.(*checkResult)

		var record *database.CheckRecord
		if cr != nil {
			record = cr.record
			if cr.runID != run.ID {
				o.joinRun(run, settings.Location(), record, res.Err)
			}
		}
		out <- launchResult{record: record, err: res.Err}
	}()
	return out, nil
}

func (o *Orchestrator) joinRun(run *database.HostCheck, loc *time.Location, record *database.CheckRecord, err error) {
	rr := o.recorder(run, loc)
	rr.logf("Joined the check already in progress for this host")
	if record == nil {
		rr.finish(database.RunError, fmt.Sprintf("in-progress check failed: %v", err), "")
		return
	}
	rr.finish(runStatus(record.Status), summarize(record), record.ID)
}

func (o *Orchestrator) checkHost(host database.Host, trigger string, settings database.Settings, run *database.HostCheck) (*checkResult, error) {
	loc := settings.Location()
	rr := o.recorder(run, loc)
	rr.start()

	start := o.now()
	record := o.evaluate(o.runCtx, host, trigger, settings, rr, start)
	record.DurationMS = float64(o.now().Sub(start).Microseconds()) / 1000

	err := o.store.AppendRecord(context.Background(), record)
	o.metrics.RecordStoreOperation("append_record", err)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"host":  host.Name,
			"error": err,
		}).Error("Failed to append check record")
		rr.finish(database.RunError, "Failed to store check result: "+err.Error(), "")
		return &checkResult{record: record, runID: run.ID}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	o.metrics.RecordCheck(record.HostName, record.Status, record.FailingCount, o.now().Sub(start))
	o.emit(Event{Type: EventRecord, Record: record})
	rr.finish(runStatus(record.Status), summarize(record), record.ID)

	logrus.WithFields(logrus.Fields{
		"host":     host.Name,
		"status":   record.Status,
		"failing":  record.FailingCount,
		"notified": record.Notified,
		"trigger":  trigger,
	}).Info("Check complete")

	return &checkResult{record: record, runID: run.ID}, nil
}

// evaluate runs detect, confirm, diagnose and notify for one host. It never
// returns an error: every problem becomes part of the record.
func (o *Orchestrator) evaluate(ctx context.Context, host database.Host, trigger string, settings database.Settings, rr *runRecorder, start time.Time) (record *database.CheckRecord) {
	loc := settings.Location()
	record = &database.CheckRecord{
		HostID:           host.ID,
		HostName:         host.Name,
		Trigger:          trigger,
		Timestamp:        start.In(loc),
		Timezone:         loc.String(),
		FailingCameraIDs: []string{},
		LogLocations:     []database.LogLocation{},
		Screenshots:      []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"host":  host.Name,
				"panic": r,
			}).Error("Check panicked")
			o.memory.Clear(host.ID)
			record.Status = database.StatusError
			record.FailingCount = 0
			record.FailingCameraIDs = []string{}
			record.Notes = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if trigger == database.TriggerScheduled {
		current, err := o.store.GetHost(ctx, host.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			record.Status = database.StatusError
			record.Notes = "host was removed before the check started"
			return record
		case err == nil && !current.Enabled:
			record.Status = database.StatusSkipped
			record.Notes = "Host disabled"
			rr.logf("Host disabled, skipping")
			return record
		case err == nil:
			host = *current
		}
	}

	outcome := o.confirmer.Confirm(ctx, host, settings.ConfirmationDelay.Duration(), rr.logf)
	record.Status = outcome.Status
	record.FailingCameraIDs = append(record.FailingCameraIDs, outcome.Failing...)
	record.FailingCount = len(record.FailingCameraIDs)
	record.Screenshots = append(record.Screenshots, outcome.Screenshots...)
	notes := outcome.Notes

	if outcome.Status != database.StatusFailure {
		o.memory.Clear(host.ID)
		record.Notes = strings.Join(notes, "; ")
		return record
	}

	if o.logs != nil {
		rr.logf("Collecting service logs")
		res, err := o.logs.Collect(ctx, host, loc)
		if res != nil {
			record.LogLocations = append(record.LogLocations, res.Locations...)
			record.FailureStartedAt = res.FailureStartedAt
			for _, svc := range res.Services {
				o.metrics.RecordLogFetch(svc.Service, svc.Err)
			}
		}
		if err != nil {
			notes = append(notes, "log fetch: "+err.Error())
		}
		rr.logf("Collected %d service logs", len(record.LogLocations))
	}

	if !o.memory.ShouldNotify(host.ID, record.FailingCameraIDs) {
		rr.logf("Failing set unchanged since last alert, notification suppressed")
		notes = append(notes, "notification suppressed: same cameras as the last alert")
		record.Notes = strings.Join(notes, "; ")
		return record
	}

	if o.notifier == nil || !o.notifier.Enabled() {
		rr.logf("No notification sinks configured")
		notes = append(notes, "not notified: no notification sinks configured")
		record.Notes = strings.Join(notes, "; ")
		return record
	}

	rr.logf("Dispatching notification")
	alert := notifications.Alert{
		HostID:           host.ID,
		HostName:         host.Name,
		Address:          host.Address,
		CameraIDs:        record.FailingCameraIDs,
		FailureStartedAt: record.FailureStartedAt,
		DetectedAt:       o.now(),
		Location:         loc,
		LogLocations:     record.LogLocations,
		Screenshots:      record.Screenshots,
		MentionName:      settings.MentionName,
		MentionUserIDs:   settings.MentionUserIDs,
	}
	if err := o.notifier.Notify(ctx, alert); err != nil {
		notes = append(notes, "notify: "+err.Error())
	}
	record.Notified = true
	o.memory.Remember(host.ID, record.FailingCameraIDs)

	record.Notes = strings.Join(notes, "; ")
	return record
}

func summarize(record *database.CheckRecord) string {
	switch record.Status {
	case database.StatusOK:
		if record.Notes != "" {
			return "No confirmed failure: " + record.Notes
		}
		return "All cameras receiving frames"
	case database.StatusFailure:
		s := fmt.Sprintf("%d cameras without frames: %s", record.FailingCount, strings.Join(record.FailingCameraIDs, ", "))
		if record.Notes != "" {
			s += " (" + record.Notes + ")"
		}
		return s
	case database.StatusSkipped:
		return "Skipped: " + record.Notes
	default:
		return "Check error: " + record.Notes
	}
}

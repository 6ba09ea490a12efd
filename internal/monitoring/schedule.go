// internal/monitoring/schedule.go - Interval scheduling, reload and shutdown
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Start begins interval scheduling. The first cycle runs right away when
// RunOnStart is set.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}
	if o.stopping {
		return ErrStopped
	}

	settings := o.Settings(ctx)
	if err := o.startCronLocked(settings.CheckInterval.Duration()); err != nil {
		return err
	}
	o.running = true

	logrus.WithFields(logrus.Fields{
		"interval":           settings.CheckInterval.Duration(),
		"confirmation_delay": settings.ConfirmationDelay.Duration(),
		"timezone":           settings.Timezone,
		"run_on_start":       o.opts.RunOnStart,
	}).Info("Check scheduler started")

	if o.opts.RunOnStart {
		go o.job.Run()
	}
	return nil
}

// Reload re-reads settings and replaces the schedule. Checks already running
// finish and are recorded normally.
func (o *Orchestrator) Reload(ctx context.Context) error {
	settings := o.Settings(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopping {
		return ErrStopped
	}
	if !o.running {
		return nil
	}

	if o.cron != nil {
		o.cron.Stop()
		o.cron = nil
	}
	if err := o.startCronLocked(settings.CheckInterval.Duration()); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"interval": settings.CheckInterval.Duration(),
		"timezone": settings.Timezone,
	}).Info("Check scheduler reloaded")
	return nil
}

// Stop ends scheduling and waits for checks in progress to finish. With a
// positive ShutdownGrace, or when ctx ends first, remaining checks are
// cancelled and recorded as errors. An orchestrator cannot be restarted
// after Stop.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	o.stopping = true
	o.running = false
	c := o.cron
	o.cron = nil
	o.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	// a nil channel never fires: without a grace period checks run to completion
	var graceC <-chan time.Time
	if o.opts.ShutdownGrace > 0 {
		grace := time.NewTimer(o.opts.ShutdownGrace)
		defer grace.Stop()
		graceC = grace.C
	}

	select {
	case <-done:
	case <-graceC:
		logrus.WithField("grace", o.opts.ShutdownGrace).Warn("Checks still running after grace period, cancelling")
		o.cancelRun()
		<-done
	case <-ctx.Done():
		logrus.WithError(ctx.Err()).Warn("Shutdown deadline reached, cancelling running checks")
		o.cancelRun()
		<-done
	}
	o.cancelRun()
	logrus.Info("Check scheduler stopped")
}

func (o *Orchestrator) startCronLocked(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid check interval %s", interval)
	}
	c := cron.New(cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger())))
	c.Schedule(cron.Every(interval), o.job)
	c.Start()
	o.cron = c
	return nil
}

func (o *Orchestrator) scheduledCycle() {
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	if err := o.RunCycle(o.runCtx); err != nil {
		logrus.WithError(err).Error("Check cycle failed")
	}
}

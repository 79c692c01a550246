// Package scheduler runs unattended recurring exports on a cron
// schedule. Runs never overlap: a tick that fires while the previous
// export is still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"xscraper/pkg/config"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/logger"
)

// Runner is one scheduled export run.
type Runner func(ctx context.Context) error

// Scheduler wraps a cron instance configured for a single recurring
// export job.
type Scheduler struct {
	cron     *cron.Cron
	logger   logger.Logger
	timeout  time.Duration
	entry    cron.EntryID
	base     context.Context
	stopRuns context.CancelFunc
}

// New creates a scheduler in the configured timezone. An empty timezone
// means UTC; "Local" follows the host clock.
func New(cfg config.ScheduleConfig) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, fmt.Sprintf("invalid schedule timezone %q", cfg.Timezone), err)
	}

	log := logger.GetLogger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)

	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		logger:   log,
		timeout:  cfg.RunTimeout,
		base:     base,
		stopRuns: cancel,
	}, nil
}

// Schedule registers the export run under the given cron spec. Standard
// five-field specs are accepted, e.g. "0 3 * * *" for 03:00 daily.
func (s *Scheduler) Schedule(spec string, run Runner) error {
	id, err := s.cron.AddFunc(spec, func() { s.execute(run) })
	if err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, fmt.Sprintf("invalid cron spec %q", spec), err)
	}
	s.entry = id
	s.logger.InfoWithFields("Export scheduled", map[string]interface{}{
		"spec": spec,
	})
	return nil
}

// execute runs one scheduled export under the configured run timeout.
// Runs inherit the scheduler's base context, so Stop cancels an export
// that is still in flight.
func (s *Scheduler) execute(run Runner) {
	ctx := s.base
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	start := time.Now()
	s.logger.Info("Scheduled export starting")
	if err := run(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled export failed")
		return
	}
	s.logger.InfoWithFields("Scheduled export finished", map[string]interface{}{
		"elapsed": time.Since(start).String(),
	})
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts scheduling and cancels any in-flight run cooperatively. The
// returned context is done once the run has wound down.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Scheduler stopping")
	s.stopRuns()
	return s.cron.Stop()
}

// NextRun reports when the scheduled export fires next. The zero time
// means nothing is scheduled or the scheduler has not started.
func (s *Scheduler) NextRun() time.Time {
	entry := s.cron.Entry(s.entry)
	return entry.Next
}

// cronLogger adapts the structured logger to the cron library's logging
// interface. Cron only speaks up when something is off, like a skipped
// overlapping run.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.DebugWithFields("Cron: "+msg, fieldsFromPairs(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithFields(fieldsFromPairs(keysAndValues)).Error("Cron: " + msg)
}

func fieldsFromPairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

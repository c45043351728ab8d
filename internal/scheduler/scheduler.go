// Package scheduler runs named background jobs at a fixed cadence on top of
// robfig/cron. Jobs never overlap with themselves and recover from panics.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/logging"

	"github.com/robfig/cron/v3"
)

// Job is invoked on every tick. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler owns a cron instance. It can be started once and stopped once.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    map[string]cron.EntryID
	started bool
	stopped bool
}

// New creates a stopped scheduler.
func New(logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Every registers job under name to run every interval. Re-registering a
// name replaces the previous job.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("job %s: interval %s is below the one second resolution", name, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("job %s: scheduler is stopped", name)
	}
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}

	ctx := s.ctx
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = id
	s.logger.Debug("Job scheduled",
		logging.F(logging.FieldJob, name),
		logging.F("interval", interval.String()))
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins running jobs. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("Scheduler started", logging.F(logging.FieldCount, len(s.jobs)))
}

// Stop cancels job contexts and waits for running jobs to return or for ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, pairs(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.WithError(err).Error(msg, pairs(keysAndValues)...)
}

func pairs(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.F(key, kv[i+1]))
	}
	return fields
}

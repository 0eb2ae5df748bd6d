/*
scheduler.go - Background reminder scheduler

PURPOSE:
  Periodically sends pending-approval reminders to managers and balance
  expiration warnings to employees.

DESIGN:
  - One background goroutine driven by a ticker
  - Runs once immediately on Start, then every Interval
  - Each run gets its own timeout so a stuck SMTP server cannot pile up
    overlapping runs; leave.Reminders also collapses concurrent runs

USAGE:
  scheduler := NewReminderScheduler(reminders, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/reminders.go: what a run sends
  - handlers.go: RunReminders endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// ReminderRunner is satisfied by *leave.Reminders.
type ReminderRunner interface {
	Run(ctx context.Context) (leave.ReminderReport, error)
}

type ReminderScheduler struct {
	Runner     ReminderRunner
	Interval   time.Duration
	RunTimeout time.Duration
	Enabled    bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	logger *zap.Logger
}

func NewReminderScheduler(runner ReminderRunner, interval time.Duration, logger ...*zap.Logger) *ReminderScheduler {
	l := zap.L().Named("api.scheduler")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("api.scheduler")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderScheduler{
		Runner:     runner,
		Interval:   interval,
		RunTimeout: 5 * time.Minute,
		Enabled:    true,
		logger:     l,
	}
}

func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info("scheduler started", zap.Duration("interval", rs.Interval))
}

// Stop waits for an in-flight run to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("scheduler stopped")
}

func (rs *ReminderScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.runOnce()
	for {
		select {
		case <-ticker.C:
			rs.runOnce()
		case <-stop:
			return
		}
	}
}

func (rs *ReminderScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.RunTimeout)
	defer cancel()

	report, err := rs.Runner.Run(ctx)
	if err != nil {
		rs.logger.Error("reminder run failed", zap.Error(err))
		return
	}
	rs.logger.Info("reminder run finished",
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("warnings_sent", report.WarningsSent),
		zap.Int("failed", report.Failed),
	)
}

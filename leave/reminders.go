package leave

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// REMINDERS - Pending approvals and expiring balances
// =============================================================================

const (
	DefaultReminderAfter   = 48 * time.Hour
	DefaultReminderRepeat  = 24 * time.Hour
	defaultSendConcurrency = 4
	reminderFlightKey      = "reminders"
)

type ReminderConfig struct {
	PendingAfter     time.Duration // pending longer than this gets a reminder
	RepeatAfter      time.Duration // minimum gap between reminders for one request
	ExpiryWindowDays int
	SendConcurrency  int
	Now              func() time.Time
}

// Reminders sends the periodic notices. Individual send failures are
// logged and counted; they never stop the run.
type Reminders struct {
	requests   RequestStore
	balances   BalanceStore
	leaveTypes LeaveTypeCatalog
	directory  Directory
	notifier   NotificationSender
	cfg        ReminderConfig
	now        func() time.Time
	flight     singleflight.Group
	logger     *zap.Logger
}

type ReminderReport struct {
	RemindersSent int
	WarningsSent  int
	Failed        int
}

func NewReminders(
	requests RequestStore,
	balances BalanceStore,
	leaveTypes LeaveTypeCatalog,
	directory Directory,
	notifier NotificationSender,
	cfg ReminderConfig,
	logger ...*zap.Logger,
) *Reminders {
	l := zap.L().Named("leave.reminders")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.reminders")
	}
	if cfg.PendingAfter <= 0 {
		cfg.PendingAfter = DefaultReminderAfter
	}
	if cfg.RepeatAfter <= 0 {
		cfg.RepeatAfter = DefaultReminderRepeat
	}
	if cfg.ExpiryWindowDays <= 0 {
		cfg.ExpiryWindowDays = DefaultExpiryWarningDays
	}
	if cfg.SendConcurrency <= 0 {
		cfg.SendConcurrency = defaultSendConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reminders{
		requests:   requests,
		balances:   balances,
		leaveTypes: leaveTypes,
		directory:  directory,
		notifier:   notifier,
		cfg:        cfg,
		now:        cfg.Now,
		logger:     l,
	}
}

// Run sends both kinds of notice. Concurrent callers share one run.
func (r *Reminders) Run(ctx context.Context) (ReminderReport, error) {
	v, err, shared := r.flight.Do(reminderFlightKey, func() (any, error) {
		var report ReminderReport

		sent, failed, err := r.SendPendingApprovalReminders(ctx)
		if err != nil {
			return report, err
		}
		report.RemindersSent, report.Failed = sent, failed

		sent, failed, err = r.SendExpiryWarnings(ctx)
		if err != nil {
			return report, err
		}
		report.WarningsSent = sent
		report.Failed += failed
		return report, nil
	})
	if shared {
		r.logger.Debug("joined in-flight reminder run")
	}
	report, _ := v.(ReminderReport)
	return report, err
}

// SendPendingApprovalReminders notifies the manager of every request that
// has been pending longer than PendingAfter and was not reminded about in
// the last RepeatAfter. Successful sends are stamped on the request.
func (r *Reminders) SendPendingApprovalReminders(ctx context.Context) (sent, failed int, err error) {
	all, err := r.requests.ListAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list requests: %w", err)
	}
	now := r.now()
	cutoff := now.Add(-r.cfg.PendingAfter)
	repeatCutoff := now.Add(-r.cfg.RepeatAfter)

	var (
		msgs []Message
		ids  []string
	)
	for _, req := range all {
		if req.Status != StatusPending || req.SubmittedAt.After(cutoff) {
			continue
		}
		if req.RemindedAt != nil && req.RemindedAt.After(repeatCutoff) {
			continue
		}
		msg, ok := r.reminderFor(ctx, req)
		if !ok {
			failed++
			continue
		}
		msgs = append(msgs, msg)
		ids = append(ids, req.ID)
	}

	s, f := r.sendAll(ctx, msgs, func(i int) { r.markReminded(ctx, ids[i], now) })
	return s, failed + f, nil
}

// markReminded stamps a pending request. A request decided in the
// meantime keeps its state; the stamp is dropped.
func (r *Reminders) markReminded(ctx context.Context, requestID string, at time.Time) {
	_, err := r.requests.Update(ctx, requestID, RequestPatch{
		ExpectStatus: ptr(StatusPending),
		RemindedAt:   ptr(ptr(at)),
	})
	if err != nil {
		r.logger.Warn("reminder sent but not recorded", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (r *Reminders) reminderFor(ctx context.Context, req LeaveRequest) (Message, bool) {
	lt, err := r.leaveTypes.GetLeaveType(ctx, req.LeaveTypeID)
	if err != nil {
		r.logger.Warn("reminder skipped: leave type", zap.String("request_id", req.ID), zap.Error(err))
		return Message{}, false
	}
	requester, err := r.directory.GetEmployee(ctx, req.RequesterID)
	if err != nil {
		r.logger.Warn("reminder skipped: requester", zap.String("request_id", req.ID), zap.Error(err))
		return Message{}, false
	}
	managerID := req.ManagerID
	if managerID == "" {
		managerID = requester.ManagerID
	}
	if managerID == "" {
		r.logger.Warn("reminder skipped: no manager", zap.String("request_id", req.ID))
		return Message{}, false
	}
	manager, err := r.directory.GetEmployee(ctx, managerID)
	if err != nil {
		r.logger.Warn("reminder skipped: manager", zap.String("request_id", req.ID), zap.Error(err))
		return Message{}, false
	}
	return ReminderMessage(req, *lt, *requester, *manager), true
}

// SendExpiryWarnings notifies employees whose balance with days left
// expires within the warning window.
func (r *Reminders) SendExpiryWarnings(ctx context.Context) (sent, failed int, err error) {
	balances, err := r.balances.ListBalances(ctx, "")
	if err != nil {
		return 0, 0, fmt.Errorf("list balances: %w", err)
	}
	now := r.now()

	var msgs []Message
	for _, b := range balances {
		if !b.RemainingDays.IsPositive() || b.ExpirationDate.IsZero() {
			continue
		}
		n := generic.DaysUntil(b.ExpirationDate, now)
		if n <= 0 || n > r.cfg.ExpiryWindowDays {
			continue
		}
		employee, err := r.directory.GetEmployee(ctx, b.EmployeeID)
		if err != nil {
			r.logger.Warn("expiry warning skipped: employee", zap.String("employee_id", b.EmployeeID), zap.Error(err))
			failed++
			continue
		}
		typeName := b.LeaveTypeID
		if lt, err := r.leaveTypes.GetLeaveType(ctx, b.LeaveTypeID); err == nil {
			typeName = lt.Name
		}
		msgs = append(msgs, ExpiryMessage(b, typeName, *employee))
	}

	s, f := r.sendAll(ctx, msgs, nil)
	return s, failed + f, nil
}

// sendAll fans msgs out with bounded concurrency. onSent, when set, runs
// with the index of each delivered message.
func (r *Reminders) sendAll(ctx context.Context, msgs []Message, onSent func(i int)) (sent, failed int) {
	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.cfg.SendConcurrency)

	for i, m := range msgs {
		i, m := i, m
		g.Go(func() error {
			if err := r.notifier.Send(ctx, m.Recipients, m.Subject, m.Body); err != nil {
				r.logger.Warn("notification failed",
					zap.Strings("recipients", m.Recipients),
					zap.String("subject", m.Subject),
					zap.Error(err),
				)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			if onSent != nil {
				onSent(i)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

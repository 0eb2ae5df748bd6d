/*
workflow.go - Approval workflow service

PURPOSE:
  Drives leave requests through the transition table. Owns request
  creation, auto-approval, manager decisions and cancellation.

CONCURRENCY:
  - submit:                   lock requester:<employee> (own-overlap check + create)
  - approve / reject / cancel: lock request:<id>, then load, check legality
                               and run effects while holding it
  - balance mutations take balance:<employee>:<type> inside the ledger
  Status writes are also conditional on the status that was loaded, so a
  store shared by several processes without a shared Locker still refuses
  a double approval.

PARTIAL FAILURE:
  Fatal effect fails → completed fatal effects are undone in reverse
  order (status reverted, consumption reversed) and the caller gets a
  *generic.DependencyError with Fatal=true. Best-effort failures are
  logged at Warn and swallowed.

CANCELLING AN APPROVED REQUEST:
  Reverses the consumption recorded for the request in the journal.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// SystemActor is recorded as reviewer for automatic approvals.
const SystemActor = "system"

// Deps lists the collaborators of a Workflow. Requests and LeaveTypes are
// required; any other nil dependency disables the effects that use it.
type Deps struct {
	Requests   RequestStore
	LeaveTypes LeaveTypeCatalog
	Balances   BalanceStore
	Ledger     *BalanceLedger
	Directory  Directory
	Conflicts  *ConflictDetector
	Calendar   CalendarSync
	Notifier   NotificationSender
	Locks      generic.Locker
	Validator  *Validator
	Now        func() time.Time
}

type Workflow struct {
	requests   RequestStore
	leaveTypes LeaveTypeCatalog
	balances   BalanceStore
	ledger     *BalanceLedger
	directory  Directory
	conflicts  *ConflictDetector
	calendar   CalendarSync
	notifier   NotificationSender
	locks      generic.Locker
	validator  *Validator
	clock      func() time.Time
	logger     *zap.Logger
}

func NewWorkflow(deps Deps, logger ...*zap.Logger) *Workflow {
	l := zap.L().Named("leave.workflow")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.workflow")
	}
	w := &Workflow{
		requests:   deps.Requests,
		leaveTypes: deps.LeaveTypes,
		balances:   deps.Balances,
		ledger:     deps.Ledger,
		directory:  deps.Directory,
		conflicts:  deps.Conflicts,
		calendar:   deps.Calendar,
		notifier:   deps.Notifier,
		locks:      deps.Locks,
		validator:  deps.Validator,
		clock:      deps.Now,
		logger:     l,
	}
	if w.locks == nil {
		w.locks = generic.NewKeyedMutex()
	}
	if w.validator == nil {
		w.validator = NewValidator()
		w.validator.Now = w.now
	}
	return w
}

func (w *Workflow) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock()
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitResult is the outcome of Submit. Request is nil when the verdict
// is invalid.
type SubmitResult struct {
	Request      *LeaveRequest
	Verdict      Verdict
	Conflicts    ConflictReport
	AutoApproved bool
}

// Evaluation is a dry-run verdict with the conflict report behind it.
type Evaluation struct {
	Verdict   Verdict
	Conflicts ConflictReport
	LeaveType *LeaveType
}

// Validate runs every submission check without persisting anything.
func (w *Workflow) Validate(ctx context.Context, draft LeaveRequest) (*Evaluation, error) {
	lt, err := w.lookupLeaveType(ctx, draft.LeaveTypeID)
	if err != nil {
		return nil, err
	}

	var balance *LeaveBalance
	if lt != nil && w.balances != nil {
		balance, err = w.balances.GetBalance(ctx, draft.RequesterID, draft.LeaveTypeID)
		if errors.Is(err, generic.ErrBalanceNotFound) {
			balance, err = nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load balance: %w", err)
		}
	}

	existing, err := w.requests.ListByRequester(ctx, draft.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("load existing requests: %w", err)
	}

	eval := &Evaluation{
		Verdict:   w.validator.Validate(draft, lt, balance, existing),
		LeaveType: lt,
	}

	if lt != nil && w.conflicts != nil && !draft.StartDate.IsZero() && !draft.EndDate.Before(draft.StartDate) {
		report, err := w.conflicts.Check(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("detect conflicts: %w", err)
		}
		eval.Conflicts = report
		eval.Verdict.Merge(report.Split())
	}
	return eval, nil
}

// Submit validates draft and, when admissible, persists it as pending.
// Types that need no approval continue straight into Approve; if that
// fails the result still carries the pending request alongside the error.
func (w *Workflow) Submit(ctx context.Context, draft LeaveRequest) (*SubmitResult, error) {
	unlock, err := w.locks.Lock(ctx, generic.RequesterLockKey(draft.RequesterID))
	if err != nil {
		return nil, fmt.Errorf("lock requester %s: %w", draft.RequesterID, err)
	}
	defer unlock()

	// A draft never names an existing request, so the own-overlap check
	// cannot skip one.
	draft.ID = ""
	draft.Status = StatusPending

	eval, err := w.Validate(ctx, draft)
	if err != nil {
		return nil, err
	}
	result := &SubmitResult{Verdict: eval.Verdict, Conflicts: eval.Conflicts}
	if !eval.Verdict.IsValid() {
		w.logger.Info("submission rejected by validation",
			zap.String("requester_id", draft.RequesterID),
			zap.Strings("errors", eval.Verdict.Errors),
		)
		return result, nil
	}

	now := w.now()
	draft.SubmittedAt = now
	draft.ModifiedAt = now
	draft.ReviewerID, draft.ReviewerComment, draft.ReviewedAt = "", "", nil
	draft.CalendarEventID = ""
	draft.NotificationSent = false
	draft.RemindedAt = nil
	draft.TotalDays = ConsumptionAmount(draft)

	t := &transition{
		action:    ActionSubmit,
		from:      statusNew,
		to:        StatusPending,
		actor:     draft.RequesterID,
		at:        now,
		leaveType: eval.LeaveType,
	}
	w.loadParties(ctx, t, &draft)
	if draft.ManagerID == "" && t.requester != nil {
		draft.ManagerID = t.requester.ManagerID
	}
	t.req = &draft
	t.prev = draft

	req, err := w.apply(ctx, transitionTable[ActionSubmit], t)
	if err != nil {
		return nil, err
	}
	result.Request = req
	w.logger.Info("leave request submitted",
		zap.String("request_id", req.ID),
		zap.String("requester_id", req.RequesterID),
		zap.String("leave_type_id", req.LeaveTypeID),
		zap.String("total_days", req.TotalDays.String()),
	)

	if eval.LeaveType.RequiresApproval {
		return result, nil
	}

	approved, err := w.Approve(ctx, req.ID, SystemActor, "Automatically approved")
	if err != nil {
		w.logger.Error("auto-approval failed", zap.String("request_id", req.ID), zap.Error(err))
		return result, err
	}
	result.Request = approved
	result.AutoApproved = true
	return result, nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// Approve moves a pending request to approved and consumes its balance.
func (w *Workflow) Approve(ctx context.Context, requestID, reviewerID, comment string) (*LeaveRequest, error) {
	return w.execute(ctx, ActionApprove, requestID, reviewerID, comment)
}

// Reject moves a pending request to rejected. Nothing was consumed.
func (w *Workflow) Reject(ctx context.Context, requestID, reviewerID, comment string) (*LeaveRequest, error) {
	return w.execute(ctx, ActionReject, requestID, reviewerID, comment)
}

// Cancel withdraws a pending or approved request, reversing consumption
// for approved ones.
func (w *Workflow) Cancel(ctx context.Context, requestID, actorID string) (*LeaveRequest, error) {
	return w.execute(ctx, ActionCancel, requestID, actorID, "")
}

// Get returns one request.
func (w *Workflow) Get(ctx context.Context, requestID string) (*LeaveRequest, error) {
	return w.requests.GetByID(ctx, requestID)
}

func (w *Workflow) execute(ctx context.Context, action Action, requestID, actor, comment string) (*LeaveRequest, error) {
	unlock, err := w.locks.Lock(ctx, generic.RequestLockKey(requestID))
	if err != nil {
		return nil, fmt.Errorf("lock request %s: %w", requestID, err)
	}
	defer unlock()

	req, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	r := transitionTable[action]
	if !r.allows(req.Status) {
		return nil, &generic.InvalidTransitionError{
			RequestID: requestID,
			Action:    string(action),
			From:      string(req.Status),
		}
	}

	t := &transition{
		action:  action,
		from:    req.Status,
		to:      r.to,
		actor:   actor,
		comment: comment,
		at:      w.now(),
		req:     req,
		prev:    *req,
	}
	if lt, err := w.lookupLeaveType(ctx, req.LeaveTypeID); err != nil {
		w.logger.Warn("leave type lookup failed", zap.String("request_id", requestID), zap.Error(err))
	} else {
		t.leaveType = lt
	}
	w.loadParties(ctx, t, req)

	updated, err := w.apply(ctx, r, t)
	if err != nil {
		return nil, err
	}
	w.logger.Info("leave request transitioned",
		zap.String("request_id", requestID),
		zap.String("action", string(action)),
		zap.String("from", string(t.from)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", actor),
	)
	return updated, nil
}

// apply runs r's effects in order. See the package header for the
// failure policy.
func (w *Workflow) apply(ctx context.Context, r rule, t *transition) (*LeaveRequest, error) {
	var done []effect
	for _, e := range r.effects {
		if e.when != nil && !e.when(w, t) {
			continue
		}
		err := e.run(w, ctx, t)
		if err == nil {
			if e.mode == Fatal {
				done = append(done, e)
			}
			continue
		}

		if e.mode == BestEffort {
			w.logger.Warn("best-effort step failed",
				zap.String("request_id", t.req.ID),
				zap.String("action", string(t.action)),
				zap.String("step", e.name),
				zap.Error(err),
			)
			continue
		}

		w.logger.Error("fatal step failed, compensating",
			zap.String("request_id", t.req.ID),
			zap.String("action", string(t.action)),
			zap.String("step", e.name),
			zap.Error(err),
		)
		w.compensate(context.WithoutCancel(ctx), t, done)
		return nil, &generic.DependencyError{Step: e.name, Fatal: true, Err: err}
	}
	return t.req, nil
}

func (w *Workflow) compensate(ctx context.Context, t *transition, done []effect) {
	for i := len(done) - 1; i >= 0; i-- {
		e := done[i]
		if e.undo == nil {
			continue
		}
		if err := e.undo(w, ctx, t); err != nil {
			w.logger.Error("compensation failed",
				zap.String("request_id", t.req.ID),
				zap.String("step", e.name),
				zap.Error(err),
			)
		}
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

// lookupLeaveType returns (nil, nil) for an empty or unknown id.
func (w *Workflow) lookupLeaveType(ctx context.Context, id string) (*LeaveType, error) {
	if id == "" {
		return nil, nil
	}
	lt, err := w.leaveTypes.GetLeaveType(ctx, id)
	if errors.Is(err, generic.ErrLeaveTypeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load leave type %s: %w", id, err)
	}
	return lt, nil
}

// loadParties resolves requester and manager for notifications and
// calendar events. Failures only disable those best-effort steps.
func (w *Workflow) loadParties(ctx context.Context, t *transition, req *LeaveRequest) {
	if w.directory == nil {
		return
	}
	requester, err := w.directory.GetEmployee(ctx, req.RequesterID)
	if err != nil {
		w.logger.Warn("requester lookup failed", zap.String("employee_id", req.RequesterID), zap.Error(err))
		return
	}
	t.requester = requester

	managerID := req.ManagerID
	if managerID == "" {
		managerID = requester.ManagerID
	}
	if managerID == "" {
		return
	}
	manager, err := w.directory.GetEmployee(ctx, managerID)
	if err != nil {
		w.logger.Warn("manager lookup failed", zap.String("employee_id", managerID), zap.Error(err))
		return
	}
	t.manager = manager
}

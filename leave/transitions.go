/*
transitions.go - Typed transition table

PURPOSE:
  Each workflow action names its legal source states, its target state
  and an ordered list of effects. Every effect is tagged:

    Fatal       must succeed; on failure the fatal effects already done
                in this transition are undone in reverse order and the
                transition fails with *generic.DependencyError
    BestEffort  failure is logged and the transition carries on

TABLE:
  submit   (new)              → pending    create_request[F] notify_submitted[B]
  approve  pending            → approved   persist_status[F] consume_balance[F]
                                           create_calendar_event[B] notify_decision[B]
  reject   pending            → rejected   persist_status[F] notify_decision[B]
  cancel   pending | approved → cancelled  delete_calendar_event[B] persist_status[F]
                                           restore_balance[F] (only from approved)
                                           notify_cancellation[B]
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

type EffectMode int

const (
	Fatal EffectMode = iota
	BestEffort
)

func (m EffectMode) String() string {
	if m == Fatal {
		return "fatal"
	}
	return "best-effort"
}

// transition is the state threaded through one action's effects.
type transition struct {
	action  Action
	from    Status
	to      Status
	actor   string
	comment string
	at      time.Time

	req  *LeaveRequest // current stored view, refreshed by effects
	prev LeaveRequest  // as loaded, before any effect ran

	leaveType *LeaveType
	requester *Employee
	manager   *Employee

	eventDeleted bool
}

type effect struct {
	name string
	mode EffectMode
	when func(*Workflow, *transition) bool
	run  func(*Workflow, context.Context, *transition) error
	undo func(*Workflow, context.Context, *transition) error
}

type rule struct {
	from    []Status
	to      Status
	effects []effect
}

func (r rule) allows(s Status) bool {
	return slices.Contains(r.from, s)
}

var transitionTable = map[Action]rule{
	ActionSubmit: {
		from: []Status{statusNew},
		to:   StatusPending,
		effects: []effect{
			{name: "create_request", mode: Fatal, run: (*Workflow).createRequest},
			{name: "notify_submitted", mode: BestEffort, when: hasNotifier, run: (*Workflow).notifySubmitted},
		},
	},
	ActionApprove: {
		from: []Status{StatusPending},
		to:   StatusApproved,
		effects: []effect{
			{name: "persist_status", mode: Fatal, run: (*Workflow).persistStatus, undo: (*Workflow).revertStatus},
			{name: "consume_balance", mode: Fatal, when: hasLedger, run: (*Workflow).consumeBalance, undo: (*Workflow).restoreBalance},
			{name: "create_calendar_event", mode: BestEffort, when: hasCalendar, run: (*Workflow).createCalendarEvent},
			{name: "notify_decision", mode: BestEffort, when: hasNotifier, run: (*Workflow).notifyDecision},
		},
	},
	ActionReject: {
		from: []Status{StatusPending},
		to:   StatusRejected,
		effects: []effect{
			{name: "persist_status", mode: Fatal, run: (*Workflow).persistStatus, undo: (*Workflow).revertStatus},
			{name: "notify_decision", mode: BestEffort, when: hasNotifier, run: (*Workflow).notifyDecision},
		},
	},
	ActionCancel: {
		from: []Status{StatusPending, StatusApproved},
		to:   StatusCancelled,
		effects: []effect{
			{name: "delete_calendar_event", mode: BestEffort, when: hasCalendarEvent, run: (*Workflow).deleteCalendarEvent},
			{name: "persist_status", mode: Fatal, run: (*Workflow).persistStatus, undo: (*Workflow).revertStatus},
			{name: "restore_balance", mode: Fatal, when: wasApproved, run: (*Workflow).restoreBalance},
			{name: "notify_cancellation", mode: BestEffort, when: hasNotifier, run: (*Workflow).notifyCancellation},
		},
	},
}

// =============================================================================
// GUARDS
// =============================================================================

func wasApproved(w *Workflow, t *transition) bool { return w.ledger != nil && t.from == StatusApproved }

func hasCalendarEvent(w *Workflow, t *transition) bool {
	return w.calendar != nil && t.req.CalendarEventID != ""
}

func hasLedger(w *Workflow, _ *transition) bool   { return w.ledger != nil }
func hasCalendar(w *Workflow, _ *transition) bool { return w.calendar != nil }
func hasNotifier(w *Workflow, _ *transition) bool { return w.notifier != nil }

// =============================================================================
// EFFECTS
// =============================================================================

func (w *Workflow) createRequest(ctx context.Context, t *transition) error {
	id, err := w.requests.Create(ctx, t.req)
	if err != nil {
		return err
	}
	t.req.ID = id
	return nil
}

func (w *Workflow) persistStatus(ctx context.Context, t *transition) error {
	patch := RequestPatch{
		ExpectStatus: ptr(t.from),
		Status:       ptr(t.to),
	}
	switch t.action {
	case ActionApprove, ActionReject:
		patch.ReviewerID = ptr(t.actor)
		patch.ReviewerComment = ptr(t.comment)
		patch.ReviewedAt = ptr(ptr(t.at))
	case ActionCancel:
		if t.eventDeleted {
			patch.CalendarEventID = ptr("")
		}
	}
	updated, err := w.requests.Update(ctx, t.req.ID, patch)
	if err != nil {
		return err
	}
	t.req = updated
	return nil
}

func (w *Workflow) revertStatus(ctx context.Context, t *transition) error {
	patch := RequestPatch{
		ExpectStatus:    ptr(t.to),
		Status:          ptr(t.from),
		ReviewerID:      ptr(t.prev.ReviewerID),
		ReviewerComment: ptr(t.prev.ReviewerComment),
		ReviewedAt:      ptr(t.prev.ReviewedAt),
	}
	updated, err := w.requests.Update(ctx, t.req.ID, patch)
	if err != nil {
		return err
	}
	t.req = updated
	return nil
}

func (w *Workflow) consumeBalance(ctx context.Context, t *transition) error {
	_, err := w.ledger.Consume(ctx, *t.req, t.actor, t.at)
	return err
}

func (w *Workflow) restoreBalance(ctx context.Context, t *transition) error {
	_, err := w.ledger.Restore(ctx, *t.req, t.actor, w.now())
	return err
}

func (w *Workflow) createCalendarEvent(ctx context.Context, t *transition) error {
	if t.leaveType == nil || t.requester == nil {
		return errors.New("leave type or requester unknown")
	}
	eventID, err := w.calendar.CreateEvent(ctx, NewCalendarEvent(*t.req, *t.leaveType, *t.requester))
	if err != nil {
		return err
	}
	updated, err := w.requests.Update(ctx, t.req.ID, RequestPatch{CalendarEventID: ptr(eventID)})
	if err != nil {
		return fmt.Errorf("store calendar event %s: %w", eventID, err)
	}
	t.req = updated
	return nil
}

func (w *Workflow) deleteCalendarEvent(ctx context.Context, t *transition) error {
	if err := w.calendar.DeleteEvent(ctx, t.req.CalendarEventID); err != nil {
		return err
	}
	t.eventDeleted = true
	return nil
}

func (w *Workflow) notifySubmitted(ctx context.Context, t *transition) error {
	if t.leaveType == nil || t.requester == nil {
		return errors.New("leave type or requester unknown")
	}
	return w.deliver(ctx, t, SubmittedMessage(*t.req, *t.leaveType, *t.requester, t.manager))
}

func (w *Workflow) notifyDecision(ctx context.Context, t *transition) error {
	if t.leaveType == nil || t.requester == nil {
		return errors.New("leave type or requester unknown")
	}
	return w.deliver(ctx, t, DecisionMessage(*t.req, *t.leaveType, *t.requester))
}

func (w *Workflow) notifyCancellation(ctx context.Context, t *transition) error {
	if t.leaveType == nil || t.requester == nil {
		return errors.New("leave type or requester unknown")
	}
	return w.deliver(ctx, t, CancelledMessage(*t.req, *t.leaveType, *t.requester, t.manager))
}

// deliver sends msg and marks the request as notified.
func (w *Workflow) deliver(ctx context.Context, t *transition, msg Message) error {
	if err := w.notifier.Send(ctx, msg.Recipients, msg.Subject, msg.Body); err != nil {
		return err
	}
	if t.req.NotificationSent {
		return nil
	}
	updated, err := w.requests.Update(ctx, t.req.ID, RequestPatch{NotificationSent: ptr(true)})
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	t.req = updated
	return nil
}

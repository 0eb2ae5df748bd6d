package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/mock/gomock"
)

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_PersistsPending(t *testing.T) {
	f := newFixture(t)

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, manager.ID, req.ManagerID, "manager filled from directory")
	assert.True(t, req.TotalDays.Equal(dec("5")))
	assert.Equal(t, now(), req.SubmittedAt)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.IsZero(), "pending requests consume nothing")
}

func TestSubmit_InvalidVerdictCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.workflow.Submit(ctx, draft(alice.ID, "annual", day(time.January, 19), day(time.January, 15)))
	require.NoError(t, err, "validation problems are not errors")
	assert.Nil(t, res.Request)
	assert.False(t, res.Verdict.IsValid())

	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmit_OwnOverlapRejected(t *testing.T) {
	// GIVEN: Alice has a pending request 15-19 January
	// WHEN: She submits 17-22 January
	// THEN: The second submission is refused with the overlap error
	f := newFixture(t)
	f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

	res, err := f.workflow.Submit(context.Background(), draft(alice.ID, "annual", day(time.January, 17), day(time.January, 22)))
	require.NoError(t, err)
	assert.Nil(t, res.Request)
	assert.Contains(t, res.Verdict.Errors,
		"You have overlapping leave requests. Please check your existing requests and modify dates if needed.")
}

func TestSubmit_DraftIDDoesNotBypassOwnOverlap(t *testing.T) {
	// GIVEN: Alice has a pending request 15-19 January
	// WHEN: A draft for 17-18 January arrives carrying that request's ID
	// THEN: The overlap is still detected and only one request is stored
	f := newFixture(t)
	ctx := context.Background()
	existing := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

	d := draft(alice.ID, "annual", day(time.January, 17), day(time.January, 18))
	d.ID = existing.ID
	d.Status = leave.StatusCancelled
	res, err := f.workflow.Submit(ctx, d)
	require.NoError(t, err)
	assert.Nil(t, res.Request)
	assert.Contains(t, res.Verdict.Errors,
		"You have overlapping leave requests. Please check your existing requests and modify dates if needed.")

	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, existing.ID, all[0].ID)
	assert.Equal(t, leave.StatusPending, all[0].Status)
}

func TestSubmit_TeamOverlapIsOnlyWarning(t *testing.T) {
	// GIVEN: Bob's leave 15-19 January is approved
	// WHEN: Alice submits overlapping dates
	// THEN: She gets a warning naming Bob and the request is accepted
	f := newFixture(t)
	ctx := context.Background()

	bobs := f.submit(t, draft(bob.ID, "annual", day(time.January, 15), day(time.January, 19)))
	_, err := f.workflow.Approve(ctx, bobs.ID, manager.ID, "")
	require.NoError(t, err)

	res, err := f.workflow.Submit(ctx, draft(alice.ID, "annual", day(time.January, 17), day(time.January, 18)))
	require.NoError(t, err)
	require.NotNil(t, res.Request)
	assert.True(t, res.Verdict.IsValid())
	assert.Contains(t, res.Verdict.Warnings,
		"Team members with overlapping leave: Bob. Please coordinate with your team to ensure adequate coverage.")
	assert.False(t, res.Conflicts.HasConflicts())
}

func TestSubmit_BlackoutBlocks(t *testing.T) {
	f := newFixture(t)
	f.store.PutCompanyDay(generic.CompanyDay{Date: day(time.January, 16), Name: "Audit", Kind: generic.DayBlackout})

	res, err := f.workflow.Submit(context.Background(), draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	require.NoError(t, err)
	assert.Nil(t, res.Request)
	assert.Equal(t, []string{"Your request conflicts with company blackout dates: 2024-01-16"}, res.Verdict.Errors)
	assert.True(t, res.Conflicts.HasConflicts())
}

func TestSubmit_AutoApproval(t *testing.T) {
	// GIVEN: Sick leave needs no approval
	// WHEN: Alice submits 2 days of sick leave
	// THEN: The request is approved in the same call and consumes balance
	f := newFixture(t)

	res, err := f.workflow.Submit(context.Background(), draft(alice.ID, "sick", day(time.January, 2), day(time.January, 3)))
	require.NoError(t, err)
	require.NotNil(t, res.Request)

	assert.True(t, res.AutoApproved)
	assert.Equal(t, leave.StatusApproved, res.Request.Status)
	assert.Equal(t, leave.SystemActor, res.Request.ReviewerID)
	require.NotNil(t, res.Request.ReviewedAt)

	b := f.balanceOf(t, alice.ID, "sick")
	assert.True(t, b.UsedDays.Equal(dec("2")))
	assert.True(t, b.RemainingDays.Equal(dec("8")))
}

func TestSubmit_NotifiesRequesterAndManager(t *testing.T) {
	f := newMockedFixture(t)

	f.notifier.EXPECT().
		Send(gomock.Any(), []string{alice.Email, manager.Email}, "Leave Request Submitted - Annual Leave", gomock.Any()).
		Return(nil)

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	assert.True(t, req.NotificationSent)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove_ConsumesBalanceAndCreatesEvent(t *testing.T) {
	f := newMockedFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), "Leave Request Submitted - Annual Leave", gomock.Any()).Return(nil)
	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

	f.calendar.EXPECT().CreateEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e leave.CalendarEvent) (string, error) {
			assert.Equal(t, "Annual Leave - Out of Office", e.Subject)
			assert.Equal(t, alice.Email, e.OwnerEmail)
			assert.True(t, e.AllDay)
			assert.Equal(t, "oof", e.ShowAs)
			assert.Equal(t, day(time.January, 20), e.End)
			return "evt-1", nil
		})
	f.notifier.EXPECT().Send(gomock.Any(), []string{alice.Email}, "Leave Request APPROVED - Annual Leave", gomock.Any()).Return(nil)

	approved, err := f.workflow.Approve(ctx, req.ID, manager.ID, "Enjoy")
	require.NoError(t, err)

	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, manager.ID, approved.ReviewerID)
	assert.Equal(t, "Enjoy", approved.ReviewerComment)
	assert.Equal(t, "evt-1", approved.CalendarEventID)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.Equal(dec("5")))
	assert.True(t, b.RemainingDays.Equal(dec("5")))
	assert.Equal(t, int64(2), b.Version)
}

func TestApprove_CalendarAndNotificationFailuresAreBestEffort(t *testing.T) {
	f := newMockedFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(2)
	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	assert.False(t, req.NotificationSent)

	f.calendar.EXPECT().CreateEvent(gomock.Any(), gomock.Any()).Return("", errors.New("calendar unavailable"))

	approved, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Empty(t, approved.CalendarEventID)
	assert.False(t, approved.NotificationSent)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.Equal(dec("5")), "balance consumed despite failures")
}

func TestApprove_InsufficientBalanceCompensates(t *testing.T) {
	// GIVEN: A pending 5-day request, then the allowance is cut to 2
	// WHEN: The manager approves
	// THEN: Consumption fails, the status write is undone, balance untouched
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	_, err := f.ledger.Upsert(ctx, balance(alice.ID, "annual", "2"))
	require.NoError(t, err)

	_, err = f.workflow.Approve(ctx, req.ID, manager.ID, "ok")
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assert.ErrorIs(t, err, generic.ErrDependencyFailure)

	var dep *generic.DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, "consume_balance", dep.Step)
	assert.True(t, dep.Fatal)

	stored, err := f.store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assert.Empty(t, stored.ReviewerID)
	assert.Nil(t, stored.ReviewedAt)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.IsZero())
}

func TestDecision_StatusWriteFailureTouchesNothing(t *testing.T) {
	for _, tc := range []struct {
		name   string
		decide func(w *leave.Workflow, id string) (*leave.LeaveRequest, error)
	}{
		{"approve", func(w *leave.Workflow, id string) (*leave.LeaveRequest, error) {
			return w.Approve(context.Background(), id, manager.ID, "ok")
		}},
		{"reject", func(w *leave.Workflow, id string) (*leave.LeaveRequest, error) {
			return w.Reject(context.Background(), id, manager.ID, "no")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN: A pending 5-day request and a request store that refuses writes
			// WHEN: The manager decides
			// THEN: A fatal persist_status error, still pending, no journal entry
			f := newFixture(t)
			ctx := context.Background()
			req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

			dbDown := errors.New("db down")
			f.faults.updateErr = dbDown
			_, err := tc.decide(f.workflow, req.ID)
			f.faults.updateErr = nil

			assert.ErrorIs(t, err, dbDown)
			assert.ErrorIs(t, err, generic.ErrDependencyFailure)
			var dep *generic.DependencyError
			require.ErrorAs(t, err, &dep)
			assert.Equal(t, "persist_status", dep.Step)
			assert.True(t, dep.Fatal)

			stored, err := f.store.GetByID(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, leave.StatusPending, stored.Status)
			assert.Empty(t, stored.ReviewerID)

			b := f.balanceOf(t, alice.ID, "annual")
			assert.True(t, b.UsedDays.IsZero())
			assert.Equal(t, 0, f.store.References(req.ID))
		})
	}
}

func TestApprove_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("approve rejected request", func(t *testing.T) {
		req := f.submit(t, draft(alice.ID, "annual", day(time.February, 5), day(time.February, 6)))
		_, err := f.workflow.Reject(ctx, req.ID, manager.ID, "Busy period")
		require.NoError(t, err)

		_, err = f.workflow.Approve(ctx, req.ID, manager.ID, "")
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)

		var ite *generic.InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Equal(t, "approve", ite.Action)
		assert.Equal(t, "rejected", ite.From)
	})

	t.Run("approve twice", func(t *testing.T) {
		req := f.submit(t, draft(alice.ID, "annual", day(time.March, 4), day(time.March, 5)))
		_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
		require.NoError(t, err)

		_, err = f.workflow.Approve(ctx, req.ID, manager.ID, "")
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)

		b := f.balanceOf(t, alice.ID, "annual")
		assert.True(t, b.UsedDays.Equal(dec("2")), "second approve consumed nothing")
	})

	t.Run("reject approved request", func(t *testing.T) {
		req := f.submit(t, draft(alice.ID, "annual", day(time.April, 1), day(time.April, 1)))
		_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
		require.NoError(t, err)

		_, err = f.workflow.Reject(ctx, req.ID, manager.ID, "")
		assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.workflow.Approve(ctx, "missing", manager.ID, "")
		assert.ErrorIs(t, err, generic.ErrRequestNotFound)
	})
}

func TestApprove_ConcurrentApproversConsumeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 17)))

	const approvers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		invalid   int
	)
	for i := 0; i < approvers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, generic.ErrInvalidTransition):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, approvers-1, invalid)
	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.Equal(dec("3")))
}

func TestReject_NoBalanceChange(t *testing.T) {
	f := newMockedFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), "Leave Request Submitted - Annual Leave", gomock.Any()).Return(nil)
	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))

	f.notifier.EXPECT().Send(gomock.Any(), []string{alice.Email}, "Leave Request REJECTED - Annual Leave", gomock.Any()).Return(nil)

	rejected, err := f.workflow.Reject(ctx, req.ID, manager.ID, "Coverage")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, "Coverage", rejected.ReviewerComment)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.IsZero())
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_ApprovedRestoresBalanceAndDeletesEvent(t *testing.T) {
	f := newMockedFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.calendar.EXPECT().CreateEvent(gomock.Any(), gomock.Any()).Return("evt-9", nil)
	f.calendar.EXPECT().DeleteEvent(gomock.Any(), "evt-9").Return(nil)

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
	require.NoError(t, err)

	cancelled, err := f.workflow.Cancel(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.CalendarEventID)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.IsZero())
	assert.True(t, b.RemainingDays.Equal(dec("10")))

	txs, err := f.ledger.Transactions(ctx, alice.ID, "annual")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, generic.TxConsumption, txs[0].Type)
	assert.Equal(t, generic.TxReversal, txs[1].Type)
	assert.Equal(t, req.ID, txs[1].ReferenceID)

	_, err = f.workflow.Cancel(ctx, req.ID, alice.ID)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition, "cancelled is terminal")
}

func TestCancel_RestoreFailureRevertsToApproved(t *testing.T) {
	// GIVEN: An approved 5-day request
	// WHEN: Cancelling it and the balance write fails
	// THEN: The cancelled status is undone and the days stay consumed
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
	require.NoError(t, err)

	dbDown := errors.New("db down")
	f.faults.commitErr = dbDown
	_, err = f.workflow.Cancel(ctx, req.ID, alice.ID)
	f.faults.commitErr = nil

	assert.ErrorIs(t, err, dbDown)
	var dep *generic.DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, "restore_balance", dep.Step)
	assert.True(t, dep.Fatal)

	stored, err := f.store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, stored.Status)
	assert.Equal(t, manager.ID, stored.ReviewerID)

	b := f.balanceOf(t, alice.ID, "annual")
	assert.True(t, b.UsedDays.Equal(dec("5")))
	assert.Equal(t, 1, f.store.References(req.ID), "only the consumption entry")

	// Once the store recovers the same cancel goes through.
	cancelled, err := f.workflow.Cancel(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.True(t, f.balanceOf(t, alice.ID, "annual").UsedDays.IsZero())
}

func TestCancel_EventDeletionFailureDoesNotBlock(t *testing.T) {
	f := newMockedFixture(t)
	ctx := context.Background()

	f.notifier.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.calendar.EXPECT().CreateEvent(gomock.Any(), gomock.Any()).Return("evt-3", nil)
	f.calendar.EXPECT().DeleteEvent(gomock.Any(), "evt-3").Return(errors.New("timeout"))

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 16)))
	_, err := f.workflow.Approve(ctx, req.ID, manager.ID, "")
	require.NoError(t, err)

	cancelled, err := f.workflow.Cancel(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assert.Equal(t, "evt-3", cancelled.CalendarEventID, "reference kept for manual cleanup")
}

func TestCancel_PendingConsumesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 16)))
	cancelled, err := f.workflow.Cancel(ctx, req.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)

	txs, err := f.ledger.Transactions(ctx, alice.ID, "annual")
	require.NoError(t, err)
	assert.Empty(t, txs)

	// Dates are free again for a new request.
	f.submit(t, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 16)))
}

func TestValidate_DryRunPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eval, err := f.workflow.Validate(ctx, draft(alice.ID, "annual", day(time.January, 15), day(time.January, 19)))
	require.NoError(t, err)
	assert.True(t, eval.Verdict.IsValid())
	assert.Equal(t, "annual", eval.LeaveType.ID)

	all, err := f.store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/mock"
	"github.com/warp/leave-engine/store/memory"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// now is Monday 2024-01-01 09:00 UTC in every test.
func now() time.Time { return time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC) }

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

var (
	annual = leave.LeaveType{
		ID: "annual", Name: "Annual Leave", Active: true, RequiresApproval: true,
	}
	sick = leave.LeaveType{
		ID: "sick", Name: "Sick Leave", Active: true, RequiresApproval: false, PastDateExempt: true,
	}
	study = leave.LeaveType{
		ID: "study", Name: "Study Leave", Active: true, RequiresApproval: true,
		MaxDaysPerRequest: 5, RequiresDocumentation: true,
	}

	alice   = leave.Employee{ID: "emp-1", Name: "Alice", Email: "alice@example.com", ManagerID: "mgr-1", TeamID: "team-a"}
	bob     = leave.Employee{ID: "emp-2", Name: "Bob", Email: "bob@example.com", ManagerID: "mgr-1", TeamID: "team-a"}
	manager = leave.Employee{ID: "mgr-1", Name: "Morgan", Email: "morgan@example.com"}
)

func balance(employeeID, leaveTypeID string, total string) leave.LeaveBalance {
	b := leave.LeaveBalance{
		EmployeeID:     employeeID,
		LeaveTypeID:    leaveTypeID,
		TotalAllowance: dec(total),
		UsedDays:       decimal.Zero,
		CarryOverDays:  decimal.Zero,
		EffectiveDate:  day(time.January, 1),
		ExpirationDate: day(time.December, 31),
		Version:        1,
	}
	b.Recompute()
	return b
}

func draft(requesterID, leaveTypeID string, start, end time.Time) leave.LeaveRequest {
	return leave.LeaveRequest{
		RequesterID: requesterID,
		LeaveTypeID: leaveTypeID,
		StartDate:   start,
		EndDate:     end,
	}
}

type fixture struct {
	store    *memory.Store
	faults   *faultyStore
	ledger   *leave.BalanceLedger
	workflow *leave.Workflow
	calendar *mock.MockCalendarSync
	notifier *mock.MockNotificationSender
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()

	s := memory.New()
	for _, lt := range []leave.LeaveType{annual, sick, study} {
		s.PutLeaveType(lt)
	}
	for _, e := range []leave.Employee{alice, bob, manager} {
		s.PutEmployee(e)
	}
	for _, b := range []leave.LeaveBalance{
		balance(alice.ID, annual.ID, "10"),
		balance(bob.ID, annual.ID, "10"),
		balance(alice.ID, sick.ID, "10"),
	} {
		require.NoError(t, s.SaveBalance(ctx, b))
	}
	return s
}

// newFixture wires a workflow over the memory store with no calendar and
// no notifier.
func newFixture(t *testing.T) *fixture {
	return build(t, nil, nil)
}

// newMockedFixture adds gomock calendar and notifier collaborators.
func newMockedFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return build(t, mock.NewMockCalendarSync(ctrl), mock.NewMockNotificationSender(ctrl))
}

func build(t *testing.T, cal *mock.MockCalendarSync, notifier *mock.MockNotificationSender) *fixture {
	t.Helper()
	s := seededStore(t)
	faults := &faultyStore{Store: s}
	logger := zap.NewNop()
	locks := generic.NewKeyedMutex()

	ledger := leave.NewBalanceLedger(faults, generic.NewLedger(s), locks, logger)
	deps := leave.Deps{
		Requests:   faults,
		LeaveTypes: s,
		Balances:   faults,
		Ledger:     ledger,
		Directory:  s,
		Conflicts:  leave.NewConflictDetector(s, s, s),
		Locks:      locks,
		Now:        now,
	}
	if cal != nil {
		deps.Calendar = cal
	}
	if notifier != nil {
		deps.Notifier = notifier
	}

	return &fixture{
		store:    s,
		faults:   faults,
		ledger:   ledger,
		workflow: leave.NewWorkflow(deps, logger),
		calendar: cal,
		notifier: notifier,
	}
}

// faultyStore passes through to the memory store until a failure is armed.
// An armed failure fires on every call until cleared.
type faultyStore struct {
	*memory.Store
	updateErr error
	commitErr error
}

func (s *faultyStore) Update(ctx context.Context, id string, patch leave.RequestPatch) (*leave.LeaveRequest, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.Store.Update(ctx, id, patch)
}

func (s *faultyStore) CommitBalance(ctx context.Context, next leave.LeaveBalance, entry generic.Transaction) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.Store.CommitBalance(ctx, next, entry)
}

// submit submits d and requires it to be accepted.
func (f *fixture) submit(t *testing.T, d leave.LeaveRequest) *leave.LeaveRequest {
	t.Helper()
	res, err := f.workflow.Submit(context.Background(), d)
	require.NoError(t, err)
	require.True(t, res.Verdict.IsValid(), "unexpected errors: %v", res.Verdict.Errors)
	require.NotNil(t, res.Request)
	return res.Request
}

func (f *fixture) balanceOf(t *testing.T, employeeID, leaveTypeID string) leave.LeaveBalance {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), employeeID, leaveTypeID)
	require.NoError(t, err)
	return *b
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStore_RequestsConditionalUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Create(ctx, &leave.LeaveRequest{
		RequesterID: "emp-1", LeaveTypeID: "annual",
		StartDate: day(time.January, 8), EndDate: day(time.January, 9),
		Status: leave.StatusPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	pending, approved := leave.StatusPending, leave.StatusApproved
	reviewer := "mgr-1"
	updated, err := s.Update(ctx, id, leave.RequestPatch{ExpectStatus: &pending, Status: &approved, ReviewerID: &reviewer})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, updated.Status)
	assert.Equal(t, "mgr-1", updated.ReviewerID)

	// A second writer still expecting pending loses.
	_, err = s.Update(ctx, id, leave.RequestPatch{ExpectStatus: &pending, Status: &approved})
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	_, err = s.Update(ctx, "missing", leave.RequestPatch{})
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)

	// Returned values are copies.
	updated.Status = leave.StatusCancelled
	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
}

func TestStore_ListByRequesterSortedByStart(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, d := range []int{22, 8, 15} {
		_, err := s.Create(ctx, &leave.LeaveRequest{RequesterID: "emp-1", StartDate: day(time.January, d), EndDate: day(time.January, d)})
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, &leave.LeaveRequest{RequesterID: "emp-2", StartDate: day(time.January, 1)})
	require.NoError(t, err)

	got, err := s.ListByRequester(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day(time.January, 8), got[0].StartDate)
	assert.Equal(t, day(time.January, 22), got[2].StartDate)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_CommitBalanceVersionCheck(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveBalance(ctx, leave.LeaveBalance{
		EmployeeID: "emp-1", LeaveTypeID: "annual",
		TotalAllowance: generic.MustParseDecimal("10"),
		Version:        1,
	}))

	current, err := s.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, current.RemainingDays.Equal(generic.MustParseDecimal("10")), "SaveBalance recomputes")

	next := *current
	next.Apply(generic.MustParseDecimal("2"))
	next.Version = 2
	entry := generic.Transaction{
		ID: "tx-1", EntityID: "emp-1", PolicyID: "annual",
		EffectiveAt:    generic.DayOf(day(time.January, 8)),
		Delta:          generic.NewAmountFromDecimal(generic.MustParseDecimal("-2"), generic.UnitDays),
		Type:           generic.TxConsumption,
		ReferenceID:    "req-1",
		IdempotencyKey: "consume:req-1:1",
	}
	require.NoError(t, s.CommitBalance(ctx, next, entry))

	// Replaying the same entry is refused before the snapshot is touched.
	next.Version = 3
	assert.ErrorIs(t, s.CommitBalance(ctx, next, entry), generic.ErrDuplicateIdempotencyKey)

	stale := next
	stale.Version = 2
	entry.ID, entry.IdempotencyKey = "tx-2", "consume:req-2:1"
	assert.ErrorIs(t, s.CommitBalance(ctx, stale, entry), generic.ErrConcurrentModification)

	missing := next
	missing.EmployeeID = "emp-9"
	assert.ErrorIs(t, s.CommitBalance(ctx, missing, entry), generic.ErrBalanceNotFound)

	txs, err := s.Load(ctx, "emp-1", "annual")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 1, s.References("req-1"), "refused commits leave no entry")

	stored, err := s.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.True(t, stored.RemainingDays.Equal(generic.MustParseDecimal("8")))
}

func TestStore_DirectoryAndTeams(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "emp-1", TeamID: "team-a"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "emp-3", TeamID: "team-a"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "emp-2", TeamID: "team-a"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "emp-4", TeamID: "team-b"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "solo"}))

	members, err := s.TeamMembers(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "emp-2", members[0].ID)
	assert.Equal(t, "emp-3", members[1].ID)

	none, err := s.TeamMembers(ctx, "solo")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.TeamMembers(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
	_, err = s.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestStore_CompanyDays(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveCompanyDay(ctx, generic.CompanyDay{ID: "holiday:2024-01-15", Date: day(time.January, 15), Name: "MLK Day", Kind: generic.DayHoliday}))
	require.NoError(t, s.SaveCompanyDay(ctx, generic.CompanyDay{ID: "blackout:2024-01-31", Date: day(time.January, 31), Name: "Close", Kind: generic.DayBlackout}))
	require.NoError(t, s.SaveCompanyDay(ctx, generic.CompanyDay{ID: "holiday:2024-01-15", Date: day(time.January, 15), Name: "Martin Luther King Jr. Day", Kind: generic.DayHoliday}))

	holidays, err := s.Holidays(ctx, day(time.January, 1), day(time.January, 31))
	require.NoError(t, err)
	require.Len(t, holidays, 1, "same id replaces")
	assert.Equal(t, "Martin Luther King Jr. Day", holidays[0].Name)

	// Bounds are inclusive and compared by calendar day.
	blackouts, err := s.BlackoutDates(ctx, day(time.January, 1), day(time.January, 31).Add(9*time.Hour))
	require.NoError(t, err)
	assert.Len(t, blackouts, 1)

	blackouts, err = s.BlackoutDates(ctx, day(time.February, 1), day(time.February, 29))
	require.NoError(t, err)
	assert.Empty(t, blackouts)
}

func TestStore_LeaveTypesSortedByName(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveLeaveType(ctx, leave.LeaveType{ID: "sick", Name: "Sick Leave"}))
	require.NoError(t, s.SaveLeaveType(ctx, leave.LeaveType{ID: "annual", Name: "Annual Leave"}))

	types, err := s.ListLeaveTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "annual", types[0].ID)

	_, err = s.GetLeaveType(ctx, "parental")
	assert.ErrorIs(t, err, generic.ErrLeaveTypeNotFound)
}

/*
Package memory provides in-process implementations of every leave store
contract. Used by tests and by `serve --db memory` for demos.

The balance journal is the generic/store journal; CommitBalance checks
the snapshot version under the journal's write lock so the snapshot and
its journal entry land together.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
)

type balanceKey struct {
	employeeID  string
	leaveTypeID string
}

type Store struct {
	*store.Journal

	mu         sync.RWMutex
	requests   map[string]leave.LeaveRequest
	leaveTypes map[string]leave.LeaveType
	balances   map[balanceKey]leave.LeaveBalance
	employees  map[string]leave.Employee
	days       []generic.CompanyDay
	now        func() time.Time
}

func New() *Store {
	return &Store{
		Journal:    store.NewJournal(),
		requests:   make(map[string]leave.LeaveRequest),
		leaveTypes: make(map[string]leave.LeaveType),
		balances:   make(map[balanceKey]leave.LeaveBalance),
		employees:  make(map[string]leave.Employee),
		now:        time.Now,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) Create(_ context.Context, req *leave.LeaveRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *req
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ModifiedAt.IsZero() {
		r.ModifiedAt = s.now()
	}
	s.requests[r.ID] = r
	return r.ID, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	return &r, nil
}

func (s *Store) Update(_ context.Context, id string, patch leave.RequestPatch) (*leave.LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	if err := patch.CheckExpected(&r); err != nil {
		return nil, err
	}
	patch.Apply(&r)
	r.ModifiedAt = s.now()
	s.requests[id] = r
	return &r, nil
}

func (s *Store) ListByRequester(_ context.Context, requesterID string) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []leave.LeaveRequest
	for _, r := range s.requests {
		if r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) ListAll(_ context.Context) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leave.LeaveRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (s *Store) PutLeaveType(lt leave.LeaveType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveTypes[lt.ID] = lt
}

func (s *Store) SaveLeaveType(_ context.Context, lt leave.LeaveType) error {
	s.PutLeaveType(lt)
	return nil
}

func (s *Store) GetLeaveType(_ context.Context, id string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lt, ok := s.leaveTypes[id]
	if !ok {
		return nil, generic.ErrLeaveTypeNotFound
	}
	return &lt, nil
}

func (s *Store) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leave.LeaveType, 0, len(s.leaveTypes))
	for _, lt := range s.leaveTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(_ context.Context, employeeID, leaveTypeID string) (*leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[balanceKey{employeeID, leaveTypeID}]
	if !ok {
		return nil, generic.ErrBalanceNotFound
	}
	return &b, nil
}

func (s *Store) ListBalances(_ context.Context, employeeID string) ([]leave.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []leave.LeaveBalance
	for k, b := range s.balances {
		if employeeID == "" || k.employeeID == employeeID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].LeaveTypeID < out[j].LeaveTypeID
	})
	return out, nil
}

func (s *Store) SaveBalance(_ context.Context, b leave.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Recompute()
	s.balances[balanceKey{b.EmployeeID, b.LeaveTypeID}] = b
	return nil
}

func (s *Store) CommitBalance(ctx context.Context, next leave.LeaveBalance, entry generic.Transaction) error {
	return s.Journal.AppendIf(ctx, entry, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		k := balanceKey{next.EmployeeID, next.LeaveTypeID}
		current, ok := s.balances[k]
		if !ok {
			return generic.ErrBalanceNotFound
		}
		if current.Version != next.Version-1 {
			return generic.ErrConcurrentModification
		}
		s.balances[k] = next
		return nil
	})
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) PutEmployee(e leave.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

func (s *Store) SaveEmployee(_ context.Context, e leave.Employee) error {
	s.PutEmployee(e)
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &e, nil
}

func (s *Store) TeamMembers(_ context.Context, employeeID string) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	self, ok := s.employees[employeeID]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	if self.TeamID == "" {
		return nil, nil
	}
	var out []leave.Employee
	for _, e := range s.employees {
		if e.ID != employeeID && e.TeamID == self.TeamID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// COMPANY CALENDAR
// =============================================================================

func (s *Store) PutCompanyDay(d generic.CompanyDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	for i := range s.days {
		if s.days[i].ID == d.ID {
			s.days[i] = d
			return
		}
	}
	s.days = append(s.days, d)
}

func (s *Store) SaveCompanyDay(_ context.Context, d generic.CompanyDay) error {
	s.PutCompanyDay(d)
	return nil
}

func (s *Store) Holidays(_ context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(generic.DayHoliday, from, to), nil
}

func (s *Store) BlackoutDates(_ context.Context, from, to time.Time) ([]generic.CompanyDay, error) {
	return s.companyDays(generic.DayBlackout, from, to), nil
}

func (s *Store) companyDays(kind generic.DayKind, from, to time.Time) []generic.CompanyDay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := generic.Midnight(from), generic.Midnight(to)
	var out []generic.CompanyDay
	for _, d := range s.days {
		day := generic.Midnight(d.Date)
		if d.Kind == kind && !day.Before(lo) && !day.After(hi) {
			out = append(out, d)
		}
	}
	return out
}

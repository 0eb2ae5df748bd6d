package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/generic"
)

//go:generate mockgen -destination=mock/ports_mock.go -package=mock . CalendarSync,NotificationSender

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// RequestStore persists leave requests. Reads after writes are assumed to
// be strongly consistent.
type RequestStore interface {
	// Create stores a new request and returns its identity.
	Create(ctx context.Context, req *LeaveRequest) (string, error)
	// GetByID returns generic.ErrRequestNotFound when id is unknown.
	GetByID(ctx context.Context, id string) (*LeaveRequest, error)
	// Update applies patch and returns the stored result. A failed
	// ExpectStatus check returns generic.ErrConcurrentModification.
	Update(ctx context.Context, id string, patch RequestPatch) (*LeaveRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]LeaveRequest, error)
	ListAll(ctx context.Context) ([]LeaveRequest, error)
}

// CalendarSync mirrors approved leave into a shared calendar. Every call
// is best-effort from the workflow's point of view.
type CalendarSync interface {
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// NotificationSender delivers plain-text messages. Best-effort.
type NotificationSender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// LeaveTypeCatalog resolves leave types.
type LeaveTypeCatalog interface {
	// GetLeaveType returns generic.ErrLeaveTypeNotFound when id is unknown.
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
}

// BalanceStore persists balance snapshots. Stores implementing it also
// implement generic.Store for the journal written by CommitBalance.
type BalanceStore interface {
	// GetBalance returns generic.ErrBalanceNotFound for untracked pairs.
	GetBalance(ctx context.Context, employeeID, leaveTypeID string) (*LeaveBalance, error)
	// ListBalances returns one employee's balances, or all when
	// employeeID is empty.
	ListBalances(ctx context.Context, employeeID string) ([]LeaveBalance, error)
	// SaveBalance creates or replaces a snapshot (admin path).
	SaveBalance(ctx context.Context, b LeaveBalance) error
	// CommitBalance writes next only if the stored version equals
	// next.Version-1, appending entry to the journal in the same step.
	CommitBalance(ctx context.Context, next LeaveBalance, entry generic.Transaction) error
}

// Directory answers who people are and who they work with.
type Directory interface {
	// GetEmployee returns generic.ErrEmployeeNotFound when id is unknown.
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	// TeamMembers lists the other members of employeeID's team.
	TeamMembers(ctx context.Context, employeeID string) ([]Employee, error)
}

// CompanyCalendar lists company-wide days inside [from, to].
type CompanyCalendar interface {
	Holidays(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error)
	BlackoutDates(ctx context.Context, from, to time.Time) ([]generic.CompanyDay, error)
}

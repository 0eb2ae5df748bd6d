/*
Package leave implements leave-request validation and the approval workflow.

PURPOSE:
  Decides whether a requested leave period is admissible, keeps balances
  consistent while requests are approved and cancelled, and moves each
  request through its lifecycle with explicit fatal and best-effort steps.

KEY TYPES:
  - LeaveRequest: A period of absence asked for by an employee
  - LeaveType: Category rules (approval, documentation, max days, flags)
  - LeaveBalance: Allowance and usage per (employee, leave type)
  - Verdict: Blocking errors plus non-blocking warnings
  - ConflictReport: Blackouts, holidays and team overlap for a period

LIFECYCLE:
  pending ──approve──▶ approved ──cancel──▶ cancelled
     │
     ├──reject──▶ rejected
     └──cancel──▶ cancelled

  approved, rejected and cancelled are terminal except approved → cancelled.

SEE ALSO:
  - transitions.go: Transition table with per-step fatal/best-effort tags
  - workflow.go: Workflow service driving the table
  - validator.go: Ordered admissibility checks
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"

	// statusNew is the pseudo-state of a draft that was never persisted.
	statusNew Status = ""
)

// IsTerminal reports whether no transition leaves s. Approved still
// allows cancellation, so only rejected and cancelled are final.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// =============================================================================
// LEAVE TYPE
// =============================================================================

// LeaveType is read once at submission; later edits do not revalidate
// requests that already exist.
type LeaveType struct {
	ID                    string
	Name                  string
	Active                bool
	RequiresApproval      bool
	MaxDaysPerRequest     int // 0 = no limit
	RequiresDocumentation bool
	Color                 string
	PolicyRef             string

	// PastDateExempt allows start dates in the past (e.g. emergency or
	// sick leave recorded after the fact).
	PastDateExempt bool

	// PartialDayDiscouraged flags types where partial days are unusual
	// (e.g. parental leave); a partial-day request only draws a warning.
	PartialDayDiscouraged bool
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveRequest struct {
	ID          string
	RequesterID string
	LeaveTypeID string
	ManagerID   string

	// StartDate and EndDate are inclusive calendar days.
	StartDate time.Time
	EndDate   time.Time

	PartialDay      bool
	PartialDayHours decimal.Decimal // zero = not specified

	Comment       string
	AttachmentRef string

	Status          Status
	ReviewerID      string
	ReviewerComment string
	ReviewedAt      *time.Time

	SubmittedAt time.Time
	ModifiedAt  time.Time

	CalendarEventID  string
	NotificationSent bool
	// RemindedAt is when the manager was last chased about this pending
	// request. Nil until the first reminder.
	RemindedAt *time.Time

	// TotalDays is the consumption amount computed at submission.
	TotalDays decimal.Decimal
}

// Overlaps applies the inclusive overlap test on calendar dates.
func (r LeaveRequest) Overlaps(other LeaveRequest) bool {
	return generic.SpansOverlap(r.StartDate, r.EndDate, other.StartDate, other.EndDate)
}

// BalanceKey identifies the balance this request draws from.
func (r LeaveRequest) BalanceKey() (generic.EntityID, generic.PolicyID) {
	return generic.EntityID(r.RequesterID), generic.PolicyID(r.LeaveTypeID)
}

// RequestPatch is a partial update. Nil fields are left untouched.
// ExpectStatus turns the update into a compare-and-swap on status.
type RequestPatch struct {
	ExpectStatus *Status

	Status           *Status
	ReviewerID       *string
	ReviewerComment  *string
	ReviewedAt       **time.Time
	CalendarEventID  *string
	NotificationSent *bool
	RemindedAt       **time.Time
}

// Apply copies the set fields of p onto r.
func (p RequestPatch) Apply(r *LeaveRequest) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ReviewerID != nil {
		r.ReviewerID = *p.ReviewerID
	}
	if p.ReviewerComment != nil {
		r.ReviewerComment = *p.ReviewerComment
	}
	if p.ReviewedAt != nil {
		r.ReviewedAt = *p.ReviewedAt
	}
	if p.CalendarEventID != nil {
		r.CalendarEventID = *p.CalendarEventID
	}
	if p.NotificationSent != nil {
		r.NotificationSent = *p.NotificationSent
	}
	if p.RemindedAt != nil {
		r.RemindedAt = *p.RemindedAt
	}
}

// CheckExpected returns ErrConcurrentModification when r's status differs
// from the patch's expectation.
func (p RequestPatch) CheckExpected(r *LeaveRequest) error {
	if p.ExpectStatus != nil && r.Status != *p.ExpectStatus {
		return generic.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the directory view of a person: who they are, who approves
// their leave and which team they share coverage with.
type Employee struct {
	ID        string
	Name      string
	Email     string
	ManagerID string
	TeamID    string
}

func ptr[T any](v T) *T { return &v }

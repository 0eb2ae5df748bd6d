/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication and keeps the
  domain model (leave.LeaveRequest, decimal amounts) out of the wire
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required fields, date formats). Business rules stay in leave.Validator
  so that their messages are the same for HTTP and batch callers.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go:   Validation error mapping
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveTypeDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Active                bool   `json:"active"`
	RequiresApproval      bool   `json:"requires_approval"`
	MaxDaysPerRequest     int    `json:"max_days_per_request,omitempty"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	Color                 string `json:"color,omitempty"`
}

func toLeaveTypeDTO(lt leave.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:                    lt.ID,
		Name:                  lt.Name,
		Active:                lt.Active,
		RequiresApproval:      lt.RequiresApproval,
		MaxDaysPerRequest:     lt.MaxDaysPerRequest,
		RequiresDocumentation: lt.RequiresDocumentation,
		Color:                 lt.Color,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest is the body of POST /api/requests. RequesterID falls
// back to the X-Employee-ID header.
type SubmitRequest struct {
	RequesterID     string   `json:"requester_id"`
	LeaveTypeID     string   `json:"leave_type_id" validate:"required"`
	StartDate       string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	PartialDay      bool     `json:"partial_day"`
	PartialDayHours *float64 `json:"partial_day_hours,omitempty" validate:"omitempty,gte=0"`
	Comment         string   `json:"comment" validate:"max=2000"`
	AttachmentRef   string   `json:"attachment_ref"`
	ManagerID       string   `json:"manager_id"`
}

func (s SubmitRequest) toDraft() leave.LeaveRequest {
	start, _ := time.ParseInLocation(generic.DateLayout, s.StartDate, time.UTC)
	end, _ := time.ParseInLocation(generic.DateLayout, s.EndDate, time.UTC)
	draft := leave.LeaveRequest{
		RequesterID:   s.RequesterID,
		LeaveTypeID:   s.LeaveTypeID,
		ManagerID:     s.ManagerID,
		StartDate:     start,
		EndDate:       end,
		PartialDay:    s.PartialDay,
		Comment:       s.Comment,
		AttachmentRef: s.AttachmentRef,
	}
	if s.PartialDayHours != nil {
		draft.PartialDayHours = decimal.NewFromFloat(*s.PartialDayHours)
	}
	return draft
}

type RequestDTO struct {
	ID               string   `json:"id"`
	RequesterID      string   `json:"requester_id"`
	LeaveTypeID      string   `json:"leave_type_id"`
	ManagerID        string   `json:"manager_id,omitempty"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	PartialDay       bool     `json:"partial_day"`
	PartialDayHours  *float64 `json:"partial_day_hours,omitempty"`
	TotalDays        float64  `json:"total_days"`
	Comment          string   `json:"comment,omitempty"`
	AttachmentRef    string   `json:"attachment_ref,omitempty"`
	Status           string   `json:"status"`
	ReviewerID       string   `json:"reviewer_id,omitempty"`
	ReviewerComment  string   `json:"reviewer_comment,omitempty"`
	ReviewedAt       *string  `json:"reviewed_at,omitempty"`
	SubmittedAt      string   `json:"submitted_at"`
	CalendarEventID  string   `json:"calendar_event_id,omitempty"`
	NotificationSent bool     `json:"notification_sent"`
	RemindedAt       *string  `json:"reminded_at,omitempty"`
}

func toRequestDTO(r leave.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		LeaveTypeID:      r.LeaveTypeID,
		ManagerID:        r.ManagerID,
		StartDate:        r.StartDate.Format(generic.DateLayout),
		EndDate:          r.EndDate.Format(generic.DateLayout),
		PartialDay:       r.PartialDay,
		TotalDays:        r.TotalDays.InexactFloat64(),
		Comment:          r.Comment,
		AttachmentRef:    r.AttachmentRef,
		Status:           string(r.Status),
		ReviewerID:       r.ReviewerID,
		ReviewerComment:  r.ReviewerComment,
		SubmittedAt:      r.SubmittedAt.Format(time.RFC3339),
		CalendarEventID:  r.CalendarEventID,
		NotificationSent: r.NotificationSent,
	}
	if !r.PartialDayHours.IsZero() {
		hours := r.PartialDayHours.InexactFloat64()
		dto.PartialDayHours = &hours
	}
	if r.ReviewedAt != nil {
		dto.ReviewedAt = strPtr(r.ReviewedAt.Format(time.RFC3339))
	}
	if r.RemindedAt != nil {
		dto.RemindedAt = strPtr(r.RemindedAt.Format(time.RFC3339))
	}
	return dto
}

type VerdictDTO struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func toVerdictDTO(v leave.Verdict) VerdictDTO {
	dto := VerdictDTO{Valid: v.IsValid(), Errors: v.Errors, Warnings: v.Warnings}
	if dto.Errors == nil {
		dto.Errors = []string{}
	}
	if dto.Warnings == nil {
		dto.Warnings = []string{}
	}
	return dto
}

type ConflictDTO struct {
	Kind     string   `json:"kind"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Dates    []string `json:"dates,omitempty"`
	Members  []string `json:"members,omitempty"`
}

func toConflictDTOs(r leave.ConflictReport) []ConflictDTO {
	out := make([]ConflictDTO, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		dto := ConflictDTO{
			Kind:     string(c.Kind),
			Severity: string(c.Severity),
			Message:  c.Message,
			Members:  c.Members,
		}
		for _, d := range c.Dates {
			dto.Dates = append(dto.Dates, d.Format(generic.DateLayout))
		}
		out = append(out, dto)
	}
	return out
}

// SubmitResponse answers both submission and dry-run validation.
type SubmitResponse struct {
	Request      *RequestDTO   `json:"request,omitempty"`
	Verdict      VerdictDTO    `json:"verdict"`
	Conflicts    []ConflictDTO `json:"conflicts"`
	AutoApproved bool          `json:"auto_approved,omitempty"`
}

// DecisionRequest is the body of approve/reject/cancel. ReviewerID falls
// back to the X-Employee-ID header.
type DecisionRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Comment    string `json:"comment" validate:"max=2000"`
}

// =============================================================================
// BULK
// =============================================================================

type BulkSubmitRequest struct {
	Requests []SubmitRequest `json:"requests" validate:"dive"`
}

type BulkApproveRequest struct {
	RequestIDs []string `json:"request_ids" validate:"dive,required"`
	ReviewerID string   `json:"reviewer_id"`
	Comment    string   `json:"comment" validate:"max=2000"`
}

type BatchItemDTO struct {
	Index     int         `json:"index"`
	RequestID string      `json:"request_id,omitempty"`
	OK        bool        `json:"ok"`
	Request   *RequestDTO `json:"request,omitempty"`
	Verdict   *VerdictDTO `json:"verdict,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type BatchResultDTO struct {
	Verdict VerdictDTO     `json:"verdict"`
	Items   []BatchItemDTO `json:"items"`
	Failed  int            `json:"failed"`
}

func toBatchResultDTO(b leave.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		Verdict: toVerdictDTO(b.Verdict),
		Items:   make([]BatchItemDTO, 0, len(b.Items)),
		Failed:  b.Failed(),
	}
	for _, it := range b.Items {
		item := BatchItemDTO{Index: it.Index, RequestID: it.RequestID, OK: it.OK()}
		if it.Request != nil {
			r := toRequestDTO(*it.Request)
			item.Request = &r
		}
		if it.Verdict != nil {
			v := toVerdictDTO(*it.Verdict)
			item.Verdict = &v
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	LeaveTypeID     string  `json:"leave_type_id"`
	LeaveTypeName   string  `json:"leave_type_name"`
	TotalAllowance  float64 `json:"total_allowance"`
	UsedDays        float64 `json:"used_days"`
	RemainingDays   float64 `json:"remaining_days"`
	CarryOverDays   float64 `json:"carry_over_days"`
	EffectiveDate   string  `json:"effective_date,omitempty"`
	ExpirationDate  string  `json:"expiration_date,omitempty"`
	UsagePercentage float64 `json:"usage_percentage"`
	ExpiringSoon    bool    `json:"expiring_soon"`
	DaysUntilExpiry int     `json:"days_until_expiry"`
	Version         int64   `json:"version"`
}

func toBalanceDTO(v leave.BalanceView) BalanceDTO {
	return BalanceDTO{
		LeaveTypeID:     v.LeaveTypeID,
		LeaveTypeName:   v.LeaveTypeName,
		TotalAllowance:  v.TotalAllowance.InexactFloat64(),
		UsedDays:        v.UsedDays.InexactFloat64(),
		RemainingDays:   v.RemainingDays.InexactFloat64(),
		CarryOverDays:   v.CarryOverDays.InexactFloat64(),
		EffectiveDate:   formatDate(v.EffectiveDate),
		ExpirationDate:  formatDate(v.ExpirationDate),
		UsagePercentage: v.UsagePercentage.InexactFloat64(),
		ExpiringSoon:    v.ExpiringSoon,
		DaysUntilExpiry: v.DaysUntilExpiry,
		Version:         v.Version,
	}
}

type BalanceSummaryDTO struct {
	EmployeeID     string       `json:"employee_id"`
	Balances       []BalanceDTO `json:"balances"`
	TotalAllowance float64      `json:"total_allowance"`
	TotalUsed      float64      `json:"total_used"`
	TotalRemaining float64      `json:"total_remaining"`
	ExpiringSoon   []string     `json:"expiring_soon"`
}

func toBalanceSummaryDTO(s leave.BalanceSummary) BalanceSummaryDTO {
	dto := BalanceSummaryDTO{
		EmployeeID:     s.EmployeeID,
		Balances:       make([]BalanceDTO, 0, len(s.Balances)),
		TotalAllowance: s.TotalAllowance.InexactFloat64(),
		TotalUsed:      s.TotalUsed.InexactFloat64(),
		TotalRemaining: s.TotalRemaining.InexactFloat64(),
		ExpiringSoon:   []string{},
	}
	for _, b := range s.Balances {
		dto.Balances = append(dto.Balances, toBalanceDTO(b))
	}
	for _, b := range s.ExpiringSoon {
		dto.ExpiringSoon = append(dto.ExpiringSoon, b.LeaveTypeID)
	}
	return dto
}

// UpsertBalanceRequest is the body of the admin balance endpoint.
type UpsertBalanceRequest struct {
	TotalAllowance *float64 `json:"total_allowance" validate:"required"`
	CarryOverDays  float64  `json:"carry_over_days"`
	EffectiveDate  string   `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	ExpirationDate string   `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
}

func (u UpsertBalanceRequest) toBalance(employeeID, leaveTypeID string) leave.LeaveBalance {
	b := leave.LeaveBalance{
		EmployeeID:     employeeID,
		LeaveTypeID:    leaveTypeID,
		TotalAllowance: decimal.NewFromFloat(*u.TotalAllowance),
		CarryOverDays:  decimal.NewFromFloat(u.CarryOverDays),
	}
	b.EffectiveDate, _ = time.ParseInLocation(generic.DateLayout, u.EffectiveDate, time.UTC)
	b.ExpirationDate, _ = time.ParseInLocation(generic.DateLayout, u.ExpirationDate, time.UTC)
	return b
}

type TransactionDTO struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Delta       float64 `json:"delta"`
	EffectiveAt string  `json:"effective_at"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Delta:       tx.Delta.Value.InexactFloat64(),
		EffectiveAt: tx.EffectiveAt.String(),
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		CreatedBy:   tx.CreatedBy,
	}
	if !tx.CreatedAt.IsZero() {
		dto.CreatedAt = tx.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DASHBOARD / ADMIN
// =============================================================================

type DashboardDTO struct {
	EmployeeID       string       `json:"employee_id"`
	TotalRequests    int          `json:"total_requests"`
	PendingRequests  int          `json:"pending_requests"`
	ApprovedRequests int          `json:"approved_requests"`
	TotalRemaining   float64      `json:"total_remaining"`
	UpcomingApproved []RequestDTO `json:"upcoming_approved"`
	ExpiringBalances []BalanceDTO `json:"expiring_balances"`
}

func toDashboardDTO(d leave.Dashboard) DashboardDTO {
	dto := DashboardDTO{
		EmployeeID:       d.EmployeeID,
		TotalRequests:    d.TotalRequests,
		PendingRequests:  d.PendingRequests,
		ApprovedRequests: d.ApprovedRequests,
		TotalRemaining:   d.TotalRemaining.InexactFloat64(),
		UpcomingApproved: make([]RequestDTO, 0, len(d.UpcomingApproved)),
		ExpiringBalances: make([]BalanceDTO, 0, len(d.ExpiringBalances)),
	}
	for _, r := range d.UpcomingApproved {
		dto.UpcomingApproved = append(dto.UpcomingApproved, toRequestDTO(r))
	}
	for _, b := range d.ExpiringBalances {
		dto.ExpiringBalances = append(dto.ExpiringBalances, toBalanceDTO(b))
	}
	return dto
}

type ReminderReportDTO struct {
	RemindersSent int `json:"reminders_sent"`
	WarningsSent  int `json:"warnings_sent"`
	Failed        int `json:"failed"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func strPtr(s string) *string {
	return &s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(generic.DateLayout)
}

package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// CALENDAR EVENT
// =============================================================================

// CalendarEvent is the out-of-office entry mirrored for an approved request.
type CalendarEvent struct {
	RequestID  string
	OwnerEmail string
	Subject    string
	Body       string
	Start      time.Time
	End        time.Time
	AllDay     bool
	ShowAs     string
	Categories []string
}

const (
	ShowAsOutOfOffice = "oof"
	CalendarCategory  = "Leave Request"
)

// NewCalendarEvent builds the event for req. Full days run from the
// start date to the day after the end date; partial days keep the times
// given on the request.
func NewCalendarEvent(req LeaveRequest, lt LeaveType, owner Employee) CalendarEvent {
	var body strings.Builder
	fmt.Fprintf(&body, "Leave Type: %s", lt.Name)
	if req.PartialDay && req.PartialDayHours.IsPositive() {
		fmt.Fprintf(&body, "\nPartial Day: %s hours", req.PartialDayHours.String())
	}
	if req.Comment != "" {
		fmt.Fprintf(&body, "\nComments: %s", req.Comment)
	}

	start, end := req.StartDate, req.EndDate
	if !req.PartialDay {
		start = generic.Midnight(start)
		end = generic.Midnight(end).AddDate(0, 0, 1)
	}

	return CalendarEvent{
		RequestID:  req.ID,
		OwnerEmail: owner.Email,
		Subject:    lt.Name + " - Out of Office",
		Body:       body.String(),
		Start:      start,
		End:        end,
		AllDay:     !req.PartialDay,
		ShowAs:     ShowAsOutOfOffice,
		Categories: []string{CalendarCategory},
	}
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Message is a rendered plain-text notification.
type Message struct {
	Recipients []string
	Subject    string
	Body       string
}

func requestDetails(b *strings.Builder, req LeaveRequest, lt LeaveType) {
	b.WriteString("Request Details:\n")
	fmt.Fprintf(b, "- Leave Type: %s\n", lt.Name)
	fmt.Fprintf(b, "- Start Date: %s\n", req.StartDate.Format(generic.DateLayout))
	fmt.Fprintf(b, "- End Date: %s\n", req.EndDate.Format(generic.DateLayout))
	fmt.Fprintf(b, "- Total Days: %s\n", totalDaysLabel(req.TotalDays))
	if req.PartialDay && req.PartialDayHours.IsPositive() {
		fmt.Fprintf(b, "- Partial Day Hours: %s\n", req.PartialDayHours.String())
	}
}

func totalDaysLabel(d decimal.Decimal) string {
	if !d.IsPositive() {
		return "1"
	}
	return d.String()
}

func signOff(b *strings.Builder) {
	b.WriteString("\nBest regards,\nHR Team")
}

func greeting(b *strings.Builder, name string) {
	if name == "" {
		name = "Team Member"
	}
	fmt.Fprintf(b, "Dear %s,\n\n", name)
}

// SubmittedMessage goes to the requester, and to the manager when the
// type needs approval.
func SubmittedMessage(req LeaveRequest, lt LeaveType, requester Employee, manager *Employee) Message {
	var b strings.Builder
	greeting(&b, requester.Name)
	b.WriteString("Your leave request has been submitted and is now pending approval.\n\n")
	requestDetails(&b, req, lt)
	if req.Comment != "" {
		fmt.Fprintf(&b, "- Comments: %s\n", req.Comment)
	}
	if lt.RequiresApproval {
		b.WriteString("\nYour request will be reviewed by your manager and you will be notified of the decision.\n")
	} else {
		b.WriteString("\nThis leave type does not require approval and has been automatically approved.\n")
	}
	signOff(&b)

	recipients := []string{requester.Email}
	if manager != nil && manager.Email != "" && lt.RequiresApproval {
		recipients = append(recipients, manager.Email)
	}
	return Message{
		Recipients: recipients,
		Subject:    "Leave Request Submitted - " + lt.Name,
		Body:       b.String(),
	}
}

// DecisionMessage tells the requester the outcome of a review.
func DecisionMessage(req LeaveRequest, lt LeaveType, requester Employee) Message {
	approved := req.Status == StatusApproved
	label := "REJECTED"
	if approved {
		label = "APPROVED"
	}

	var b strings.Builder
	greeting(&b, requester.Name)
	fmt.Fprintf(&b, "Your leave request has been %s.\n\n", strings.ToLower(label))
	requestDetails(&b, req, lt)
	fmt.Fprintf(&b, "- Status: %s\n", label)
	if req.ReviewerComment != "" {
		fmt.Fprintf(&b, "- Manager Comments: %s\n", req.ReviewerComment)
	}
	if approved {
		b.WriteString("\nPlease hand over your responsibilities before your leave begins.\n")
	} else {
		b.WriteString("\nIf you have questions about this decision, please contact your manager or HR.\n")
	}
	signOff(&b)

	return Message{
		Recipients: []string{requester.Email},
		Subject:    fmt.Sprintf("Leave Request %s - %s", label, lt.Name),
		Body:       b.String(),
	}
}

// CancelledMessage informs the requester and, if known, the manager.
func CancelledMessage(req LeaveRequest, lt LeaveType, requester Employee, manager *Employee) Message {
	var b strings.Builder
	greeting(&b, requester.Name)
	b.WriteString("Your leave request has been cancelled.\n\n")
	requestDetails(&b, req, lt)
	signOff(&b)

	recipients := []string{requester.Email}
	if manager != nil && manager.Email != "" {
		recipients = append(recipients, manager.Email)
	}
	return Message{
		Recipients: recipients,
		Subject:    "Leave Request CANCELLED - " + lt.Name,
		Body:       b.String(),
	}
}

// ReminderMessage nudges a manager about a request still pending.
func ReminderMessage(req LeaveRequest, lt LeaveType, requester, manager Employee) Message {
	var b strings.Builder
	name := manager.Name
	if name == "" {
		name = "Manager"
	}
	greeting(&b, name)
	b.WriteString("You have a pending leave request that requires your approval.\n\n")
	fmt.Fprintf(&b, "- Employee: %s\n", displayName(requester))
	requestDetails(&b, req, lt)
	fmt.Fprintf(&b, "- Submitted: %s\n", req.SubmittedAt.Format(generic.DateLayout))
	b.WriteString("\nPlease approve or reject this request at your earliest convenience.\n")
	signOff(&b)

	return Message{
		Recipients: []string{manager.Email},
		Subject:    "Reminder: Pending Leave Request Approval - " + displayName(requester),
		Body:       b.String(),
	}
}

// ExpiryMessage warns an employee about unused days about to expire.
func ExpiryMessage(b LeaveBalance, typeName string, employee Employee) Message {
	var body strings.Builder
	greeting(&body, employee.Name)
	body.WriteString("You have unused leave balance that will expire soon.\n\n")
	fmt.Fprintf(&body, "- Leave Type: %s\n", typeName)
	fmt.Fprintf(&body, "- Remaining Days: %s\n", b.RemainingDays.String())
	fmt.Fprintf(&body, "- Expiration Date: %s\n", b.ExpirationDate.Format(generic.DateLayout))
	body.WriteString("\nPlease consider using your remaining days before they expire.\n")
	signOff(&body)

	return Message{
		Recipients: []string{employee.Email},
		Subject:    "Leave Balance Expiration Warning - " + typeName,
		Body:       body.String(),
	}
}

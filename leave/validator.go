/*
validator.go - Request admissibility

PURPOSE:
  Composes date arithmetic, leave-type rules, balance checks and the
  requester's own existing requests into one Verdict. Validation never
  fails with an error: every problem is a message in Errors (blocking)
  or Warnings (advisory).

ORDER OF CHECKS:
  0. Leave type resolved        (otherwise: single error, return)
  1. Required fields
  2. End >= Start               (otherwise: skip the date-dependent checks)
  3. Start not in the past      (unless LeaveType.PastDateExempt)
  4. Short notice               (warning)
  5. Weekend start or end       (warning)
  6. Leave-type policy          (policy.go)
  7. Balance                    (when a balance is supplied)
  8. Overlap with own requests  (error)

SEE ALSO:
  - conflict.go: Blackout, holiday and team checks (other people)
  - workflow.go: Merges the conflict report into the verdict on submit
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Verdict is the outcome of validation.
type Verdict struct {
	Errors   []string
	Warnings []string
}

func (v Verdict) IsValid() bool { return len(v.Errors) == 0 }

func (v *Verdict) addError(msg string) {
	if msg != "" {
		v.Errors = append(v.Errors, msg)
	}
}

func (v *Verdict) addWarning(msg string) {
	if msg != "" {
		v.Warnings = append(v.Warnings, msg)
	}
}

// Merge appends other's messages after v's.
func (v *Verdict) Merge(errs, warnings []string) {
	v.Errors = append(v.Errors, errs...)
	v.Warnings = append(v.Warnings, warnings...)
}

const (
	DefaultShortNoticeDays   = 2
	DefaultExpiryWarningDays = 30
)

var (
	minPartialHours = decimal.NewFromFloat(0.5)
	maxPartialHours = decimal.NewFromInt(generic.HoursPerDay)
)

// Validator holds the tunable thresholds. The zero value is not usable;
// build one with NewValidator.
type Validator struct {
	ShortNoticeDays   int
	ExpiryWarningDays int
	Now               func() time.Time
}

func NewValidator() *Validator {
	return &Validator{
		ShortNoticeDays:   DefaultShortNoticeDays,
		ExpiryWarningDays: DefaultExpiryWarningDays,
		Now:               time.Now,
	}
}

// Validate checks req against its leave type, the requester's balance
// (optional) and the requester's existing requests (optional).
func (val *Validator) Validate(req LeaveRequest, lt *LeaveType, balance *LeaveBalance, existing []LeaveRequest) Verdict {
	var v Verdict

	if lt == nil {
		if req.LeaveTypeID == "" {
			v.addError("Leave type is required")
		} else {
			v.addError("Invalid leave type selected")
		}
		return v
	}

	// 1. Required fields
	if req.StartDate.IsZero() {
		v.addError("Start date is required")
	}
	if req.EndDate.IsZero() {
		v.addError("End date is required")
	}
	if req.PartialDay && !req.PartialDayHours.IsPositive() {
		v.addError("Partial day hours must be specified for partial day requests")
	}
	if !req.PartialDayHours.IsZero() &&
		(req.PartialDayHours.LessThan(minPartialHours) || req.PartialDayHours.GreaterThan(maxPartialHours)) {
		v.addError("Partial day hours must be between 0.5 and 8 hours")
	}

	// 2-5. Dates
	datesOK := val.checkDates(&v, req, lt)

	// 6. Leave type
	errs, warns := CheckLeaveType(*lt, req)
	v.Merge(errs, warns)

	// 7. Balance
	if balance != nil {
		amount := ConsumptionAmount(req)
		v.addError(CheckSufficiency(*balance, amount))
		v.addWarning(UsageWarning(*balance, amount, lt.Name))
		v.addWarning(ExpiryWarning(*balance, lt.Name, val.now(), val.ExpiryWarningDays))
	}

	// 8. Own overlaps
	if datesOK && hasOwnOverlap(req, existing) {
		v.addError("You have overlapping leave requests. Please check your existing requests and modify dates if needed.")
	}

	return v
}

// checkDates reports whether the range is usable for span-based checks.
func (val *Validator) checkDates(v *Verdict, req LeaveRequest, lt *LeaveType) bool {
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return false
	}
	if generic.Midnight(req.EndDate).Before(generic.Midnight(req.StartDate)) {
		v.addError("End date must be after or equal to start date")
		return false
	}

	today := generic.Midnight(val.now())
	start := generic.Midnight(req.StartDate)

	if start.Before(today) && !lt.PastDateExempt {
		v.addError("Cannot request leave for past dates")
	}

	if !start.Before(today) && generic.BusinessDaysBetween(today, start) < val.ShortNoticeDays {
		v.addWarning("Short notice: Consider providing more advance notice for leave requests")
	}

	if generic.IsWeekend(req.StartDate) || generic.IsWeekend(req.EndDate) {
		v.addWarning("Leave request includes weekend dates")
	}
	return true
}

func hasOwnOverlap(req LeaveRequest, existing []LeaveRequest) bool {
	for _, e := range existing {
		if e.ID != "" && e.ID == req.ID {
			continue
		}
		if e.Status == StatusCancelled || e.Status == StatusRejected {
			continue
		}
		if req.Overlaps(e) {
			return true
		}
	}
	return false
}

func (val *Validator) now() time.Time {
	if val.Now == nil {
		return time.Now()
	}
	return val.Now()
}

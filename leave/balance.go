/*
balance.go - Balance arithmetic

PURPOSE:
  Pure functions over a LeaveBalance snapshot: how much a request
  consumes, whether it fits, and the advisory warnings shown alongside.
  Nothing here touches storage; BalanceLedger (ledger.go) is the only
  writer of UsedDays/RemainingDays.

INVARIANT:
  RemainingDays = max(0, TotalAllowance + CarryOverDays - UsedDays)
  recomputed after every Apply/Reverse, never taken from outside.

EXAMPLE:
  total 10, carry 0, used 0
  Apply(3)  → used 3, remaining 7
  Apply(8)  → refused upstream by CheckSufficiency (8 > 7)
  Reverse(3) → used 0, remaining 10
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// LeaveBalance is the allowance/usage snapshot for (employee, leave type).
type LeaveBalance struct {
	EmployeeID     string
	LeaveTypeID    string
	TotalAllowance decimal.Decimal
	UsedDays       decimal.Decimal
	RemainingDays  decimal.Decimal
	CarryOverDays  decimal.Decimal
	EffectiveDate  time.Time
	ExpirationDate time.Time

	// Version increments on every committed mutation.
	Version int64
}

// Apply consumes amount days.
func (b *LeaveBalance) Apply(amount decimal.Decimal) {
	b.UsedDays = b.UsedDays.Add(amount)
	b.Recompute()
}

// Reverse is the exact inverse of Apply.
func (b *LeaveBalance) Reverse(amount decimal.Decimal) {
	b.UsedDays = b.UsedDays.Sub(amount)
	b.Recompute()
}

// Recompute derives RemainingDays from the other fields.
func (b *LeaveBalance) Recompute() {
	remaining := b.TotalAllowance.Add(b.CarryOverDays).Sub(b.UsedDays)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	b.RemainingDays = remaining
}

func (b LeaveBalance) Key() (generic.EntityID, generic.PolicyID) {
	return generic.EntityID(b.EmployeeID), generic.PolicyID(b.LeaveTypeID)
}

// =============================================================================
// CONSUMPTION
// =============================================================================

var hoursPerDay = decimal.NewFromInt(generic.HoursPerDay)

// ConsumptionAmount is hours/8 for a partial day with hours given, the
// business-day span otherwise.
func ConsumptionAmount(req LeaveRequest) decimal.Decimal {
	if req.PartialDay && req.PartialDayHours.IsPositive() {
		return req.PartialDayHours.Div(hoursPerDay)
	}
	return decimal.NewFromInt(int64(generic.BusinessDaysBetween(req.StartDate, req.EndDate)))
}

// CheckSufficiency returns a blocking message when amount exceeds what
// remains, or "" when it fits.
func CheckSufficiency(b LeaveBalance, amount decimal.Decimal) string {
	if amount.GreaterThan(b.RemainingDays) {
		return fmt.Sprintf("Insufficient leave balance. Requested: %s days, Available: %s days",
			amount.String(), b.RemainingDays.String())
	}
	return ""
}

// usageWarningRatio is the share of the annual allowance above which a
// single request draws a warning.
var usageWarningRatio = decimal.NewFromFloat(0.5)

// UsageWarning flags a request consuming over half the allowance.
func UsageWarning(b LeaveBalance, amount decimal.Decimal, typeName string) string {
	if !b.TotalAllowance.IsPositive() {
		return ""
	}
	ratio := amount.Div(b.TotalAllowance)
	if !ratio.GreaterThan(usageWarningRatio) {
		return ""
	}
	pct := ratio.Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("This request will use %s%% of your annual %s allowance", pct.StringFixed(1), typeName)
}

// ExpiryWarning flags a balance that expires within window days.
func ExpiryWarning(b LeaveBalance, typeName string, now time.Time, window int) string {
	if b.ExpirationDate.IsZero() {
		return ""
	}
	n := generic.DaysUntil(b.ExpirationDate, now)
	if n <= 0 || n > window {
		return ""
	}
	return fmt.Sprintf("Your %s balance expires in %d days. Consider using remaining days before expiration.", typeName, n)
}

// =============================================================================
// SUMMARY
// =============================================================================

// BalanceView is a balance annotated for display.
type BalanceView struct {
	LeaveBalance
	LeaveTypeName   string
	UsagePercentage decimal.Decimal
	ExpiringSoon    bool
	DaysUntilExpiry int
}

// BalanceSummary aggregates an employee's balances.
type BalanceSummary struct {
	EmployeeID     string
	Balances       []BalanceView
	TotalAllowance decimal.Decimal
	TotalUsed      decimal.Decimal
	TotalRemaining decimal.Decimal
	ExpiringSoon   []BalanceView
}

// Summarize annotates balances with usage and expiry. names maps leave
// type IDs to display names; unknown IDs fall back to the ID.
func Summarize(employeeID string, balances []LeaveBalance, names map[string]string, now time.Time, window int) BalanceSummary {
	s := BalanceSummary{
		EmployeeID:     employeeID,
		TotalAllowance: decimal.Zero,
		TotalUsed:      decimal.Zero,
		TotalRemaining: decimal.Zero,
	}
	for _, b := range balances {
		v := BalanceView{LeaveBalance: b, LeaveTypeName: names[b.LeaveTypeID], UsagePercentage: decimal.Zero}
		if v.LeaveTypeName == "" {
			v.LeaveTypeName = b.LeaveTypeID
		}
		if b.TotalAllowance.IsPositive() {
			v.UsagePercentage = b.UsedDays.Div(b.TotalAllowance).Mul(decimal.NewFromInt(100)).Round(1)
		}
		if !b.ExpirationDate.IsZero() {
			v.DaysUntilExpiry = generic.DaysUntil(b.ExpirationDate, now)
			v.ExpiringSoon = v.DaysUntilExpiry > 0 && v.DaysUntilExpiry <= window
		}

		s.Balances = append(s.Balances, v)
		if v.ExpiringSoon && b.RemainingDays.IsPositive() {
			s.ExpiringSoon = append(s.ExpiringSoon, v)
		}
		s.TotalAllowance = s.TotalAllowance.Add(b.TotalAllowance)
		s.TotalUsed = s.TotalUsed.Add(b.UsedDays)
		s.TotalRemaining = s.TotalRemaining.Add(b.RemainingDays)
	}
	return s
}

// =============================================================================
// RECORD VALIDATION
// =============================================================================

const (
	MaxAllowanceDays = 365
	MaxCarryOverDays = 30
)

// ValidateBalanceRecord checks an admin-supplied balance before it is saved.
func ValidateBalanceRecord(b LeaveBalance) []string {
	var errs []string
	if b.EmployeeID == "" {
		errs = append(errs, "Employee is required")
	}
	if b.LeaveTypeID == "" {
		errs = append(errs, "Leave type is required")
	}
	if b.TotalAllowance.IsNegative() {
		errs = append(errs, "Total allowance cannot be negative")
	} else if b.TotalAllowance.GreaterThan(decimal.NewFromInt(MaxAllowanceDays)) {
		errs = append(errs, fmt.Sprintf("Total allowance cannot exceed %d days", MaxAllowanceDays))
	}
	if b.CarryOverDays.IsNegative() {
		errs = append(errs, "Carry over days cannot be negative")
	} else if b.CarryOverDays.GreaterThan(decimal.NewFromInt(MaxCarryOverDays)) {
		errs = append(errs, fmt.Sprintf("Carry over days cannot exceed %d days", MaxCarryOverDays))
	}
	if b.UsedDays.IsNegative() {
		errs = append(errs, "Used days cannot be negative")
	}
	if !b.EffectiveDate.IsZero() && !b.ExpirationDate.IsZero() && !b.ExpirationDate.After(b.EffectiveDate) {
		errs = append(errs, "Expiration date must be after effective date")
	}
	return errs
}

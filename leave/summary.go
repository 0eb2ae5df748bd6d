package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Dashboard is the per-employee overview.
type Dashboard struct {
	EmployeeID       string
	TotalRequests    int
	PendingRequests  int
	ApprovedRequests int
	TotalRemaining   decimal.Decimal
	UpcomingApproved []LeaveRequest
	ExpiringBalances []BalanceView
}

// Overview answers read-only questions about an employee's leave.
type Overview struct {
	requests   RequestStore
	balances   BalanceStore
	leaveTypes LeaveTypeCatalog
	window     int

	Now func() time.Time
}

func NewOverview(requests RequestStore, balances BalanceStore, leaveTypes LeaveTypeCatalog, expiryWindowDays int) *Overview {
	if expiryWindowDays <= 0 {
		expiryWindowDays = DefaultExpiryWarningDays
	}
	return &Overview{
		requests:   requests,
		balances:   balances,
		leaveTypes: leaveTypes,
		window:     expiryWindowDays,
		Now:        time.Now,
	}
}

// Balances summarizes every balance held by employeeID.
func (o *Overview) Balances(ctx context.Context, employeeID string) (BalanceSummary, error) {
	balances, err := o.balances.ListBalances(ctx, employeeID)
	if err != nil {
		return BalanceSummary{}, fmt.Errorf("list balances: %w", err)
	}
	types, err := o.leaveTypes.ListLeaveTypes(ctx)
	if err != nil {
		return BalanceSummary{}, fmt.Errorf("list leave types: %w", err)
	}
	names := make(map[string]string, len(types))
	for _, lt := range types {
		names[lt.ID] = lt.Name
	}
	return Summarize(employeeID, balances, names, o.Now(), o.window), nil
}

// Dashboard counts requests by status and totals remaining days.
func (o *Overview) Dashboard(ctx context.Context, employeeID string) (Dashboard, error) {
	reqs, err := o.requests.ListByRequester(ctx, employeeID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list requests: %w", err)
	}
	summary, err := o.Balances(ctx, employeeID)
	if err != nil {
		return Dashboard{}, err
	}

	today := o.Now()
	d := Dashboard{
		EmployeeID:       employeeID,
		TotalRequests:    len(reqs),
		TotalRemaining:   summary.TotalRemaining,
		ExpiringBalances: summary.ExpiringSoon,
	}
	for _, r := range reqs {
		switch r.Status {
		case StatusPending:
			d.PendingRequests++
		case StatusApproved:
			d.ApprovedRequests++
			if !r.EndDate.Before(today) {
				d.UpcomingApproved = append(d.UpcomingApproved, r)
			}
		}
	}
	return d, nil
}

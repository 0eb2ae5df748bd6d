/*
Package factory turns catalog files into leave configuration.

PURPOSE:
  Leave types, company days, employees and opening balances are data,
  not code. HR maintains them in a TOML (or JSON) file; the factory
  parses and checks the file and writes its contents through the store.

TOML SCHEMA:
  [[leave_types]]
  id = "annual"
  name = "Annual Leave"
  requires_approval = true
  max_days_per_request = 20
  color = "#4caf50"

  [[holidays]]
  date = "2024-12-25"
  name = "Christmas Day"

  [[blackouts]]
  date = "2024-03-29"
  name = "Quarter close"

  [[employees]]
  id = "alice"
  name = "Alice"
  email = "alice@example.com"
  manager_id = "mgr"
  team_id = "platform"

  [[balances]]
  employee_id = "alice"
  leave_type_id = "annual"
  total_allowance = 20
  carry_over_days = 2.5
  effective_date = "2024-01-01"
  expiration_date = "2024-12-31"

  JSON files use the same keys.

APPLYING:
  Leave types, days and employees are upserted. Balances go through the
  balance ledger so that days already used survive a reload.

SEE ALSO:
  - leave/types.go:  LeaveType, Employee
  - leave/ledger.go: BalanceLedger.Upsert
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// FILE SCHEMA
// =============================================================================

type CatalogFile struct {
	LeaveTypes []LeaveTypeEntry `json:"leave_types" toml:"leave_types"`
	Holidays   []DayEntry       `json:"holidays" toml:"holidays"`
	Blackouts  []DayEntry       `json:"blackouts" toml:"blackouts"`
	Employees  []EmployeeEntry  `json:"employees" toml:"employees"`
	Balances   []BalanceEntry   `json:"balances" toml:"balances"`
}

type LeaveTypeEntry struct {
	ID                    string `json:"id" toml:"id"`
	Name                  string `json:"name" toml:"name"`
	Active                *bool  `json:"active,omitempty" toml:"active,omitempty"` // default true
	RequiresApproval      bool   `json:"requires_approval" toml:"requires_approval"`
	MaxDaysPerRequest     int    `json:"max_days_per_request,omitempty" toml:"max_days_per_request,omitempty"`
	RequiresDocumentation bool   `json:"requires_documentation,omitempty" toml:"requires_documentation,omitempty"`
	Color                 string `json:"color,omitempty" toml:"color,omitempty"`
	PolicyRef             string `json:"policy_ref,omitempty" toml:"policy_ref,omitempty"`
	PastDateExempt        bool   `json:"past_date_exempt,omitempty" toml:"past_date_exempt,omitempty"`
	PartialDayDiscouraged bool   `json:"partial_day_discouraged,omitempty" toml:"partial_day_discouraged,omitempty"`
}

type DayEntry struct {
	Date string `json:"date" toml:"date"` // YYYY-MM-DD
	Name string `json:"name" toml:"name"`
}

type EmployeeEntry struct {
	ID        string `json:"id" toml:"id"`
	Name      string `json:"name" toml:"name"`
	Email     string `json:"email" toml:"email"`
	ManagerID string `json:"manager_id,omitempty" toml:"manager_id,omitempty"`
	TeamID    string `json:"team_id,omitempty" toml:"team_id,omitempty"`
}

type BalanceEntry struct {
	EmployeeID     string  `json:"employee_id" toml:"employee_id"`
	LeaveTypeID    string  `json:"leave_type_id" toml:"leave_type_id"`
	TotalAllowance float64 `json:"total_allowance" toml:"total_allowance"`
	CarryOverDays  float64 `json:"carry_over_days,omitempty" toml:"carry_over_days,omitempty"`
	EffectiveDate  string  `json:"effective_date,omitempty" toml:"effective_date,omitempty"`
	ExpirationDate string  `json:"expiration_date,omitempty" toml:"expiration_date,omitempty"`
}

// Catalog is a parsed and checked catalog file.
type Catalog struct {
	LeaveTypes  []leave.LeaveType
	CompanyDays []generic.CompanyDay
	Employees   []leave.Employee
	Balances    []leave.LeaveBalance
}

// =============================================================================
// PARSING
// =============================================================================

// LoadFile reads path, choosing the decoder by extension (.toml or .json).
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
}

func ParseTOML(data []byte) (*Catalog, error) {
	var f CatalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog TOML: %w", err)
	}
	return FromFile(f)
}

func ParseJSON(data []byte) (*Catalog, error) {
	var f CatalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return FromFile(f)
}

// FromFile converts and checks f. Every problem found is reported.
func FromFile(f CatalogFile) (*Catalog, error) {
	var (
		c    Catalog
		errs []error
	)

	seen := make(map[string]bool)
	for i, e := range f.LeaveTypes {
		if e.ID == "" || e.Name == "" {
			errs = append(errs, fmt.Errorf("leave_types[%d]: id and name are required", i))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("leave_types[%d]: duplicate id %q", i, e.ID))
			continue
		}
		if e.MaxDaysPerRequest < 0 {
			errs = append(errs, fmt.Errorf("leave_types[%d]: max_days_per_request cannot be negative", i))
			continue
		}
		seen[e.ID] = true
		c.LeaveTypes = append(c.LeaveTypes, e.toLeaveType())
	}

	for _, group := range []struct {
		kind generic.DayKind
		days []DayEntry
	}{{generic.DayHoliday, f.Holidays}, {generic.DayBlackout, f.Blackouts}} {
		kind := group.kind
		for i, d := range group.days {
			date, err := parseDate(d.Date)
			if err != nil || date.IsZero() {
				errs = append(errs, fmt.Errorf("%s[%d]: invalid date %q", kind, i, d.Date))
				continue
			}
			c.CompanyDays = append(c.CompanyDays, generic.CompanyDay{
				ID:   string(kind) + ":" + d.Date,
				Date: date,
				Name: d.Name,
				Kind: kind,
			})
		}
	}

	for i, e := range f.Employees {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("employees[%d]: id is required", i))
			continue
		}
		c.Employees = append(c.Employees, leave.Employee{
			ID:        e.ID,
			Name:      e.Name,
			Email:     e.Email,
			ManagerID: e.ManagerID,
			TeamID:    e.TeamID,
		})
	}

	for i, e := range f.Balances {
		b, err := e.toBalance()
		if err != nil {
			errs = append(errs, fmt.Errorf("balances[%d]: %w", i, err))
			continue
		}
		if problems := leave.ValidateBalanceRecord(b); len(problems) > 0 {
			errs = append(errs, fmt.Errorf("balances[%d]: %s", i, strings.Join(problems, "; ")))
			continue
		}
		c.Balances = append(c.Balances, b)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (e LeaveTypeEntry) toLeaveType() leave.LeaveType {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return leave.LeaveType{
		ID:                    e.ID,
		Name:                  e.Name,
		Active:                active,
		RequiresApproval:      e.RequiresApproval,
		MaxDaysPerRequest:     e.MaxDaysPerRequest,
		RequiresDocumentation: e.RequiresDocumentation,
		Color:                 e.Color,
		PolicyRef:             e.PolicyRef,
		PastDateExempt:        e.PastDateExempt,
		PartialDayDiscouraged: e.PartialDayDiscouraged,
	}
}

func (e BalanceEntry) toBalance() (leave.LeaveBalance, error) {
	effective, err := parseDate(e.EffectiveDate)
	if err != nil {
		return leave.LeaveBalance{}, fmt.Errorf("invalid effective_date %q", e.EffectiveDate)
	}
	expiration, err := parseDate(e.ExpirationDate)
	if err != nil {
		return leave.LeaveBalance{}, fmt.Errorf("invalid expiration_date %q", e.ExpirationDate)
	}
	b := leave.LeaveBalance{
		EmployeeID:     e.EmployeeID,
		LeaveTypeID:    e.LeaveTypeID,
		TotalAllowance: decimal.NewFromFloat(e.TotalAllowance),
		CarryOverDays:  decimal.NewFromFloat(e.CarryOverDays),
		EffectiveDate:  effective,
		ExpirationDate: expiration,
	}
	b.Recompute()
	return b, nil
}

// parseDate accepts an empty string as the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(generic.DateLayout, s, time.UTC)
}

// =============================================================================
// APPLYING
// =============================================================================

// Target is the write side of a store.
type Target interface {
	SaveLeaveType(ctx context.Context, lt leave.LeaveType) error
	SaveCompanyDay(ctx context.Context, d generic.CompanyDay) error
	SaveEmployee(ctx context.Context, e leave.Employee) error
}

type BalanceUpserter interface {
	Upsert(ctx context.Context, b leave.LeaveBalance) (*leave.LeaveBalance, error)
}

// Apply writes c to target. Balances are skipped when balances is nil.
func (c *Catalog) Apply(ctx context.Context, target Target, balances BalanceUpserter) error {
	for _, lt := range c.LeaveTypes {
		if err := target.SaveLeaveType(ctx, lt); err != nil {
			return fmt.Errorf("save leave type %s: %w", lt.ID, err)
		}
	}
	for _, d := range c.CompanyDays {
		if err := target.SaveCompanyDay(ctx, d); err != nil {
			return fmt.Errorf("save %s %s: %w", d.Kind, d.Date.Format(generic.DateLayout), err)
		}
	}
	for _, e := range c.Employees {
		if err := target.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("save employee %s: %w", e.ID, err)
		}
	}
	if balances == nil {
		return nil
	}
	for _, b := range c.Balances {
		if _, err := balances.Upsert(ctx, b); err != nil {
			return fmt.Errorf("upsert balance %s/%s: %w", b.EmployeeID, b.LeaveTypeID, err)
		}
	}
	return nil
}

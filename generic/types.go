/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  Quantities, calendar arithmetic, the append-only balance journal, keyed
  locks and the error taxonomy live here. Nothing in this package knows
  what a leave request is; the leave package composes these pieces into
  the validation and approval workflow.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal quantity with a unit (e.g., 2.5 days, 4 hours)
  - Transaction: An immutable journal entry recording a balance change
  - EntityID / PolicyID: Type-safe identifiers for the balance owner and
    the balance category (employee and leave type in the leave domain)

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal so apply/reverse round-trips exactly
  3. Auditability: Every transaction carries reason, reference and
     idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID: "emp-123",
      PolicyID: "annual",
      Delta:    generic.NewAmount(-3, generic.UnitDays),
      Type:     generic.TxConsumption,
  }

SEE ALSO:
  - time.go: TimePoint and business-day arithmetic
  - ledger.go: Journal interface over Store
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// HoursPerDay is the length of a standard workday used to convert
// partial-day hours into days.
const HoursPerDay = 8

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }

// InDays converts an hour amount into workdays.
func (a Amount) InDays() Amount {
	if a.Unit == UnitHours {
		return Amount{Value: a.Value.Div(decimal.NewFromInt(HoursPerDay)), Unit: UnitDays}
	}
	return a
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type PolicyID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to a balance
// =============================================================================

type TransactionType string

const (
	TxGrant       TransactionType = "grant"       // Allowance granted or topped up
	TxConsumption TransactionType = "consumption" // Days used by an approved request
	TxReversal    TransactionType = "reversal"    // Undo of a consumption
	TxAdjustment  TransactionType = "adjustment"  // Manual admin correction
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	PolicyID       PolicyID
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string // Actor who caused this transaction
	CreatedAt time.Time
}

/*
ledger.go - BalanceLedger service

PURPOSE:
  The only writer of UsedDays/RemainingDays. Every mutation is a
  read-modify-write on one (employee, leave type) snapshot, serialized
  by a lock keyed by balance identity and committed with a version CAS
  together with its journal entry.

  Consume  → used += amount, journal: consumption (-amount)
  Restore  → used -= outstanding, journal: reversal (+outstanding)

  Restore reverses whatever the journal still shows as outstanding for
  the request, so calling it twice reverses once.

SEE ALSO:
  - balance.go: Arithmetic on a snapshot
  - generic/ledger.go: Journal with OutstandingFor
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

const maxCommitAttempts = 3

type BalanceLedger struct {
	store   BalanceStore
	journal generic.Ledger
	locks   generic.Locker
	now     func() time.Time
	logger  *zap.Logger
}

// NewBalanceLedger wires a ledger over store. journal must read the same
// entries store.CommitBalance writes.
func NewBalanceLedger(store BalanceStore, journal generic.Ledger, locks generic.Locker, logger ...*zap.Logger) *BalanceLedger {
	l := zap.L().Named("leave.ledger")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.ledger")
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &BalanceLedger{store: store, journal: journal, locks: locks, now: time.Now, logger: l}
}

// Consume charges req's amount to its balance. A pair with no balance
// record is untracked: nothing is charged and (nil, nil) is returned.
func (l *BalanceLedger) Consume(ctx context.Context, req LeaveRequest, actor string, at time.Time) (*LeaveBalance, error) {
	amount := req.TotalDays
	if !amount.IsPositive() {
		amount = ConsumptionAmount(req)
	}
	if !amount.IsPositive() {
		return nil, nil
	}
	entityID, policyID := req.BalanceKey()

	return l.mutate(ctx, entityID, policyID, func(b LeaveBalance) (LeaveBalance, *generic.Transaction, error) {
		if amount.GreaterThan(b.RemainingDays) {
			return b, nil, &generic.InsufficientBalanceError{
				EntityID:  entityID,
				PolicyID:  policyID,
				Available: generic.NewAmountFromDecimal(b.RemainingDays, generic.UnitDays),
				Requested: generic.NewAmountFromDecimal(amount, generic.UnitDays),
			}
		}
		b.Apply(amount)
		tx := l.entry(req, actor, generic.TxConsumption, amount.Neg(),
			fmt.Sprintf("consume:%s:%d", req.ID, at.UnixNano()), "leave request approved")
		return b, &tx, nil
	})
}

// Restore reverses the consumption still outstanding for req.
func (l *BalanceLedger) Restore(ctx context.Context, req LeaveRequest, actor string, at time.Time) (*LeaveBalance, error) {
	entityID, policyID := req.BalanceKey()

	return l.mutate(ctx, entityID, policyID, func(b LeaveBalance) (LeaveBalance, *generic.Transaction, error) {
		outstanding, err := l.journal.OutstandingFor(ctx, entityID, policyID, req.ID)
		if err != nil {
			return b, nil, fmt.Errorf("load outstanding consumption: %w", err)
		}
		if !outstanding.IsPositive() {
			return b, nil, nil
		}
		b.Reverse(outstanding.Value)
		tx := l.entry(req, actor, generic.TxReversal, outstanding.Value,
			fmt.Sprintf("reverse:%s:%d", req.ID, at.UnixNano()), "leave request consumption reversed")
		return b, &tx, nil
	})
}

// mutate runs change under the balance lock, retrying on version
// conflicts. change returning a nil transaction means nothing to commit.
func (l *BalanceLedger) mutate(
	ctx context.Context,
	entityID generic.EntityID,
	policyID generic.PolicyID,
	change func(LeaveBalance) (LeaveBalance, *generic.Transaction, error),
) (*LeaveBalance, error) {
	unlock, err := l.locks.Lock(ctx, generic.BalanceLockKey(entityID, policyID))
	if err != nil {
		return nil, fmt.Errorf("lock balance %s/%s: %w", entityID, policyID, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		current, err := l.store.GetBalance(ctx, string(entityID), string(policyID))
		if errors.Is(err, generic.ErrBalanceNotFound) {
			l.logger.Debug("balance not tracked, skipping",
				zap.String("employee_id", string(entityID)),
				zap.String("leave_type_id", string(policyID)),
			)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		next, tx, err := change(*current)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return current, nil
		}
		next.Version = current.Version + 1

		lastErr = l.store.CommitBalance(ctx, next, *tx)
		if lastErr == nil {
			l.logger.Info("balance committed",
				zap.String("employee_id", string(entityID)),
				zap.String("leave_type_id", string(policyID)),
				zap.String("type", string(tx.Type)),
				zap.String("delta", tx.Delta.Value.String()),
				zap.String("remaining", next.RemainingDays.String()),
			)
			return &next, nil
		}
		if !generic.IsRetryable(lastErr) {
			return nil, lastErr
		}
		l.logger.Warn("balance commit conflict, retrying",
			zap.String("employee_id", string(entityID)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}
	return nil, lastErr
}

func (l *BalanceLedger) entry(req LeaveRequest, actor string, typ generic.TransactionType, delta decimal.Decimal, key, reason string) generic.Transaction {
	entityID, policyID := req.BalanceKey()
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       entityID,
		PolicyID:       policyID,
		EffectiveAt:    generic.DayOf(req.StartDate),
		Delta:          generic.NewAmountFromDecimal(delta, generic.UnitDays),
		Type:           typ,
		ReferenceID:    req.ID,
		Reason:         reason,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"start_date": req.StartDate.Format(generic.DateLayout),
			"end_date":   req.EndDate.Format(generic.DateLayout),
		},
		CreatedBy: actor,
		CreatedAt: l.now(),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// InvalidBalanceError lists the problems with an admin-supplied balance.
type InvalidBalanceError struct {
	Problems []string
}

func (e *InvalidBalanceError) Error() string {
	return fmt.Sprintf("invalid balance record: %v", e.Problems)
}

// Upsert validates b, recomputes its remaining days and stores it under
// the balance lock. Used days are kept from the stored record when one
// exists, so admin edits never rewrite consumption.
func (l *BalanceLedger) Upsert(ctx context.Context, b LeaveBalance) (*LeaveBalance, error) {
	if problems := ValidateBalanceRecord(b); len(problems) > 0 {
		return nil, &InvalidBalanceError{Problems: problems}
	}
	entityID, policyID := b.Key()
	unlock, err := l.locks.Lock(ctx, generic.BalanceLockKey(entityID, policyID))
	if err != nil {
		return nil, fmt.Errorf("lock balance %s/%s: %w", entityID, policyID, err)
	}
	defer unlock()

	current, err := l.store.GetBalance(ctx, b.EmployeeID, b.LeaveTypeID)
	switch {
	case err == nil:
		b.UsedDays = current.UsedDays
		b.Version = current.Version + 1
	case errors.Is(err, generic.ErrBalanceNotFound):
		b.Version = 1
	default:
		return nil, err
	}
	b.Recompute()

	if err := l.store.SaveBalance(ctx, b); err != nil {
		return nil, err
	}
	l.logger.Info("balance saved",
		zap.String("employee_id", b.EmployeeID),
		zap.String("leave_type_id", b.LeaveTypeID),
		zap.String("allowance", b.TotalAllowance.String()),
	)
	return &b, nil
}

// Transactions lists the journal for one balance.
func (l *BalanceLedger) Transactions(ctx context.Context, employeeID, leaveTypeID string) ([]generic.Transaction, error) {
	return l.journal.Transactions(ctx, generic.EntityID(employeeID), generic.PolicyID(leaveTypeID))
}

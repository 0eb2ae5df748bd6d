/*
ledger.go - Append-only balance journal

PURPOSE:
  Every consumption and reversal applied to a balance snapshot is also
  recorded here. The snapshot answers "how much is left"; the journal
  answers "why".

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)
  3. TRACEABLE: ReferenceID links each entry to the request that caused it

CORRECTIONS:
  A cancelled approval is never erased. A Reversal transaction with the
  opposite sign is appended and both remain in the journal.

  annual journal for emp-1: [consumption -3 (req-7), reversal +3 (req-7)]
  OutstandingFor(req-7) = 0

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: BalanceLedger that writes snapshot + journal together
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger is the read/write facade over the journal Store.
type Ledger interface {
	Append(ctx context.Context, tx Transaction) error
	AppendBatch(ctx context.Context, txs []Transaction) error
	Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// Net sums every delta recorded for entity+policy.
	Net(ctx context.Context, entityID EntityID, policyID PolicyID) (Amount, error)

	// OutstandingFor returns the consumption still charged to referenceID:
	// consumptions minus reversals, as a non-negative amount.
	OutstandingFor(ctx context.Context, entityID EntityID, policyID PolicyID, referenceID string) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, policyID)
}

func (l *DefaultLedger) Net(ctx context.Context, entityID EntityID, policyID PolicyID) (Amount, error) {
	txs, err := l.Store.Load(ctx, entityID, policyID)
	if err != nil {
		return Amount{}, err
	}
	net := Amount{Value: decimal.Zero, Unit: UnitDays}
	for _, tx := range txs {
		net = net.Add(tx.Delta.InDays())
	}
	return net, nil
}

func (l *DefaultLedger) OutstandingFor(ctx context.Context, entityID EntityID, policyID PolicyID, referenceID string) (Amount, error) {
	txs, err := l.Store.Load(ctx, entityID, policyID)
	if err != nil {
		return Amount{}, err
	}
	net := Amount{Value: decimal.Zero, Unit: UnitDays}
	for _, tx := range txs {
		if tx.ReferenceID != referenceID {
			continue
		}
		if tx.Type == TxConsumption || tx.Type == TxReversal {
			net = net.Add(tx.Delta.InDays())
		}
	}
	// Consumption is recorded with a negative delta.
	if !net.IsNegative() {
		return Amount{Value: decimal.Zero, Unit: UnitDays}, nil
	}
	return net.Neg(), nil
}

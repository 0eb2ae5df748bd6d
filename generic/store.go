/*
store.go - Persistence interface for the balance journal

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  keeps append-only semantics: balance snapshots may be rewritten, but
  the journal explaining them never is.

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write may carry an idempotency key. If the key already exists,
  the write is rejected with ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// Store handles persistence of journal transactions.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if
	// the idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity+policy, ordered by
	// EffectiveAt then creation.
	Load(ctx context.Context, entityID EntityID, policyID PolicyID) ([]Transaction, error)

	// Exists checks if an idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

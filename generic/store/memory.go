// Package store holds the in-process balance journal used by the memory
// store and by ledger tests.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
)

// balanceKey names one (employee, leave type) journal.
type balanceKey struct {
	employee  generic.EntityID
	leaveType generic.PolicyID
}

// Journal keeps every balance's entries ordered by effective date. Entries
// sharing a date stay in the order they were written.
type Journal struct {
	mu       sync.RWMutex
	entries  map[balanceKey][]generic.Transaction
	keys     map[string]struct{}
	byRefCnt map[string]int
}

func NewJournal() *Journal {
	return &Journal{
		entries:  make(map[balanceKey][]generic.Transaction),
		keys:     make(map[string]struct{}),
		byRefCnt: make(map[string]int),
	}
}

func (j *Journal) Append(_ context.Context, tx generic.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen(tx.IdempotencyKey) {
		return generic.ErrDuplicateIdempotencyKey
	}
	j.insert(tx)
	return nil
}

// AppendBatch writes all of txs or none. A key repeated inside the batch
// counts as a duplicate.
func (j *Journal) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	pending := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if _, dup := pending[tx.IdempotencyKey]; dup || j.seen(tx.IdempotencyKey) {
			return generic.ErrDuplicateIdempotencyKey
		}
		pending[tx.IdempotencyKey] = struct{}{}
	}
	for _, tx := range txs {
		j.insert(tx)
	}
	return nil
}

// AppendIf writes tx only when check passes. check runs under the journal
// lock, so a snapshot update done inside it lands together with tx.
func (j *Journal) AppendIf(_ context.Context, tx generic.Transaction, check func() error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seen(tx.IdempotencyKey) {
		return generic.ErrDuplicateIdempotencyKey
	}
	if err := check(); err != nil {
		return err
	}
	j.insert(tx)
	return nil
}

func (j *Journal) Load(_ context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]generic.Transaction(nil), j.entries[balanceKey{entityID, policyID}]...), nil
}

func (j *Journal) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seen(idempotencyKey), nil
}

// References reports how many entries name referenceID, across all
// balances. Zero for unknown requests.
func (j *Journal) References(referenceID string) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.byRefCnt[referenceID]
}

func (j *Journal) seen(idempotencyKey string) bool {
	if idempotencyKey == "" {
		return false
	}
	_, ok := j.keys[idempotencyKey]
	return ok
}

// insert requires j.mu held for writing.
func (j *Journal) insert(tx generic.Transaction) {
	k := balanceKey{tx.EntityID, tx.PolicyID}
	list := j.entries[k]
	at := sort.Search(len(list), func(i int) bool {
		return list[i].EffectiveAt.After(tx.EffectiveAt)
	})
	list = append(list[:at], append([]generic.Transaction{tx}, list[at:]...)...)
	j.entries[k] = list

	if tx.IdempotencyKey != "" {
		j.keys[tx.IdempotencyKey] = struct{}{}
	}
	if tx.ReferenceID != "" {
		j.byRefCnt[tx.ReferenceID]++
	}
}

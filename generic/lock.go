package generic

import (
	"context"
	"sync"
)

// =============================================================================
// LOCKER - Mutual exclusion keyed by identity
// =============================================================================

// Locker serializes work on a single key (a request ID or a balance
// identity). Lock blocks until the key is free or ctx is done; the
// returned func releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// RequesterLockKey, RequestLockKey and BalanceLockKey name the
// serialization domains. Acquire in that order when nesting: Submit holds
// the requester while auto-approval takes the request and then the balance.
func RequesterLockKey(employeeID string) string { return "requester:" + employeeID }

func RequestLockKey(requestID string) string { return "request:" + requestID }

func BalanceLockKey(entityID EntityID, policyID PolicyID) string {
	return "balance:" + string(entityID) + ":" + string(policyID)
}

// KeyedMutex is the in-process Locker. Entries are reference counted and
// dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// held reports the number of live keys; used by tests.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

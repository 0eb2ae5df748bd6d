package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T) (*Locker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	l := New(db, Options{TTL: 10 * time.Second, RetryEvery: time.Millisecond}, zap.NewNop())
	l.newToken = func() string { return "token-1" }
	return l, mock
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	l, mock := newTestLocker(t)
	key := "leave:lock:" + generic.RequestLockKey("req-1")

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(true)
	mock.ExpectEvalSha(releaseScript.Hash(), []string{key}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), generic.RequestLockKey("req-1"))
	require.NoError(t, err)
	unlock()
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_RetriesWhileHeld(t *testing.T) {
	l, mock := newTestLocker(t)
	key := "leave:lock:balance:emp-1:annual"

	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "token-1", 10*time.Second).SetVal(true)

	_, err := l.Lock(context.Background(), generic.BalanceLockKey("emp-1", "annual"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ContextEndsWhileWaiting(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := New(db, Options{TTL: 10 * time.Second, RetryEvery: time.Hour}, zap.NewNop())
	l.newToken = func() string { return "token-1" }

	mock.ExpectSetNX("leave:lock:request:req-1", "token-1", 10*time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx, generic.RequestLockKey("req-1"))
	assert.ErrorIs(t, err, generic.ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, generic.IsRetryable(err))
}

func TestLocker_RedisFailure(t *testing.T) {
	l, mock := newTestLocker(t)
	mock.ExpectSetNX("leave:lock:request:req-1", "token-1", 10*time.Second).SetErr(errors.New("connection refused"))

	_, err := l.Lock(context.Background(), generic.RequestLockKey("req-1"))
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, generic.IsRetryable(err))
}

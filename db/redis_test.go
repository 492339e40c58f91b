package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedToken() string { return "token-1" }

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLocker(client, WithLockToken(fixedToken), WithLockTTL(5*time.Second))

	mock.ExpectSetNX("kodefx:lock:signal:user:7", "token-1", 5*time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"kodefx:lock:signal:user:7"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "signal:user:7")
	require.NoError(t, err)
	unlock()
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_RetriesWhileHeld(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLocker(client, WithLockToken(fixedToken), WithLockTTL(time.Second), WithLockRetry(time.Millisecond))

	mock.ExpectSetNX("kodefx:lock:k", "token-1", time.Second).SetVal(false)
	mock.ExpectSetNX("kodefx:lock:k", "token-1", time.Second).SetVal(false)
	mock.ExpectSetNX("kodefx:lock:k", "token-1", time.Second).SetVal(true)

	_, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLocker(client, WithLockToken(fixedToken), WithLockTTL(time.Second), WithLockRetry(time.Hour))

	mock.ExpectSetNX("kodefx:lock:k", "token-1", time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestRedisLocker_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewRedisLocker(client, WithLockToken(fixedToken), WithLockTTL(time.Second))

	mock.ExpectSetNX("kodefx:lock:k", "token-1", time.Second).SetErr(errors.New("connection refused"))

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrConflict)
}

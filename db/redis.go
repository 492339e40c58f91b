package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// releaseScript deletes the lock only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

const lockPrefix = "kodefx:lock:"

// RedisLocker is a ledger.Locker shared by every replica using the same Redis.
// A lock expires after TTL so a crashed holder cannot wedge a user forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	token  func() string
	log    zerolog.Logger
}

var _ ledger.Locker = (*RedisLocker)(nil)

type RedisLockerOption func(*RedisLocker)

func WithLockTTL(d time.Duration) RedisLockerOption { return func(l *RedisLocker) { l.ttl = d } }

func WithLockRetry(d time.Duration) RedisLockerOption { return func(l *RedisLocker) { l.retry = d } }

func WithLockToken(fn func() string) RedisLockerOption { return func(l *RedisLocker) { l.token = fn } }

func WithLockLogger(log zerolog.Logger) RedisLockerOption {
	return func(l *RedisLocker) { l.log = log }
}

func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		ttl:    10 * time.Second,
		retry:  25 * time.Millisecond,
		token:  uuid.NewString,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = lockPrefix + key
	token := l.token()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: waiting for lock %s: %v", ledger.ErrConflict, key, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				l.log.Warn().Err(err).Str("key", key).Msg("releasing redis lock")
			}
		})
	}, nil
}

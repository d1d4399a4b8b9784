package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("cell lock not acquired")
)

// Locker guards a destination agenda cell (room + start instant) while a
// reschedule checks for an occupant and commits. Two concurrent drags into
// the same cell serialize on it; the loser sees a conflict or retries.
type Locker interface {
	WithCellLock(ctx context.Context, roomID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error
}

type redisCellLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCellLocker creates a locker that uses one Redis key per cell
func NewRedisCellLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisCellLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisCellLocker) WithCellLock(ctx context.Context, roomID uuid.UUID, start time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:cell:%s:%d", roomID.String(), start.Unix())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire cell lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisCellLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release cell lock: %w", err)
	}
	return nil
}

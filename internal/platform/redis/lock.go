package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"insight/pkg/platform/sentinel"
)

const lockPrefix = "insight:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another run is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker grants exclusive, expiring leases backed by SET NX PX.
type Locker struct {
	client *Client
}

// NewLocker creates a Locker on client.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lease named key for ttl. It returns sentinel.ErrConflict
// when another holder owns it. The returned release func is safe to call
// after the lease expired.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	fullKey := lockPrefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lease %s is held: %w", key, sentinel.ErrConflict)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("release lease %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

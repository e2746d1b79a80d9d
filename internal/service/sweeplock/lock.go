package sweeplock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Lock serializes sweep passes per campaign using Redis. Any API replica may
// trigger a sweep; the lock makes overlapping passes over the same campaign
// skip instead of double-enqueueing. The attempt ledger still guarantees
// correctness if the lock is lost mid-pass, so a TTL expiry is harmless.
type Lock struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewLock constructs a campaign sweep lock.
func NewLock(client *redis.Client, keyPrefix string, ttl time.Duration) *Lock {
	if keyPrefix == "" {
		keyPrefix = "outreach:sweep"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Lock{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Acquire tries to take the campaign's sweep lock. It returns a release token
// and true on success, or false when another pass holds the lock.
func (l *Lock) Acquire(ctx context.Context, campaignID uuid.UUID) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(campaignID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("sweep lock: acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if the token still owns it. A lock that expired and
// was re-acquired by another pass is left alone.
func (l *Lock) Release(ctx context.Context, campaignID uuid.UUID, token string) error {
	script := redis.NewScript(`
local key = KEYS[1]
if redis.call('GET', key) == ARGV[1] then
  return redis.call('DEL', key)
end
return 0
`)
	if _, err := script.Run(ctx, l.client, []string{l.key(campaignID)}, token).Int(); err != nil {
		return fmt.Errorf("sweep lock: release: %w", err)
	}
	return nil
}

func (l *Lock) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", l.keyPrefix, campaignID.String())
}

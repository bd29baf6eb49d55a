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
	ErrLeaseHeld = errors.New("clinic lease held by another owner")
	ErrLeaseLost = errors.New("clinic lease lost")
)

// Lease makes one process the single owner of a clinic's appointment
// state. The key holds a random token so only the holder can extend or
// release it.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLease takes the owner lease for clinicID or fails with
// ErrLeaseHeld.
func AcquireLease(ctx context.Context, client *redis.Client, clinicID string, ttl time.Duration) (*Lease, error) {
	l := &Lease{
		client: client,
		key:    fmt.Sprintf("lease:clinic:%s", clinicID),
		token:  uuid.NewString(),
		ttl:    ttl,
	}

	ok, err := client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire clinic lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return l, nil
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

// Refresh extends the lease by its TTL. It returns ErrLeaseLost when the
// key expired or now belongs to someone else.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh clinic lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Keep refreshes the lease every third of its TTL until ctx is done.
// onLost is called once if the lease cannot be kept.
func (l *Lease) Keep(ctx context.Context, onLost func(error)) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				onLost(err)
				return
			}
		}
	}
}

func (l *Lease) Release(ctx context.Context) error {
	_, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release clinic lease: %w", err)
	}
	return nil
}

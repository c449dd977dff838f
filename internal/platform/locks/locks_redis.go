package locks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "tml/pkg/domain"
)

const lockKeyPrefix = "tml:milestone-lock:"

// releaseScript deletes the lock only if this holder still owns it, so an
// expired lease reacquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the distributed locker for multi-instance deployments. Leases
// expire after ttl so a crashed holder cannot wedge a milestone forever.
type Redis struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, retryDelay: 25 * time.Millisecond}
}

func (r *Redis) Acquire(ctx context.Context, milestoneID id.MilestoneID) (func(), error) {
	key := lockKeyPrefix + milestoneID.String()
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}
	return release, nil
}

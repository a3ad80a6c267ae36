package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EmailThrottle caps email deliveries per user per window so a flapping
// camera cannot flood inboxes. Fail-open: if Redis is down, mail goes
// out rather than silently stopping.
type EmailThrottle struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewEmailThrottle(client *redis.Client, limit int, window time.Duration) *EmailThrottle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Hour
	}
	return &EmailThrottle{client: client, limit: limit, window: window}
}

var throttleScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// Allow reports whether one more email may be sent to the user now.
func (t *EmailThrottle) Allow(ctx context.Context, userID uuid.UUID) bool {
	if t.client == nil {
		return true
	}
	key := fmt.Sprintf("evcam:mail:%s", userID)
	n, err := throttleScript.Run(ctx, t.client, []string{key}, t.window.Milliseconds()).Int64()
	if err != nil {
		return true
	}
	return n <= int64(t.limit)
}

package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records which node currently holds live connections for a
// uid. Advisory only: dispatch always runs on every node off the bus,
// presence just lets the notification pipeline decide online vs push.
type Presence struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
}

func NewPresence(client *redis.Client, nodeID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Presence{client: client, nodeID: nodeID, ttl: ttl}
}

func presenceKey(uid string) string {
	return fmt.Sprintf("sp:online:%s", uid)
}

// Online marks uid as connected to this node, refreshing the TTL.
func (p *Presence) Online(ctx context.Context, uid string) error {
	return p.client.Set(ctx, presenceKey(uid), p.nodeID, p.ttl).Err()
}

// Refresh extends the TTL; used on heartbeat.
func (p *Presence) Refresh(ctx context.Context, uid string) error {
	return p.client.Expire(ctx, presenceKey(uid), p.ttl).Err()
}

// Offline clears the mark only if this node owns it; another node may
// have taken over the user's sessions in the meantime.
func (p *Presence) Offline(ctx context.Context, uid string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	return p.client.Eval(ctx, script, []string{presenceKey(uid)}, p.nodeID).Err()
}

// IsOnline reports whether any node holds connections for uid.
func (p *Presence) IsOnline(ctx context.Context, uid string) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(uid)).Result()
	return n > 0, err
}

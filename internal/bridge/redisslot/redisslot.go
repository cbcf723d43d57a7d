// Package redisslot keeps the PendingAuth slot in Redis so several gateway
// replicas behind one callback URL share a single in-flight flow.
package redisslot

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emsana/authbridge/internal/bridge"
)

const defaultKey = "emsana:pending_auth"

// Hash fields: status (waiting|success), flow, cred, done (0|1), verifier.

var completeScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if st ~= 'waiting' then return 0 end
if redis.call('HGET', KEYS[1], 'done') == '1' then return 0 end
if ARGV[1] ~= '' and ARGV[1] ~= redis.call('HGET', KEYS[1], 'flow') then return 0 end
redis.call('HSET', KEYS[1], 'status', 'success', 'cred', ARGV[2])
return 1
`)

var drainScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'status', 'flow', 'cred', 'done', 'verifier')
if not v[1] then return {'idle', '', '', '0', ''} end
if v[1] == 'success' then
  redis.call('HSET', KEYS[1], 'status', 'waiting', 'cred', '', 'done', '1')
end
return {v[1], v[2] or '', v[3] or '', v[4] or '0', v[5] or ''}
`)

// Slot implements bridge.Slot on a Redis hash with a TTL.
type Slot struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ bridge.Slot = (*Slot)(nil)

// New returns a slot stored under key (defaultKey when empty). Flows expire
// after ttl.
func New(client *redis.Client, key string, ttl time.Duration) *Slot {
	if key == "" {
		key = defaultKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Slot{client: client, key: key, ttl: ttl}
}

// Dial connects and pings, like the server does for Postgres.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *Slot) Reset(ctx context.Context, verifier string) (bridge.FlowID, error) {
	flow := bridge.NewFlowID()

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key)
		p.HSet(ctx, s.key, "status", "waiting", "flow", string(flow), "cred", "", "done", "0", "verifier", verifier)
		p.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redisslot: reset: %w", err)
	}
	return flow, nil
}

func (s *Slot) Complete(ctx context.Context, flow bridge.FlowID, cred string) (bool, error) {
	if cred == "" {
		return false, bridge.ErrEmptyCredential
	}
	n, err := completeScript.Run(ctx, s.client, []string{s.key}, string(flow), cred).Int()
	if err != nil {
		return false, fmt.Errorf("redisslot: complete: %w", err)
	}
	return n == 1, nil
}

func (s *Slot) Drain(ctx context.Context) (bridge.Snapshot, error) {
	vals, err := drainScript.Run(ctx, s.client, []string{s.key}).StringSlice()
	if err != nil {
		return bridge.Snapshot{}, fmt.Errorf("redisslot: drain: %w", err)
	}
	if len(vals) != 5 {
		return bridge.Snapshot{}, fmt.Errorf("redisslot: drain: unexpected reply length %d", len(vals))
	}
	return snapshot(vals[0], vals[1], vals[2], vals[3], vals[4]), nil
}

func (s *Slot) Peek(ctx context.Context) (bridge.Snapshot, error) {
	vals, err := s.client.HMGet(ctx, s.key, "status", "flow", "cred", "done", "verifier").Result()
	if err != nil {
		return bridge.Snapshot{}, fmt.Errorf("redisslot: peek: %w", err)
	}
	str := func(v any) string {
		if sv, ok := v.(string); ok {
			return sv
		}
		return ""
	}
	if vals[0] == nil {
		return bridge.Snapshot{}, nil
	}
	return snapshot(str(vals[0]), str(vals[1]), str(vals[2]), str(vals[3]), str(vals[4])), nil
}

func snapshot(status, flow, cred, done, verifier string) bridge.Snapshot {
	snap := bridge.Snapshot{
		Flow:       bridge.FlowID(flow),
		Credential: cred,
		Delivered:  done == "1",
		Verifier:   verifier,
	}
	switch status {
	case "waiting":
		snap.Status = bridge.StatusWaiting
	case "success":
		snap.Status = bridge.StatusSuccess
	default:
		snap.Status = bridge.StatusIdle
	}
	return snap
}

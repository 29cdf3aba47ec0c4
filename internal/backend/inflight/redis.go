package inflight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "promptrank:inflight:"

// Every key of a group stores the newline joined member ids, so a release of one
// member can find the others.
var (
	reserveScript = redis.NewScript(`
for i = 1, #KEYS do
	if redis.call('EXISTS', KEYS[i]) == 1 then
		return 0
	end
end
for i = 1, #KEYS do
	redis.call('SET', KEYS[i], ARGV[1], 'PX', ARGV[2])
end
return 1
`)
	releaseScript = redis.NewScript(`
for i = 1, #KEYS do
	local group = redis.call('GET', KEYS[i])
	if group then
		for member in string.gmatch(group, '[^\n]+') do
			local key = ARGV[1] .. member
			if redis.call('GET', key) == group then
				redis.call('DEL', key)
			end
		end
	end
end
return 1
`)
)

// RedisRegistry stores one key per reserved id and leaves expiry to redis.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(address, password string, db int, ttl time.Duration) (*RedisRegistry, error) {
	if address == "" {
		return nil, fmt.Errorf("redis inflight registry needs an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", address, err)
	}
	return &RedisRegistry{client: client, ttl: ttl}, nil
}

func (r *RedisRegistry) TryReserve(ctx context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	ok, err := reserveScript.Run(ctx, r.client, keys(ids), strings.Join(ids, "\n"), r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve %v: %w", ids, err)
	}
	return ok == 1, nil
}

func (r *RedisRegistry) Release(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, keys(ids), keyPrefix).Err(); err != nil {
		return fmt.Errorf("failed to release %v: %w", ids, err)
	}
	return nil
}

func (r *RedisRegistry) Filter(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	values, err := r.client.MGet(ctx, keys(ids)...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reservations: %w", err)
	}
	out := make([]string, 0, len(ids))
	for i, v := range values {
		if v == nil {
			out = append(out, ids[i])
		}
	}
	return out, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func keys(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = keyPrefix + id
	}
	return out
}

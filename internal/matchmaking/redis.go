package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// pairScript pops the pool head or appends the caller, in one step.
// Returns {-1} already queued, {1, head} paired, {0, position} queued.
var pairScript = redis.NewScript(`
	local pool_key = KEYS[1]
	local members_key = KEYS[2]
	local uid = ARGV[1]

	if redis.call('HEXISTS', members_key, uid) == 1 then
		return {-1}
	end

	local head = redis.call('LPOP', pool_key)
	if head then
		redis.call('HDEL', members_key, cjson.decode(head).uid)
		return {1, head}
	end

	redis.call('RPUSH', pool_key, ARGV[2])
	redis.call('HSET', members_key, uid, ARGV[3])
	return {0, redis.call('LLEN', pool_key)}
`)

var pushFrontScript = redis.NewScript(`
	if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
		return 0
	end
	redis.call('LPUSH', KEYS[1], ARGV[2])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
	return 1
`)

var removeScript = redis.NewScript(`
	local members_key = KEYS[1]
	local uid = ARGV[1]
	local pool = redis.call('HGET', members_key, uid)
	if not pool then
		return 0
	end
	redis.call('HDEL', members_key, uid)

	local pool_key = ARGV[2] .. pool
	for _, raw in ipairs(redis.call('LRANGE', pool_key, 0, -1)) do
		if cjson.decode(raw).uid == uid then
			redis.call('LREM', pool_key, 1, raw)
			break
		end
	end
	return 1
`)

// RedisQueue shares pools between server instances.
type RedisQueue struct {
	client     *redis.Client
	prefix     string
	membersKey string
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	prefix := fmt.Sprintf("mm:%s:pool:", name)
	return &RedisQueue{
		client:     client,
		prefix:     prefix,
		membersKey: fmt.Sprintf("mm:%s:members", name),
	}
}

func (q *RedisQueue) PairOrEnqueue(ctx context.Context, e Entry) (Entry, bool, int, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, false, 0, fmt.Errorf("marshal entry: %w", err)
	}

	res, err := pairScript.Run(ctx, q.client, []string{q.prefix + e.pool(), q.membersKey}, e.UID, data, e.pool()).Slice()
	if err != nil {
		return Entry{}, false, 0, fmt.Errorf("pair or enqueue: %w", err)
	}

	switch res[0].(int64) {
	case -1:
		return Entry{}, false, 0, ErrAlreadyQueued
	case 1:
		var head Entry
		if err := json.Unmarshal([]byte(res[1].(string)), &head); err != nil {
			return Entry{}, false, 0, fmt.Errorf("unmarshal entry: %w", err)
		}
		return head, true, 0, nil
	default:
		return Entry{}, false, int(res[1].(int64)), nil
	}
}

func (q *RedisQueue) PushFront(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := pushFrontScript.Run(ctx, q.client, []string{q.prefix + e.pool(), q.membersKey}, e.UID, data, e.pool()).Err(); err != nil {
		return fmt.Errorf("push front: %w", err)
	}
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, uid string) (bool, error) {
	n, err := removeScript.Run(ctx, q.client, []string{q.membersKey}, uid, q.prefix).Int()
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", uid, err)
	}
	return n == 1, nil
}

func (q *RedisQueue) Contains(ctx context.Context, uid string) (bool, error) {
	return q.client.HExists(ctx, q.membersKey, uid).Result()
}

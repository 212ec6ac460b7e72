package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "diligence:summary:"
	indexKey  = "diligence:summaries"
	maxRetry  = 5
)

// RedisStore keeps summaries in Redis as JSON documents, one key per id,
// with a set indexing the ids.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // 0 = keep forever
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func key(id string) string { return keyPrefix + id }

// Update applies the change inside an optimistic transaction so concurrent
// writers to the same id never lose a revision.
func (r *RedisStore) Update(ctx context.Context, id, content string) error {
	k := key(id)
	txf := func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, k)
		if err != nil {
			return err
		}
		next, changed := apply(current, id, content, r.now())
		if !changed {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, r.ttl)
			pipe.SAdd(ctx, indexKey, id)
			return nil
		})
		return err
	}

	for range maxRetry {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update summary %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("update summary %s: too much contention", id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, k string) (*Summary, error) {
	data, err := c.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return &s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Summary, error) {
	s, err := r.load(ctx, r.client, key(id))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) List(ctx context.Context) ([]*Summary, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	if len(ids) == 0 {
		return []*Summary{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	out := make([]*Summary, 0, len(values))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var s Summary
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, &s)
	}
	// Ids whose keys expired are pruned from the index.
	if len(expired) > 0 {
		r.client.SRem(ctx, indexKey, expired...)
	}
	sortByID(out)
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key(id))
		pipe.SRem(ctx, indexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete summary %s: %w", id, err)
	}
	return nil
}

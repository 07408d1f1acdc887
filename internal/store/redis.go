package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash that holds trigger -> expansion.
const DefaultRedisKey = "dotphrase:phrases"

// Redis stores mappings in a single Redis hash, so several machines can
// share one phrase set.
type Redis struct {
	client *backend.Client
	key    string
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKey sets the hash key. An empty key keeps the default.
func WithKey(key string) RedisOption {
	return func(r *Redis) {
		if key != "" {
			r.key = key
		}
	}
}

// OpenRedis connects to a Redis server and checks it is reachable.
func OpenRedis(ctx context.Context, address, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	r := NewRedisFromClient(client, opts...)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", address, err)
	}
	return r, nil
}

// NewRedisFromClient creates a Redis store from an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		key:    DefaultRedisKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) createdKey() string {
	return r.key + ":created"
}

// Lookup returns the expansion mapped to trigger.
func (r *Redis) Lookup(ctx context.Context, trigger string) (string, bool, error) {
	expansion, err := r.client.HGet(ctx, r.key, trigger).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup phrase: %w", err)
	}
	return expansion, true, nil
}

// Insert adds a new mapping with HSETNX so an existing trigger is never
// overwritten.
func (r *Redis) Insert(ctx context.Context, trigger, expansion string) error {
	set, err := r.client.HSetNX(ctx, r.key, trigger, expansion).Result()
	if err != nil {
		return fmt.Errorf("insert phrase: %w", err)
	}
	if !set {
		return ErrExists
	}

	// Creation time is informational; a failure here does not undo the insert.
	r.client.HSet(ctx, r.createdKey(), trigger, strconv.FormatInt(time.Now().UnixNano(), 10))
	return nil
}

// Put overwrites the hash field with HSET. The creation time is only
// recorded for new triggers.
func (r *Redis) Put(ctx context.Context, trigger, expansion string) error {
	if err := r.client.HSet(ctx, r.key, trigger, expansion).Err(); err != nil {
		return fmt.Errorf("put phrase: %w", err)
	}
	r.client.HSetNX(ctx, r.createdKey(), trigger, strconv.FormatInt(time.Now().UnixNano(), 10))
	return nil
}

// Delete removes the mapping for trigger.
func (r *Redis) Delete(ctx context.Context, trigger string) error {
	pipe := r.client.TxPipeline()
	del := pipe.HDel(ctx, r.key, trigger)
	pipe.HDel(ctx, r.createdKey(), trigger)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every mapping ordered by trigger.
func (r *Redis) List(ctx context.Context) ([]Phrase, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	created, err := r.client.HGetAll(ctx, r.createdKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list creation times: %w", err)
	}

	phrases := make([]Phrase, 0, len(all))
	for trigger, expansion := range all {
		p := Phrase{Trigger: trigger, Expansion: expansion}
		if ns, err := strconv.ParseInt(created[trigger], 10, 64); err == nil && ns > 0 {
			p.CreatedAt = time.Unix(0, ns)
		}
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		return phrases[i].Trigger < phrases[j].Trigger
	})
	return phrases, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

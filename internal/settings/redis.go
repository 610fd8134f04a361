package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each setting as "<prefix><key>" = "1" | "0".
type RedisStore struct {
	rdb        *redis.Client
	ownsClient bool
	prefix     string
}

// NewRedisStore parses url (redis:// or rediss://) and pings the server.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := withQueryTimeout(ctx)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := NewRedisStoreWithClient(rdb, prefix)
	s.ownsClient = true
	return s, nil
}

// NewRedisStoreWithClient shares an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (s *RedisStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return def, err
	}
	raw, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get %q: %w", key, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("redis get %q: decode %q: %w", key, raw, err)
	}
	return v, nil
}

func (s *RedisStore) SetBool(ctx context.Context, key string, v bool) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), encodeBool(v), 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(key), encodeBool(v), 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis add %q: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, scanPattern(s.prefix), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// scanPattern matches every key under prefix. Glob metacharacters in the
// prefix are escaped so they match literally.
func scanPattern(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1)
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}

// Close closes the client only when this store created it.
func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.rdb.Close()
	}
	return nil
}

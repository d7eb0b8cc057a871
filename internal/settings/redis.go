package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "search:settings:v1"

// RedisStore keeps settings as fields of a single Redis hash.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultRedisKey
	}
	return &RedisStore{client: client, key: storeKey}
}

func (s *RedisStore) EnabledProviderIDs(ctx context.Context) ([]string, bool, error) {
	encoded, err := s.client.HGet(ctx, s.key, fieldEnabledProviders).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, false, err
	}
	return normalizeIDs(append([]string{}, ids...)), true, nil
}

func (s *RedisStore) MaxResults(ctx context.Context) (int, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, fieldMaxResults).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *RedisStore) SetEnabledProviderIDs(ctx context.Context, ids []string) error {
	if ids == nil {
		return s.client.HDel(ctx, s.key, fieldEnabledProviders).Err()
	}
	encoded, err := json.Marshal(normalizeIDs(ids))
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, fieldEnabledProviders, string(encoded)).Err()
}

func (s *RedisStore) SetMaxResults(ctx context.Context, n int) error {
	if err := validateMaxResults(n); err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, fieldMaxResults, strconv.Itoa(n)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

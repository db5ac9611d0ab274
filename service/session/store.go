package session

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const credKeyPrefix = "wagate:cred:"

// RedisStore 把会话凭证存在 Redis。blob 不透明，网关不解。
// clear-session 清库，进程重启后 transport 用它免扫码恢复。
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, device string, blob []byte) error {
	return s.rdb.Set(ctx, credKeyPrefix+device, blob, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, device string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, credKeyPrefix+device).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (s *RedisStore) Purge(ctx context.Context, device string) error {
	return s.rdb.Del(ctx, credKeyPrefix+device).Err()
}

package captcha

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements base64Captcha.Store on Redis so challenges survive
// across instances behind a load balancer.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

var _ base64Captcha.Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl, timeout: 2 * time.Second}
}

func (s *RedisStore) key(id string) string {
	return "captcha:" + id
}

// Set stores the answer with the configured TTL.
func (s *RedisStore) Set(id string, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.key(id), value, s.ttl).Err()
}

// Get returns the stored answer, deleting it atomically when clear is set.
func (s *RedisStore) Get(id string, clear bool) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var (
		v   string
		err error
	)
	if clear {
		v, err = s.client.GetDel(ctx, s.key(id)).Result()
	} else {
		v, err = s.client.Get(ctx, s.key(id)).Result()
	}
	if err != nil {
		return ""
	}
	return v
}

func (s *RedisStore) Verify(id, answer string, clear bool) bool {
	if id == "" || answer == "" {
		return false
	}
	v := s.Get(id, clear)
	return v != "" && v == answer
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

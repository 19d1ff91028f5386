package cache

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis es el backend distribuido. Las operaciones son best-effort:
// un redis caído degrada a "no hay entrada", nunca rompe el flujo.
type Redis struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedis crea un cache sobre redis con prefijo de keys.
func NewRedis(addr, password string, db int, prefix string, defaultTTL time.Duration) *Redis {
	if prefix == "" {
		prefix = "vg:"
	}
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Redis{
		c:          rdb.NewClient(&rdb.Options{Addr: addr, Password: password, DB: db}),
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (r *Redis) Get(k string) ([]byte, bool) {
	b, err := r.c.Get(context.Background(), r.prefix+k).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(k string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	_ = r.c.Set(context.Background(), r.prefix+k, v, ttl).Err()
}

func (r *Redis) Delete(k string) {
	_ = r.c.Del(context.Background(), r.prefix+k).Err()
}

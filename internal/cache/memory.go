package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Mem es el backend in-process sobre go-cache.
type Mem struct{ c *gocache.Cache }

// NewMemory crea un cache en memoria con limpieza periódica.
func NewMemory(defaultTTL time.Duration) *Mem {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(k string, v []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(k, v, ttl)
}

func (m *Mem) Delete(k string) { m.c.Delete(k) }

// Package cache provee un KV mínimo con TTL y soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, default; suficiente porque la tabla de dedup es best-effort)
//   - Redis (para deployments multi-instancia)
package cache

import "time"

// Cache define las operaciones que necesita el gate.
type Cache interface {
	// Get obtiene un valor; ok=false si no existe o expiró.
	Get(k string) ([]byte, bool)

	// Set guarda un valor con TTL. ttl<=0 usa el default del backend.
	Set(k string, v []byte, ttl time.Duration)

	// Delete elimina una key. No-op si no existe.
	Delete(k string)
}

// Config para construir un backend.
type Config struct {
	Kind       string // "memory" | "redis"
	DefaultTTL time.Duration
	Redis      struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
}

// New crea el backend según la configuración. Kind desconocido cae a memory.
func New(cfg Config) Cache {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix, cfg.DefaultTTL)
	default:
		return NewMemory(cfg.DefaultTTL)
	}
}

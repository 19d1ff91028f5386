package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Los identificadores de chat/usuario NUNCA se loguean crudos: siempre
// pasan por HashID. El hash alcanza para correlacionar eventos en
// monitoreo sin retener PII.

// HashID devuelve un hash no reversible y corto de un identificador.
func HashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}

// Event crea el campo del nombre de evento operacional.
func Event(v string) zap.Field {
	return zap.String("event", v)
}

// ChatHash crea el campo del chat hasheado.
func ChatHash(id string) zap.Field {
	return zap.String("chat_hash", HashID(id))
}

// UserHash crea el campo del usuario hasheado.
func UserHash(id string) zap.Field {
	return zap.String("user_hash", HashID(id))
}

// Outcome crea el campo del resultado terminal de una verificación.
func Outcome(v string) zap.Field {
	return zap.String("outcome", v)
}

// RequestID crea el campo del id de request (un update entrante).
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Op crea el campo de la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Component crea el campo del componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Duration crea el campo de duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Err crea el campo de error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

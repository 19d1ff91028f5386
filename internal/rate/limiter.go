// Package rate implementa el anti-flood del gate: un limitador por gap
// de dos niveles, por usuario.
//
// Requests con gap menor a SilentWindow se descartan sin respuesta;
// con gap menor a NoticeWindow se descartan avisando cuánto esperar.
// El estado vive en un cache (memory o redis), así el límite sobrevive
// a múltiples instancias cuando el backend es compartido.
package rate

import (
	"encoding/binary"
	"time"

	"github.com/dropDatabas3/verigate/internal/cache"
)

// Decision es el resultado de chequear un request.
type Decision struct {
	Allowed    bool
	Silent     bool          // true => descartar sin avisar al usuario
	RetryAfter time.Duration // cuánto falta para salir de la ventana (si !Allowed && !Silent)
}

// Limiter chequea requests contra las dos ventanas.
type Limiter struct {
	c            cache.Cache
	SilentWindow time.Duration
	NoticeWindow time.Duration
	now          func() time.Time
}

// New crea un limiter con las ventanas por defecto (10s / 30s).
func New(c cache.Cache, silent, notice time.Duration, now func() time.Time) *Limiter {
	if silent <= 0 {
		silent = 10 * time.Second
	}
	if notice < silent {
		notice = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{c: c, SilentWindow: silent, NoticeWindow: notice, now: now}
}

// Check evalúa un request de key (normalmente el uid del solicitante).
//
// Dentro de SilentWindow el timestamp se renueva: un usuario martillando
// comandos nunca sale de la ventana silenciosa. Dentro de NoticeWindow el
// timestamp viejo se conserva para que el RetryAfter informado sea real.
func (l *Limiter) Check(key string) Decision {
	now := l.now().UTC()
	last, ok := l.lastRequest(key)
	if !ok {
		// sin historia: permitir y anotar
		l.store(key, now)
		return Decision{Allowed: true}
	}

	gap := now.Sub(last)
	switch {
	case gap < l.SilentWindow:
		l.store(key, now)
		return Decision{Silent: true}
	case gap < l.NoticeWindow:
		return Decision{RetryAfter: l.NoticeWindow - gap}
	default:
		l.store(key, now)
		return Decision{Allowed: true}
	}
}

func (l *Limiter) lastRequest(key string) (time.Time, bool) {
	b, ok := l.c.Get("rl:" + key)
	if !ok || len(b) != 8 {
		return time.Time{}, false
	}
	return time.Unix(int64(binary.BigEndian.Uint64(b)), 0).UTC(), true
}

func (l *Limiter) store(key string, t time.Time) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.Unix()))
	l.c.Set("rl:"+key, b[:], l.NoticeWindow)
}

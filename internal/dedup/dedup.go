// Package dedup implementa la memoria best-effort de usuarios recién
// verificados por invitación.
//
// Cuando un usuario canjea un claim de invitación queda anotado
// {uid -> gid}; si después se une a ese chat, el join handler saltea el
// ciclo mute+challenge y borra la entrada tras un pequeño grace period
// (absorbe la latencia de eventos de la plataforma). Perder esta tabla
// en un restart sólo duplica UX, no afecta seguridad.
package dedup

import (
	"time"

	"github.com/dropDatabas3/verigate/internal/cache"
)

const (
	// entryTTL: cuánto vive una anotación sin ser consumida.
	entryTTL = 48 * time.Hour
	// consumeGrace: delay entre consumir la entrada y borrarla.
	consumeGrace = 5 * time.Second
)

// Table es la tabla de de-duplicación sobre un cache con TTL.
type Table struct {
	c     cache.Cache
	grace time.Duration
}

// New crea una tabla sobre el cache dado.
func New(c cache.Cache) *Table {
	return &Table{c: c, grace: consumeGrace}
}

// Record anota que uid fue invitation-verified hacia chatID.
// Canjes sucesivos del mismo claim pisan la entrada anterior.
func (t *Table) Record(uid, chatID string) {
	t.c.Set(key(uid), []byte(chatID), entryTTL)
}

// Match indica si uid tiene una anotación fresca para exactamente chatID.
func (t *Table) Match(uid, chatID string) bool {
	v, ok := t.c.Get(key(uid))
	return ok && string(v) == chatID
}

// Consume agenda el borrado de la entrada de uid tras el grace period.
// El borrado diferido cubre joins duplicados que la plataforma pueda
// entregar dentro de la ventana.
func (t *Table) Consume(uid string) {
	time.AfterFunc(t.grace, func() { t.c.Delete(key(uid)) })
}

func key(uid string) string { return "dedup:" + uid }

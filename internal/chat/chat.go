// Package chat define el colaborador de transporte de chat y su
// implementación Telegram. Los handlers dependen sólo de la interfaz;
// la plataforma concreta queda detrás de este boundary.
package chat

import "context"

// Estados de miembro que le importan al gate.
const (
	StatusCreator = "creator"
	StatusAdmin   = "administrator"
)

// Member es el subconjunto del chat-member status que consumimos.
type Member struct {
	Status    string
	CanInvite bool
}

// CanManageInvites indica si el miembro puede emitir invitaciones:
// el owner siempre, un admin sólo con el permiso explícito.
func (m Member) CanManageInvites() bool {
	return m.Status == StatusCreator || (m.Status == StatusAdmin && m.CanInvite)
}

// Button es un botón inline: URL o callback (exactamente uno seteado).
type Button struct {
	Text string
	URL  string
	Data string
}

// Transport son las operaciones consumidas del lado del chat.
// Los mensajes aceptan HTML básico de la plataforma.
type Transport interface {
	// Self devuelve la identidad del bot.
	Self() (id int64, username string)

	// SendMessage envía y devuelve el message id. replyTo=0 no referencia nada.
	SendMessage(ctx context.Context, chatID int64, html string, replyTo int, buttons ...Button) (int, error)

	// EditMessage reemplaza texto y teclado de un mensaje existente.
	EditMessage(ctx context.Context, chatID int64, messageID int, html string, buttons ...Button) error

	// DeleteMessage retira un mensaje.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// Restrict aplica la restricción provisional (mute total).
	Restrict(ctx context.Context, chatID, userID int64) error

	// Unrestrict devuelve los permisos base de envío.
	Unrestrict(ctx context.Context, chatID, userID int64) error

	// Member consulta el status de un miembro del chat.
	Member(ctx context.Context, chatID, userID int64) (Member, error)

	// ExportInviteLink genera un invite link fresco del chat.
	ExportInviteLink(ctx context.Context, chatID int64) (string, error)
}

package gate

// Tipos de chat de la plataforma que nos importan.
const (
	ChatPrivate    = "private"
	ChatSupergroup = "supergroup"
)

// JoinedUser es un usuario recién unido al chat.
type JoinedUser struct {
	ID        int64
	FirstName string
	IsBot     bool
}

// JoinEvent es un membership-join: uno o más usuarios entraron.
type JoinEvent struct {
	ChatID    int64
	ChatTitle string
	MessageID int // mensaje de "X joined" al que se responde el placeholder
	Users     []JoinedUser
}

// Command es una invocación de comando con argumentos ya parseados.
type Command struct {
	Name      string
	Args      string
	ChatID    int64
	ChatType  string
	ChatTitle string
	UserID    int64
	MessageID int
}

// Callback es un callback-button event con su payload opaco.
type Callback struct {
	ChatID    int64
	ChatTitle string
	MessageID int // mensaje que lleva el botón
	UserID    int64
	Data      string // JSON {action, ...params}
}

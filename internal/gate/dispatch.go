package gate

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/verigate/internal/observability/logger"
)

// HandleUpdate traduce un update crudo de la plataforma y lo despacha
// en su propia goroutine con el presupuesto de tiempo del gate. Cada
// update es una unidad de trabajo independiente y sin orden garantizado;
// el único estado compartido entre ellas es la tabla de dedup.
func (g *Gate) HandleUpdate(u tgbotapi.Update) {
	switch {
	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		ev := joinEvent(u.Message)
		g.spawn(func(ctx context.Context) { g.HandleJoin(ctx, ev) })

	case u.Message != nil && u.Message.IsCommand():
		cmd := command(u.Message)
		switch cmd.Name {
		case "start":
			g.spawn(func(ctx context.Context) { g.HandleStart(ctx, cmd) })
		case "verify":
			g.spawn(func(ctx context.Context) { g.HandleVerify(ctx, cmd) })
		case "invite":
			g.spawn(func(ctx context.Context) { g.HandleInvite(ctx, cmd) })
		}

	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		cb := callback(u.CallbackQuery)
		g.spawn(func(ctx context.Context) { g.HandleCallback(ctx, cb) })
	}
}

// spawn corre un handler con timeout; si el presupuesto se agota las
// llamadas salientes en vuelo se abandonan sin compensación.
func (g *Gate) spawn(fn func(ctx context.Context)) {
	reqID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("handler panic", logger.RequestID(reqID), zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
}

func joinEvent(m *tgbotapi.Message) JoinEvent {
	ev := JoinEvent{
		ChatID:    m.Chat.ID,
		ChatTitle: m.Chat.Title,
		MessageID: m.MessageID,
	}
	for _, u := range m.NewChatMembers {
		ev.Users = append(ev.Users, JoinedUser{ID: u.ID, FirstName: u.FirstName, IsBot: u.IsBot})
	}
	return ev
}

func command(m *tgbotapi.Message) Command {
	cmd := Command{
		Name:      m.Command(),
		Args:      m.CommandArguments(),
		ChatID:    m.Chat.ID,
		ChatType:  m.Chat.Type,
		ChatTitle: m.Chat.Title,
		MessageID: m.MessageID,
	}
	if m.From != nil {
		cmd.UserID = m.From.ID
	}
	return cmd
}

func callback(q *tgbotapi.CallbackQuery) Callback {
	return Callback{
		ChatID:    q.Message.Chat.ID,
		ChatTitle: q.Message.Chat.Title,
		MessageID: q.Message.MessageID,
		UserID:    q.From.ID,
		Data:      q.Data,
	}
}

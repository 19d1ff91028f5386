package chat

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram implementa Transport sobre la Bot API.
//
// La librería no acepta context por llamada; el timeout real lo pone el
// http.Client del bot. El ctx queda en la interfaz para fakes y para
// cuando la librería lo soporte.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram autentica el bot contra la API y devuelve el transporte.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("chat: autenticar bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

// API expone el client subyacente (updates channel, webhook handling).
func (t *Telegram) API() *tgbotapi.BotAPI { return t.bot }

func (t *Telegram) Self() (int64, string) {
	return t.bot.Self.ID, t.bot.Self.UserName
}

func (t *Telegram) SendMessage(_ context.Context, chatID int64, html string, replyTo int, buttons ...Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	if len(buttons) > 0 {
		msg.ReplyMarkup = markup(buttons)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("chat: send: %w", err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) EditMessage(_ context.Context, chatID int64, messageID int, html string, buttons ...Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, html)
	edit.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		m := markup(buttons)
		edit.ReplyMarkup = &m
	}
	if _, err := t.bot.Request(edit); err != nil {
		return fmt.Errorf("chat: edit: %w", err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("chat: delete: %w", err)
	}
	return nil
}

func (t *Telegram) Restrict(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("chat: restrict: %w", err)
	}
	return nil
}

func (t *Telegram) Unrestrict(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("chat: unrestrict: %w", err)
	}
	return nil
}

func (t *Telegram) Member(_ context.Context, chatID, userID int64) (Member, error) {
	m, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return Member{}, fmt.Errorf("chat: get member: %w", err)
	}
	return Member{Status: m.Status, CanInvite: m.CanInviteUsers}, nil
}

func (t *Telegram) ExportInviteLink(_ context.Context, chatID int64) (string, error) {
	link, err := t.bot.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("chat: export invite link: %w", err)
	}
	return link, nil
}

func markup(buttons []Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

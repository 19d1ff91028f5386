package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/errs"
	"github.com/dropDatabas3/verigate/internal/metrics"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
)

const inviteUsage = "Usage: /invite <days>\n\ndays: how long the generated link stays valid, between 1 and 30."

// callbackPayload es el JSON opaco del botón de confirmación.
type callbackPayload struct {
	Action string `json:"action"`
	Expire int    `json:"expire"`
}

// HandleInvite procesa `/invite <days>`: paso 1 del flujo privilegiado.
// Sólo presenta la confirmación; el mint recién ocurre en el callback,
// porque el standing claim resultante no se puede revocar.
func (g *Gate) HandleInvite(ctx context.Context, cmd Command) {
	if cmd.ChatType != ChatSupergroup {
		return
	}
	if g.limited(ctx, cmd.UserID, cmd.ChatID) {
		return
	}

	member, err := g.deps.Chat.Member(ctx, cmd.ChatID, cmd.UserID)
	if err != nil {
		g.replyErr(ctx, cmd.ChatID, cmd.MessageID, errs.Wrap(errs.CodeUpstreamUnavailable, err))
		return
	}
	if !member.CanManageInvites() {
		g.reply(ctx, cmd.ChatID, cmd.MessageID, "You have no permission to invite users.")
		return
	}

	// El bot también necesita el permiso: sin él, el export del invite
	// link fallaría recién al final del flujo.
	botID, _ := g.deps.Chat.Self()
	botMember, err := g.deps.Chat.Member(ctx, cmd.ChatID, botID)
	if err == nil && botMember.Status == chat.StatusAdmin && !botMember.CanInvite {
		g.reply(ctx, cmd.ChatID, cmd.MessageID, "I have no permission to invite users.")
		return
	}

	days, err := strconv.Atoi(cmd.Args)
	if err != nil || days < claim.MinInviteDays || days > claim.MaxInviteDays {
		g.reply(ctx, cmd.ChatID, cmd.MessageID, inviteUsage)
		return
	}

	data, _ := json.Marshal(callbackPayload{Action: "invite", Expire: days})
	text := fmt.Sprintf(
		"Please notice that we are <b>UNABLE TO REVOKE THE INVITE LINK</b> for you. Are you sure you want to generate an invite link valid for %d day(s)?",
		days,
	)
	confirm := chat.Button{
		Text: fmt.Sprintf("Sure, generate a link valid for %d day(s).", days),
		Data: string(data),
	}
	if _, err := g.deps.Chat.SendMessage(ctx, cmd.ChatID, text, cmd.MessageID, confirm); err != nil {
		g.log.Warn("invite confirmation failed", logger.Err(err))
	}
}

// HandleCallback procesa la confirmación: paso 2, mint del standing claim.
func (g *Gate) HandleCallback(ctx context.Context, cb Callback) {
	// Mismo check de privilegio que el comando: el botón queda visible
	// en el chat y cualquiera puede apretarlo.
	member, err := g.deps.Chat.Member(ctx, cb.ChatID, cb.UserID)
	if err != nil || !member.CanManageInvites() {
		return
	}

	var p callbackPayload
	if err := json.Unmarshal([]byte(cb.Data), &p); err != nil {
		return
	}
	if p.Action != "invite" {
		return
	}
	if p.Expire < claim.MinInviteDays || p.Expire > claim.MaxInviteDays {
		return
	}

	gid := strconv.FormatInt(cb.ChatID, 10)
	token, err := g.deps.Claims.Mint(claim.Claim{
		Subject:  claim.AnyBearer,
		ChatID:   gid,
		ChatName: url.QueryEscape(cb.ChatTitle),
		Invite:   true,
	}, time.Duration(p.Expire)*24*time.Hour)
	if err != nil {
		g.log.Error("invite mint failed", logger.Err(err), logger.ChatHash(gid))
		return
	}
	metrics.ClaimsIssued.WithLabelValues("invite").Inc()
	g.log.Info("invite claim issued",
		logger.Event("newInviteTokenIssued"),
		logger.ChatHash(gid),
	)

	// El link se entrega editando el mensaje de confirmación: queda para
	// el requester, no se broadcastea.
	text := "Generated. Your invite link:\n<code>" + g.link(token) + "</code>"
	if err := g.deps.Chat.EditMessage(ctx, cb.ChatID, cb.MessageID, text); err != nil {
		g.log.Warn("invite edit failed", logger.Err(err), logger.ChatHash(gid))
	}
}

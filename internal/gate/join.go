package gate

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"

	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/metrics"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
)

const challengeText = "Dear %s, with our Anti-SPAM policy, we kindly inform you that you need to click the following button to prove your human identity.\n\n" +
	"This link is only valid for 10 minutes, please complete the verification as soon as possible, thanks for your cooperation."

// HandleJoin reacciona a un membership-join: default fail-closed, el
// recién llegado queda muteado hasta verificarse.
func (g *Gate) HandleJoin(ctx context.Context, ev JoinEvent) {
	gid := strconv.FormatInt(ev.ChatID, 10)

	for _, u := range ev.Users {
		if u.IsBot {
			continue
		}
		uid := strconv.FormatInt(u.ID, 10)

		// Usuario recién invitation-verified hacia ESTE chat: saltear el
		// ciclo completo y borrar la anotación tras el grace delay.
		if g.deps.Dedup.Match(uid, gid) {
			g.deps.Dedup.Consume(uid)
			g.log.Info("join challenge skipped",
				logger.Event("invitedJoinSkipped"),
				logger.ChatHash(gid),
				logger.UserHash(uid),
			)
			continue
		}

		g.challenge(ctx, ev, u, gid, uid)
	}
}

// challenge ejecuta los pasos 1-4 del join handler para un usuario.
func (g *Gate) challenge(ctx context.Context, ev JoinEvent, u JoinedUser, gid, uid string) {
	// 1. Restricción provisional, antes que cualquier otra cosa.
	if err := g.deps.Chat.Restrict(ctx, ev.ChatID, u.ID); err != nil {
		g.log.Error("restrict failed", logger.Err(err), logger.ChatHash(gid), logger.UserHash(uid))
		// sin mute no tiene sentido el challenge; mejor no mintear nada
		return
	}

	// 2. Placeholder cuyo id viaja dentro del claim para el retiro final.
	mid, err := g.deps.Chat.SendMessage(ctx, ev.ChatID, "Processing...", ev.MessageID)
	if err != nil {
		g.log.Error("placeholder failed", logger.Err(err), logger.ChatHash(gid))
		return
	}

	// 3. Mint del join-claim atado a {usuario, chat, placeholder}.
	token, err := g.deps.Claims.Mint(claim.Claim{
		Subject:   uid,
		ChatID:    gid,
		ChatName:  url.QueryEscape(ev.ChatTitle),
		MessageID: mid,
	}, claim.JoinTTL)
	if err != nil {
		g.log.Error("mint failed", logger.Err(err), logger.ChatHash(gid))
		return
	}
	metrics.ClaimsIssued.WithLabelValues("join").Inc()
	g.log.Info("join claim issued",
		logger.Event("newVerifyTokenIssued"),
		logger.ChatHash(gid),
	)

	// 4. Editar el placeholder al challenge con el link.
	mention := fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, uid, html.EscapeString(u.FirstName))
	text := fmt.Sprintf(challengeText, mention)
	button := chat.Button{Text: "Go to verification page", URL: g.link(token)}
	if err := g.deps.Chat.EditMessage(ctx, ev.ChatID, mid, text, button); err != nil {
		g.log.Error("challenge edit failed", logger.Err(err), logger.ChatHash(gid))
	}
}

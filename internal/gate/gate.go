// Package gate orquesta los handlers del bot: joins, comandos de
// verificación y el flujo de invitación. Acá vive el glue entre el
// transporte de chat y la state machine.
package gate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/errs"
	"github.com/dropDatabas3/verigate/internal/metrics"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
	"github.com/dropDatabas3/verigate/internal/payload"
	"github.com/dropDatabas3/verigate/internal/rate"
	"github.com/dropDatabas3/verigate/internal/verify"
)

// DefaultPageBaseURL es la página de verificación estática.
const DefaultPageBaseURL = "https://tg-recaptcha.github.io/"

// helpText se responde cuando /start o /verify llegan sin argumento.
const helpText = "This bot only verifies machine-generated codes; there is nothing to do here without a verification link."

// Deps agrupa los colaboradores del gate.
type Deps struct {
	Chat     chat.Transport
	Claims   *claim.Codec
	Resolver *payload.Resolver
	Machine  *verify.Machine
	Dedup    dedupTable
	Limiter  *rate.Limiter
}

// dedupTable es lo que el gate necesita de la tabla de dedup.
type dedupTable interface {
	Match(uid, chatID string) bool
	Consume(uid string)
}

// Gate maneja los eventos entrantes del chat.
type Gate struct {
	deps Deps

	// PageBaseURL + SiteKey arman el link de challenge.
	PageBaseURL string
	SiteKey     string

	// Timeout acota cada unidad de trabajo (un update).
	Timeout time.Duration

	log *zap.Logger
}

// New arma el gate con defaults sanos.
func New(deps Deps, pageBaseURL, siteKey string) *Gate {
	if pageBaseURL == "" {
		pageBaseURL = DefaultPageBaseURL
	}
	return &Gate{
		deps:        deps,
		PageBaseURL: pageBaseURL,
		SiteKey:     siteKey,
		Timeout:     5 * time.Second,
		log:         logger.Named("gate"),
	}
}

// link arma el link de challenge: <base>#<token>;<bot>;<sitekey>,
// triple fragment-encoded que consume la página client-side.
func (g *Gate) link(token string) string {
	_, username := g.deps.Chat.Self()
	return fmt.Sprintf("%s#%s;%s;%s", g.PageBaseURL, token, username, g.SiteKey)
}

// limited corre el anti-flood para un comando. Devuelve true si el
// request fue descartado (con o sin aviso). Nunca consume el claim.
func (g *Gate) limited(ctx context.Context, uid int64, replyChat int64) bool {
	if g.deps.Limiter == nil {
		return false
	}
	d := g.deps.Limiter.Check(strconv.FormatInt(uid, 10))
	if d.Allowed {
		return false
	}
	metrics.DroppedRequests.Inc()
	if d.Silent {
		g.log.Info("request dropped",
			logger.Event("ignoredRequest"),
			logger.UserHash(strconv.FormatInt(uid, 10)),
		)
		return true
	}
	g.log.Info("request dropped with notice",
		logger.Event("ignoredRequestWithNotice"),
		logger.UserHash(strconv.FormatInt(uid, 10)),
	)
	g.reply(ctx, replyChat, 0, fmt.Sprintf("Too many requests! Please wait for %ds.", int(d.RetryAfter.Seconds())))
	return true
}

// reply manda un mensaje best-effort; los fallos sólo se loguean.
func (g *Gate) reply(ctx context.Context, chatID int64, replyTo int, html string) {
	if _, err := g.deps.Chat.SendMessage(ctx, chatID, html, replyTo); err != nil {
		g.log.Warn("reply failed", logger.Err(err))
	}
}

// replyErr traduce un error del flujo al mensaje user-facing.
func (g *Gate) replyErr(ctx context.Context, chatID int64, replyTo int, err error) {
	g.reply(ctx, chatID, replyTo, errs.UserMessage(err))
}

// HandleStart procesa `/start <ref>`: el canal por referencia.
func (g *Gate) HandleStart(ctx context.Context, cmd Command) {
	if cmd.ChatType != ChatPrivate {
		return
	}
	if g.limited(ctx, cmd.UserID, cmd.ChatID) {
		return
	}
	if cmd.Args == "" {
		g.reply(ctx, cmd.ChatID, 0, helpText)
		return
	}

	req, err := g.deps.Resolver.Reference(ctx, cmd.Args, cmd.UserID, cmd.ChatID)
	if err != nil {
		g.log.Info("payload resolve failed",
			logger.Event("payloadRejected"),
			logger.Outcome(string(errs.CodeOf(err))),
			logger.UserHash(strconv.FormatInt(cmd.UserID, 10)),
			logger.Err(err),
		)
		g.replyErr(ctx, cmd.ChatID, 0, err)
		return
	}
	if err := g.deps.Machine.Verify(ctx, req); err != nil {
		g.replyErr(ctx, cmd.ChatID, 0, err)
	}
}

// HandleVerify procesa `/verify <base64>`: el fallback manual inline.
func (g *Gate) HandleVerify(ctx context.Context, cmd Command) {
	if cmd.ChatType != ChatPrivate {
		return
	}
	if g.limited(ctx, cmd.UserID, cmd.ChatID) {
		return
	}
	if cmd.Args == "" {
		g.reply(ctx, cmd.ChatID, 0, helpText)
		return
	}

	req, err := g.deps.Resolver.Direct(cmd.Args, cmd.UserID, cmd.ChatID)
	if err != nil {
		g.log.Info("payload resolve failed",
			logger.Event("payloadRejected"),
			logger.Outcome(string(errs.CodeOf(err))),
			logger.UserHash(strconv.FormatInt(cmd.UserID, 10)),
			logger.Err(err),
		)
		g.replyErr(ctx, cmd.ChatID, 0, err)
		return
	}
	if err := g.deps.Machine.Verify(ctx, req); err != nil {
		g.replyErr(ctx, cmd.ChatID, 0, err)
	}
}

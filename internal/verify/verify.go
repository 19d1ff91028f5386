// Package verify implementa la state machine central: decide
// ACCEPT/REJECT para un CanonicalRequest y ejecuta el efecto de
// membresía en el ACCEPT path.
package verify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/verigate/internal/captcha"
	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/dedup"
	"github.com/dropDatabas3/verigate/internal/errs"
	"github.com/dropDatabas3/verigate/internal/metrics"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
	"github.com/dropDatabas3/verigate/internal/payload"
)

// Machine evalúa claims+proofs y aplica el unlock.
type Machine struct {
	Claims  *claim.Codec
	Captcha captcha.Verifier
	Chat    chat.Transport
	Dedup   *dedup.Table

	log *zap.Logger
	now func() time.Time
}

// New arma la máquina. now==nil usa time.Now.
func New(claims *claim.Codec, verifier captcha.Verifier, transport chat.Transport, table *dedup.Table, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		Claims:  claims,
		Captcha: verifier,
		Chat:    transport,
		Dedup:   table,
		log:     logger.Named("verify"),
		now:     now,
	}
}

// Verify corre los pasos en orden, cortando en el primer fallo.
// El claim NO se consume en ningún fallo: el usuario puede re-intentar
// el flujo completo mientras el claim siga vigente.
func (m *Machine) Verify(ctx context.Context, req payload.CanonicalRequest) error {
	// 1. Abrir el claim. Expirado y adulterado se loguean distinto pero
	//    comparten el code (y el mensaje) de cara al usuario.
	cl, err := m.Claims.Open(req.Token)
	if err != nil {
		ev := "claimRejected"
		if errors.Is(err, claim.ErrExpired) {
			ev = "claimExpired"
		}
		m.reject(ev, cl.ChatID, req.RequesterID, errs.CodeClaimInvalid)
		return errs.Wrap(errs.CodeClaimInvalid, err)
	}

	requester := strconv.FormatInt(req.RequesterID, 10)

	// 2. Subject check: el control anti-impersonación. Un claim de
	//    invitación es válido para cualquier portador.
	if !cl.Invite && cl.Subject != requester {
		m.reject("identityMismatch", cl.ChatID, req.RequesterID, errs.CodeIdentityMismatch)
		return errs.New(errs.CodeIdentityMismatch, "")
	}

	// 3. Proof contra el verificador upstream.
	passed, err := m.Captcha.Verify(ctx, req.Proof)
	if err != nil {
		m.reject("captchaUnavailable", cl.ChatID, req.RequesterID, errs.CodeUpstreamUnavailable)
		return errs.Wrap(errs.CodeUpstreamUnavailable, err)
	}
	if !passed {
		m.reject("proofRejected", cl.ChatID, req.RequesterID, errs.CodeProofRejected)
		return errs.New(errs.CodeProofRejected, "")
	}

	// 4. Efecto.
	if cl.Invite {
		return m.acceptInvite(ctx, cl, req, requester)
	}
	return m.acceptJoin(ctx, cl, req)
}

// acceptInvite: invite link fresco + anotación de dedup + aviso con botón.
func (m *Machine) acceptInvite(ctx context.Context, cl claim.Claim, req payload.CanonicalRequest, requester string) error {
	gid, err := strconv.ParseInt(cl.ChatID, 10, 64)
	if err != nil {
		m.reject("claimRejected", cl.ChatID, req.RequesterID, errs.CodeClaimInvalid)
		return errs.Wrap(errs.CodeClaimInvalid, err)
	}

	link, err := m.Chat.ExportInviteLink(ctx, gid)
	if err != nil {
		m.reject("inviteLinkUnavailable", cl.ChatID, req.RequesterID, errs.CodeUpstreamUnavailable)
		return errs.Wrap(errs.CodeUpstreamUnavailable, err)
	}

	m.Dedup.Record(requester, cl.ChatID)

	name := displayName(cl.ChatName)
	text := fmt.Sprintf("Congratulations~ We already verified you, you can join the group <code>%s</code> now!", name)
	if _, err := m.Chat.SendMessage(ctx, req.ReplyChat, text, 0, chat.Button{Text: "Join " + name, URL: link}); err != nil {
		// el efecto ya ocurrió; sólo queda registrarlo
		m.log.Warn("invite notify failed", logger.Err(err), logger.ChatHash(cl.ChatID))
	}

	metrics.Verifications.WithLabelValues("ok").Inc()
	m.log.Info("invite verified",
		logger.Event("InviteSuccess"),
		logger.ChatHash(cl.ChatID),
		logger.UserHash(requester),
	)
	return nil
}

// acceptJoin: levantar la restricción, retirar el placeholder y avisar.
func (m *Machine) acceptJoin(ctx context.Context, cl claim.Claim, req payload.CanonicalRequest) error {
	gid, err := strconv.ParseInt(cl.ChatID, 10, 64)
	if err != nil {
		m.reject("claimRejected", cl.ChatID, req.RequesterID, errs.CodeClaimInvalid)
		return errs.Wrap(errs.CodeClaimInvalid, err)
	}
	uid, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil {
		m.reject("claimRejected", cl.ChatID, req.RequesterID, errs.CodeClaimInvalid)
		return errs.Wrap(errs.CodeClaimInvalid, err)
	}

	// El unlock no es transaccional con la validación: si falla acá no
	// hay rollback; el claim sigue vigente y el usuario puede reintentar.
	if err := m.Chat.Unrestrict(ctx, gid, uid); err != nil {
		m.reject("unlockFailed", cl.ChatID, req.RequesterID, errs.CodeUpstreamUnavailable)
		return errs.Wrap(errs.CodeUpstreamUnavailable, err)
	}

	// El placeholder puede ya no existir (claim re-usado, mensaje borrado
	// a mano): best-effort.
	if cl.MessageID != 0 {
		if err := m.Chat.DeleteMessage(ctx, gid, cl.MessageID); err != nil {
			m.log.Debug("placeholder delete failed", logger.Err(err), logger.ChatHash(cl.ChatID))
		}
	}

	elapsed := m.now().UTC().Sub(cl.IssuedAt)
	text := fmt.Sprintf(
		"Congratulations~ We already verified you, now you can enjoy your chatting with <code>%s</code>'s members!\n\nVerification took %ds.",
		displayName(cl.ChatName), int(elapsed.Seconds()),
	)
	if _, err := m.Chat.SendMessage(ctx, req.ReplyChat, text, 0); err != nil {
		m.log.Warn("verify notify failed", logger.Err(err), logger.ChatHash(cl.ChatID))
	}

	metrics.Verifications.WithLabelValues("ok").Inc()
	metrics.VerifyLatency.Observe(elapsed.Seconds())
	m.log.Info("member verified",
		logger.Event("VerifySuccess"),
		logger.ChatHash(cl.ChatID),
		logger.UserHash(cl.Subject),
		logger.Duration(elapsed),
	)
	return nil
}

// reject cuenta y loguea un resultado terminal de rechazo.
func (m *Machine) reject(event, chatID string, requesterID int64, code errs.Code) {
	metrics.Verifications.WithLabelValues(string(code)).Inc()
	fields := []zap.Field{
		logger.Event(event),
		logger.Outcome(string(code)),
		logger.UserHash(strconv.FormatInt(requesterID, 10)),
	}
	if chatID != "" {
		fields = append(fields, logger.ChatHash(chatID))
	}
	m.log.Info("verification rejected", fields...)
}

// displayName revierte el url-escape del mint y escapa para HTML.
func displayName(gname string) string {
	name, err := url.QueryUnescape(gname)
	if err != nil {
		name = gname
	}
	return html.EscapeString(name)
}

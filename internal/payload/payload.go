// Package payload normaliza el par {claim, proof} desde cualquiera de
// los dos canales de entrada: inline (comando /verify) o por referencia
// a un blob cifrado en el paste service (comando /start).
package payload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/dropDatabas3/verigate/internal/blobstore"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/errs"
)

// CanonicalRequest es la forma normalizada que consume la state machine.
// Token viaja sin verificar; abrirlo es el paso 1 de la verificación.
type CanonicalRequest struct {
	Token       string // claim firmado, tal cual llegó
	Proof       string // respuesta del captcha
	RequesterID int64  // quién está canjeando
	ReplyChat   int64  // chat privado donde responder
}

// envelope es la forma JSON del payload en ambos canales.
type envelope struct {
	Claim string `json:"claim"`
	Proof string `json:"proof"`
}

// Resolver arma CanonicalRequests desde las dos fuentes.
type Resolver struct {
	Blobs blobstore.Client
}

// NewResolver crea un resolver sobre el blob client dado.
func NewResolver(blobs blobstore.Client) *Resolver {
	return &Resolver{Blobs: blobs}
}

// Direct resuelve el modo inline: base64(JSON{claim, proof}) pasado por
// el usuario como argumento de /verify (el fallback manual).
func (r *Resolver) Direct(b64 string, requesterID, replyChat int64) (CanonicalRequest, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return CanonicalRequest{}, errs.Wrap(errs.CodeMalformedPayload, err)
	}
	env, ok := decodeEnvelope(raw)
	if !ok {
		return CanonicalRequest{}, errs.New(errs.CodeMalformedPayload, "")
	}
	return CanonicalRequest{
		Token:       env.Claim,
		Proof:       env.Proof,
		RequesterID: requesterID,
		ReplyChat:   replyChat,
	}, nil
}

// Reference resuelve el modo por referencia: baja el blob del paste
// service y lo descifra. Primero prueba la clave derivada del uid del
// solicitante; si no produce un envelope válido, reintenta con la clave
// pública fija (claims de invitación, donde el emisor no conoce al
// consumidor de antemano).
func (r *Resolver) Reference(ctx context.Context, id string, requesterID, replyChat int64) (CanonicalRequest, error) {
	blob, err := r.Blobs.Fetch(ctx, id)
	if err != nil {
		return CanonicalRequest{}, errs.Wrap(errs.CodeUpstreamUnavailable, err)
	}

	env, ok := r.open(blob, strconv.FormatInt(requesterID, 10))
	if !ok {
		env, ok = r.open(blob, claim.AnyBearer)
	}
	if !ok {
		return CanonicalRequest{}, errs.New(errs.CodeMalformedPayload, "")
	}
	return CanonicalRequest{
		Token:       env.Claim,
		Proof:       env.Proof,
		RequesterID: requesterID,
		ReplyChat:   replyChat,
	}, nil
}

// open intenta descifrar el blob con la clave derivada de keyID y
// decodificar un envelope completo.
func (r *Resolver) open(blob []byte, keyID string) (envelope, bool) {
	pt, err := Decrypt(DeriveKey(keyID), string(blob))
	if err != nil {
		return envelope{}, false
	}
	return decodeEnvelope(pt)
}

func decodeEnvelope(raw []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, false
	}
	if env.Claim == "" || env.Proof == "" {
		return envelope{}, false
	}
	return env, true
}

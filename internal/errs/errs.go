// Package errs define la taxonomía de errores del gate.
//
// Cada fallo terminal del flujo de verificación se construye con un Code
// explícito; los handlers deciden el mensaje user-facing y el log a partir
// del code, nunca inspeccionando el "shape" del error.
package errs

import (
	"errors"
	"fmt"
)

// Code identifica la clase de fallo.
type Code string

const (
	// CodeClaimInvalid cubre firma inválida y expiración (no se distingue al usuario).
	CodeClaimInvalid Code = "claim_invalid"

	// CodeIdentityMismatch: el claim pertenece a otro usuario.
	CodeIdentityMismatch Code = "identity_mismatch"

	// CodeMalformedPayload: el payload no tiene la forma {claim, proof}.
	CodeMalformedPayload Code = "malformed_payload"

	// CodeUpstreamUnavailable: fallo transitorio hablando con captcha o blob store.
	CodeUpstreamUnavailable Code = "upstream_unavailable"

	// CodeProofRejected: el verificador de captcha respondió success=false.
	CodeProofRejected Code = "proof_rejected"

	// CodePermissionDenied: comando privilegiado por un caller sin permisos.
	CodePermissionDenied Code = "permission_denied"

	// CodeRateLimited: demasiados requests en la ventana.
	CodeRateLimited Code = "rate_limited"
)

// userMessages: mensaje por defecto que ve el usuario final por cada code.
var userMessages = map[Code]string{
	CodeClaimInvalid:        "Sorry, but we can't verify you now. You may like to quit and rejoin the group and try again.",
	CodeIdentityMismatch:    "You can't verify account for another person.\nIf you are sure you are verifying your own account, please try the backup method shown in the verification page.",
	CodeMalformedPayload:    "Invalid data, please try again later or use the backup method provided in the verification page.",
	CodeUpstreamUnavailable: "Error when trying to reach the verification servers, please rest for a while and try again.",
	CodeProofRejected:       "Sorry, but we can't verify you now. You may like to quit and rejoin the group and try again.",
	CodePermissionDenied:    "You have no permission to do that.",
	CodeRateLimited:         "Too many requests! Please wait a moment.",
}

// E es el error taggeado del gate. Msg (si está) pisa el mensaje por defecto del code.
type E struct {
	Code Code
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return string(e.Code)
}

func (e *E) Unwrap() error { return e.Err }

// New construye un E sin causa interna.
func New(code Code, msg string) *E {
	return &E{Code: code, Msg: msg}
}

// Wrap construye un E preservando la causa para el log.
func Wrap(code Code, err error) *E {
	return &E{Code: code, Err: err}
}

// Wrapf construye un E con causa formateada.
func Wrapf(code Code, format string, args ...any) *E {
	return &E{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extrae el Code de un error; "" si no es un E.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage devuelve el texto user-facing para un error.
// Errores no taggeados caen en el mensaje genérico de claim_invalid.
func UserMessage(err error) string {
	var e *E
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if msg, ok := userMessages[e.Code]; ok {
			return msg
		}
	}
	return userMessages[CodeClaimInvalid]
}

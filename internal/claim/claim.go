// Package claim implementa el codec de claims firmados del gate.
//
// Un claim liga {usuario, chat, mensaje pendiente} a una ventana de validez
// y viaja como bearer token HS256; no se persiste nada del lado del server.
package claim

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// AnyBearer es el subject centinela de los claims de invitación:
// cualquier portador puede canjearlos mientras no expiren.
const AnyBearer = "public-invitation"

// JoinTTL es la validez de un claim emitido por un join event.
const JoinTTL = 10 * time.Minute

// Límites de validez para claims de invitación (en días).
const (
	MinInviteDays = 1
	MaxInviteDays = 30
)

var (
	// ErrExpired: firma válida pero el claim ya venció.
	ErrExpired = errors.New("claim: expired")
	// ErrInvalid: firma inválida, alg inesperado o payload irreconocible.
	ErrInvalid = errors.New("claim: invalid")
)

// Claim es el payload autenticado.
type Claim struct {
	Subject   string // uid del usuario autorizado, o AnyBearer
	ChatID    string // gid del chat destino
	ChatName  string // título del chat, url-escaped al momento de mint
	MessageID int    // mid del mensaje provisional a retirar (0 en invitaciones)
	Invite    bool   // true => claim de invitación multi-uso
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims es la forma JWT del claim.
type wireClaims struct {
	jwtv5.RegisteredClaims
	UID    string `json:"uid"`
	GID    string `json:"gid"`
	GName  string `json:"gname,omitempty"`
	MID    int    `json:"mid,omitempty"`
	Invite bool   `json:"invite,omitempty"`
}

// Codec firma y abre claims con el secreto de proceso.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec crea un codec. now==nil usa time.Now (inyectable en tests).
func NewCodec(secret string, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: []byte(secret), now: now}
}

// Mint serializa y firma el claim con validez ttl desde ahora.
// iat/exp los setea el codec; los del Claim de entrada se ignoran.
func (c *Codec) Mint(cl Claim, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	wc := wireClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
		UID:    cl.Subject,
		GID:    cl.ChatID,
		GName:  cl.ChatName,
		MID:    cl.MessageID,
		Invite: cl.Invite,
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, wc)
	return tk.SignedString(c.secret)
}

// Open verifica firma y expiración y devuelve el payload.
// Distingue ErrExpired de ErrInvalid para el log; al usuario le llega
// el mismo mensaje genérico en ambos casos.
func (c *Codec) Open(token string) (Claim, error) {
	var wc wireClaims
	_, err := jwtv5.ParseWithClaims(token, &wc,
		func(t *jwtv5.Token) (any, error) { return c.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithTimeFunc(c.now),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return Claim{}, ErrExpired
		}
		return Claim{}, ErrInvalid
	}
	if wc.UID == "" || wc.GID == "" {
		return Claim{}, ErrInvalid
	}

	cl := Claim{
		Subject:   wc.UID,
		ChatID:    wc.GID,
		ChatName:  wc.GName,
		MessageID: wc.MID,
		Invite:    wc.Invite,
		ExpiresAt: wc.ExpiresAt.Time.UTC(),
	}
	if wc.IssuedAt != nil {
		cl.IssuedAt = wc.IssuedAt.Time.UTC()
	}
	return cl, nil
}

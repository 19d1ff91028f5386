package payload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSizeGCM = 12  // nonce AES-GCM recomendado (96 bits)
	keyLength    = 32  // 32 bytes => AES-256
	sep          = "|" // nonce|ciphertext (ambos en base64)
)

// hkdfSalt fija el contexto de derivación: mismo uid => misma clave,
// pero claves distintas a las de cualquier otro uso de sha256(uid).
var hkdfSalt = []byte("verigate/blob/v1")

// DeriveKey deriva la clave AES-256 de un blob a partir del id del
// usuario destinatario (o de claim.AnyBearer para invitaciones).
// Que el descifrado con la clave de X funcione ES el tag implícito
// "este blob era para X": no hace falta pre-compartir claves con el
// front-end de verificación.
func DeriveKey(id string) []byte {
	r := hkdf.New(sha256.New, []byte(id), hkdfSalt, []byte("blob-key"))
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf sobre sha256 no falla con estos tamaños
		panic(fmt.Sprintf("payload: hkdf: %v", err))
	}
	return key
}

// Encrypt cifra plain y devuelve base64(nonce)|base64(ciphertext).
// Es la mitad que ejecuta la página de verificación; acá vive para
// tests y para la herramienta offline.
func Encrypt(key, plain []byte) (string, error) {
	if len(key) != keyLength {
		return "", fmt.Errorf("payload: clave de %d bytes (requiere %d)", len(key), keyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := aesgcm.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el plano.
// Cualquier alteración del ciphertext falla por la autenticación GCM.
func Decrypt(key []byte, blob string) ([]byte, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("payload: clave de %d bytes (requiere %d)", len(key), keyLength)
	}
	parts := strings.Split(strings.TrimSpace(blob), sep)
	if len(parts) != 2 {
		return nil, errors.New("payload: formato inválido, esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return nil, fmt.Errorf("nonce de %d bytes (esperado %d)", len(nonce), nonceSizeGCM)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return pt, nil
}

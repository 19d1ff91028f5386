// Package captcha habla con el verificador de captcha upstream
// (siteverify). El proof es single-use del lado de Google: un reintento
// con el mismo proof siempre falla, por eso el caller distingue
// "rechazado" de "upstream caído".
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL es el endpoint estándar de reCAPTCHA.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier valida un proof contra el servicio upstream.
type Verifier interface {
	// Verify devuelve (true, nil) si el captcha pasó, (false, nil) si el
	// upstream lo rechazó, y (false, err) ante fallo de transporte.
	Verify(ctx context.Context, response string) (bool, error)
}

// HTTPVerifier es la implementación real sobre HTTPS POST.
type HTTPVerifier struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewHTTPVerifier crea un verifier con timeout acotado.
func NewHTTPVerifier(verifyURL, secret string) *HTTPVerifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &HTTPVerifier{
		URL:    verifyURL,
		Secret: secret,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, response string) (bool, error) {
	form := url.Values{
		"secret":   {v.Secret},
		"response": {response},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha: siteverify status=%d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("captcha: decode response: %w", err)
	}
	return body.Success, nil
}

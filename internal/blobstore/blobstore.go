// Package blobstore lee payloads del paste service externo.
//
// El write path no existe acá: lo hace la página de verificación
// estática. Este lado sólo hace GET por reference id.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL es el paste service que usa la página de verificación.
const DefaultBaseURL = "https://bytebin.lucko.me/"

// Client obtiene un blob por su reference id.
type Client interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// HTTPClient es la implementación real.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPClient crea un client con timeout acotado.
func NewHTTPClient(baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, id string) ([]byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + "/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blobstore: fetch %s status=%d", id, resp.StatusCode)
	}
	// los blobs son chicos (claim + proof); 64 KiB alcanza de sobra
	return io.ReadAll(io.LimitReader(resp.Body, 64<<10))
}

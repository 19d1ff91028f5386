// Package httpserver expone la superficie HTTP del gate: el webhook de
// updates (modo webhook), /healthz y /metrics.
package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/verigate/internal/gate"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
)

// New arma el router. webhookToken autentica el path del webhook; en
// modo polling puede ser "" y la ruta no se registra.
func New(g *gate.Gate, webhookToken string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(withLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	if webhookToken != "" {
		r.Post("/webhook/{token}", webhookHandler(g, webhookToken))
	}
	return r
}

// webhookHandler recibe updates de la plataforma. El token en el path
// es el secreto compartido: sin match, 404 seco.
func webhookHandler(g *gate.Gate, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := chi.URLParam(r, "token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.NotFound(w, r)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		// el dispatch corre en su propia goroutine; acá respondemos ya
		g.HandleUpdate(update)
		w.WriteHeader(http.StatusOK)
	}
}

// statusRecorder captura status y bytes de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// withLogging registra cada request con campos estructurados.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		// ojo: no loguear el path crudo, el del webhook lleva el token
		logger.L().Debug("request completed",
			logger.Op(r.Method),
			logger.Duration(time.Since(start)),
		)
	})
}

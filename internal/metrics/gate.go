package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del flujo de verificación. Viven en un package
// standalone para evitar ciclos entre gate, verify y HTTP.

var (
	ClaimsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_claims_issued_total",
		Help: "Claims emitidos, por tipo (join|invite)",
	}, []string{"kind"})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_verifications_total",
		Help: "Resultados terminales de verificación, por outcome",
	}, []string{"outcome"})

	VerifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verigate_verification_seconds",
		Help:    "Segundos entre emisión del claim y verificación exitosa",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	DroppedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verigate_rate_limited_total",
		Help: "Requests descartados por anti-flood",
	})
)

// Register registra las métricas del gate en el registry dado (o el
// default si es nil). Tolera doble registro para facilitar tests.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{ClaimsIssued, Verifications, VerifyLatency, DroppedRequests} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadswiper"

// Claims counts claim outcomes observed by a claims manager.
type Claims struct {
	Acquired    prometheus.Counter
	Contended   prometheus.Counter
	Renewed     prometheus.Counter
	Released    prometheus.Counter
	StoreErrors *prometheus.CounterVec
}

// NewClaims builds claim collectors registered on reg. A nil reg yields
// unregistered collectors.
func NewClaims(reg prometheus.Registerer) *Claims {
	factory := promauto.With(reg)
	return &Claims{
		Acquired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "acquired_total",
			Help:      "Leads successfully claimed.",
		}),
		Contended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "contended_total",
			Help:      "Claim attempts lost to another worker.",
		}),
		Renewed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "renewed_total",
			Help:      "Claims whose lease was refreshed.",
		}),
		Released: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "released_total",
			Help:      "Claims explicitly released.",
		}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "store_errors_total",
			Help:      "Lease store failures swallowed by the claims manager.",
		}, []string{"op"}),
	}
}

// HTTP tracks gateway requests by route and status code.
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTP builds gateway collectors registered on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway requests by route and status code.",
		}, []string{"route", "code"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Instrument wraps next, recording the outcome under route.
func (h *HTTP) Instrument(route string, next http.Handler) http.Handler {
	if h == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		h.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

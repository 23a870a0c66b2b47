package middleware

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/searchktools/archive-server/core/http"
)

// Metrics records request counts and latencies in Prometheus.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the request collectors on reg. Collectors already
// registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Requests served, by method and status code.",
	}, []string{"method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Time from parsed request to response, by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Before(req *http.Request) {
	MarkStart(req)
}

func (m *Metrics) After(req *http.Request, res *http.Response) *http.Response {
	m.observe(req, res)
	return res
}

// Rejected counts a request that failed extraction.
func (m *Metrics) Rejected(req *http.Request, res *http.Response) {
	m.observe(req, res)
}

func (m *Metrics) observe(req *http.Request, res *http.Response) {
	method := req.Method.String()
	m.requests.WithLabelValues(method, strconv.Itoa(res.Status)).Inc()
	m.duration.WithLabelValues(method).Observe(Elapsed(req).Seconds())
}

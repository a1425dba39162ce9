package metrics

import (
	"time"

	"github.com/Cypherspark/devops-app/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service collectors. It implements core.Observer.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StatusProbe     *prometheus.CounterVec
	IntakePersist   *prometheus.CounterVec
	SchemaBootstrap *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
			[]string{"handler", "method", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
			},
			[]string{"handler", "method"},
		),
		StatusProbe: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "status_probe_total", Help: "Datastore probe results."},
			[]string{"database"}, // connected | disconnected
		),
		IntakePersist: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intake_persist_total", Help: "Best-effort intake writes."},
			[]string{"result", "fault"}, // ok | failed
		),
		SchemaBootstrap: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "schema_bootstrap_total", Help: "Schema bootstrap attempts."},
			[]string{"result", "fault"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "intake_rate_limited_total", Help: "Intake requests rejected by the rate limiter."},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration,
		m.StatusProbe, m.IntakePersist, m.SchemaBootstrap, m.RateLimited,
	)
	return m
}

func (m *Metrics) Probed(state core.DatabaseState) {
	m.StatusProbe.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) Persisted(se core.SideEffect) {
	m.IntakePersist.WithLabelValues(result(se), se.Fault).Inc()
}

func (m *Metrics) Bootstrapped(se core.SideEffect) {
	m.SchemaBootstrap.WithLabelValues(result(se), se.Fault).Inc()
}

func result(se core.SideEffect) string {
	if se.Failed() {
		return "failed"
	}
	return "ok"
}

// PGXPoolStats exports pgxpool statistics on a ticker.
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns          prometheus.Gauge
	idle           prometheus.Gauge
	acquired       prometheus.Gauge
	maxConns       prometheus.Gauge
	acquireCount   prometheus.Counter
	acquireLatency prometheus.Counter

	lastAcquires int64
	lastLatency  time.Duration
}

func NewPGXPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquired_conns", Help: "Connections currently borrowed.",
		}),
		maxConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_max_conns", Help: "Pool size ceiling.",
		}),
		acquireCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_acquires_total", Help: "Total pool acquires.",
		}),
		acquireLatency: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_acquire_seconds_total", Help: "Sum of acquire latencies.",
		}),
	}
	reg.MustRegister(m.conns, m.idle, m.acquired, m.maxConns, m.acquireCount, m.acquireLatency)
	return m
}

// Collect takes one snapshot. pgxpool counters are cumulative, so only the
// delta since the previous snapshot is added.
func (m *PGXPoolStats) Collect() {
	s := m.pool.Stat()
	m.conns.Set(float64(s.TotalConns()))
	m.idle.Set(float64(s.IdleConns()))
	m.acquired.Set(float64(s.AcquiredConns()))
	m.maxConns.Set(float64(s.MaxConns()))

	if d := s.AcquireCount() - m.lastAcquires; d > 0 {
		m.acquireCount.Add(float64(d))
	}
	if d := s.AcquireDuration() - m.lastLatency; d > 0 {
		m.acquireLatency.Add(d.Seconds())
	}
	m.lastAcquires = s.AcquireCount()
	m.lastLatency = s.AcquireDuration()
}

// Start collects every interval until stop is closed.
func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	m.Collect()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.Collect()
		}
	}
}

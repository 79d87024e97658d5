// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/bingoserver/logger"
)

type Metrics struct {
	OnlinePlayers      prometheus.Gauge
	ActiveRooms        prometheus.Gauge
	MessagesReceived   prometheus.Counter
	MessageLatency     prometheus.Histogram
	RejectedEvents     *prometheus.CounterVec
	DroppedSubscribers prometheus.Counter
	NumbersCalled      prometheus.Counter
	WinsClaimed        prometheus.Counter
	RoundsFinished     prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected websocket sessions",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms in the registry",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client events received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Event processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		RejectedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_events_total",
			Help:      "Client events rejected, by error code",
		}, []string{"code"}),
		DroppedSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_subscribers_total",
			Help:      "Sessions dropped because they could not keep up with broadcasts",
		}),
		NumbersCalled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "numbers_called_total",
			Help:      "Numbers called across all rounds",
		}),
		WinsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wins_claimed_total",
			Help:      "Accepted win claims",
		}),
		RoundsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finished_total",
			Help:      "Rounds that reached finished",
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.RejectedEvents,
		m.DroppedSubscribers,
		m.NumbersCalled,
		m.WinsClaimed,
		m.RoundsFinished,
	)

	return m
}

var publishOnce sync.Once

type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	server       *http.Server
}

// NewMonitor uses a private registry so several monitors can coexist in
// one process.
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// StartServer serves the metrics endpoints on addr in the background.
// An empty addr disables it.
func (m *Monitor) StartServer(addr string) {
	if addr == "" {
		return
	}
	m.server = &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Log.Infof("Metrics server listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("Metrics server error: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncRejected(code string) {
	m.metrics.RejectedEvents.WithLabelValues(code).Inc()
}

func (m *Monitor) IncDroppedSubscribers() {
	m.metrics.DroppedSubscribers.Inc()
}

func (m *Monitor) IncNumbersCalled() {
	m.metrics.NumbersCalled.Inc()
}

func (m *Monitor) IncWinsClaimed() {
	m.metrics.WinsClaimed.Inc()
}

func (m *Monitor) IncRoundsFinished() {
	m.metrics.RoundsFinished.Inc()
}

// Requests returns the number of events counted so far.
func (m *Monitor) Requests() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

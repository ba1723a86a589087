// Package metrics exposes relay activity as Prometheus metrics.
//
// The collector is fed from the event bus so the relay itself stays free of
// instrumentation calls.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"birdrelay/internal/eventbus"
	"birdrelay/internal/relay"
	logx "birdrelay/pkg/logx"
)

const namespace = "birdrelay"

type Collector struct {
	reg *prometheus.Registry
	log logx.Logger

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionsRejected *prometheus.CounterVec
	fetchFailures    *prometheus.CounterVec
	postsDelivered   prometheus.Counter
	postsFailed      prometheus.Counter
	postsSelected    prometheus.Counter
	sessionActive    prometheus.Gauge
	sessionDuration  prometheus.Observer

	startedAt time.Time
}

// New registers the relay metrics (plus Go and process collectors) on a
// private registry.
func New(log logx.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		log: log,
		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_started_total", Help: "Scrape sessions started.",
		}, []string{"mode"}),
		sessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_finished_total", Help: "Scrape sessions finished, by outcome.",
		}, []string{"mode", "outcome"}),
		sessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_rejected_total", Help: "Scrape requests refused by the guard.",
		}, []string{"reason"}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_failures_total", Help: "Post selections that failed.",
		}, []string{"mode", "reason"}),
		postsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "posts_delivered_total", Help: "Posts relayed into the scrape chat.",
		}),
		postsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "posts_failed_total", Help: "Posts that could not be relayed.",
		}),
		postsSelected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "posts_selected_total", Help: "Relayed posts promoted into the select chat.",
		}),
		sessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_active", Help: "1 while a scrape session is running.",
		}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "session_duration_seconds", Help: "Wall time of finished sessions.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
	}
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// Observe records a single event. Run calls it from one goroutine.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.SessionStarted:
		c.sessionsStarted.WithLabelValues(e.Mode).Inc()
		c.sessionActive.Set(1)
		c.startedAt = e.Time
	case eventbus.SessionFinished:
		c.sessionActive.Set(0)
		outcome := "completed"
		if rep, ok := e.Data.(relay.Report); ok && rep.Stopped {
			outcome = "stopped"
		}
		c.sessionsFinished.WithLabelValues(e.Mode, outcome).Inc()
		if !c.startedAt.IsZero() && !e.Time.Before(c.startedAt) {
			c.sessionDuration.Observe(e.Time.Sub(c.startedAt).Seconds())
		}
		c.startedAt = time.Time{}
	case eventbus.SessionRejected:
		c.sessionsRejected.WithLabelValues(e.Reason).Inc()
	case eventbus.FetchFailed:
		c.fetchFailures.WithLabelValues(e.Mode, e.Reason).Inc()
	case eventbus.PostDelivered:
		c.postsDelivered.Inc()
	case eventbus.PostFailed:
		c.postsFailed.Inc()
	case eventbus.PostSelected:
		c.postsSelected.Inc()
	default:
		c.log.Debug("metrics: unknown event", logx.String("type", e.Type))
	}
}

// Package metrics exposes spoolq queue activity as Prometheus metrics.
//
// A Registry owns its own prometheus.Registry (never the global default), so
// tests and embedding programs can create as many as they like. It
// implements queue.Observer; pass it to queue.WithObserver to count pushes,
// pulls, scans and failures per queue.
//
// # Metric families
//
//	spoolq_messages_pushed_total{queue}    counter
//	spoolq_messages_pulled_total{queue}    counter
//	spoolq_messages_corrupt_total{queue}   counter
//	spoolq_messages_vanished_total{queue}  counter
//	spoolq_errors_total{queue,kind}        counter
//	spoolq_scan_files{queue}               histogram
//	spoolq_queue_depth{queue}              gauge (live directory count)
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snehjoshi/spoolq/internal/types"
)

const namespace = "spoolq"

// Sizer is the part of *queue.Queue the depth gauge needs.
type Sizer interface {
	Name() string
	QueueSize(priorities ...int) (int, bool)
}

// Registry holds all spoolq metrics.
type Registry struct {
	reg *prometheus.Registry

	pushed   *prometheus.CounterVec
	pulled   *prometheus.CounterVec
	corrupt  *prometheus.CounterVec
	vanished *prometheus.CounterVec
	errors   *prometheus.CounterVec
	scan     *prometheus.HistogramVec
	depth    *depthCollector
}

// New creates a Registry with every spoolq family registered. When runtime
// is true the Go runtime and process collectors are registered too.
func New(runtime bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_pushed_total",
			Help:      "Total messages written to the queue directory",
		}, []string{"queue"}),
		pulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_pulled_total",
			Help:      "Total messages read and returned by Pull",
		}, []string{"queue"}),
		corrupt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_corrupt_total",
			Help:      "Total message files that failed envelope decoding",
		}, []string{"queue"}),
		vanished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_vanished_total",
			Help:      "Total message files claimed by another consumer between scan and read",
		}, []string{"queue"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total queue operation failures by error kind",
		}, []string{"queue", "kind"}),
		scan: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_files",
			Help:      "Number of matching files found per directory scan",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"queue"}),
		depth: &depthCollector{
			desc: prometheus.NewDesc(
				prometheus.BuildFQName(namespace, "", "queue_depth"),
				"Message files currently in the queue directory",
				[]string{"queue"}, nil,
			),
			queues: make(map[string]Sizer),
		},
	}
	r.reg.MustRegister(r.pushed, r.pulled, r.corrupt, r.vanished, r.errors, r.scan, r.depth)
	if runtime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Track adds q to the depth gauge. Tracking the same name twice replaces
// the earlier queue.
func (r *Registry) Track(q Sizer) {
	r.depth.mu.Lock()
	r.depth.queues[q.Name()] = q
	r.depth.mu.Unlock()
}

// ─── queue.Observer ───────────────────────────────────────────────────────────

func (r *Registry) Pushed(queue string)   { r.pushed.WithLabelValues(queue).Inc() }
func (r *Registry) Pulled(queue string)   { r.pulled.WithLabelValues(queue).Inc() }
func (r *Registry) Corrupt(queue string)  { r.corrupt.WithLabelValues(queue).Inc() }
func (r *Registry) Vanished(queue string) { r.vanished.WithLabelValues(queue).Inc() }

func (r *Registry) Scanned(queue string, files int) {
	r.scan.WithLabelValues(queue).Observe(float64(files))
}

func (r *Registry) Failed(queue string, kind types.Kind) {
	r.errors.WithLabelValues(queue, kind.String()).Inc()
}

// ─── depth collector ──────────────────────────────────────────────────────────

// depthCollector lists each tracked queue directory at scrape time.
// Queues whose directory cannot be listed are omitted from the scrape.
type depthCollector struct {
	desc *prometheus.Desc

	mu     sync.Mutex
	queues map[string]Sizer
}

func (c *depthCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *depthCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snapshot := make([]Sizer, 0, len(c.queues))
	for _, q := range c.queues {
		snapshot = append(snapshot, q)
	}
	c.mu.Unlock()

	for _, q := range snapshot {
		n, ok := q.QueueSize()
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), q.Name())
	}
}

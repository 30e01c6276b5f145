// Package monitoring exposes the service's request, error, prediction and
// latency instrumentation plus the live stats stream.
package monitoring

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated prometheus registry with the typed
// collectors the prediction path drives. Counters only move forward;
// concurrent increments are handled by the prometheus client.
type Registry struct {
	reg *prometheus.Registry

	requests    prometheus.Counter
	errors      *prometheus.CounterVec
	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	modelLoad   *prometheus.HistogramVec

	startTime time.Time
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total prediction requests.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total failed requests by error kind.",
		}, []string{"kind"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Successful predictions by class.",
		}, []string{"class"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Prediction request latency.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		modelLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_load_duration_seconds",
			Help:    "Model artifact load time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"success"}),
		startTime: time.Now(),
	}

	r.reg.MustRegister(r.requests, r.errors, r.predictions, r.latency, r.modelLoad)
	r.reg.MustRegister(collectors.NewGoCollector())
	r.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Registry) ObserveRequest(d time.Duration) {
	r.requests.Inc()
	r.latency.Observe(d.Seconds())
}

func (r *Registry) ObserveError(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

func (r *Registry) ObservePrediction(class string) {
	r.predictions.WithLabelValues(class).Inc()
}

func (r *Registry) ObserveModelLoad(d time.Duration, success bool) {
	label := "true"
	if !success {
		label = "false"
	}
	r.modelLoad.WithLabelValues(label).Observe(d.Seconds())
}

// Handler serves the pull-based text exposition.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// LatencyBucket is one cumulative histogram bucket.
type LatencyBucket struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// Snapshot is a point-in-time view of the counters for the JSON stats
// surface. Individual counters are consistent; the set as a whole need
// not be perfectly linearizable.
type Snapshot struct {
	TotalRequests       uint64            `json:"total_requests"`
	TotalErrors         uint64            `json:"total_errors"`
	PredictionsPerClass map[string]uint64 `json:"predictions_per_class"`
	Latency             struct {
		Count   uint64          `json:"count"`
		SumSecs float64         `json:"sum_seconds"`
		Buckets []LatencyBucket `json:"buckets"`
	} `json:"latency"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Snapshot gathers the current counter values.
func (r *Registry) Snapshot() (*Snapshot, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{PredictionsPerClass: make(map[string]uint64)}
	snap.Latency.Buckets = []LatencyBucket{}
	snap.UptimeSeconds = time.Since(r.startTime).Seconds()

	for _, fam := range families {
		switch fam.GetName() {
		case "api_requests_total":
			for _, m := range fam.GetMetric() {
				snap.TotalRequests += uint64(m.GetCounter().GetValue())
			}
		case "api_errors_total":
			for _, m := range fam.GetMetric() {
				snap.TotalErrors += uint64(m.GetCounter().GetValue())
			}
		case "predictions_total":
			for _, m := range fam.GetMetric() {
				class := ""
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "class" {
						class = lp.GetValue()
					}
				}
				snap.PredictionsPerClass[class] += uint64(m.GetCounter().GetValue())
			}
		case "api_request_duration_seconds":
			for _, m := range fam.GetMetric() {
				h := m.GetHistogram()
				snap.Latency.Count += h.GetSampleCount()
				snap.Latency.SumSecs += h.GetSampleSum()
				for _, b := range h.GetBucket() {
					snap.Latency.Buckets = append(snap.Latency.Buckets, LatencyBucket{
						UpperBound: b.GetUpperBound(),
						Count:      b.GetCumulativeCount(),
					})
				}
			}
		}
	}
	return snap, nil
}

// SystemStats reports process-level runtime numbers for the stats surface.
func (r *Registry) SystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     time.Since(r.startTime).String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

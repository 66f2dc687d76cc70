// Package metrics exposes the engine's operational counters as
// Prometheus metrics, for a companion process's /metrics endpoint.
//
// Grounded on ipiton-alert-history-service's
// handlers.PrometheusAlertsMetrics shape (a struct of prometheus.Counter/
// CounterVec/Gauge fields, one constructor wiring all of them, small
// Record*/Inc* methods), generalized from HTTP request metrics to the
// engine's own domain: apply lifecycle outcomes, cache hit/miss,
// rollback count, and pipe reconnects, per the DOMAIN STACK section of
// the expanded specification. Unlike the teacher's use of the global
// default registry via promauto, each Collector owns a private
// *prometheus.Registry so that more than one bundle run (e.g. in
// tests, or a nested bundle) can hold its own collector without a
// duplicate-registration panic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector accumulates counters for one engine process (controller or
// companion). All increment methods are nil-receiver safe so a caller
// that chooses not to wire metrics can pass a nil *Collector everywhere
// a Collector is expected.
type Collector struct {
	registry *prometheus.Registry

	applyStarted    prometheus.Counter
	applyCompleted  *prometheus.CounterVec // by outcome: success, user_exit, failed, reboot_required, reboot_initiated
	rollbackTotal   prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheVerifyFail prometheus.Counter
	pipeReconnects  prometheus.Counter
	pipeAuthFailed  prometheus.Counter
	companionLaunch *prometheus.CounterVec // by result: success, failure
	overallProgress prometheus.Gauge       // last reported tick ratio, 0-100
}

// NewCollector builds a Collector with bundleID/action dimension labels
// baked into the metric names' constant labels, mirroring the teacher's
// per-endpoint dimension labels.
func NewCollector(bundleID, action string) *Collector {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"bundle_id": bundleID, "action": action}

	c := &Collector{
		registry: registry,
		applyStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_apply_started_total",
			Help:        "Total number of apply phases started.",
			ConstLabels: constLabels,
		}),
		applyCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bundleforge_apply_completed_total",
			Help:        "Total number of apply phases completed, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		rollbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_rollback_total",
			Help:        "Total number of rollback replays triggered by a failed execute or cache action.",
			ConstLabels: constLabels,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_cache_hits_total",
			Help:        "Total payload cache lookups satisfied by an already-verified local file.",
			ConstLabels: constLabels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_cache_misses_total",
			Help:        "Total payload cache lookups requiring acquisition from a source.",
			ConstLabels: constLabels,
		}),
		cacheVerifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_cache_verify_failures_total",
			Help:        "Total payload hash/size verification failures at cache_payload.",
			ConstLabels: constLabels,
		}),
		pipeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_pipe_reconnects_total",
			Help:        "Total times the controller re-dialed the companion pipe after a lost connection.",
			ConstLabels: constLabels,
		}),
		pipeAuthFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bundleforge_pipe_auth_failures_total",
			Help:        "Total handshake secret mismatches rejected before any message was processed.",
			ConstLabels: constLabels,
		}),
		companionLaunch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bundleforge_companion_launch_total",
			Help:        "Total elevated companion process launches, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		overallProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bundleforge_overall_progress_ratio",
			Help:        "Last reported overall progress ratio (ticks done / ticks total), 0-100.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		c.applyStarted, c.applyCompleted, c.rollbackTotal,
		c.cacheHits, c.cacheMisses, c.cacheVerifyFail,
		c.pipeReconnects, c.pipeAuthFailed, c.companionLaunch,
		c.overallProgress,
	)
	return c
}

// Handler returns an http.Handler serving this Collector's metrics in
// the Prometheus exposition format, for a companion process's /metrics
// endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) IncApplyStarted() {
	if c == nil {
		return
	}
	c.applyStarted.Inc()
}

// IncApplyCompleted records one apply outcome, using the same outcome
// label strings as apply.Outcome.String().
func (c *Collector) IncApplyCompleted(outcome string) {
	if c == nil {
		return
	}
	c.applyCompleted.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncRollback() {
	if c == nil {
		return
	}
	c.rollbackTotal.Inc()
}

func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) IncCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) IncCacheVerifyFailure() {
	if c == nil {
		return
	}
	c.cacheVerifyFail.Inc()
}

func (c *Collector) IncPipeReconnect() {
	if c == nil {
		return
	}
	c.pipeReconnects.Inc()
}

func (c *Collector) IncPipeAuthFailure() {
	if c == nil {
		return
	}
	c.pipeAuthFailed.Inc()
}

func (c *Collector) IncCompanionLaunch(result string) {
	if c == nil {
		return
	}
	c.companionLaunch.WithLabelValues(result).Inc()
}

// SetOverallProgress records the last reported ticksDone/ticksTotal
// ratio as a percentage, for a companion's dashboard to chart apply
// progress without scraping log lines.
func (c *Collector) SetOverallProgress(ticksDone, ticksTotal int64) {
	if c == nil || ticksTotal <= 0 {
		return
	}
	c.overallProgress.Set(100 * float64(ticksDone) / float64(ticksTotal))
}

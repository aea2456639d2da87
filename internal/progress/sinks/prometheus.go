package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/crawl-console/internal/progress"
)

// PrometheusSink exports session lifecycle and poll metrics.
type PrometheusSink struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsRunning  prometheus.Gauge
	sessionRuntime   *prometheus.HistogramVec

	pollCycles      *prometheus.CounterVec
	snapshotResults prometheus.Gauge
	snapshotBytes   prometheus.Gauge

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlctl_sessions_started_total",
			Help: "Total crawl sessions started fresh.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlctl_sessions_finished_total",
			Help: "Sessions that ended, partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawlctl_sessions_running",
			Help: "Sessions currently running.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawlctl_session_runtime_seconds",
			Help:    "Engine-reported runtime of finished sessions.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlctl_poll_cycles_total",
			Help: "Status/results poll cycles partitioned by outcome.",
		}, []string{"outcome"}),
		snapshotResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawlctl_snapshot_results",
			Help: "Results in the latest applied snapshot.",
		}),
		snapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawlctl_snapshot_bytes",
			Help: "Total content bytes in the latest applied snapshot.",
		}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsRunning,
		s.sessionRuntime,
		s.pollCycles,
		s.snapshotResults,
		s.snapshotBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageSessionStart:
		s.sessionsStarted.Inc()
		s.markRunning(evt.SessionID, true)
	case progress.StageSessionResume:
		s.markRunning(evt.SessionID, true)
	case progress.StageSessionPause:
		s.markRunning(evt.SessionID, false)
	case progress.StageSessionComplete:
		s.finish(evt, "completed")
	case progress.StageSessionTerminate:
		s.finish(evt, "terminated")
	case progress.StageSessionReset:
		s.finish(evt, "reset")
	case progress.StagePollOK:
		s.pollCycles.WithLabelValues("ok").Inc()
		s.snapshotResults.Set(float64(evt.Results))
		s.snapshotBytes.Set(float64(evt.Bytes))
	case progress.StagePollError:
		s.pollCycles.WithLabelValues("error").Inc()
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.sessionsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.markRunning(evt.SessionID, false)
}

func (s *PrometheusSink) markRunning(id string, running bool) {
	if s.tracker.set(id, running) {
		if running {
			s.sessionsRunning.Inc()
		} else {
			s.sessionsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

// set records the running flag and reports whether it changed.
func (t *sessionTracker) set(id string, running bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[id]
	switch {
	case running && !ok:
		t.running[id] = struct{}{}
		return true
	case !running && ok:
		delete(t.running, id)
		return true
	}
	return false
}

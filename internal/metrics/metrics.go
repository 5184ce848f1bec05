// Package metrics registers the hub's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "homehub_"

	resultSuccess  = "success"
	resultError    = "error"
	resultNotFound = "not_found"
)

var (
	registerOnce sync.Once

	deviceActions    *prometheus.CounterVec
	sceneRuns        *prometheus.CounterVec
	cycleEvents      *prometheus.CounterVec
	activeCycles     prometheus.Gauge
	notifications    *prometheus.CounterVec
	assistantCalls   *prometheus.CounterVec
	assistantLatency prometheus.Histogram
	wsClients        prometheus.Gauge
	wsEvictions      prometheus.Counter
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		deviceActions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_actions_total",
				Help: "Device actions by kind, action and result",
			},
			[]string{"kind", "action", "result"},
		)
		sceneRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scene_runs_total",
				Help: "Scene macro runs by scene and result",
			},
			[]string{"scene", "result"},
		)
		cycleEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "appliance_cycles_total",
				Help: "Appliance cycle transitions by kind and event (started, canceled, completed)",
			},
			[]string{"kind", "event"},
		)
		activeCycles = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "appliance_cycles_active",
				Help: "Appliance cycles currently waiting to complete",
			},
		)
		notifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notifications produced by severity",
			},
			[]string{"severity"},
		)
		assistantCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "assistant_requests_total",
				Help: "Assistant subprocess invocations by result",
			},
			[]string{"result"},
		)
		assistantLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "assistant_latency_seconds",
				Help:    "Assistant subprocess latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		)

		wsClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ws_clients",
				Help: "Connected WebSocket clients",
			},
		)
		wsEvictions = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ws_evictions_total",
				Help: "WebSocket clients dropped for not keeping up",
			},
		)

		prometheus.MustRegister(
			deviceActions,
			sceneRuns,
			cycleEvents,
			activeCycles,
			notifications,
			assistantCalls,
			assistantLatency,
			wsClients,
			wsEvictions,
		)
	})
}

// DeviceAction counts a dispatched device action. notFound marks lookups
// that failed because the room or device did not exist.
func DeviceAction(kind, action string, err error, notFound bool) {
	if deviceActions == nil {
		return
	}
	deviceActions.WithLabelValues(kind, action, result(err, notFound)).Inc()
}

// SceneRun counts a scene macro run.
func SceneRun(scene string, err error) {
	if sceneRuns == nil {
		return
	}
	sceneRuns.WithLabelValues(scene, result(err, false)).Inc()
}

// CycleEvent counts an appliance cycle transition.
func CycleEvent(kind, event string) {
	if cycleEvents == nil {
		return
	}
	cycleEvents.WithLabelValues(kind, event).Inc()
}

// SetActiveCycles records how many appliance cycles are armed.
func SetActiveCycles(n int) {
	if activeCycles == nil {
		return
	}
	activeCycles.Set(float64(n))
}

// Notification counts a produced notification.
func Notification(severity string) {
	if notifications == nil {
		return
	}
	notifications.WithLabelValues(severity).Inc()
}

// AssistantCall records one assistant invocation.
func AssistantCall(d time.Duration, err error) {
	if assistantCalls == nil {
		return
	}
	assistantCalls.WithLabelValues(result(err, false)).Inc()
	assistantLatency.Observe(d.Seconds())
}

// SetWSClients records the number of connected WebSocket clients.
func SetWSClients(n int) {
	if wsClients == nil {
		return
	}
	wsClients.Set(float64(n))
}

// WSEviction counts a slow WebSocket client being dropped.
func WSEviction() {
	if wsEvictions == nil {
		return
	}
	wsEvictions.Inc()
}

func result(err error, notFound bool) string {
	switch {
	case err == nil:
		return resultSuccess
	case notFound:
		return resultNotFound
	default:
		return resultError
	}
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	factory promauto.Factory

	// Counters
	framesReceivedTotal  prometheus.Counter
	framesBroadcastTotal prometheus.Counter
	subprocessRestarts   prometheus.Counter
	recordingRotations   prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Scrape-time gauges, registered on demand
	wsClients     prometheus.GaugeFunc
	frameAge      prometheus.GaugeFunc
	recordingSize prometheus.GaugeFunc
}

func NewPrometheusCollector() *PrometheusCollector {
	return newPrometheusCollector(prometheus.DefaultRegisterer)
}

func newPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		factory: factory,

		framesReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "camward_frames_received_total",
			Help: "Total number of preview frames read off the scratch directory",
		}),

		framesBroadcastTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "camward_frames_broadcast_total",
			Help: "Total number of preview frames served to HTTP and WebSocket viewers",
		}),

		subprocessRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "camward_subprocess_restarts_total",
			Help: "Total number of health-triggered frame extraction restarts",
		}),

		recordingRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "camward_recording_rotations_total",
			Help: "Total number of recording files finalized, size-triggered and final",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camward_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "camward_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path"}),
	}
}

func (p *PrometheusCollector) RecordFrameReceived() {
	p.framesReceivedTotal.Inc()
}

func (p *PrometheusCollector) RecordFrameBroadcast() {
	p.framesBroadcastTotal.Inc()
}

func (p *PrometheusCollector) RecordSubprocessRestart() {
	p.subprocessRestarts.Inc()
}

func (p *PrometheusCollector) RecordRecordingRotation() {
	p.recordingRotations.Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveViewerCount exports the connected WebSocket viewer count. The
// callback runs on every scrape.
func (p *PrometheusCollector) ObserveViewerCount(count func() int) {
	p.wsClients = p.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "camward_ws_clients",
		Help: "Number of connected WebSocket frame viewers",
	}, func() float64 {
		return float64(count())
	})
}

// ObserveFrameAge exports the age of the newest preview frame. Zero until
// the first frame arrives.
func (p *PrometheusCollector) ObserveFrameAge(lastFrameAt func() time.Time) {
	p.frameAge = p.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "camward_frame_age_seconds",
		Help: "Seconds since the last preview frame was read",
	}, func() float64 {
		last := lastFrameAt()
		if last.IsZero() {
			return 0
		}
		return time.Since(last).Seconds()
	})
}

// ObserveRecordingSize exports the size of the recording file currently
// being written, zero when no recording is active.
func (p *PrometheusCollector) ObserveRecordingSize(size func() int64) {
	p.recordingSize = p.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "camward_recording_file_bytes",
		Help: "Size of the active recording file in bytes",
	}, func() float64 {
		return float64(size())
	})
}

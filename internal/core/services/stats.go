package services

import (
	"sync"
	"time"

	"camward/internal/core/domain"
)

// StatsObserver mirrors counter increments into an external sink such as
// a metrics registry. Implementations must be safe for concurrent use.
type StatsObserver interface {
	RecordFrameReceived()
	RecordFrameBroadcast()
	RecordSubprocessRestart()
}

// StatsRecorder accumulates frame counters shared by the frame collector
// and the broadcast hub. The health monitor flushes it once per reporting
// window and logs the rates.
type StatsRecorder struct {
	mu              sync.Mutex
	framesReceived  uint64
	framesBroadcast uint64
	restarts        uint64
	windowStart     time.Time
	observer        StatsObserver

	now func() time.Time
}

func NewStatsRecorder() *StatsRecorder {
	r := &StatsRecorder{now: time.Now}
	r.windowStart = r.now()
	return r
}

// SetObserver attaches a sink that sees every increment. Call before the
// recorder is shared between goroutines.
func (r *StatsRecorder) SetObserver(o StatsObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// FrameReceived counts one frame read off the scratch directory.
func (r *StatsRecorder) FrameReceived() {
	r.mu.Lock()
	o := r.observer
	r.framesReceived++
	r.mu.Unlock()
	if o != nil {
		o.RecordFrameReceived()
	}
}

// FrameBroadcast counts one frame pushed to a connected viewer.
func (r *StatsRecorder) FrameBroadcast() {
	r.mu.Lock()
	o := r.observer
	r.framesBroadcast++
	r.mu.Unlock()
	if o != nil {
		o.RecordFrameBroadcast()
	}
}

// RestartRecorded counts one health-triggered subprocess restart.
func (r *StatsRecorder) RestartRecorded() {
	r.mu.Lock()
	o := r.observer
	r.restarts++
	r.mu.Unlock()
	if o != nil {
		o.RecordSubprocessRestart()
	}
}

// Snapshot returns the current window without resetting it.
func (r *StatsRecorder) Snapshot() domain.HealthStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.HealthStats{
		FramesReceived:  r.framesReceived,
		FramesBroadcast: r.framesBroadcast,
		Restarts:        r.restarts,
		WindowStart:     r.windowStart,
	}
}

// Flush returns the finished window and starts a fresh one.
func (r *StatsRecorder) Flush() domain.HealthStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := domain.HealthStats{
		FramesReceived:  r.framesReceived,
		FramesBroadcast: r.framesBroadcast,
		Restarts:        r.restarts,
		WindowStart:     r.windowStart,
	}
	r.framesReceived = 0
	r.framesBroadcast = 0
	r.restarts = 0
	r.windowStart = r.now()
	return stats
}

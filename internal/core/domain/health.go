package domain

import "time"

type HealthState string

const (
	HealthHealthy    HealthState = "healthy"
	HealthStalled    HealthState = "stalled"
	HealthRestarting HealthState = "restarting"
)

// HealthStats is a snapshot of the frame counters over one reporting
// window. Counters reset when the window is flushed.
type HealthStats struct {
	FramesReceived  uint64
	FramesBroadcast uint64
	Restarts        uint64
	WindowStart     time.Time
}

// Rates converts the counters into per-second rates over the elapsed window.
func (s HealthStats) Rates(now time.Time) (received, broadcast float64) {
	elapsed := now.Sub(s.WindowStart).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	return float64(s.FramesReceived) / elapsed, float64(s.FramesBroadcast) / elapsed
}

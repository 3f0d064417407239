package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	apperrors "camward/pkg/errors"
	"camward/pkg/utils"
)

// HealthMonitorConfig tunes stall detection for the frame source.
type HealthMonitorConfig struct {
	CheckInterval time.Duration // freshness probe cadence
	WarnAfter     time.Duration // stall age that triggers a warning
	RestartAfter  time.Duration // stall age that triggers a restart
	WarnInterval  time.Duration // minimum gap between stall warnings
	StatsInterval time.Duration // frame counter reporting window
}

// DefaultHealthMonitorConfig returns the production tuning.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 5 * time.Second,
		WarnAfter:     10 * time.Second,
		RestartAfter:  30 * time.Second,
		WarnInterval:  time.Minute,
		StatsInterval: time.Minute,
	}
}

// healthMonitor watches frame arrival times and escalates when they stop:
// a warning once the stream stalls past WarnAfter, a forced restart of the
// frame source past RestartAfter. Restart attempts are spaced at least
// RestartAfter apart, so a camera that stays down gets retried indefinitely
// without being hammered.
//
// It also owns the periodic stats flush, logging frame rates once per
// reporting window.
type healthMonitor struct {
	cfg    HealthMonitorConfig
	source ports.FrameSource
	stats  *StatsRecorder
	logger *zap.SugaredLogger

	now func() time.Time

	mu            sync.Mutex
	running       bool
	state         domain.HealthState
	lastWarnAt    time.Time
	lastRestartAt time.Time
	stopCh        chan struct{}
	loopDone      chan struct{}
}

func NewHealthMonitor(
	cfg HealthMonitorConfig,
	source ports.FrameSource,
	stats *StatsRecorder,
	logger *zap.SugaredLogger,
) ports.HealthMonitor {
	return &healthMonitor{
		cfg:    cfg,
		source: source,
		stats:  stats,
		logger: logger,
		now:    time.Now,
		state:  domain.HealthHealthy,
	}
}

func (m *healthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.state = domain.HealthHealthy
	stopCh := make(chan struct{})
	done := make(chan struct{})
	m.stopCh = stopCh
	m.loopDone = done
	m.mu.Unlock()

	go m.run(ctx, stopCh, done)
	m.logger.Infow("health monitor started",
		"check_interval", m.cfg.CheckInterval,
		"warn_after", m.cfg.WarnAfter,
		"restart_after", m.cfg.RestartAfter,
	)
}

func (m *healthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh := m.stopCh
	done := m.loopDone
	m.mu.Unlock()

	close(stopCh)
	<-done
	m.logger.Infow("health monitor stopped")
}

func (m *healthMonitor) State() domain.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *healthMonitor) Stats() domain.HealthStats {
	return m.stats.Snapshot()
}

func (m *healthMonitor) run(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	check := time.NewTicker(m.cfg.CheckInterval)
	defer check.Stop()
	flush := time.NewTicker(m.cfg.StatsInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-check.C:
			m.checkOnce(ctx)
		case <-flush.C:
			m.flushStats()
		}
	}
}

// checkOnce classifies the stall age of the frame source and escalates.
func (m *healthMonitor) checkOnce(ctx context.Context) {
	last := m.source.LastFrameAt()
	if last.IsZero() {
		// Source has not started producing yet; nothing to judge
		return
	}

	now := m.now()
	age := now.Sub(last)

	if age < m.cfg.WarnAfter {
		m.mu.Lock()
		m.state = domain.HealthHealthy
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	lastRestartAt := m.lastRestartAt
	m.mu.Unlock()

	if age >= m.cfg.RestartAfter && now.Sub(lastRestartAt) >= m.cfg.RestartAfter {
		m.restartSource(ctx, age)
		return
	}

	m.warnStalled(now, age)
}

// restartSource force-restarts the frame source. The restart timestamp is
// recorded before the attempt so a failing restart cannot tighten the loop.
func (m *healthMonitor) restartSource(ctx context.Context, age time.Duration) {
	m.mu.Lock()
	m.state = domain.HealthRestarting
	m.lastRestartAt = m.now()
	m.mu.Unlock()

	m.logger.Errorw("frame source stalled, restarting subprocess",
		"stalled_for", utils.FormatDuration(age),
		"pid_alive", m.source.Alive(),
	)
	m.stats.RestartRecorded()

	if err := m.source.Restart(ctx); err != nil {
		m.logger.Errorw("frame source restart failed", "error", err)
		m.mu.Lock()
		m.state = domain.HealthStalled
		m.mu.Unlock()
	}
}

// warnStalled logs the stall at most once per WarnInterval.
func (m *healthMonitor) warnStalled(now time.Time, age time.Duration) {
	m.mu.Lock()
	m.state = domain.HealthStalled
	shouldWarn := now.Sub(m.lastWarnAt) >= m.cfg.WarnInterval
	if shouldWarn {
		m.lastWarnAt = now
	}
	m.mu.Unlock()

	if shouldWarn {
		m.logger.Warnw("frame source stalled",
			"error", apperrors.NewSubprocessStalledError(utils.FormatDuration(age)),
		)
	}
}

// flushStats closes the reporting window and logs the frame rates.
func (m *healthMonitor) flushStats() {
	window := m.stats.Flush()
	now := m.now()
	received, broadcast := window.Rates(now)
	m.logger.Infow("frame stats",
		"received", window.FramesReceived,
		"broadcast", window.FramesBroadcast,
		"restarts", window.Restarts,
		"received_per_sec", received,
		"broadcast_per_sec", broadcast,
		"window", utils.FormatDuration(now.Sub(window.WindowStart)),
	)
}

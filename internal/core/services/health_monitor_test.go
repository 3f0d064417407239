package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"camward/internal/core/domain"
)

func testMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 5 * time.Second,
		WarnAfter:     10 * time.Second,
		RestartAfter:  30 * time.Second,
		WarnInterval:  time.Minute,
		StatsInterval: time.Minute,
	}
}

func newTestMonitor(t *testing.T, cfg HealthMonitorConfig, src *fakeSource, stats *StatsRecorder) *healthMonitor {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	m := NewHealthMonitor(cfg, src, stats, logger)
	hm, ok := m.(*healthMonitor)
	if !ok {
		t.Fatalf("unexpected monitor type %T", m)
	}
	return hm
}

func TestHealthMonitor_HealthyWhileFramesArrive(t *testing.T) {
	base := time.Now()
	src := &fakeSource{alive: true, lastFrame: base}
	m := newTestMonitor(t, testMonitorConfig(), src, NewStatsRecorder())
	m.now = func() time.Time { return base.Add(5 * time.Second) }

	m.checkOnce(context.Background())

	if got := m.State(); got != domain.HealthHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
	if src.restartCount() != 0 {
		t.Errorf("expected no restarts, got %d", src.restartCount())
	}
}

func TestHealthMonitor_WarnsOnStallWithRateLimit(t *testing.T) {
	base := time.Now()
	src := &fakeSource{alive: true, lastFrame: base}
	m := newTestMonitor(t, testMonitorConfig(), src, NewStatsRecorder())

	now := base.Add(15 * time.Second)
	m.now = func() time.Time { return now }

	m.checkOnce(context.Background())
	if got := m.State(); got != domain.HealthStalled {
		t.Errorf("expected stalled, got %s", got)
	}
	if src.restartCount() != 0 {
		t.Errorf("expected no restart below the restart threshold, got %d", src.restartCount())
	}
	firstWarn := m.lastWarnAt
	if !firstWarn.Equal(now) {
		t.Fatalf("expected a warning at %v, got %v", now, firstWarn)
	}

	// Still stalled five seconds later: the warning is rate limited
	now = base.Add(20 * time.Second)
	m.checkOnce(context.Background())
	if !m.lastWarnAt.Equal(firstWarn) {
		t.Error("expected repeated warning to be suppressed")
	}

	// Frames resume, then stall again past the warn interval
	src.setLastFrame(base.Add(70 * time.Second))
	now = base.Add(76 * time.Second)
	m.checkOnce(context.Background())
	if got := m.State(); got != domain.HealthHealthy {
		t.Errorf("expected recovery to healthy, got %s", got)
	}

	now = base.Add(85 * time.Second)
	m.checkOnce(context.Background())
	if !m.lastWarnAt.Equal(now) {
		t.Error("expected a fresh warning once the rate limit window passed")
	}
}

func TestHealthMonitor_RestartsStalledSource(t *testing.T) {
	base := time.Now()
	src := &fakeSource{alive: true, lastFrame: base}
	stats := NewStatsRecorder()
	m := newTestMonitor(t, testMonitorConfig(), src, stats)

	now := base.Add(31 * time.Second)
	m.now = func() time.Time { return now }

	m.checkOnce(context.Background())

	if src.restartCount() != 1 {
		t.Fatalf("expected 1 restart, got %d", src.restartCount())
	}
	if got := m.State(); got != domain.HealthRestarting {
		t.Errorf("expected restarting, got %s", got)
	}
	if got := stats.Snapshot().Restarts; got != 1 {
		t.Errorf("expected restart counted, got %d", got)
	}

	// Frames resume after the restart
	src.setLastFrame(base.Add(32 * time.Second))
	now = base.Add(33 * time.Second)
	m.checkOnce(context.Background())
	if got := m.State(); got != domain.HealthHealthy {
		t.Errorf("expected healthy after recovery, got %s", got)
	}
}

func TestHealthMonitor_SpacesRestartAttempts(t *testing.T) {
	base := time.Now()
	src := &fakeSource{alive: true, lastFrame: base}
	m := newTestMonitor(t, testMonitorConfig(), src, NewStatsRecorder())

	now := base.Add(31 * time.Second)
	m.now = func() time.Time { return now }
	m.checkOnce(context.Background())
	if src.restartCount() != 1 {
		t.Fatalf("expected first restart, got %d", src.restartCount())
	}

	// Shortly after a restart the stall persists but no second restart fires
	now = base.Add(36 * time.Second)
	m.checkOnce(context.Background())
	if src.restartCount() != 1 {
		t.Errorf("expected restart attempts to be spaced out, got %d", src.restartCount())
	}

	// A camera that stays down keeps getting retried
	now = base.Add(62 * time.Second)
	m.checkOnce(context.Background())
	if src.restartCount() != 2 {
		t.Errorf("expected second restart after spacing elapsed, got %d", src.restartCount())
	}

	now = base.Add(93 * time.Second)
	m.checkOnce(context.Background())
	if src.restartCount() != 3 {
		t.Errorf("expected third restart, got %d", src.restartCount())
	}
}

func TestHealthMonitor_RestartFailureLeavesStalled(t *testing.T) {
	base := time.Now()
	src := &fakeSource{alive: true, lastFrame: base, restartErr: errors.New("relaunch failed")}
	stats := NewStatsRecorder()
	m := newTestMonitor(t, testMonitorConfig(), src, stats)
	m.now = func() time.Time { return base.Add(31 * time.Second) }

	m.checkOnce(context.Background())

	if src.restartCount() != 1 {
		t.Fatalf("expected restart attempt, got %d", src.restartCount())
	}
	if got := m.State(); got != domain.HealthStalled {
		t.Errorf("expected stalled after failed restart, got %s", got)
	}
	if got := stats.Snapshot().Restarts; got != 1 {
		t.Errorf("expected attempt counted, got %d", got)
	}
}

func TestHealthMonitor_IgnoresIdleSource(t *testing.T) {
	src := &fakeSource{}
	m := newTestMonitor(t, testMonitorConfig(), src, NewStatsRecorder())

	m.checkOnce(context.Background())

	if got := m.State(); got != domain.HealthHealthy {
		t.Errorf("expected healthy for idle source, got %s", got)
	}
	if src.restartCount() != 0 {
		t.Errorf("expected no restarts, got %d", src.restartCount())
	}
}

func TestHealthMonitor_LoopFlushesStats(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.CheckInterval = 5 * time.Millisecond
	cfg.StatsInterval = 10 * time.Millisecond
	cfg.WarnAfter = time.Hour
	cfg.RestartAfter = 2 * time.Hour

	src := &fakeSource{alive: true, lastFrame: time.Now()}
	stats := NewStatsRecorder()
	stats.FrameReceived()
	stats.FrameReceived()
	stats.FrameBroadcast()

	m := newTestMonitor(t, cfg, src, stats)
	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op

	time.Sleep(50 * time.Millisecond)
	m.Stop()
	m.Stop() // second stop is a no-op

	snap := stats.Snapshot()
	if snap.FramesReceived != 0 || snap.FramesBroadcast != 0 {
		t.Errorf("expected counters flushed, got %+v", snap)
	}
	if got := m.Stats(); got.FramesReceived != 0 {
		t.Errorf("expected stats accessor to see flushed window, got %+v", got)
	}
}

func TestDefaultHealthMonitorConfig(t *testing.T) {
	cfg := DefaultHealthMonitorConfig()
	if cfg.CheckInterval != 5*time.Second {
		t.Errorf("unexpected check interval %v", cfg.CheckInterval)
	}
	if cfg.WarnAfter != 10*time.Second {
		t.Errorf("unexpected warn threshold %v", cfg.WarnAfter)
	}
	if cfg.RestartAfter != 30*time.Second {
		t.Errorf("unexpected restart threshold %v", cfg.RestartAfter)
	}
	if cfg.WarnInterval != time.Minute {
		t.Errorf("unexpected warn interval %v", cfg.WarnInterval)
	}
	if cfg.StatsInterval != time.Minute {
		t.Errorf("unexpected stats interval %v", cfg.StatsInterval)
	}
}

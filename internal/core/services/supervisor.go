package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/pkg/tracing"
	"camward/pkg/utils"
)

// streamSupervisor is the facade the web layer calls into. It owns one
// frame collector, one recording session and one health monitor, and runs
// them through the phase machine Idle -> Starting -> Running -> Stopping.
//
// Two locks with distinct roles: opMu serializes the lifecycle verbs and
// is held across their blocking work, so a Stop that lands mid-startup
// waits for the phase to settle. mu guards the snapshot state (phase,
// session id) and is never held across blocking calls.
type streamSupervisor struct {
	target    domain.StreamTarget
	launcher  ports.ProcessLauncher
	builder   ports.CommandBuilder
	collector ports.FrameSource
	recorder  ports.Recorder
	monitor   ports.HealthMonitor
	stats     *StatsRecorder
	logger    *zap.SugaredLogger

	now func() time.Time

	opMu sync.Mutex

	mu        sync.Mutex
	phase     domain.SupervisorPhase
	sessionID string
}

func NewStreamSupervisor(
	target domain.StreamTarget,
	launcher ports.ProcessLauncher,
	builder ports.CommandBuilder,
	collector ports.FrameSource,
	recorder ports.Recorder,
	monitor ports.HealthMonitor,
	stats *StatsRecorder,
	logger *zap.SugaredLogger,
) ports.Supervisor {
	return &streamSupervisor{
		target:    target,
		launcher:  launcher,
		builder:   builder,
		collector: collector,
		recorder:  recorder,
		monitor:   monitor,
		stats:     stats,
		logger:    logger,
		now:       time.Now,
		phase:     domain.PhaseIdle,
	}
}

func (s *streamSupervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Phase() != domain.PhaseIdle {
		return domain.ErrAlreadyStreaming
	}
	s.setPhase(domain.PhaseStarting)

	sessionID := utils.GenerateSessionID()
	ctx, span := tracing.TraceSupervisorOperation(ctx, "stream_start", sessionID)
	defer span.End()
	defer tracing.MeasureDuration(ctx, s.now(), "stream_start")

	if err := s.launcher.CheckTool(s.builder.Tool()); err != nil {
		s.setPhase(domain.PhaseIdle)
		return fmt.Errorf("tool check failed: %w", err)
	}

	if err := s.collector.Start(ctx); err != nil {
		s.setPhase(domain.PhaseIdle)
		return fmt.Errorf("failed to start frame collection: %w", err)
	}

	s.monitor.Start(ctx)

	s.mu.Lock()
	s.sessionID = sessionID
	s.mu.Unlock()
	s.setPhase(domain.PhaseRunning)

	s.logger.Infow("stream supervision started",
		"session_id", sessionID,
		"target", s.target.Redacted(),
		"tool", s.builder.Tool(),
	)
	return nil
}

// Stop tears everything down in dependency order: the health monitor first
// so no restart fires mid-teardown, then the recording session, then the
// frame collector. Stopping an idle supervisor is a no-op.
func (s *streamSupervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Phase() == domain.PhaseIdle {
		return nil
	}
	s.setPhase(domain.PhaseStopping)

	s.monitor.Stop()

	if s.recorder.Active() {
		if err := s.recorder.Stop(); err != nil && !errors.Is(err, domain.ErrNotRecording) {
			s.logger.Warnw("failed to stop recording during shutdown", "error", err)
		}
	}

	s.collector.Stop()

	s.mu.Lock()
	sessionID := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()
	s.setPhase(domain.PhaseIdle)

	s.logger.Infow("stream supervision stopped", "session_id", sessionID)
	return nil
}

// StartRecording requires a running stream.
func (s *streamSupervisor) StartRecording(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Phase() != domain.PhaseRunning {
		return domain.ErrNotStreaming
	}

	ctx, span := tracing.TraceSupervisorOperation(ctx, "recording_start", s.currentSessionID())
	defer span.End()

	if err := s.recorder.Start(ctx); err != nil {
		return err
	}
	s.logger.Infow("recording started", "session_id", s.currentSessionID())
	return nil
}

// StopRecording is idempotent: stopping when no recording is active
// succeeds, since the requested outcome already holds.
func (s *streamSupervisor) StopRecording() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.recorder.Stop(); err != nil {
		if errors.Is(err, domain.ErrNotRecording) {
			return nil
		}
		return err
	}
	s.logger.Infow("recording stopped", "session_id", s.currentSessionID())
	return nil
}

func (s *streamSupervisor) Status() domain.StreamStatus {
	if s.Phase() != domain.PhaseRunning {
		return domain.StreamStatus{}
	}
	return domain.StreamStatus{
		Streaming: true,
		Recording: s.recorder.Active(),
		Connected: s.collector.Alive(),
	}
}

// CurrentFrame forwards the freshness-gated latest frame and counts the
// serve as a broadcast.
func (s *streamSupervisor) CurrentFrame() (*domain.FrameArtifact, error) {
	frame, ok := s.collector.Latest()
	if !ok {
		return nil, domain.ErrNoFrame
	}
	s.stats.FrameBroadcast()
	return frame, nil
}

func (s *streamSupervisor) Phase() domain.SupervisorPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *streamSupervisor) setPhase(phase domain.SupervisorPhase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *streamSupervisor) currentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

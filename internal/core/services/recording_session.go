package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/pkg/circuitbreaker"
	apperrors "camward/pkg/errors"
	"camward/pkg/tracing"
)

// RecordingSessionConfig tunes recording supervision and rotation.
type RecordingSessionConfig struct {
	OutputDir      string
	Extension      string
	RotateSize     int64         // rotate once the output file reaches this size
	PollInterval   time.Duration // size probe cadence
	RestartBackoff time.Duration // pause before relaunching a crashed subprocess
	HealthyRuntime time.Duration // runtime after which a launch counts as recovered
	Breaker        circuitbreaker.Config
	Shutdown       ShutdownConfig
}

// DefaultRecordingSessionConfig returns the production tuning.
func DefaultRecordingSessionConfig() RecordingSessionConfig {
	return RecordingSessionConfig{
		OutputDir:      "recordings",
		Extension:      "mp4",
		RotateSize:     10 << 20,
		PollInterval:   10 * time.Second,
		RestartBackoff: 10 * time.Second,
		HealthyRuntime: time.Minute,
		Breaker:        circuitbreaker.DefaultConfig(),
		Shutdown:       DefaultShutdownConfig(),
	}
}

// recordingSession supervises the recording subprocess and rotates its
// output file whenever the size probe crosses the rotation threshold.
// Exactly one output file is being written at any time; rotation and
// crash handling finalize it before the next segment starts.
//
// Crashed subprocesses are relaunched after a backoff, behind a circuit
// breaker: rapid crash loops pause restarts instead of hammering the
// camera.
type recordingSession struct {
	cfg        RecordingSessionConfig
	launcher   ports.ProcessLauncher
	builder    ports.CommandBuilder
	logger     *zap.SugaredLogger
	breaker    *circuitbreaker.CircuitBreaker
	onFinalize func(domain.RecordingFile)

	now func() time.Time

	mu            sync.Mutex
	active        bool
	handle        ports.ProcessHandle
	current       domain.RecordingFile
	launchedAt    time.Time
	healthyMarked bool
	stopCh        chan struct{}
	loopDone      chan struct{}
}

// NewRecordingSession builds a recorder. onFinalize, when non-nil, fires
// once per finalized output file (rotation, crash, or stop).
func NewRecordingSession(
	cfg RecordingSessionConfig,
	launcher ports.ProcessLauncher,
	builder ports.CommandBuilder,
	onFinalize func(domain.RecordingFile),
	logger *zap.SugaredLogger,
) ports.Recorder {
	return &recordingSession{
		cfg:        cfg,
		launcher:   launcher,
		builder:    builder,
		logger:     logger,
		breaker:    circuitbreaker.New(cfg.Breaker),
		onFinalize: onFinalize,
		now:        time.Now,
	}
}

func (s *recordingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return domain.ErrAlreadyRecording
	}
	s.active = true
	s.current = domain.RecordingFile{}
	s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		s.setInactive()
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := s.launchSegment(ctx); err != nil {
		s.setInactive()
		return err
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.stopCh = stopCh
	s.loopDone = done
	s.mu.Unlock()

	go s.superviseLoop(ctx, stopCh, done)

	return nil
}

func (s *recordingSession) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return domain.ErrNotRecording
	}
	s.active = false
	handle := s.handle
	stopCh, done := s.stopCh, s.loopDone
	s.handle = nil
	s.stopCh, s.loopDone = nil, nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	var stopErr error
	if handle != nil {
		tier, err := StopProcess(handle, s.cfg.Shutdown, s.logger)
		if err != nil {
			stopErr = err
			s.logger.Errorw("recording teardown failed", "error", err)
		} else {
			s.logger.Infow("recording stopped", "tier", tier)
		}
	}

	s.finalizeCurrent()
	return stopErr
}

func (s *recordingSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *recordingSession) CurrentFile() (domain.RecordingFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.current.Path == "" {
		return domain.RecordingFile{}, false
	}
	return s.current, true
}

func (s *recordingSession) setInactive() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// launchSegment starts the recording subprocess on a fresh timestamped
// output file. When a file for the current second already exists (a
// rotation or crash loop inside one second), the timestamp is advanced
// until the name is free.
func (s *recordingSession) launchSegment(ctx context.Context) error {
	ctx, span := tracing.TraceSubprocessLaunch(ctx, s.builder.Tool(), "recording")
	defer span.End()

	start := s.now()
	var path string
	for i := 0; ; i++ {
		name := domain.RecordingFileName(start.Add(time.Duration(i)*time.Second), s.cfg.Extension)
		path = filepath.Join(s.cfg.OutputDir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
	}

	handle, err := s.launcher.Launch(ctx, s.builder.Recording(path))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.current = domain.RecordingFile{Path: path, StartedAt: s.now()}
	s.launchedAt = s.now()
	s.healthyMarked = false
	s.mu.Unlock()

	s.logger.Infow("recording segment started", "path", path, "pid", handle.Pid())
	return nil
}

func (s *recordingSession) superviseLoop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.superviseOnce(ctx, stopCh) {
				return
			}
		}
	}
}

// superviseOnce runs one tick: crash recovery, breaker bookkeeping, and
// the rotation size probe. It returns false when the loop should end.
func (s *recordingSession) superviseOnce(ctx context.Context, stopCh chan struct{}) bool {
	s.mu.Lock()
	handle := s.handle
	current := s.current
	launchedAt := s.launchedAt
	healthyMarked := s.healthyMarked
	s.mu.Unlock()

	if handle == nil {
		// A previous relaunch was vetoed or failed; try again
		s.relaunch(ctx)
		return true
	}

	if !handle.Alive() {
		res, _ := handle.Wait(0)
		s.logger.Errorw("recording subprocess crashed",
			"path", current.Path,
			"error", apperrors.NewSubprocessCrashedError(res.ExitCode),
		)
		s.finalizeCurrent()
		s.breaker.RecordFailure()
		s.mu.Lock()
		s.handle = nil
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-stopCh:
			return false
		case <-time.After(s.cfg.RestartBackoff):
		}

		s.relaunch(ctx)
		return true
	}

	// A launch that stays up long enough counts as recovered
	if !healthyMarked && s.now().Sub(launchedAt) >= s.cfg.HealthyRuntime {
		s.breaker.RecordSuccess()
		s.mu.Lock()
		s.healthyMarked = true
		s.mu.Unlock()
	}

	info, err := os.Stat(current.Path)
	if err != nil {
		s.logger.Warnw("recording size probe failed",
			"error", apperrors.NewRotationIOError(err, current.Path))
		return true
	}

	s.mu.Lock()
	s.current.Size = info.Size()
	s.mu.Unlock()

	if info.Size() >= s.cfg.RotateSize {
		s.rotate(ctx)
	}
	return true
}

func (s *recordingSession) relaunch(ctx context.Context) {
	if !s.breaker.Allow() {
		s.logger.Warnw("recording restarts paused by circuit breaker",
			"resume_in", s.breaker.OpenRemaining())
		return
	}
	if err := s.launchSegment(ctx); err != nil {
		s.logger.Errorw("recording relaunch failed", "error", err)
		s.breaker.RecordFailure()
	}
}

// rotate finalizes the current output file through the cooperative stop
// ladder and starts the next segment.
func (s *recordingSession) rotate(ctx context.Context) {
	s.mu.Lock()
	handle := s.handle
	old := s.current
	s.mu.Unlock()

	s.logger.Infow("rotating recording", "path", old.Path, "size", old.Size)

	tier, err := StopProcess(handle, s.cfg.Shutdown, s.logger)
	if err != nil {
		s.logger.Errorw("rotation teardown failed", "error", err)
	} else if tier != domain.TierGraceful {
		s.logger.Warnw("rotation needed escalation, file may lack index", "tier", tier, "path", old.Path)
	}

	s.finalizeCurrent()

	if err := s.launchSegment(ctx); err != nil {
		s.logger.Errorw("failed to start next segment", "error", err)
		s.breaker.RecordFailure()
		s.mu.Lock()
		s.handle = nil
		s.mu.Unlock()
	}
}

func (s *recordingSession) finalizeCurrent() {
	s.mu.Lock()
	if s.current.Path == "" || s.current.Finalized {
		s.mu.Unlock()
		return
	}
	s.current.Finalized = true
	file := s.current
	s.mu.Unlock()

	if info, err := os.Stat(file.Path); err == nil {
		file.Size = info.Size()
		s.mu.Lock()
		s.current.Size = file.Size
		s.mu.Unlock()
	}

	if s.onFinalize != nil {
		s.onFinalize(file)
	}
	s.logger.Infow("recording finalized", "path", file.Path, "size", file.Size)
}

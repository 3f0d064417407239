package services

import (
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	apperrors "camward/pkg/errors"
)

// ShutdownConfig budgets the wait at each rung of the stop ladder.
type ShutdownConfig struct {
	GracefulWait  time.Duration
	TerminateWait time.Duration
	KillWait      time.Duration
}

// DefaultShutdownConfig returns the stop ladder budget used in production.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracefulWait:  5 * time.Second,
		TerminateWait: 3 * time.Second,
		KillWait:      2 * time.Second,
	}
}

// StopProcess walks a subprocess down the three-rung stop ladder: a
// cooperative quit request, then SIGTERM, then SIGKILL. Each rung waits
// its budget before escalating. The returned tier names the rung that
// ended the process.
//
// The cooperative rung matters for recordings: ffmpeg only writes the
// container index on a clean quit, and a file without it will not play.
func StopProcess(handle ports.ProcessHandle, cfg ShutdownConfig, logger *zap.SugaredLogger) (domain.ShutdownTier, error) {
	if handle == nil || !handle.Alive() {
		return domain.TierGraceful, nil
	}

	pid := handle.Pid()

	if err := handle.SignalQuit(); err != nil {
		logger.Debugw("quit request failed", "pid", pid, "error", err)
	}
	if _, ok := handle.Wait(cfg.GracefulWait); ok {
		logger.Infow("subprocess exited after quit request", "pid", pid)
		return domain.TierGraceful, nil
	}

	logger.Warnw("subprocess ignored quit request, terminating", "pid", pid)
	if err := handle.Terminate(); err != nil {
		logger.Debugw("terminate failed", "pid", pid, "error", err)
	}
	if _, ok := handle.Wait(cfg.TerminateWait); ok {
		return domain.TierTerminate, nil
	}

	logger.Warnw("subprocess survived SIGTERM, killing", "pid", pid)
	if err := handle.Kill(); err != nil {
		logger.Debugw("kill failed", "pid", pid, "error", err)
	}
	if _, ok := handle.Wait(cfg.KillWait); ok {
		return domain.TierKill, nil
	}

	logger.Errorw("subprocess did not exit after kill", "pid", pid)
	return domain.TierKill, apperrors.NewTeardownTimeoutError(pid)
}

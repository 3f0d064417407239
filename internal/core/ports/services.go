package ports

import (
	"context"
	"time"

	"camward/internal/core/domain"
)

// FrameSource keeps a fresh preview frame available with bounded staleness.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop()
	// Restart force-kills whatever is left of the extraction subprocess and
	// runs the start path again. Used by the health monitor.
	Restart(ctx context.Context) error
	// Latest returns the newest published frame, or false when nothing has
	// been published within the freshness window.
	Latest() (*domain.FrameArtifact, bool)
	LastFrameAt() time.Time
	Alive() bool
	State() domain.SubprocessState
}

// Recorder produces a sequence of bounded-size recording files.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() error
	Active() bool
	CurrentFile() (domain.RecordingFile, bool)
}

// Supervisor is the top-level facade the web layer calls into.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop() error
	StartRecording(ctx context.Context) error
	StopRecording() error
	Status() domain.StreamStatus
	// CurrentFrame applies the freshness gate; domain.ErrNoFrame when stale.
	CurrentFrame() (*domain.FrameArtifact, error)
	Phase() domain.SupervisorPhase
}

type HealthMonitor interface {
	Start(ctx context.Context)
	Stop()
	State() domain.HealthState
	Stats() domain.HealthStats
}

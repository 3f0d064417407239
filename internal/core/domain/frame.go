package domain

import "time"

// FrameArtifact is the most recent preview frame. It is owned by the frame
// collector, overwritten in place on every publish, and read through a
// synchronized snapshot. Never queued.
type FrameArtifact struct {
	Data       []byte
	CapturedAt time.Time
	Sequence   uint64
}

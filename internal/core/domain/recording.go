package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// recordingTimeLayout is the timestamp embedded in recording filenames.
// The resulting name pattern recording_YYYYMMDD_HHMMSS.<ext> is a persisted
// contract: external tooling keys off it.
const recordingTimeLayout = "20060102_150405"

const recordingPrefix = "recording_"

// RecordingFile tracks the one active output file of a recording session.
// It becomes immutable once Finalized is set.
type RecordingFile struct {
	Path      string
	StartedAt time.Time
	Size      int64 // sampled periodically, not live
	Finalized bool
}

// RecordingInfo is a catalog entry for a finished or in-progress recording.
type RecordingInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// RecordingFileName builds the contract filename for a recording started at t.
func RecordingFileName(t time.Time, ext string) string {
	return fmt.Sprintf("%s%s.%s", recordingPrefix, t.Format(recordingTimeLayout), ext)
}

// ParseRecordingName extracts the start time from a contract filename.
// The second return is false for names outside the contract.
func ParseRecordingName(name string) (time.Time, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, recordingPrefix) {
		return time.Time{}, false
	}
	stamp := strings.TrimPrefix(base, recordingPrefix)
	if ext := filepath.Ext(stamp); ext != "" {
		stamp = strings.TrimSuffix(stamp, ext)
	}
	t, err := time.ParseInLocation(recordingTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

package ports

import (
	"context"
	"time"

	"camward/internal/core/domain"
)

// RecordingCatalog lists finished recordings by scanning the output
// directory for names matching the recording filename contract.
type RecordingCatalog interface {
	List(ctx context.Context) ([]domain.RecordingInfo, error)
	// Prune deletes recordings whose embedded timestamp is older than
	// maxAge and returns how many were removed.
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

package recordings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/pkg/optimize"
	"camward/pkg/tracing"
)

// Catalog lists the output directory by the recording filename contract.
// Names outside the contract are ignored and never deleted: the output
// dir may hold foreign files.
type Catalog struct {
	dir        string
	activePath func() (string, bool)
	logger     *zap.SugaredLogger

	now func() time.Time
}

// NewCatalog builds a filesystem catalog over dir. activePath, when
// non-nil, reports the recording file currently being written so listings
// can flag it and pruning can skip it.
func NewCatalog(dir string, activePath func() (string, bool), logger *zap.SugaredLogger) *Catalog {
	return &Catalog{
		dir:        dir,
		activePath: activePath,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns contract-named recordings, newest first. A missing output
// directory is an empty catalog, not an error.
func (c *Catalog) List(ctx context.Context) ([]domain.RecordingInfo, error) {
	_, span := tracing.TraceCatalogOperation(ctx, "list", c.dir)
	defer span.End()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	active := ""
	if c.activePath != nil {
		if path, ok := c.activePath(); ok {
			active = filepath.Base(path)
		}
	}

	infos := optimize.PreAllocateSlice[domain.RecordingInfo](0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		startedAt, ok := domain.ParseRecordingName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.logger.Warnw("failed to stat recording", "name", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, domain.RecordingInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(c.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: startedAt,
			Active:    entry.Name() == active,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Name > infos[j].Name
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Prune deletes recordings whose embedded timestamp is older than maxAge.
// The active file is never deleted regardless of age. Delete failures are
// logged and skipped.
func (c *Catalog) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	_, span := tracing.TraceCatalogOperation(ctx, "prune", c.dir)
	defer span.End()

	infos, err := c.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-maxAge)
	removed := 0
	// Listing is newest first, so expired files sit at the tail
	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]
		if !info.CreatedAt.Before(cutoff) {
			break
		}
		if info.Active {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			c.logger.Warnw("failed to delete expired recording", "name", info.Name, "error", err)
			continue
		}
		removed++
		c.logger.Infow("deleted expired recording", "name", info.Name)
	}
	return removed, nil
}

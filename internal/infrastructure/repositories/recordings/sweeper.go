package recordings

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/ports"
)

// Sweeper deletes recordings older than the retention age on a fixed
// interval. A zero retention age disables it.
type Sweeper struct {
	catalog  ports.RecordingCatalog
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewSweeper(catalog ports.RecordingCatalog, maxAge, interval time.Duration, logger *zap.SugaredLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		catalog:  catalog,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	if s.maxAge <= 0 {
		s.logger.Infow("recording retention disabled")
		close(s.done)
		return
	}
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.catalog.Prune(ctx, s.maxAge)
	if err != nil {
		s.logger.Warnw("retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Infow("retention sweep removed recordings", "count", removed, "max_age", s.maxAge)
	}
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/pkg/optimize"
	"camward/pkg/retry"
	"camward/pkg/tracing"
	"camward/pkg/utils"
)

const framePrefix = "frame_"

// FrameCollectorConfig tunes the frame extraction supervision loop.
type FrameCollectorConfig struct {
	// ScratchRoot is the directory that per-session scratch dirs are
	// created under. Empty means the OS temp dir.
	ScratchRoot string

	PollInterval     time.Duration // scratch dir scan cadence
	SettleDelay      time.Duration // minimum file age before a frame is trusted
	MinFrameBytes    int64         // smaller files are treated as partial writes
	ScratchRetention int           // newest frame files kept on disk
	FreshnessWindow  time.Duration // Latest returns nothing older than this

	ReconnectAttempts int
	ReconnectDelay    time.Duration

	Shutdown ShutdownConfig
}

// DefaultFrameCollectorConfig returns the production tuning.
func DefaultFrameCollectorConfig() FrameCollectorConfig {
	return FrameCollectorConfig{
		PollInterval:      200 * time.Millisecond,
		SettleDelay:       100 * time.Millisecond,
		MinFrameBytes:     1024,
		ScratchRetention:  5,
		FreshnessWindow:   10 * time.Second,
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Second,
		Shutdown:          DefaultShutdownConfig(),
	}
}

// frameCollector supervises the frame extraction subprocess and keeps the
// newest settled frame from its scratch directory available in memory.
//
// The subprocess numbers its output files (frame_0001.jpg, frame_0002.jpg,
// ...), so "newest" is the highest number, and a frame is only trusted once
// it has stopped growing: at least SettleDelay old and MinFrameBytes large.
type frameCollector struct {
	cfg      FrameCollectorConfig
	launcher ports.ProcessLauncher
	builder  ports.CommandBuilder
	stats    *StatsRecorder
	logger   *zap.SugaredLogger

	namePool *optimize.StringSlicePool
	now      func() time.Time

	mu          sync.RWMutex
	running     bool
	handle      ports.ProcessHandle
	scratchDir  string
	latest      *domain.FrameArtifact
	lastFrameAt time.Time
	lastNum     int
	seq         uint64
	stopCh      chan struct{}
	loopDone    chan struct{}
}

func NewFrameCollector(
	cfg FrameCollectorConfig,
	launcher ports.ProcessLauncher,
	builder ports.CommandBuilder,
	stats *StatsRecorder,
	logger *zap.SugaredLogger,
) ports.FrameSource {
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	return &frameCollector{
		cfg:      cfg,
		launcher: launcher,
		builder:  builder,
		stats:    stats,
		logger:   logger,
		namePool: optimize.NewStringSlicePool(2 * cfg.ScratchRetention),
		now:      time.Now,
	}
}

func (c *frameCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return domain.ErrAlreadyStreaming
	}
	c.running = true
	c.mu.Unlock()

	if err := c.launch(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *frameCollector) launch(ctx context.Context) error {
	ctx, span := tracing.TraceSubprocessLaunch(ctx, c.builder.Tool(), "frame_extraction")
	defer span.End()

	scratch := filepath.Join(c.cfg.ScratchRoot, utils.GenerateID("frames"))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	cmd := c.builder.FrameExtraction(scratch)
	handle, err := retry.RetryWithResult(ctx, c.retryConfig(), func() (ports.ProcessHandle, error) {
		return c.launcher.Launch(ctx, cmd)
	})
	if err != nil {
		os.RemoveAll(scratch)
		return err
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})

	c.mu.Lock()
	if !c.running {
		// Stopped while we were launching
		c.mu.Unlock()
		_ = handle.Kill()
		handle.Wait(c.cfg.Shutdown.KillWait)
		os.RemoveAll(scratch)
		return domain.ErrStopped
	}
	c.handle = handle
	c.scratchDir = scratch
	c.lastNum = 0
	c.lastFrameAt = c.now()
	c.stopCh = stopCh
	c.loopDone = done
	c.mu.Unlock()

	c.logger.Infow("frame extraction started",
		"pid", handle.Pid(),
		"scratch_dir", scratch,
	)

	go c.pollLoop(ctx, scratch, stopCh, done)
	return nil
}

func (c *frameCollector) retryConfig() retry.Config {
	attempts := c.cfg.ReconnectAttempts
	if attempts < 0 {
		attempts = 0
	}
	return retry.Fixed(attempts, c.cfg.ReconnectDelay)
}

func (c *frameCollector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	handle := c.handle
	stopCh, done := c.stopCh, c.loopDone
	scratch := c.scratchDir
	c.handle = nil
	c.latest = nil
	c.stopCh, c.loopDone = nil, nil
	c.scratchDir = ""
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if handle != nil {
		tier, err := StopProcess(handle, c.cfg.Shutdown, c.logger)
		if err != nil {
			c.logger.Errorw("frame extraction teardown failed", "error", err)
		} else {
			c.logger.Infow("frame extraction stopped", "tier", tier)
		}
	}

	if scratch != "" {
		if err := os.RemoveAll(scratch); err != nil {
			c.logger.Warnw("failed to remove scratch dir", "dir", scratch, "error", err)
		}
	}
}

// Restart force-kills the extraction subprocess and launches a fresh one
// into a fresh scratch directory. A stalled subprocess is not walked down
// the stop ladder.
func (c *frameCollector) Restart(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return domain.ErrNotStreaming
	}
	handle := c.handle
	stopCh, done := c.stopCh, c.loopDone
	scratch := c.scratchDir
	c.handle = nil
	c.stopCh, c.loopDone = nil, nil
	c.scratchDir = ""
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if handle != nil && handle.Alive() {
		if err := handle.Kill(); err != nil {
			c.logger.Debugw("kill during restart failed", "pid", handle.Pid(), "error", err)
		}
		handle.Wait(c.cfg.Shutdown.KillWait)
	}
	if scratch != "" {
		os.RemoveAll(scratch)
	}

	return c.launch(ctx)
}

func (c *frameCollector) Latest() (*domain.FrameArtifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nil, false
	}
	if c.now().Sub(c.lastFrameAt) > c.cfg.FreshnessWindow {
		return nil, false
	}
	return c.latest, true
}

func (c *frameCollector) LastFrameAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrameAt
}

func (c *frameCollector) Alive() bool {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()
	return handle != nil && handle.Alive()
}

func (c *frameCollector) State() domain.SubprocessState {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()
	if handle == nil {
		return domain.ProcessNotStarted
	}
	return handle.State()
}

func (c *frameCollector) pollLoop(ctx context.Context, scratchDir string, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			c.collectOnce(scratchDir)
		}
	}
}

// collectOnce scans the scratch directory, publishes the newest settled
// frame not yet seen, and prunes old frame files down to the retention
// count. All file I/O happens outside the collector lock.
func (c *frameCollector) collectOnce(scratchDir string) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		c.logger.Debugw("scratch scan failed", "dir", scratchDir, "error", err)
		return
	}

	names := c.namePool.Get()
	defer func() { c.namePool.Put(names) }()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if frameNumber(e.Name()) >= 0 {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return
	}

	sort.Slice(names, func(i, j int) bool {
		return frameNumber(names[i]) < frameNumber(names[j])
	})

	c.mu.RLock()
	lastNum := c.lastNum
	c.mu.RUnlock()

	now := c.now()
	for i := len(names) - 1; i >= 0; i-- {
		num := frameNumber(names[i])
		if num <= lastNum {
			break
		}
		path := filepath.Join(scratchDir, names[i])
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < c.cfg.SettleDelay {
			// Probably still being written
			continue
		}
		if info.Size() < c.cfg.MinFrameBytes {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		c.publish(data, info.ModTime(), num)
		break
	}

	if len(names) > c.cfg.ScratchRetention {
		for _, name := range names[:len(names)-c.cfg.ScratchRetention] {
			if err := os.Remove(filepath.Join(scratchDir, name)); err != nil && !os.IsNotExist(err) {
				c.logger.Debugw("scratch prune failed", "file", name, "error", err)
			}
		}
	}
}

func (c *frameCollector) publish(data []byte, capturedAt time.Time, num int) {
	c.mu.Lock()
	c.seq++
	c.latest = &domain.FrameArtifact{
		Data:       data,
		CapturedAt: capturedAt,
		Sequence:   c.seq,
	}
	c.lastNum = num
	c.lastFrameAt = c.now()
	seq := c.seq
	c.mu.Unlock()

	c.stats.FrameReceived()
	c.logger.Debugw("frame published", "sequence", seq, "bytes", len(data))
}

// frameNumber extracts N from a frame_N.jpg name, or -1 for names outside
// the contract. Numeric comparison keeps ordering right past frame 9999,
// where the zero padding stops aligning with lexicographic order.
func frameNumber(name string) int {
	if !strings.HasPrefix(name, framePrefix) {
		return -1
	}
	rest := strings.TrimPrefix(name, framePrefix)
	ext := filepath.Ext(rest)
	if ext != ".jpg" {
		return -1
	}
	num, err := strconv.Atoi(strings.TrimSuffix(rest, ext))
	if err != nil || num < 0 {
		return -1
	}
	return num
}

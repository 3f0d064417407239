package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"camward/internal/core/domain"
)

func testCollectorConfig(t *testing.T) FrameCollectorConfig {
	return FrameCollectorConfig{
		ScratchRoot:       t.TempDir(),
		PollInterval:      10 * time.Millisecond,
		SettleDelay:       0,
		MinFrameBytes:     4,
		ScratchRetention:  5,
		FreshnessWindow:   10 * time.Second,
		ReconnectAttempts: 0,
		ReconnectDelay:    time.Millisecond,
		Shutdown:          testShutdownConfig(),
	}
}

func newTestCollector(t *testing.T, cfg FrameCollectorConfig, launcher *fakeLauncher) *frameCollector {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	fs := NewFrameCollector(cfg, launcher, fakeBuilder{}, NewStatsRecorder(), logger)
	return fs.(*frameCollector)
}

func writeFrame(t *testing.T, dir string, num int, data []byte) {
	t.Helper()
	name := fmt.Sprintf("frame_%04d.jpg", num)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func listFrames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFrameNumber(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"frame_0001.jpg", 1},
		{"frame_0042.jpg", 42},
		{"frame_12345.jpg", 12345},
		{"frame_abc.jpg", -1},
		{"frame_0001.png", -1},
		{"recording_20240101_120000.mp4", -1},
		{"frame_.jpg", -1},
		{"other.txt", -1},
	}

	for _, tt := range tests {
		if got := frameNumber(tt.name); got != tt.expected {
			t.Errorf("frameNumber(%q) = %d, want %d", tt.name, got, tt.expected)
		}
	}
}

func TestFrameCollector_PublishesNewestFrame(t *testing.T) {
	c := newTestCollector(t, testCollectorConfig(t), newFakeLauncher())
	dir := t.TempDir()

	writeFrame(t, dir, 1, []byte("first frame"))
	writeFrame(t, dir, 2, []byte("second frame"))
	writeFrame(t, dir, 3, []byte("third frame"))

	c.collectOnce(dir)

	frame, ok := c.Latest()
	if !ok {
		t.Fatal("expected a published frame")
	}
	if string(frame.Data) != "third frame" {
		t.Errorf("expected newest frame, got %q", frame.Data)
	}
	if frame.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", frame.Sequence)
	}

	if got := c.stats.Snapshot().FramesReceived; got != 1 {
		t.Errorf("expected 1 received frame in stats, got %d", got)
	}
}

func TestFrameCollector_MonotonicLatest(t *testing.T) {
	c := newTestCollector(t, testCollectorConfig(t), newFakeLauncher())
	dir := t.TempDir()

	writeFrame(t, dir, 1, []byte("frame one"))
	writeFrame(t, dir, 2, []byte("frame two"))
	writeFrame(t, dir, 3, []byte("frame three"))
	c.collectOnce(dir)

	// Newest file disappears: the published frame must not move backwards
	if err := os.Remove(filepath.Join(dir, "frame_0003.jpg")); err != nil {
		t.Fatal(err)
	}
	c.collectOnce(dir)

	frame, ok := c.Latest()
	if !ok {
		t.Fatal("expected a published frame")
	}
	if string(frame.Data) != "frame three" || frame.Sequence != 1 {
		t.Errorf("latest moved backwards: %q seq %d", frame.Data, frame.Sequence)
	}

	// A genuinely newer file advances it
	writeFrame(t, dir, 4, []byte("frame four"))
	c.collectOnce(dir)

	frame, ok = c.Latest()
	if !ok {
		t.Fatal("expected a published frame")
	}
	if string(frame.Data) != "frame four" {
		t.Errorf("expected frame four, got %q", frame.Data)
	}
	if frame.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", frame.Sequence)
	}
}

func TestFrameCollector_SkipsUnsettledFrames(t *testing.T) {
	cfg := testCollectorConfig(t)
	cfg.SettleDelay = time.Hour
	c := newTestCollector(t, cfg, newFakeLauncher())
	dir := t.TempDir()

	writeFrame(t, dir, 1, []byte("fresh write"))
	c.collectOnce(dir)

	if _, ok := c.Latest(); ok {
		t.Error("expected no frame while file is still settling")
	}

	// Once the file is old enough it is published
	c.cfg.SettleDelay = 0
	c.collectOnce(dir)

	if _, ok := c.Latest(); !ok {
		t.Error("expected frame after settle delay elapsed")
	}
}

func TestFrameCollector_SkipsPartialWrites(t *testing.T) {
	cfg := testCollectorConfig(t)
	cfg.MinFrameBytes = 1024
	c := newTestCollector(t, cfg, newFakeLauncher())
	dir := t.TempDir()

	big := make([]byte, 2048)
	writeFrame(t, dir, 1, big)
	c.collectOnce(dir)

	if _, ok := c.Latest(); !ok {
		t.Fatal("expected full-size frame to publish")
	}

	// A newer but undersized file is treated as a partial write
	writeFrame(t, dir, 2, []byte("tiny"))
	c.collectOnce(dir)

	frame, ok := c.Latest()
	if !ok {
		t.Fatal("expected frame to remain published")
	}
	if frame.Sequence != 1 {
		t.Errorf("expected partial write to be skipped, got sequence %d", frame.Sequence)
	}
}

func TestFrameCollector_ScratchRetention(t *testing.T) {
	c := newTestCollector(t, testCollectorConfig(t), newFakeLauncher())
	dir := t.TempDir()

	for i := 1; i <= 6; i++ {
		writeFrame(t, dir, i, []byte("frame data"))
	}

	c.collectOnce(dir)

	names := listFrames(t, dir)
	if len(names) != 5 {
		t.Fatalf("expected 5 files after prune, got %d: %v", len(names), names)
	}
	for _, name := range names {
		if name == "frame_0001.jpg" {
			t.Error("expected oldest frame to be pruned")
		}
	}
}

func TestFrameCollector_FreshnessGate(t *testing.T) {
	c := newTestCollector(t, testCollectorConfig(t), newFakeLauncher())
	dir := t.TempDir()

	writeFrame(t, dir, 1, []byte("frame data"))
	c.collectOnce(dir)

	if _, ok := c.Latest(); !ok {
		t.Fatal("expected fresh frame")
	}

	// Advance the collector clock past the freshness window
	base := time.Now()
	c.now = func() time.Time { return base.Add(11 * time.Second) }

	if _, ok := c.Latest(); ok {
		t.Error("expected stale frame to be withheld")
	}
	if c.LastFrameAt().IsZero() {
		t.Error("expected LastFrameAt to remain set")
	}
}

func TestFrameCollector_StartStop(t *testing.T) {
	cfg := testCollectorConfig(t)
	launcher := newFakeLauncher()
	c := newTestCollector(t, cfg, launcher)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if launcher.launchCount() != 1 {
		t.Fatalf("expected 1 launch, got %d", launcher.launchCount())
	}
	cmd, _ := launcher.lastCommand()
	if cmd.Quit != domain.QuitSignal {
		t.Errorf("expected signal quit mode for extraction, got %s", cmd.Quit)
	}
	if cmd.Dir == "" {
		t.Fatal("expected scratch dir in command")
	}
	if _, err := os.Stat(cmd.Dir); err != nil {
		t.Errorf("expected scratch dir to exist: %v", err)
	}
	if !c.Alive() {
		t.Error("expected collector to report alive")
	}
	if c.State() != domain.ProcessRunning {
		t.Errorf("expected running state, got %s", c.State())
	}

	// Second start is rejected
	if err := c.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyStreaming) {
		t.Errorf("expected ErrAlreadyStreaming, got %v", err)
	}

	c.Stop()

	if c.Alive() {
		t.Error("expected collector to be down after stop")
	}
	if c.State() != domain.ProcessNotStarted {
		t.Errorf("expected not_started after stop, got %s", c.State())
	}
	if _, ok := c.Latest(); ok {
		t.Error("expected no frame after stop")
	}
	if _, err := os.Stat(cmd.Dir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir to be removed, got %v", err)
	}

	quit, _, _ := launcher.lastHandle().counts()
	if quit != 1 {
		t.Errorf("expected cooperative quit, got %d quit calls", quit)
	}

	// Stop on a stopped collector is a no-op
	c.Stop()
}

func TestFrameCollector_StartRetriesSpawn(t *testing.T) {
	cfg := testCollectorConfig(t)
	cfg.ReconnectAttempts = 2
	cfg.ReconnectDelay = time.Millisecond
	launcher := newFakeLauncher()
	launcher.failFirst = 1
	c := newTestCollector(t, cfg, launcher)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed after retry, got %v", err)
	}
	defer c.Stop()

	if launcher.attemptCount() != 2 {
		t.Errorf("expected 2 launch attempts, got %d", launcher.attemptCount())
	}
}

func TestFrameCollector_StartFailsAfterRetriesExhausted(t *testing.T) {
	cfg := testCollectorConfig(t)
	cfg.ReconnectAttempts = 1
	cfg.ReconnectDelay = time.Millisecond
	launcher := newFakeLauncher()
	launcher.launchErr = errors.New("no route to camera")
	c := newTestCollector(t, cfg, launcher)

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}
	if !errors.Is(err, launcher.launchErr) {
		t.Errorf("expected wrapped launch error, got %v", err)
	}
	if launcher.attemptCount() != 2 {
		t.Errorf("expected 2 launch attempts, got %d", launcher.attemptCount())
	}

	// A failed start leaves the collector restartable
	launcher.launchErr = nil
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed after camera recovered, got %v", err)
	}
	c.Stop()
}

func TestFrameCollector_Restart(t *testing.T) {
	cfg := testCollectorConfig(t)
	launcher := newFakeLauncher()
	c := newTestCollector(t, cfg, launcher)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	firstHandle := launcher.lastHandle()
	firstCmd, _ := launcher.lastCommand()

	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	if launcher.launchCount() != 2 {
		t.Fatalf("expected 2 launches, got %d", launcher.launchCount())
	}

	// Old process is force-killed, not laddered
	_, terminate, kill := firstHandle.counts()
	if kill != 1 {
		t.Errorf("expected 1 kill on old handle, got %d", kill)
	}
	if terminate != 0 {
		t.Errorf("expected no terminate on restart, got %d", terminate)
	}

	secondCmd, _ := launcher.lastCommand()
	if secondCmd.Dir == firstCmd.Dir {
		t.Error("expected a fresh scratch dir after restart")
	}
	if _, err := os.Stat(firstCmd.Dir); !os.IsNotExist(err) {
		t.Errorf("expected old scratch dir to be removed, got %v", err)
	}
	if !c.Alive() {
		t.Error("expected collector alive after restart")
	}
}

func TestFrameCollector_RestartWhenStopped(t *testing.T) {
	c := newTestCollector(t, testCollectorConfig(t), newFakeLauncher())

	if err := c.Restart(context.Background()); !errors.Is(err, domain.ErrNotStreaming) {
		t.Errorf("expected ErrNotStreaming, got %v", err)
	}
}

package recordings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/pkg/cache"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCatalogListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)

	oldest := domain.RecordingFileName(base, "mp4")
	middle := domain.RecordingFileName(base.Add(26*time.Hour), "mp4")
	newest := domain.RecordingFileName(base.Add(50*time.Hour), "mp4")
	writeFile(t, dir, middle, 30)
	writeFile(t, dir, newest, 10)
	writeFile(t, dir, oldest, 20)
	writeFile(t, dir, "notes.txt", 5)
	writeFile(t, dir, "frame_0001.jpg", 5)
	if err := os.Mkdir(filepath.Join(dir, "scratch"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	catalog := NewCatalog(dir, nil, zaptest.NewLogger(t).Sugar())
	infos, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(infos))
	}
	if infos[0].Name != newest || infos[1].Name != middle || infos[2].Name != oldest {
		t.Errorf("List() order = %s, %s, %s", infos[0].Name, infos[1].Name, infos[2].Name)
	}
	if infos[0].Size != 10 || infos[2].Size != 20 {
		t.Errorf("List() sizes = %d, %d, want 10, 20", infos[0].Size, infos[2].Size)
	}
	for _, info := range infos {
		if info.Active {
			t.Errorf("entry %s flagged active with no active recording", info.Name)
		}
		if info.Path != filepath.Join(dir, info.Name) {
			t.Errorf("entry %s path = %s", info.Name, info.Path)
		}
	}
}

func TestCatalogListMissingDir(t *testing.T) {
	catalog := NewCatalog(filepath.Join(t.TempDir(), "absent"), nil, zaptest.NewLogger(t).Sugar())

	infos, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() returned %d entries for missing dir", len(infos))
	}
}

func TestCatalogListFlagsActiveFile(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local)
	done := domain.RecordingFileName(base, "mp4")
	live := domain.RecordingFileName(base.Add(time.Hour), "mp4")
	writeFile(t, dir, done, 10)
	livePath := writeFile(t, dir, live, 10)

	activePath := func() (string, bool) { return livePath, true }
	catalog := NewCatalog(dir, activePath, zaptest.NewLogger(t).Sugar())

	infos, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(infos))
	}
	if !infos[0].Active {
		t.Errorf("newest entry %s not flagged active", infos[0].Name)
	}
	if infos[1].Active {
		t.Errorf("finished entry %s flagged active", infos[1].Name)
	}
}

func TestCatalogPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.Local)

	expired := domain.RecordingFileName(now.Add(-10*24*time.Hour), "mp4")
	expiredActive := domain.RecordingFileName(now.Add(-9*24*time.Hour), "mp4")
	fresh := domain.RecordingFileName(now.Add(-3*24*time.Hour), "mp4")
	expiredPath := writeFile(t, dir, expired, 10)
	activePath := writeFile(t, dir, expiredActive, 10)
	freshPath := writeFile(t, dir, fresh, 10)

	catalog := NewCatalog(dir, func() (string, bool) { return activePath, true }, zaptest.NewLogger(t).Sugar())
	catalog.now = func() time.Time { return now }

	removed, err := catalog.Prune(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d files, want 1", removed)
	}
	if _, err := os.Stat(expiredPath); !os.IsNotExist(err) {
		t.Errorf("expired recording still on disk")
	}
	if _, err := os.Stat(activePath); err != nil {
		t.Errorf("active recording deleted: %v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh recording deleted: %v", err)
	}
}

func TestCatalogPruneDisabled(t *testing.T) {
	dir := t.TempDir()
	old := domain.RecordingFileName(time.Date(2020, 1, 1, 0, 0, 0, 0, time.Local), "mp4")
	path := writeFile(t, dir, old, 10)

	catalog := NewCatalog(dir, nil, zaptest.NewLogger(t).Sugar())
	removed, err := catalog.Prune(context.Background(), 0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune(0) removed %d files", removed)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Prune(0) deleted a recording: %v", err)
	}
}

type countingCatalog struct {
	inner ports.RecordingCatalog

	mu     sync.Mutex
	lists  int
	prunes int
}

func (c *countingCatalog) List(ctx context.Context) ([]domain.RecordingInfo, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.inner.List(ctx)
}

func (c *countingCatalog) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	c.mu.Lock()
	c.prunes++
	c.mu.Unlock()
	return c.inner.Prune(ctx, maxAge)
}

func (c *countingCatalog) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists, c.prunes
}

func TestCachedCatalogMemoizesUntilRefresh(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, domain.RecordingFileName(time.Date(2026, 8, 20, 12, 0, 0, 0, time.Local), "mp4"), 10)

	counting := &countingCatalog{inner: NewCatalog(dir, nil, zaptest.NewLogger(t).Sugar())}
	c := cache.NewCache(time.Minute)
	defer c.Stop()
	cached := NewCachedCatalog(counting, c, time.Minute)

	for i := 0; i < 3; i++ {
		infos, err := cached.List(context.Background())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(infos) != 1 {
			t.Fatalf("List() returned %d entries, want 1", len(infos))
		}
	}
	if lists, _ := counting.counts(); lists != 1 {
		t.Errorf("inner catalog scanned %d times, want 1", lists)
	}

	writeFile(t, dir, domain.RecordingFileName(time.Date(2026, 8, 21, 12, 0, 0, 0, time.Local), "mp4"), 10)
	cached.Refresh()

	infos, err := cached.List(context.Background())
	if err != nil {
		t.Fatalf("List() after refresh error = %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("List() after refresh returned %d entries, want 2", len(infos))
	}
	if lists, _ := counting.counts(); lists != 2 {
		t.Errorf("inner catalog scanned %d times after refresh, want 2", lists)
	}
}

func TestCachedCatalogPruneRefreshes(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.Local)
	writeFile(t, dir, domain.RecordingFileName(now.Add(-10*24*time.Hour), "mp4"), 10)
	writeFile(t, dir, domain.RecordingFileName(now.Add(-time.Hour), "mp4"), 10)

	inner := NewCatalog(dir, nil, zaptest.NewLogger(t).Sugar())
	inner.now = func() time.Time { return now }
	c := cache.NewCache(time.Minute)
	defer c.Stop()
	cached := NewCachedCatalog(inner, c, time.Minute)

	if infos, _ := cached.List(context.Background()); len(infos) != 2 {
		t.Fatalf("List() before prune returned %d entries, want 2", len(infos))
	}

	removed, err := cached.Prune(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Prune() removed %d files, want 1", removed)
	}

	infos, err := cached.List(context.Background())
	if err != nil {
		t.Fatalf("List() after prune error = %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("List() after prune returned %d entries, want 1", len(infos))
	}
}

func TestSweeperRunsOnInterval(t *testing.T) {
	dir := t.TempDir()
	counting := &countingCatalog{inner: NewCatalog(dir, nil, zaptest.NewLogger(t).Sugar())}

	sweeper := NewSweeper(counting, time.Hour, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	sweeper.Start(context.Background())
	time.Sleep(45 * time.Millisecond)
	sweeper.Stop()

	if _, prunes := counting.counts(); prunes < 2 {
		t.Errorf("sweeper pruned %d times, want at least 2", prunes)
	}
	sweeper.Stop()
}

func TestSweeperDisabledWithoutRetention(t *testing.T) {
	counting := &countingCatalog{inner: NewCatalog(t.TempDir(), nil, zaptest.NewLogger(t).Sugar())}

	sweeper := NewSweeper(counting, 0, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	sweeper.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()

	if _, prunes := counting.counts(); prunes != 0 {
		t.Errorf("disabled sweeper pruned %d times", prunes)
	}
}

func TestSweeperStopWithoutStart(t *testing.T) {
	sweeper := NewSweeper(NewCatalog(t.TempDir(), nil, zaptest.NewLogger(t).Sugar()), time.Hour, time.Hour, zaptest.NewLogger(t).Sugar())
	sweeper.Stop()
}

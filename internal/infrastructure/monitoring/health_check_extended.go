package monitoring

import (
	"context"
	"fmt"
	"os"
	"time"

	"camward/internal/core/ports"
)

// AddToolCheck verifies the external transcoder binary stays invocable.
func (h *HealthChecker) AddToolCheck(launcher ports.ProcessLauncher, tool string, timeout time.Duration) {
	h.AddCheck("tool", func(ctx context.Context) error {
		return launcher.CheckTool(tool)
	}, timeout)
}

// AddOutputDirCheck verifies the recordings directory still exists and
// is a directory. A deleted mount must flip readiness before a recording
// start fails against it.
func (h *HealthChecker) AddOutputDirCheck(dir string, timeout time.Duration) {
	h.AddCheck("output_dir", func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}, timeout)
}

// AddSupervisorCheck verifies the supervisor answers phase snapshots.
// Phase reads never block, so a timeout here means a wedged supervisor.
func (h *HealthChecker) AddSupervisorCheck(supervisor ports.Supervisor, timeout time.Duration) {
	h.AddCheck("supervisor", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			supervisor.Phase()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, timeout)
}

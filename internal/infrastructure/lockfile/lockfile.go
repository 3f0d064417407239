package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// LockFileName is created inside the guarded output directory.
const LockFileName = ".camward.lock"

// Lock is an exclusive pidfile guarding an output directory so two
// instances do not rotate the same recordings. A lock left behind by a
// dead process is taken over.
type Lock struct {
	path   string
	logger *zap.SugaredLogger
}

// Acquire creates the output directory if needed and claims its pidfile.
// It fails when another live process holds the lock.
func Acquire(dir string, logger *zap.SugaredLogger) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, LockFileName)
	if err := writePidFile(path); err == nil {
		return &Lock{path: path, logger: logger}, nil
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	pid, readErr := readPidFile(path)
	if readErr == nil && processAlive(pid) {
		return nil, fmt.Errorf("output directory %s is locked by running process %d", dir, pid)
	}

	if readErr != nil {
		logger.Warnw("removing unreadable lock file", "path", path, "error", readErr)
	} else {
		logger.Warnw("taking over stale lock file", "path", path, "stale_pid", pid)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	if err := writePidFile(path); err != nil {
		return nil, fmt.Errorf("failed to claim lock file: %w", err)
	}
	return &Lock{path: path, logger: logger}, nil
}

// Release removes the pidfile. Safe to call once only, at shutdown.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warnw("failed to remove lock file", "path", l.path, "error", err)
	}
}

func (l *Lock) Path() string {
	return l.path
}

func writePidFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// processAlive probes the pid with signal 0. EPERM still means alive,
// just owned by someone else.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

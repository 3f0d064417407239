package transcoder

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	apperrors "camward/pkg/errors"
	"camward/pkg/utils"
)

const maxStderrLine = 300

// connectionFailurePatterns are stderr fragments that point at the camera
// or network rather than the tool itself. They get warn-level logs.
var connectionFailurePatterns = []string{
	"Connection refused",
	"Connection timed out",
	"No route to host",
	"Network is unreachable",
	"401 Unauthorized",
	"403 Forbidden",
	"Invalid data found",
	"Server returned 404",
}

type execLauncher struct {
	logger *zap.SugaredLogger
}

func NewLauncher(logger *zap.SugaredLogger) ports.ProcessLauncher {
	return &execLauncher{logger: logger}
}

func (l *execLauncher) CheckTool(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return apperrors.NewToolNotFoundError(name)
	}
	return nil
}

// Launch starts the subprocess and a reaper goroutine that records how it
// ended. The context only gates the launch itself; the shutdown ladder
// owns the process lifetime, so CommandContext's hard kill is not used.
func (l *execLauncher) Launch(ctx context.Context, cmd ports.Command) (ports.ProcessHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewSpawnError(err)
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	logger := l.logger.With("tool", filepath.Base(cmd.Path))
	drain := &stderrDrain{logger: logger}
	c.Stderr = drain

	var stdin io.WriteCloser
	if cmd.Quit == domain.QuitStdin {
		pipe, err := c.StdinPipe()
		if err != nil {
			return nil, apperrors.NewSpawnError(err)
		}
		stdin = pipe
	}

	if err := c.Start(); err != nil {
		return nil, apperrors.NewSpawnError(err)
	}

	logger = logger.With("pid", c.Process.Pid)
	logger.Infow("subprocess launched", "args_len", len(cmd.Args), "dir", cmd.Dir)

	h := &execHandle{
		cmd:      c,
		quitMode: cmd.Quit,
		stdin:    stdin,
		logger:   logger,
		state:    domain.ProcessRunning,
		done:     make(chan struct{}),
	}
	go h.reap(drain)
	return h, nil
}

// execHandle wraps one running subprocess. Every method tolerates being
// called after the process has exited.
type execHandle struct {
	cmd      *exec.Cmd
	quitMode domain.QuitMode
	stdin    io.WriteCloser
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	state  domain.SubprocessState
	result ports.WaitResult
	done   chan struct{}
}

// reap waits for the process, flushes any buffered stderr and records the
// exit result before releasing waiters.
func (h *execHandle) reap(drain *stderrDrain) {
	_ = h.cmd.Wait()
	drain.flush()

	res := ports.WaitResult{ExitCode: -1}
	if ps := h.cmd.ProcessState; ps != nil {
		res.ExitCode = ps.ExitCode()
		res.Killed = !ps.Exited()
	}

	state := domain.ProcessExited
	if res.Killed {
		state = domain.ProcessKilled
	}

	h.mu.Lock()
	h.state = state
	h.result = res
	h.mu.Unlock()
	close(h.done)

	h.logger.Infow("subprocess ended", "exit_code", res.ExitCode, "killed", res.Killed)
}

func (h *execHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) State() domain.SubprocessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SignalQuit asks the process to exit cooperatively: a "q" on stdin for
// recording mode, SIGINT otherwise.
func (h *execHandle) SignalQuit() error {
	if !h.Alive() {
		return nil
	}
	if h.quitMode == domain.QuitStdin && h.stdin != nil {
		if _, err := io.WriteString(h.stdin, "q"); err != nil {
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
		return nil
	}
	return h.signal(os.Interrupt)
}

func (h *execHandle) Terminate() error {
	return h.signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	if !h.Alive() {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *execHandle) Wait(timeout time.Duration) (ports.WaitResult, bool) {
	if timeout <= 0 {
		select {
		case <-h.done:
			return h.waitResult(), true
		default:
			return ports.WaitResult{}, false
		}
	}

	select {
	case <-h.done:
		return h.waitResult(), true
	case <-time.After(timeout):
		return ports.WaitResult{}, false
	}
}

func (h *execHandle) waitResult() ports.WaitResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *execHandle) signal(sig os.Signal) error {
	if !h.Alive() || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// stderrDrain splits subprocess stderr into lines and logs them. Lines
// matching a connection failure pattern are warnings; everything else is
// debug noise. exec.Cmd waits for writes here to finish before Wait
// returns, so no pipe coordination is needed.
type stderrDrain struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending string
}

func (d *stderrDrain) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending += string(p)
	for {
		idx := strings.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		d.logLine(d.pending[:idx])
		d.pending = d.pending[idx+1:]
	}
	return len(p), nil
}

func (d *stderrDrain) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != "" {
		d.logLine(d.pending)
		d.pending = ""
	}
}

func (d *stderrDrain) logLine(raw string) {
	line := utils.SanitizeString(raw)
	if line == "" {
		return
	}
	line = utils.TruncateString(line, maxStderrLine)
	if utils.ContainsAny(line, connectionFailurePatterns...) {
		d.logger.Warnw("transcoder reported a stream problem", "line", line)
		return
	}
	d.logger.Debugw("transcoder stderr", "line", line)
}

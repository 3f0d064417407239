package ports

import (
	"context"
	"time"

	"camward/internal/core/domain"
)

// Command is one invocation of the external transcoding tool.
type Command struct {
	Path string
	Args []string
	Dir  string
	Quit domain.QuitMode
}

// WaitResult reports how a subprocess ended.
type WaitResult struct {
	ExitCode int
	Killed   bool
}

// ProcessHandle wraps one running external subprocess. Implementations must
// tolerate every method being called after the process has already exited.
type ProcessHandle interface {
	Pid() int
	Alive() bool
	// SignalQuit asks the process to exit cooperatively, per the command's
	// quit mode.
	SignalQuit() error
	Terminate() error
	Kill() error
	// Wait blocks until the process exits or the timeout elapses. The bool
	// is false when the wait timed out.
	Wait(timeout time.Duration) (WaitResult, bool)
	State() domain.SubprocessState
}

// ProcessLauncher spawns transcoder subprocesses. Injectable so supervision
// logic is testable without real processes.
type ProcessLauncher interface {
	// CheckTool verifies the external tool is invocable.
	CheckTool(name string) error
	Launch(ctx context.Context, cmd Command) (ProcessHandle, error)
}

// CommandBuilder produces the tool invocations for the two output modes.
type CommandBuilder interface {
	// FrameExtraction emits numbered frame artifacts into scratchDir at the
	// configured preview rate.
	FrameExtraction(scratchDir string) Command
	// Recording writes one continuous output file at outputPath.
	Recording(outputPath string) Command
	// Tool names the external binary both modes invoke.
	Tool() string
}

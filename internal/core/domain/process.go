package domain

// SubprocessState is observed by polling process status, never pushed.
type SubprocessState string

const (
	ProcessNotStarted SubprocessState = "not_started"
	ProcessRunning    SubprocessState = "running"
	ProcessExited     SubprocessState = "exited"
	ProcessKilled     SubprocessState = "killed"
)

// ShutdownTier reports which rung of the graceful-shutdown ladder ended a
// subprocess: a cooperative quit signal, SIGTERM, or an unconditional kill.
type ShutdownTier string

const (
	TierGraceful  ShutdownTier = "graceful"
	TierTerminate ShutdownTier = "terminate"
	TierKill      ShutdownTier = "kill"
)

// QuitMode selects how a subprocess is asked to exit cooperatively.
type QuitMode string

const (
	// QuitSignal sends the platform interrupt signal.
	QuitSignal QuitMode = "signal"
	// QuitStdin writes "q" to the subprocess stdin (ffmpeg's interactive
	// quit, which finalizes container output cleanly).
	QuitStdin QuitMode = "stdin"
)

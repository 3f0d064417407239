package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
)

var errSpawnRefused = errors.New("spawn refused")

// fakeHandle is a scriptable subprocess stand-in. The exitOn* flags
// select which stop request the fake honors; a fake with none set
// plays an unkillable process.
type fakeHandle struct {
	mu       sync.Mutex
	pid      int
	alive    bool
	state    domain.SubprocessState
	exitCode int
	killed   bool

	exitOnQuit      bool
	exitOnTerminate bool
	exitOnKill      bool

	quitErr error

	quitCalls      int
	terminateCalls int
	killCalls      int
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{
		pid:   pid,
		alive: true,
		state: domain.ProcessRunning,
	}
}

func (h *fakeHandle) Pid() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) State() domain.SubprocessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHandle) SignalQuit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quitCalls++
	if h.quitErr != nil {
		return h.quitErr
	}
	if h.exitOnQuit {
		h.exitLocked(0, false)
	}
	return nil
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminateCalls++
	if h.exitOnTerminate {
		h.exitLocked(0, false)
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killCalls++
	if h.exitOnKill {
		h.exitLocked(-1, true)
	}
	return nil
}

func (h *fakeHandle) Wait(timeout time.Duration) (ports.WaitResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alive {
		return ports.WaitResult{ExitCode: h.exitCode, Killed: h.killed}, true
	}
	return ports.WaitResult{}, false
}

// exitNow simulates an asynchronous crash.
func (h *fakeHandle) exitNow(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitLocked(code, false)
}

func (h *fakeHandle) exitLocked(code int, killed bool) {
	if !h.alive {
		return
	}
	h.alive = false
	h.exitCode = code
	h.killed = killed
	if killed {
		h.state = domain.ProcessKilled
	} else {
		h.state = domain.ProcessExited
	}
}

func (h *fakeHandle) counts() (quit, terminate, kill int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quitCalls, h.terminateCalls, h.killCalls
}

// fakeLauncher hands out cooperative fakeHandles and records every
// launch. onLaunch lets a test reshape the handle before the caller
// sees it.
type fakeLauncher struct {
	mu        sync.Mutex
	launches  []ports.Command
	handles   []*fakeHandle
	attempts  int
	nextPid   int
	checkErr  error
	launchErr error
	failFirst int // fail this many launch attempts before succeeding
	onLaunch  func(cmd ports.Command, h *fakeHandle)
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPid: 1000}
}

func (l *fakeLauncher) CheckTool(name string) error {
	return l.checkErr
}

func (l *fakeLauncher) Launch(ctx context.Context, cmd ports.Command) (ports.ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	if l.attempts <= l.failFirst {
		return nil, errSpawnRefused
	}
	l.nextPid++
	h := newFakeHandle(l.nextPid)
	h.exitOnQuit = true
	h.exitOnTerminate = true
	h.exitOnKill = true
	if l.onLaunch != nil {
		l.onLaunch(cmd, h)
	}
	l.launches = append(l.launches, cmd)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) attemptCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func (l *fakeLauncher) lastHandle() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

func (l *fakeLauncher) lastCommand() (ports.Command, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.launches) == 0 {
		return ports.Command{}, false
	}
	return l.launches[len(l.launches)-1], true
}

// fakeBuilder emits minimal commands carrying the quit mode contract:
// frame extraction quits by signal, recording quits over stdin.
type fakeBuilder struct{}

func (fakeBuilder) FrameExtraction(scratchDir string) ports.Command {
	return ports.Command{
		Path: "ffmpeg",
		Args: []string{"-extract"},
		Dir:  scratchDir,
		Quit: domain.QuitSignal,
	}
}

func (fakeBuilder) Recording(outputPath string) ports.Command {
	return ports.Command{
		Path: "ffmpeg",
		Args: []string{"-record", outputPath},
		Quit: domain.QuitStdin,
	}
}

func (fakeBuilder) Tool() string {
	return "ffmpeg"
}

// fakeSource is a controllable frame source for health monitor and
// supervisor tests.
type fakeSource struct {
	mu         sync.Mutex
	running    bool
	alive      bool
	lastFrame  time.Time
	latest     *domain.FrameArtifact
	restarts   int
	startErr   error
	restartErr error
	onRestart  func()
}

func (f *fakeSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.alive = true
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.alive = false
}

func (f *fakeSource) Restart(ctx context.Context) error {
	f.mu.Lock()
	f.restarts++
	hook := f.onRestart
	err := f.restartErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeSource) Latest() (*domain.FrameArtifact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil, false
	}
	return f.latest, true
}

func (f *fakeSource) LastFrameAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFrame
}

func (f *fakeSource) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeSource) State() domain.SubprocessState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alive {
		return domain.ProcessRunning
	}
	return domain.ProcessExited
}

func (f *fakeSource) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func (f *fakeSource) setLastFrame(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrame = t
}

type fakeRecorder struct {
	mu       sync.Mutex
	active   bool
	startErr error
	stopErr  error
	stops    int
	current  domain.RecordingFile
}

func (f *fakeRecorder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return domain.ErrAlreadyRecording
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeRecorder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return domain.ErrNotRecording
	}
	if f.stopErr != nil {
		return f.stopErr
	}
	f.active = false
	f.stops++
	return nil
}

func (f *fakeRecorder) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeRecorder) CurrentFile() (domain.RecordingFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || f.current.Path == "" {
		return domain.RecordingFile{}, false
	}
	return f.current, true
}

type fakeMonitor struct {
	mu     sync.Mutex
	starts int
	stops  int
	state  domain.HealthState
}

func (f *fakeMonitor) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
}

func (f *fakeMonitor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeMonitor) State() domain.HealthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return domain.HealthHealthy
	}
	return f.state
}

func (f *fakeMonitor) Stats() domain.HealthStats {
	return domain.HealthStats{}
}

package host

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"browseros-mcporter/internal/config"
)

// ErrNotFound is returned when the host executable does not exist on disk.
var ErrNotFound = errors.New("host executable not found")

// NotFoundError names the path that was tried and how to override it.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("BrowserOS not found at: %s (set %s to override)", e.Path, config.EnvExecutable)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Handle identifies a launched host. Nothing waits on it.
type Handle struct {
	PID     int
	LogPath string
}

// Launcher starts the host detached from the current process.
type Launcher interface {
	// Check reports whether path can be launched without starting it.
	Check(path string) error
	Launch(path string) (Handle, error)
}

// DesktopIntegrationEnv is set in the host environment on launch.
const DesktopIntegrationEnv = "DESKTOPINTEGRATION=1"

// ExecLauncher spawns the host with os/exec, appending its output to logPath.
type ExecLauncher struct {
	logPath string
}

func NewExecLauncher(logPath string) *ExecLauncher {
	return &ExecLauncher{logPath: logPath}
}

// Check fails with a *NotFoundError unless path is an existing file.
func (l *ExecLauncher) Check(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &NotFoundError{Path: path}
	}
	return nil
}

// Launch starts path in its own session and releases it. It does not wait for readiness.
func (l *ExecLauncher) Launch(path string) (Handle, error) {
	if err := l.Check(path); err != nil {
		return Handle{}, err
	}

	if err := os.MkdirAll(filepath.Dir(l.logPath), 0o755); err != nil {
		return Handle{}, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Handle{}, fmt.Errorf("open host log %s: %w", l.logPath, err)
	}
	// The child keeps its own descriptor.
	defer logFile.Close()

	// #nosec G204
	cmd := exec.Command(path)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), DesktopIntegrationEnv)
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("start %s: %w", path, err)
	}
	handle := Handle{PID: cmd.Process.Pid, LogPath: l.logPath}
	_ = cmd.Process.Release()
	return handle, nil
}

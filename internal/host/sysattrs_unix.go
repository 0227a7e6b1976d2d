//go:build !windows

package host

import (
	"os/exec"
	"syscall"
)

// configureDetached starts the child in a new session so it outlives us and
// never receives our terminal's signals.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// Package selfexe recognises processes that run this program's own binary.
//
// The CLI is itself named browseros, so name-based host detection would
// otherwise count a long-lived `browseros serve` as the browser.
package selfexe

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ExeFunc resolves the executable path of a running process.
type ExeFunc func(ctx context.Context, pid int32) (string, error)

// ProcessExe reads the executable path from the process table.
func ProcessExe(ctx context.Context, pid int32) (string, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return p.ExeWithContext(ctx)
}

// Matcher compares process executables against one path.
type Matcher struct {
	self string
	exe  ExeFunc
}

// NewMatcher matches processes whose executable resolves to self.
// An empty self matches nothing.
func NewMatcher(self string, exe ExeFunc) *Matcher {
	if exe == nil {
		exe = ProcessExe
	}
	return &Matcher{self: normalize(self), exe: exe}
}

// Current matches processes running the same binary as this process.
func Current() *Matcher {
	self, err := os.Executable()
	if err != nil {
		self = ""
	}
	return NewMatcher(self, ProcessExe)
}

// Path returns the normalized executable path being matched.
func (m *Matcher) Path() string {
	if m == nil {
		return ""
	}
	return m.self
}

// Matches reports whether pid runs the matched executable.
// Lookup failures count as a non-match so the caller keeps the candidate.
func (m *Matcher) Matches(ctx context.Context, pid int) bool {
	if m == nil || m.self == "" || pid <= 0 {
		return false
	}
	exe, err := m.exe(ctx, int32(pid))
	if err != nil || exe == "" {
		return false
	}
	return normalize(exe) == m.self
}

func normalize(path string) string {
	if path == "" {
		return ""
	}
	// Linux reports a replaced binary as "<path> (deleted)".
	path = strings.TrimSuffix(path, " (deleted)")
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Clean(path)
}

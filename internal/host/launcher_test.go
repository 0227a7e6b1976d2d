package host

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestExecLauncherNotFound(t *testing.T) {
	dir := t.TempDir()
	l := NewExecLauncher(filepath.Join(dir, "browseros.log"))

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(dir, "AppImages", "browseros.appimage")
		_, err := l.Launch(missing)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Path != missing {
			t.Errorf("expected NotFoundError for %s, got %v", missing, err)
		}
		if !strings.Contains(err.Error(), missing) || !strings.Contains(err.Error(), "BROWSEROS_CMD") {
			t.Errorf("message should name path and override, got %q", err.Error())
		}
	})

	t.Run("check without starting", func(t *testing.T) {
		missing := filepath.Join(dir, "BrowserOS.AppImage")
		if err := l.Check(missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound from Check, got %v", err)
		}
		present := filepath.Join(dir, "present")
		if err := os.WriteFile(present, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := l.Check(present); err != nil {
			t.Errorf("expected an existing file to pass Check, got %v", err)
		}
		if err := os.Remove(present); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := l.Launch(dir); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for a directory, got %v", err)
		}
	})

	t.Run("log not created", func(t *testing.T) {
		if _, err := os.Stat(filepath.Join(dir, "browseros.log")); !os.IsNotExist(err) {
			t.Errorf("log file should not exist before a real launch, stat err=%v", err)
		}
	})
}

func TestExecLauncherStartsDetached(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script host requires a unix shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-browseros")
	body := "#!/bin/sh\necho \"desktop=$DESKTOPINTEGRATION\"\necho \"to-stderr\" 1>&2\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	logPath := filepath.Join(dir, "logs", "browseros.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	handle, err := NewExecLauncher(logPath).Launch(script)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if handle.PID <= 0 {
		t.Errorf("expected a pid, got %d", handle.PID)
	}
	if handle.LogPath != logPath {
		t.Errorf("expected log path %s, got %s", logPath, handle.LogPath)
	}

	var content string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		raw, _ := os.ReadFile(logPath)
		content = string(raw)
		if strings.Contains(content, "desktop=1") && strings.Contains(content, "to-stderr") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !strings.HasPrefix(content, "previous run\n") {
		t.Errorf("log should be appended to, got %q", content)
	}
	if !strings.Contains(content, "desktop=1") {
		t.Errorf("expected DESKTOPINTEGRATION=1 in child env, log: %q", content)
	}
	if !strings.Contains(content, "to-stderr") {
		t.Errorf("expected stderr in the same log, log: %q", content)
	}
}

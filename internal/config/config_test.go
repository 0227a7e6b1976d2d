package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "browseros-mcporter" {
		t.Errorf("expected server name 'browseros-mcporter', got %q", cfg.Server.Name)
	}
	if cfg.Host.HealthAddr != "127.0.0.1:9100" {
		t.Errorf("expected health addr '127.0.0.1:9100', got %q", cfg.Host.HealthAddr)
	}
	if cfg.Host.JournalDir != filepath.Join(os.TempDir(), "browseros-runs") || cfg.Host.JournalKeep != 5 {
		t.Errorf("unexpected journal settings %q/%d", cfg.Host.JournalDir, cfg.Host.JournalKeep)
	}
	if cfg.Host.LogFile != filepath.Join(os.TempDir(), "browseros.log") {
		t.Errorf("unexpected host log file %q", cfg.Host.LogFile)
	}
	if cfg.Host.ProcessName != "browseros" {
		t.Errorf("expected process name 'browseros', got %q", cfg.Host.ProcessName)
	}
	if cfg.Tools.CLI != "mcporter" || cfg.Tools.Server != "browseros" {
		t.Errorf("unexpected tools config %+v", cfg.Tools)
	}
	if cfg.Cookies.Origin != "https://x.com" {
		t.Errorf("expected origin 'https://x.com', got %q", cfg.Cookies.Origin)
	}
	if len(cfg.Cookies.Names) != 2 || cfg.Cookies.Names[0] != "auth_token" || cfg.Cookies.Names[1] != "ct0" {
		t.Errorf("unexpected cookie names %v", cfg.Cookies.Names)
	}
	if len(cfg.Cookies.ExcludedPorts) != 2 {
		t.Errorf("expected 2 excluded ports, got %v", cfg.Cookies.ExcludedPorts)
	}
	if cfg.Host.Executable != "" {
		t.Errorf("expected executable to be resolved later, got %q", cfg.Host.Executable)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host.LaunchTimeoutDuration() != 30*time.Second {
		t.Errorf("expected default launch timeout, got %v", cfg.Host.LaunchTimeoutDuration())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `host:
  executable: /opt/browseros/BrowserOS
  launch_timeout: "45s"
cookies:
  names: ["sid"]
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host.Executable != "/opt/browseros/BrowserOS" {
		t.Errorf("expected executable override, got %q", cfg.Host.Executable)
	}
	if cfg.Host.LaunchTimeoutDuration() != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Host.LaunchTimeoutDuration())
	}
	if cfg.Host.PollIntervalDuration() != time.Second {
		t.Errorf("expected default poll interval to survive, got %v", cfg.Host.PollIntervalDuration())
	}
	if len(cfg.Cookies.Names) != 1 || cfg.Cookies.Names[0] != "sid" {
		t.Errorf("expected names [sid], got %v", cfg.Cookies.Names)
	}
	if cfg.Cookies.Origin != "https://x.com" {
		t.Errorf("expected default origin to survive, got %q", cfg.Cookies.Origin)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("host: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("fails validation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty-name.yaml")
		if err := os.WriteFile(path, []byte("server:\n  name: \"\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || err.Error() != "server.name is required" {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	env := func(vals map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := vals[key]
			return v, ok
		}
	}

	t.Run("no overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplyEnv(env(nil))
		if cfg.Host.Executable != "" || cfg.Cookies.DebugPortEnv != "" {
			t.Errorf("expected untouched config, got %+v %+v", cfg.Host, cfg.Cookies)
		}
		if port, err := cfg.Cookies.Port(); err != nil || port != 0 {
			t.Errorf("expected discovery (0), got %d, %v", port, err)
		}
	})

	t.Run("both overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cookies.DebugPort = 9333
		cfg.ApplyEnv(env(map[string]string{
			EnvExecutable: "/tmp/browseros",
			EnvDebugPort:  "9222",
		}))
		if cfg.Host.Executable != "/tmp/browseros" {
			t.Errorf("expected executable override, got %q", cfg.Host.Executable)
		}
		port, err := cfg.Cookies.Port()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if port != 9222 {
			t.Errorf("expected the environment port 9222 to win, got %d", port)
		}
	})

	t.Run("config port without env", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cookies.DebugPort = 9333
		cfg.ApplyEnv(env(nil))
		if port, err := cfg.Cookies.Port(); err != nil || port != 9333 {
			t.Errorf("expected 9333, got %d, %v", port, err)
		}
	})

	t.Run("invalid port is reported lazily", func(t *testing.T) {
		for _, raw := range []string{"abc", "0", "70000", "-1"} {
			cfg := DefaultConfig()
			cfg.ApplyEnv(env(map[string]string{EnvDebugPort: raw}))
			if cfg.Cookies.DebugPortEnv != raw {
				t.Errorf("expected raw value %q to be kept, got %q", raw, cfg.Cookies.DebugPortEnv)
			}
			_, err := cfg.Cookies.Port()
			if err == nil || !strings.Contains(err.Error(), EnvDebugPort) {
				t.Errorf("%q: expected error naming %s, got %v", raw, EnvDebugPort, err)
			}
		}
	})

	t.Run("override wins over resolution", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplyEnv(env(map[string]string{EnvExecutable: "/custom"}))
		if err := cfg.ResolveExecutable("linux", "/home/me", ""); err != nil {
			t.Fatal(err)
		}
		if cfg.Host.Executable != "/custom" {
			t.Errorf("expected override to win, got %q", cfg.Host.Executable)
		}
	})
}

func TestDefaultExecutable(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{goos: "linux", want: filepath.Join("/home/me", "AppImages", "browseros.appimage")},
		{goos: "darwin", want: "/Applications/BrowserOS.app/Contents/MacOS/BrowserOS"},
		{goos: "windows", want: filepath.Join(`C:\Users\me\AppData\Local`, "BrowserOS", "BrowserOS.exe")},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			got, err := DefaultExecutable(tt.goos, "/home/me", `C:\Users\me\AppData\Local`)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.goos)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	h := HostConfig{LaunchTimeout: "bogus", PollInterval: "-1s", ProbeTimeout: "500ms"}
	if h.LaunchTimeoutDuration() != 30*time.Second {
		t.Errorf("expected fallback 30s, got %v", h.LaunchTimeoutDuration())
	}
	if h.PollIntervalDuration() != time.Second {
		t.Errorf("expected fallback 1s, got %v", h.PollIntervalDuration())
	}
	if h.ProbeTimeoutDuration() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", h.ProbeTimeoutDuration())
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvExecutable overrides the per-platform BrowserOS executable path.
	EnvExecutable = "BROWSEROS_CMD"
	// EnvDebugPort overrides remote-debugging port discovery.
	EnvDebugPort = "BROWSEROS_PORT"
)

// Config captures all tunable settings for the BrowserOS helper.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Host    HostConfig    `yaml:"host"`
	Tools   ToolsConfig   `yaml:"tools"`
	Cookies CookiesConfig `yaml:"cookies"`
	MCP     MCPConfig     `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Diagnostic log for this process (not the host's output log).
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// HostConfig describes how to probe, detect and launch BrowserOS.
type HostConfig struct {
	// Executable path. Empty means the platform default (see ResolveExecutable).
	Executable string `yaml:"executable"`
	// Loopback address of the health endpoint.
	HealthAddr string `yaml:"health_addr"`
	// Substring matched against process command lines on unix.
	ProcessName string `yaml:"process_name"`
	// Image name matched by tasklist on windows.
	ImageName string `yaml:"image_name"`
	// File receiving the launched host's stdout and stderr.
	LogFile string `yaml:"log_file"`
	// How long to wait for a freshly launched host (e.g., "30s").
	LaunchTimeout string `yaml:"launch_timeout"`
	// Interval between health probes while waiting (e.g., "1s").
	PollInterval string `yaml:"poll_interval"`
	// Bound on a single health probe (e.g., "2s").
	ProbeTimeout string `yaml:"probe_timeout"`
	// Directory holding one JSONL journal per ensure run. Empty disables it.
	JournalDir  string `yaml:"journal_dir"`
	JournalKeep int    `yaml:"journal_keep"`
}

// ToolsConfig configures the external MCP CLI used to call host tools.
type ToolsConfig struct {
	CLI    string `yaml:"cli"`
	Server string `yaml:"server"`
}

// CookiesConfig configures session cookie extraction over CDP.
type CookiesConfig struct {
	// Remote-debugging port. Zero means discover it.
	DebugPort int `yaml:"debug_port"`
	// Raw BROWSEROS_PORT value; checked by Port, not at load time.
	DebugPortEnv string   `yaml:"-"`
	Origin       string   `yaml:"origin"`
	Names        []string `yaml:"names"`
	// Ports owned by the host that are never the CDP port.
	ExcludedPorts []int `yaml:"excluded_ports"`
}

type MCPConfig struct {
	// When set, serves over SSE on this port instead of stdio.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides the reference behavior.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "browseros-mcporter",
			Version:  "0.1.0",
			LogFile:  filepath.Join(os.TempDir(), "browseros-mcporter.log"),
			LogLevel: "info",
		},
		Host: HostConfig{
			HealthAddr:    "127.0.0.1:9100",
			ProcessName:   "browseros",
			ImageName:     "BrowserOS.exe",
			LogFile:       filepath.Join(os.TempDir(), "browseros.log"),
			LaunchTimeout: "30s",
			PollInterval:  "1s",
			ProbeTimeout:  "2s",
			JournalDir:    filepath.Join(os.TempDir(), "browseros-runs"),
			JournalKeep:   5,
		},
		Tools: ToolsConfig{
			CLI:    "mcporter",
			Server: "browseros",
		},
		Cookies: CookiesConfig{
			Origin:        "https://x.com",
			Names:         []string{"auth_token", "ct0"},
			ExcludedPorts: []int{9100, 10864},
		},
	}
}

// Load overlays an optional YAML file on the defaults. An empty path yields defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv applies the recognized environment overrides. lookup is usually os.LookupEnv.
// BROWSEROS_PORT is only recorded; commands that never read cookies ignore it.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvExecutable); ok && v != "" {
		c.Host.Executable = v
	}
	if v, ok := lookup(EnvDebugPort); ok && v != "" {
		c.Cookies.DebugPortEnv = v
	}
}

// Port returns the remote-debugging port to use, zero meaning discover it.
// BROWSEROS_PORT wins over debug_port and must be a valid TCP port.
func (c CookiesConfig) Port() (int, error) {
	if c.DebugPortEnv == "" {
		return c.DebugPort, nil
	}
	port, err := strconv.Atoi(c.DebugPortEnv)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be a TCP port, got %q", EnvDebugPort, c.DebugPortEnv)
	}
	return port, nil
}

// ResolveExecutable fills Host.Executable with the platform default when no override is set.
func (c *Config) ResolveExecutable(goos, home, localAppData string) error {
	if c.Host.Executable != "" {
		return nil
	}
	path, err := DefaultExecutable(goos, home, localAppData)
	if err != nil {
		return err
	}
	c.Host.Executable = path
	return nil
}

// DefaultExecutable returns where BrowserOS is installed by default on goos.
func DefaultExecutable(goos, home, localAppData string) (string, error) {
	switch goos {
	case "linux":
		return filepath.Join(home, "AppImages", "browseros.appimage"), nil
	case "darwin":
		return "/Applications/BrowserOS.app/Contents/MacOS/BrowserOS", nil
	case "windows":
		return filepath.Join(localAppData, "BrowserOS", "BrowserOS.exe"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Validate ensures required fields exist so commands behave deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Host.HealthAddr == "" {
		return errors.New("host.health_addr is required")
	}
	if c.Host.LogFile == "" {
		return errors.New("host.log_file is required")
	}
	if c.Tools.CLI == "" || c.Tools.Server == "" {
		return errors.New("tools.cli and tools.server are required")
	}
	if c.Cookies.Origin == "" || len(c.Cookies.Names) == 0 {
		return errors.New("cookies.origin and cookies.names are required")
	}
	return nil
}

// LaunchTimeoutDuration returns the parsed launch wait budget with a sane default.
func (h HostConfig) LaunchTimeoutDuration() time.Duration {
	return parseDuration(h.LaunchTimeout, 30*time.Second)
}

// PollIntervalDuration returns the parsed polling interval with a sane default.
func (h HostConfig) PollIntervalDuration() time.Duration {
	return parseDuration(h.PollInterval, time.Second)
}

// ProbeTimeoutDuration returns the parsed single-probe bound with a sane default.
func (h HostConfig) ProbeTimeoutDuration() time.Duration {
	return parseDuration(h.ProbeTimeout, 2*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

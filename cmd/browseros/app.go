package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"browseros-mcporter/internal/config"
	"browseros-mcporter/internal/cookies"
	"browseros-mcporter/internal/host"
	"browseros-mcporter/internal/logging"
	"browseros-mcporter/internal/metrics"
	"browseros-mcporter/internal/recorder"
	"browseros-mcporter/internal/toolcall"
)

// app holds the configuration and logger shared by all commands.
type app struct {
	env    environment
	flags  *GlobalFlags
	cfg    config.Config
	logger *slog.Logger
	closer io.Closer
	rec    *recorder.Recorder
}

func (a *app) init() error {
	cfg, err := config.Load(a.flags.ConfigPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(a.env.lookup)
	a.cfg = cfg
	a.logger, a.closer = logging.New(logging.Config{
		Path:  cfg.Server.LogFile,
		Level: cfg.Server.LogLevel,
	})
	return nil
}

func (a *app) close() {
	if a.rec != nil {
		_ = a.rec.Close()
	}
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) home() string {
	if v, ok := a.env.lookup("HOME"); ok && v != "" {
		return v
	}
	if v, ok := a.env.lookup("USERPROFILE"); ok && v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return home
}

// orchestrator resolves the executable and wires the readiness state machine.
// Events go to the run journal and, when progress is set, to stderr.
func (a *app) orchestrator(progress bool) (*host.Orchestrator, error) {
	localAppData, _ := a.env.lookup("LOCALAPPDATA")
	if err := a.cfg.ResolveExecutable(a.env.goos, a.home(), localAppData); err != nil {
		return nil, err
	}

	hc := a.cfg.Host
	detector := host.NewCommandDetector(a.env.goos, hc.ProcessName, hc.ImageName)
	a.logger.Debug("host settings",
		"executable", hc.Executable,
		"health", hc.HealthAddr,
		"detector", detector.Describe())

	return host.NewOrchestrator(
		host.NewHTTPProber(hc.HealthAddr, hc.ProbeTimeoutDuration()),
		detector,
		host.NewExecLauncher(hc.LogFile),
		host.Options{
			Executable:    hc.Executable,
			LaunchTimeout: hc.LaunchTimeoutDuration(),
			PollInterval:  hc.PollIntervalDuration(),
			Logger:        a.logger,
			Notify:        a.notifier(progress),
		},
	), nil
}

func (a *app) notifier(progress bool) func(host.Event) {
	if hc := a.cfg.Host; hc.JournalDir != "" && a.rec == nil {
		rec, err := recorder.NewRecorder(hc.JournalDir, hc.JournalKeep)
		if err != nil {
			a.logger.Warn("run journal disabled", "dir", hc.JournalDir, "error", err)
		} else {
			a.rec = rec
		}
	}
	return func(ev host.Event) {
		if a.rec != nil {
			journal(a.rec, ev, a.logger)
		}
		if ev.Kind == host.EventDone {
			metrics.ObserveEnsure(ev.Outcome.String(), ev.Elapsed.Seconds())
		}
		if progress {
			a.progress(ev)
		}
	}
}

// journal records ev under its run, opening and closing the run file at the edges.
func journal(rec *recorder.Recorder, ev host.Event, logger *slog.Logger) {
	if ev.Kind == host.EventChecking {
		if err := rec.Start(ev.RunID); err != nil {
			logger.Warn("starting run journal failed", "error", err)
			return
		}
	}

	data := map[string]interface{}{}
	if ev.Path != "" {
		data["path"] = ev.Path
	}
	if ev.Kind != host.EventChecking && ev.Kind != host.EventLaunching {
		data["elapsed_ms"] = ev.Elapsed.Milliseconds()
	}
	if ev.Kind == host.EventDone {
		data["outcome"] = ev.Outcome.String()
	}
	rec.Log(ev.Kind.String(), ev.RunID, data)

	if ev.Kind == host.EventDone {
		_ = rec.Close()
	}
}

// progress renders orchestrator events as the human-facing status lines.
func (a *app) progress(ev host.Event) {
	switch ev.Kind {
	case host.EventLaunching:
		_, _ = fmt.Fprintln(a.env.stderr, "BrowserOS not running. Launching...")
	case host.EventWaiting:
		_, _ = fmt.Fprintf(a.env.stderr, "Waiting for BrowserOS... (%d/%d)\n",
			int(ev.Elapsed.Seconds()), int(ev.Total.Seconds()))
	}
}

func (a *app) toolClient(orch *host.Orchestrator) *toolcall.Client {
	return toolcall.NewClient(orch, a.cfg.Tools.CLI, a.cfg.Tools.Server, a.logger)
}

func (a *app) cookieReader() *cookies.Reader {
	c := a.cfg.Cookies
	var ports cookies.PortSource
	if port, err := c.Port(); err != nil {
		ports = badPort{err: err}
	} else {
		ports = cookies.NewPortFinder(port, a.cfg.Host.ProcessName, c.ExcludedPorts)
	}
	return cookies.NewReader(ports, cookies.RodSource{}, c.Origin, c.Names, a.logger)
}

// badPort surfaces a malformed port override on each extraction.
type badPort struct{ err error }

func (p badPort) Find(context.Context) (int, error) { return 0, p.err }

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Outcome is the terminal classification of one Ensure call.
type Outcome int

const (
	AlreadyRunning Outcome = iota
	LaunchedAndReady
	ProcessStuck
	LaunchFailed
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case AlreadyRunning:
		return "already_running"
	case LaunchedAndReady:
		return "launched_and_ready"
	case ProcessStuck:
		return "process_stuck"
	case LaunchFailed:
		return "launch_failed"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// OK reports whether the host is usable after this outcome.
func (o Outcome) OK() bool {
	return o == AlreadyRunning || o == LaunchedAndReady
}

// Result describes how Ensure finished.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
	LogPath string  `json:"log_path,omitempty"`
	PID     int     `json:"pid,omitempty"`
	// Elapsed always counts from the first health check.
	Elapsed time.Duration `json:"elapsed"`
	// Waited counts from the launch; zero when nothing was launched.
	Waited time.Duration `json:"waited,omitempty"`
	// Health probes issued while waiting for a launched host.
	Probes int `json:"probes"`
}

// Err converts a failed result into an error carrying its message.
func (r Result) Err() error {
	if r.Outcome.OK() {
		return nil
	}
	return errors.New(r.Message)
}

// EventKind identifies a progress notification.
type EventKind int

const (
	EventChecking EventKind = iota
	EventLaunching
	EventWaiting
	EventReady
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventChecking:
		return "checking"
	case EventLaunching:
		return "launching"
	case EventWaiting:
		return "waiting"
	case EventReady:
		return "ready"
	case EventDone:
		return "done"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an observability signal; the state machine never reads it back.
// Waiting and Ready events measure Elapsed from the launch, Done from the first check.
type Event struct {
	Kind    EventKind
	RunID   string
	Path    string
	Elapsed time.Duration
	Total   time.Duration
	// Set on EventDone only.
	Outcome Outcome
}

// Options tunes an Orchestrator. Zero values fall back to the reference behavior.
type Options struct {
	Executable    string
	LaunchTimeout time.Duration
	PollInterval  time.Duration
	Clock         Clock
	Logger        *slog.Logger
	Notify        func(Event)
}

// Orchestrator composes probe, detection and launch into the readiness state machine:
//
//	Checking -> Running
//	         -> ProcessFound
//	         -> Launching -> Polling -> Ready | TimedOut
type Orchestrator struct {
	prober   Prober
	detector Detector
	launcher Launcher
	opts     Options
	inflight singleflight.Group
}

func NewOrchestrator(prober Prober, detector Detector, launcher Launcher, opts Options) *Orchestrator {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Notify == nil {
		opts.Notify = func(Event) {}
	}
	return &Orchestrator{prober: prober, detector: detector, launcher: launcher, opts: opts}
}

// ensureKey is the single in-flight slot shared by concurrent Ensure calls.
const ensureKey = "ensure"

// Ensure makes sure the host is healthy, launching it if no process exists.
// Concurrent calls join the run already in flight, driven by the first
// caller's ctx, and share its result.
// The returned error is non-nil only when ctx is cancelled mid-wait.
func (o *Orchestrator) Ensure(ctx context.Context) (Result, error) {
	v, err, shared := o.inflight.Do(ensureKey, func() (interface{}, error) {
		return o.ensureOnce(ctx)
	})
	res, _ := v.(Result)
	if shared {
		o.opts.Logger.Debug("shared in-flight ensure", "outcome", res.Outcome.String())
	}
	return res, err
}

func (o *Orchestrator) ensureOnce(ctx context.Context) (Result, error) {
	r := &run{o: o, id: uuid.NewString()}
	r.log = o.opts.Logger.With("run_id", r.id)

	res, err := r.ensure(ctx)
	if err == nil {
		r.notify(Event{Kind: EventDone, Elapsed: res.Elapsed, Outcome: res.Outcome})
	}
	return res, err
}

// run is the state of one ensure run, shared by every caller that joined it.
type run struct {
	o   *Orchestrator
	id  string
	log *slog.Logger
}

func (r *run) notify(ev Event) {
	ev.RunID = r.id
	r.o.opts.Notify(ev)
}

func (r *run) ensure(ctx context.Context) (Result, error) {
	o, log := r.o, r.log
	started := o.opts.Clock.Now()
	r.notify(Event{Kind: EventChecking, Path: o.opts.Executable})

	if o.prober.Probe(ctx) == Healthy {
		log.Info("host healthy", "outcome", AlreadyRunning.String())
		return Result{
			Outcome: AlreadyRunning,
			Message: "BrowserOS is running",
			Elapsed: o.opts.Clock.Now().Sub(started),
		}, nil
	}

	if o.detector.Present(ctx) {
		log.Warn("host process present but unhealthy", "outcome", ProcessStuck.String())
		return Result{
			Outcome: ProcessStuck,
			Message: "BrowserOS process found but health check failed. Restart to fix.",
			Elapsed: o.opts.Clock.Now().Sub(started),
		}, nil
	}

	if err := o.launcher.Check(o.opts.Executable); err != nil {
		log.Error("host executable unusable", "path", o.opts.Executable, "error", err)
		return r.launchFailed(err, started), nil
	}

	r.notify(Event{Kind: EventLaunching, Path: o.opts.Executable})
	handle, err := o.launcher.Launch(o.opts.Executable)
	if err != nil {
		log.Error("launch failed", "path", o.opts.Executable, "error", err)
		return r.launchFailed(err, started), nil
	}
	log.Info("host launched", "pid", handle.PID, "log", handle.LogPath)

	return r.waitReady(ctx, handle, started)
}

func (r *run) launchFailed(err error, started time.Time) Result {
	return Result{
		Outcome: LaunchFailed,
		Message: err.Error(),
		Elapsed: r.o.opts.Clock.Now().Sub(started),
	}
}

// waitReady polls until the launched host reports healthy or the budget runs out.
// The budget counts from the launch; Result.Elapsed still counts from started.
func (r *run) waitReady(ctx context.Context, handle Handle, started time.Time) (Result, error) {
	o, log := r.o, r.log
	res := Result{PID: handle.PID, LogPath: handle.LogPath}
	launchedAt := o.opts.Clock.Now()
	mark := func() {
		now := o.opts.Clock.Now()
		res.Waited = now.Sub(launchedAt)
		res.Elapsed = now.Sub(started)
	}

	for {
		if err := o.opts.Clock.Sleep(ctx, o.opts.PollInterval); err != nil {
			mark()
			return res, fmt.Errorf("waiting for BrowserOS: %w", err)
		}

		res.Probes++
		healthy := o.prober.Probe(ctx) == Healthy
		mark()

		if healthy {
			log.Info("host ready", "waited", res.Waited, "probes", res.Probes)
			r.notify(Event{Kind: EventReady, Elapsed: res.Waited, Total: o.opts.LaunchTimeout})
			res.Outcome = LaunchedAndReady
			res.Message = "BrowserOS is ready!"
			return res, nil
		}
		if res.Waited > o.opts.LaunchTimeout {
			log.Error("timed out waiting for host", "waited", res.Waited, "log", handle.LogPath)
			res.Outcome = Timeout
			res.Message = fmt.Sprintf("Timeout waiting for BrowserOS. Check log: %s", handle.LogPath)
			return res, nil
		}
		r.notify(Event{Kind: EventWaiting, Elapsed: res.Waited, Total: o.opts.LaunchTimeout})
	}
}

// State is a point-in-time classification that never launches anything.
type State string

const (
	StateHealthy State = "healthy"
	StateStuck   State = "stuck"
	StateAbsent  State = "absent"
)

// Status probes and, if unhealthy, checks for a process without launching.
func (o *Orchestrator) Status(ctx context.Context) State {
	if o.prober.Probe(ctx) == Healthy {
		return StateHealthy
	}
	if o.detector.Present(ctx) {
		return StateStuck
	}
	return StateAbsent
}

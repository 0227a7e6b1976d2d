package cookies

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"

	"browseros-mcporter/internal/selfexe"
)

// ErrPortNotFound means no remote-debugging port could be discovered.
var ErrPortNotFound = errors.New("could not find BrowserOS CDP port; make sure BrowserOS is running or set BROWSEROS_PORT")

// Listener is a listening TCP socket and the process owning it.
// PID is zero when the owner is unknown.
type Listener struct {
	Port    int
	Process string
	PID     int
}

type (
	listenerFunc func(ctx context.Context) ([]Listener, error)
	runFunc      func(ctx context.Context, name string, args ...string) ([]byte, error)
)

// PortFinder discovers the host's remote-debugging port.
type PortFinder struct {
	override    int
	processName string
	excluded    map[int]bool
	self        *selfexe.Matcher
	listeners   listenerFunc
	run         runFunc
}

// NewPortFinder returns a finder. A non-zero override short-circuits discovery.
// Sockets owned by this program's own binary are never picked.
func NewPortFinder(override int, processName string, excluded []int) *PortFinder {
	ex := make(map[int]bool, len(excluded))
	for _, p := range excluded {
		ex[p] = true
	}
	return &PortFinder{
		override:    override,
		processName: strings.ToLower(processName),
		excluded:    ex,
		self:        selfexe.Current(),
		listeners:   socketTable,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			// #nosec G204
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Find tries the override, then the socket table, then ss and netstat output.
func (f *PortFinder) Find(ctx context.Context) (int, error) {
	if f.override > 0 {
		return f.override, nil
	}

	if ls, err := f.listeners(ctx); err == nil {
		if port, ok := f.pick(ctx, ls); ok {
			return port, nil
		}
	}

	for _, tool := range []string{"ss", "netstat"} {
		out, err := f.run(ctx, tool, "-tlnp")
		if err != nil {
			continue
		}
		if port, ok := f.pick(ctx, parseListenTable(out)); ok {
			return port, nil
		}
	}
	return 0, ErrPortNotFound
}

// pick returns the lowest non-excluded port owned by the host process.
func (f *PortFinder) pick(ctx context.Context, ls []Listener) (int, bool) {
	var ports []int
	self := make(map[int]bool)
	for _, l := range ls {
		if l.Port <= 0 || f.excluded[l.Port] {
			continue
		}
		if !strings.Contains(strings.ToLower(l.Process), f.processName) {
			continue
		}
		if l.PID > 0 {
			mine, seen := self[l.PID]
			if !seen {
				mine = f.self.Matches(ctx, l.PID)
				self[l.PID] = mine
			}
			if mine {
				continue
			}
		}
		ports = append(ports, l.Port)
	}
	if len(ports) == 0 {
		return 0, false
	}
	sort.Ints(ports)
	return ports[0], true
}

func socketTable(ctx context.Context) ([]Listener, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	names := make(map[int32]string)
	var out []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Pid == 0 {
			continue
		}
		name, seen := names[c.Pid]
		if !seen {
			if p, err := gopsproc.NewProcessWithContext(ctx, c.Pid); err == nil {
				name, _ = p.NameWithContext(ctx)
			}
			names[c.Pid] = name
		}
		out = append(out, Listener{Port: int(c.Laddr.Port), Process: name, PID: int(c.Pid)})
	}
	return out, nil
}

// parseListenTable reads `ss -tlnp` or `netstat -tlnp` output. Both put the
// local address in the fourth column; the owning process is whatever follows.
func parseListenTable(out []byte) []Listener {
	var ls []Listener
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		local := fields[3]
		idx := strings.LastIndex(local, ":")
		if idx < 0 {
			continue
		}
		port, err := strconv.Atoi(local[idx+1:])
		if err != nil {
			continue
		}
		owner := strings.Join(fields[4:], " ")
		ls = append(ls, Listener{Port: port, Process: owner, PID: ownerPID(owner)})
	}
	return ls
}

// ownerPID reads "pid=811" (ss) or "811/name" (netstat) from the owner column.
func ownerPID(owner string) int {
	if i := strings.Index(owner, "pid="); i >= 0 {
		rest := owner[i+len("pid="):]
		end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
		if end < 0 {
			end = len(rest)
		}
		pid, _ := strconv.Atoi(rest[:end])
		return pid
	}
	for _, field := range strings.Fields(owner) {
		if slash := strings.Index(field, "/"); slash > 0 {
			if pid, err := strconv.Atoi(field[:slash]); err == nil {
				return pid
			}
		}
	}
	return 0
}

package host

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"browseros-mcporter/internal/selfexe"
)

// Detector reports whether a host process exists, regardless of its health.
type Detector interface {
	Present(ctx context.Context) bool
}

// runFunc executes name with args and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204
	return exec.CommandContext(ctx, name, args...).Output()
}

// CommandDetector shells out to the platform process lister.
// Any failure of the lister itself counts as "not present".
type CommandDetector struct {
	goos        string
	processName string
	imageName   string
	ignore      map[int]bool
	self        *selfexe.Matcher
	run         runFunc
}

// NewCommandDetector matches processName on unix (pgrep -f) and imageName on windows (tasklist).
// Processes running this program's own binary never count.
func NewCommandDetector(goos, processName, imageName string) *CommandDetector {
	return &CommandDetector{
		goos:        goos,
		processName: processName,
		imageName:   imageName,
		ignore:      map[int]bool{os.Getpid(): true, os.Getppid(): true},
		self:        selfexe.Current(),
		run:         runCommand,
	}
}

func (d *CommandDetector) Present(ctx context.Context) bool {
	var pids []int
	if d.goos == "windows" {
		out, err := d.run(ctx, "tasklist", "/FI", "IMAGENAME eq "+d.imageName, "/FO", "CSV", "/NH")
		if err != nil {
			return false
		}
		pids = parseTasklist(out, d.imageName, d.ignore)
	} else {
		out, err := d.run(ctx, "pgrep", "-f", d.processName)
		if err != nil {
			// pgrep exits 1 when nothing matches.
			return false
		}
		pids = parsePIDs(out, d.ignore)
	}

	for _, pid := range pids {
		if !d.self.Matches(ctx, pid) {
			return true
		}
	}
	return false
}

// Describe returns a human-readable description of the detection method.
func (d *CommandDetector) Describe() string {
	if d.goos == "windows" {
		return "tasklist:" + d.imageName
	}
	return "pgrep:" + d.processName
}

func parsePIDs(out []byte, ignore map[int]bool) []int {
	var pids []int
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || ignore[pid] {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// parseTasklist reads `tasklist /FO CSV /NH` rows: "image","pid",...
func parseTasklist(out []byte, image string, ignore map[int]bool) []int {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil
	}

	var pids []int
	for _, row := range rows {
		if len(row) < 2 || !strings.EqualFold(strings.TrimSpace(row[0]), image) {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || ignore[pid] {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

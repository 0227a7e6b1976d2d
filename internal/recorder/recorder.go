// Package recorder keeps a small rotating JSONL journal of ensure runs, one
// file per run, so a failed launch can be inspected after the fact.
package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	DefaultKeep = 5
	fileExt     = ".jsonl"
)

// ErrNoRuns is returned by Latest when the journal directory holds no runs.
var ErrNoRuns = errors.New("no ensure runs recorded")

// Entry is a single journal line.
type Entry struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder writes the journal of the current run.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	runID   string
	dir     string
	keep    int
	now     func() time.Time
}

// NewRecorder creates dir if needed and keeps at most keep run files in it.
func NewRecorder(dir string, keep int) (*Recorder, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Recorder{dir: dir, keep: keep, now: time.Now}, nil
}

// Start opens the journal for runID, closing any previous run and pruning old files.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate journal: %w", err)
	}

	name := fmt.Sprintf("run_%d_%s%s", r.now().UnixMilli(), runID, fileExt)
	f, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	return nil
}

// Log appends an entry to the current run. Entries for other runs are dropped.
func (r *Recorder) Log(entryType, runID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil || runID != r.runID {
		return
	}
	_ = r.encoder.Encode(Entry{
		Timestamp: r.now(),
		Type:      entryType,
		RunID:     runID,
		Data:      data,
	})
}

// Close finishes the current run.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	r.runID = ""
	return err
}

// rotate leaves room for one new file within the keep limit.
func (r *Recorder) rotate() error {
	runs, err := listRuns(r.dir)
	if err != nil {
		return err
	}
	for i := r.keep - 1; i < len(runs); i++ {
		_ = os.Remove(filepath.Join(r.dir, runs[i]))
	}
	return nil
}

// listRuns returns journal file names, newest first. Names sort by start time.
func listRuns(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Latest returns the entries of the most recent run in dir.
func Latest(dir string) ([]Entry, error) {
	runs, err := listRuns(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRuns
		}
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	f, err := os.Open(filepath.Join(dir, runs[0]))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			// A run interrupted mid-write leaves a partial last line.
			break
		}
		out = append(out, e)
	}
	return out, nil
}

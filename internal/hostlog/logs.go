// Package hostlog reads and classifies the BrowserOS host's stdout/stderr log
// so launch failures can be explained without opening the file by hand.
package hostlog

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// Entry is one parsed log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`            // ERROR, WARNING, INFO, VERBOSE
	Tag       string    `json:"tag,omitempty"`    // [STARTUP], [MCP], etc.
	Source    string    `json:"source,omitempty"` // file.cc(123) for Chromium lines
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

var (
	// [pid:tid:MMDD/HHMMSS.micros:LEVEL:file.cc(123)] message
	chromiumPattern = regexp.MustCompile(`^\[(?:\d+:)*(\d{4}/\d{6}\.\d+):([A-Z]+(?:\d+)?):([^\]]+)\]\s*(.*)$`)
	isoTsPattern    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T[\d:.]+(?:Z|[+-]\d{2}:\d{2})?)\s+(.*)$`)
	tagPattern      = regexp.MustCompile(`^\[([A-Z_]+)\]\s+(.*)$`)
	levelPattern    = regexp.MustCompile(`(?i)^(ERROR|WARN|WARNING|INFO|DEBUG|FATAL):\s*(.*)$`)
	pipePattern     = regexp.MustCompile(`(?i)^.*\|\s*(ERROR|WARN|WARNING|INFO|DEBUG)\s*\|\s*(.*)$`)
)

// Parse classifies every non-empty line of text. year fills in Chromium
// timestamps, which omit it.
func Parse(text string, year int) []Entry {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, parseLine(line, year))
	}
	return entries
}

func parseLine(line string, year int) Entry {
	entry := Entry{Level: "INFO", Raw: line}
	remaining := line

	if m := chromiumPattern.FindStringSubmatch(line); len(m) == 5 {
		if ts, err := time.ParseInLocation("0102/150405.000000", m[1], time.Local); err == nil {
			entry.Timestamp = ts.AddDate(year, 0, 0)
		}
		entry.Level = normalizeLevel(m[2])
		entry.Source = m[3]
		entry.Message = m[4]
		return entry
	}

	if m := isoTsPattern.FindStringSubmatch(line); len(m) == 3 {
		if ts, err := time.Parse(time.RFC3339Nano, m[1]); err == nil {
			entry.Timestamp = ts
		}
		remaining = m[2]
	}

	if m := tagPattern.FindStringSubmatch(remaining); len(m) == 3 {
		entry.Tag = m[1]
		entry.Message = m[2]
		entry.Level = inferLevelFromTag(m[1], m[2])
		return entry
	}
	if m := levelPattern.FindStringSubmatch(remaining); len(m) == 3 {
		entry.Level = normalizeLevel(m[1])
		entry.Message = m[2]
		return entry
	}
	if m := pipePattern.FindStringSubmatch(remaining); len(m) == 3 {
		entry.Level = normalizeLevel(m[1])
		entry.Message = m[2]
		return entry
	}

	entry.Level = inferLevelFromMessage(remaining)
	entry.Message = remaining
	return entry
}

func normalizeLevel(level string) string {
	switch l := strings.ToUpper(level); {
	case l == "WARN" || l == "WARNING":
		return "WARNING"
	case l == "FATAL" || l == "ERROR":
		return "ERROR"
	case strings.HasPrefix(l, "VERBOSE"):
		return "VERBOSE"
	case l == "DEBUG":
		return "DEBUG"
	default:
		return "INFO"
	}
}

func inferLevelFromTag(tag, message string) string {
	switch tag {
	case "ERROR", "CRITICAL", "FATAL", "EXCEPTION":
		return "ERROR"
	case "WARNING", "WARN":
		return "WARNING"
	}
	return inferLevelFromMessage(message)
}

// inferLevelFromMessage guesses the level of unstructured output.
func inferLevelFromMessage(message string) string {
	msg := strings.ToLower(message)

	errorPatterns := []string{
		"error", "exception", "failed", "failure", "fatal", "panic",
		"crash", "segfault", "eaddrinuse", "refused", "denied",
		"cannot open display", "no such file",
	}
	for _, pattern := range errorPatterns {
		if strings.Contains(msg, pattern) {
			return "ERROR"
		}
	}

	warningPatterns := []string{
		"warning", "warn", "deprecated", "retry", "fallback", "missing",
	}
	for _, pattern := range warningPatterns {
		if strings.Contains(msg, pattern) {
			return "WARNING"
		}
	}
	return "INFO"
}

// FilterErrors returns only ERROR and WARNING entries.
func FilterErrors(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Level == "ERROR" || e.Level == "WARNING" {
			out = append(out, e)
		}
	}
	return out
}

// FilterByLevel returns entries at exactly level (case-insensitive).
func FilterByLevel(entries []Entry, level string) []Entry {
	want := normalizeLevel(level)
	var out []Entry
	for _, e := range entries {
		if e.Level == want {
			out = append(out, e)
		}
	}
	return out
}

// Summary counts problems in a log excerpt.
type Summary struct {
	Lines        int    `json:"lines"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`
	Status       string `json:"status"` // clean, degraded, failing
}

// Summarize grades an excerpt by its error and warning counts.
func Summarize(entries []Entry) Summary {
	s := Summary{Lines: len(entries), Status: "clean"}
	for _, e := range entries {
		switch e.Level {
		case "ERROR":
			s.ErrorCount++
		case "WARNING":
			s.WarningCount++
		}
	}
	if s.ErrorCount > 5 {
		s.Status = "failing"
	} else if s.ErrorCount > 0 || s.WarningCount > 10 {
		s.Status = "degraded"
	}
	return s
}

// maxTailBytes bounds how much of a log file is read to produce a tail.
const maxTailBytes = 256 << 10

// Tail returns up to n trailing lines of path.
func Tail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - maxTailBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}

	data = bytes.TrimRight(data, "\n")
	if len(data) == 0 || n <= 0 {
		return "", nil
	}
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n"))) + "\n", nil
}

// Recent parses the last n lines of path.
func Recent(path string, n int, now time.Time) ([]Entry, error) {
	text, err := Tail(path, n)
	if err != nil {
		return nil, err
	}
	return Parse(text, now.Year()), nil
}

// Package toolcall forwards MCP tool calls to BrowserOS through the mcporter CLI.
package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"

	"browseros-mcporter/internal/host"
)

var (
	// ErrCLINotFound means the mcporter binary is not on PATH.
	ErrCLINotFound = errors.New("mcporter not found. Install: npm install -g mcporter")
	// ErrInvalidArgs means the argument payload is not a JSON document.
	ErrInvalidArgs = errors.New("tool arguments must be valid JSON")
)

// Ensurer is the readiness precondition for every call.
type Ensurer interface {
	Ensure(ctx context.Context) (host.Result, error)
}

// runner executes the CLI and returns stdout, stderr and the exit error.
type runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Client calls tools on the BrowserOS MCP server.
type Client struct {
	ensurer Ensurer
	cli     string
	server  string
	logger  *slog.Logger
	run     runner
}

// NewClient uses cli (e.g. "mcporter") to reach the MCP server registered as server.
func NewClient(ensurer Ensurer, cli, server string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ensurer: ensurer,
		cli:     cli,
		server:  server,
		logger:  logger,
		run:     execRunner,
	}
}

// Call ensures the host is ready, then invokes tool with argsJSON and returns
// the CLI's stdout verbatim. An empty argsJSON means "{}".
func (c *Client) Call(ctx context.Context, tool, argsJSON string) (string, error) {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return "", errors.New("tool name is required")
	}
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}
	if !json.Valid([]byte(argsJSON)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidArgs, argsJSON)
	}

	res, err := c.ensurer.Ensure(ctx)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}

	args := []string{"call", c.server + "." + tool, "--args", argsJSON, "--output", "json"}
	c.logger.Debug("calling tool", "cli", c.cli, "tool", tool)
	stdout, stderr, err := c.run(ctx, c.cli, args...)
	if err != nil {
		return "", c.classify(err, stderr)
	}
	return string(stdout), nil
}

func (c *Client) classify(err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return ErrCLINotFound
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("%s exited with code %d", c.cli, exitErr.ExitCode())
	}
	return fmt.Errorf("run %s: %w", c.cli, err)
}

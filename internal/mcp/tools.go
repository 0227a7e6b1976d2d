package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"browseros-mcporter/internal/host"
	"browseros-mcporter/internal/hostlog"
)

type EnsureTool struct {
	ensurer HostEnsurer
}

func (t *EnsureTool) Name() string { return "ensure-browseros" }
func (t *EnsureTool) Description() string {
	return `Make sure BrowserOS is running and healthy, launching it if no process exists.

Outcomes:
- already_running / launched_and_ready: BrowserOS is usable
- process_stuck: a BrowserOS process exists but /health fails; restart it manually
- launch_failed: the executable was not found (set BROWSEROS_CMD)
- timeout: launched but never became healthy; check the log file named in the message

Returns: {outcome, ok, message, log_path, elapsed_ms, probes}
On timeout also: {log_summary, recent_problems} from the tail of the host log.`
}
func (t *EnsureTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *EnsureTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	res, err := t.ensurer.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{
		"outcome":    res.Outcome.String(),
		"ok":         res.Outcome.OK(),
		"message":    res.Message,
		"log_path":   res.LogPath,
		"elapsed_ms": res.Elapsed.Milliseconds(),
		"waited_ms":  res.Waited.Milliseconds(),
		"probes":     res.Probes,
	}
	if res.Outcome == host.Timeout && res.LogPath != "" {
		// Best effort; the log may not exist if the host never wrote to it.
		if entries, err := hostlog.Recent(res.LogPath, diagnosticLines, time.Now()); err == nil {
			problems := hostlog.FilterErrors(entries)
			if len(problems) > maxProblems {
				problems = problems[len(problems)-maxProblems:]
			}
			out["log_summary"] = hostlog.Summarize(entries)
			out["recent_problems"] = problems
		}
	}
	return out, nil
}

const (
	diagnosticLines = 200
	maxProblems     = 10
)

type StatusTool struct {
	ensurer HostEnsurer
}

func (t *StatusTool) Name() string { return "browseros-status" }
func (t *StatusTool) Description() string {
	return `Report whether BrowserOS is healthy, stuck (process without health), or absent. Never launches.`
}
func (t *StatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *StatusTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"state": string(t.ensurer.Status(ctx))}, nil
}

// CallTool forwards to a BrowserOS tool through mcporter after ensuring readiness.
type CallTool struct {
	caller ToolCaller
}

func (t *CallTool) Name() string { return "browseros-call" }
func (t *CallTool) Description() string {
	return `Call a BrowserOS MCP tool (ensures BrowserOS is running first).

EXAMPLE:
  {"tool": "browser_navigate", "args": {"url": "https://x.com"}}

Returns: the tool's JSON output unchanged.`
}
func (t *CallTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tool": map[string]interface{}{
				"type":        "string",
				"description": "BrowserOS tool name, e.g. browser_navigate",
			},
			"args": map[string]interface{}{
				"description": "Tool arguments as an object or a JSON string (default {})",
			},
		},
		"required": []string{"tool"},
	}
}
func (t *CallTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	tool := getStringArg(args, "tool")
	if tool == "" {
		return nil, fmt.Errorf("tool is required")
	}
	argsJSON, err := getJSONArg(args, "args")
	if err != nil {
		return nil, err
	}

	out, err := t.caller.Call(ctx, tool, argsJSON)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(out)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	return map[string]interface{}{"output": out}, nil
}

type ExtractCookiesTool struct {
	extractor CookieExtractor
}

func (t *ExtractCookiesTool) Name() string { return "extract-cookies" }
func (t *ExtractCookiesTool) Description() string {
	return `Read the configured session cookies (auth_token and ct0 for https://x.com by default) from BrowserOS over CDP.

PREREQUISITE: BrowserOS running and logged in to the origin.

Returns: {cookies: [{name, value}], env: {AUTH_TOKEN, CT0}}`
}
func (t *ExtractCookiesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ExtractCookiesTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	values, err := t.extractor.Extract(ctx)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(values))
	for _, v := range values {
		env[strings.ToUpper(v.Name)] = v.Value
	}
	return map[string]interface{}{"cookies": values, "env": env}, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"browseros-mcporter/internal/host"
	mcpserver "browseros-mcporter/internal/mcp"
	"browseros-mcporter/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func createEnsureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Make sure BrowserOS is running and healthy, launching it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(true)
			if err != nil {
				return err
			}
			res, err := orch.Ensure(cmd.Context())
			if err != nil {
				return err
			}

			switch res.Outcome {
			case host.AlreadyRunning:
				_, _ = fmt.Fprintln(a.env.stdout, res.Message)
			case host.LaunchedAndReady:
				_, _ = fmt.Fprintln(a.env.stderr, res.Message)
			case host.ProcessStuck:
				_, _ = fmt.Fprintln(a.env.stderr, res.Message)
				return errReported
			default:
				return res.Err()
			}
			return nil
		},
	}
}

func createStatusCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether BrowserOS is healthy, stuck or absent without launching it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(false)
			if err != nil {
				return err
			}
			state := orch.Status(cmd.Context())
			if asJSON {
				if err := json.NewEncoder(a.env.stdout).Encode(map[string]string{"state": string(state)}); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprintln(a.env.stdout, state)
			}
			if state != host.StateHealthy {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state as JSON")
	return cmd
}

func createCallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "call <tool> [json-args]",
		Short:   "Call a BrowserOS MCP tool through mcporter",
		Example: `  browseros call browser_navigate '{"url":"https://x.com"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			argsJSON := "{}"
			if len(args) == 2 {
				argsJSON = args[1]
			}

			out, err := a.call(cmd, args[0], argsJSON)
			if err != nil {
				payload, _ := json.Marshal(map[string]string{"error": err.Error()})
				_, _ = fmt.Fprintln(a.env.stderr, string(payload))
				return errReported
			}
			_, _ = fmt.Fprintln(a.env.stdout, strings.TrimRight(out, "\n"))
			return nil
		},
	}
}

// call keeps stderr to the single JSON error line, so no progress output.
func (a *app) call(cmd *cobra.Command, tool, argsJSON string) (string, error) {
	orch, err := a.orchestrator(false)
	if err != nil {
		return "", err
	}
	return a.toolClient(orch).Call(cmd.Context(), tool, argsJSON)
}

func createCookiesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cookies",
		Short: "Print the session cookies of the configured origin as KEY=value lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.cookieReader().Extract(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range values {
				_, _ = fmt.Fprintf(a.env.stdout, "%s=%s\n", strings.ToUpper(v.Name), v.Value)
			}
			return nil
		},
	}
}

func createServeCommand(a *app) *cobra.Command {
	var ssePort int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose ensure, call, status and cookies as an MCP server (stdio or SSE)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ssePort != 0 {
				a.cfg.MCP.SSEPort = ssePort
			}
			// stdout carries the MCP stream, so no progress lines here.
			orch, err := a.orchestrator(false)
			if err != nil {
				return err
			}
			server, err := mcpserver.NewServer(a.cfg, orch, a.toolClient(orch), a.cookieReader(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize MCP server: %w", err)
			}

			ctx := cmd.Context()
			if a.cfg.MCP.SSEPort > 0 {
				if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
					return fmt.Errorf("register metrics: %w", err)
				}
				a.logger.Info("starting MCP SSE server", "port", a.cfg.MCP.SSEPort)
				err = server.StartSSE(ctx, a.cfg.MCP.SSEPort)
			} else {
				a.logger.Info("starting MCP stdio server")
				err = server.Start(ctx)
			}
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&ssePort, "sse-port", 0, "serve over SSE on this port instead of stdio")
	return cmd
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"browseros-mcporter/internal/config"
	"browseros-mcporter/internal/cookies"
	"browseros-mcporter/internal/host"
	"browseros-mcporter/internal/metrics"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// HostEnsurer is the readiness orchestrator as seen by tools.
type HostEnsurer interface {
	Ensure(ctx context.Context) (host.Result, error)
	Status(ctx context.Context) host.State
}

// ToolCaller forwards a call to a BrowserOS tool.
type ToolCaller interface {
	Call(ctx context.Context, tool, argsJSON string) (string, error)
}

// CookieExtractor reads session cookies from the host.
type CookieExtractor interface {
	Extract(ctx context.Context) ([]cookies.Value, error)
}

// Server exposes the BrowserOS helpers over MCP so agents need only one process.
type Server struct {
	cfg       config.Config
	ensurer   HostEnsurer
	caller    ToolCaller
	extractor CookieExtractor
	logger    *slog.Logger
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools and resources.
func NewServer(cfg config.Config, ensurer HostEnsurer, caller ToolCaller, extractor CookieExtractor, logger *slog.Logger) (*Server, error) {
	if ensurer == nil || caller == nil || extractor == nil {
		return nil, fmt.Errorf("ensurer, caller and extractor are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		ensurer:   ensurer,
		caller:    caller,
		extractor: extractor,
		logger:    logger,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start serves over stdio.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
// Prometheus metrics are served on /metrics next to them.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:              "127.0.0.1:" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("SSE server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	s.registerTool(&EnsureTool{ensurer: s.ensurer})
	s.registerTool(&StatusTool{ensurer: s.ensurer})
	s.registerTool(&CallTool{caller: s.caller})
	s.registerTool(&ExtractCookiesTool{extractor: s.extractor})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		metrics.IncToolCall(tool.Name(), err == nil)
		if err != nil {
			s.logger.Warn("tool failed", "tool", tool.Name(), "error", err)
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

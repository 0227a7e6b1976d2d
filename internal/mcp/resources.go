package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"browseros-mcporter/internal/hostlog"
	"browseros-mcporter/internal/recorder"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
	resourceMIMEText = "text/plain"

	defaultLogLines = 100
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"browseros://about",
			"BrowserOS helper",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and the resolved BrowserOS settings."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"browseros://runs/latest",
			"Latest ensure run",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Journal of the most recent ensure run: checking, launching, waiting, ready and done entries."),
		),
		s.handleLatestRunResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"browseros://host/log{?lines,level}",
			"BrowserOS host log",
			mcp.WithTemplateMIMEType(resourceMIMEText),
			mcp.WithTemplateDescription("Tail of the launched host's stdout/stderr log. Read this after a timeout. With level (error, warning, problems) returns parsed JSON entries instead."),
		),
		s.handleHostLogResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":        s.cfg.Server.Name,
		"version":     s.cfg.Server.Version,
		"executable":  s.cfg.Host.Executable,
		"health_addr": s.cfg.Host.HealthAddr,
		"host_log":    s.cfg.Host.LogFile,
		"origin":      s.cfg.Cookies.Origin,
		"notes": []string{
			"Tools ensure BrowserOS before calling it; a stuck process is reported, never killed.",
			"Set BROWSEROS_CMD to override the executable and BROWSEROS_PORT to skip CDP port discovery.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleHostLogResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	lines := getIntArg(request.Params.Arguments, "lines", defaultLogLines)
	level := getStringArg(request.Params.Arguments, "level")
	if list, ok := request.Params.Arguments["level"].([]string); ok && len(list) > 0 {
		level = list[0]
	}

	if level != "" {
		entries, err := hostlog.Recent(s.cfg.Host.LogFile, lines, time.Now())
		if err != nil {
			return nil, err
		}
		if level == "problems" {
			entries = hostlog.FilterErrors(entries)
		} else {
			entries = hostlog.FilterByLevel(entries, level)
		}
		if entries == nil {
			entries = []hostlog.Entry{}
		}
		text, err := json.Marshal(map[string]interface{}{"entries": entries})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: resourceMIMEJSON,
				Text:     string(text),
			},
		}, nil
	}

	text, err := hostlog.Tail(s.cfg.Host.LogFile, lines)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEText,
			Text:     text,
		},
	}, nil
}

func (s *Server) handleLatestRunResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	entries, err := recorder.Latest(s.cfg.Host.JournalDir)
	if err != nil && !errors.Is(err, recorder.ErrNoRuns) {
		return nil, err
	}
	if entries == nil {
		entries = []recorder.Entry{}
	}

	text, err := json.Marshal(map[string]interface{}{"entries": entries})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

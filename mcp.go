package browserd

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarev/browserd/internal/kit"
)

// RegisterMCP registers all browserd tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStatusTool(srv)
	s.registerCreateSessionTool(srv)
	s.registerListSessionsTool(srv)
	s.registerCloseSessionTool(srv)
	s.registerCreateTabTool(srv)
	s.registerTabInfoTool(srv)
	s.registerCloseTabTool(srv)
	s.registerNavigateTool(srv)
	s.registerHistoryTools(srv)
	s.registerContentTool(srv)
	s.registerEvaluateTool(srv)
	s.registerScreenshotTool(srv)
	s.registerRunStepsTool(srv)
}

// register wires one endpoint through the logging middleware and a JSON
// argument decoder for the given request type.
func register[T any](s *Service, srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint) {
	wrapped := kit.Chain(kit.Logging(s.logger, tool.Name))(endpoint)
	decode := func(req *mcp.CallToolRequest) (any, error) {
		r := new(T)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	kit.RegisterTool(srv, tool, wrapped, decode)
}

// --- status ---

type statusRequest struct{}

func (s *Service) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_status",
		Description: "Report engine readiness, active session and tab counts, and capabilities.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	register[statusRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		return s.Health(), nil
	})
}

// --- sessions ---

type createSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

func (s *Service) registerCreateSessionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_create_session",
		Description: "Open an isolated browsing context (own cookies and storage).",
		InputSchema: kit.InputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Optional caller-supplied session id"},
		}, nil),
	}
	register[createSessionRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*createSessionRequest)
		return s.CreateSession(ctx, r.SessionID)
	})
}

type listSessionsRequest struct{}

func (s *Service) registerListSessionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_list_sessions",
		Description: "List all live sessions, oldest first.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	register[listSessionsRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		return s.ListSessions(), nil
	})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Service) registerCloseSessionTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_close_session",
		Description: "Close a session and every tab in it. Reports tabs closed and any engine-side failures.",
		InputSchema: kit.InputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Session to close"},
		}, []string{"session_id"}),
	}
	register[sessionRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*sessionRequest)
		return s.CloseSession(ctx, r.SessionID)
	})
}

// --- tabs ---

type createTabRequest struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url,omitempty"`
}

func (s *Service) registerCreateTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_create_tab",
		Description: "Open a new tab in a session, optionally navigating to an initial URL.",
		InputSchema: kit.InputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Owning session"},
			"url":        map[string]any{"type": "string", "description": "Optional initial URL"},
		}, []string{"session_id"}),
	}
	register[createTabRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*createTabRequest)
		info, navRes, err := s.CreateTab(ctx, r.SessionID, r.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tab": info, "navigation": navRes}, nil
	})
}

type tabRequest struct {
	TabID string `json:"tab_id"`
}

func tabSchema(desc string) map[string]any {
	return kit.InputSchema(map[string]any{
		"tab_id": map[string]any{"type": "string", "description": desc},
	}, []string{"tab_id"})
}

func (s *Service) registerTabInfoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_tab_info",
		Description: "Return a tab's current URL, title, loading flag, and history length.",
		InputSchema: tabSchema("Tab to inspect"),
	}
	register[tabRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		return s.GetTabInfo(r.TabID)
	})
}

func (s *Service) registerCloseTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_close_tab",
		Description: "Close a tab and release its page.",
		InputSchema: tabSchema("Tab to close"),
	}
	register[tabRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*tabRequest)
		if err := s.CloseTab(ctx, r.TabID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "closed"}, nil
	})
}

// --- navigation ---

type navigateRequest struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

func (s *Service) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_navigate",
		Description: "Navigate a tab to a URL and wait for the load to settle.",
		InputSchema: kit.InputSchema(map[string]any{
			"tab_id": map[string]any{"type": "string", "description": "Tab to navigate"},
			"url":    map[string]any{"type": "string", "description": "Destination URL"},
		}, []string{"tab_id", "url"}),
	}
	register[navigateRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		return s.Navigate(ctx, r.TabID, r.URL)
	})
}

func (s *Service) registerHistoryTools(srv *mcp.Server) {
	type navOp struct {
		name, desc string
		op         func(context.Context, string) (*NavResult, error)
	}
	for _, t := range []navOp{
		{"browserd_back", "Go back to the tab's previous history entry.", s.Back},
		{"browserd_forward", "Go forward to the tab's next history entry.", s.Forward},
		{"browserd_reload", "Reload the tab's current document.", s.Reload},
	} {
		op := t.op
		tool := &mcp.Tool{
			Name:        t.name,
			Description: t.desc,
			InputSchema: tabSchema("Tab to act on"),
		}
		register[tabRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
			r := req.(*tabRequest)
			return op(ctx, r.TabID)
		})
	}
}

// --- content ---

type contentRequest struct {
	TabID  string `json:"tab_id"`
	Format string `json:"format,omitempty"`
}

func (s *Service) registerContentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_content",
		Description: "Capture a tab's document as html, sanitized html, plain text, or markdown.",
		InputSchema: kit.InputSchema(map[string]any{
			"tab_id": map[string]any{"type": "string", "description": "Tab to capture"},
			"format": map[string]any{"type": "string", "enum": []any{"html", "sanitized", "text", "markdown"}, "description": "Output format (default html)"},
		}, []string{"tab_id"}),
	}
	register[contentRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*contentRequest)
		format := Format(r.Format)
		if format == "" {
			format = FormatHTML
		}
		return s.GetContent(ctx, r.TabID, format)
	})
}

type evaluateRequest struct {
	TabID      string `json:"tab_id"`
	Expression string `json:"expression"`
}

func (s *Service) registerEvaluateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_evaluate",
		Description: "Evaluate a JavaScript expression in a tab. Script exceptions are returned as error results, not faults.",
		InputSchema: kit.InputSchema(map[string]any{
			"tab_id":     map[string]any{"type": "string", "description": "Tab to evaluate in"},
			"expression": map[string]any{"type": "string", "description": "JavaScript expression"},
		}, []string{"tab_id", "expression"}),
	}
	register[evaluateRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*evaluateRequest)
		return s.Evaluate(ctx, r.TabID, r.Expression)
	})
}

type screenshotRequest struct {
	TabID    string `json:"tab_id"`
	FullPage bool   `json:"full_page,omitempty"`
}

func (s *Service) registerScreenshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_screenshot",
		Description: "Capture a tab as a PNG, returned base64-encoded.",
		InputSchema: kit.InputSchema(map[string]any{
			"tab_id":    map[string]any{"type": "string", "description": "Tab to capture"},
			"full_page": map[string]any{"type": "boolean", "description": "Capture the whole page instead of the viewport"},
		}, []string{"tab_id"}),
	}
	register[screenshotRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*screenshotRequest)
		res, err := s.Screenshot(ctx, r.TabID, r.FullPage)
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"tab_id":    res.TabID,
			"status":    res.Status,
			"full_page": res.FullPage,
		}
		if res.Status == "ok" {
			out["content_type"] = res.ContentType
			out["data_base64"] = base64.StdEncoding.EncodeToString(res.Data)
		} else {
			out["error_kind"] = res.ErrorKind
			out["error"] = res.Error
		}
		return out, nil
	})
}

// --- steps ---

type runStepsRequest struct {
	TabID string `json:"tab_id"`
	Steps []Step `json:"steps"`
}

func (s *Service) registerRunStepsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "browserd_run_steps",
		Description: "Run an automation sequence (navigate/click/fill/wait/extract) against one tab, stopping at the first failure.",
		InputSchema: kit.InputSchema(map[string]any{
			"tab_id": map[string]any{"type": "string", "description": "Tab to drive"},
			"steps": map[string]any{
				"type":        "array",
				"description": "Ordered steps",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":     map[string]any{"type": "string", "enum": []any{"navigate", "click", "fill", "wait", "extract"}},
						"url":      map[string]any{"type": "string"},
						"selector": map[string]any{"type": "string"},
						"value":    map[string]any{"type": "string"},
						"format":   map[string]any{"type": "string", "enum": []any{"html", "sanitized", "text", "markdown"}},
					},
					"required": []any{"kind"},
				},
			},
		}, []string{"tab_id", "steps"}),
	}
	register[runStepsRequest](s, srv, tool, func(ctx context.Context, req any) (any, error) {
		r := req.(*runStepsRequest)
		results, err := s.RunSteps(ctx, r.TabID, r.Steps)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	})
}

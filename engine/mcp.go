// CLAUDE:SUMMARY Registers engine MCP tools — session status, set mode, list marks, restore, clear, export.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bakharlabs/blurshield/bridge"
	"github.com/bakharlabs/blurshield/kit"
	"github.com/bakharlabs/blurshield/mode"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/restore"
)

// RegisterMCP registers engine tools on an MCP server. The origin registry's
// tools are registered alongside; the two surfaces ship together.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerStatusTool(srv)
	e.registerSetModeTool(srv)
	e.registerListMarksTool(srv)
	e.registerRestoreTool(srv)
	e.registerClearTool(srv)
	e.registerExportTool(srv)
	if e.registry != nil {
		e.registry.RegisterMCP(srv)
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// sessionFor resolves the url argument to a live session.
func (e *Engine) sessionFor(rawURL string) (*Session, error) {
	identity, err := page.Identity(rawURL)
	if err != nil {
		return nil, err
	}
	s := e.Session(identity)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, identity)
	}
	return s, nil
}

// urlRequest is the shared single-argument shape of most engine tools.
type urlRequest struct {
	URL string `json:"url"`
}

func decodeURLRequest(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r urlRequest
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- status ---

func (e *Engine) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_status",
		Description: "Report a document session's interaction mode and mark counts.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The document URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*urlRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			return s.status(), nil
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURLRequest)
}

// --- set_mode ---

type setModeRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

func (e *Engine) registerSetModeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_set_mode",
		Description: "Switch a session's interaction mode. Requesting the active mode toggles back to inactive.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "The document URL"},
			"mode": map[string]any{"type": "string", "enum": []any{"inactive", "point", "region", "text", "erase"}, "description": "Target mode"},
		}, []string{"url", "mode"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setModeRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			old := s.machine.State()
			next, err := s.machine.SetMode(s.doc, mode.State(r.Mode))
			if err != nil {
				return nil, err
			}
			return &bridge.ModeChangedPayload{From: string(old), To: string(next)}, nil
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setModeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list_marks ---

func (e *Engine) registerListMarksTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_list_marks",
		Description: "List the stored marks of a document session in store order.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The document URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*urlRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			return s.set.Snapshot(), nil
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURLRequest)
}

// --- restore ---

// restoreResult is the MCP view of a pass report.
type restoreResult struct {
	Applied    int      `json:"applied"`
	Present    int      `json:"present"`
	Failed     int      `json:"failed"`
	Dead       []string `json:"dead,omitempty"`
	DurationUs int64    `json:"duration_us"`
}

func (e *Engine) registerRestoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_restore",
		Description: "Run a restoration pass on a document session now and report the outcome.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The document URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*urlRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			rep := e.coord.Pass(ctx, s.doc, s.set)
			if e.registry != nil {
				if err := e.registry.ReportPass(ctx, s.doc.URL, rep); err != nil {
					e.logger.Warn("engine: pass report failed", "identity", s.identity, "error", err)
				}
			}
			s.pushSummary()
			return passResult(rep), nil
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURLRequest)
}

func passResult(rep *restore.Report) *restoreResult {
	return &restoreResult{
		Applied:    rep.Applied,
		Present:    rep.Present,
		Failed:     rep.Failed,
		Dead:       rep.Dead,
		DurationUs: rep.Duration.Microseconds(),
	}
}

// --- clear ---

func (e *Engine) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_clear",
		Description: "Remove every mark and effect from a document session and persist the empty set.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The document URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*urlRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			s.clearAll(ctx)
			s.pushSummary()
			return map[string]any{"cleared": true, "summary": s.set.Summary()}, nil
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURLRequest)
}

// --- export ---

func (e *Engine) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "shield_export",
		Description: "Render the shielded document to markdown with obscured text masked and regions summarized.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "The document URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*urlRequest)
		s, err := e.sessionFor(r.URL)
		if err != nil {
			return nil, err
		}
		return s.call(ctx, func(ctx context.Context) (any, error) {
			md, err := e.exporter.Markdown(s.doc, s.set)
			if err != nil {
				return nil, err
			}
			return &bridge.ExportPayload{Markdown: md}, nil
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURLRequest)
}

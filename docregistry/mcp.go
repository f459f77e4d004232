// CLAUDE:SUMMARY Registers all docregistry MCP tools — list origins, set activation, degraded origins, pass reports, stats.
package docregistry

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bakharlabs/blurshield/kit"
)

// RegisterMCP registers docregistry tools on an MCP server.
func (r *Registry) RegisterMCP(srv *mcp.Server) {
	r.registerListOriginsTool(srv)
	r.registerSetActivationTool(srv)
	r.registerDegradedTool(srv)
	r.registerReportsTool(srv)
	r.registerStatsTool(srv)
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

// --- list_origins ---

type listOriginsRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (r *Registry) registerListOriginsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docregistry_list_origins",
		Description: "List tracked origins with their activation expression and restoration success rate, best first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*listOriginsRequest)
		limit := rr.Limit
		if limit <= 0 {
			limit = 50
		}
		return r.ListOrigins(ctx, limit)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr listOriginsRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- set_activation ---

type setActivationRequest struct {
	URL        string `json:"url"`
	Expression string `json:"expression"`
}

func (r *Registry) registerSetActivationTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docregistry_set_activation",
		Description: "Store the auto-activation expression for a page's origin. Empty expression means always activate.",
		InputSchema: inputSchema(map[string]any{
			"url":        map[string]any{"type": "string", "description": "Any page URL on the origin"},
			"expression": map[string]any{"type": "string", "description": "Boolean expression, e.g. 'visits > 3 and not degraded'"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*setActivationRequest)
		if err := r.SetActivation(ctx, rr.URL, rr.Expression); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr setActivationRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- degraded ---

type degradedRequest struct{}

func (r *Registry) registerDegradedTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docregistry_degraded",
		Description: "List origins whose restoration success rate fell below the degraded threshold.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return r.Degraded(ctx)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &degradedRequest{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- reports ---

type reportsRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

func (r *Registry) registerReportsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docregistry_reports",
		Description: "Show the newest lossy restoration passes for a page's origin (dead or failed marks).",
		InputSchema: inputSchema(map[string]any{
			"url":   map[string]any{"type": "string", "description": "Any page URL on the origin"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*reportsRequest)
		return r.RecentReports(ctx, rr.URL, rr.Limit)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr reportsRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

type statsRequest struct{}

func (r *Registry) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docregistry_stats",
		Description: "Registry statistics: tracked origins, degraded origins, lossy pass reports.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return r.Stats(ctx)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &statsRequest{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

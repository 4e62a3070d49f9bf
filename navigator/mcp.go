package navigator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/viewnav/action"
	"github.com/hazyhaar/viewnav/kit"
	"github.com/hazyhaar/viewnav/planner"
	"github.com/hazyhaar/viewnav/route"
)

// RegisterMCP registers the navigator tools on an MCP server.
func (c *Controller) RegisterMCP(srv *mcp.Server) {
	c.registerResolveTool(srv)
	c.registerPlanTool(srv)
	c.registerNavigateTool(srv)
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

func (c *Controller) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Logging(c.logger, name)(ep)
}

// --- resolve ---

type viewReq struct {
	ViewPath string `json:"view_path"`
}

// ResolveResult describes how a view path is served.
type ResolveResult struct {
	ResourcePath string `json:"resource_path"`
	Home         bool   `json:"home"`
	Sequential   bool   `json:"sequential"`
	Next         string `json:"next,omitempty"`
}

// Describe resolves viewPath without loading it.
func Describe(viewPath string) ResolveResult {
	next, _ := route.NextStep(viewPath)
	return ResolveResult{
		ResourcePath: route.Resolve(viewPath),
		Home:         route.IsHomeView(viewPath),
		Sequential:   route.IsSequential(viewPath),
		Next:         next,
	}
}

func decodeView(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r viewReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.ViewPath == "" {
		return nil, errors.New("view_path is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (c *Controller) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "viewnav_resolve",
		Description: "Translate a view path into the backend resource path it loads, with its next lesson step.",
		InputSchema: inputSchema(map[string]any{
			"view_path": map[string]any{"type": "string", "description": "View path, e.g. /view/lesson/3?i=0"},
		}, []string{"view_path"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		return Describe(req.(*viewReq).ViewPath), nil
	}

	kit.RegisterMCPTool(srv, tool, c.endpoint(tool.Name, endpoint), decodeView)
}

// --- plan ---

type planReq struct {
	Event map[string]any `json:"event"`
}

// PlanResult is the decision taken for an engine event.
type PlanResult struct {
	Actionable bool   `json:"actionable"`
	Kind       string `json:"kind"`
	Rule       string `json:"rule,omitempty"`
	LogID      string `json:"log_id,omitempty"`
	ViewPath   string `json:"view_path,omitempty"`
	Target     string `json:"target,omitempty"`
	State      any    `json:"state,omitempty"`
}

// PlanEvent runs the action pipeline on event without side effects.
func PlanEvent(event any) PlanResult {
	d, ok := action.Extract(event)
	if !ok {
		if d, ok = action.FromEvent(event); !ok {
			return PlanResult{Kind: planner.None.String()}
		}
	}
	dec := planner.Plan(d)
	res := PlanResult{
		Actionable: dec.Kind != planner.None,
		Kind:       dec.Kind.String(),
		Rule:       dec.Rule,
		LogID:      d.LogID,
		ViewPath:   dec.ViewPath,
	}
	if dec.Kind == planner.SetState {
		res.Target = dec.Change.Target
		res.State = dec.Change.State
	}
	return res
}

func (c *Controller) registerPlanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "viewnav_plan",
		Description: "Normalise a raw engine event and report the navigation or state change it would trigger.",
		InputSchema: inputSchema(map[string]any{
			"event": map[string]any{"type": "object", "description": "Raw engine callback payload"},
		}, []string{"event"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		return PlanEvent(req.(*planReq).Event), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r planReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Event == nil {
			return nil, errors.New("event is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, c.endpoint(tool.Name, endpoint), decode)
}

// --- navigate ---

type navigateResp struct {
	ViewPath     string `json:"view_path"`
	ResourcePath string `json:"resource_path"`
	Document     any    `json:"document"`
}

func (c *Controller) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "viewnav_navigate",
		Description: "Navigate the session to a view path and return the document now on screen.",
		InputSchema: inputSchema(map[string]any{
			"view_path": map[string]any{"type": "string", "description": "View path to open"},
		}, []string{"view_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*viewReq)
		if err := c.Go(ctx, r.ViewPath); err != nil {
			return nil, err
		}
		return &navigateResp{
			ViewPath:     r.ViewPath,
			ResourcePath: route.Resolve(r.ViewPath),
			Document:     c.Current(),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, c.endpoint(tool.Name, endpoint), decodeView)
}

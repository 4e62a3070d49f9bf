package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder extracts the typed request from req.Params.Arguments.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// RegisterMCPTool exposes endpoint as an MCP tool. The endpoint runs with the
// "mcp" transport on its context and its response is returned as JSON text.
// Decode, endpoint and encoding failures become tool errors, never protocol
// errors.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return callTool(ctx, req, endpoint, decode), nil
	})
}

func callTool(ctx context.Context, req *mcp.CallToolRequest, endpoint Endpoint, decode MCPDecoder) *mcp.CallToolResult {
	decoded, err := decode(req)
	if err != nil {
		return toolError(fmt.Errorf("invalid arguments: %w", err))
	}
	ctx = WithTransport(ctx, "mcp")
	if decoded.EnrichCtx != nil {
		ctx = decoded.EnrichCtx(ctx)
	}

	resp, err := endpoint(ctx, decoded.Request)
	if err != nil {
		return toolError(err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return toolError(fmt.Errorf("marshal: %w", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

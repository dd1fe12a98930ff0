// Package mcptool exposes the repair pipeline as MCP tools over stdio.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sketch-repair/internal/report"
	"sketch-repair/internal/types"
)

// Tool names.
const (
	ToolRepair = "repair_html"
	ToolCheck  = "check_html"
)

// Repairer is the part of the pipeline the tools call.
type Repairer interface {
	Repair(ctx context.Context, path string) (*types.RepairResult, error)
	Check(ctx context.Context, path string) (*types.RepairResult, error)
}

// response is the JSON text returned by both tools.
type response struct {
	*types.RepairResult
	Summary string `json:"summary"`
	Diff    string `json:"diff,omitempty"`
}

// NewServer creates an MCP server with both tools registered.
func NewServer(version string, r Repairer) *server.MCPServer {
	srv := server.NewMCPServer("sketch-repair", version, server.WithToolCapabilities(true))
	Register(srv, r)
	return srv
}

// Register adds repair_html and check_html to srv.
func Register(srv *server.MCPServer, r Repairer) {
	repairTool := mcplib.NewTool(ToolRepair,
		mcplib.WithDescription(`Repair an HTML page holding a p5.js or three.js sketch in place.

A backup is written next to the file before anything changes. The result lists
every pass, the fixes it applied and the total; the file is rewritten only when
the total is above zero.`),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Path of the HTML document to repair"),
		),
	)
	srv.AddTool(repairTool, repairHandler(r))

	checkTool := mcplib.NewTool(ToolCheck,
		mcplib.WithDescription(`Report what repair_html would change without touching the file.

Returns the same pass summary as repair_html plus a line diff of the repaired text.`),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Path of the HTML document to check"),
		),
	)
	srv.AddTool(checkTool, checkHandler(r))
}

func repairHandler(r Repairer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		res, err := r.Repair(ctx, path)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("Failed to repair %s: %v", path, err)), nil
		}
		return textResult(response{RepairResult: res, Summary: report.Render(res)})
	}
}

func checkHandler(r Repairer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		res, err := r.Check(ctx, path)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("Failed to check %s: %v", path, err)), nil
		}
		return textResult(response{
			RepairResult: res,
			Summary:      report.Render(res),
			Diff:         report.Diff(res.Original, res.Repaired),
		})
	}
}

func textResult(v response) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// Package mcp exposes the analysis service as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/duynguyendang/vultester/pkg/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const rulesURI = "vultester://rules"

// MCPServer adapts the analysis service to MCP tools.
type MCPServer struct {
	svc    *service.AnalysisService
	logger *zap.Logger
}

// NewServer builds the MCP server with every tool and resource registered.
func NewServer(svc *service.AnalysisService, version string, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"vultester",
		version,
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)
	ms := &MCPServer{svc: svc, logger: logging.OrNop(logger)}

	// --- Resources ---

	s.AddResource(
		mcp.NewResource(
			rulesURI,
			"Knowledge Base",
			mcp.WithResourceDescription("Every vulnerability rule with its conditions, consequence and severity"),
			mcp.WithMIMEType("application/json"),
		),
		ms.handleRulesResource,
	)

	// --- Tools ---

	s.AddTool(
		mcp.NewTool(
			"analyze",
			mcp.WithDescription("Evaluate observed server facts and report the vulnerabilities they imply."),
			mcp.WithArray("facts", mcp.Required(), mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Observed facts, e.g. port_22_open, password_auth_enabled")),
			mcp.WithString("method", mcp.Enum("forward", "backward", "mixed"),
				mcp.Description("Chaining method (default forward)")),
		),
		ms.handleAnalyze,
	)

	s.AddTool(
		mcp.NewTool(
			"list_rules",
			mcp.WithDescription("List the rules of the knowledge base."),
			mcp.WithString("category", mcp.Description("Only rules of this category, e.g. SSH")),
		),
		ms.handleListRules,
	)

	s.AddTool(
		mcp.NewTool(
			"get_rule",
			mcp.WithDescription("Get one rule and its remediation."),
			mcp.WithString("rule_id", mcp.Required(), mcp.Description("Rule id, e.g. PORT-01")),
		),
		ms.handleGetRule,
	)

	s.AddTool(
		mcp.NewTool(
			"list_facts",
			mcp.WithDescription("List the facts a scan may report, grouped by category."),
			mcp.WithString("category", mcp.Description("Only facts of this category, e.g. ssh")),
		),
		ms.handleListFacts,
	)

	s.AddTool(
		mcp.NewTool(
			"find_path",
			mcp.WithDescription("Find the shortest rule chain from observed facts to a fact of interest."),
			mcp.WithArray("facts", mcp.Required(), mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Observed facts to start from")),
			mcp.WithString("goal", mcp.Required(), mcp.Description("Fact to reach")),
		),
		ms.handleFindPath,
	)

	s.AddTool(
		mcp.NewTool(
			"list_runs",
			mcp.WithDescription("List recorded analysis runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		),
		ms.handleListRuns,
	)

	s.AddTool(
		mcp.NewTool(
			"get_run",
			mcp.WithDescription("Get a recorded run with its full report."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id returned by analyze")),
		),
		ms.handleGetRun,
	)

	return s
}

// Run serves MCP on stdio until the client disconnects.
func Run(ctx context.Context, svc *service.AnalysisService, version string, logger *zap.Logger) error {
	logging.OrNop(logger).Info("starting MCP server on stdio")
	return server.ServeStdio(NewServer(svc, version, logger))
}

// --- Resource Handlers ---

func (ms *MCPServer) handleRulesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.MarshalIndent(ms.svc.ListRules(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// --- Tool Handlers ---

func (ms *MCPServer) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	facts, ok := stringList(args["facts"])
	if !ok {
		return mcp.NewToolResultError("facts argument required (list of strings)"), nil
	}

	method := engine.Forward
	if m, ok := args["method"].(string); ok && m != "" {
		parsed, err := engine.ParseMethod(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		method = parsed
	}

	res, err := ms.svc.Evaluate(ctx, facts, method)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	return jsonResult(res)
}

func (ms *MCPServer) handleListRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, _ := request.GetArguments()["category"].(string)
	rules := ms.svc.RulesByCategory(category)
	if len(rules) == 0 {
		return mcp.NewToolResultText("No rules found."), nil
	}

	var sb strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&sb, "%s [%s] %s -> %s: %s\n", r.ID, r.Severity, strings.Join(r.Conditions, " & "), r.Consequence, r.Description)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (ms *MCPServer) handleGetRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := request.GetArguments()["rule_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("rule_id argument required"), nil
	}

	detail, err := ms.svc.GetRule(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (ms *MCPServer) handleListFacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, _ := request.GetArguments()["category"].(string)

	var sb strings.Builder
	for _, f := range ms.svc.Facts().Facts {
		if category != "" && !strings.EqualFold(f.Category, category) {
			continue
		}
		fmt.Fprintf(&sb, "%s (%s): %s\n", f.Fact, f.Category, f.Label)
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("No facts found."), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (ms *MCPServer) handleFindPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	facts, ok := stringList(args["facts"])
	if !ok {
		return mcp.NewToolResultError("facts argument required (list of strings)"), nil
	}
	goal, _ := args["goal"].(string)

	d, err := ms.svc.ShortestDerivation(facts, goal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !d.Found {
		return mcp.NewToolResultText(fmt.Sprintf("No rule chain reaches %s.", d.Goal)), nil
	}

	var sb strings.Builder
	sb.WriteString(d.Path[0])
	for i, id := range d.Rules {
		fmt.Fprintf(&sb, " --%s--> %s", id, d.Path[i+1])
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (ms *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if v, ok := request.GetArguments()["limit"].(float64); ok && v >= 1 {
		limit = int(v)
	}
	runs, err := ms.svc.Runs(limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runs)
}

func (ms *MCPServer) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["run_id"].(string)
	rec, err := ms.svc.Run(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec)
}

// stringList accepts a JSON array of strings or one comma separated string.
func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case []string:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		return strings.Split(t, ","), true
	}
	return nil, false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// Package mcptools exposes read-only proctoring queries as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	auditdomain "ihire-proctoring/backend/internal/audit/domain"
	"ihire-proctoring/backend/internal/proctoring/analytics"
	"ihire-proctoring/backend/internal/proctoring/domain"
	"ihire-proctoring/backend/internal/proctoring/repository"
	"ihire-proctoring/backend/internal/proctoring/service"
)

const (
	ToolGetSession        = "get_session"
	ToolListMockSessions  = "list_mock_sessions"
	ToolSessionStatistics = "session_statistics"
	ToolAuditTrail        = "audit_trail"
)

// Querier is the subset of service.Service the tools read from.
type Querier interface {
	Get(ctx context.Context, sessionID, mockID string) (*domain.Session, error)
	ListByMock(ctx context.Context, mockID, sessionID string) (*service.MockSessions, error)
	Statistics(ctx context.Context, f repository.Filter) (*service.StatisticsReport, error)
}

// AuditTrail reads recorded API calls.
type AuditTrail interface {
	Trail(ctx context.Context, f auditdomain.Filter) ([]*auditdomain.AuditLog, error)
}

// Register adds every proctoring tool to s. trail may be nil, which omits the audit tool.
func Register(s *server.MCPServer, q Querier, trail AuditTrail) {
	s.AddTools(Tools(q, trail)...)
}

// Tools returns the proctoring tools bound to q and trail.
func Tools(q Querier, trail AuditTrail) []server.ServerTool {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolGetSession,
				mcp.WithDescription("Get one proctoring session with its alerts, counters and summary"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("sessionId", mcp.Required(), mcp.Description("Client-chosen session identifier")),
				mcp.WithString("mockId", mcp.Required(), mcp.Description("Mock interview identifier")),
			),
			Handler: getSession(q),
		},
		{
			Tool: mcp.NewTool(ToolListMockSessions,
				mcp.WithDescription("List the proctoring sessions of one mock interview with summary statistics"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("mockId", mcp.Required(), mcp.Description("Mock interview identifier")),
				mcp.WithString("sessionId", mcp.Description("Narrow the list to one session")),
			),
			Handler: listMockSessions(q),
		},
		{
			Tool: mcp.NewTool(ToolSessionStatistics,
				mcp.WithDescription("Compute cross-session risk statistics and a per-session breakdown"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("sessionId", mcp.Description("Only this session ID")),
				mcp.WithString("userId", mcp.Description("Only sessions of this candidate email")),
				mcp.WithString("startDate", mcp.Description("Created on or after, RFC 3339 or YYYY-MM-DD")),
				mcp.WithString("endDate", mcp.Description("Created on or before, RFC 3339 or YYYY-MM-DD (whole day)")),
			),
			Handler: sessionStatistics(q),
		},
	}
	if trail != nil {
		tools = append(tools, server.ServerTool{
			Tool: mcp.NewTool(ToolAuditTrail,
				mcp.WithDescription("List recorded API calls (start, update, end, export) newest first"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("mockId", mcp.Description("Only calls against this mock interview")),
				mcp.WithString("sessionId", mcp.Description("Only calls against this session")),
				mcp.WithNumber("limit", mcp.Description("Maximum entries to return"), mcp.DefaultNumber(auditdomain.DefaultListLimit)),
			),
			Handler: auditTrail(trail),
		})
	}
	return tools
}

func getSession(q Querier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("sessionId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mockID, err := req.RequireString("mockId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sess, err := q.Get(ctx, sessionID, mockID)
		if err != nil {
			return toolError(ToolGetSession, err)
		}
		return jsonResult(sess)
	}
}

type mockSessionsResult struct {
	Sessions     []*domain.Session     `json:"sessions"`
	SummaryStats analytics.MockSummary `json:"summaryStats"`
	TotalCount   int                   `json:"totalCount"`
}

func listMockSessions(q Querier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mockID, err := req.RequireString("mockId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := q.ListByMock(ctx, mockID, req.GetString("sessionId", ""))
		if err != nil {
			return toolError(ToolListMockSessions, err)
		}
		return jsonResult(mockSessionsResult{
			Sessions:     res.Sessions,
			SummaryStats: res.Summary,
			TotalCount:   len(res.Sessions),
		})
	}
}

type statisticsResult struct {
	Statistics       analytics.Statistics         `json:"statistics"`
	SessionBreakdown []analytics.SessionBreakdown `json:"sessionBreakdown"`
}

func sessionStatistics(q Querier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f, err := service.StatisticsFilter(
			req.GetString("sessionId", ""),
			req.GetString("userId", ""),
			req.GetString("startDate", ""),
			req.GetString("endDate", ""),
		)
		if err != nil {
			return toolError(ToolSessionStatistics, err)
		}
		report, err := q.Statistics(ctx, f)
		if err != nil {
			return toolError(ToolSessionStatistics, err)
		}
		return jsonResult(statisticsResult{Statistics: report.Statistics, SessionBreakdown: report.Breakdown})
	}
}

func auditTrail(trail AuditTrail) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := trail.Trail(ctx, auditdomain.Filter{
			SessionID: req.GetString("sessionId", ""),
			MockID:    req.GetString("mockId", ""),
			Limit:     req.GetInt("limit", auditdomain.DefaultListLimit),
		})
		if err != nil {
			return toolError(ToolAuditTrail, err)
		}
		return jsonResult(entries)
	}
}

// toolError turns caller mistakes into tool-level errors the model can read. Storage failures
// are logged and reported without their internals.
func toolError(tool string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return mcp.NewToolResultError(domain.ValidationMessage(err)), nil
	case errors.Is(err, domain.ErrNotFound):
		return mcp.NewToolResultError("Session not found"), nil
	}
	log.Printf("mcp: %s failed: %v", tool, err)
	return mcp.NewToolResultError("internal error"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Package mcpserver exposes the enriched data set as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/enricher"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/recommender"
)

const (
	serverName    = "pecollective-jobs"
	serverVersion = "1.0.0"
)

var benchmarkKinds = []string{models.BenchmarkRole, models.BenchmarkMetro, models.BenchmarkExperience}

type Server struct {
	snapshot     *Snapshot
	enricher     *enricher.Enricher
	similarLimit int
	logger       *zap.Logger
}

func New(snapshot *Snapshot, e *enricher.Enricher, similarLimit int, logger *zap.Logger) *Server {
	return &Server{snapshot: snapshot, enricher: e, similarLimit: similarLimit, logger: logger}
}

// MCPServer builds the MCP server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion)

	similarTool := mcp.NewTool("find_similar_jobs",
		mcp.WithDescription("Suggest live jobs to show in place of an expired job page"),
	)
	similarTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"slug":  map[string]interface{}{"type": "string", "description": "Slug of the expired job page"},
			"limit": map[string]interface{}{"type": "integer", "description": "Max suggestions (optional)"},
		},
		Required: []string{"slug"},
	}
	srv.AddTool(similarTool, s.handleFindSimilar)

	intelTool := mcp.NewTool("market_intelligence",
		mcp.WithDescription("Skill, category, metro and salary statistics of the current job set"),
	)
	intelTool.InputSchema = mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
	srv.AddTool(intelTool, s.handleMarketIntelligence)

	classifyTool := mcp.NewTool("classify_job",
		mcp.WithDescription("Normalize a raw posting into the enriched job record"),
	)
	classifyTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"title":       map[string]interface{}{"type": "string", "description": "Job title"},
			"company":     map[string]interface{}{"type": "string", "description": "Company name"},
			"location":    map[string]interface{}{"type": "string", "description": "Location text (optional)"},
			"description": map[string]interface{}{"type": "string", "description": "Full job description (optional)"},
			"min_amount":  map[string]interface{}{"type": "string", "description": "Lower salary bound (optional)"},
			"max_amount":  map[string]interface{}{"type": "string", "description": "Upper salary bound (optional)"},
			"interval":    map[string]interface{}{"type": "string", "description": "Salary interval, e.g. yearly or hourly (optional)"},
		},
	}
	srv.AddTool(classifyTool, s.handleClassifyJob)

	benchTool := mcp.NewTool("salary_benchmarks",
		mcp.WithDescription("Salary benchmarks by role, metro or experience level"),
	)
	benchTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"kind": map[string]interface{}{
				"type":        "string",
				"description": "Bucket kind to return (optional, default all)",
				"enum":        benchmarkKinds,
			},
		},
	}
	srv.AddTool(benchTool, s.handleSalaryBenchmarks)

	return srv
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleFindSimilar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	slug, _ := args["slug"].(string)
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return mcp.NewToolResultError("missing required field: slug"), nil
	}
	limit := s.similarLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	live, err := s.snapshot.LiveJobs(ctx)
	if err != nil {
		s.logger.Warn("find_similar_jobs without live jobs", zap.String("slug", slug), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load live jobs: %v", err)), nil
	}

	return jsonResult(recommender.Recommend(slug, live, limit))
}

func (s *Server) handleMarketIntelligence(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intel, err := s.snapshot.MarketIntelligence(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load market intelligence: %v", err)), nil
	}
	return jsonResult(intel)
}

func (s *Server) handleClassifyJob(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	str := func(key string) string {
		v, _ := args[key].(string)
		return v
	}
	raw := models.RawJobRecord{
		Title:       str("title"),
		Company:     str("company"),
		Location:    str("location"),
		Description: str("description"),
		MinAmount:   str("min_amount"),
		MaxAmount:   str("max_amount"),
		Interval:    str("interval"),
	}

	record, ok := s.enricher.Enrich(raw)
	if !ok {
		return mcp.NewToolResultError("a title or a company is required"), nil
	}
	record.Description = ""
	record.DescriptionSnippet = ""
	return jsonResult(record)
}

func (s *Server) handleSalaryBenchmarks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := ""
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if v, ok := args["kind"].(string); ok {
			kind = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if kind != "" && !validKind(kind) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q, want one of %s", kind, strings.Join(benchmarkKinds, ", "))), nil
	}

	benchmarks, err := s.snapshot.Benchmarks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load salary benchmarks: %v", err)), nil
	}
	return jsonResult(benchmarks.Filter(kind))
}

func validKind(kind string) bool {
	for _, k := range benchmarkKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

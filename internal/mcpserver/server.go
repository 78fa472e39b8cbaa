// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the article pipeline as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/pipeline"
)

// contractURI is the resource URI of the article format contract.
const contractURI = "folio://article-format"

// Server wraps the MCP server with the pipeline tools.
type Server struct {
	mcp *server.MCPServer
	svc *pipeline.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *pipeline.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Folio",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("suggest_topics",
		mcp.WithDescription("List suggested article topics for each category."),
	), s.suggestTopics)

	s.mcp.AddTool(mcp.NewTool("generate_article",
		mcp.WithDescription("Generate a long-form article for a category and topic. "+
			"The article is returned unsaved unless save is true."),
		mcp.WithString("category", mcp.Required(),
			mcp.Enum(string(models.CategoryAesthetic), string(models.CategoryTechnical)),
			mcp.Description("Article category")),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic to write about")),
		mcp.WithBoolean("save", mcp.Description("Persist the generated article as a draft")),
	), s.generateArticle)

	s.mcp.AddTool(mcp.NewTool("list_articles",
		mcp.WithDescription("List stored articles, newest first."),
		mcp.WithString("category", mcp.Description("Optional category filter")),
	), s.listArticles)

	s.mcp.AddTool(mcp.NewTool("read_article",
		mcp.WithDescription("Read the full stored article for a slug."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Article slug")),
	), s.readArticle)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Full-text search through article titles, excerpts, bodies and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("export_article",
		mcp.WithDescription("Export a stored article as json, md or toml."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Article slug")),
		mcp.WithString("format", mcp.Enum("json", "md", "toml"), mcp.Description("Export format (default json)")),
	), s.exportArticle)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Aggregate statistics over the stored articles."),
	), s.getStats)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Store an image from an http(s) URL or a base64 data URI. "+
			"Without recordSlug the image waits in the holding area until the next save."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the image")),
		mcp.WithString("filename", mcp.Description("Optional original file name")),
		mcp.WithString("recordSlug", mcp.Description("Optional owning article slug")),
	), s.uploadImage)

	s.mcp.AddTool(mcp.NewTool("deploy_article",
		mcp.WithDescription("Commit and push a stored article to the site repository."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Article slug")),
		mcp.WithString("commitMessage", mcp.Description("Optional commit message")),
	), s.deployArticle)

	s.mcp.AddTool(mcp.NewTool("get_article_contract",
		mcp.WithDescription("Returns the stored article format contract."),
	), s.getArticleContract)

	// Resource: article format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Article Format Contract",
			mcp.WithResourceDescription("JSON shape and rules every stored article follows."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError renders a pipeline error as a tool error result.
func toolError(err error) *mcp.CallToolResult {
	var (
		verr *apperr.ValidationError
		gerr *apperr.GenerationError
		derr *apperr.DeployError
	)
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.As(err, &gerr):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", gerr.Code, gerr.Message))
	case errors.As(err, &derr):
		msg := fmt.Sprintf("deploy failed at %s: %v", derr.Stage, derr.Err)
		if derr.Committed {
			msg += fmt.Sprintf(" (commit %s is local only)", derr.Commit)
		}
		return mcp.NewToolResultError(msg)
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) suggestTopics(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.TopicSuggestions()), nil
}

func (s *Server) generateArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.Generate(ctx, models.Category(category), topic)
	if err != nil {
		return toolError(err), nil
	}
	out := map[string]any{"blog": res.Record, "stats": res.Stats}
	if req.GetBool("save", false) {
		saved, err := s.svc.Save(ctx, res.Record)
		if err != nil {
			return toolError(err), nil
		}
		out["saved"] = saved
	}
	return jsonResult(out), nil
}

type articleSummary struct {
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Category    models.Category `json:"category"`
	Status      models.Status   `json:"status,omitempty"`
	Structure   models.Shape    `json:"structure,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

func (s *Server) listArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := models.Category(req.GetString("category", ""))

	recs, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	out := []articleSummary{}
	for _, r := range recs {
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, articleSummary{
			Slug:        r.Slug,
			Title:       r.Title,
			Category:    r.Category,
			Status:      r.Status,
			Structure:   r.Structure,
			PublishedAt: r.PublishedAt,
		})
	}
	return jsonResult(out), nil
}

func (s *Server) readArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Get(ctx, slug)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) exportArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exp, err := s.svc.Export(ctx, slug, req.GetString("format", "json"))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(exp.Body)), nil
}

func (s *Server) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st), nil
}

func (s *Server) deployArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Deploy(context.WithoutCancel(ctx), slug, req.GetString("commitMessage", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getArticleContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormatContract,
		},
	}, nil
}

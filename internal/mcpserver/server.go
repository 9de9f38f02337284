// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes zettel tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/graph"
	"github.com/starford/zettelkasten/internal/noteservice"
)

// Server wraps the MCP server with zettel tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all zettel tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Zettelkasten",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_zettels",
		mcp.WithDescription("Whole-word, case-insensitive search over titles, content and tags. "+
			"Results are ranked: title match 3, content match 2, tag match 1."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search term")),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
	), s.searchZettels)

	s.mcp.AddTool(mcp.NewTool("read_zettel",
		mcp.WithDescription("Read a zettel with its resolved links, backlinks, related and similar zettels."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Zettel id")),
		mcp.WithString("format", mcp.Description(`"json" (default) or "text"`)),
	), s.readZettel)

	s.mcp.AddTool(mcp.NewTool("create_zettel",
		mcp.WithDescription("Create a new zettel. Fields MUST follow the zettel format contract; "+
			"read it first via the get_zettel_contract tool or the "+ZettelFormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title, 1 to 255 characters")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Body text")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("links", mcp.Description("Comma-separated ids of linked zettels")),
	), s.createZettel)

	s.mcp.AddTool(mcp.NewTool("get_zettel_contract",
		mcp.WithDescription("Returns the zettel format contract. "+
			"Call this before creating zettels to ensure correct fields."),
	), s.getZettelContract)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every distinct tag with the number of zettels carrying it."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all zettels that link to the specified zettel."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the zettel to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_related",
		mcp.WithDescription("Find zettels sharing tags with the specified zettel, most shared tags first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Zettel id")),
	), s.getRelated)

	s.mcp.AddTool(mcp.NewTool("get_similar",
		mcp.WithDescription("Find zettels with overlapping tags and content words. Titles are not compared."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Zettel id")),
	), s.getSimilar)

	s.mcp.AddResource(
		mcp.NewResource(ZettelFormatURI, "Zettel Format Contract",
			mcp.WithResourceDescription("Fields and rules every zettel must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readZettelFormatResource,
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

// toolError turns a service error into a tool-level error result. Only
// errors the caller can act on carry their message.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case apperr.IsValidation(err), errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, apperr.ErrStorageLocked):
		return mcp.NewToolResultError("zettel is being written, retry later")
	case apperr.IsStorage(err):
		return mcp.NewToolResultError("storage error")
	}
	return mcp.NewToolResultError("internal error")
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchZettels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	listing, err := s.svc.List(ctx, noteservice.Query{Search: query, Page: req.GetInt("page", 1)})
	if err != nil {
		return toolError(err), nil
	}
	if listing.Total == 0 {
		return mcp.NewToolResultText("no zettels found"), nil
	}
	return jsonResult(listing), nil
}

func (s *Server) readZettel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	switch format := req.GetString("format", "json"); format {
	case "json":
		return jsonResult(d), nil
	case "text":
		return mcp.NewToolResultText(renderText(d)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", format)), nil
	}
}

func (s *Server) createZettel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	z, err := s.svc.Create(ctx, noteservice.Draft{
		Title:   title,
		Content: content,
		Tags:    []string{req.GetString("tags", "")},
		Links:   []string{req.GetString("links", "")},
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", z.ID)), nil
}

func (s *Server) getZettelContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ZettelFormatContract), nil
}

func (s *Server) readZettelFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ZettelFormatURI,
			MIMEType: "text/markdown",
			Text:     ZettelFormatContract,
		},
	}, nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	counts, err := s.svc.TagCounts(ctx)
	if err != nil {
		return toolError(err), nil
	}
	lines := make([]string, 0, len(tags))
	for _, t := range tags {
		lines = append(lines, fmt.Sprintf("%s (%d)", t, counts[t]))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := s.detail(ctx, req)
	if res != nil {
		return res, nil
	}
	if len(d.Backlinks) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	lines := make([]string, 0, len(d.Backlinks))
	for _, ref := range d.Backlinks {
		lines = append(lines, ref.ID+"\t"+ref.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getRelated(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := s.detail(ctx, req)
	if res != nil {
		return res, nil
	}
	return relations(d.Related, "no related zettels found"), nil
}

func (s *Server) getSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, res := s.detail(ctx, req)
	if res != nil {
		return res, nil
	}
	return relations(d.Similar, "no similar zettels found"), nil
}

// detail loads the zettel named by the "id" argument. A non-nil result is
// the error to hand back to the client.
func (s *Server) detail(ctx context.Context, req mcp.CallToolRequest) (*noteservice.Detail, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	d, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, toolError(err)
	}
	return d, nil
}

func relations(rs []graph.Relation, empty string) *mcp.CallToolResult {
	if len(rs) == 0 {
		return mcp.NewToolResultText(empty)
	}
	lines := make([]string, 0, len(rs))
	for _, r := range rs {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%d", r.ID, r.Title, r.Score))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n"))
}

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/nutriempower/nutriempower/pkg/models"
	"github.com/nutriempower/nutriempower/pkg/tracker"
)

// Searcher ranks food records for a free-text query.
type Searcher interface {
	Search(query string, k int) []models.FoodRecord
}

// DatasetInfo reports the state of the food record set.
type DatasetInfo interface {
	Info() models.DatasetInfo
}

// AuditQuerier searches recorded chat exchanges.
type AuditQuerier interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// Deps are the data sources behind the tools. Tracker and Auditor may be nil.
type Deps struct {
	Search  Searcher
	Dataset DatasetInfo
	Tracker tracker.Tracker
	Auditor AuditQuerier
	Log     zerolog.Logger
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	search  Searcher
	dataset DatasetInfo
	tracker tracker.Tracker
	auditor AuditQuerier
	log     zerolog.Logger
	version string
}

// New creates a new MCP Server.
func New(deps Deps, version string) *Server {
	return &Server{
		search:  deps.Search,
		dataset: deps.Dataset,
		tracker: deps.Tracker,
		auditor: deps.Auditor,
		log:     deps.Log,
		version: version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "nutriempower", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	}
	if len(req.ID) == 0 {
		// notifications/initialized and friends expect no reply
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.log.Debug().Str("tool", params.Name).Msg("mcp tool call")
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("mcp: marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("mcp: write response")
	}
}

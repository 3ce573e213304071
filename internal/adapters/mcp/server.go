// Package mcpadapter exposes the question-answering engine as MCP tools over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
)

const (
	ServerName    = "hybrid-qa-engine"
	ServerVersion = "1.0.0"
)

type Server struct {
	mcp      *server.MCPServer
	corpus   ports.CorpusService
	queries  ports.QueryService
	sessions ports.SessionService
	logger   *slog.Logger
}

// NewServer registers the engine tools. sessions may be nil when no flows
// are configured; the session tools are then left out.
func NewServer(corpus ports.CorpusService, queries ports.QueryService, sessions ports.SessionService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		corpus:   corpus,
		queries:  queries,
		sessions: sessions,
		logger:   logger,
	}

	s.mcp.AddTool(askQuestionTool(), s.handleAskQuestion)
	s.mcp.AddTool(corpusStatusTool(), s.handleCorpusStatus)
	if sessions != nil {
		s.mcp.AddTool(startSessionTool(), s.handleStartSession)
		s.mcp.AddTool(stepSessionTool(), s.handleStepSession)
		s.mcp.AddTool(followUpTool(), s.handleFollowUp)
	}
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func askQuestionTool() mcp.Tool {
	return mcp.NewTool("ask_question",
		mcp.WithDescription("Answer a question from the indexed corpus with cited chunk ids"),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve (default from server config)")),
		mcp.WithString("mode", mcp.Description("Answer mode"), mcp.Enum(string(domain.ModeExtraction), string(domain.ModeSynthesis))),
	)
}

func corpusStatusTool() mcp.Tool {
	return mcp.NewTool("corpus_status",
		mcp.WithDescription("Report whether the corpus snapshot is ready and how large it is"),
	)
}

func startSessionTool() mcp.Tool {
	return mcp.NewTool("start_session",
		mcp.WithDescription("Start a question-flow session"),
		mcp.WithString("flow", mcp.Description("Flow name; the default flow when omitted")),
	)
}

func stepSessionTool() mcp.Tool {
	return mcp.NewTool("step_session",
		mcp.WithDescription("Answer the next question of a session's flow"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id returned by start_session")),
	)
}

func followUpTool() mcp.Tool {
	return mcp.NewTool("follow_up",
		mcp.WithDescription("Ask an ad-hoc question inside a session without advancing its flow"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id returned by start_session")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Follow-up question")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve")),
		mcp.WithString("mode", mcp.Description("Answer mode"), mcp.Enum(string(domain.ModeExtraction), string(domain.ModeSynthesis))),
	)
}

func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := queryRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.queries.Answer(ctx, req)
	if err != nil {
		return s.toolError("ask_question", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleCorpusStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.corpus.Status())
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.sessions.Start(ctx, request.GetString("flow", ""))
	if err != nil {
		return s.toolError("start_session", err), nil
	}
	return jsonResult(state)
}

func (s *Server) handleStepSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.sessions.Step(ctx, id)
	if err != nil {
		return s.toolError("step_session", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleFollowUp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req, err := queryRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.sessions.FollowUp(ctx, id, req)
	if err != nil {
		return s.toolError("follow_up", err), nil
	}
	return jsonResult(result)
}

func queryRequest(request mcp.CallToolRequest) (domain.QueryRequest, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return domain.QueryRequest{}, err
	}
	return domain.QueryRequest{
		Question: question,
		TopK:     request.GetInt("top_k", 0),
		Mode:     domain.AnswerMode(request.GetString("mode", "")),
	}, nil
}

// toolError reports domain failures to the client as tool errors so the
// model can react; only unexpected failures are logged.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if !isClientError(err) {
		s.logger.Error("mcp_tool_failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func isClientError(err error) bool {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrCorpusNotReady,
		domain.ErrSessionNotFound,
		domain.ErrFlowFinished,
		domain.ErrStepInProgress,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/tracing"
)

// ToolHandler handles a tool call. It receives the raw arguments and returns
// a result or an error; errors are reported to the client as isError results.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

// Server implements an MCP server over stdio. Requests are processed one at
// a time in arrival order.
type Server struct {
	info         ImplementationInfo
	instructions string
	tracer       trace.Tracer
	tools        map[string]Tool
	handlers     map[string]ToolHandler

	writer io.Writer
	mu     sync.Mutex

	initialized bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInstructions sets the server instructions sent during initialization.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithTracer wraps every tool call in a span.
func WithTracer(tracer trace.Tracer) ServerOption {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// NewServer creates a new MCP server.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info: ImplementationInfo{
			Name:    name,
			Version: version,
		},
		tools:    make(map[string]Tool),
		handlers: make(map[string]ToolHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RegisterTool registers a tool with its handler.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = tool
	s.handlers[tool.Name] = handler
	log.Debug(log.CatMCP, "Registered tool", "name", tool.Name)
}

// Initialized reports whether the client sent notifications/initialized.
func (s *Server) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// maxMessageSize bounds a single newline-delimited message.
const maxMessageSize = 1024 * 1024

// message is one line read from the client.
type message struct {
	line     []byte
	tooLarge bool
	err      error
}

// Serve reads requests from r and writes responses to w until r is exhausted
// or ctx is cancelled. Reading happens on its own goroutine so cancellation
// returns promptly even while r blocks; that goroutine exits on the next read
// result. Messages over maxMessageSize are answered with an invalid request
// error and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.writer = w
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	messages := readMessages(r, done)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok = <-messages:
		}
		if !ok {
			return nil
		}
		if msg.err != nil {
			log.Debug(log.CatMCP, "Read error", "error", msg.err)
			return fmt.Errorf("reading input: %w", msg.err)
		}
		if msg.tooLarge {
			log.Warn(log.CatMCP, "Message too large", "limit", maxMessageSize)
			s.send(NewErrorResponse(nil, &RPCError{
				Code:    ErrCodeInvalidRequest,
				Message: fmt.Sprintf("message exceeds %d bytes", maxMessageSize),
			}))
			continue
		}

		log.Debug(log.CatMCP, "Received message", "raw", string(msg.line))

		var req Request
		if err := json.Unmarshal(msg.line, &req); err != nil {
			s.send(NewErrorResponse(nil, NewParseError(err.Error())))
			continue
		}

		if req.isNotification() {
			s.handleNotification(&req)
		} else {
			s.send(s.handleRequest(ctx, &req))
		}
	}
}

// readMessages splits r into trimmed non-empty lines. The returned channel is
// closed at EOF, after a read error, or once done is closed.
func readMessages(r io.Reader, done <-chan struct{}) <-chan message {
	out := make(chan message)
	go func() {
		defer close(out)
		emit := func(m message) bool {
			select {
			case out <- m:
				return true
			case <-done:
				return false
			}
		}

		br := bufio.NewReaderSize(r, 64*1024)
		var line []byte
		tooLarge := false
		for {
			chunk, err := br.ReadSlice('\n')
			if !tooLarge {
				line = append(line, chunk...)
				if len(line) > maxMessageSize {
					tooLarge, line = true, nil
				}
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}

			if tooLarge {
				if !emit(message{tooLarge: true}) {
					return
				}
			} else if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				if !emit(message{line: trimmed}) {
					return
				}
			}
			line, tooLarge = nil, false

			if err != nil {
				if !errors.Is(err, io.EOF) {
					emit(message{err: err})
				}
				return
			}
		}
	}()
	return out
}

// handleRequest processes a JSON-RPC request and builds its response.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	log.Debug(log.CatMCP, "Handling request", "method", req.Method)

	var result any
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)

	case "tools/list":
		result = s.handleToolsList()

	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.ID, req.Params)

	case "ping":
		result = struct{}{}

	default:
		rpcErr = NewMethodNotFound(req.Method)
	}

	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}

// handleNotification processes a JSON-RPC notification (no response needed).
func (s *Server) handleNotification(req *Request) {
	log.Debug(log.CatMCP, "Handling notification", "method", req.Method)

	switch req.Method {
	case "notifications/initialized":
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		log.Debug(log.CatMCP, "Client initialized")

	default:
		log.Debug(log.CatMCP, "Ignored notification", "method", req.Method)
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewInvalidParams(err.Error())
		}
	}

	log.Info(log.CatMCP, "Initialize request",
		"clientVersion", p.ProtocolVersion,
		"clientName", p.ClientInfo.Name)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapability{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

// handleToolsList returns the registered tools sorted by name.
func (s *Server) handleToolsList() ToolsListResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	tools := make([]Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	return ToolsListResult{Tools: tools}
}

func (s *Server) handleToolsCall(ctx context.Context, id json.RawMessage, params json.RawMessage) (any, *RPCError) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}

	s.mu.Lock()
	handler, ok := s.handlers[p.Name]
	s.mu.Unlock()

	if !ok {
		return nil, NewToolNotFound(p.Name)
	}

	ctx, span := tracing.StartSpan(ctx, s.tracer, tracing.SpanPrefixMCP+p.Name,
		attribute.String(tracing.AttrMCPToolName, p.Name),
		attribute.String(tracing.AttrMCPRequestID, string(id)),
	)
	result, err := handler(ctx, p.Arguments)
	tracing.EndSpan(span, err)

	if err != nil {
		log.Info(log.CatMCP, "Tool execution failed", "name", p.Name, "error", err)
		return ErrorResult(err.Error()), nil
	}

	return result, nil
}

// send marshals and writes a newline-delimited response.
func (s *Server) send(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.ErrorErr(log.CatMCP, "Failed to marshal response", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return
	}

	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		log.ErrorErr(log.CatMCP, "Failed to write response", err)
	}

	log.Debug(log.CatMCP, "Sent response", "raw", string(data[:len(data)-1]))
}

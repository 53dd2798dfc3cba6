package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/phaseguide/internal/tracing"
)

// serve runs the server over the given newline-delimited input and returns
// the decoded responses in order.
func serve(t *testing.T, s *Server, lines ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func resultAs(t *testing.T, resp Response, v any) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func echoTool(s *Server) {
	s.RegisterTool(Tool{Name: "echo", Description: "echo", InputSchema: &InputSchema{Type: "object"}},
		func(_ context.Context, args json.RawMessage) (*ToolCallResult, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			if in.Text == "" {
				return nil, errors.New("text is required")
			}
			return StructuredResult(map[string]string{"text": in.Text})
		})
}

func TestServer_Initialize(t *testing.T) {
	s := NewServer("phaseguide", "1.2.3", WithInstructions("Use the tools"))

	responses := serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"client","version":"0.1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)
	require.Len(t, responses, 1)
	require.Equal(t, "1", string(responses[0].ID))

	var result InitializeResult
	resultAs(t, responses[0], &result)
	require.Equal(t, ProtocolVersion, result.ProtocolVersion)
	require.Equal(t, "phaseguide", result.ServerInfo.Name)
	require.Equal(t, "1.2.3", result.ServerInfo.Version)
	require.Equal(t, "Use the tools", result.Instructions)
	require.NotNil(t, result.Capabilities.Tools)
	require.True(t, s.Initialized())
}

func TestServer_ToolsListSorted(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	for _, name := range []string{"b_tool", "a_tool", "c_tool"} {
		s.RegisterTool(Tool{Name: name, InputSchema: &InputSchema{Type: "object"}}, nil)
	}

	responses := serve(t, s, `{"jsonrpc":"2.0","id":"x","method":"tools/list"}`)
	require.Len(t, responses, 1)

	var result ToolsListResult
	resultAs(t, responses[0], &result)
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{"a_tool", "b_tool", "c_tool"}, names)
}

func TestServer_ToolCall(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	echoTool(s)

	responses := serve(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	require.Len(t, responses, 1)

	var result ToolCallResult
	resultAs(t, responses[0], &result)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	require.Equal(t, "text", result.Content[0].Type)
	require.JSONEq(t, `{"text":"hi"}`, result.Content[0].Text)
}

func TestServer_ToolErrorIsResult(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	echoTool(s)

	responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	require.Len(t, responses, 1)

	var result ToolCallResult
	resultAs(t, responses[0], &result)
	require.True(t, result.IsError)
	require.Equal(t, "text is required", result.Content[0].Text)
}

func TestServer_Errors(t *testing.T) {
	s := NewServer("phaseguide", "dev")

	responses := serve(t, s,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"missing"}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":"bad"}`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
	)
	require.Len(t, responses, 5)
	require.Equal(t, ErrCodeParseError, responses[0].Error.Code)
	require.Equal(t, ErrCodeMethodNotFound, responses[1].Error.Code)
	require.Equal(t, ErrCodeToolNotFound, responses[2].Error.Code)
	require.Equal(t, ErrCodeInvalidParams, responses[3].Error.Code)
	require.Nil(t, responses[4].Error)
}

func TestServer_NotificationsGetNoResponse(t *testing.T) {
	s := NewServer("phaseguide", "dev")

	responses := serve(t, s,
		`{"jsonrpc":"2.0","method":"notifications/cancelled"}`,
		`{"jsonrpc":"2.0","id":null,"method":"ping"}`,
	)
	require.Empty(t, responses)
}

func TestServer_ToolCallSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s := NewServer("phaseguide", "dev", WithTracer(provider.Tracer("test")))
	echoTool(s)

	serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
	)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, tracing.SpanPrefixMCP+"echo", ended[0].Name())
	require.NotEqual(t, ended[0].Status().Code, ended[1].Status().Code)
}

func TestServer_StopsOnCancelledContext(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ping\"}\n"), &out)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, out.String(), "nothing is handled once the context is done")
}

func TestServer_CancelWhileWaitingForInput(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	ctx, cancel := context.WithCancel(context.Background())

	// The pipe is never written to, so the reader blocks until the test ends.
	r, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, r, io.Discard) }()

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServer_OversizedMessageIsSkipped(t *testing.T) {
	s := NewServer("phaseguide", "dev")
	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":"` + strings.Repeat("x", maxMessageSize) + `"}`

	responses := serve(t, s, huge, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	require.Len(t, responses, 2)
	require.NotNil(t, responses[0].Error)
	require.Equal(t, ErrCodeInvalidRequest, responses[0].Error.Code)
	require.Nil(t, responses[1].Error)
	require.JSONEq(t, "2", string(responses[1].ID))
}

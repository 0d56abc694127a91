package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"civicsync-api/llm"
	"civicsync-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type echoTool struct {
	calls  int
	result string
	err    error
	block  bool
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes" }
func (t *echoTool) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"text":   {Type: "string"},
			"status": {Type: "string", Enum: []string{"open", "closed"}},
			"limit":  {Type: "integer"},
			"lat":    {Type: "number"},
		},
		Required: []string{"text"},
	}
}

func (t *echoTool) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	t.calls++
	if t.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if t.err != nil {
		return "", t.err
	}
	if t.result != "" {
		return t.result, nil
	}
	return args["text"].(string), nil
}

func newTestRegistry(t *testing.T, tools ...Tool) *Registry {
	r := NewRegistry(zaptest.NewLogger(t), nil)
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

func TestRegistryRejectsMalformedCalls(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing required", map[string]any{}, "missing required parameter: text"},
		{"empty required", map[string]any{"text": ""}, "must not be empty"},
		{"unknown key", map[string]any{"text": "a", "_raw": "{oops"}, "unknown parameter: _raw"},
		{"wrong type", map[string]any{"text": 12.0}, "must be a string"},
		{"bad enum", map[string]any{"text": "a", "status": "pending"}, "must be one of"},
		{"fractional integer", map[string]any{"text": "a", "limit": 2.5}, "must be an integer"},
		{"non-numeric number", map[string]any{"text": "a", "lat": "north"}, "must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := &echoTool{}
			r := newTestRegistry(t, tool)

			out := r.Execute(context.Background(), &models.ConversationContext{}, "echo", tt.args)
			assert.Contains(t, out, "Invalid arguments for echo")
			assert.Contains(t, out, tt.want)
			assert.Zero(t, tool.calls, "tool must not run on invalid input")
		})
	}
}

func TestRegistryRunsValidCall(t *testing.T) {
	tool := &echoTool{}
	r := newTestRegistry(t, tool)

	out := r.Execute(context.Background(), nil, "echo", map[string]any{"text": "hello", "limit": 3.0, "status": "open"})
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, tool.calls)
}

func TestRegistryUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	out := r.Execute(context.Background(), nil, "nope", nil)
	assert.Equal(t, "Error: unknown tool: nope", out)
}

func TestRegistryToolErrorBecomesString(t *testing.T) {
	r := newTestRegistry(t, &echoTool{err: errors.New("boom")})
	out := r.Execute(context.Background(), nil, "echo", map[string]any{"text": "x"})
	assert.Equal(t, "Error running echo: boom", out)
}

func TestRegistryTruncatesLargeOutput(t *testing.T) {
	r := newTestRegistry(t, &echoTool{result: strings.Repeat("x", maxOutputLen+100)})
	out := r.Execute(context.Background(), nil, "echo", map[string]any{"text": "x"})
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", maxOutputLen)))
	assert.True(t, strings.HasSuffix(out, "(truncated)"))
}

func TestRegistryTruncatesOnRuneBoundary(t *testing.T) {
	// "é" is two bytes, so the cap lands inside a rune.
	long := "x" + strings.Repeat("é", maxOutputLen)
	r := newTestRegistry(t, &echoTool{result: long})
	out := r.Execute(context.Background(), nil, "echo", map[string]any{"text": "x"})

	assert.True(t, utf8.ValidString(out))
	body := strings.TrimSuffix(out, "\n... (truncated)")
	assert.Equal(t, maxOutputLen-1, len(body))
	assert.True(t, strings.HasPrefix(long, body))
}

func TestRegistryHonoursCallerDeadline(t *testing.T) {
	r := newTestRegistry(t, &echoTool{block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out := r.Execute(ctx, nil, "echo", map[string]any{"text": "x"})
	assert.Contains(t, out, "deadline exceeded")
}

func TestRegistrySpecsKeepRegistrationOrder(t *testing.T) {
	r := newTestRegistry(t, &echoTool{}, &formTool{})
	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, FormTriggerTool, specs[1].Name)
	assert.Nil(t, specs[1].Parameters)
}

func TestNoParameterToolRejectsArguments(t *testing.T) {
	r := newTestRegistry(t, &formTool{})
	out := r.Execute(context.Background(), &models.ConversationContext{}, FormTriggerTool, map[string]any{"x": 1.0})
	assert.Contains(t, out, "takes no parameters")
}

func TestBindArgsAppliesValidateTags(t *testing.T) {
	var dst struct {
		Status string `json:"status" validate:"omitempty,oneof=open closed"`
		Limit  int    `json:"limit" validate:"omitempty,min=1,max=10"`
	}
	require.NoError(t, BindArgs(map[string]any{"status": "open", "limit": 5.0}, &dst))
	assert.Equal(t, "open", dst.Status)
	assert.Equal(t, 5, dst.Limit)

	assert.Error(t, BindArgs(map[string]any{"limit": 50.0}, &dst))
	assert.NoError(t, BindArgs(nil, &dst))
}

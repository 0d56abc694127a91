package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var exchange = []Message{
	{Role: RoleUser, Content: "issues near me?"},
	{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "search_nearby_issues", Args: map[string]any{"latitude": 10.0, "longitude": 10.0}}}},
	{Role: RoleTool, ToolCallID: "call-1", ToolName: "search_nearby_issues", Content: `{"total":0}`},
	{Role: RoleAssistant, Content: "Nothing nearby."},
}

func TestToOpenAIMessages(t *testing.T) {
	out := toOpenAIMessages("be brief", exchange)
	require.Len(t, out, 5)

	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, out[1].Role)

	require.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, "call-1", out[2].ToolCalls[0].ID)
	assert.Equal(t, "search_nearby_issues", out[2].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"latitude":10,"longitude":10}`, out[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, openai.ChatMessageRoleTool, out[3].Role)
	assert.Equal(t, "call-1", out[3].ToolCallID)
	assert.Equal(t, "Nothing nearby.", out[4].Content)
}

func TestToGenaiContents(t *testing.T) {
	out := toGenaiContents(exchange)
	require.Len(t, out, 4)

	assert.Equal(t, genai.RoleUser, out[0].Role)
	assert.Equal(t, genai.RoleModel, out[1].Role)
	require.NotNil(t, out[1].Parts[0].FunctionCall)
	assert.Equal(t, "search_nearby_issues", out[1].Parts[0].FunctionCall.Name)

	require.NotNil(t, out[2].Parts[0].FunctionResponse)
	assert.Equal(t, "call-1", out[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, `{"total":0}`, out[2].Parts[0].FunctionResponse.Response["output"])
	assert.Equal(t, "Nothing nearby.", out[3].Parts[0].Text)
}

func TestToGenaiContentsGroupsParallelToolResults(t *testing.T) {
	sig := []byte("sig-a")
	out := toGenaiContents([]Message{
		{Role: RoleUser, Content: "compare my issues with popular ones"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call-a", Name: "get_user_issues", Args: map[string]any{}, Signature: sig},
			{ID: "call-b", Name: "get_popular_issues", Args: map[string]any{}},
		}},
		{Role: RoleTool, ToolCallID: "call-a", ToolName: "get_user_issues", Content: "a"},
		{Role: RoleTool, ToolCallID: "call-b", ToolName: "get_popular_issues", Content: "b"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-c", Name: "get_issue_statistics"}}},
		{Role: RoleTool, ToolCallID: "call-c", ToolName: "get_issue_statistics", Content: "c"},
	})
	require.Len(t, out, 5)

	require.Len(t, out[1].Parts, 2)
	assert.Equal(t, sig, out[1].Parts[0].ThoughtSignature)
	assert.Nil(t, out[1].Parts[1].ThoughtSignature)

	assert.Equal(t, genai.RoleUser, out[2].Role)
	require.Len(t, out[2].Parts, 2)
	assert.Equal(t, "call-a", out[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "get_popular_issues", out[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, "b", out[2].Parts[1].FunctionResponse.Response["output"])

	require.Len(t, out[4].Parts, 1)
	assert.Equal(t, "call-c", out[4].Parts[0].FunctionResponse.ID)
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(&Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"status": {Type: "string", Enum: []string{"open", "closed"}},
			"limit":  {Type: "integer"},
		},
		Required: []string{"status"},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, genai.TypeString, s.Properties["status"].Type)
	assert.Equal(t, []string{"open", "closed"}, s.Properties["status"].Enum)
	assert.Equal(t, genai.TypeInteger, s.Properties["limit"].Type)
	assert.Nil(t, toGenaiSchema(nil))
}

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"bad key", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, true},
		{"overloaded", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unavailable, errors.Is(classifyOpenAIError(tt.err), ErrUnavailable))
		})
	}
}

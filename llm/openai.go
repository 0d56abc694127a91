package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const (
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "moonshotai/kimi-k2-instruct"
)

// OpenAICompatible is a Model for any OpenAI-style chat completions API.
// Groq is the default endpoint.
type OpenAICompatible struct {
	client *openai.Client
	model  string
}

func NewOpenAICompatible(apiKey, baseURL, model string) (*OpenAICompatible, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	if model == "" {
		model = defaultGroqModel
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAICompatible{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAICompatible) Generate(ctx context.Context, req *Request) (*Message, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		def := &openai.FunctionDefinition{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			def.Parameters = t.Parameters
		} else {
			def.Parameters = &Schema{Type: "object", Properties: map[string]*Schema{}}
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{Type: openai.ToolTypeFunction, Function: def})
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return &Message{Role: RoleAssistant}, nil
	}

	choice := resp.Choices[0].Message
	msg := &Message{Role: RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				// Malformed arguments still reach the registry, which rejects them.
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: id, Name: tc.Function.Name, Args: args})
	}
	return msg, nil
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, msg)
		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.ToolName,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable(err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return unavailable(err)
	}
	return fmt.Errorf("chat completion: %w", err)
}

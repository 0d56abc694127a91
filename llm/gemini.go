package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini is a Model backed by the Google Gen AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, req *Request) (*Message, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenaiContents(req.Messages), config)
	if err != nil {
		return nil, classifyGenaiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &Message{Role: RoleAssistant}, nil
	}

	msg := &Message{Role: RoleAssistant}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Args:      part.FunctionCall.Args,
				Signature: part.ThoughtSignature,
			})
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	msg.Content = text.String()
	return msg, nil
}

// toGenaiContents maps an exchange onto Gemini contents. Consecutive tool
// results share one user content so its response parts line up with the
// preceding model turn's call parts.
func toGenaiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	var results *genai.Content
	for _, m := range messages {
		if m.Role != RoleTool {
			results = nil
		}
		switch m.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Args,
					},
					ThoughtSignature: tc.Signature,
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case RoleTool:
			part := genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"output": m.Content})
			part.FunctionResponse.ID = m.ToolCallID
			if results == nil {
				results = &genai.Content{Role: genai.RoleUser}
				contents = append(contents, results)
			}
			results.Parts = append(results.Parts, part)
		}
	}
	return contents
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}

func classifyGenaiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable(err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized,
			apiErr.Code == http.StatusForbidden,
			apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code >= http.StatusInternalServerError:
			return unavailable(err)
		}
	}
	return fmt.Errorf("gemini generate: %w", err)
}

// Package agent runs the assistant's tool-using dialogue loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"civicsync-api/llm"
	"civicsync-api/metrics"
	"civicsync-api/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	maxOutputLen = 8192
	toolTimeout  = 20 * time.Second
)

// Tool is a single function the model can call. Execute receives the
// conversation's context so a tool can record cross-turn intent; read-only
// tools ignore it. Results are text handed straight back to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() *llm.Schema
	Execute(ctx context.Context, state *models.ConversationContext, args map[string]any) (string, error)
}

// Registry holds the tools exposed to the model.
type Registry struct {
	tools   map[string]Tool
	order   []string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{tools: make(map[string]Tool), logger: logger, metrics: m}
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return t, nil
}

// Specs returns tool declarations in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

// Execute validates args, runs the tool under a timeout and returns its
// result. Every failure becomes a descriptive string; nothing is returned to
// the model as an error.
func (r *Registry) Execute(ctx context.Context, state *models.ConversationContext, name string, args map[string]any) string {
	t, err := r.Get(name)
	if err != nil {
		r.metrics.ToolCall(name, "unknown")
		return fmt.Sprintf("Error: %v", err)
	}

	if err := validateArgs(t.Parameters(), args); err != nil {
		r.metrics.ToolCall(name, "invalid")
		r.logger.Warn("rejected tool call", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("Invalid arguments for %s: %v", name, err)
	}

	toolCtx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := t.Execute(toolCtx, state, args)
	r.logger.Debug("tool completed", zap.String("tool", name), zap.Duration("elapsed", time.Since(start)))

	if err != nil {
		r.metrics.ToolCall(name, "error")
		r.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("Error running %s: %v", name, err)
	}
	r.metrics.ToolCall(name, "ok")
	return truncateOutput(result)
}

// validateArgs rejects unknown parameters, missing required ones, and values
// of the wrong type or outside an enum.
func validateArgs(schema *llm.Schema, args map[string]any) error {
	if schema == nil {
		if len(args) > 0 {
			return fmt.Errorf("tool takes no parameters")
		}
		return nil
	}
	for key := range args {
		if _, ok := schema.Properties[key]; !ok {
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	for _, req := range schema.Required {
		v, ok := args[req]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter: %s", req)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("parameter %s must not be empty", req)
		}
	}
	for key, v := range args {
		if v == nil {
			continue
		}
		prop := schema.Properties[key]
		switch prop.Type {
		case "string":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("parameter %s must be a string", key)
			}
			if len(prop.Enum) > 0 && !contains(prop.Enum, s) {
				return fmt.Errorf("parameter %s must be one of %v", key, prop.Enum)
			}
		case "number":
			if _, ok := v.(float64); !ok {
				if _, ok := v.(int); !ok {
					return fmt.Errorf("parameter %s must be a number", key)
				}
			}
		case "integer":
			switch n := v.(type) {
			case int:
			case float64:
				if n != float64(int64(n)) {
					return fmt.Errorf("parameter %s must be an integer", key)
				}
			default:
				return fmt.Errorf("parameter %s must be an integer", key)
			}
		}
	}
	return nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindArgs decodes validated tool arguments into dst and applies its
// `validate` struct tags.
func BindArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func truncateOutput(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	n := maxOutputLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n... (truncated)"
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicsync-api/llm"
	"civicsync-api/metrics"
	"civicsync-api/models"
	"civicsync-api/session"
	"civicsync-api/store"

	"go.uber.org/zap"
)

const (
	FormTriggerTool   = "trigger_issue_creation_form"
	FormTriggerMarker = "FORM_TRIGGER_MARKER"
	// OpenFormResponse tells the client to present the issue report form.
	OpenFormResponse = "__OPEN_ISSUE_FORM__"

	OfflineResponse  = "I'm currently offline. Please check your issues in the dashboard or contact support."
	ErrorResponse    = "I encountered an error processing your request. Please try again or contact support if the issue persists."
	FallbackResponse = "I'm not sure how to help with that. Could you please rephrase your question?"

	DefaultModelTimeout = 45 * time.Second

	historyWindow     = 10
	maxToolIterations = 5
	temperature       = 0.2
)

// Orchestrator answers chat messages by running the model against the tool
// registry and persisting the dialogue.
type Orchestrator struct {
	model   llm.Model
	tools   *Registry
	convs   store.ConversationStore
	locks   *session.Manager
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

type Options struct {
	// ModelTimeout bounds the whole tool loop. Expiry is reported as offline.
	ModelTimeout time.Duration
	Metrics      *metrics.Metrics
	Locks        *session.Manager
}

// NewOrchestrator wires an orchestrator. A nil model puts the assistant in
// offline mode.
func NewOrchestrator(model llm.Model, tools *Registry, convs store.ConversationStore, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.Locks == nil {
		opts.Locks = session.NewManager()
	}
	return &Orchestrator{
		model:   model,
		tools:   tools,
		convs:   convs,
		locks:   opts.Locks,
		logger:  logger,
		metrics: opts.Metrics,
		timeout: opts.ModelTimeout,
		now:     time.Now,
	}
}

// Chat handles one user message and returns the text to show. It never
// fails; every error resolves to one of the fixed responses.
func (o *Orchestrator) Chat(ctx context.Context, userID, userName, message string) string {
	if o.model == nil {
		o.metrics.ChatResponse("offline")
		return OfflineResponse
	}

	var reply, outcome string
	_ = o.locks.WithLock(userID, func() error {
		reply, outcome = o.exchange(ctx, userID, userName, message)
		return nil
	})
	o.metrics.ChatResponse(outcome)
	return reply
}

// Reset closes the user's active conversation so the next message starts fresh.
func (o *Orchestrator) Reset(ctx context.Context, userID string) error {
	return o.locks.WithLock(userID, func() error {
		return o.convs.Deactivate(ctx, userID)
	})
}

func (o *Orchestrator) exchange(ctx context.Context, userID, userName, message string) (reply, outcome string) {
	log := o.logger.With(zap.String("user_id", userID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("chat exchange panicked", zap.Any("panic", r), zap.Stack("stack"))
			reply, outcome = ErrorResponse, "error"
		}
	}()

	conv, err := o.convs.GetOrCreateActive(ctx, userID)
	if err != nil {
		log.Error("failed to load conversation", zap.Error(err))
		return ErrorResponse, "error"
	}
	userTurn := models.Message{Role: models.RoleUser, Content: message, Timestamp: o.now()}
	if err := o.convs.Append(ctx, conv, userTurn); err != nil {
		log.Error("failed to record user message", zap.Error(err))
		return ErrorResponse, "error"
	}

	state := conv.Context
	history := toModelHistory(conv.Recent(historyWindow))
	history = append(history, llm.Message{
		Role:    llm.RoleUser,
		Content: buildUserTurn(userID, userName, state, message),
	})

	turns, err := o.runToolLoop(ctx, &state, history)
	if err != nil {
		if isOffline(err) {
			log.Warn("model unavailable", zap.Error(err))
			return OfflineResponse, "offline"
		}
		log.Error("tool loop failed", zap.Error(err))
		return ErrorResponse, "error"
	}

	reply, outcome = o.resolveReply(log, turns)

	conv.Context = state
	conv.Messages = append(conv.Messages, models.Message{
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: o.now(),
	})
	if err := o.convs.Save(ctx, conv); err != nil {
		log.Error("failed to save conversation", zap.Error(err))
		return ErrorResponse, "error"
	}
	return reply, outcome
}

// toModelHistory converts stored turns, minus the newest user message, into
// model turns. The newest message is re-sent with user context attached.
func toModelHistory(recent []models.Message) []llm.Message {
	if n := len(recent); n > 0 && recent[n-1].Role == models.RoleUser {
		recent = recent[:n-1]
	}
	out := make([]llm.Message, 0, len(recent)+1)
	for _, m := range recent {
		role := llm.RoleAssistant
		if m.Role == models.RoleUser {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

// runToolLoop calls the model until it answers without tool calls or the
// iteration cap is hit. It returns every turn produced during the exchange.
func (o *Orchestrator) runToolLoop(ctx context.Context, state *models.ConversationContext, history []llm.Message) ([]llm.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := &llm.Request{
		System:      systemPrompt,
		Messages:    history,
		Tools:       o.tools.Specs(),
		Temperature: temperature,
	}

	var turns []llm.Message
	for range maxToolIterations {
		start := time.Now()
		resp, err := o.model.Generate(ctx, req)
		o.metrics.ModelRequest(time.Since(start))
		if err != nil {
			return turns, err
		}
		if resp == nil {
			return turns, fmt.Errorf("model returned no message")
		}

		turns = append(turns, *resp)
		req.Messages = append(req.Messages, *resp)
		if len(resp.ToolCalls) == 0 {
			return turns, nil
		}

		for _, call := range resp.ToolCalls {
			o.logger.Debug("calling tool", zap.String("tool", call.Name))
			result := llm.Message{
				Role:       llm.RoleTool,
				Content:    o.tools.Execute(ctx, state, call.Name, call.Args),
				ToolCallID: call.ID,
				ToolName:   call.Name,
			}
			turns = append(turns, result)
			req.Messages = append(req.Messages, result)
		}
	}

	o.logger.Warn("tool iteration limit reached", zap.Int("iterations", maxToolIterations))
	return turns, nil
}

// resolveReply picks the visible response. A call to the form trigger wins
// over anything the model said, with or without its marker result.
func (o *Orchestrator) resolveReply(log *zap.Logger, turns []llm.Message) (string, string) {
	if calledFormTrigger(turns) {
		if !hasMarker(turns) {
			log.Warn("form trigger called without marker result")
		}
		return OpenFormResponse, "form"
	}

	if n := len(turns); n > 0 {
		last := turns[n-1]
		if last.Role == llm.RoleAssistant && strings.TrimSpace(last.Content) != "" {
			return last.Content, "answer"
		}
	}
	return FallbackResponse, "fallback"
}

func calledFormTrigger(turns []llm.Message) bool {
	for _, t := range turns {
		for _, call := range t.ToolCalls {
			if call.Name == FormTriggerTool {
				return true
			}
		}
	}
	return false
}

func hasMarker(turns []llm.Message) bool {
	for _, t := range turns {
		if t.Role == llm.RoleTool && strings.Contains(t.Content, FormTriggerMarker) {
			return true
		}
	}
	return false
}

func isOffline(err error) bool {
	return errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

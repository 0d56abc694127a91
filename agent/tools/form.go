package tools

import (
	"context"
	"fmt"

	"civicsync-api/agent"
	"civicsync-api/llm"
	"civicsync-api/models"
)

// TriggerIssueForm asks the client to open the issue report form. It is the
// only tool that changes conversation state.
type TriggerIssueForm struct{}

func NewTriggerIssueForm() *TriggerIssueForm { return &TriggerIssueForm{} }

func (t *TriggerIssueForm) Name() string { return agent.FormTriggerTool }
func (t *TriggerIssueForm) Description() string {
	return "Use this ONLY when user explicitly wants to report, create, or submit a new civic issue (e.g., 'report a pothole', 'create an issue', 'submit a complaint', 'I want to report', etc.). This opens the issue creation form."
}
func (t *TriggerIssueForm) Parameters() *llm.Schema { return nil }

func (t *TriggerIssueForm) Execute(_ context.Context, state *models.ConversationContext, _ map[string]any) (string, error) {
	if state == nil {
		return "", fmt.Errorf("no conversation context")
	}
	state.CreatingIssue = true
	return agent.FormTriggerMarker, nil
}

// Package tools implements the functions the assistant can call.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"civicsync-api/agent"
	"civicsync-api/llm"
	"civicsync-api/metrics"
	"civicsync-api/models"
	"civicsync-api/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// IssueQueries is the read side of the issue service used by the tools.
type IssueQueries interface {
	QueryIssues(ctx context.Context, q services.IssueQuery) (*services.IssuePage, error)
	PopularIssues(ctx context.Context, status models.IssueStatus) ([]models.Issue, error)
	Statistics(ctx context.Context, userID string) (*models.IssueStats, error)
	GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
}

// BuildRegistry creates a Registry with every assistant tool. The tools hold
// no per-conversation state, so one registry serves all requests.
func BuildRegistry(issues IssueQueries, logger *zap.Logger, m *metrics.Metrics) *agent.Registry {
	r := agent.NewRegistry(logger, m)
	r.Register(NewGetUserIssues(issues))
	r.Register(NewGetAllIssues(issues))
	r.Register(NewSearchNearbyIssues(issues))
	r.Register(NewGetPopularIssues(issues))
	r.Register(NewGetIssueStatistics(issues))
	r.Register(NewGetIssueDetails(issues))
	r.Register(NewTriggerIssueForm())
	return r
}

func statusParam() *llm.Schema {
	enum := make([]string, len(models.IssueStatuses))
	for i, s := range models.IssueStatuses {
		enum[i] = string(s)
	}
	return &llm.Schema{Type: "string", Description: "Filter by issue status", Enum: enum}
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 3:04 PM")
}

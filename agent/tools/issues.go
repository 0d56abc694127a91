package tools

import (
	"context"
	"errors"
	"fmt"

	"civicsync-api/agent"
	"civicsync-api/llm"
	"civicsync-api/models"
	"civicsync-api/services"
	"civicsync-api/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	userIssuesLimit  = 100
	nearbyRadiusKm   = 5.0
	nearbyIssueLimit = 20
)

type issueSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	Distance   string `json:"distance,omitempty"`
	Upvotes    int    `json:"upvotes"`
	ReportedBy string `json:"reportedBy,omitempty"`
	CreatedAt  string `json:"createdAt"`
	Location   string `json:"location"`
}

func summarize(issue models.Issue) issueSummary {
	return issueSummary{
		ID:        issue.ID.Hex(),
		Title:     issue.Title,
		Category:  issue.Category,
		Status:    string(issue.Status),
		Upvotes:   issue.Upvotes,
		CreatedAt: formatDate(issue.CreatedAt),
		Location:  issue.Location.Address,
	}
}

// --- GetUserIssues ---

type GetUserIssues struct {
	issues IssueQueries
}

func NewGetUserIssues(issues IssueQueries) *GetUserIssues {
	return &GetUserIssues{issues: issues}
}

func (t *GetUserIssues) Name() string { return "get_user_issues" }
func (t *GetUserIssues) Description() string {
	return "Retrieve all issues reported by a specific user. Useful when user asks about 'my issues', 'my complaints', or 'my reports'. Can filter by status (open, in_progress, resolved, closed)."
}
func (t *GetUserIssues) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"userId": {Type: "string", Description: "The ID of the user whose issues to retrieve"},
			"status": statusParam(),
		},
		Required: []string{"userId"},
	}
}

type userIssuesArgs struct {
	UserID string `json:"userId" validate:"required"`
	Status string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
}

func (t *GetUserIssues) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in userIssuesArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}

	page, err := t.issues.QueryIssues(ctx, services.IssueQuery{
		UserID: in.UserID,
		Status: models.IssueStatus(in.Status),
		Limit:  userIssuesLimit,
	})
	if err != nil {
		return fmt.Sprintf("Error fetching user issues: %v", err), nil
	}
	if len(page.Issues) == 0 {
		return "The user hasn't reported any issues yet.", nil
	}

	out := struct {
		Total  int64          `json:"total"`
		Issues []issueSummary `json:"issues"`
	}{Total: page.Total}
	for _, v := range page.Issues {
		out.Issues = append(out.Issues, summarize(v.Issue))
	}
	return toJSON(out)
}

// --- GetAllIssues ---

type GetAllIssues struct {
	issues IssueQueries
}

func NewGetAllIssues(issues IssueQueries) *GetAllIssues {
	return &GetAllIssues{issues: issues}
}

func (t *GetAllIssues) Name() string { return "get_all_issues" }
func (t *GetAllIssues) Description() string {
	return "Retrieve issues with filters, pagination, and sorting (createdAt, upvotes). Useful for dashboard-like views."
}
func (t *GetAllIssues) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"status":    statusParam(),
			"category":  {Type: "string", Description: "Filter by issue category"},
			"page":      {Type: "integer", Description: "Page number for pagination (default: 1)"},
			"limit":     {Type: "integer", Description: "Number of issues per page (default: 20)"},
			"sortBy":    {Type: "string", Description: "Field to sort by", Enum: []string{"createdAt", "upvotes"}},
			"sortOrder": {Type: "string", Description: "Sort order", Enum: []string{"asc", "desc"}},
		},
	}
}

type allIssuesArgs struct {
	Status    string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	Category  string `json:"category"`
	Page      int    `json:"page" validate:"omitempty,min=1"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=createdAt upvotes"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

func (t *GetAllIssues) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in allIssuesArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}

	page, err := t.issues.QueryIssues(ctx, services.IssueQuery{
		Status:    models.IssueStatus(in.Status),
		Category:  in.Category,
		Page:      in.Page,
		Limit:     in.Limit,
		SortBy:    store.SortField(in.SortBy),
		SortOrder: in.SortOrder,
	})
	if err != nil {
		return fmt.Sprintf("Error fetching all issues: %v", err), nil
	}
	if len(page.Issues) == 0 {
		return "No issues found matching the criteria.", nil
	}

	out := struct {
		Total      int64          `json:"total"`
		TotalPages int            `json:"totalPages"`
		Issues     []issueSummary `json:"issues"`
	}{Total: page.Total, TotalPages: page.TotalPages}
	for _, v := range page.Issues {
		s := summarize(v.Issue)
		s.ReportedBy = v.ReportedByName
		out.Issues = append(out.Issues, s)
	}
	return toJSON(out)
}

// --- SearchNearbyIssues ---

type SearchNearbyIssues struct {
	issues IssueQueries
}

func NewSearchNearbyIssues(issues IssueQueries) *SearchNearbyIssues {
	return &SearchNearbyIssues{issues: issues}
}

func (t *SearchNearbyIssues) Name() string { return "search_nearby_issues" }
func (t *SearchNearbyIssues) Description() string {
	return "Search for issues near a specific location. Useful when user asks about 'issues near me', 'nearby problems', or 'local issues'. Requires latitude and longitude coordinates."
}
func (t *SearchNearbyIssues) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"latitude":  {Type: "number", Description: "Latitude coordinate of the location"},
			"longitude": {Type: "number", Description: "Longitude coordinate of the location"},
			"radiusKm":  {Type: "number", Description: "Search radius in kilometers (default: 5km)"},
			"status":    statusParam(),
			"limit":     {Type: "integer", Description: "Number of issues to return (default: 20)"},
		},
		Required: []string{"latitude", "longitude"},
	}
}

type nearbyArgs struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	RadiusKm  float64 `json:"radiusKm" validate:"omitempty,gt=0"`
	Status    string  `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	Limit     int     `json:"limit" validate:"omitempty,min=1,max=100"`
}

func (t *SearchNearbyIssues) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in nearbyArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}
	if in.RadiusKm == 0 {
		in.RadiusKm = nearbyRadiusKm
	}
	if in.Limit == 0 {
		in.Limit = nearbyIssueLimit
	}

	page, err := t.issues.QueryIssues(ctx, services.IssueQuery{
		Latitude:  &in.Latitude,
		Longitude: &in.Longitude,
		RadiusKm:  in.RadiusKm,
		Status:    models.IssueStatus(in.Status),
		Limit:     in.Limit,
	})
	if err != nil {
		return fmt.Sprintf("Error searching nearby issues: %v", err), nil
	}
	if len(page.Issues) == 0 {
		return fmt.Sprintf("No issues found within %vkm of the specified location.", in.RadiusKm), nil
	}

	out := struct {
		SearchRadius string         `json:"searchRadius"`
		Total        int64          `json:"total"`
		Issues       []issueSummary `json:"issues"`
	}{SearchRadius: fmt.Sprintf("%vkm", in.RadiusKm), Total: page.Total}
	for _, v := range page.Issues {
		s := summarize(v.Issue)
		s.ReportedBy = v.ReportedByName
		s.Distance = "N/A"
		if v.Distance != nil {
			s.Distance = fmt.Sprintf("%.2fkm", *v.Distance)
		}
		out.Issues = append(out.Issues, s)
	}
	return toJSON(out)
}

// --- GetPopularIssues ---

type GetPopularIssues struct {
	issues IssueQueries
}

func NewGetPopularIssues(issues IssueQueries) *GetPopularIssues {
	return &GetPopularIssues{issues: issues}
}

func (t *GetPopularIssues) Name() string { return "get_popular_issues" }
func (t *GetPopularIssues) Description() string {
	return "Get the most popular (most upvoted) issues. Useful when user asks about 'popular issues', 'trending issues', 'most upvoted', or 'top issues'."
}
func (t *GetPopularIssues) Parameters() *llm.Schema {
	return &llm.Schema{
		Type:       "object",
		Properties: map[string]*llm.Schema{"status": statusParam()},
	}
}

type popularArgs struct {
	Status string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
}

func (t *GetPopularIssues) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in popularArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}

	issues, err := t.issues.PopularIssues(ctx, models.IssueStatus(in.Status))
	if err != nil {
		return fmt.Sprintf("Error fetching popular issues: %v", err), nil
	}
	if len(issues) == 0 {
		return "No popular issues found.", nil
	}

	out := struct {
		Total  int            `json:"total"`
		Issues []issueSummary `json:"issues"`
	}{Total: len(issues)}
	for _, issue := range issues {
		out.Issues = append(out.Issues, summarize(issue))
	}
	return toJSON(out)
}

// --- GetIssueStatistics ---

type GetIssueStatistics struct {
	issues IssueQueries
}

func NewGetIssueStatistics(issues IssueQueries) *GetIssueStatistics {
	return &GetIssueStatistics{issues: issues}
}

func (t *GetIssueStatistics) Name() string { return "get_issue_statistics" }
func (t *GetIssueStatistics) Description() string {
	return "Get comprehensive statistics about issues including counts by status, category breakdown, and trends. If userId is provided, returns stats for that specific user only."
}
func (t *GetIssueStatistics) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"userId": {Type: "string", Description: "If provided, get stats for a specific user's issues only"},
		},
	}
}

type statsArgs struct {
	UserID string `json:"userId"`
}

type statusCounts struct {
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Resolved   int64 `json:"resolved"`
	Closed     int64 `json:"closed"`
}

func (t *GetIssueStatistics) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in statsArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}

	stats, err := t.issues.Statistics(ctx, in.UserID)
	if err != nil {
		return fmt.Sprintf("Error fetching issue statistics: %v", err), nil
	}

	scope := "community"
	if in.UserID != "" {
		scope = "user"
	}
	byCategory := stats.ByCategory
	if byCategory == nil {
		byCategory = map[string]int64{}
	}

	out := struct {
		Scope          string           `json:"scope"`
		Total          int64            `json:"total"`
		ByStatus       statusCounts     `json:"byStatus"`
		ByCategory     map[string]int64 `json:"byCategory"`
		ResolutionRate string           `json:"resolutionRate"`
	}{
		Scope: scope,
		Total: stats.Total,
		ByStatus: statusCounts{
			Open:       stats.ByStatus[models.StatusOpen],
			InProgress: stats.ByStatus[models.StatusInProgress],
			Resolved:   stats.ByStatus[models.StatusResolved],
			Closed:     stats.ByStatus[models.StatusClosed],
		},
		ByCategory:     byCategory,
		ResolutionRate: resolutionRate(stats.ByStatus[models.StatusResolved], stats.Total),
	}
	return toJSON(out)
}

func resolutionRate(resolved, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(resolved)/float64(total)*100)
}

// --- GetIssueDetails ---

type GetIssueDetails struct {
	issues IssueQueries
}

func NewGetIssueDetails(issues IssueQueries) *GetIssueDetails {
	return &GetIssueDetails{issues: issues}
}

func (t *GetIssueDetails) Name() string { return "get_issue_details" }
func (t *GetIssueDetails) Description() string {
	return "Get detailed information about a specific issue by ID. Useful when user asks about a specific issue or wants more details."
}
func (t *GetIssueDetails) Parameters() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]*llm.Schema{
			"issueId": {Type: "string", Description: "The ID of the issue to retrieve details for"},
		},
		Required: []string{"issueId"},
	}
}

type detailsArgs struct {
	IssueID string `json:"issueId" validate:"required"`
}

func (t *GetIssueDetails) Execute(ctx context.Context, _ *models.ConversationContext, args map[string]any) (string, error) {
	var in detailsArgs
	if err := agent.BindArgs(args, &in); err != nil {
		return "", err
	}

	id, err := primitive.ObjectIDFromHex(in.IssueID)
	if err != nil {
		return "Issue not found.", nil
	}
	issue, err := t.issues.GetIssue(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "Issue not found.", nil
		}
		return fmt.Sprintf("Error fetching issue details: %v", err), nil
	}

	var resolvedAt *string
	if issue.ResolvedAt != nil {
		s := formatDateTime(*issue.ResolvedAt)
		resolvedAt = &s
	}
	out := struct {
		ID                string          `json:"id"`
		Title             string          `json:"title"`
		Description       string          `json:"description"`
		Category          string          `json:"category"`
		Status            string          `json:"status"`
		Upvotes           int             `json:"upvotes"`
		Location          models.Location `json:"location"`
		UploadURLs        []string        `json:"uploadUrls"`
		CreatedAt         string          `json:"createdAt"`
		UpdatedAt         string          `json:"updatedAt"`
		ResolvedAt        *string         `json:"resolvedAt"`
		ResolutionMessage string          `json:"resolutionMessage,omitempty"`
	}{
		ID:                issue.ID.Hex(),
		Title:             issue.Title,
		Description:       issue.Description,
		Category:          issue.Category,
		Status:            string(issue.Status),
		Upvotes:           issue.Upvotes,
		Location:          issue.Location,
		UploadURLs:        issue.UploadURLs,
		CreatedAt:         formatDateTime(issue.CreatedAt),
		UpdatedAt:         formatDateTime(issue.UpdatedAt),
		ResolvedAt:        resolvedAt,
		ResolutionMessage: issue.ResolutionMessage,
	}
	return toJSON(out)
}

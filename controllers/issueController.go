package controllers

import (
	"net/http"

	"civicsync-api/middlewares"
	"civicsync-api/models"
	"civicsync-api/services"
	"civicsync-api/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IssueController struct {
	issues *services.IssueService
	logger *zap.Logger
}

func NewIssueController(issues *services.IssueService, logger *zap.Logger) *IssueController {
	return &IssueController{issues: issues, logger: logger}
}

type listIssuesQuery struct {
	Status    string   `form:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	Category  string   `form:"category"`
	OwnerID   string   `form:"ownerId"`
	Latitude  *float64 `form:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `form:"longitude" binding:"omitempty,gte=-180,lte=180"`
	RadiusKm  float64  `form:"radiusKm" binding:"omitempty,gt=0"`
	Page      int      `form:"page" binding:"omitempty,min=1"`
	Limit     int      `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy    string   `form:"sortBy" binding:"omitempty,oneof=createdAt upvotes"`
	SortOrder string   `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

// ListIssues handles GET /api/issues
func (ic *IssueController) ListIssues(c *gin.Context) {
	var q listIssuesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	if (q.Latitude == nil) != (q.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude must be provided together"})
		return
	}

	page, err := ic.issues.QueryIssues(c.Request.Context(), services.IssueQuery{
		Status:    models.IssueStatus(q.Status),
		Category:  q.Category,
		UserID:    q.OwnerID,
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		RadiusKm:  q.RadiusKm,
		Page:      q.Page,
		Limit:     q.Limit,
		SortBy:    store.SortField(q.SortBy),
		SortOrder: q.SortOrder,
	})
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetIssue handles GET /api/issues/:id
func (ic *IssueController) GetIssue(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	issue, err := ic.issues.GetIssue(c.Request.Context(), id)
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

type createIssueRequest struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description string          `json:"description" binding:"required,max=2000"`
	Category    string          `json:"category" binding:"required,max=100"`
	Location    locationRequest `json:"location"`
	UploadURLs  []string        `json:"uploadUrls" binding:"omitempty,max=10,dive,url"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
	Address   string   `json:"address" binding:"required,max=300"`
}

// CreateIssue handles POST /api/issues
func (ic *IssueController) CreateIssue(c *gin.Context) {
	var input createIssueRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	issue, err := ic.issues.CreateIssue(c.Request.Context(), services.NewIssue{
		UserID:      middlewares.CurrentActor(c).UserID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Location: models.Location{
			Latitude:  *input.Location.Latitude,
			Longitude: *input.Location.Longitude,
			Address:   input.Location.Address,
		},
		UploadURLs: input.UploadURLs,
	})
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

type updateStatusRequest struct {
	Status               string   `json:"status" binding:"required"`
	ResolutionMessage    string   `json:"resolutionMessage" binding:"max=1000"`
	ResolutionUploadURLs []string `json:"resolutionUploadUrls" binding:"omitempty,max=10,dive,url"`
}

// UpdateStatus handles PATCH /api/issues/:id/status
func (ic *IssueController) UpdateStatus(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	var input updateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}

	issue, err := ic.issues.UpdateStatus(c.Request.Context(), middlewares.CurrentActor(c), services.StatusChange{
		IssueID:              id,
		Status:               models.IssueStatus(input.Status),
		ResolutionMessage:    input.ResolutionMessage,
		ResolutionUploadURLs: input.ResolutionUploadURLs,
	})
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// DeleteIssue handles DELETE /api/issues/:id
func (ic *IssueController) DeleteIssue(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	if err := ic.issues.DeleteIssue(c.Request.Context(), middlewares.CurrentActor(c), id); err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Issue deleted successfully"})
}

// ToggleUpvote handles POST /api/issues/:id/upvote
func (ic *IssueController) ToggleUpvote(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	userID := middlewares.CurrentActor(c).UserID
	issue, err := ic.issues.ToggleUpvote(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upvotes":  issue.Upvotes,
		"upvoted":  issue.HasUpvoted(userID),
		"issue_id": issue.ID.Hex(),
	})
}

// ListComments handles GET /api/issues/:id/comments
func (ic *IssueController) ListComments(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	comments, err := ic.issues.ListComments(c.Request.Context(), id)
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "total": len(comments)})
}

type addCommentRequest struct {
	Comment    string   `json:"comment" binding:"required,max=1000"`
	UploadURLs []string `json:"uploadUrls" binding:"omitempty,max=10,dive,url"`
}

// AddComment handles POST /api/issues/:id/comments
func (ic *IssueController) AddComment(c *gin.Context) {
	id, ok := parseObjectID(c, "id")
	if !ok {
		return
	}
	var input addCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	if input.UploadURLs == nil {
		input.UploadURLs = []string{}
	}

	actor := middlewares.CurrentActor(c)
	comment, err := ic.issues.AddComment(c.Request.Context(), services.NewComment{
		IssueID:    id,
		UserID:     actor.UserID,
		Comment:    input.Comment,
		UploadURLs: input.UploadURLs,
		IsAdmin:    actor.IsAdmin,
	})
	if err != nil {
		respondError(c, ic.logger, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

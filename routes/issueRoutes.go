package routes

import (
	"civicsync-api/controllers"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue and comment routes
func IssueRoutes(r *gin.Engine, ic *controllers.IssueController, auth, createLimit gin.HandlerFunc) {
	issues := r.Group("/api/issues", auth)
	{
		issues.GET("", ic.ListIssues)
		issues.GET("/:id", ic.GetIssue)
		issues.GET("/:id/comments", ic.ListComments)

		issues.POST("", createLimit, ic.CreateIssue)
		issues.PATCH("/:id/status", ic.UpdateStatus)
		issues.DELETE("/:id", ic.DeleteIssue)
		issues.POST("/:id/upvote", ic.ToggleUpvote)
		issues.POST("/:id/comments", ic.AddComment)
	}
}

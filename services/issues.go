// Package services holds the issue query engine and mutation rules.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicsync-api/models"
	"civicsync-api/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type IssueService struct {
	store  store.Store
	users  store.UserDirectory
	logger *zap.Logger
	now    func() time.Time
}

func NewIssueService(s store.Store, logger *zap.Logger) *IssueService {
	return &IssueService{store: s, users: s, logger: logger, now: time.Now}
}

// NewIssue is the input for CreateIssue.
type NewIssue struct {
	UserID      string
	Title       string
	Description string
	Category    string
	Location    models.Location
	UploadURLs  []string
}

// CreateIssue stores a new open issue.
func (s *IssueService) CreateIssue(ctx context.Context, in NewIssue) (*models.Issue, error) {
	now := s.now()
	issue := &models.Issue{
		ID:          primitive.NewObjectID(),
		UserID:      in.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Status:      models.StatusOpen,
		Location:    in.Location,
		UploadURLs:  in.UploadURLs,
		UpvotedBy:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if issue.UploadURLs == nil {
		issue.UploadURLs = []string{}
	}
	if err := s.store.InsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	s.logger.Info("issue created", zap.String("issue_id", issue.ID.Hex()), zap.String("user_id", in.UserID))
	return issue, nil
}

func (s *IssueService) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// NewComment is the input for AddComment.
type NewComment struct {
	IssueID    primitive.ObjectID
	UserID     string
	Comment    string
	UploadURLs []string
	IsAdmin    bool
}

// AddComment attaches a comment to an existing issue.
func (s *IssueService) AddComment(ctx context.Context, in NewComment) (*models.Comment, error) {
	if _, err := s.store.GetIssue(ctx, in.IssueID); err != nil {
		return nil, err
	}
	comment := &models.Comment{
		ID:         primitive.NewObjectID(),
		IssueID:    in.IssueID,
		UserID:     in.UserID,
		Comment:    in.Comment,
		UploadURLs: in.UploadURLs,
		IsAdmin:    in.IsAdmin,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns an issue's comments, newest first, with author names.
func (s *IssueService) ListComments(ctx context.Context, issueID primitive.ObjectID) ([]models.CommentView, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, issueID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.UserID
	}
	names, err := s.users.UserNames(ctx, ids)
	if err != nil {
		s.logger.Warn("comment author lookup failed", zap.Error(err))
	}

	views := make([]models.CommentView, len(comments))
	for i, c := range comments {
		name := names[c.UserID]
		if name == "" {
			name = models.PlaceholderUserName
		}
		views[i] = models.CommentView{Comment: c, UserName: name}
	}
	return views, nil
}

// StatusChange is the input for UpdateStatus.
type StatusChange struct {
	IssueID              primitive.ObjectID
	Status               models.IssueStatus
	ResolutionMessage    string
	ResolutionUploadURLs []string
}

// UpdateStatus moves an issue to a new status. Only the owner or an admin may
// do so. Resolving stamps resolvedAt and, when a message is given, records it
// as a comment by the actor.
func (s *IssueService) UpdateStatus(ctx context.Context, actor models.Actor, change StatusChange) (*models.Issue, error) {
	if !change.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", change.Status)}
	}

	issue, err := s.store.GetIssue(ctx, change.IssueID)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(issue.UserID) {
		return nil, models.Unauthorizedf("you don't have permission to update this issue")
	}

	now := s.now()
	update := models.StatusUpdate{Status: change.Status, UpdatedAt: now}
	message := strings.TrimSpace(change.ResolutionMessage)
	if change.Status == models.StatusResolved {
		update.ResolvedAt = &now
		update.ResolutionMessage = message
		update.ResolutionUploadURLs = change.ResolutionUploadURLs
		if message != "" {
			uploads := change.ResolutionUploadURLs
			if uploads == nil {
				uploads = []string{}
			}
			update.Comment = &models.Comment{
				ID:         primitive.NewObjectID(),
				IssueID:    change.IssueID,
				UserID:     actor.UserID,
				Comment:    message,
				UploadURLs: uploads,
				IsAdmin:    actor.IsAdmin,
				CreatedAt:  now,
			}
		}
	}

	updated, err := s.store.UpdateIssueStatus(ctx, change.IssueID, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info("issue status updated",
		zap.String("issue_id", change.IssueID.Hex()),
		zap.String("status", string(change.Status)),
		zap.String("user_id", actor.UserID),
		zap.Bool("admin", actor.IsAdmin))
	return updated, nil
}

// DeleteIssue removes an issue and its comments. Only the owner or an admin
// may do so.
func (s *IssueService) DeleteIssue(ctx context.Context, actor models.Actor, id primitive.ObjectID) error {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(issue.UserID) {
		return models.Unauthorizedf("you don't have permission to delete this issue")
	}
	if err := s.store.DeleteIssue(ctx, id); err != nil {
		return err
	}
	s.logger.Info("issue deleted", zap.String("issue_id", id.Hex()), zap.String("user_id", actor.UserID))
	return nil
}

// ToggleUpvote adds the user's upvote, or removes it if already present.
func (s *IssueService) ToggleUpvote(ctx context.Context, id primitive.ObjectID, userID string) (*models.Issue, error) {
	return s.store.ToggleUpvote(ctx, id, userID, s.now())
}

// Package store persists issues, comments, user names and conversations.
package store

import (
	"context"
	"time"

	"civicsync-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueFilter holds the equality filters for issue scans. Empty fields match
// everything.
type IssueFilter struct {
	Status   models.IssueStatus
	Category string
	UserID   string
}

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpvotes   SortField = "upvotes"
)

// FindOptions controls ordering and windowing of a scan. A zero Limit
// returns every match.
type FindOptions struct {
	SortBy     SortField
	Descending bool
	Skip       int
	Limit      int
}

type IssueStore interface {
	InsertIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	FindIssues(ctx context.Context, filter IssueFilter, opts FindOptions) ([]models.Issue, error)
	CountIssues(ctx context.Context, filter IssueFilter) (int64, error)
	UpdateIssueStatus(ctx context.Context, id primitive.ObjectID, update models.StatusUpdate) (*models.Issue, error)
	// ToggleUpvote adds userID to the voter set or removes it, adjusting the
	// count in the same atomic write.
	ToggleUpvote(ctx context.Context, id primitive.ObjectID, userID string, now time.Time) (*models.Issue, error)
	// DeleteIssue removes the issue and every comment on it, or nothing.
	DeleteIssue(ctx context.Context, id primitive.ObjectID) error
	IssueStats(ctx context.Context, filter IssueFilter) (*models.IssueStats, error)
}

type CommentStore interface {
	InsertComment(ctx context.Context, comment *models.Comment) error
	// ListComments returns the comments on an issue, newest first.
	ListComments(ctx context.Context, issueID primitive.ObjectID) ([]models.Comment, error)
}

// UserDirectory resolves display names. Unknown ids are absent from the
// returned map.
type UserDirectory interface {
	UserNames(ctx context.Context, ids []string) (map[string]string, error)
}

type ConversationStore interface {
	// GetOrCreateActive returns the most recently updated active
	// conversation for userID, creating one when none exists.
	GetOrCreateActive(ctx context.Context, userID string) (*models.Conversation, error)
	// Append adds msg to conv and persists it.
	Append(ctx context.Context, conv *models.Conversation, msg models.Message) error
	// Save trims conv to MaxConversationMessages, bumps UpdatedAt and persists it.
	Save(ctx context.Context, conv *models.Conversation) error
	// Deactivate closes every active conversation of userID.
	Deactivate(ctx context.Context, userID string) error
	// PurgeExpired deletes conversations last updated before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles every persistence concern the server needs.
type Store interface {
	IssueStore
	CommentStore
	UserDirectory
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

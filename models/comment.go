package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment is a note attached to an issue. Comments are never edited; they
// disappear only when their issue is deleted.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IssueID    primitive.ObjectID `bson:"issueId" json:"issueId"`
	UserID     string             `bson:"userId" json:"userId"`
	Comment    string             `bson:"comment" json:"comment"`
	UploadURLs []string           `bson:"uploadUrls" json:"uploadUrls"`
	IsAdmin    bool               `bson:"isAdmin" json:"isAdmin"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// CommentView is a Comment with its author's display name.
type CommentView struct {
	Comment  `bson:",inline"`
	UserName string `json:"userName"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueStatus enum
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
)

// IssueStatuses lists every status in lifecycle order.
var IssueStatuses = []IssueStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Location is where an issue was reported.
type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
	Address   string  `bson:"address" json:"address"`
}

// Issue represents a civic issue reported by a user
type Issue struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string             `bson:"userId" json:"userId"`
	Title                string             `bson:"title" json:"title"`
	Description          string             `bson:"description" json:"description"`
	Category             string             `bson:"category" json:"category"`
	Status               IssueStatus        `bson:"status" json:"status"`
	Location             Location           `bson:"location" json:"location"`
	UploadURLs           []string           `bson:"uploadUrls" json:"uploadUrls"`
	Upvotes              int                `bson:"upvotes" json:"upvotes"`
	UpvotedBy            []string           `bson:"upvotedBy" json:"upvotedBy"`
	ResolutionMessage    string             `bson:"resolutionMessage,omitempty" json:"resolutionMessage,omitempty"`
	ResolutionUploadURLs []string           `bson:"resolutionUploadUrls,omitempty" json:"resolutionUploadUrls,omitempty"`
	ResolvedAt           *time.Time         `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HasUpvoted reports whether userID is in the voter set.
func (i *Issue) HasUpvoted(userID string) bool {
	for _, id := range i.UpvotedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// IssueView is an Issue annotated for listing. Distance is only set for
// geo-radius queries and is never persisted.
type IssueView struct {
	Issue          `bson:",inline"`
	ReportedByName string   `json:"reportedByName"`
	Distance       *float64 `json:"distance,omitempty"`
}

// StatusUpdate carries the fields written by a status transition. Comment,
// when set, is stored together with the transition or not at all.
type StatusUpdate struct {
	Status               IssueStatus
	UpdatedAt            time.Time
	ResolvedAt           *time.Time
	ResolutionMessage    string
	ResolutionUploadURLs []string
	Comment              *Comment
}

// IssueStats holds aggregate counts over a set of issues.
type IssueStats struct {
	Total      int64
	ByStatus   map[IssueStatus]int64
	ByCategory map[string]int64
}

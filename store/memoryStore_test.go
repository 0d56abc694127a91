package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"civicsync-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedIssue(t *testing.T, s *MemoryStore, mutate func(*models.Issue)) *models.Issue {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issue := &models.Issue{
		UserID:    "owner",
		Title:     "Pothole",
		Category:  "Road",
		Status:    models.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(issue)
	}
	require.NoError(t, s.InsertIssue(context.Background(), issue))
	return issue
}

func TestMemoryToggleUpvoteIsInvolution(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issue := seedIssue(t, s, func(i *models.Issue) {
		i.Upvotes = 1
		i.UpvotedBy = []string{"someone"}
	})
	now := time.Now()

	up, err := s.ToggleUpvote(ctx, issue.ID, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, up.Upvotes)
	assert.Equal(t, []string{"someone", "u1"}, up.UpvotedBy)

	down, err := s.ToggleUpvote(ctx, issue.ID, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, down.Upvotes)
	assert.Equal(t, []string{"someone"}, down.UpvotedBy)
}

func TestMemoryToggleUpvoteFloorsAtZero(t *testing.T) {
	s := NewMemoryStore()
	issue := seedIssue(t, s, func(i *models.Issue) {
		i.Upvotes = 0
		i.UpvotedBy = []string{"u1"}
	})

	got, err := s.ToggleUpvote(context.Background(), issue.ID, "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Upvotes)
	assert.Empty(t, got.UpvotedBy)
}

func TestMemoryToggleUpvoteConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issue := seedIssue(t, s, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ToggleUpvote(ctx, issue.ID, fmt.Sprintf("user-%d", i), time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Upvotes)
	assert.Len(t, got.UpvotedBy, 20)
}

func TestMemoryToggleUpvoteMissingIssue(t *testing.T) {
	_, err := NewMemoryStore().ToggleUpvote(context.Background(), primitive.NewObjectID(), "u1", time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryDeleteIssueCascadesComments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doomed := seedIssue(t, s, nil)
	kept := seedIssue(t, s, nil)

	for _, id := range []primitive.ObjectID{doomed.ID, doomed.ID, kept.ID} {
		require.NoError(t, s.InsertComment(ctx, &models.Comment{IssueID: id, UserID: "u", Comment: "hi", CreatedAt: time.Now()}))
	}

	require.NoError(t, s.DeleteIssue(ctx, doomed.ID))

	left, err := s.ListComments(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := s.ListComments(ctx, kept.ID)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	assert.ErrorIs(t, s.DeleteIssue(ctx, doomed.ID), models.ErrNotFound)
}

func TestMemoryStatusUpdateOnMissingIssueStoresNoComment(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := primitive.NewObjectID()

	_, err := s.UpdateIssueStatus(ctx, id, models.StatusUpdate{
		Status:  models.StatusResolved,
		Comment: &models.Comment{ID: primitive.NewObjectID(), IssueID: id, Comment: "done"},
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	comments, err := s.ListComments(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestMemoryFindIssuesSortAndWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		seedIssue(t, s, func(is *models.Issue) {
			is.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			is.Upvotes = 10 - i
		})
	}

	got, err := s.FindIssues(ctx, IssueFilter{}, FindOptions{SortBy: SortByCreatedAt, Descending: true, Skip: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(3*time.Hour), got[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Hour), got[1].CreatedAt)

	got, err = s.FindIssues(ctx, IssueFilter{}, FindOptions{SortBy: SortByUpvotes})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 6, got[0].Upvotes)
	assert.Equal(t, 10, got[4].Upvotes)

	got, err = s.FindIssues(ctx, IssueFilter{}, FindOptions{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryIssueStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedIssue(t, s, func(i *models.Issue) { i.Status = models.StatusResolved })
	seedIssue(t, s, func(i *models.Issue) { i.Category = "Water" })
	seedIssue(t, s, func(i *models.Issue) { i.UserID = "other" })

	stats, err := s.IssueStats(ctx, IssueFilter{UserID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusResolved])
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusOpen])
	assert.Equal(t, int64(0), stats.ByStatus[models.StatusClosed])
	assert.Equal(t, map[string]int64{"Road": 1, "Water": 1}, stats.ByCategory)
}

func TestMemoryConversationRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	conv, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	for i := range 60 {
		require.NoError(t, s.Append(ctx, conv, models.Message{Role: models.RoleUser, Content: fmt.Sprint(i)}))
	}

	again, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	require.Len(t, again.Messages, models.MaxConversationMessages)
	assert.Equal(t, "10", again.Messages[0].Content)
	assert.Equal(t, "59", again.Messages[49].Content)
}

func TestMemoryDeactivateStartsFreshConversation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Deactivate(ctx, "u1"))

	second, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicsync-api/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is a process-local Store and ConversationStore. Every write
// happens under one lock, so mutations are atomic with respect to each other.
type MemoryStore struct {
	mu            sync.RWMutex
	issues        map[primitive.ObjectID]*models.Issue
	comments      map[primitive.ObjectID]*models.Comment
	users         map[string]string
	conversations map[primitive.ObjectID]*models.Conversation

	// Now is the clock used for conversation timestamps.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues:        make(map[primitive.ObjectID]*models.Issue),
		comments:      make(map[primitive.ObjectID]*models.Comment),
		users:         make(map[string]string),
		conversations: make(map[primitive.ObjectID]*models.Conversation),
		Now:           time.Now,
	}
}

// PutUser registers a display name for a user id.
func (s *MemoryStore) PutUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

func cloneIssue(i *models.Issue) *models.Issue {
	c := *i
	c.UploadURLs = append([]string{}, i.UploadURLs...)
	c.UpvotedBy = append([]string{}, i.UpvotedBy...)
	if i.ResolutionUploadURLs != nil {
		c.ResolutionUploadURLs = append([]string{}, i.ResolutionUploadURLs...)
	}
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Messages = append([]models.Message{}, c.Messages...)
	return &cp
}

func matches(i *models.Issue, f IssueFilter) bool {
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Category != "" && i.Category != f.Category {
		return false
	}
	if f.UserID != "" && i.UserID != f.UserID {
		return false
	}
	return true
}

func (s *MemoryStore) InsertIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	if issue.UpvotedBy == nil {
		issue.UpvotedBy = []string{}
	}
	if issue.UploadURLs == nil {
		issue.UploadURLs = []string{}
	}
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *MemoryStore) GetIssue(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, models.NotFoundf("issue %s", id.Hex())
	}
	return cloneIssue(issue), nil
}

func (s *MemoryStore) FindIssues(_ context.Context, filter IssueFilter, opts FindOptions) ([]models.Issue, error) {
	s.mu.RLock()
	var out []models.Issue
	for _, issue := range s.issues {
		if matches(issue, filter) {
			out = append(out, *cloneIssue(issue))
		}
	}
	s.mu.RUnlock()

	less := func(a, b *models.Issue) bool {
		if opts.SortBy == SortByUpvotes && a.Upvotes != b.Upvotes {
			return a.Upvotes < b.Upvotes
		}
		if opts.SortBy != SortByUpvotes && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.Hex() < b.ID.Hex()
	}
	sort.Slice(out, func(i, j int) bool {
		if opts.Descending {
			return less(&out[j], &out[i])
		}
		return less(&out[i], &out[j])
	})

	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			return []models.Issue{}, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	if out == nil {
		out = []models.Issue{}
	}
	return out, nil
}

func (s *MemoryStore) CountIssues(_ context.Context, filter IssueFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, issue := range s.issues {
		if matches(issue, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpdateIssueStatus(_ context.Context, id primitive.ObjectID, update models.StatusUpdate) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, models.NotFoundf("issue %s", id.Hex())
	}
	issue.Status = update.Status
	issue.UpdatedAt = update.UpdatedAt
	if update.ResolvedAt != nil {
		t := *update.ResolvedAt
		issue.ResolvedAt = &t
	}
	if update.ResolutionMessage != "" {
		issue.ResolutionMessage = update.ResolutionMessage
	}
	if update.ResolutionUploadURLs != nil {
		issue.ResolutionUploadURLs = append([]string{}, update.ResolutionUploadURLs...)
	}
	if update.Comment != nil {
		c := *update.Comment
		c.UploadURLs = append([]string{}, update.Comment.UploadURLs...)
		s.comments[c.ID] = &c
	}
	return cloneIssue(issue), nil
}

func (s *MemoryStore) ToggleUpvote(_ context.Context, id primitive.ObjectID, userID string, now time.Time) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, models.NotFoundf("issue %s", id.Hex())
	}

	if issue.HasUpvoted(userID) {
		voters := make([]string, 0, len(issue.UpvotedBy))
		for _, v := range issue.UpvotedBy {
			if v != userID {
				voters = append(voters, v)
			}
		}
		issue.UpvotedBy = voters
		issue.Upvotes = max(0, issue.Upvotes-1)
	} else {
		issue.UpvotedBy = append(issue.UpvotedBy, userID)
		issue.Upvotes++
	}
	issue.UpdatedAt = now
	return cloneIssue(issue), nil
}

func (s *MemoryStore) DeleteIssue(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[id]; !ok {
		return models.NotFoundf("issue %s", id.Hex())
	}
	delete(s.issues, id)
	for cid, c := range s.comments {
		if c.IssueID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (s *MemoryStore) IssueStats(_ context.Context, filter IssueFilter) (*models.IssueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.IssueStats{
		ByStatus:   make(map[models.IssueStatus]int64, len(models.IssueStatuses)),
		ByCategory: make(map[string]int64),
	}
	for _, st := range models.IssueStatuses {
		stats.ByStatus[st] = 0
	}
	for _, issue := range s.issues {
		if !matches(issue, filter) {
			continue
		}
		stats.Total++
		stats.ByStatus[issue.Status]++
		stats.ByCategory[issue.Category]++
	}
	return stats, nil
}

func (s *MemoryStore) InsertComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	if comment.UploadURLs == nil {
		comment.UploadURLs = []string{}
	}
	c := *comment
	c.UploadURLs = append([]string{}, comment.UploadURLs...)
	s.comments[c.ID] = &c
	return nil
}

func (s *MemoryStore) ListComments(_ context.Context, issueID primitive.ObjectID) ([]models.Comment, error) {
	s.mu.RLock()
	out := []models.Comment{}
	for _, c := range s.comments {
		if c.IssueID == issueID {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (s *MemoryStore) UserNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]string)
	for _, id := range distinct(ids) {
		if name, ok := s.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *MemoryStore) GetOrCreateActive(_ context.Context, userID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Conversation
	for _, c := range s.conversations {
		if c.UserID != userID || !c.IsActive {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest != nil {
		return cloneConversation(latest), nil
	}

	conv := models.NewConversation(userID, s.Now())
	s.conversations[conv.ID] = cloneConversation(conv)
	return conv, nil
}

func (s *MemoryStore) Append(ctx context.Context, conv *models.Conversation, msg models.Message) error {
	conv.Messages = append(conv.Messages, msg)
	return s.Save(ctx, conv)
}

func (s *MemoryStore) Save(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.Trim(models.MaxConversationMessages)
	conv.UpdatedAt = s.Now()
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.UserID == userID && c.IsActive {
			c.IsActive = false
			c.UpdatedAt = s.Now()
		}
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.conversations {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			n++
		}
	}
	return n, nil
}

// ConversationCount reports how many conversations are stored.
func (s *MemoryStore) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

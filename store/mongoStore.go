package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicsync-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout   = 10 * time.Second
	maxToggleRetries = 3
)

// MongoStore keeps issues, comments and users in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	issues   *mongo.Collection
	comments *mongo.Collection
	users    *mongo.Collection
	timeout  time.Duration
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		issues:   db.Collection("issues"),
		comments: db.Collection("comments"),
		users:    db.Collection("users"),
		timeout:  defaultTimeout,
	}
}

// EnsureIndexes creates the indexes the query paths rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.issues.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "location.latitude", Value: 1}, {Key: "location.longitude", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("issue indexes: %w", err)
	}

	_, err = s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "issueId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("comment indexes: %w", err)
	}
	return nil
}

func issueFilterDoc(f IssueFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	return filter
}

func (s *MongoStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	if issue.UpvotedBy == nil {
		issue.UpvotedBy = []string{}
	}
	if issue.UploadURLs == nil {
		issue.UploadURLs = []string{}
	}
	if _, err := s.issues.InsertOne(ctx, issue); err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *MongoStore) GetIssue(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var issue models.Issue
	err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NotFoundf("issue %s", id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &issue, nil
}

func (s *MongoStore) FindIssues(ctx context.Context, filter IssueFilter, opts FindOptions) ([]models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order := 1
	if opts.Descending {
		order = -1
	}
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: string(sortBy), Value: order}, {Key: "_id", Value: order}})
	if opts.Skip > 0 {
		findOptions.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.issues.Find(ctx, issueFilterDoc(filter), findOptions)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	defer cursor.Close(ctx)

	issues := []models.Issue{}
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	return issues, nil
}

func (s *MongoStore) CountIssues(ctx context.Context, filter IssueFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.issues.CountDocuments(ctx, issueFilterDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

func (s *MongoStore) UpdateIssueStatus(ctx context.Context, id primitive.ObjectID, update models.StatusUpdate) (*models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	set := bson.M{
		"status":    update.Status,
		"updatedAt": update.UpdatedAt,
	}
	if update.ResolvedAt != nil {
		set["resolvedAt"] = *update.ResolvedAt
	}
	if update.ResolutionMessage != "" {
		set["resolutionMessage"] = update.ResolutionMessage
	}
	if update.ResolutionUploadURLs != nil {
		set["resolutionUploadUrls"] = update.ResolutionUploadURLs
	}

	apply := func(ctx context.Context) (*models.Issue, error) {
		var issue models.Issue
		err := s.issues.FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&issue)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NotFoundf("issue %s", id.Hex())
		}
		if err != nil {
			return nil, fmt.Errorf("update issue status: %w", err)
		}
		return &issue, nil
	}
	if update.Comment == nil {
		return apply(ctx)
	}

	// With a comment the pair is written in a transaction, like DeleteIssue.
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		issue, err := apply(sc)
		if err != nil {
			return nil, err
		}
		if _, err := s.comments.InsertOne(sc, update.Comment); err != nil {
			return nil, fmt.Errorf("insert resolution comment: %w", err)
		}
		return issue, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.Issue), nil
}

// ToggleUpvote uses two membership-conditioned writes so concurrent toggles
// by the same user can never double count: the removal only matches when the
// user is in the set, the addition only when they are not.
func (s *MongoStore) ToggleUpvote(ctx context.Context, id primitive.ObjectID, userID string, now time.Time) (*models.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	remove := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "upvotedBy", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$upvotedBy"},
			{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", userID}}}},
		}}}},
		{Key: "upvotes", Value: bson.D{{Key: "$max", Value: bson.A{0, bson.D{
			{Key: "$subtract", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$upvotes", 0}}}, 1}},
		}}}}},
		{Key: "updatedAt", Value: now},
	}}}}

	add := bson.M{
		"$addToSet": bson.M{"upvotedBy": userID},
		"$inc":      bson.M{"upvotes": 1},
		"$set":      bson.M{"updatedAt": now},
	}

	for range maxToggleRetries {
		var issue models.Issue
		err := s.issues.FindOneAndUpdate(ctx, bson.M{"_id": id, "upvotedBy": userID}, remove, after).Decode(&issue)
		if err == nil {
			return &issue, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("remove upvote: %w", err)
		}

		err = s.issues.FindOneAndUpdate(ctx, bson.M{"_id": id, "upvotedBy": bson.M{"$ne": userID}}, add, after).Decode(&issue)
		if err == nil {
			return &issue, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("add upvote: %w", err)
		}

		// Neither write matched: the issue is gone, or another toggle by the
		// same user flipped membership in between.
		if _, err := s.GetIssue(ctx, id); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("toggle upvote on %s: too much contention", id.Hex())
}

// DeleteIssue runs inside a transaction, so it needs a replica set.
func (s *MongoStore) DeleteIssue(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.issues.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, fmt.Errorf("delete issue: %w", err)
		}
		if res.DeletedCount == 0 {
			return nil, models.NotFoundf("issue %s", id.Hex())
		}
		if _, err := s.comments.DeleteMany(sc, bson.M{"issueId": id}); err != nil {
			return nil, fmt.Errorf("delete comments: %w", err)
		}
		return nil, nil
	})
	return err
}

type countBucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (s *MongoStore) groupCount(ctx context.Context, match bson.M, field string) ([]countBucket, error) {
	pipeline := []bson.M{
		{"$match": match},
		{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}},
	}
	cursor, err := s.issues.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var buckets []countBucket
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("decode %s buckets: %w", field, err)
	}
	return buckets, nil
}

func (s *MongoStore) IssueStats(ctx context.Context, filter IssueFilter) (*models.IssueStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	match := issueFilterDoc(filter)
	var byStatus, byCategory []countBucket

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.groupCount(gctx, match, "status")
		return err
	})
	g.Go(func() error {
		var err error
		byCategory, err = s.groupCount(gctx, match, "category")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &models.IssueStats{
		ByStatus:   make(map[models.IssueStatus]int64, len(models.IssueStatuses)),
		ByCategory: make(map[string]int64, len(byCategory)),
	}
	for _, st := range models.IssueStatuses {
		stats.ByStatus[st] = 0
	}
	for _, b := range byStatus {
		stats.ByStatus[models.IssueStatus(b.Key)] = b.Count
		stats.Total += b.Count
	}
	for _, b := range byCategory {
		stats.ByCategory[b.Key] = b.Count
	}
	return stats, nil
}

func (s *MongoStore) InsertComment(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	if comment.UploadURLs == nil {
		comment.UploadURLs = []string{}
	}
	if _, err := s.comments.InsertOne(ctx, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *MongoStore) ListComments(ctx context.Context, issueID primitive.ObjectID) ([]models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.comments.Find(ctx,
		bson.M{"issueId": issueID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	defer cursor.Close(ctx)

	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

// UserNames looks up every id in one query. Ids that are not valid object
// ids are skipped.
func (s *MongoStore) UserNames(ctx context.Context, ids []string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range distinct(ids) {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objIDs = append(objIDs, oid)
		}
	}
	names := make(map[string]string, len(objIDs))
	if len(objIDs) == 0 {
		return names, nil
	}

	cursor, err := s.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": objIDs}},
		options.Find().SetProjection(bson.M{"name": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		names[u.ID.Hex()] = u.Name
	}
	return names, nil
}
